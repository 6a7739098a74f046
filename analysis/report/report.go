// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report defines the findings produced by the detectors and their deterministic ordering.
// Findings are produced fresh per run; re-running the pipeline on the same IR yields an identical
// ordered list.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/internal/formatutil"
	"golang.org/x/exp/slices"
)

// RuleID identifies one of the four guideline rules.
type RuleID string

const (
	// RuleSecretDependentPath (R1): secret-dependent choice between a constant-time and a
	// non-constant-time code path.
	RuleSecretDependentPath RuleID = "R1"

	// RuleIndirectBranchInRegion (R2): indirect branch or call inside a constant-time region.
	RuleIndirectBranchInRegion RuleID = "R2"

	// RuleConditionalScrub (R3): scrubbing of secret state that some path can skip.
	RuleConditionalScrub RuleID = "R3"

	// RuleSecretInGlobalStorage (R4): secret data stored to global or static storage.
	RuleSecretInGlobalStorage RuleID = "R4"
)

// Severity grades a finding.
type Severity uint8

const (
	// High severity findings are structural risks.
	High Severity = iota + 1
	// Critical severity findings directly expose secret data to a speculation side channel.
	Critical
)

// ParseSeverity maps a severity name to its value; ok is false for anything other than "high" and
// "critical".
func ParseSeverity(name string) (Severity, bool) {
	switch name {
	case "high":
		return High, true
	case "critical":
		return Critical, true
	default:
		return 0, false
	}
}

func (s Severity) String() string {
	switch s {
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "invalid"
	}
}

// Finding is one rule violation. The provenance chain is the value dependency chain from an
// originating secret source to the violating site; rules whose trigger is structural rather than
// data-dependent (R2) carry the violating value alone.
type Finding struct {
	// Rule is the violated rule.
	Rule RuleID

	// Severity is the rule's severity.
	Severity Severity

	// Func is the function containing the violation, FuncName its name for rendering.
	Func     ir.FuncID
	FuncName string

	// Block and InstrIndex locate the violating instruction.
	Block      ir.BlockID
	InstrIndex int

	// Chain is the taint provenance chain, ordered from source to violating value.
	Chain []ir.ValueID

	// Detail is a human-readable description of the violation.
	Detail string
}

func (f Finding) String() string {
	var chain string
	if len(f.Chain) > 0 {
		parts := make([]string, len(f.Chain))
		for i, v := range f.Chain {
			parts[i] = fmt.Sprintf("v%d", v)
		}
		chain = " (chain: " + strings.Join(parts, " -> ") + ")"
	}
	return fmt.Sprintf("[%s][%s] %s, block %d, instr %d: %s%s",
		f.Rule, f.Severity, f.FuncName, f.Block, f.InstrIndex, f.Detail, chain)
}

// SortFindings orders findings by ascending function id, block id, instruction index, then rule
// id. The order is total for the findings any run can produce, which makes reports byte-identical
// across runs on the same input.
func SortFindings(findings []Finding) {
	slices.SortFunc(findings, func(a, b Finding) bool {
		if a.Func != b.Func {
			return a.Func < b.Func
		}
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		if a.InstrIndex != b.InstrIndex {
			return a.InstrIndex < b.InstrIndex
		}
		return a.Rule < b.Rule
	})
}

// WriteText renders the findings to w, one per line, in their existing order.
func WriteText(w io.Writer, findings []Finding) {
	for _, f := range findings {
		line := f.String()
		switch f.Severity {
		case Critical:
			line = formatutil.Red(line)
		case High:
			line = formatutil.Yellow(line)
		}
		fmt.Fprintln(w, line)
	}
}
