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

// Package rules implements the four guideline detectors. Each detector is an independent pass over
// one function's taint, region and shape data; detectors never mutate their target and can run in
// any order or concurrently across functions.
package rules

import (
	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/regions"
	"github.com/awslabs/ar-ct-tools/analysis/report"
	"github.com/awslabs/ar-ct-tools/analysis/shape"
	"github.com/awslabs/ar-ct-tools/analysis/taint"
)

// Target bundles the read-only analysis data of one function that the detectors consume.
type Target struct {
	// Prog is the whole program; detectors use it to resolve callees and memory locations.
	Prog *ir.Program

	// Fn is the function under analysis, with CFG its control-flow information.
	Fn  *ir.Function
	CFG *ir.CFG

	// Taint is the function's computed labeling.
	Taint *taint.Labeling

	// Regions is the function's region classification.
	Regions *regions.Info

	// Shapes is the program-wide shape table, immutable by the time detectors run.
	Shapes *shape.Table
}

// Detector is one rule pass. The returned findings are unordered; the caller sorts.
type Detector func(*Target) []report.Finding

// All returns the four detectors in rule order.
func All() []Detector {
	return []Detector{
		SecretDependentPath,
		IndirectBranchInRegion,
		ConditionalScrub,
		SecretInGlobalStorage,
	}
}

func (t *Target) newFinding(rule report.RuleID, sev report.Severity, block ir.BlockID, instr int,
	chain []ir.ValueID, detail string) report.Finding {
	return report.Finding{
		Rule:       rule,
		Severity:   sev,
		Func:       t.Fn.ID,
		FuncName:   t.Fn.Name,
		Block:      block,
		InstrIndex: instr,
		Chain:      chain,
		Detail:     detail,
	}
}
