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

package report

import (
	"testing"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
)

func TestSortFindings(t *testing.T) {
	findings := []Finding{
		{Rule: RuleSecretInGlobalStorage, Func: 1, Block: 0, InstrIndex: 0},
		{Rule: RuleConditionalScrub, Func: 0, Block: 2, InstrIndex: 1},
		{Rule: RuleSecretDependentPath, Func: 0, Block: 2, InstrIndex: 1},
		{Rule: RuleIndirectBranchInRegion, Func: 0, Block: 1, InstrIndex: 0},
	}
	SortFindings(findings)

	want := []RuleID{
		RuleIndirectBranchInRegion,
		RuleSecretDependentPath,
		RuleConditionalScrub,
		RuleSecretInGlobalStorage,
	}
	for i, r := range want {
		if findings[i].Rule != r {
			t.Errorf("findings[%d].Rule = %s, want %s", i, findings[i].Rule, r)
		}
	}
}

func TestFindingString(t *testing.T) {
	f := Finding{
		Rule:       RuleSecretDependentPath,
		Severity:   Critical,
		Func:       0,
		FuncName:   "expand_key",
		Block:      2,
		InstrIndex: 1,
		Chain:      []ir.ValueID{1, 3},
		Detail:     "branch on secret condition",
	}
	want := "[R1][critical] expand_key, block 2, instr 1: branch on secret condition (chain: v1 -> v3)"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	f.Chain = nil
	f.Severity = High
	want = "[R1][high] expand_key, block 2, instr 1: branch on secret condition"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
