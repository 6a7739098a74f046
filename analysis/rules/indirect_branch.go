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

package rules

import (
	"fmt"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/regions"
	"github.com/awslabs/ar-ct-tools/analysis/report"
)

// IndirectBranchInRegion implements rule R2: an indirect branch or indirect call inside a
// constant-time region. The rule is structural, not taint-conditioned: the misprediction risk of
// an indirect transfer exists whether or not its target depends on secret data, so the finding is
// emitted even for an entirely public target. An indirect branch whose destination set resolves
// statically to a single block is treated as a direct branch and exempt.
func IndirectBranchInRegion(t *Target) []report.Finding {
	var findings []report.Finding
	for _, b := range t.Fn.Blocks {
		if !t.Regions.InsideConstantTime(b.ID) {
			continue
		}
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			switch instr.Op {
			case ir.OpIndirectBranch:
				_, res := regions.ResolveIndirect(instr)
				if res == regions.ResolvedSingle {
					continue
				}
				detail := fmt.Sprintf("indirect branch with %d candidate targets inside constant-time region", len(instr.Targets))
				if res == regions.Unresolved {
					detail = "indirect branch with no statically determinable target bound inside constant-time region"
				}
				findings = append(findings, t.newFinding(
					report.RuleIndirectBranchInRegion,
					report.High,
					b.ID,
					i,
					[]ir.ValueID{instr.In[0]},
					detail,
				))
			case ir.OpIndirectCall:
				findings = append(findings, t.newFinding(
					report.RuleIndirectBranchInRegion,
					report.High,
					b.ID,
					i,
					[]ir.ValueID{instr.In[0]},
					"indirect call inside constant-time region",
				))
			}
		}
	}
	return findings
}
