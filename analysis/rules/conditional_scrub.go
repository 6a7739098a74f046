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
	"github.com/awslabs/ar-ct-tools/analysis/report"
	"github.com/awslabs/ar-ct-tools/analysis/taint"
)

// ConditionalScrub implements rule R3: a scrub of secret-tainted state that some control-flow path
// can skip. A scrub is unconditional only when its block postdominates the function entry and
// every block defining a secret value that reaches the scrub operand; otherwise some execution
// leaves the secret live, and the finding's chain records the secret values that may escape along
// with the condition of the branch that can skip the scrub.
//
// One finding is emitted per scrub instruction, not per escaping value.
func ConditionalScrub(t *Target) []report.Finding {
	var findings []report.Finding
	for _, b := range t.Fn.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			if instr.Op != ir.OpScrub {
				continue
			}
			v := instr.In[0]
			if t.Taint.Label(v) != taint.Secret {
				continue
			}

			chain := t.Taint.Chain(v)
			skippable := !t.CFG.PostDominates(b.ID, 0)
			for _, w := range chain {
				if d, ok := t.Taint.DefBlock(w); ok && !t.CFG.PostDominates(b.ID, d) {
					skippable = true
				}
			}
			if !skippable {
				continue
			}

			detail := "scrub of secret value is not executed on all paths"
			if bypass, cond, ok := t.findBypassingBranch(b.ID); ok {
				detail = fmt.Sprintf("scrub of secret value can be skipped by the branch in block %d", bypass)
				chain = append(chain, cond)
			}
			findings = append(findings, t.newFinding(
				report.RuleConditionalScrub,
				report.Critical,
				b.ID,
				i,
				chain,
				detail,
			))
		}
	}
	return findings
}

// findBypassingBranch locates a conditional branch that can skip the scrub block: a block from
// which the scrub is reachable but which the scrub does not postdominate, so one of its arms
// escapes. The first such block in block order is returned with its branch condition.
func (t *Target) findBypassingBranch(scrub ir.BlockID) (ir.BlockID, ir.ValueID, bool) {
	for _, b := range t.Fn.Blocks {
		term := b.Terminator()
		if term.Op != ir.OpBranch {
			continue
		}
		if t.CFG.PostDominates(scrub, b.ID) {
			continue
		}
		if t.CFG.ReachableFrom(b.ID, -1)[scrub] {
			return b.ID, term.In[0], true
		}
	}
	return -1, ir.NoValue, false
}
