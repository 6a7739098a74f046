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

// SecretDependentPath implements rule R1: a conditional branch whose condition is Secret or
// Unknown and whose successor paths are statically distinguishable, one arm containing a
// non-constant-time-shaped operation while another does not. A tainted branch whose arms are
// indistinguishable in shape leaks nothing through the path choice itself; the mixed pair is what
// makes the timing observable.
func SecretDependentPath(t *Target) []report.Finding {
	var findings []report.Finding
	for _, b := range t.Fn.Blocks {
		term := b.Terminator()
		if term.Op != ir.OpBranch || term.Then == term.Else {
			continue
		}
		if t.Taint.Label(term.In[0]) < taint.Unknown {
			continue
		}

		join := t.CFG.ImmediatePostDominator(b.ID)
		thenShaped := t.armNonConstantTime(term.Then, b.ID, join)
		elseShaped := t.armNonConstantTime(term.Else, b.ID, join)
		if thenShaped == elseShaped {
			continue
		}

		arm := "then"
		if elseShaped {
			arm = "else"
		}
		findings = append(findings, t.newFinding(
			report.RuleSecretDependentPath,
			report.Critical,
			b.ID,
			len(b.Instrs)-1,
			t.Taint.Chain(term.In[0]),
			fmt.Sprintf("branch on %s condition selects between constant-time and non-constant-time paths (%s arm is non-constant-time-shaped)",
				t.Taint.Label(term.In[0]), arm),
		))
	}
	return findings
}

// armNonConstantTime reports whether the branch arm starting at start contains a
// non-constant-time-shaped operation. The arm is the set of blocks reachable from start without
// passing through the branch's immediate postdominator (the join point) and without re-entering
// the branch block itself.
func (t *Target) armNonConstantTime(start ir.BlockID, branch ir.BlockID, join ir.BlockID) bool {
	if start == join {
		return false
	}
	arm := t.CFG.ReachableFrom(start, join)
	for blk := range arm {
		if blk == branch {
			continue
		}
		if t.blockNonConstantTime(t.Fn.Blocks[blk]) {
			return true
		}
	}
	return false
}

// blockNonConstantTime reports whether the block contains an operation with data-dependent
// timing: a branch on tainted data, an indirect branch or call, or a call to a callee classified
// non-constant-time-shaped.
func (t *Target) blockNonConstantTime(b *ir.BasicBlock) bool {
	for i := range b.Instrs {
		instr := &b.Instrs[i]
		switch instr.Op {
		case ir.OpBranch:
			if t.Taint.Label(instr.In[0]) >= taint.Unknown {
				return true
			}
		case ir.OpIndirectBranch, ir.OpIndirectCall:
			return true
		case ir.OpCall:
			if t.Shapes.NonConstantTime(instr.Callee) {
				return true
			}
		}
	}
	return false
}
