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

// SecretInGlobalStorage implements rule R4: a store of a Secret value to a location with global or
// static storage class, independent of control flow. Global storage outlives the function and is
// reachable by speculation gadgets anywhere in the process, so the store itself is the violation.
func SecretInGlobalStorage(t *Target) []report.Finding {
	var findings []report.Finding
	for _, b := range t.Fn.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			if instr.Op != ir.OpStore || instr.Mem == ir.NoMem {
				continue
			}
			loc := t.Prog.Mems[instr.Mem]
			if loc.Class != ir.Global {
				continue
			}
			if t.Taint.Label(instr.In[0]) != taint.Secret {
				continue
			}
			findings = append(findings, t.newFinding(
				report.RuleSecretInGlobalStorage,
				report.High,
				b.ID,
				i,
				t.Taint.Chain(instr.In[0]),
				fmt.Sprintf("secret value stored to global location %q", loc.Name),
			))
		}
	}
	return findings
}
