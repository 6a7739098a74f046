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

package taint

import "github.com/awslabs/ar-ct-tools/analysis/ir"

// AuditRecord records one declassification marker encountered during propagation. Declassification
// is not a finding, but every use of it must be auditable.
type AuditRecord struct {
	// Func is the function containing the marker.
	Func ir.FuncID

	// Block and InstrIndex locate the marker.
	Block      ir.BlockID
	InstrIndex int

	// Value is the value that was downgraded to public.
	Value ir.ValueID
}

// Labeling is the result of taint propagation over one function: a Label for every value, the
// provenance edges needed to reconstruct dependency chains, and the declassification audit log.
type Labeling struct {
	fn *ir.Function

	labels map[ir.ValueID]Label

	// parent maps a tainted value to the input value its label came from; origins map to NoValue.
	parent map[ir.ValueID]ir.ValueID

	// defBlock maps every value to its defining block; parameters are defined in the entry block.
	defBlock map[ir.ValueID]ir.BlockID

	// Audit holds one record per declassify marker in the function, in block order.
	Audit []AuditRecord
}

// Func returns the function the labeling was computed for.
func (lb *Labeling) Func() *ir.Function { return lb.fn }

// Label returns the computed label of v. Values never defined are Public; validation rejects uses
// of such values before propagation runs.
func (lb *Labeling) Label(v ir.ValueID) Label {
	return lb.labels[v]
}

// DefBlock returns the block defining v and true, or false if v is not defined in the function.
func (lb *Labeling) DefBlock(v ir.ValueID) (ir.BlockID, bool) {
	b, ok := lb.defBlock[v]
	return b, ok
}

// Chain returns the provenance chain of v, ordered from the originating source to v itself. For a
// Public value the chain is nil: findings are only emitted for demonstrable chains, and a public
// value demonstrates nothing.
func (lb *Labeling) Chain(v ir.ValueID) []ir.ValueID {
	if lb.labels[v] == Public {
		return nil
	}
	var rev []ir.ValueID
	seen := map[ir.ValueID]bool{}
	for cur := v; cur != ir.NoValue && !seen[cur]; cur = lb.parent[cur] {
		seen[cur] = true
		rev = append(rev, cur)
	}
	chain := make([]ir.ValueID, len(rev))
	for i, x := range rev {
		chain[len(rev)-1-i] = x
	}
	return chain
}
