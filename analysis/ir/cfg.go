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

package ir

// CFG is the control-flow information of a single validated function: successor and predecessor
// maps, a reverse postorder, and dominator and postdominator trees. A CFG is immutable once built.
type CFG struct {
	fn *Function

	succs [][]BlockID
	preds [][]BlockID

	// rpo is a reverse postorder over the blocks; rpoNum[b] is b's position in it.
	rpo    []BlockID
	rpoNum []int

	// idom[b] is the immediate dominator of b, or -1 for the entry block.
	idom []BlockID

	// ipdom[b] is the immediate postdominator of b, or -1 for exit blocks (blocks whose immediate
	// postdominator is the virtual exit).
	ipdom []BlockID
}

// NewCFG builds the control-flow information for a validated function. The function must have
// passed Program.Validate; NewCFG assumes all blocks are reachable.
func NewCFG(fn *Function) *CFG {
	n := len(fn.Blocks)
	c := &CFG{
		fn:    fn,
		succs: make([][]BlockID, n),
		preds: make([][]BlockID, n),
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Terminator().Successors() {
			c.succs[b.ID] = append(c.succs[b.ID], s)
			c.preds[s] = append(c.preds[s], b.ID)
		}
	}

	c.rpo = reversePostorder(n, 0, c.succs)
	c.rpoNum = make([]int, n)
	for i, b := range c.rpo {
		c.rpoNum[b] = i
	}

	c.idom = dominatorTree(n, []BlockID{0}, c.succs, c.preds)

	// Postdominators: same computation on the reversed graph, rooted at all exit blocks. A block
	// with no successors (return, or an indirect branch with no known candidates) is an exit.
	var exits []BlockID
	for _, b := range fn.Blocks {
		if len(c.succs[b.ID]) == 0 {
			exits = append(exits, b.ID)
		}
	}
	c.ipdom = dominatorTree(n, exits, c.preds, c.succs)

	return c
}

// Func returns the function the CFG was built for.
func (c *CFG) Func() *Function { return c.fn }

// Succs returns the successors of b.
func (c *CFG) Succs(b BlockID) []BlockID { return c.succs[b] }

// Preds returns the predecessors of b.
func (c *CFG) Preds(b BlockID) []BlockID { return c.preds[b] }

// ReversePostorder returns the blocks in reverse postorder from the entry.
func (c *CFG) ReversePostorder() []BlockID { return c.rpo }

// ImmediateDominator returns the immediate dominator of b, or -1 for the entry.
func (c *CFG) ImmediateDominator(b BlockID) BlockID { return c.idom[b] }

// ImmediatePostDominator returns the immediate postdominator of b, or -1 when it is the virtual
// exit.
func (c *CFG) ImmediatePostDominator(b BlockID) BlockID { return c.ipdom[b] }

// Dominates reports whether a dominates b (reflexively).
func (c *CFG) Dominates(a, b BlockID) bool {
	for b >= 0 {
		if a == b {
			return true
		}
		b = c.idom[b]
	}
	return false
}

// PostDominates reports whether a postdominates b (reflexively): every path from b to function
// exit passes through a.
func (c *CFG) PostDominates(a, b BlockID) bool {
	for b >= 0 {
		if a == b {
			return true
		}
		b = c.ipdom[b]
	}
	return false
}

// IsBackEdge reports whether the edge from -> to is a back edge, i.e. its destination dominates
// its origin. Back edges are the loop-forming edges of a reducible CFG.
func (c *CFG) IsBackEdge(from, to BlockID) bool {
	return c.Dominates(to, from)
}

// ReachableFrom returns the set of blocks reachable from b, including b, optionally stopping at
// (and excluding) the block stop. Pass stop = -1 for plain reachability.
func (c *CFG) ReachableFrom(b BlockID, stop BlockID) map[BlockID]bool {
	seen := map[BlockID]bool{b: true}
	work := []BlockID{b}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range c.succs[cur] {
			if s == stop || seen[s] {
				continue
			}
			seen[s] = true
			work = append(work, s)
		}
	}
	return seen
}

// reversePostorder returns a reverse postorder of the blocks reachable from root.
func reversePostorder(n int, root BlockID, succs [][]BlockID) []BlockID {
	seen := make([]bool, n)
	var post []BlockID
	var visit func(BlockID)
	visit = func(b BlockID) {
		seen[b] = true
		for _, s := range succs[b] {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(root)
	rpo := make([]BlockID, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// dominatorTree computes immediate dominators with the Cooper-Harvey-Kennedy iterative algorithm.
// The computation is rooted at a virtual node with edges to each of roots, so the same code serves
// both the dominator tree (single root, the entry) and the postdominator tree (reversed edges,
// every exit block a root). The returned tree maps each block to its immediate dominator, with -1
// for blocks whose immediate dominator is the virtual root. Blocks not reachable from any root map
// to -1 as well; validation guarantees there are none for the forward direction.
func dominatorTree(n int, roots []BlockID, succs [][]BlockID, preds [][]BlockID) []BlockID {
	const virtual = -1

	// Reverse postorder over the graph augmented with the virtual root.
	seen := make([]bool, n)
	var post []BlockID
	var visit func(BlockID)
	visit = func(b BlockID) {
		seen[b] = true
		for _, s := range succs[b] {
			if !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	for _, r := range roots {
		if !seen[r] {
			visit(r)
		}
	}
	rpo := make([]BlockID, len(post))
	rpoNum := make([]int, n)
	for i := range rpoNum {
		rpoNum[i] = -1
	}
	for i, b := range post {
		rpo[len(post)-1-i] = b
		rpoNum[b] = len(post) - 1 - i
	}

	idom := make([]BlockID, n)
	processed := make([]bool, n)
	for i := range idom {
		idom[i] = virtual
	}
	isRoot := make([]bool, n)
	for _, r := range roots {
		isRoot[r] = true
		processed[r] = true
	}

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			if a == virtual || b == virtual {
				return virtual
			}
			for a != b && rpoNum[a] > rpoNum[b] {
				a = idom[a]
				if a == virtual {
					return virtual
				}
			}
			for b != a && rpoNum[b] > rpoNum[a] {
				b = idom[b]
				if b == virtual {
					return virtual
				}
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if isRoot[b] {
				continue
			}
			newIdom := BlockID(virtual)
			first := true
			for _, p := range preds[b] {
				if rpoNum[p] < 0 || !processed[p] {
					continue
				}
				if first {
					newIdom = p
					first = false
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if first {
				continue
			}
			processed[b] = true
			if idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}
