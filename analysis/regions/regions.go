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

// Package regions classifies basic blocks by constant-time region membership, and resolves the
// destination sets of indirect branches.
//
// A region is the set of blocks whose nearest dominating marker, the block's own marker included,
// is a region-start. A region-end marker names the first block after its region. Regions do not
// nest: opening a region inside another one is a malformed input, never a silent override, because
// silently resolving ambiguous region boundaries is exactly the kind of mispredicted assumption
// this tool exists to flag.
package regions

import (
	"github.com/awslabs/ar-ct-tools/analysis/ir"
)

// Info is the region classification of one function.
type Info struct {
	fn  *ir.Function
	cfg *ir.CFG

	// start[b] is the region-start block whose region contains b, or -1 when b is outside any
	// region.
	start []ir.BlockID
}

// Classify computes region membership for every block of fn. It returns a *ir.MalformedInputError
// for nested region openings, unmatched region-end markers, and regions entered other than through
// their start block.
func Classify(fn *ir.Function, cfg *ir.CFG) (*Info, error) {
	info := &Info{fn: fn, cfg: cfg, start: make([]ir.BlockID, len(fn.Blocks))}

	for _, b := range fn.Blocks {
		info.start[b.ID] = nearestStart(fn, cfg, b.ID)
	}

	// A region opened while the nearest enclosing marker is still a region-start is a nested
	// region.
	for _, b := range fn.Blocks {
		if b.Marker != ir.MarkRegionStart {
			continue
		}
		idom := cfg.ImmediateDominator(b.ID)
		if idom >= 0 && nearestStart(fn, cfg, idom) >= 0 {
			return nil, &ir.MalformedInputError{Func: fn.Name, Block: b.ID,
				Msg: "region-start inside an open constant-time region"}
		}
	}

	// An end marker must close some region: its immediate dominator chain must reach a start.
	for _, b := range fn.Blocks {
		if b.Marker != ir.MarkRegionEnd {
			continue
		}
		idom := cfg.ImmediateDominator(b.ID)
		if idom < 0 || nearestStart(fn, cfg, idom) < 0 {
			return nil, &ir.MalformedInputError{Func: fn.Name, Block: b.ID,
				Msg: "region-end without an open constant-time region"}
		}
	}

	// A region has a single entry: no block inside it other than the start may have a predecessor
	// outside it.
	for _, b := range fn.Blocks {
		s := info.start[b.ID]
		if s < 0 || b.ID == s {
			continue
		}
		for _, p := range cfg.Preds(b.ID) {
			if info.start[p] != s {
				return nil, &ir.MalformedInputError{Func: fn.Name, Block: b.ID,
					Msg: "constant-time region entered other than through its start block"}
			}
		}
	}

	return info, nil
}

// nearestStart walks up the dominator tree from b, b included, and returns the region-start block
// whose region contains b, or -1. A region-end marker on a block excludes that block itself: the
// end block is the first block after its region.
func nearestStart(fn *ir.Function, cfg *ir.CFG, b ir.BlockID) ir.BlockID {
	for cur := b; cur >= 0; cur = cfg.ImmediateDominator(cur) {
		switch fn.Blocks[cur].Marker {
		case ir.MarkRegionStart:
			return cur
		case ir.MarkRegionEnd:
			return -1
		}
	}
	return -1
}

// InsideConstantTime reports whether b lies inside a constant-time region.
func (i *Info) InsideConstantTime(b ir.BlockID) bool {
	return i.start[b] >= 0
}

// Start returns the start block of the region containing b, or -1 when b is outside any region.
func (i *Info) Start(b ir.BlockID) ir.BlockID {
	return i.start[b]
}

// Resolution classifies the destination set of an indirect branch.
type Resolution int

const (
	// ResolvedSingle means the destination set is statically exactly one block; the branch is
	// treated as direct.
	ResolvedSingle Resolution = iota

	// MultipleTargets means the destination set is statically known but not singular.
	MultipleTargets

	// Unresolved means no static bound on the destination set exists. Unresolved targets are
	// treated conservatively as violating wherever an indirect branch would violate.
	Unresolved
)

func (r Resolution) String() string {
	switch r {
	case ResolvedSingle:
		return "resolved-single"
	case MultipleTargets:
		return "multiple-targets"
	case Unresolved:
		return "unresolved"
	default:
		return "invalid"
	}
}

// ResolveIndirect classifies the destination set of an indirect branch instruction. The caller
// must pass an OpIndirectBranch instruction.
func ResolveIndirect(instr *ir.Instruction) (ir.BlockID, Resolution) {
	switch len(instr.Targets) {
	case 0:
		return -1, Unresolved
	case 1:
		return instr.Targets[0], ResolvedSingle
	default:
		return -1, MultipleTargets
	}
}
