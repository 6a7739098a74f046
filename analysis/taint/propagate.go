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

// This file implements the forward propagation fixpoint. The tracker holds the mutable state of
// one function's propagation; the transfer functions for each opcode live in transferInstr. Blocks
// are visited in reverse postorder, and the whole function is revisited until no label changes.

// tracker contains the state of the taint propagation over a single function. The memory model
// state (memState, memCarrier, ambient, floor, secretSeen) only ever moves up the lattice, which
// keeps the fixpoint monotone.
type tracker struct {
	prog *ir.Program
	fn   *ir.Function
	cfg  *ir.CFG
	out  *Labeling

	// memState is the label of the contents of each known location; memCarrier is the value whose
	// store raised it, for provenance.
	memState   map[ir.MemID]Label
	memCarrier map[ir.MemID]ir.ValueID

	// ambient is the join of all labels stored through computed addresses, and ambientCarrier the
	// value that raised it.
	ambient        Label
	ambientCarrier ir.ValueID

	// floor is joined into every load from a known location. It is raised when a write through a
	// computed address may have aliased known locations.
	floor Label

	// secretSeen records that some location is known to hold a secret, either by declaration or by
	// an observed store. While false, loads through computed addresses stay public.
	secretSeen bool

	// declassified values are pinned to Public for the whole propagation.
	declassified map[ir.ValueID]bool

	// changeFlag keeps track of changes in the analysis state during a sweep.
	changeFlag bool
}

// Propagate computes the labeling of fn. The function must have passed validation and cfg must be
// its control-flow information. Propagate never mutates fn or prog.
func Propagate(prog *ir.Program, fn *ir.Function, cfg *ir.CFG) *Labeling {
	t := &tracker{
		prog: prog,
		fn:   fn,
		cfg:  cfg,
		out: &Labeling{
			fn:       fn,
			labels:   map[ir.ValueID]Label{},
			parent:   map[ir.ValueID]ir.ValueID{},
			defBlock: map[ir.ValueID]ir.BlockID{},
		},
		memState:       map[ir.MemID]Label{},
		memCarrier:     map[ir.MemID]ir.ValueID{},
		ambientCarrier: ir.NoValue,
		declassified:   map[ir.ValueID]bool{},
	}

	for _, m := range prog.Mems {
		if m.Secret {
			t.secretSeen = true
		}
	}

	t.prescan()

	// Seed the parameters from the sensitivity contour. Parameters are origins: their provenance
	// chain terminates at themselves.
	for _, p := range fn.Params {
		t.setLabel(p.Value, FromSensitivity(p.Sens), ir.NoValue)
	}

	t.changeFlag = true
	for t.changeFlag {
		t.changeFlag = false
		for _, bid := range cfg.ReversePostorder() {
			b := fn.Blocks[bid]
			for i := range b.Instrs {
				t.transferInstr(&b.Instrs[i])
			}
		}
	}
	return t.out
}

// prescan records definition sites, pins declassified values and emits the audit log. All of this
// is independent of the fixpoint and done once.
func (t *tracker) prescan() {
	for _, p := range t.fn.Params {
		t.out.defBlock[p.Value] = 0
	}
	for _, b := range t.fn.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			if instr.Out != ir.NoValue {
				t.out.defBlock[instr.Out] = b.ID
			}
			if instr.Op == ir.OpDeclassify {
				t.declassified[instr.In[0]] = true
				t.out.Audit = append(t.out.Audit, AuditRecord{
					Func:       t.fn.ID,
					Block:      b.ID,
					InstrIndex: i,
					Value:      instr.In[0],
				})
			}
		}
	}
}

// setLabel joins l into the label of v and records the provenance edge when the label rises.
// Declassified values are pinned to Public.
func (t *tracker) setLabel(v ir.ValueID, l Label, parent ir.ValueID) {
	if t.declassified[v] {
		return
	}
	old := t.out.labels[v]
	joined := old.Join(l)
	if joined == old {
		return
	}
	t.out.labels[v] = joined
	t.out.parent[v] = parent
	t.changeFlag = true
}

// labelOf returns the current label of v.
func (t *tracker) labelOf(v ir.ValueID) Label {
	return t.out.labels[v]
}

// joinInputs returns the join of the labels of the inputs, together with the input carrying the
// highest label, for provenance.
func (t *tracker) joinInputs(in []ir.ValueID) (Label, ir.ValueID) {
	l := Public
	carrier := ir.NoValue
	for _, v := range in {
		lv := t.labelOf(v)
		if lv > l {
			l = lv
			carrier = v
		}
	}
	return l, carrier
}

func (t *tracker) transferInstr(instr *ir.Instruction) {
	switch instr.Op {
	case ir.OpCompute:
		l, carrier := t.joinInputs(instr.In)
		t.setLabel(instr.Out, l, carrier)

	case ir.OpLoad:
		t.transferLoad(instr)

	case ir.OpStore:
		t.transferStore(instr)

	case ir.OpCall:
		l, carrier := t.joinInputs(instr.In)
		if instr.Out != ir.NoValue {
			// The callee's declared result sensitivity is part of the contour, and calls are
			// otherwise conservative: any tainted argument taints the result.
			callee := t.prog.Funcs[instr.Callee]
			if len(callee.Results) > 0 {
				l = l.Join(FromSensitivity(callee.Results[0]))
			}
			t.setLabel(instr.Out, l, carrier)
		}

	case ir.OpIndirectCall:
		l, carrier := t.joinInputs(instr.In)
		if instr.Out != ir.NoValue {
			// No callee contour is available; the result provenance is unknown.
			t.setLabel(instr.Out, l.Join(Unknown), carrier)
		}

	case ir.OpDeclassify:
		// Pinned in prescan; the label map still needs the entry so Label reports Public
		// explicitly rather than by absence.
		t.out.labels[instr.In[0]] = Public

	case ir.OpBranch, ir.OpJump, ir.OpIndirectBranch, ir.OpReturn, ir.OpScrub:
		// No value defined.
	}
}

func (t *tracker) transferLoad(instr *ir.Instruction) {
	if instr.Mem == ir.NoMem {
		// Load through a computed address. The loaded value depends on the address, it may be
		// anything stored through a computed address, and once a secret lives anywhere it cannot
		// be proven distinct from it.
		addrLabel, addrCarrier := t.joinInputs(instr.In)
		l := addrLabel.Join(t.ambient)
		carrier := addrCarrier
		if t.ambient >= l && t.ambientCarrier != ir.NoValue {
			carrier = t.ambientCarrier
		}
		if t.secretSeen {
			l = l.Join(Unknown)
		}
		t.setLabel(instr.Out, l, carrier)
		return
	}

	m := t.prog.Mems[instr.Mem]
	l := t.memState[instr.Mem].Join(t.floor)
	carrier := t.memCarrier[instr.Mem]
	if carrier == 0 {
		carrier = ir.NoValue
	}
	if m.Secret {
		// A load from a declared-secret location is an origin: the chain terminates here.
		t.setLabel(instr.Out, Secret, ir.NoValue)
		return
	}
	t.setLabel(instr.Out, l, carrier)
}

func (t *tracker) transferStore(instr *ir.Instruction) {
	stored := instr.In[0]
	l := t.labelOf(stored)

	if instr.Mem == ir.NoMem {
		if l > t.ambient {
			t.ambient = l
			t.ambientCarrier = stored
			t.changeFlag = true
		}
		if l >= Unknown && t.floor < Unknown {
			// A write through an unknown address may alias any known location.
			t.floor = Unknown
			t.changeFlag = true
		}
		if l == Secret && !t.secretSeen {
			t.secretSeen = true
			t.changeFlag = true
		}
		return
	}

	if l > t.memState[instr.Mem] {
		t.memState[instr.Mem] = l
		t.memCarrier[instr.Mem] = stored
		t.changeFlag = true
	}
	if l == Secret && !t.secretSeen {
		t.secretSeen = true
		t.changeFlag = true
	}
}
