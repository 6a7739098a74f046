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

import "fmt"

// MalformedInputError reports a structural violation in the input IR. Any MalformedInputError is
// fatal for the whole run: no findings are reported for a program that fails validation.
type MalformedInputError struct {
	// Func is the name of the offending function, or "" for program-level violations.
	Func string

	// Block is the offending block, or -1 when no single block is at fault.
	Block BlockID

	// Msg describes the violation.
	Msg string
}

func (e *MalformedInputError) Error() string {
	switch {
	case e.Func == "":
		return fmt.Sprintf("malformed input: %s", e.Msg)
	case e.Block < 0:
		return fmt.Sprintf("malformed input in %s: %s", e.Func, e.Msg)
	default:
		return fmt.Sprintf("malformed input in %s, block %d: %s", e.Func, e.Block, e.Msg)
	}
}

func malformed(fn string, block BlockID, format string, args ...any) *MalformedInputError {
	return &MalformedInputError{Func: fn, Block: block, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the structural integrity of the program: block and value references resolve,
// every block has exactly one terminator in final position, every block is reachable from its
// function's entry, and SSA single-definition holds. It returns a *MalformedInputError describing
// the first violation found, or nil.
//
// Validate does not check region marker nesting; that requires dominance information and is done by
// regions.Classify, with the same fatal error type.
func (p *Program) Validate() error {
	for i, m := range p.Mems {
		if m == nil {
			return malformed("", -1, "memory location %d is nil", i)
		}
		if m.ID != MemID(i) {
			return malformed("", -1, "memory location %q has id %d, expected %d", m.Name, m.ID, i)
		}
	}
	for i, f := range p.Funcs {
		if f == nil {
			return malformed("", -1, "function %d is nil", i)
		}
		if f.ID != FuncID(i) {
			return malformed(f.Name, -1, "function has id %d, expected %d", f.ID, i)
		}
		if err := p.validateFunction(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) validateFunction(f *Function) error {
	if len(f.Blocks) == 0 {
		return malformed(f.Name, -1, "function has no blocks")
	}

	defs := map[ValueID]bool{}
	for _, param := range f.Params {
		if param.Value == NoValue {
			return malformed(f.Name, -1, "parameter %q defines no value", param.Name)
		}
		if defs[param.Value] {
			return malformed(f.Name, -1, "value %d has multiple definitions", param.Value)
		}
		defs[param.Value] = true
	}

	// First pass: block structure and definitions.
	for i, b := range f.Blocks {
		if b == nil {
			return malformed(f.Name, BlockID(i), "block is nil")
		}
		if b.ID != BlockID(i) {
			return malformed(f.Name, BlockID(i), "block has id %d, expected %d", b.ID, i)
		}
		if len(b.Instrs) == 0 {
			return malformed(f.Name, b.ID, "block is empty, missing terminator")
		}
		for j := range b.Instrs {
			instr := &b.Instrs[j]
			last := j == len(b.Instrs)-1
			if instr.Op.IsTerminator() != last {
				if last {
					return malformed(f.Name, b.ID, "block does not end in a terminator (%s)", instr.Op)
				}
				return malformed(f.Name, b.ID, "terminator %s before end of block", instr.Op)
			}
			if err := p.validateInstr(f, b, j, defs); err != nil {
				return err
			}
		}
	}

	// Second pass: uses resolve to a definition and are not self-referential.
	for _, b := range f.Blocks {
		for j := range b.Instrs {
			instr := &b.Instrs[j]
			for _, in := range instr.In {
				if in == NoValue || !defs[in] {
					return malformed(f.Name, b.ID, "use of undefined value %d", in)
				}
				if in == instr.Out {
					return malformed(f.Name, b.ID, "value %d is self-referential", in)
				}
			}
		}
	}

	return f.checkReachability()
}

// validateInstr checks per-opcode operand shape, target ranges and single definition. It records
// the instruction's output in defs.
func (p *Program) validateInstr(f *Function, b *BasicBlock, idx int, defs map[ValueID]bool) error {
	instr := &b.Instrs[idx]
	nblocks := BlockID(len(f.Blocks))
	inRange := func(t BlockID) bool { return t >= 0 && t < nblocks }

	switch instr.Op {
	case OpCompute:
		if instr.Out == NoValue {
			return malformed(f.Name, b.ID, "compute defines no value")
		}
	case OpLoad:
		if instr.Out == NoValue {
			return malformed(f.Name, b.ID, "load defines no value")
		}
		if instr.Mem == NoMem {
			if len(instr.In) != 1 {
				return malformed(f.Name, b.ID, "load through computed address needs exactly one address operand")
			}
		} else if int(instr.Mem) >= len(p.Mems) || instr.Mem < 0 {
			return malformed(f.Name, b.ID, "load references unknown memory location %d", instr.Mem)
		}
	case OpStore:
		if len(instr.In) == 0 {
			return malformed(f.Name, b.ID, "store has no stored operand")
		}
		if instr.Mem == NoMem {
			if len(instr.In) != 2 {
				return malformed(f.Name, b.ID, "store through computed address needs value and address operands")
			}
		} else if int(instr.Mem) >= len(p.Mems) || instr.Mem < 0 {
			return malformed(f.Name, b.ID, "store references unknown memory location %d", instr.Mem)
		}
		if instr.Out != NoValue {
			return malformed(f.Name, b.ID, "store must not define a value")
		}
	case OpBranch:
		if len(instr.In) != 1 {
			return malformed(f.Name, b.ID, "branch condition must be a single value")
		}
		if !inRange(instr.Then) || !inRange(instr.Else) {
			return malformed(f.Name, b.ID, "branch target out of range")
		}
	case OpJump:
		if !inRange(instr.Target) {
			return malformed(f.Name, b.ID, "jump target %d out of range", instr.Target)
		}
	case OpIndirectBranch:
		if len(instr.In) != 1 {
			return malformed(f.Name, b.ID, "indirect branch needs exactly one target operand")
		}
		for _, t := range instr.Targets {
			if !inRange(t) {
				return malformed(f.Name, b.ID, "indirect branch candidate %d out of range", t)
			}
		}
	case OpReturn:
		// Any arity.
	case OpCall:
		if int(instr.Callee) >= len(p.Funcs) || instr.Callee < 0 {
			return malformed(f.Name, b.ID, "call to unknown function %d", instr.Callee)
		}
	case OpIndirectCall:
		if len(instr.In) == 0 {
			return malformed(f.Name, b.ID, "indirect call needs a target operand")
		}
	case OpScrub:
		if len(instr.In) != 1 {
			return malformed(f.Name, b.ID, "scrub needs exactly one operand")
		}
		if instr.Out != NoValue {
			return malformed(f.Name, b.ID, "scrub must not define a value")
		}
	case OpDeclassify:
		if len(instr.In) != 1 {
			return malformed(f.Name, b.ID, "declassify needs exactly one operand")
		}
		if instr.Out != NoValue {
			return malformed(f.Name, b.ID, "declassify must not define a value")
		}
	default:
		return malformed(f.Name, b.ID, "unknown opcode %d", int(instr.Op))
	}

	if instr.Out != NoValue {
		if defs[instr.Out] {
			return malformed(f.Name, b.ID, "value %d has multiple definitions", instr.Out)
		}
		defs[instr.Out] = true
	}
	return nil
}

// checkReachability rejects blocks unreachable from the entry. The front end never emits dead
// blocks, so an unreachable block indicates a truncated or corrupted graph.
func (f *Function) checkReachability() error {
	seen := make([]bool, len(f.Blocks))
	work := []BlockID{0}
	seen[0] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range f.Blocks[b].Terminator().Successors() {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			return malformed(f.Name, BlockID(i), "block unreachable from entry")
		}
	}
	return nil
}
