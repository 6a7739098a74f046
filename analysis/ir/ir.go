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

// Package ir defines the intermediate representation the analyzer consumes. The IR is produced by an
// external front end (a disassembler or compiler plugin) and is immutable for the lifetime of an
// analysis run: no analysis pass mutates a Program, a Function or any of their components.
//
// A Program is a set of Functions plus the memory locations they reference. Each Function is an
// ordered list of BasicBlocks in SSA form: every Value has exactly one defining site, which is either
// a parameter or the output of an instruction. Blocks carry optional constant-time region markers;
// the region semantics are computed by the regions package, this package only validates structure.
package ir

import "fmt"

// FuncID identifies a function within a Program. IDs are indices into Program.Funcs.
type FuncID int

// BlockID identifies a basic block within a function. IDs are indices into Function.Blocks, and
// block 0 is always the entry block.
type BlockID int

// ValueID identifies an SSA value within a function. Valid ids are strictly positive; NoValue marks
// the absence of an output.
type ValueID int

// NoValue is the ValueID of instructions that do not define a value.
const NoValue ValueID = 0

// MemID identifies a memory location within a Program. IDs are indices into Program.Mems. NoMem
// marks loads and stores through a computed address, for which no location is statically known.
type MemID int

// NoMem marks an alias-ambiguous memory access (address computed at run time).
const NoMem MemID = -1

// StorageClass classifies where a memory location lives.
type StorageClass int

const (
	// Stack is local, automatic storage.
	Stack StorageClass = iota
	// Heap is dynamically allocated storage.
	Heap
	// Global is global or static storage. Secret data must never be stored there.
	Global
)

func (s StorageClass) String() string {
	switch s {
	case Stack:
		return "stack"
	case Heap:
		return "heap"
	case Global:
		return "global"
	default:
		return fmt.Sprintf("storageclass(%d)", int(s))
	}
}

// Sensitivity is the externally declared sensitivity of a function parameter, return position or
// memory location. It is an input to the analysis, never inferred.
type Sensitivity int

const (
	// SensPublic declares data that carries no secret.
	SensPublic Sensitivity = iota
	// SensUnknown declares data of undetermined provenance.
	SensUnknown
	// SensSecret declares data derived from key material.
	SensSecret
)

func (s Sensitivity) String() string {
	switch s {
	case SensPublic:
		return "public"
	case SensUnknown:
		return "unknown"
	case SensSecret:
		return "secret"
	default:
		return fmt.Sprintf("sensitivity(%d)", int(s))
	}
}

// Op is an instruction opcode.
type Op int

const (
	// OpCompute is a pure computation: Out is a function of In, with no side effect.
	OpCompute Op = iota
	// OpLoad reads Mem (or a computed address when Mem == NoMem, with the address value in In) into Out.
	OpLoad
	// OpStore writes In[0] to Mem (or to the computed address In[1] when Mem == NoMem).
	OpStore
	// OpBranch is a conditional branch on In[0] with successors Then and Else. Terminator.
	OpBranch
	// OpJump is an unconditional jump to Target. Terminator.
	OpJump
	// OpIndirectBranch branches to the address in In[0]; Targets lists the statically known
	// candidate destinations, and an empty Targets means the destination set is unknown. Terminator.
	OpIndirectBranch
	// OpReturn returns In (possibly empty) to the caller. Terminator.
	OpReturn
	// OpCall calls Callee with arguments In, result in Out.
	OpCall
	// OpIndirectCall calls through the function address In[0] with arguments In[1:], result in Out.
	OpIndirectCall
	// OpScrub is the explicit clear-this-value intrinsic applied to In[0].
	OpScrub
	// OpDeclassify downgrades In[0] to public. An audit record is emitted for every declassification.
	OpDeclassify
)

var opNames = map[Op]string{
	OpCompute:        "compute",
	OpLoad:           "load",
	OpStore:          "store",
	OpBranch:         "branch",
	OpJump:           "jump",
	OpIndirectBranch: "ibranch",
	OpReturn:         "return",
	OpCall:           "call",
	OpIndirectCall:   "icall",
	OpScrub:          "scrub",
	OpDeclassify:     "declassify",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsTerminator reports whether the opcode terminates a basic block.
func (o Op) IsTerminator() bool {
	switch o {
	case OpBranch, OpJump, OpIndirectBranch, OpReturn:
		return true
	default:
		return false
	}
}

// Marker is an optional constant-time region marker carried by a basic block.
type Marker int

const (
	// MarkNone is the zero marker.
	MarkNone Marker = iota
	// MarkRegionStart opens a constant-time region at the marked block.
	MarkRegionStart
	// MarkRegionEnd closes a constant-time region; the marked block is the first block after it.
	MarkRegionEnd
)

func (m Marker) String() string {
	switch m {
	case MarkNone:
		return "none"
	case MarkRegionStart:
		return "region-start"
	case MarkRegionEnd:
		return "region-end"
	default:
		return fmt.Sprintf("marker(%d)", int(m))
	}
}

// Instruction is a single IR instruction. Which fields are meaningful depends on Op; unused block
// and memory references are left at their zero or sentinel values by the front end.
type Instruction struct {
	// Op is the opcode.
	Op Op

	// In are the input values, in operand order.
	In []ValueID

	// Out is the defined value, or NoValue when the instruction defines nothing.
	Out ValueID

	// Mem is the referenced memory location for loads and stores, or NoMem for computed addresses.
	Mem MemID

	// Callee is the callee for OpCall.
	Callee FuncID

	// Then and Else are the successors of OpBranch.
	Then BlockID
	Else BlockID

	// Target is the successor of OpJump.
	Target BlockID

	// Targets is the statically known candidate destination set of OpIndirectBranch.
	Targets []BlockID
}

// BasicBlock is an ordered sequence of instructions ending in exactly one terminator.
type BasicBlock struct {
	// ID is the block's index in its function.
	ID BlockID

	// Marker is the block's region marker, if any.
	Marker Marker

	// Instrs are the block's instructions. The last instruction is the terminator.
	Instrs []Instruction
}

// Terminator returns the block's terminating instruction. It panics on an empty block; Validate
// rejects such blocks before any analysis runs.
func (b *BasicBlock) Terminator() *Instruction {
	return &b.Instrs[len(b.Instrs)-1]
}

// Param is a function parameter together with its declared sensitivity.
type Param struct {
	// Value is the SSA value the parameter defines.
	Value ValueID

	// Name is the parameter's name, used in reports only.
	Name string

	// Sens is the declared sensitivity.
	Sens Sensitivity
}

// Function is one analyzable function: an ordered set of basic blocks plus the declared
// sensitivity contour of its parameters and return positions.
type Function struct {
	// ID is the function's index in its program.
	ID FuncID

	// Name is the function's symbolic name.
	Name string

	// Params is the ordered parameter list.
	Params []Param

	// Results is the declared sensitivity of each return position.
	Results []Sensitivity

	// Blocks is the ordered block list; Blocks[0] is the entry block.
	Blocks []*BasicBlock
}

// Entry returns the entry block of the function.
func (f *Function) Entry() *BasicBlock {
	return f.Blocks[0]
}

// MemLoc is a memory location referenced by load and store instructions.
type MemLoc struct {
	// ID is the location's index in its program.
	ID MemID

	// Name is the location's symbolic name, used in reports only.
	Name string

	// Class is the location's storage class.
	Class StorageClass

	// Secret declares that the location's initial contents are secret. Loads from such a location
	// are taint sources.
	Secret bool
}

// Program is a whole analyzable unit: all functions plus the memory locations they reference.
type Program struct {
	// Funcs is the ordered function list, indexed by FuncID.
	Funcs []*Function

	// Mems is the ordered memory location list, indexed by MemID.
	Mems []*MemLoc
}

// FuncByName returns the function with the given name, or nil if there is none.
func (p *Program) FuncByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Successors returns the successor blocks of the instruction when it is a terminator. For an
// indirect branch the statically known candidates are returned, which may be empty.
func (i *Instruction) Successors() []BlockID {
	switch i.Op {
	case OpBranch:
		if i.Then == i.Else {
			return []BlockID{i.Then}
		}
		return []BlockID{i.Then, i.Else}
	case OpJump:
		return []BlockID{i.Target}
	case OpIndirectBranch:
		return i.Targets
	default:
		return nil
	}
}
