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

// Package analysistest provides compact constructors for building IR programs in tests. The
// builders assign function, block and memory ids from declaration order, mirroring what
// irio.Decode produces.
package analysistest

import "github.com/awslabs/ar-ct-tools/analysis/ir"

// FuncBuilder accumulates the blocks and contour of one test function.
type FuncBuilder struct {
	fn *ir.Function
}

// NewFunc starts a function builder.
func NewFunc(name string) *FuncBuilder {
	return &FuncBuilder{fn: &ir.Function{Name: name}}
}

// Param appends a parameter with the given defined value and sensitivity.
func (b *FuncBuilder) Param(name string, v ir.ValueID, s ir.Sensitivity) *FuncBuilder {
	b.fn.Params = append(b.fn.Params, ir.Param{Value: v, Name: name, Sens: s})
	return b
}

// Results declares the sensitivity of the return positions.
func (b *FuncBuilder) Results(s ...ir.Sensitivity) *FuncBuilder {
	b.fn.Results = s
	return b
}

// Block appends a block without a region marker.
func (b *FuncBuilder) Block(instrs ...ir.Instruction) *FuncBuilder {
	return b.MarkedBlock(ir.MarkNone, instrs...)
}

// MarkedBlock appends a block with the given region marker.
func (b *FuncBuilder) MarkedBlock(m ir.Marker, instrs ...ir.Instruction) *FuncBuilder {
	b.fn.Blocks = append(b.fn.Blocks, &ir.BasicBlock{
		ID:     ir.BlockID(len(b.fn.Blocks)),
		Marker: m,
		Instrs: instrs,
	})
	return b
}

// Build returns the function. The function id is assigned by NewProgram.
func (b *FuncBuilder) Build() *ir.Function {
	return b.fn
}

// NewProgram assembles a program, assigning function and memory ids from order.
func NewProgram(mems []*ir.MemLoc, fns ...*ir.Function) *ir.Program {
	p := &ir.Program{Mems: mems}
	for i, m := range mems {
		m.ID = ir.MemID(i)
	}
	for i, f := range fns {
		f.ID = ir.FuncID(i)
		p.Funcs = append(p.Funcs, f)
	}
	return p
}

// Mem declares a memory location; the id is assigned by NewProgram.
func Mem(name string, class ir.StorageClass, secret bool) *ir.MemLoc {
	return &ir.MemLoc{Name: name, Class: class, Secret: secret}
}

// Compute returns a pure computation defining out from ins.
func Compute(out ir.ValueID, ins ...ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpCompute, In: ins, Out: out, Mem: ir.NoMem, Callee: -1}
}

// Load returns a load of the known location mem into out.
func Load(out ir.ValueID, mem ir.MemID) ir.Instruction {
	return ir.Instruction{Op: ir.OpLoad, Out: out, Mem: mem, Callee: -1}
}

// LoadAddr returns a load through the computed address addr into out.
func LoadAddr(out ir.ValueID, addr ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpLoad, In: []ir.ValueID{addr}, Out: out, Mem: ir.NoMem, Callee: -1}
}

// Store returns a store of v to the known location mem.
func Store(mem ir.MemID, v ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpStore, In: []ir.ValueID{v}, Out: ir.NoValue, Mem: mem, Callee: -1}
}

// StoreAddr returns a store of v through the computed address addr.
func StoreAddr(v ir.ValueID, addr ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpStore, In: []ir.ValueID{v, addr}, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1}
}

// Branch returns a conditional branch on cond.
func Branch(cond ir.ValueID, then, els ir.BlockID) ir.Instruction {
	return ir.Instruction{Op: ir.OpBranch, In: []ir.ValueID{cond}, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1, Then: then, Else: els}
}

// Jump returns an unconditional jump to target.
func Jump(target ir.BlockID) ir.Instruction {
	return ir.Instruction{Op: ir.OpJump, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1, Target: target}
}

// IBranch returns an indirect branch through v with the given candidate targets.
func IBranch(v ir.ValueID, targets ...ir.BlockID) ir.Instruction {
	return ir.Instruction{Op: ir.OpIndirectBranch, In: []ir.ValueID{v}, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1, Targets: targets}
}

// Ret returns a return of vals.
func Ret(vals ...ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpReturn, In: vals, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1}
}

// Call returns a direct call to callee with args, defining out (pass ir.NoValue for none).
func Call(out ir.ValueID, callee ir.FuncID, args ...ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpCall, In: args, Out: out, Mem: ir.NoMem, Callee: callee}
}

// ICall returns an indirect call through target with args, defining out (pass ir.NoValue for none).
func ICall(out ir.ValueID, target ir.ValueID, args ...ir.ValueID) ir.Instruction {
	in := append([]ir.ValueID{target}, args...)
	return ir.Instruction{Op: ir.OpIndirectCall, In: in, Out: out, Mem: ir.NoMem, Callee: -1}
}

// Scrub returns a scrub of v.
func Scrub(v ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpScrub, In: []ir.ValueID{v}, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1}
}

// Declassify returns a declassification of v.
func Declassify(v ir.ValueID) ir.Instruction {
	return ir.Instruction{Op: ir.OpDeclassify, In: []ir.ValueID{v}, Out: ir.NoValue, Mem: ir.NoMem, Callee: -1}
}
