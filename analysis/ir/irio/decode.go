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

// Package irio decodes the serialized function-graph interchange format produced by the IR front
// ends. The wire format is yaml: memory locations and functions by name, instructions with
// symbolic opcodes, callees and memory locations referenced by name. Decode resolves all names to
// ids and returns a *ir.Program; structural validation beyond name resolution is left to
// Program.Validate.
package irio

import (
	"fmt"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"gopkg.in/yaml.v3"
)

type programDoc struct {
	Memory    []memDoc  `yaml:"memory"`
	Functions []funcDoc `yaml:"functions"`
}

type memDoc struct {
	Name   string `yaml:"name"`
	Class  string `yaml:"class"`
	Secret bool   `yaml:"secret"`
}

type funcDoc struct {
	Name    string     `yaml:"name"`
	Params  []paramDoc `yaml:"params"`
	Results []string   `yaml:"results"`
	Blocks  []blockDoc `yaml:"blocks"`
}

type paramDoc struct {
	Name        string `yaml:"name"`
	Value       int    `yaml:"value"`
	Sensitivity string `yaml:"sensitivity"`
}

type blockDoc struct {
	Marker string     `yaml:"marker"`
	Instrs []instrDoc `yaml:"instrs"`
}

type instrDoc struct {
	Op      string `yaml:"op"`
	In      []int  `yaml:"in"`
	Out     int    `yaml:"out"`
	Mem     string `yaml:"mem"`
	Callee  string `yaml:"callee"`
	Then    *int   `yaml:"then"`
	Else    *int   `yaml:"else"`
	Target  *int   `yaml:"target"`
	Targets []int  `yaml:"targets"`
}

var opcodes = map[string]ir.Op{
	"compute":    ir.OpCompute,
	"load":       ir.OpLoad,
	"store":      ir.OpStore,
	"branch":     ir.OpBranch,
	"jump":       ir.OpJump,
	"ibranch":    ir.OpIndirectBranch,
	"return":     ir.OpReturn,
	"call":       ir.OpCall,
	"icall":      ir.OpIndirectCall,
	"scrub":      ir.OpScrub,
	"declassify": ir.OpDeclassify,
}

var storageClasses = map[string]ir.StorageClass{
	"stack":  ir.Stack,
	"heap":   ir.Heap,
	"global": ir.Global,
}

var sensitivities = map[string]ir.Sensitivity{
	"":        ir.SensPublic,
	"public":  ir.SensPublic,
	"unknown": ir.SensUnknown,
	"secret":  ir.SensSecret,
}

// Decode parses the serialized function graph in data and resolves it into an ir.Program. Unknown
// opcodes, storage classes, sensitivities, duplicate names and dangling name references are
// reported as *ir.MalformedInputError; nothing is analyzed for a document that fails to decode.
func Decode(data []byte) (*ir.Program, error) {
	var doc programDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ir.MalformedInputError{Block: -1, Msg: fmt.Sprintf("cannot parse document: %v", err)}
	}

	prog := &ir.Program{}

	memIDs := map[string]ir.MemID{}
	for i, m := range doc.Memory {
		if m.Name == "" {
			return nil, &ir.MalformedInputError{Block: -1, Msg: fmt.Sprintf("memory location %d has no name", i)}
		}
		if _, dup := memIDs[m.Name]; dup {
			return nil, &ir.MalformedInputError{Block: -1, Msg: fmt.Sprintf("duplicate memory location %q", m.Name)}
		}
		class, ok := storageClasses[m.Class]
		if !ok {
			return nil, &ir.MalformedInputError{Block: -1,
				Msg: fmt.Sprintf("memory location %q has unknown storage class %q", m.Name, m.Class)}
		}
		id := ir.MemID(i)
		memIDs[m.Name] = id
		prog.Mems = append(prog.Mems, &ir.MemLoc{ID: id, Name: m.Name, Class: class, Secret: m.Secret})
	}

	funcIDs := map[string]ir.FuncID{}
	for i, f := range doc.Functions {
		if f.Name == "" {
			return nil, &ir.MalformedInputError{Block: -1, Msg: fmt.Sprintf("function %d has no name", i)}
		}
		if _, dup := funcIDs[f.Name]; dup {
			return nil, &ir.MalformedInputError{Func: f.Name, Block: -1, Msg: "duplicate function name"}
		}
		funcIDs[f.Name] = ir.FuncID(i)
	}

	for i, f := range doc.Functions {
		fn, err := decodeFunction(ir.FuncID(i), f, memIDs, funcIDs)
		if err != nil {
			return nil, err
		}
		prog.Funcs = append(prog.Funcs, fn)
	}
	return prog, nil
}

func decodeFunction(id ir.FuncID, doc funcDoc, memIDs map[string]ir.MemID, funcIDs map[string]ir.FuncID) (*ir.Function, error) {
	fn := &ir.Function{ID: id, Name: doc.Name}

	for _, p := range doc.Params {
		sens, ok := sensitivities[p.Sensitivity]
		if !ok {
			return nil, &ir.MalformedInputError{Func: doc.Name, Block: -1,
				Msg: fmt.Sprintf("parameter %q has unknown sensitivity %q", p.Name, p.Sensitivity)}
		}
		fn.Params = append(fn.Params, ir.Param{Value: ir.ValueID(p.Value), Name: p.Name, Sens: sens})
	}
	for _, r := range doc.Results {
		sens, ok := sensitivities[r]
		if !ok {
			return nil, &ir.MalformedInputError{Func: doc.Name, Block: -1,
				Msg: fmt.Sprintf("unknown result sensitivity %q", r)}
		}
		fn.Results = append(fn.Results, sens)
	}

	for bi, b := range doc.Blocks {
		block := &ir.BasicBlock{ID: ir.BlockID(bi)}
		switch b.Marker {
		case "":
			block.Marker = ir.MarkNone
		case "region-start":
			block.Marker = ir.MarkRegionStart
		case "region-end":
			block.Marker = ir.MarkRegionEnd
		default:
			return nil, &ir.MalformedInputError{Func: doc.Name, Block: block.ID,
				Msg: fmt.Sprintf("unknown region marker %q", b.Marker)}
		}
		for _, in := range b.Instrs {
			instr, err := decodeInstr(doc.Name, block.ID, in, memIDs, funcIDs)
			if err != nil {
				return nil, err
			}
			block.Instrs = append(block.Instrs, instr)
		}
		fn.Blocks = append(fn.Blocks, block)
	}
	return fn, nil
}

func decodeInstr(fname string, bid ir.BlockID, doc instrDoc, memIDs map[string]ir.MemID, funcIDs map[string]ir.FuncID) (ir.Instruction, error) {
	op, ok := opcodes[doc.Op]
	if !ok {
		return ir.Instruction{}, &ir.MalformedInputError{Func: fname, Block: bid,
			Msg: fmt.Sprintf("unknown opcode %q", doc.Op)}
	}

	instr := ir.Instruction{
		Op:     op,
		Out:    ir.ValueID(doc.Out),
		Mem:    ir.NoMem,
		Callee: -1,
	}
	for _, in := range doc.In {
		instr.In = append(instr.In, ir.ValueID(in))
	}

	switch op {
	case ir.OpLoad, ir.OpStore:
		if doc.Mem != "" {
			m, ok := memIDs[doc.Mem]
			if !ok {
				return ir.Instruction{}, &ir.MalformedInputError{Func: fname, Block: bid,
					Msg: fmt.Sprintf("reference to unknown memory location %q", doc.Mem)}
			}
			instr.Mem = m
		}
	case ir.OpCall:
		callee, ok := funcIDs[doc.Callee]
		if !ok {
			return ir.Instruction{}, &ir.MalformedInputError{Func: fname, Block: bid,
				Msg: fmt.Sprintf("call to unknown function %q", doc.Callee)}
		}
		instr.Callee = callee
	case ir.OpBranch:
		if doc.Then == nil || doc.Else == nil {
			return ir.Instruction{}, &ir.MalformedInputError{Func: fname, Block: bid,
				Msg: "branch is missing a then or else target"}
		}
		instr.Then = ir.BlockID(*doc.Then)
		instr.Else = ir.BlockID(*doc.Else)
	case ir.OpJump:
		if doc.Target == nil {
			return ir.Instruction{}, &ir.MalformedInputError{Func: fname, Block: bid,
				Msg: "jump is missing its target"}
		}
		instr.Target = ir.BlockID(*doc.Target)
	case ir.OpIndirectBranch:
		for _, t := range doc.Targets {
			instr.Targets = append(instr.Targets, ir.BlockID(t))
		}
	}
	return instr, nil
}
