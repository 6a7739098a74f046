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

// Package shape classifies functions as constant-time-shaped or not.
//
// A function is non-constant-time-shaped if its own body contains an operation whose timing can
// depend on data: a conditional branch on a Secret or Unknown value, a loop whose bound depends on
// such a value, an indirect branch or call, or a call to a function itself classified
// non-constant-time-shaped. The classification is bottom-up over the call graph: strongly
// connected components are ordered callee-first and each component inherits the classes of its
// callees. Recursive components resolve conservatively to non-constant-time-shaped.
//
// The table is built in one sequential pass before any per-function detector concurrency starts,
// and is immutable afterwards, so detectors read it without locking.
package shape

import (
	"fmt"

	"github.com/awslabs/ar-ct-tools/analysis/config"
	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/taint"
	"github.com/awslabs/ar-ct-tools/internal/graphutil"
	"github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Class is the shape classification of a function.
type Class uint8

const (
	// ConstantTimeShaped means no operation in the function (or its callees) has data-dependent
	// timing, as far as the structural classification can tell.
	ConstantTimeShaped Class = iota

	// NonConstantTimeShaped means the function contains, or transitively calls, an operation with
	// data-dependent timing.
	NonConstantTimeShaped
)

func (c Class) String() string {
	switch c {
	case ConstantTimeShaped:
		return "constant-time-shaped"
	case NonConstantTimeShaped:
		return "non-constant-time-shaped"
	default:
		return "invalid"
	}
}

// Warning is a non-fatal anomaly encountered during classification. Warnings degrade the result
// conservatively, they never drop it.
type Warning struct {
	// Funcs are the names of the functions involved.
	Funcs []string

	// Msg describes the anomaly.
	Msg string
}

// Table is the shape classification of a whole program. A Table is immutable once built.
type Table struct {
	classes []Class

	// Warnings lists the recursion-limit anomalies hit during the build, in call-graph order.
	Warnings []Warning
}

// Class returns the classification of f.
func (t *Table) Class(f ir.FuncID) Class {
	return t.classes[f]
}

// NonConstantTime reports whether f is classified non-constant-time-shaped.
func (t *Table) NonConstantTime(f ir.FuncID) bool {
	return t.classes[f] == NonConstantTimeShaped
}

// Classify builds the shape table for prog. labelings is indexed by FuncID and must cover every
// function. The pass is sequential: callees are fully classified before their callers, using the
// condensation of the call graph.
func Classify(prog *ir.Program, labelings []*taint.Labeling, cfg *config.Config, log *config.LogGroup) *Table {
	t := &Table{classes: make([]Class, len(prog.Funcs))}

	cg := graphutil.NewCallGraph(prog)
	stats := graph.Check(cg)
	log.Debugf("call graph: size %d, loops %d, isolated %d", stats.Size, stats.Loops, stats.Isolated)

	comps := graph.StrongComponents(cg)
	compOf := make([]int, len(prog.Funcs))
	for ci, comp := range comps {
		for _, v := range comp {
			compOf[v] = ci
		}
	}

	// Condensation of the call graph, topologically sorted so that processing the reversed order
	// sees callees before callers.
	cond := simple.NewDirectedGraph()
	for ci := range comps {
		cond.AddNode(simple.Node(ci))
	}
	for u, outs := range cg.Edges {
		for v := range outs {
			cu, cv := compOf[u], compOf[v]
			if cu != cv && cond.Edge(int64(cu), int64(cv)) == nil {
				cond.SetEdge(cond.NewEdge(simple.Node(cu), simple.Node(cv)))
			}
		}
	}
	order, err := topo.Sort(cond)
	if err != nil {
		// The condensation of a directed graph is acyclic, so Sort cannot fail on it.
		panic(fmt.Sprintf("shape: condensation not acyclic: %v", err))
	}

	for i := len(order) - 1; i >= 0; i-- {
		comp := comps[order[i].ID()]
		recursive := len(comp) > 1
		if !recursive && cg.Edges[int64(comp[0])][int64(comp[0])] {
			recursive = true
		}

		if recursive {
			t.resolveRecursive(cg, comp, cfg, log)
			continue
		}

		f := ir.FuncID(comp[0])
		class := t.localShape(prog.Funcs[f], labelings[f], cfg)
		if class == ConstantTimeShaped {
			for callee := range cg.Edges[int64(f)] {
				if t.classes[callee] == NonConstantTimeShaped {
					class = NonConstantTimeShaped
					break
				}
			}
		}
		t.classes[f] = class
	}
	return t
}

// resolveRecursive conservatively classifies every member of a recursive call-graph component as
// non-constant-time-shaped. The elementary cycles are enumerated, bounded by the configured
// recursion depth bound, for the warning detail; hitting the bound is itself reported.
func (t *Table) resolveRecursive(cg graphutil.CGraph, comp []int, cfg *config.Config, log *config.LogGroup) {
	var names []string
	keys := make([]int64, len(comp))
	for i, v := range comp {
		keys[i] = int64(v)
		names = append(names, cg.IDMap[int64(v)].String())
		t.classes[v] = NonConstantTimeShaped
	}

	cycles, complete := graphutil.FindElementaryCycles(graphutil.Subgraph(cg, keys), cfg.RecursionDepthBound)
	msg := fmt.Sprintf("recursive call cycle (%d elementary cycles) resolved as non-constant-time-shaped", len(cycles))
	if !complete || len(comp) > cfg.RecursionDepthBound {
		msg = fmt.Sprintf("recursion limit exceeded: cycle enumeration stopped at bound %d, resolved as non-constant-time-shaped",
			cfg.RecursionDepthBound)
	}
	t.Warnings = append(t.Warnings, Warning{Funcs: names, Msg: msg})
	log.Warnf("%s: %v", msg, names)
}

// localShape classifies the body of a single function, ignoring callees. A branch on tainted data
// is non-constant-time whether it guards a loop or a plain conditional, so no distinct back-edge
// check is needed.
func (t *Table) localShape(fn *ir.Function, lb *taint.Labeling, cfg *config.Config) Class {
	if cfg.IsDeclaredNonConstantTime(fn.Name) {
		return NonConstantTimeShaped
	}
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			switch instr.Op {
			case ir.OpBranch:
				if lb.Label(instr.In[0]) >= taint.Unknown {
					return NonConstantTimeShaped
				}
			case ir.OpIndirectBranch, ir.OpIndirectCall:
				return NonConstantTimeShaped
			}
		}
	}
	return ConstantTimeShaped
}
