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

package ir_test

import (
	"testing"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
	at "github.com/awslabs/ar-ct-tools/internal/analysistest"
)

// diamond builds
//
//	b0 -> b1, b2
//	b1 -> b3
//	b2 -> b3
//	b3: return
func diamond(t *testing.T) *ir.CFG {
	t.Helper()
	prog := at.NewProgram(nil,
		at.NewFunc("f").
			Param("c", 1, ir.SensPublic).
			Block(at.Branch(1, 1, 2)).
			Block(at.Jump(3)).
			Block(at.Jump(3)).
			Block(at.Ret()).
			Build())
	if err := prog.Validate(); err != nil {
		t.Fatalf("invalid test function: %v", err)
	}
	return ir.NewCFG(prog.Funcs[0])
}

func TestCFGDominance(t *testing.T) {
	c := diamond(t)

	tests := []struct {
		a, b ir.BlockID
		want bool
	}{
		{0, 0, true},
		{0, 1, true},
		{0, 2, true},
		{0, 3, true},
		{1, 3, false},
		{2, 3, false},
		{3, 1, false},
	}
	for _, tt := range tests {
		if got := c.Dominates(tt.a, tt.b); got != tt.want {
			t.Errorf("Dominates(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if idom := c.ImmediateDominator(3); idom != 0 {
		t.Errorf("ImmediateDominator(3) = %d, want 0", idom)
	}
}

func TestCFGPostDominance(t *testing.T) {
	c := diamond(t)

	tests := []struct {
		a, b ir.BlockID
		want bool
	}{
		{3, 0, true},
		{3, 1, true},
		{3, 2, true},
		{1, 0, false},
		{2, 0, false},
	}
	for _, tt := range tests {
		if got := c.PostDominates(tt.a, tt.b); got != tt.want {
			t.Errorf("PostDominates(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if ipdom := c.ImmediatePostDominator(0); ipdom != 3 {
		t.Errorf("ImmediatePostDominator(0) = %d, want 3", ipdom)
	}
}

func TestCFGEarlyReturnHasNoPostDominatingExit(t *testing.T) {
	// b0 -> b1 (return), b2 (return): neither arm postdominates the entry.
	prog := at.NewProgram(nil,
		at.NewFunc("f").
			Param("c", 1, ir.SensPublic).
			Block(at.Branch(1, 1, 2)).
			Block(at.Ret()).
			Block(at.Ret()).
			Build())
	if err := prog.Validate(); err != nil {
		t.Fatalf("invalid test function: %v", err)
	}
	c := ir.NewCFG(prog.Funcs[0])

	if c.PostDominates(1, 0) || c.PostDominates(2, 0) {
		t.Errorf("no single return block should postdominate the entry")
	}
	if c.ImmediatePostDominator(0) != -1 {
		t.Errorf("ImmediatePostDominator(0) = %d, want -1 (virtual exit)", c.ImmediatePostDominator(0))
	}
}

func TestCFGBackEdge(t *testing.T) {
	// b0 -> b1; b1 -> b1 (loop), b2
	prog := at.NewProgram(nil,
		at.NewFunc("f").
			Param("c", 1, ir.SensPublic).
			Block(at.Jump(1)).
			Block(at.Branch(1, 1, 2)).
			Block(at.Ret()).
			Build())
	if err := prog.Validate(); err != nil {
		t.Fatalf("invalid test function: %v", err)
	}
	c := ir.NewCFG(prog.Funcs[0])

	if !c.IsBackEdge(1, 1) {
		t.Errorf("self edge on block 1 should be a back edge")
	}
	if c.IsBackEdge(0, 1) {
		t.Errorf("entry edge should not be a back edge")
	}
}

func TestCFGReachableFrom(t *testing.T) {
	c := diamond(t)

	all := c.ReachableFrom(0, -1)
	if len(all) != 4 {
		t.Errorf("ReachableFrom(0) = %v, want all four blocks", all)
	}

	// Stopping at the join keeps the arm only.
	arm := c.ReachableFrom(1, 3)
	if len(arm) != 1 || !arm[1] {
		t.Errorf("ReachableFrom(1, stop=3) = %v, want {1}", arm)
	}
}
