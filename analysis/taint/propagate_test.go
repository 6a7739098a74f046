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

package taint_test

import (
	"testing"

	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/taint"
	at "github.com/awslabs/ar-ct-tools/internal/analysistest"
)

// propagate validates the program and runs propagation over its first function.
func propagate(t *testing.T, prog *ir.Program) *taint.Labeling {
	t.Helper()
	if err := prog.Validate(); err != nil {
		t.Fatalf("program should validate: %v", err)
	}
	fn := prog.Funcs[0]
	return taint.Propagate(prog, fn, ir.NewCFG(fn))
}

func TestJoinIsMax(t *testing.T) {
	cases := []struct {
		a, b, want taint.Label
	}{
		{taint.Public, taint.Public, taint.Public},
		{taint.Public, taint.Unknown, taint.Unknown},
		{taint.Unknown, taint.Public, taint.Unknown},
		{taint.Unknown, taint.Secret, taint.Secret},
		{taint.Secret, taint.Public, taint.Secret},
	}
	for _, c := range cases {
		if got := c.a.Join(c.b); got != c.want {
			t.Errorf("%v.Join(%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestComputeJoinsInputs(t *testing.T) {
	f := at.NewFunc("f").
		Param("pub", 1, ir.SensPublic).
		Param("key", 2, ir.SensSecret).
		Block(
			at.Compute(3, 1, 2),
			at.Compute(4, 1, 1),
			at.Ret(3),
		).Build()
	lb := propagate(t, at.NewProgram(nil, f))

	if got := lb.Label(3); got != taint.Secret {
		t.Errorf("label(v3) = %v, want secret", got)
	}
	if got := lb.Label(4); got != taint.Public {
		t.Errorf("label(v4) = %v, want public", got)
	}
	chain := lb.Chain(3)
	if len(chain) != 2 || chain[0] != 2 || chain[1] != 3 {
		t.Errorf("chain(v3) = %v, want [2 3]", chain)
	}
	if lb.Chain(4) != nil {
		t.Errorf("chain of a public value should be nil")
	}
}

func TestLoadFromSecretLocationIsOrigin(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("key_schedule", ir.Stack, true)}
	f := at.NewFunc("f").
		Block(
			at.Load(1, 0),
			at.Ret(1),
		).Build()
	lb := propagate(t, at.NewProgram(mems, f))

	if got := lb.Label(1); got != taint.Secret {
		t.Errorf("label(v1) = %v, want secret", got)
	}
	chain := lb.Chain(1)
	if len(chain) != 1 || chain[0] != 1 {
		t.Errorf("chain(v1) = %v, want the load itself as origin", chain)
	}
}

func TestStoreThenLoadCarriesProvenance(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("buf", ir.Stack, false)}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Store(0, 1),
			at.Load(2, 0),
			at.Ret(2),
		).Build()
	lb := propagate(t, at.NewProgram(mems, f))

	if got := lb.Label(2); got != taint.Secret {
		t.Errorf("label(v2) = %v, want secret", got)
	}
	chain := lb.Chain(2)
	if len(chain) != 2 || chain[0] != 1 || chain[1] != 2 {
		t.Errorf("chain(v2) = %v, want [1 2]", chain)
	}
}

func TestDistinctLocationsDoNotAlias(t *testing.T) {
	mems := []*ir.MemLoc{
		at.Mem("scratch", ir.Stack, false),
		at.Mem("counter", ir.Stack, false),
	}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Store(0, 1),
			at.Load(2, 1),
			at.Ret(2),
		).Build()
	lb := propagate(t, at.NewProgram(mems, f))

	if got := lb.Label(2); got != taint.Public {
		t.Errorf("label(v2) = %v, want public: the locations have distinct bases", got)
	}
}

func TestComputedAddressLoadDependsOnSecretPresence(t *testing.T) {
	// No secret exists anywhere: a load through a computed public address is public.
	f := at.NewFunc("f").
		Param("idx", 1, ir.SensPublic).
		Block(
			at.LoadAddr(2, 1),
			at.Ret(2),
		).Build()
	lb := propagate(t, at.NewProgram(nil, f))
	if got := lb.Label(2); got != taint.Public {
		t.Errorf("label(v2) = %v, want public with no secret in the program", got)
	}

	// With a declared-secret location the same load can no longer be proven disjoint from it.
	mems := []*ir.MemLoc{at.Mem("key_schedule", ir.Stack, true)}
	g := at.NewFunc("g").
		Param("idx", 1, ir.SensPublic).
		Block(
			at.LoadAddr(2, 1),
			at.Ret(2),
		).Build()
	lb = propagate(t, at.NewProgram(mems, g))
	if got := lb.Label(2); got != taint.Unknown {
		t.Errorf("label(v2) = %v, want unknown once a secret location exists", got)
	}
}

func TestComputedAddressStoreRaisesKnownLoads(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("buf", ir.Stack, false)}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Param("addr", 2, ir.SensPublic).
		Block(
			at.StoreAddr(1, 2),
			at.Load(3, 0),
			at.Ret(3),
		).Build()
	lb := propagate(t, at.NewProgram(mems, f))

	// The write may have aliased buf, so the load cannot stay public; it is not known to be the
	// secret either.
	if got := lb.Label(3); got != taint.Unknown {
		t.Errorf("label(v3) = %v, want unknown after an aliasing store", got)
	}
}

func TestDeclassifyPinsPublicAndAudits(t *testing.T) {
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Compute(2, 1),
			at.Declassify(2),
			at.Compute(3, 2),
			at.Ret(3),
		).Build()
	lb := propagate(t, at.NewProgram(nil, f))

	if got := lb.Label(2); got != taint.Public {
		t.Errorf("label(v2) = %v, want public after declassification", got)
	}
	if got := lb.Label(3); got != taint.Public {
		t.Errorf("label(v3) = %v, want public downstream of declassification", got)
	}
	if len(lb.Audit) != 1 {
		t.Fatalf("audit log has %d records, want 1", len(lb.Audit))
	}
	rec := lb.Audit[0]
	if rec.Value != 2 || rec.Block != 0 || rec.InstrIndex != 1 {
		t.Errorf("audit record = %+v, want value 2 at block 0, instr 1", rec)
	}
}

func TestCallResultSensitivity(t *testing.T) {
	f := at.NewFunc("f").
		Param("msg", 1, ir.SensPublic).
		Block(
			at.Call(2, 1, 1),
			at.Ret(2),
		).Build()
	derive := at.NewFunc("derive_key").
		Param("in", 1, ir.SensPublic).
		Results(ir.SensSecret).
		Block(at.Ret(1)).Build()
	lb := propagate(t, at.NewProgram(nil, f, derive))

	if got := lb.Label(2); got != taint.Secret {
		t.Errorf("label(v2) = %v, want secret from the callee contour", got)
	}
}

func TestIndirectCallResultIsUnknown(t *testing.T) {
	f := at.NewFunc("f").
		Param("fp", 1, ir.SensPublic).
		Block(
			at.ICall(2, 1),
			at.Ret(2),
		).Build()
	lb := propagate(t, at.NewProgram(nil, f))

	if got := lb.Label(2); got != taint.Unknown {
		t.Errorf("label(v2) = %v, want unknown for an indirect call result", got)
	}
}

func TestLoopReachesFixpoint(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("acc", ir.Stack, false)}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Param("cond", 2, ir.SensPublic).
		Block(at.Jump(1)).
		Block(
			at.Load(3, 0),
			at.Compute(4, 3, 1),
			at.Store(0, 4),
			at.Branch(2, 1, 2),
		).
		Block(at.Ret(4)).Build()
	lb := propagate(t, at.NewProgram(mems, f))

	// The secret flows into the accumulator on the first iteration and back out of the load on
	// the second.
	if got := lb.Label(3); got != taint.Secret {
		t.Errorf("label(v3) = %v, want secret through the loop-carried store", got)
	}
	if got := lb.Label(4); got != taint.Secret {
		t.Errorf("label(v4) = %v, want secret", got)
	}
}
