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

package analysis_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/awslabs/ar-ct-tools/analysis"
	"github.com/awslabs/ar-ct-tools/analysis/config"
	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/ir/irio"
	"github.com/awslabs/ar-ct-tools/analysis/report"
	at "github.com/awslabs/ar-ct-tools/internal/analysistest"
)

func run(t *testing.T, cfg *config.Config, prog *ir.Program) (analysis.RunResult, error) {
	t.Helper()
	log := config.NewLogGroup(cfg)
	log.SetAllOutput(io.Discard)
	return analysis.Analyze(context.Background(), cfg, log, prog)
}

func TestAnalyzeCleanProgram(t *testing.T) {
	f := at.NewFunc("xor_round").
		Param("key", 1, ir.SensSecret).
		Param("msg", 2, ir.SensPublic).
		Block(
			at.Compute(3, 1, 2),
			at.Ret(3),
		).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(nil, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if res.State != analysis.Reported {
		t.Errorf("state = %v, want reported", res.State)
	}
	if len(res.Findings) != 0 {
		t.Errorf("clean program produced findings: %v", res.Findings)
	}
}

func TestAnalyzeSecretDependentPath(t *testing.T) {
	f := at.NewFunc("select_path").
		Param("key", 1, ir.SensSecret).
		Block(at.Branch(1, 1, 2)).
		Block(
			at.Call(2, 1, 1),
			at.Jump(3),
		).
		Block(at.Jump(3)).
		Block(at.Ret(1)).Build()
	slow := at.NewFunc("slow_reduce").
		Param("x", 1, ir.SensSecret).
		Block(at.Branch(1, 1, 2)).
		Block(at.Jump(2)).
		Block(at.Ret(1)).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(nil, f, slow))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %v", len(res.Findings), res.Findings)
	}
	fd := res.Findings[0]
	if fd.Rule != report.RuleSecretDependentPath || fd.Severity != report.Critical {
		t.Errorf("finding = %v, want critical secret-dependent-path", fd)
	}
	if fd.FuncName != "select_path" || fd.Block != 0 {
		t.Errorf("finding located at %s block %d, want select_path block 0", fd.FuncName, fd.Block)
	}
}

func TestAnalyzeConditionalScrub(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("key_schedule", ir.Stack, true)}
	f := at.NewFunc("expand").
		Param("done", 1, ir.SensPublic).
		Block(
			at.Load(2, 0),
			at.Branch(1, 1, 2),
		).
		Block(at.Ret(1)).
		Block(
			at.Scrub(2),
			at.Ret(1),
		).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(mems, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %v", len(res.Findings), res.Findings)
	}
	fd := res.Findings[0]
	if fd.Rule != report.RuleConditionalScrub || fd.Severity != report.Critical {
		t.Errorf("finding = %v, want critical conditional-scrub", fd)
	}
	if len(fd.Chain) < 2 {
		t.Errorf("chain %v should carry the secret and the bypassing condition", fd.Chain)
	}
}

func TestAnalyzeSecretInGlobalStorage(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("round_keys", ir.Global, false)}
	f := at.NewFunc("cache_keys").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Store(0, 1),
			at.Ret(1),
		).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(mems, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %v", len(res.Findings), res.Findings)
	}
	fd := res.Findings[0]
	if fd.Rule != report.RuleSecretInGlobalStorage || fd.Severity != report.High {
		t.Errorf("finding = %v, want high-severity global-storage", fd)
	}
	if len(fd.Chain) != 1 || fd.Chain[0] != 1 {
		t.Errorf("chain %v, want the parameter origin [1]", fd.Chain)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	mems := []*ir.MemLoc{
		at.Mem("key_schedule", ir.Stack, true),
		at.Mem("round_keys", ir.Global, false),
	}
	f := at.NewFunc("mixed").
		Param("done", 1, ir.SensPublic).
		Block(
			at.Load(2, 0),
			at.Store(1, 2),
			at.Branch(1, 1, 2),
		).
		Block(at.Ret(1)).
		Block(
			at.Scrub(2),
			at.Ret(1),
		).Build()
	prog := at.NewProgram(mems, f)

	render := func() []byte {
		res, err := run(t, config.NewDefault(), prog)
		if err != nil {
			t.Fatalf("analysis failed: %v", err)
		}
		var buf bytes.Buffer
		report.WriteText(&buf, res.Findings)
		return buf.Bytes()
	}
	first := render()
	second := render()
	if !bytes.Equal(first, second) {
		t.Errorf("reports differ between runs:\n%s\n---\n%s", first, second)
	}
	if len(first) == 0 {
		t.Errorf("expected findings in the rendered report")
	}
}

func TestAnalyzeMaxAlarms(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("tab", ir.Global, false)}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Store(0, 1),
			at.Store(0, 1),
			at.Store(0, 1),
			at.Ret(1),
		).Build()
	cfg := config.NewDefault()
	cfg.MaxAlarms = 2
	res, err := run(t, cfg, at.NewProgram(mems, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 2 {
		t.Errorf("got %d findings, want the configured cap of 2", len(res.Findings))
	}
}

func TestAnalyzeSeverityOverride(t *testing.T) {
	mems := []*ir.MemLoc{at.Mem("tab", ir.Global, false)}
	f := at.NewFunc("f").
		Param("key", 1, ir.SensSecret).
		Block(
			at.Store(0, 1),
			at.Ret(1),
		).Build()
	cfg := config.NewDefault()
	cfg.SeverityOverrides = map[string]string{"R4": "critical"}
	res, err := run(t, cfg, at.NewProgram(mems, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Severity != report.Critical {
		t.Errorf("findings = %v, want one finding raised to critical", res.Findings)
	}
}

func TestAnalyzeMalformedInput(t *testing.T) {
	// The branch target is out of range.
	f := at.NewFunc("broken").
		Param("x", 1, ir.SensPublic).
		Block(at.Branch(1, 1, 7)).
		Block(at.Ret(1)).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(nil, f))
	if err == nil {
		t.Fatalf("expected an error")
	}
	var malformed *ir.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("error %v is not a malformed input error", err)
	}
	if res.State != analysis.Failed {
		t.Errorf("state = %v, want failed", res.State)
	}
	if len(res.Findings) != 0 {
		t.Errorf("a failed run must not report findings, got %v", res.Findings)
	}
}

func TestAnalyzeRegionErrorIsFatal(t *testing.T) {
	f := at.NewFunc("f").
		Param("x", 1, ir.SensPublic).
		MarkedBlock(ir.MarkRegionStart, at.Jump(1)).
		MarkedBlock(ir.MarkRegionStart, at.Jump(2)).
		MarkedBlock(ir.MarkRegionEnd, at.Ret(1)).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(nil, f))
	if err == nil {
		t.Fatalf("expected an error")
	}
	var malformed *ir.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("error %v is not a malformed input error", err)
	}
	if res.State != analysis.Failed || len(res.Findings) != 0 {
		t.Errorf("nested regions must fail the run without findings")
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	f := at.NewFunc("f").
		Param("x", 1, ir.SensPublic).
		Block(at.Ret(1)).Build()
	cfg := config.NewDefault()
	log := config.NewLogGroup(cfg)
	log.SetAllOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := analysis.Analyze(ctx, cfg, log, at.NewProgram(nil, f))
	if !errors.Is(err, analysis.ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if res.State != analysis.Failed || len(res.Findings) != 0 {
		t.Errorf("a canceled run must fail without findings")
	}
}

func TestAnalyzeAuditsDeclassification(t *testing.T) {
	f := at.NewFunc("compare_tag").
		Param("tag", 1, ir.SensSecret).
		Block(
			at.Compute(2, 1),
			at.Declassify(2),
			at.Ret(2),
		).Build()
	res, err := run(t, config.NewDefault(), at.NewProgram(nil, f))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 0 {
		t.Errorf("declassified flow should not fire, got %v", res.Findings)
	}
	if len(res.Audit) != 1 || res.Audit[0].Value != 2 {
		t.Errorf("audit = %v, want one record for v2", res.Audit)
	}
}

func TestAnalyzeDecodedProgram(t *testing.T) {
	doc := `
memory:
  - name: round_keys
    class: global
functions:
  - name: cache_keys
    params:
      - name: key
        value: 1
        sensitivity: secret
    blocks:
      - instrs:
          - op: store
            mem: round_keys
            in: [1]
          - op: return
            in: [1]
`
	prog, err := irio.Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	res, err := run(t, config.NewDefault(), prog)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Findings) != 1 || res.Findings[0].Rule != report.RuleSecretInGlobalStorage {
		t.Fatalf("findings = %v, want one global-storage finding", res.Findings)
	}
}
