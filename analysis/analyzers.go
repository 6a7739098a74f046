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

// Package analysis orchestrates the analyzer pipeline: validation, taint propagation, region
// classification, shape classification and the detector passes, in that order. The pipeline is a
// pure computation over an immutable IR snapshot; per-function phases run data-parallel, while the
// shape table is built in one sequential pass before any detector concurrency starts.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/awslabs/ar-ct-tools/analysis/config"
	"github.com/awslabs/ar-ct-tools/analysis/ir"
	"github.com/awslabs/ar-ct-tools/analysis/regions"
	"github.com/awslabs/ar-ct-tools/analysis/report"
	"github.com/awslabs/ar-ct-tools/analysis/rules"
	"github.com/awslabs/ar-ct-tools/analysis/shape"
	"github.com/awslabs/ar-ct-tools/analysis/taint"
	"github.com/awslabs/ar-ct-tools/internal/funcutil"
)

// RunState is the stage an analysis run has reached. A run that completes moves through every
// state in order; a malformed input moves the run directly to Failed, and a failed run reports
// only its error, never partial findings.
type RunState int

const (
	// Idle: no run in progress.
	Idle RunState = iota
	// Loaded: the program passed structural validation.
	Loaded
	// TaintComputed: every function has a labeling.
	TaintComputed
	// RegionsClassified: every function has a region classification.
	RegionsClassified
	// DetectorsRun: all detector passes finished.
	DetectorsRun
	// Reported: findings are ordered and final.
	Reported
	// Failed: the run aborted; no findings are available.
	Failed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case TaintComputed:
		return "taint-computed"
	case RegionsClassified:
		return "regions-classified"
	case DetectorsRun:
		return "detectors-run"
	case Reported:
		return "reported"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrCanceled is returned when the caller's context expires. Cancellation is honored at function
// boundaries only, never mid-fixpoint, and a canceled run reports no findings at all rather than
// an inconsistent subset.
var ErrCanceled = errors.New("analysis canceled at function boundary")

// RunResult is the outcome of one analysis run.
type RunResult struct {
	// State is Reported for a completed run, Failed otherwise.
	State RunState

	// Findings is the ordered finding list. A run with zero findings is a valid, distinct result
	// from a failed run.
	Findings []report.Finding

	// Audit lists every declassification encountered, in ascending function order.
	Audit []taint.AuditRecord

	// Warnings lists the non-fatal anomalies hit during shape classification.
	Warnings []shape.Warning
}

// functionData is the per-function analysis state threaded between the pipeline phases.
type functionData struct {
	fn      *ir.Function
	cfg     *ir.CFG
	taint   *taint.Labeling
	regions *regions.Info
}

// Analyze runs the full pipeline on prog with the given configuration. The program must come from
// a front end or irio.Decode; Analyze validates it first and returns a *ir.MalformedInputError
// without any findings if the IR is structurally broken at any stage.
func Analyze(ctx context.Context, cfg *config.Config, logger *config.LogGroup, prog *ir.Program) (RunResult, error) {
	numRoutines := cfg.MaxRoutines
	if numRoutines <= 0 {
		numRoutines = runtime.NumCPU() - 1
	}
	if numRoutines < 1 {
		numRoutines = 1
	}

	if err := prog.Validate(); err != nil {
		return RunResult{State: Failed}, err
	}
	logger.Infof("Loaded %d functions, %d memory locations.", len(prog.Funcs), len(prog.Mems))

	// Taint propagation, data-parallel across functions. Each job checks the context before
	// starting so cancellation lands between functions, never inside a fixpoint.
	start := time.Now()
	data := funcutil.MapParallel(prog.Funcs, func(fn *ir.Function) *functionData {
		if ctx.Err() != nil {
			return nil
		}
		cfg := ir.NewCFG(fn)
		return &functionData{fn: fn, cfg: cfg, taint: taint.Propagate(prog, fn, cfg)}
	}, numRoutines)
	if ctx.Err() != nil {
		return RunResult{State: Failed}, ErrCanceled
	}
	logger.Infof("Taint propagation done (%.2f s).", time.Since(start).Seconds())

	// Region classification. Nested or reentered regions are malformed input and abort the run.
	for _, d := range data {
		info, err := regions.Classify(d.fn, d.cfg)
		if err != nil {
			return RunResult{State: Failed}, err
		}
		d.regions = info
	}

	// The shape table is sequential and callee-first; once built it is immutable and the
	// detectors read it concurrently without locking.
	labelings := make([]*taint.Labeling, len(prog.Funcs))
	for i, d := range data {
		labelings[i] = d.taint
	}
	shapes := shape.Classify(prog, labelings, cfg, logger)

	if ctx.Err() != nil {
		return RunResult{State: Failed}, ErrCanceled
	}

	// Detector passes, data-parallel across functions.
	start = time.Now()
	perFunc := funcutil.MapParallel(data, func(d *functionData) []report.Finding {
		if ctx.Err() != nil {
			return nil
		}
		target := &rules.Target{
			Prog:    prog,
			Fn:      d.fn,
			CFG:     d.cfg,
			Taint:   d.taint,
			Regions: d.regions,
			Shapes:  shapes,
		}
		var fs []report.Finding
		for _, detect := range rules.All() {
			fs = append(fs, detect(target)...)
		}
		return fs
	}, numRoutines)
	if ctx.Err() != nil {
		return RunResult{State: Failed}, ErrCanceled
	}
	logger.Infof("Detector passes done (%.2f s).", time.Since(start).Seconds())

	result := RunResult{State: Reported}
	for _, fs := range perFunc {
		result.Findings = append(result.Findings, fs...)
	}
	for i := range result.Findings {
		if sev, ok := report.ParseSeverity(cfg.SeverityOverride(string(result.Findings[i].Rule))); ok {
			result.Findings[i].Severity = sev
		}
	}
	report.SortFindings(result.Findings)
	if cfg.MaxAlarms > 0 && len(result.Findings) > cfg.MaxAlarms {
		logger.Warnf("Reporting only %d out of %d findings (max-alarms).", cfg.MaxAlarms, len(result.Findings))
		result.Findings = result.Findings[:cfg.MaxAlarms]
	}
	for _, d := range data {
		result.Audit = append(result.Audit, d.taint.Audit...)
	}
	result.Warnings = shapes.Warnings

	logger.Infof("Analysis done: %d findings, %d declassifications audited.", len(result.Findings), len(result.Audit))
	return result, nil
}
