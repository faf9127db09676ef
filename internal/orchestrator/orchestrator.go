// Package orchestrator coordinates optimization runs: it fans parameter
// combinations out to simulator workers, persists every result, tracks
// progress, and drives walk-forward validation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/idhash"
	"strategy-opt-lab/internal/observability"
	"strategy-opt-lab/internal/paramspace"
	"strategy-opt-lab/internal/simulator"
	"strategy-opt-lab/internal/storage"
	"strategy-opt-lab/internal/validator"
	"strategy-opt-lab/internal/windowplan"
)

// Progress is one progress snapshot handed to the OnProgress callback.
type Progress struct {
	RunID     string
	Completed int
	Total     int
	Fraction  float64
}

// Options for creating an Orchestrator.
type Options struct {
	// Required collaborators
	RunStore    storage.RunStore
	ResultStore storage.ResultStore
	Simulator   simulator.Simulator

	// Archive, when set, receives a bulk copy of the run's records after
	// the run reaches a terminal status.
	Archive storage.ResultArchive

	// Workers bounds concurrent simulator calls. Defaults to NumCPU.
	Workers int

	// OnProgress, when set, is invoked after every completed backtest.
	OnProgress func(Progress)

	Verbose bool
}

// Orchestrator coordinates optimization run execution.
type Orchestrator struct {
	runStore    storage.RunStore
	resultStore storage.ResultStore
	archive     storage.ResultArchive
	sim         simulator.Simulator
	workers     int
	onProgress  func(Progress)
	verbose     bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Orchestrator{
		runStore:    opts.RunStore,
		resultStore: opts.ResultStore,
		archive:     opts.Archive,
		sim:         opts.Simulator,
		workers:     workers,
		onProgress:  opts.OnProgress,
		verbose:     opts.Verbose,
	}
}

// GridRequest describes a plain grid-search run over one date range.
type GridRequest struct {
	Name           string
	Symbols        []string
	Start          time.Time
	End            time.Time
	Strategies     []string
	InitialCapital float64
	RiskPerTrade   float64

	Space     *paramspace.Space
	Metric    domain.Metric
	MinTrades int
}

// GridOutcome is what RunGridSearch reports back.
type GridOutcome struct {
	RunID string

	// Best is the top qualified result, nil when no combination reached
	// the minimum trade count.
	Best *domain.ResultRecord
}

// WalkForwardRequest describes a walk-forward validation run. Metric and
// minimum trade count come from the plan.
type WalkForwardRequest struct {
	Name           string
	Symbols        []string
	Start          time.Time
	End            time.Time
	Strategies     []string
	InitialCapital float64
	RiskPerTrade   float64

	Space *paramspace.Space
	Plan  *windowplan.Plan
}

// WalkForwardOutcome is what RunWalkForward reports back.
type WalkForwardOutcome struct {
	RunID     string
	Windows   []domain.WindowResult
	Summaries []domain.ValidationSummary

	// Best is nil when every summary is flagged overfit or no window
	// produced a qualified winner.
	Best domain.Combination
}

// RunGridSearch enumerates the full parameter space over [Start, End],
// backtests every combination, and reports the best qualified result.
func (o *Orchestrator) RunGridSearch(ctx context.Context, req GridRequest) (outcome *GridOutcome, err error) {
	if req.Space == nil {
		return nil, fmt.Errorf("grid search: parameter space is required")
	}
	if !req.Metric.Valid() {
		return nil, fmt.Errorf("grid search: invalid optimization metric %q", req.Metric)
	}

	total := int(req.Space.Count())
	runID, err := o.createRun(ctx, req.Name, domain.ModeGridSearch, total)
	if err != nil {
		return nil, err
	}

	// Store writes must survive cancellation so partial results and the
	// final status remain readable.
	storeCtx := context.WithoutCancel(ctx)
	startedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v", r)
			o.failRun(storeCtx, runID, domain.ModeGridSearch, detail, startedAt)
			outcome, err = nil, fmt.Errorf("grid search run %s: %s", runID, detail)
		}
	}()

	tracker := &progressTracker{runID: runID, total: total}
	records, err := o.runPool(ctx, runID, baseRequest(req), gridJobs(req), tracker)
	if err != nil {
		return nil, o.finishAborted(ctx, storeCtx, runID, domain.ModeGridSearch, records, startedAt, err)
	}

	best := selectWinner(records, req.Metric, req.MinTrades)

	var bestParams domain.Combination
	if best != nil {
		bestParams = best.Combination
	}
	if err := o.runStore.MarkCompleted(storeCtx, runID, bestParams, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("mark run %s completed: %w", runID, err)
	}
	o.finalize(storeCtx, runID, domain.ModeGridSearch, string(domain.StatusCompleted), records, startedAt)

	o.log("run %s completed: %d backtests, best=%v", runID, len(records), bestParams)
	return &GridOutcome{RunID: runID, Best: best}, nil
}

// RunWalkForward optimizes every training window, carries each winner into
// its testing window, and flags overfit combinations.
func (o *Orchestrator) RunWalkForward(ctx context.Context, req WalkForwardRequest) (outcome *WalkForwardOutcome, err error) {
	if req.Space == nil {
		return nil, fmt.Errorf("walk-forward: parameter space is required")
	}
	if req.Plan == nil {
		return nil, fmt.Errorf("walk-forward: window plan is required")
	}

	windows := req.Plan.GenerateWindows(req.Start, req.End)
	if len(windows) == 0 {
		return nil, fmt.Errorf("walk-forward: date range %s..%s fits no %d+%d month window",
			req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"),
			req.Plan.TrainingMonths, req.Plan.TestingMonths)
	}

	// One training call per combination per window, plus one testing call
	// per window. Skipped windows shrink the total as they happen.
	perWindow := int(req.Space.Count())
	total := len(windows)*perWindow + len(windows)

	runID, err := o.createRun(ctx, req.Name, domain.ModeWalkForward, total)
	if err != nil {
		return nil, err
	}

	storeCtx := context.WithoutCancel(ctx)
	startedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v", r)
			o.failRun(storeCtx, runID, domain.ModeWalkForward, detail, startedAt)
			outcome, err = nil, fmt.Errorf("walk-forward run %s: %s", runID, detail)
		}
	}()

	base := simulator.Request{
		Symbols:        req.Symbols,
		Strategies:     req.Strategies,
		InitialCapital: req.InitialCapital,
		RiskPerTrade:   req.RiskPerTrade,
	}
	tracker := &progressTracker{runID: runID, total: total}

	var (
		allRecords    []*domain.ResultRecord
		windowResults []domain.WindowResult
	)
	for _, w := range windows {
		o.log("run %s window %d: training %s..%s", runID, w.Index,
			w.TrainingStart.Format("2006-01-02"), w.TrainingEnd.Format("2006-01-02"))

		jobs := windowJobs(req.Space, w)
		records, err := o.runPool(ctx, runID, base, jobs, tracker)
		allRecords = append(allRecords, records...)
		if err != nil {
			return nil, o.finishAborted(ctx, storeCtx, runID, domain.ModeWalkForward, allRecords, startedAt, err)
		}

		winner := selectWinner(records, req.Plan.Metric, req.Plan.MinTrades)
		if winner == nil {
			// No combination qualified: drop this window's testing call
			// from the total instead of stalling the fraction short of 1.
			tracker.shrink(1)
			o.reportProgress(storeCtx, tracker)
			observability.RecordWindowSkipped()
			o.log("run %s window %d: no combination with enough trades, skipped", runID, w.Index)
			continue
		}

		testRecord := o.runBacktest(ctx, runID, base, job{
			combination: winner.Combination,
			start:       w.TestingStart,
			end:         w.TestingEnd,
			windowIndex: ptr(w.Index),
			isTraining:  false,
		})
		if ctx.Err() != nil {
			return nil, o.finishAborted(ctx, storeCtx, runID, domain.ModeWalkForward, allRecords, startedAt, ctx.Err())
		}
		if err := o.appendRecord(storeCtx, testRecord, tracker); err != nil {
			return nil, o.finishAborted(ctx, storeCtx, runID, domain.ModeWalkForward, allRecords, startedAt, err)
		}
		allRecords = append(allRecords, testRecord)
		observability.RecordWindowProcessed()

		windowResults = append(windowResults, domain.WindowResult{
			Window:         w,
			TrainingWinner: winner,
			TestingResult:  testRecord,
		})
	}

	summaries := validator.AnalyzeWalkForward(windowResults, req.Plan.Metric)
	if err := o.attachValidation(storeCtx, windowResults, summaries); err != nil {
		return nil, o.finishAborted(ctx, storeCtx, runID, domain.ModeWalkForward, allRecords, startedAt, err)
	}

	best := validator.BestParams(summaries)
	if err := o.runStore.MarkCompleted(storeCtx, runID, best, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("mark run %s completed: %w", runID, err)
	}
	o.finalize(storeCtx, runID, domain.ModeWalkForward, string(domain.StatusCompleted), allRecords, startedAt)

	o.log("run %s completed: %d windows, %d summaries, best=%v",
		runID, len(windowResults), len(summaries), best)
	return &WalkForwardOutcome{
		RunID:     runID,
		Windows:   windowResults,
		Summaries: summaries,
		Best:      best,
	}, nil
}

// createRun registers the run and transitions it to running.
func (o *Orchestrator) createRun(ctx context.Context, name string, mode domain.RunMode, total int) (string, error) {
	now := time.Now().UnixMilli()
	runID := idhash.ComputeRunID(name, string(mode), now)

	state := &domain.RunState{
		RunID:             runID,
		Name:              name,
		Mode:              mode,
		Status:            domain.StatusPending,
		TotalCombinations: total,
		CreatedAt:         now,
	}
	if err := o.runStore.Create(ctx, state); err != nil {
		return "", fmt.Errorf("create run %s: %w", runID, err)
	}
	if err := o.runStore.MarkRunning(ctx, runID, time.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("mark run %s running: %w", runID, err)
	}

	o.log("run %s started: mode=%s total=%d workers=%d", runID, mode, total, o.workers)
	return runID, nil
}

// attachValidation writes each winner's summary onto every training record
// that won a window with that combination.
func (o *Orchestrator) attachValidation(ctx context.Context, windows []domain.WindowResult, summaries []domain.ValidationSummary) error {
	byKey := make(map[string]*domain.ValidationFields, len(summaries))
	for _, s := range summaries {
		byKey[s.Combination.Key()] = validator.Fields(s)
	}

	for _, w := range windows {
		fields, ok := byKey[w.TrainingWinner.Combination.Key()]
		if !ok {
			continue
		}
		if err := o.resultStore.AttachValidation(ctx, w.TrainingWinner.ResultID, fields); err != nil {
			return fmt.Errorf("attach validation to %s: %w", w.TrainingWinner.ResultID, err)
		}
	}
	return nil
}

// finishAborted settles the run's terminal status after a pool error:
// cancelled when the context was cancelled, failed otherwise. The returned
// error wraps the cause with the run ID.
func (o *Orchestrator) finishAborted(ctx, storeCtx context.Context, runID string, mode domain.RunMode, records []*domain.ResultRecord, startedAt time.Time, cause error) error {
	if ctx.Err() != nil {
		// External cancellers may have already marked the run.
		if err := o.runStore.MarkCancelled(storeCtx, runID, time.Now().UnixMilli()); err != nil && !errors.Is(err, storage.ErrTerminalState) {
			o.log("run %s: mark cancelled failed: %v", runID, err)
		}
		o.finalize(storeCtx, runID, mode, string(domain.StatusCancelled), records, startedAt)
		o.log("run %s cancelled after %d results", runID, len(records))
		return fmt.Errorf("run %s cancelled: %w", runID, ctx.Err())
	}

	o.failRun(storeCtx, runID, mode, cause.Error(), startedAt)
	return fmt.Errorf("run %s failed: %w", runID, cause)
}

func (o *Orchestrator) failRun(ctx context.Context, runID string, mode domain.RunMode, detail string, startedAt time.Time) {
	if err := o.runStore.MarkFailed(ctx, runID, detail, time.Now().UnixMilli()); err != nil && !errors.Is(err, storage.ErrTerminalState) {
		o.log("run %s: mark failed failed: %v", runID, err)
	}
	o.finalize(ctx, runID, mode, string(domain.StatusFailed), nil, startedAt)
}

// finalize archives the run's records and emits the terminal metrics.
func (o *Orchestrator) finalize(ctx context.Context, runID string, mode domain.RunMode, status string, records []*domain.ResultRecord, startedAt time.Time) {
	observability.RecordRunFinished(string(mode), status, time.Since(startedAt).Seconds())
	observability.ClearRunProgress(runID)

	if o.archive == nil || len(records) == 0 {
		return
	}
	if err := o.archive.ArchiveRun(ctx, runID, records); err != nil {
		// Archival is best effort; the row store holds the truth.
		o.log("run %s: archive failed: %v", runID, err)
	}
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}

func baseRequest(req GridRequest) simulator.Request {
	return simulator.Request{
		Symbols:        req.Symbols,
		Strategies:     req.Strategies,
		InitialCapital: req.InitialCapital,
		RiskPerTrade:   req.RiskPerTrade,
	}
}

func ptr[T any](v T) *T {
	return &v
}
