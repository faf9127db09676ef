package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/idhash"
	"strategy-opt-lab/internal/observability"
	"strategy-opt-lab/internal/paramspace"
	"strategy-opt-lab/internal/simulator"
	"strategy-opt-lab/internal/storage"
)

// job is one backtest to run: a combination over a date range, optionally
// inside a walk-forward window.
type job struct {
	combination domain.Combination
	start       time.Time
	end         time.Time
	windowIndex *int
	isTraining  bool
}

func gridJobs(req GridRequest) []job {
	combos := req.Space.Combinations(paramspace.EnumerateOptions{})
	jobs := make([]job, 0, len(combos))
	for _, c := range combos {
		jobs = append(jobs, job{
			combination: c,
			start:       req.Start,
			end:         req.End,
			isTraining:  true,
		})
	}
	return jobs
}

func windowJobs(space *paramspace.Space, w domain.Window) []job {
	combos := space.Combinations(paramspace.EnumerateOptions{})
	jobs := make([]job, 0, len(combos))
	for _, c := range combos {
		jobs = append(jobs, job{
			combination: c,
			start:       w.TrainingStart,
			end:         w.TrainingEnd,
			windowIndex: ptr(w.Index),
			isTraining:  true,
		})
	}
	return jobs
}

// runPool executes jobs on the bounded worker pool. Every job yields a
// record, failed simulator calls included; records are appended and counted
// as they complete, in whatever order the workers finish. Cancellation
// stops dispatch before the next job; in-flight backtests still drain.
func (o *Orchestrator) runPool(ctx context.Context, runID string, base simulator.Request, jobs []job, tracker *progressTracker) ([]*domain.ResultRecord, error) {
	jobQueue := make(chan job)
	resultQueue := make(chan *domain.ResultRecord)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobQueue {
				rec := o.runBacktest(ctx, runID, base, j)
				select {
				case resultQueue <- rec:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Dispatcher. The context check before every submit is what makes
	// cancellation responsive mid-run.
	go func() {
		defer close(jobQueue)
		for _, j := range jobs {
			select {
			case jobQueue <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	// Single consumer: store appends and progress updates stay serialized.
	// Drains to channel close even after an error so no worker blocks.
	storeCtx := context.WithoutCancel(ctx)
	var (
		records  []*domain.ResultRecord
		firstErr error
	)
	for rec := range resultQueue {
		if firstErr != nil {
			continue
		}
		if err := o.appendRecord(storeCtx, rec, tracker); err != nil {
			firstErr = err
			continue
		}
		records = append(records, rec)
	}

	if ctx.Err() != nil {
		return records, ctx.Err()
	}
	return records, firstErr
}

// runBacktest executes one simulator call and wraps the outcome in a
// record. Simulator errors yield a zero-trade record with SimError set so
// the failure is persisted without aborting the run.
func (o *Orchestrator) runBacktest(ctx context.Context, runID string, base simulator.Request, j job) *domain.ResultRecord {
	req := base
	req.Start = j.start
	req.End = j.end
	req.Params = j.combination

	phase := "testing"
	if j.isTraining {
		phase = "training"
	}

	started := time.Now()
	res, err := o.sim.RunBacktest(ctx, req)
	elapsed := time.Since(started).Seconds()

	rec := &domain.ResultRecord{
		ResultID:    idhash.ComputeResultID(runID, j.combination.Key(), j.windowIndex, j.isTraining),
		RunID:       runID,
		Combination: j.combination,
		WindowIndex: j.windowIndex,
		IsTraining:  j.isTraining,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err != nil {
		rec.SimError = err.Error()
		observability.RecordBacktest(phase, "error", elapsed)
		o.log("run %s: backtest failed for %s: %v", runID, j.combination.Key(), err)
		return rec
	}

	rec.Metrics = res.Metrics()
	rec.BacktestID = res.BacktestID
	observability.RecordBacktest(phase, "ok", elapsed)
	return rec
}

// appendRecord persists the record and advances the progress counter.
func (o *Orchestrator) appendRecord(ctx context.Context, rec *domain.ResultRecord, tracker *progressTracker) error {
	if err := o.resultStore.Append(ctx, rec); err != nil {
		return fmt.Errorf("append result %s: %w", rec.ResultID, err)
	}
	tracker.increment()
	o.reportProgress(ctx, tracker)
	return nil
}

// reportProgress pushes the current counters to the store, the metrics
// gauge, and the optional callback. A terminal-state rejection means the
// run was cancelled out-of-band; the context check at the next dispatch
// point handles the actual stop.
func (o *Orchestrator) reportProgress(ctx context.Context, tracker *progressTracker) {
	p := tracker.snapshot()
	if err := o.runStore.UpdateProgress(ctx, p.RunID, p.Completed, p.Total); err != nil && !errors.Is(err, storage.ErrTerminalState) {
		o.log("run %s: progress update failed: %v", p.RunID, err)
	}
	observability.UpdateRunProgress(p.RunID, p.Fraction)
	if o.onProgress != nil {
		o.onProgress(p)
	}
}

// selectWinner returns the best qualified record: simulator success, at
// least minTrades trades, highest metric value. Ties go to the lexically
// smallest combination key so reruns pick the same winner.
func selectWinner(records []*domain.ResultRecord, metric domain.Metric, minTrades int) *domain.ResultRecord {
	var best *domain.ResultRecord
	for _, r := range records {
		if r.Failed() || r.Metrics.TotalTrades < minTrades {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		v, bv := r.Metrics.Value(metric), best.Metrics.Value(metric)
		if v > bv || (v == bv && r.Combination.Key() < best.Combination.Key()) {
			best = r
		}
	}
	return best
}

// progressTracker is the run-wide completion counter shared by every pool
// invocation of one run.
type progressTracker struct {
	runID string

	mu        sync.Mutex
	completed int
	total     int
}

func (t *progressTracker) increment() {
	t.mu.Lock()
	t.completed++
	t.mu.Unlock()
}

// shrink removes expected work that will never run, such as the testing
// call of a skipped window.
func (t *progressTracker) shrink(n int) {
	t.mu.Lock()
	t.total -= n
	t.mu.Unlock()
}

func (t *progressTracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	fraction := 0.0
	if t.total > 0 {
		fraction = float64(t.completed) / float64(t.total)
	}
	return Progress{
		RunID:     t.runID,
		Completed: t.completed,
		Total:     t.total,
		Fraction:  fraction,
	}
}
