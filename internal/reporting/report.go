// Package reporting assembles optimization-run reports and renders them as
// Markdown, CSV, or an Excel workbook.
package reporting

import (
	"context"
	"fmt"
	"time"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
	"strategy-opt-lab/internal/validator"
)

// DefaultTopResults bounds the results table when no limit is given.
const DefaultTopResults = 20

// Report is the assembled view of one optimization run.
type Report struct {
	GeneratedAt time.Time

	Run    *domain.RunState
	Metric domain.Metric

	// TopResults are training records sorted by the optimization metric,
	// best first.
	TopResults []*domain.ResultRecord

	// Summaries is empty for plain grid-search runs.
	Summaries []domain.ValidationSummary
}

// Generator produces reports from stored run data.
type Generator struct {
	runStore    storage.RunStore
	resultStore storage.ResultStore
	topN        int
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.RunStore, resultStore storage.ResultStore) *Generator {
	return &Generator{
		runStore:    runStore,
		resultStore: resultStore,
		topN:        DefaultTopResults,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithTopResults overrides how many result rows the report carries.
func (g *Generator) WithTopResults(n int) *Generator {
	if n > 0 {
		g.topN = n
	}
	return g
}

// Generate assembles the report for a run. For walk-forward runs the
// validation summaries are rebuilt from the persisted records, so a report
// can be produced long after the run finished.
func (g *Generator) Generate(ctx context.Context, runID string, metric domain.Metric) (*Report, error) {
	run, err := g.runStore.GetStatus(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	top, err := g.resultStore.GetByRun(ctx, runID, storage.ResultQuery{
		Limit:        g.topN,
		SortMetric:   metric,
		TrainingOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load results for %s: %w", runID, err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		Run:         run,
		Metric:      metric,
		TopResults:  top,
	}

	if run.Mode == domain.ModeWalkForward {
		all, err := g.resultStore.GetByRun(ctx, runID, storage.ResultQuery{})
		if err != nil {
			return nil, fmt.Errorf("load records for %s: %w", runID, err)
		}
		report.Summaries = validator.SummariesFromRecords(all)
	}

	return report, nil
}
