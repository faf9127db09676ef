// Package windowplan declares walk-forward train/test window schedules and
// generates the window sequence covering a date range.
package windowplan

import (
	"fmt"
	"time"

	"strategy-opt-lab/internal/domain"
)

// Plan declares the shape of a walk-forward schedule. Treat as immutable
// once built by New.
type Plan struct {
	TrainingMonths int
	TestingMonths  int
	StepMonths     int
	Metric         domain.Metric
	MinTrades      int
	Anchored       bool
}

// Config is the raw input shape for New, as read from a run configuration.
type Config struct {
	TrainingMonths int
	TestingMonths  int
	StepMonths     int
	Metric         string
	MinTrades      int
	Anchored       bool
}

// New validates cfg and builds a Plan. Errors name the offending field.
func New(cfg Config) (*Plan, error) {
	if cfg.TrainingMonths <= 0 {
		return nil, fmt.Errorf("training_months must be positive, got %d", cfg.TrainingMonths)
	}
	if cfg.TestingMonths <= 0 {
		return nil, fmt.Errorf("testing_months must be positive, got %d", cfg.TestingMonths)
	}
	if cfg.StepMonths <= 0 {
		return nil, fmt.Errorf("step_months must be positive, got %d", cfg.StepMonths)
	}
	metric, err := domain.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, fmt.Errorf("optimization_metric: %w", err)
	}
	if cfg.MinTrades < 0 {
		return nil, fmt.Errorf("min_trades must not be negative, got %d", cfg.MinTrades)
	}

	return &Plan{
		TrainingMonths: cfg.TrainingMonths,
		TestingMonths:  cfg.TestingMonths,
		StepMonths:     cfg.StepMonths,
		Metric:         metric,
		MinTrades:      cfg.MinTrades,
		Anchored:       cfg.Anchored,
	}, nil
}

// GenerateWindows produces the ordered window sequence covering
// [start, end]. Rolling mode slides a fixed-length training range by
// StepMonths per window; anchored mode pins training_start to start and
// grows the training span by StepMonths per window. Generation stops at
// the first window whose testing_end would pass end; that window is
// discarded, never truncated.
//
// All boundaries are derived as month offsets from start so day-of-month
// clamping never compounds across windows.
func (p *Plan) GenerateWindows(start, end time.Time) []domain.Window {
	var windows []domain.Window

	for idx := 0; ; idx++ {
		var trainStart time.Time
		if p.Anchored {
			trainStart = start
		} else {
			trainStart = AddMonths(start, idx*p.StepMonths)
		}

		// Exclusive end of training = inclusive start of testing.
		testStart := AddMonths(start, idx*p.StepMonths+p.TrainingMonths)
		testEnd := AddMonths(start, idx*p.StepMonths+p.TrainingMonths+p.TestingMonths).AddDate(0, 0, -1)
		if testEnd.After(end) {
			break
		}

		windows = append(windows, domain.Window{
			Index:         idx,
			TrainingStart: trainStart,
			TrainingEnd:   testStart.AddDate(0, 0, -1),
			TestingStart:  testStart,
			TestingEnd:    testEnd,
		})
	}

	return windows
}

// WindowCount returns how many windows GenerateWindows would produce.
func (p *Plan) WindowCount(start, end time.Time) int {
	return len(p.GenerateWindows(start, end))
}

// AddMonths adds months to t, clamping the day-of-month to the last valid
// day of the target month (Jan 31 + 1 month is Feb 28, or Feb 29 in leap
// years). time.AddDate normalizes overflow into the next month instead,
// which is wrong for calendar schedules.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months

	// Normalize to year/month, with month in 1..12.
	year += (m - 1) / 12
	m = (m-1)%12 + 1
	if m < 1 {
		m += 12
		year--
	}

	if last := daysInMonth(year, time.Month(m)); day > last {
		day = last
	}

	h, min, sec := t.Clock()
	return time.Date(year, time.Month(m), day, h, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
