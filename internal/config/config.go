// Package config loads and validates optimization run configurations.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/paramspace"
	"strategy-opt-lab/internal/windowplan"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultMetric    = domain.MetricProfitFactor
	DefaultMinTrades = 30
)

// rawConfig is the JSON shape of a run-config file. Dates come in as
// strings and min_trades as a pointer so an explicit zero survives
// decoding.
type rawConfig struct {
	Name             string                   `json:"name" validate:"required"`
	Symbols          []string                 `json:"symbols" validate:"required,min=1,dive,required"`
	StartDate        string                   `json:"start_date" validate:"required"`
	EndDate          string                   `json:"end_date" validate:"required"`
	Strategies       []string                 `json:"strategies" validate:"required,min=1,dive,required"`
	InitialCapital   float64                  `json:"initial_capital" validate:"required,gt=0"`
	BaseRiskPerTrade float64                  `json:"base_risk_per_trade" validate:"gte=0,lte=1"`
	ParameterGrid    map[string][]interface{} `json:"parameter_grid" validate:"required,min=1"`

	WalkForward *rawWalkForward `json:"walk_forward_config,omitempty"`

	OptimizationMetric string `json:"optimization_metric,omitempty"`
	MinTrades          *int   `json:"min_trades,omitempty"`
	MaxConcurrency     int    `json:"max_concurrency,omitempty" validate:"gte=0"`
}

type rawWalkForward struct {
	TrainingMonths int  `json:"training_months"`
	TestingMonths  int  `json:"testing_months"`
	StepMonths     int  `json:"step_months"`
	Anchored       bool `json:"anchored,omitempty"`
}

// RunConfig is a fully validated run configuration.
type RunConfig struct {
	Name             string
	Symbols          []string
	StartDate        time.Time
	EndDate          time.Time
	Strategies       []string
	InitialCapital   float64
	BaseRiskPerTrade float64

	Space *paramspace.Space

	// Plan is nil for plain grid-search configs.
	Plan *windowplan.Plan

	Metric         domain.Metric
	MinTrades      int
	MaxConcurrency int
}

// WalkForward reports whether the config requests walk-forward validation.
func (c *RunConfig) WalkForward() bool {
	return c.Plan != nil
}

// Load reads and validates a run-config file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw JSON config content.
func Parse(data []byte) (*RunConfig, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&raw); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	start, err := parseDate(raw.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDate(raw.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s is before start_date %s", raw.EndDate, raw.StartDate)
	}

	space, err := paramspace.FromConfig(raw.ParameterGrid)
	if err != nil {
		return nil, fmt.Errorf("parameter_grid: %w", err)
	}

	metricName := raw.OptimizationMetric
	if metricName == "" {
		metricName = string(DefaultMetric)
	}
	metric, err := domain.ParseMetric(metricName)
	if err != nil {
		return nil, fmt.Errorf("optimization_metric: %w", err)
	}

	minTrades := DefaultMinTrades
	if raw.MinTrades != nil {
		if *raw.MinTrades < 0 {
			return nil, fmt.Errorf("min_trades must not be negative, got %d", *raw.MinTrades)
		}
		minTrades = *raw.MinTrades
	}

	maxConcurrency := raw.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = runtime.NumCPU()
	}

	cfg := &RunConfig{
		Name:             raw.Name,
		Symbols:          raw.Symbols,
		StartDate:        start,
		EndDate:          end,
		Strategies:       raw.Strategies,
		InitialCapital:   raw.InitialCapital,
		BaseRiskPerTrade: raw.BaseRiskPerTrade,
		Space:            space,
		Metric:           metric,
		MinTrades:        minTrades,
		MaxConcurrency:   maxConcurrency,
	}

	if raw.WalkForward != nil {
		plan, err := windowplan.New(windowplan.Config{
			TrainingMonths: raw.WalkForward.TrainingMonths,
			TestingMonths:  raw.WalkForward.TestingMonths,
			StepMonths:     raw.WalkForward.StepMonths,
			Metric:         string(metric),
			MinTrades:      minTrades,
			Anchored:       raw.WalkForward.Anchored,
		})
		if err != nil {
			return nil, fmt.Errorf("walk_forward_config: %w", err)
		}
		cfg.Plan = plan
	}

	return cfg, nil
}

// parseDate accepts the date-only form used throughout configs.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
