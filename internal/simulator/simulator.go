// Package simulator defines the backtest execution boundary used by the
// orchestrator. The engine behind it is external; this package only fixes
// the request/response contract and provides a scripted stub for tests.
package simulator

import (
	"context"
	"time"

	"strategy-opt-lab/internal/domain"
)

// Request describes one backtest to execute: the market scope, the date
// range, and the parameter values under evaluation.
type Request struct {
	Symbols        []string
	Start          time.Time
	End            time.Time
	Strategies     []string
	InitialCapital float64
	RiskPerTrade   float64
	Params         domain.Combination
}

// Result is the metrics bundle a completed backtest reports back.
type Result struct {
	BacktestID     string
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	NetProfit      float64
	SharpeRatio    float64
	SortinoRatio   float64
	MaxDrawdownPct float64
	Expectancy     float64
	AvgRMultiple   float64
	CalmarRatio    float64
}

// Metrics converts the result into the domain bundle stored on records.
func (r *Result) Metrics() domain.MetricsBundle {
	return domain.MetricsBundle{
		TotalTrades:    r.TotalTrades,
		WinRate:        r.WinRate,
		ProfitFactor:   r.ProfitFactor,
		NetProfit:      r.NetProfit,
		SharpeRatio:    r.SharpeRatio,
		SortinoRatio:   r.SortinoRatio,
		MaxDrawdownPct: r.MaxDrawdownPct,
		Expectancy:     r.Expectancy,
		AvgRMultiple:   r.AvgRMultiple,
		CalmarRatio:    r.CalmarRatio,
	}
}

// Simulator runs one backtest per call. Implementations must be safe for
// concurrent use; the orchestrator calls RunBacktest from multiple workers.
type Simulator interface {
	RunBacktest(ctx context.Context, req Request) (*Result, error)
}
