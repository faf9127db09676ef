package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"strategy-opt-lab/internal/simulator"
)

// syntheticSimulator produces deterministic pseudo-backtest results derived
// from the combination and date range. It stands in for a real backtest
// engine so runs can be exercised end to end without one; the same inputs
// always yield the same metrics.
type syntheticSimulator struct{}

func newSyntheticSimulator() *syntheticSimulator {
	return &syntheticSimulator{}
}

var _ simulator.Simulator = (*syntheticSimulator)(nil)

func (s *syntheticSimulator) RunBacktest(ctx context.Context, req simulator.Request) (*simulator.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(req.Params.Key()))
	h.Write([]byte(req.Start.Format("2006-01-02")))
	h.Write([]byte(req.End.Format("2006-01-02")))
	for _, sym := range req.Symbols {
		h.Write([]byte(sym))
	}
	seed := h.Sum64()

	// Map the hash onto plausible metric ranges.
	u := func(shift uint) float64 {
		return float64((seed>>shift)&0xFFFF) / 65535.0
	}

	trades := 10 + int(seed%120)
	winRate := 0.30 + 0.40*u(4)
	profitFactor := 0.6 + 2.2*u(12)
	netProfit := req.InitialCapital * (profitFactor - 1) * 0.1
	sharpe := -0.5 + 3.0*u(20)
	maxDD := 5 + 35*u(28)

	return &simulator.Result{
		BacktestID:     fmt.Sprintf("synth_%016x", seed),
		TotalTrades:    trades,
		WinRate:        winRate,
		ProfitFactor:   profitFactor,
		NetProfit:      netProfit,
		SharpeRatio:    sharpe,
		SortinoRatio:   sharpe * 1.2,
		MaxDrawdownPct: maxDD,
		Expectancy:     netProfit / float64(trades),
		AvgRMultiple:   (profitFactor - 1) * 0.5,
		CalmarRatio:    safeDiv(netProfit/req.InitialCapital*100, maxDD),
	}, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return 0
	}
	return a / b
}
