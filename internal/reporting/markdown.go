package reporting

import (
	"fmt"
	"strings"
	"time"

	"strategy-opt-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Optimization Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("| Name | %s |\n", r.Run.Name))
	sb.WriteString(fmt.Sprintf("| Mode | %s |\n", r.Run.Mode))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Run.Status))
	sb.WriteString(fmt.Sprintf("| Metric | %s |\n", r.Metric))
	sb.WriteString(fmt.Sprintf("| Backtests | %d / %d |\n", r.Run.CompletedCombinations, r.Run.TotalCombinations))
	if r.Run.BestParams != nil {
		sb.WriteString(fmt.Sprintf("| Best Params | %s |\n", r.Run.BestParams.Key()))
	} else {
		sb.WriteString("| Best Params | none |\n")
	}
	if r.Run.ErrorDetail != "" {
		sb.WriteString(fmt.Sprintf("| Error | %s |\n", r.Run.ErrorDetail))
	}
	sb.WriteString("\n")

	// Top Results
	sb.WriteString("## Top Results\n\n")
	if len(r.TopResults) > 0 {
		sb.WriteString("| Params | Window | Trades | WinRate | PF | NetProfit | Sharpe | MaxDD% | Error |\n")
		sb.WriteString("|--------|--------|--------|---------|----|-----------|--------|--------|-------|\n")
		for _, rec := range r.TopResults {
			window := "-"
			if rec.WindowIndex != nil {
				window = fmt.Sprintf("%d", *rec.WindowIndex)
			}
			simErr := "-"
			if rec.Failed() {
				simErr = rec.SimError
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %.4f | %.2f | %.4f | %.2f | %s |\n",
				rec.Combination.Key(), window,
				rec.Metrics.TotalTrades, rec.Metrics.WinRate, rec.Metrics.ProfitFactor,
				rec.Metrics.NetProfit, rec.Metrics.SharpeRatio, rec.Metrics.MaxDrawdownPct,
				simErr))
		}
	} else {
		sb.WriteString("No results recorded.\n")
	}
	sb.WriteString("\n")

	// Walk-Forward Validation
	if r.Run.Mode == domain.ModeWalkForward {
		sb.WriteString("## Walk-Forward Validation\n\n")
		if len(r.Summaries) > 0 {
			sb.WriteString("| Params | Windows | Avg IS | Avg OOS | Degradation% | Efficiency | OOS PF | OOS Net | OOS Trades | Verdict |\n")
			sb.WriteString("|--------|---------|--------|---------|--------------|------------|--------|---------|-----------|--------|\n")
			for _, s := range r.Summaries {
				verdict := "OK"
				if s.IsOverfit {
					verdict = "OVERFIT"
				}
				sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %s | %s | %.4f | %.2f | %d | %s |\n",
					s.Combination.Key(), s.Windows,
					s.AvgInSample, s.AvgOutOfSample,
					fmtRatio(s.DegradationPct), fmtRatio(s.Efficiency),
					s.OOSProfitFactor, s.OOSNetProfit, s.OOSTradeCount,
					verdict))
			}
		} else {
			sb.WriteString("No window produced a qualified winner.\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// fmtRatio formats an optional ratio; undefined values render as n/a.
func fmtRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
