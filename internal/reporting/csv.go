package reporting

import (
	"fmt"
	"strings"
)

// RenderResultsCSV renders the top-results table as CSV string.
func RenderResultsCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("result_id,params,window_index,is_training,total_trades,win_rate,profit_factor,")
	sb.WriteString("net_profit,sharpe_ratio,sortino_ratio,max_drawdown_pct,expectancy,sim_error\n")

	// Rows
	for _, rec := range r.TopResults {
		window := ""
		if rec.WindowIndex != nil {
			window = fmt.Sprintf("%d", *rec.WindowIndex)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%t,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%s\n",
			rec.ResultID,
			csvQuote(rec.Combination.Key()),
			window,
			rec.IsTraining,
			rec.Metrics.TotalTrades,
			rec.Metrics.WinRate,
			rec.Metrics.ProfitFactor,
			rec.Metrics.NetProfit,
			rec.Metrics.SharpeRatio,
			rec.Metrics.SortinoRatio,
			rec.Metrics.MaxDrawdownPct,
			rec.Metrics.Expectancy,
			csvQuote(rec.SimError),
		))
	}

	return sb.String()
}

// RenderValidationCSV renders walk-forward summaries as CSV string.
func RenderValidationCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("params,windows_won,avg_in_sample,avg_out_of_sample,degradation_pct,efficiency,")
	sb.WriteString("is_overfit,oos_profit_factor,oos_net_profit,oos_win_rate,oos_trade_count\n")

	for _, s := range r.Summaries {
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.6f,%s,%s,%t,%.6f,%.6f,%.6f,%d\n",
			csvQuote(s.Combination.Key()),
			s.Windows,
			s.AvgInSample,
			s.AvgOutOfSample,
			csvRatio(s.DegradationPct),
			csvRatio(s.Efficiency),
			s.IsOverfit,
			s.OOSProfitFactor,
			s.OOSNetProfit,
			s.OOSWinRate,
			s.OOSTradeCount,
		))
	}

	return sb.String()
}

// csvQuote wraps values that would break the row on a comma.
func csvQuote(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// csvRatio renders an optional ratio as an empty cell when undefined.
func csvRatio(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}
