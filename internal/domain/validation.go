package domain

// ValidationSummary aggregates walk-forward performance for one unique
// combination that won at least one training window.
type ValidationSummary struct {
	Combination Combination

	// Windows is the number of windows this combination won.
	Windows int

	// Averages of the chosen optimization metric.
	AvgInSample    float64
	AvgOutOfSample float64

	// DegradationPct and Efficiency are nil when AvgInSample is zero.
	DegradationPct *float64
	Efficiency     *float64

	IsOverfit bool

	// Aggregated out-of-sample figures: mean profit factor and win rate,
	// summed net profit and trade count.
	OOSProfitFactor float64
	OOSNetProfit    float64
	OOSWinRate      float64
	OOSTradeCount   int
}
