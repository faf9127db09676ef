package domain

// MetricsBundle holds the performance figures one backtest produced.
type MetricsBundle struct {
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

// Value returns the figure for the given optimization metric.
func (b MetricsBundle) Value(m Metric) float64 {
	switch m {
	case MetricProfitFactor:
		return b.ProfitFactor
	case MetricNetProfit:
		return b.NetProfit
	case MetricSharpeRatio:
		return b.SharpeRatio
	case MetricSortinoRatio:
		return b.SortinoRatio
	case MetricWinRate:
		return b.WinRate
	case MetricExpectancy:
		return b.Expectancy
	case MetricCalmarRatio:
		return b.CalmarRatio
	default:
		return 0
	}
}

// ValidationFields carries the walk-forward validation outcome attached to
// a training-period record that won its window. Degradation and efficiency
// are nil when the average in-sample value is zero.
type ValidationFields struct {
	DegradationPct        *float64
	WalkForwardEfficiency *float64
	IsOverfit             bool

	// Aggregated out-of-sample figures across all windows this
	// combination won.
	OOSProfitFactor float64
	OOSNetProfit    float64
	OOSWinRate      float64
	OOSTradeCount   int
}

// ResultRecord is one persisted backtest outcome: a combination run over a
// date range, optionally inside a walk-forward window. A failed simulator
// call still yields a record, with zero trades and SimError set, so the
// min-trades filter excludes it without losing the attempt.
type ResultRecord struct {
	ResultID    string
	RunID       string
	Combination Combination

	// WindowIndex is nil for plain grid-search records.
	WindowIndex *int
	IsTraining  bool

	Metrics    MetricsBundle
	BacktestID string
	SimError   string

	// Validation is set only on training records that won their window,
	// after the validator has seen all windows.
	Validation *ValidationFields

	CreatedAt int64 // unix ms
}

// Failed reports whether the underlying simulator call errored.
func (r *ResultRecord) Failed() bool {
	return r.SimError != ""
}
