package domain

import (
	"errors"
	"fmt"
)

var errNotTaggedValue = errors.New("value is not a tagged type/value map")

// Metric names a performance measure a run can optimize for.
type Metric string

// Supported optimization metrics.
const (
	MetricProfitFactor Metric = "profit_factor"
	MetricNetProfit    Metric = "net_profit"
	MetricSharpeRatio  Metric = "sharpe_ratio"
	MetricSortinoRatio Metric = "sortino_ratio"
	MetricWinRate      Metric = "win_rate"
	MetricExpectancy   Metric = "expectancy"
	MetricCalmarRatio  Metric = "calmar_ratio"
)

// Metrics lists every supported optimization metric.
var Metrics = []Metric{
	MetricProfitFactor,
	MetricNetProfit,
	MetricSharpeRatio,
	MetricSortinoRatio,
	MetricWinRate,
	MetricExpectancy,
	MetricCalmarRatio,
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	for _, known := range Metrics {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMetric validates a metric name from external input.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown optimization metric %q", s)
	}
	return m, nil
}
