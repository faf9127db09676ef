// Package validator measures how training-period winners hold up
// out-of-sample and flags parameter combinations that look overfit.
package validator

import (
	"sort"

	"strategy-opt-lab/internal/domain"
)

// Overfitting thresholds. A combination is flagged when its performance
// degrades more than 30 percent out-of-sample or retains less than half of
// its in-sample performance.
const (
	MaxDegradationPct = 30.0
	MinEfficiency     = 0.5
)

// CalculateDegradation returns the percentage drop from in-sample to
// out-of-sample performance. Returns nil when inSample is zero: the ratio
// is undefined and must not be reported as a number.
func CalculateDegradation(inSample, outOfSample float64) *float64 {
	if inSample == 0 {
		return nil
	}
	d := (inSample - outOfSample) / inSample * 100
	return &d
}

// CalculateEfficiency returns the out-of-sample share of in-sample
// performance. Returns nil when inSample is zero.
func CalculateEfficiency(inSample, outOfSample float64) *float64 {
	if inSample == 0 {
		return nil
	}
	e := outOfSample / inSample
	return &e
}

// AnalyzeWalkForward groups window results by winning combination and
// produces one summary per unique winner, sorted by aggregated
// out-of-sample profit factor descending.
//
// Windows without a testing result contribute their in-sample value only.
// When the average in-sample metric is not positive the ratio thresholds
// are meaningless (division flips sign), so the combination is flagged
// overfit exactly when it performed worse out-of-sample than in-sample.
func AnalyzeWalkForward(windows []domain.WindowResult, metric domain.Metric) []domain.ValidationSummary {
	type group struct {
		combination domain.Combination
		isValues    []float64
		oosValues   []float64
		oosPF       []float64
		oosWinRate  []float64
		oosNet      float64
		oosTrades   int
	}

	groups := make(map[string]*group)
	for _, w := range windows {
		if w.TrainingWinner == nil {
			continue
		}
		key := w.TrainingWinner.Combination.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{combination: w.TrainingWinner.Combination.Clone()}
			groups[key] = g
		}

		g.isValues = append(g.isValues, w.TrainingWinner.Metrics.Value(metric))

		if w.TestingResult != nil {
			m := w.TestingResult.Metrics
			g.oosValues = append(g.oosValues, m.Value(metric))
			g.oosPF = append(g.oosPF, m.ProfitFactor)
			g.oosWinRate = append(g.oosWinRate, m.WinRate)
			g.oosNet += m.NetProfit
			g.oosTrades += m.TotalTrades
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	summaries := make([]domain.ValidationSummary, 0, len(groups))
	for _, key := range keys {
		g := groups[key]

		avgIS := mean(g.isValues)
		avgOOS := mean(g.oosValues)

		s := domain.ValidationSummary{
			Combination:     g.combination,
			Windows:         len(g.isValues),
			AvgInSample:     avgIS,
			AvgOutOfSample:  avgOOS,
			DegradationPct:  CalculateDegradation(avgIS, avgOOS),
			Efficiency:      CalculateEfficiency(avgIS, avgOOS),
			OOSProfitFactor: mean(g.oosPF),
			OOSNetProfit:    g.oosNet,
			OOSWinRate:      mean(g.oosWinRate),
			OOSTradeCount:   g.oosTrades,
		}
		s.IsOverfit = overfit(avgIS, avgOOS, s.DegradationPct, s.Efficiency)
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].OOSProfitFactor != summaries[j].OOSProfitFactor {
			return summaries[i].OOSProfitFactor > summaries[j].OOSProfitFactor
		}
		return summaries[i].Combination.Key() < summaries[j].Combination.Key()
	})

	return summaries
}

func overfit(avgIS, avgOOS float64, degradation, efficiency *float64) bool {
	if avgIS <= 0 {
		return avgOOS < avgIS
	}
	if degradation != nil && *degradation > MaxDegradationPct {
		return true
	}
	if efficiency != nil && *efficiency < MinEfficiency {
		return true
	}
	return false
}

// BestParams picks the winning combination over non-overfit summaries.
// Summaries are assumed in AnalyzeWalkForward order, so the first clean
// entry is the best. Returns nil when every summary is flagged.
func BestParams(summaries []domain.ValidationSummary) domain.Combination {
	for _, s := range summaries {
		if !s.IsOverfit {
			return s.Combination.Clone()
		}
	}
	return nil
}

// Fields converts a summary into the storable validation columns attached
// to the winning training records.
func Fields(s domain.ValidationSummary) *domain.ValidationFields {
	return &domain.ValidationFields{
		DegradationPct:        s.DegradationPct,
		WalkForwardEfficiency: s.Efficiency,
		IsOverfit:             s.IsOverfit,
		OOSProfitFactor:       s.OOSProfitFactor,
		OOSNetProfit:          s.OOSNetProfit,
		OOSWinRate:            s.OOSWinRate,
		OOSTradeCount:         s.OOSTradeCount,
	}
}

// SummariesFromRecords rebuilds validation summaries from persisted
// training records carrying validation fields, for reporting on finished
// runs. Per-window averages cannot be recomputed from the stored
// aggregates, so AvgInSample/AvgOutOfSample stay zero here.
func SummariesFromRecords(records []*domain.ResultRecord) []domain.ValidationSummary {
	index := make(map[string]int)
	var summaries []domain.ValidationSummary
	for _, r := range records {
		if r.Validation == nil || !r.IsTraining {
			continue
		}
		key := r.Combination.Key()
		if i, ok := index[key]; ok {
			// One record per window the combination won.
			summaries[i].Windows++
			continue
		}
		index[key] = len(summaries)

		v := r.Validation
		summaries = append(summaries, domain.ValidationSummary{
			Combination:     r.Combination.Clone(),
			Windows:         1,
			DegradationPct:  v.DegradationPct,
			Efficiency:      v.WalkForwardEfficiency,
			IsOverfit:       v.IsOverfit,
			OOSProfitFactor: v.OOSProfitFactor,
			OOSNetProfit:    v.OOSNetProfit,
			OOSWinRate:      v.OOSWinRate,
			OOSTradeCount:   v.OOSTradeCount,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].OOSProfitFactor != summaries[j].OOSProfitFactor {
			return summaries[i].OOSProfitFactor > summaries[j].OOSProfitFactor
		}
		return summaries[i].Combination.Key() < summaries[j].Combination.Key()
	})

	return summaries
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
