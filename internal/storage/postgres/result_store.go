package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

// Append adds a new record. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Append(ctx context.Context, r *domain.ResultRecord) error {
	if r == nil || r.ResultID == "" || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	combo, err := json.Marshal(r.Combination.Storable())
	if err != nil {
		return fmt.Errorf("marshal combination: %w", err)
	}

	query := `
		INSERT INTO result_records (
			result_id, run_id, window_index, is_training, combination,
			total_trades, win_rate, profit_factor, net_profit,
			sharpe_ratio, sortino_ratio, max_drawdown_pct,
			expectancy, avg_r_multiple, calmar_ratio,
			backtest_id, sim_error, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ResultID,
		r.RunID,
		r.WindowIndex,
		r.IsTraining,
		combo,
		r.Metrics.TotalTrades,
		r.Metrics.WinRate,
		r.Metrics.ProfitFactor,
		r.Metrics.NetProfit,
		r.Metrics.SharpeRatio,
		r.Metrics.SortinoRatio,
		r.Metrics.MaxDrawdownPct,
		r.Metrics.Expectancy,
		r.Metrics.AvgRMultiple,
		r.Metrics.CalmarRatio,
		r.BacktestID,
		r.SimError,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert result record: %w", err)
	}
	return nil
}

// AttachValidation sets the validation fields of an existing record.
func (s *ResultStore) AttachValidation(ctx context.Context, resultID string, v *domain.ValidationFields) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE result_records
		SET degradation_pct = $2,
		    wf_efficiency = $3,
		    is_overfit = $4,
		    oos_profit_factor = $5,
		    oos_net_profit = $6,
		    oos_win_rate = $7,
		    oos_trade_count = $8
		WHERE result_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		resultID,
		v.DegradationPct,
		v.WalkForwardEfficiency,
		v.IsOverfit,
		v.OOSProfitFactor,
		v.OOSNetProfit,
		v.OOSWinRate,
		v.OOSTradeCount,
	)
	if err != nil {
		return fmt.Errorf("attach validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// metricColumns whitelists ORDER BY targets. Sorting goes through this map
// so a metric name can never reach the SQL text unchecked.
var metricColumns = map[domain.Metric]string{
	domain.MetricProfitFactor: "profit_factor",
	domain.MetricNetProfit:    "net_profit",
	domain.MetricSharpeRatio:  "sharpe_ratio",
	domain.MetricSortinoRatio: "sortino_ratio",
	domain.MetricWinRate:      "win_rate",
	domain.MetricExpectancy:   "expectancy",
	domain.MetricCalmarRatio:  "calmar_ratio",
}

// GetByRun retrieves records for a run, narrowed by q.
func (s *ResultStore) GetByRun(ctx context.Context, runID string, q storage.ResultQuery) ([]*domain.ResultRecord, error) {
	query := `
		SELECT result_id, run_id, window_index, is_training, combination,
		       total_trades, win_rate, profit_factor, net_profit,
		       sharpe_ratio, sortino_ratio, max_drawdown_pct,
		       expectancy, avg_r_multiple, calmar_ratio,
		       backtest_id, sim_error,
		       degradation_pct, wf_efficiency, is_overfit,
		       oos_profit_factor, oos_net_profit, oos_win_rate, oos_trade_count,
		       created_at
		FROM result_records
		WHERE run_id = $1
	`
	if q.TrainingOnly {
		query += ` AND is_training`
	}

	if q.SortMetric != "" {
		col, ok := metricColumns[q.SortMetric]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sort metric %q", storage.ErrInvalidInput, q.SortMetric)
		}
		query += fmt.Sprintf(` ORDER BY %s DESC, result_id ASC`, col)
	} else {
		query += ` ORDER BY created_at ASC, result_id ASC`
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get results by run: %w", err)
	}
	defer rows.Close()

	var records []*domain.ResultRecord
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanResult(row rowScanner) (*domain.ResultRecord, error) {
	var (
		r         domain.ResultRecord
		comboJSON []byte

		degradation *float64
		efficiency  *float64
		isOverfit   *bool
		oosPF       *float64
		oosNP       *float64
		oosWR       *float64
		oosTrades   *int
	)
	err := row.Scan(
		&r.ResultID,
		&r.RunID,
		&r.WindowIndex,
		&r.IsTraining,
		&comboJSON,
		&r.Metrics.TotalTrades,
		&r.Metrics.WinRate,
		&r.Metrics.ProfitFactor,
		&r.Metrics.NetProfit,
		&r.Metrics.SharpeRatio,
		&r.Metrics.SortinoRatio,
		&r.Metrics.MaxDrawdownPct,
		&r.Metrics.Expectancy,
		&r.Metrics.AvgRMultiple,
		&r.Metrics.CalmarRatio,
		&r.BacktestID,
		&r.SimError,
		&degradation,
		&efficiency,
		&isOverfit,
		&oosPF,
		&oosNP,
		&oosWR,
		&oosTrades,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	var tagged map[string]interface{}
	if err := json.Unmarshal(comboJSON, &tagged); err != nil {
		return nil, fmt.Errorf("unmarshal combination: %w", err)
	}
	r.Combination, err = domain.CombinationFromStorable(tagged)
	if err != nil {
		return nil, fmt.Errorf("decode combination: %w", err)
	}

	// is_overfit is the marker column: set only by AttachValidation.
	if isOverfit != nil {
		v := &domain.ValidationFields{
			DegradationPct:        degradation,
			WalkForwardEfficiency: efficiency,
			IsOverfit:             *isOverfit,
		}
		if oosPF != nil {
			v.OOSProfitFactor = *oosPF
		}
		if oosNP != nil {
			v.OOSNetProfit = *oosNP
		}
		if oosWR != nil {
			v.OOSWinRate = *oosWR
		}
		if oosTrades != nil {
			v.OOSTradeCount = *oosTrades
		}
		r.Validation = v
	}

	return &r, nil
}
