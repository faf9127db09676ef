package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

// ResultArchive implements storage.ResultArchive using ClickHouse.
type ResultArchive struct {
	conn *Conn
}

// NewResultArchive creates a new ResultArchive.
func NewResultArchive(conn *Conn) *ResultArchive {
	return &ResultArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.ResultArchive = (*ResultArchive)(nil)

// ArchiveRun bulk-copies the run's records into the archive. Validation
// fields are not archived; the row store remains their source of truth.
func (s *ResultArchive) ArchiveRun(ctx context.Context, runID string, records []*domain.ResultRecord) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO result_archive (
			result_id, run_id, window_index, is_training, combination,
			total_trades, win_rate, profit_factor, net_profit,
			sharpe_ratio, sortino_ratio, max_drawdown_pct,
			expectancy, avg_r_multiple, calmar_ratio,
			backtest_id, sim_error, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		combo, err := json.Marshal(r.Combination.Storable())
		if err != nil {
			return fmt.Errorf("marshal combination: %w", err)
		}

		// -1 stands in for the missing index of grid-search records.
		windowIdx := int32(-1)
		if r.WindowIndex != nil {
			windowIdx = int32(*r.WindowIndex)
		}
		isTraining := uint8(0)
		if r.IsTraining {
			isTraining = 1
		}

		err = batch.Append(
			r.ResultID, r.RunID, windowIdx, isTraining, string(combo),
			int32(r.Metrics.TotalTrades), r.Metrics.WinRate, r.Metrics.ProfitFactor, r.Metrics.NetProfit,
			r.Metrics.SharpeRatio, r.Metrics.SortinoRatio, r.Metrics.MaxDrawdownPct,
			r.Metrics.Expectancy, r.Metrics.AvgRMultiple, r.Metrics.CalmarRatio,
			r.BacktestID, r.SimError, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRun retrieves archived records for a run, ordered by result_id.
func (s *ResultArchive) GetByRun(ctx context.Context, runID string) ([]*domain.ResultRecord, error) {
	query := `
		SELECT result_id, run_id, window_index, is_training, combination,
		       total_trades, win_rate, profit_factor, net_profit,
		       sharpe_ratio, sortino_ratio, max_drawdown_pct,
		       expectancy, avg_r_multiple, calmar_ratio,
		       backtest_id, sim_error, created_at
		FROM result_archive
		WHERE run_id = ?
		ORDER BY result_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query archive by run: %w", err)
	}
	defer rows.Close()

	var records []*domain.ResultRecord
	for rows.Next() {
		var (
			r           domain.ResultRecord
			windowIdx   int32
			isTraining  uint8
			comboJSON   string
			totalTrades int32
		)
		err := rows.Scan(
			&r.ResultID, &r.RunID, &windowIdx, &isTraining, &comboJSON,
			&totalTrades, &r.Metrics.WinRate, &r.Metrics.ProfitFactor, &r.Metrics.NetProfit,
			&r.Metrics.SharpeRatio, &r.Metrics.SortinoRatio, &r.Metrics.MaxDrawdownPct,
			&r.Metrics.Expectancy, &r.Metrics.AvgRMultiple, &r.Metrics.CalmarRatio,
			&r.BacktestID, &r.SimError, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		if windowIdx >= 0 {
			idx := int(windowIdx)
			r.WindowIndex = &idx
		}
		r.IsTraining = isTraining == 1
		r.Metrics.TotalTrades = int(totalTrades)

		var tagged map[string]interface{}
		if err := json.Unmarshal([]byte(comboJSON), &tagged); err != nil {
			return nil, fmt.Errorf("unmarshal combination: %w", err)
		}
		r.Combination, err = domain.CombinationFromStorable(tagged)
		if err != nil {
			return nil, fmt.Errorf("decode combination: %w", err)
		}

		records = append(records, &r)
	}

	return records, rows.Err()
}
