package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

func testRecord(resultID, runID string, profitFactor float64, isTraining bool) *domain.ResultRecord {
	return &domain.ResultRecord{
		ResultID: resultID,
		RunID:    runID,
		Combination: domain.Combination{
			"rsi_period": domain.Number(14),
			"stop_loss":  domain.Number(0.02),
		},
		IsTraining: isTraining,
		Metrics: domain.MetricsBundle{
			TotalTrades:  55,
			WinRate:      0.52,
			ProfitFactor: profitFactor,
			NetProfit:    profitFactor * 1000,
			SharpeRatio:  1.1,
		},
		BacktestID: "bt_001",
		CreatedAt:  1700000000000,
	}
}

func TestResultStore_AppendAndGetByRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	rec := testRecord("res_1", "run_1", 1.8, true)
	rec.WindowIndex = ptr(2)
	require.NoError(t, store.Append(ctx, rec))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	retrieved := got[0]
	assert.Equal(t, rec.ResultID, retrieved.ResultID)
	assert.Equal(t, rec.RunID, retrieved.RunID)
	require.NotNil(t, retrieved.WindowIndex)
	assert.Equal(t, 2, *retrieved.WindowIndex)
	assert.True(t, retrieved.IsTraining)
	assert.Equal(t, rec.Combination.Key(), retrieved.Combination.Key())
	assert.Equal(t, 55, retrieved.Metrics.TotalTrades)
	assert.InDelta(t, 1.8, retrieved.Metrics.ProfitFactor, 1e-9)
	assert.Equal(t, "bt_001", retrieved.BacktestID)
	assert.Nil(t, retrieved.Validation)
}

func TestResultStore_AppendDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("res_1", "run_1", 1.8, true)))
	err := store.Append(ctx, testRecord("res_1", "run_1", 2.0, true))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestResultStore_NullWindowIndex(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("res_1", "run_1", 1.8, true)))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].WindowIndex)
}

func TestResultStore_SortMetricAndLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("res_low", "run_1", 0.8, true)))
	require.NoError(t, store.Append(ctx, testRecord("res_high", "run_1", 2.4, true)))
	require.NoError(t, store.Append(ctx, testRecord("res_mid", "run_1", 1.5, true)))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{
		SortMetric: domain.MetricProfitFactor,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "res_high", got[0].ResultID)
	assert.Equal(t, "res_mid", got[1].ResultID)

	// Unknown metric is rejected before reaching SQL
	_, err = store.GetByRun(ctx, "run_1", storage.ResultQuery{SortMetric: "alpha_decay"})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestResultStore_TrainingOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("res_train", "run_1", 1.8, true)))
	require.NoError(t, store.Append(ctx, testRecord("res_test", "run_1", 1.2, false)))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{TrainingOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "res_train", got[0].ResultID)
}

func TestResultStore_AttachValidation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRecord("res_1", "run_1", 1.8, true)))

	fields := &domain.ValidationFields{
		DegradationPct:        ptr(30.0),
		WalkForwardEfficiency: ptr(0.7),
		IsOverfit:             false,
		OOSProfitFactor:       1.26,
		OOSNetProfit:          420.0,
		OOSWinRate:            0.49,
		OOSTradeCount:         33,
	}
	require.NoError(t, store.AttachValidation(ctx, "res_1", fields))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Validation)
	assert.InDelta(t, 30.0, *got[0].Validation.DegradationPct, 1e-9)
	assert.InDelta(t, 0.7, *got[0].Validation.WalkForwardEfficiency, 1e-9)
	assert.False(t, got[0].Validation.IsOverfit)
	assert.InDelta(t, 1.26, got[0].Validation.OOSProfitFactor, 1e-9)
	assert.Equal(t, 33, got[0].Validation.OOSTradeCount)

	// Missing record
	err = store.AttachValidation(ctx, "missing", fields)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResultStore_FailedRecordRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewResultStore(pool)
	ctx := context.Background()

	rec := testRecord("res_err", "run_1", 0, true)
	rec.Metrics = domain.MetricsBundle{}
	rec.BacktestID = ""
	rec.SimError = "data feed unavailable"
	require.NoError(t, store.Append(ctx, rec))

	got, err := store.GetByRun(ctx, "run_1", storage.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Failed())
	assert.Equal(t, "data feed unavailable", got[0].SimError)
	assert.Zero(t, got[0].Metrics.TotalTrades)
}
