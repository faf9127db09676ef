package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

func archivedRecord(resultID, runID string, windowIndex *int, isTraining bool) *domain.ResultRecord {
	return &domain.ResultRecord{
		ResultID: resultID,
		RunID:    runID,
		Combination: domain.Combination{
			"rsi_period": domain.Number(14),
			"mode":       domain.Symbol("trend"),
		},
		WindowIndex: windowIndex,
		IsTraining:  isTraining,
		Metrics: domain.MetricsBundle{
			TotalTrades:  42,
			WinRate:      0.55,
			ProfitFactor: 1.7,
			NetProfit:    890.5,
		},
		BacktestID: "bt_001",
		CreatedAt:  1700000000000,
	}
}

func TestResultArchive_ArchiveAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewResultArchive(conn)
	ctx := context.Background()

	idx := 3
	records := []*domain.ResultRecord{
		archivedRecord("res_a", "run_1", &idx, true),
		archivedRecord("res_b", "run_1", nil, false),
	}
	require.NoError(t, archive.ArchiveRun(ctx, "run_1", records))

	got, err := archive.GetByRun(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by result_id
	assert.Equal(t, "res_a", got[0].ResultID)
	assert.Equal(t, "res_b", got[1].ResultID)

	require.NotNil(t, got[0].WindowIndex)
	assert.Equal(t, 3, *got[0].WindowIndex)
	assert.True(t, got[0].IsTraining)

	// -1 sentinel decodes back to nil
	assert.Nil(t, got[1].WindowIndex)
	assert.False(t, got[1].IsTraining)

	assert.Equal(t, records[0].Combination.Key(), got[0].Combination.Key())
	assert.Equal(t, 42, got[0].Metrics.TotalTrades)
	assert.InDelta(t, 1.7, got[0].Metrics.ProfitFactor, 1e-9)
}

func TestResultArchive_EmptyInputs(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewResultArchive(conn)
	ctx := context.Background()

	require.NoError(t, archive.ArchiveRun(ctx, "run_1", nil))
	require.ErrorIs(t, archive.ArchiveRun(ctx, "", nil), storage.ErrInvalidInput)

	got, err := archive.GetByRun(ctx, "run_absent")
	require.NoError(t, err)
	assert.Empty(t, got)
}
