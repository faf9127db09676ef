package clickhouse

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runMigrations applies the archive schema, preferring the SQL file shipped
// with the storage layer and falling back to the inline copy.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	paths := []string{
		"../migrations/clickhouse/001_result_archive.sql",
		"internal/storage/migrations/clickhouse/001_result_archive.sql",
	}
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		require.NoError(t, conn.Exec(ctx, string(content)), "failed to apply %s", p)
		return
	}

	// Inline fallback, kept in sync with 001_result_archive.sql
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS result_archive (
			result_id         String,
			run_id            String,
			window_index      Int32,
			is_training       UInt8,
			combination       String,
			total_trades      Int32,
			win_rate          Float64,
			profit_factor     Float64,
			net_profit        Float64,
			sharpe_ratio      Float64,
			sortino_ratio     Float64,
			max_drawdown_pct  Float64,
			expectancy        Float64,
			avg_r_multiple    Float64,
			calmar_ratio      Float64,
			backtest_id       String,
			sim_error         String,
			created_at        Int64
		) ENGINE = MergeTree()
		ORDER BY (run_id, result_id)
	`)
	require.NoError(t, err)
}
