package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// terminalGuard excludes terminal runs from state transitions.
const terminalGuard = `status NOT IN ('completed', 'failed', 'cancelled')`

// Create adds a new run in pending status. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Create(ctx context.Context, r *domain.RunState) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	best, err := marshalBestParams(r.BestParams)
	if err != nil {
		return fmt.Errorf("marshal best params: %w", err)
	}

	query := `
		INSERT INTO optimization_runs (
			run_id, name, mode, status,
			total_combinations, completed_combinations, progress,
			best_params, error_detail,
			created_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RunID,
		r.Name,
		string(r.Mode),
		string(r.Status),
		r.TotalCombinations,
		r.CompletedCombinations,
		r.Progress,
		best,
		r.ErrorDetail,
		r.CreatedAt,
		r.StartedAt,
		r.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkRunning transitions pending -> running.
func (s *RunStore) MarkRunning(ctx context.Context, runID string, startedAt int64) error {
	query := `
		UPDATE optimization_runs
		SET status = 'running', started_at = $2
		WHERE run_id = $1 AND ` + terminalGuard

	return s.guardedUpdate(ctx, runID, query, runID, startedAt)
}

// UpdateProgress records completed/total counters and the derived fraction.
func (s *RunStore) UpdateProgress(ctx context.Context, runID string, completed, total int) error {
	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total)
	}

	query := `
		UPDATE optimization_runs
		SET completed_combinations = $2, total_combinations = $3, progress = $4
		WHERE run_id = $1 AND ` + terminalGuard

	return s.guardedUpdate(ctx, runID, query, runID, completed, total, progress)
}

// MarkCompleted transitions to completed and records the best parameters.
func (s *RunStore) MarkCompleted(ctx context.Context, runID string, best domain.Combination, finishedAt int64) error {
	bestJSON, err := marshalBestParams(best)
	if err != nil {
		return fmt.Errorf("marshal best params: %w", err)
	}

	query := `
		UPDATE optimization_runs
		SET status = 'completed', best_params = $2, finished_at = $3
		WHERE run_id = $1 AND ` + terminalGuard

	return s.guardedUpdate(ctx, runID, query, runID, bestJSON, finishedAt)
}

// MarkFailed transitions to failed with a diagnostic detail.
func (s *RunStore) MarkFailed(ctx context.Context, runID string, detail string, finishedAt int64) error {
	query := `
		UPDATE optimization_runs
		SET status = 'failed', error_detail = $2, finished_at = $3
		WHERE run_id = $1 AND ` + terminalGuard

	return s.guardedUpdate(ctx, runID, query, runID, detail, finishedAt)
}

// MarkCancelled transitions to cancelled.
func (s *RunStore) MarkCancelled(ctx context.Context, runID string, finishedAt int64) error {
	query := `
		UPDATE optimization_runs
		SET status = 'cancelled', finished_at = $2
		WHERE run_id = $1 AND ` + terminalGuard

	return s.guardedUpdate(ctx, runID, query, runID, finishedAt)
}

// GetStatus retrieves the current run state. Returns ErrNotFound if not exists.
func (s *RunStore) GetStatus(ctx context.Context, runID string) (*domain.RunState, error) {
	query := runColumns + ` WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List retrieves all runs ordered by created_at DESC.
func (s *RunStore) List(ctx context.Context) ([]*domain.RunState, error) {
	query := runColumns + ` ORDER BY created_at DESC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunState
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// guardedUpdate executes a transition query and maps the zero-rows case to
// either ErrNotFound or ErrTerminalState.
func (s *RunStore) guardedUpdate(ctx context.Context, runID, query string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// The guard rejected the update. Distinguish missing from terminal.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM optimization_runs WHERE run_id = $1)`, runID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check run existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrTerminalState
}

const runColumns = `
	SELECT run_id, name, mode, status,
	       total_combinations, completed_combinations, progress,
	       best_params, error_detail,
	       created_at, started_at, finished_at
	FROM optimization_runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.RunState, error) {
	var (
		r        domain.RunState
		mode     string
		status   string
		bestJSON []byte
	)
	err := row.Scan(
		&r.RunID,
		&r.Name,
		&mode,
		&status,
		&r.TotalCombinations,
		&r.CompletedCombinations,
		&r.Progress,
		&bestJSON,
		&r.ErrorDetail,
		&r.CreatedAt,
		&r.StartedAt,
		&r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Mode = domain.RunMode(mode)
	r.Status = domain.RunStatus(status)

	if len(bestJSON) > 0 {
		var tagged map[string]interface{}
		if err := json.Unmarshal(bestJSON, &tagged); err != nil {
			return nil, fmt.Errorf("unmarshal best params: %w", err)
		}
		r.BestParams, err = domain.CombinationFromStorable(tagged)
		if err != nil {
			return nil, fmt.Errorf("decode best params: %w", err)
		}
	}
	return &r, nil
}

// marshalBestParams encodes a combination for the best_params column.
// A nil combination maps to SQL NULL.
func marshalBestParams(c domain.Combination) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c.Storable())
}
