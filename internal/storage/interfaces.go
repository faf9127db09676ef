package storage

import (
	"context"

	"strategy-opt-lab/internal/domain"
)

// ResultQuery narrows and orders GetByRun output.
type ResultQuery struct {
	// Limit caps the number of records returned. Zero means no cap.
	Limit int

	// SortMetric, when set, orders records by that metric descending.
	// Unset keeps insertion order.
	SortMetric domain.Metric

	// TrainingOnly restricts the query to training-phase records.
	TrainingOnly bool
}

// RunStore provides access to optimization_runs storage.
// Lifecycle transitions are guarded: once a run reaches a terminal status
// (completed, failed, cancelled) every further transition returns
// ErrTerminalState.
type RunStore interface {
	// Create adds a new run in pending status. Returns ErrDuplicateKey if run_id exists.
	Create(ctx context.Context, r *domain.RunState) error

	// MarkRunning transitions pending -> running. Returns ErrNotFound if not exists.
	MarkRunning(ctx context.Context, runID string, startedAt int64) error

	// UpdateProgress records completed/total counters and the derived fraction.
	// Total may shrink when windows are skipped.
	UpdateProgress(ctx context.Context, runID string, completed, total int) error

	// MarkCompleted transitions to completed and records the best parameters.
	MarkCompleted(ctx context.Context, runID string, best domain.Combination, finishedAt int64) error

	// MarkFailed transitions to failed with a diagnostic detail.
	MarkFailed(ctx context.Context, runID string, detail string, finishedAt int64) error

	// MarkCancelled transitions to cancelled. Partial results stay readable.
	MarkCancelled(ctx context.Context, runID string, finishedAt int64) error

	// GetStatus retrieves the current run state. Returns ErrNotFound if not exists.
	GetStatus(ctx context.Context, runID string) (*domain.RunState, error)

	// List retrieves all runs ordered by created_at DESC.
	List(ctx context.Context) ([]*domain.RunState, error)
}

// ResultStore provides access to result_records storage. Records are
// append-only; AttachValidation is the single permitted enrichment, filling
// validation columns that are empty at append time.
type ResultStore interface {
	// Append adds a new record. Returns ErrDuplicateKey if result_id exists.
	Append(ctx context.Context, r *domain.ResultRecord) error

	// AttachValidation sets the validation fields of an existing record.
	// Returns ErrNotFound if result_id does not exist.
	AttachValidation(ctx context.Context, resultID string, v *domain.ValidationFields) error

	// GetByRun retrieves records for a run, narrowed by q.
	GetByRun(ctx context.Context, runID string, q ResultQuery) ([]*domain.ResultRecord, error)
}

// ResultArchive is the analytical copy of finished runs, kept in a
// column store for cross-run queries. Writes happen once per run, after
// the run reaches a terminal status.
type ResultArchive interface {
	// ArchiveRun bulk-copies the run's records into the archive.
	ArchiveRun(ctx context.Context, runID string, records []*domain.ResultRecord) error

	// GetByRun retrieves archived records for a run, ordered by result_id.
	GetByRun(ctx context.Context, runID string) ([]*domain.ResultRecord, error)
}
