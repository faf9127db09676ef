package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunState // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.RunState),
	}
}

// Create adds a new run in pending status. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Create(_ context.Context, r *domain.RunState) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	runCopy := *r
	runCopy.BestParams = r.BestParams.Clone()
	s.data[r.RunID] = &runCopy
	return nil
}

// MarkRunning transitions pending -> running.
func (s *RunStore) MarkRunning(_ context.Context, runID string, startedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.mutable(runID)
	if err != nil {
		return err
	}
	r.Status = domain.StatusRunning
	r.StartedAt = startedAt
	return nil
}

// UpdateProgress records completed/total counters and the derived fraction.
func (s *RunStore) UpdateProgress(_ context.Context, runID string, completed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.mutable(runID)
	if err != nil {
		return err
	}
	r.CompletedCombinations = completed
	r.TotalCombinations = total
	if total > 0 {
		r.Progress = float64(completed) / float64(total)
	} else {
		r.Progress = 0
	}
	return nil
}

// MarkCompleted transitions to completed and records the best parameters.
func (s *RunStore) MarkCompleted(_ context.Context, runID string, best domain.Combination, finishedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.mutable(runID)
	if err != nil {
		return err
	}
	r.Status = domain.StatusCompleted
	r.BestParams = best.Clone()
	r.FinishedAt = finishedAt
	return nil
}

// MarkFailed transitions to failed with a diagnostic detail.
func (s *RunStore) MarkFailed(_ context.Context, runID string, detail string, finishedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.mutable(runID)
	if err != nil {
		return err
	}
	r.Status = domain.StatusFailed
	r.ErrorDetail = detail
	r.FinishedAt = finishedAt
	return nil
}

// MarkCancelled transitions to cancelled.
func (s *RunStore) MarkCancelled(_ context.Context, runID string, finishedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.mutable(runID)
	if err != nil {
		return err
	}
	r.Status = domain.StatusCancelled
	r.FinishedAt = finishedAt
	return nil
}

// GetStatus retrieves the current run state. Returns ErrNotFound if not exists.
func (s *RunStore) GetStatus(_ context.Context, runID string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	runCopy := *r
	runCopy.BestParams = r.BestParams.Clone()
	return &runCopy, nil
}

// List retrieves all runs ordered by created_at DESC.
func (s *RunStore) List(_ context.Context) ([]*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RunState, 0, len(s.data))
	for _, r := range s.data {
		runCopy := *r
		runCopy.BestParams = r.BestParams.Clone()
		result = append(result, &runCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// mutable returns the stored run for modification, guarding terminal states.
// Callers must hold the write lock.
func (s *RunStore) mutable(runID string) (*domain.RunState, error) {
	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if r.Status.Terminal() {
		return nil, storage.ErrTerminalState
	}
	return r, nil
}

// Verify interface compliance at compile time.
var _ storage.RunStore = (*RunStore)(nil)
