package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.ResultRecord // keyed by result_id
	order []string                        // result_ids in insertion order
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string]*domain.ResultRecord),
	}
}

// Append adds a new record. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Append(_ context.Context, r *domain.ResultRecord) error {
	if r == nil || r.ResultID == "" || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ResultID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ResultID] = copyRecord(r)
	s.order = append(s.order, r.ResultID)
	return nil
}

// AttachValidation sets the validation fields of an existing record.
func (s *ResultStore) AttachValidation(_ context.Context, resultID string, v *domain.ValidationFields) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[resultID]
	if !exists {
		return storage.ErrNotFound
	}

	fields := *v
	r.Validation = &fields
	return nil
}

// GetByRun retrieves records for a run, narrowed by q.
func (s *ResultStore) GetByRun(_ context.Context, runID string, q storage.ResultQuery) ([]*domain.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ResultRecord
	for _, id := range s.order {
		r := s.data[id]
		if r.RunID != runID {
			continue
		}
		if q.TrainingOnly && !r.IsTraining {
			continue
		}
		result = append(result, copyRecord(r))
	}

	if q.SortMetric != "" {
		metric := q.SortMetric
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Metrics.Value(metric) > result[j].Metrics.Value(metric)
		})
	}

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}

	return result, nil
}

// copyRecord deep-copies a record so callers never share mutable state
// with the store.
func copyRecord(r *domain.ResultRecord) *domain.ResultRecord {
	out := *r
	out.Combination = r.Combination.Clone()
	if r.WindowIndex != nil {
		idx := *r.WindowIndex
		out.WindowIndex = &idx
	}
	if r.Validation != nil {
		v := *r.Validation
		out.Validation = &v
	}
	return &out
}

// Verify interface compliance at compile time.
var _ storage.ResultStore = (*ResultStore)(nil)
