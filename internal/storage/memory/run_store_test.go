package memory

import (
	"context"
	"errors"
	"testing"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/storage"
)

func pendingRun(runID string, createdAt int64) *domain.RunState {
	return &domain.RunState{
		RunID:             runID,
		Name:              "sweep",
		Mode:              domain.ModeGridSearch,
		Status:            domain.StatusPending,
		TotalCombinations: 12,
		CreatedAt:         createdAt,
	}
}

func TestRunStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	if err := store.Create(ctx, pendingRun("run_1", 1000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetStatus(ctx, "run_1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if got.Status != domain.StatusPending || got.TotalCombinations != 12 {
		t.Errorf("unexpected state: %+v", got)
	}
}

func TestRunStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	_ = store.Create(ctx, pendingRun("run_1", 1000))
	err := store.Create(ctx, pendingRun("run_1", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestRunStore_CreateInvalid(t *testing.T) {
	store := NewRunStore()

	if err := store.Create(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil run, got %v", err)
	}
	if err := store.Create(context.Background(), &domain.RunState{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty run_id, got %v", err)
	}
}

func TestRunStore_GetNotFound(t *testing.T) {
	store := NewRunStore()

	_, err := store.GetStatus(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	_ = store.Create(ctx, pendingRun("run_1", 1000))

	if err := store.MarkRunning(ctx, "run_1", 1500); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := store.UpdateProgress(ctx, "run_1", 6, 12); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	got, _ := store.GetStatus(ctx, "run_1")
	if got.Status != domain.StatusRunning || got.StartedAt != 1500 {
		t.Errorf("unexpected running state: %+v", got)
	}
	if got.CompletedCombinations != 6 || got.Progress != 0.5 {
		t.Errorf("unexpected progress: completed=%d progress=%f", got.CompletedCombinations, got.Progress)
	}

	best := domain.Combination{"period": domain.Number(14)}
	if err := store.MarkCompleted(ctx, "run_1", best, 2000); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, _ = store.GetStatus(ctx, "run_1")
	if got.Status != domain.StatusCompleted || got.FinishedAt != 2000 {
		t.Errorf("unexpected completed state: %+v", got)
	}
	if got.BestParams.Key() != best.Key() {
		t.Errorf("best params not stored: %v", got.BestParams)
	}
}

func TestRunStore_TerminalStateGuard(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	_ = store.Create(ctx, pendingRun("run_1", 1000))
	_ = store.MarkCancelled(ctx, "run_1", 1500)

	if err := store.MarkRunning(ctx, "run_1", 2000); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState on MarkRunning, got %v", err)
	}
	if err := store.UpdateProgress(ctx, "run_1", 1, 10); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState on UpdateProgress, got %v", err)
	}
	if err := store.MarkCompleted(ctx, "run_1", nil, 2000); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState on MarkCompleted, got %v", err)
	}
	if err := store.MarkFailed(ctx, "run_1", "boom", 2000); !errors.Is(err, storage.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState on MarkFailed, got %v", err)
	}

	// The terminal state itself is untouched.
	got, _ := store.GetStatus(ctx, "run_1")
	if got.Status != domain.StatusCancelled {
		t.Errorf("terminal status changed to %s", got.Status)
	}
}

func TestRunStore_ListOrderedByCreatedAtDesc(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	_ = store.Create(ctx, pendingRun("run_old", 1000))
	_ = store.Create(ctx, pendingRun("run_new", 3000))
	_ = store.Create(ctx, pendingRun("run_mid", 2000))

	runs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run_new" || runs[1].RunID != "run_mid" || runs[2].RunID != "run_old" {
		t.Errorf("unexpected order: %s, %s, %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
}

func TestRunStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	_ = store.Create(ctx, pendingRun("run_1", 1000))

	got, _ := store.GetStatus(ctx, "run_1")
	got.Status = domain.StatusFailed
	got.Name = "mutated"

	fresh, _ := store.GetStatus(ctx, "run_1")
	if fresh.Status != domain.StatusPending || fresh.Name != "sweep" {
		t.Error("store state mutated through returned copy")
	}
}
