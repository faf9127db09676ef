package domain

// RunStatus is the lifecycle state of an optimization run.
type RunStatus string

// Run lifecycle states. A run is created pending, moves to running, and
// ends in exactly one of the terminal states.
const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RunMode distinguishes the two orchestration entry points.
type RunMode string

const (
	ModeGridSearch  RunMode = "grid_search"
	ModeWalkForward RunMode = "walk_forward"
)

// RunState is the persisted state of one optimization run. It is mutated
// only by the orchestrator (the cancel control-plane call excepted) and is
// immutable once a terminal status is reached.
type RunState struct {
	RunID string
	Name  string
	Mode  RunMode

	Status RunStatus

	// TotalCombinations counts expected simulator calls, not unique
	// combinations: walk-forward runs count every training call plus one
	// testing call per window.
	TotalCombinations     int
	CompletedCombinations int
	Progress              float64

	// BestParams is populated when the run completes. May stay nil when
	// no combination survives the min-trades filter or every summary is
	// flagged overfit.
	BestParams Combination

	ErrorDetail string

	CreatedAt  int64 // unix ms
	StartedAt  int64 // unix ms, 0 until running
	FinishedAt int64 // unix ms, 0 until terminal
}
