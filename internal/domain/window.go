package domain

import "time"

// Window is one train/test split in a walk-forward sequence. Dates are
// inclusive on both ends of each range.
type Window struct {
	Index int

	TrainingStart time.Time
	TrainingEnd   time.Time
	TestingStart  time.Time
	TestingEnd    time.Time
}

// Valid re-checks the ordering invariant
// training_start <= training_end < testing_start <= testing_end.
// Callers use this defensively; window generation must never rely on it to
// filter bad windows silently.
func (w Window) Valid() bool {
	if w.TrainingStart.After(w.TrainingEnd) {
		return false
	}
	if !w.TrainingEnd.Before(w.TestingStart) {
		return false
	}
	if w.TestingStart.After(w.TestingEnd) {
		return false
	}
	return true
}

// WindowResult pairs a window with its training-period winner and the
// single out-of-sample backtest of that winner. TestingResult may carry a
// failed (zero-trade) record; TrainingWinner is never nil.
type WindowResult struct {
	Window         Window
	TrainingWinner *ResultRecord
	TestingResult  *ResultRecord
}
