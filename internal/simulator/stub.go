package simulator

import (
	"context"
	"fmt"
	"sync"

	"strategy-opt-lab/internal/domain"
)

// Stub is a scripted simulator for testing. Results and errors are keyed
// by combination key; unscripted combinations fall back to Default.
type Stub struct {
	mu      sync.Mutex
	results map[string]*Result
	errs    map[string]error
	calls   []Request

	// Default is returned for combinations with no scripted entry.
	Default *Result

	// Hook, when set, runs before each call and may abort it.
	Hook func(req Request) error
}

// NewStub creates an empty scripted simulator.
func NewStub() *Stub {
	return &Stub{
		results: make(map[string]*Result),
		errs:    make(map[string]error),
	}
}

// Script registers the result returned for a combination.
func (s *Stub) Script(combo domain.Combination, res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[combo.Key()] = res
}

// ScriptError registers a failure for a combination.
func (s *Stub) ScriptError(combo domain.Combination, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[combo.Key()] = err
}

// RunBacktest replays the scripted outcome for req.Params.
func (s *Stub) RunBacktest(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Hook != nil {
		if err := s.Hook(req); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	key := req.Params.Key()
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	if res, ok := s.results[key]; ok {
		out := *res
		if out.BacktestID == "" {
			out.BacktestID = fmt.Sprintf("bt_%03d", len(s.calls))
		}
		return &out, nil
	}
	if s.Default != nil {
		out := *s.Default
		out.BacktestID = fmt.Sprintf("bt_%03d", len(s.calls))
		return &out, nil
	}
	return nil, fmt.Errorf("no scripted result for combination %s", key)
}

// Calls returns a copy of all requests seen so far.
func (s *Stub) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many backtests were requested.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Ensure Stub implements Simulator
var _ Simulator = (*Stub)(nil)
