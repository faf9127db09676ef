package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-opt-lab/internal/domain"
	"strategy-opt-lab/internal/paramspace"
	"strategy-opt-lab/internal/simulator"
	"strategy-opt-lab/internal/storage"
	"strategy-opt-lab/internal/storage/memory"
	"strategy-opt-lab/internal/windowplan"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func twoByTwoSpace(t *testing.T) *paramspace.Space {
	t.Helper()
	s, err := paramspace.New(map[string][]domain.ParamValue{
		"period":    {domain.Number(10), domain.Number(20)},
		"stop_loss": {domain.Number(0.01), domain.Number(0.02)},
	})
	require.NoError(t, err)
	return s
}

func combo(period, stopLoss float64) domain.Combination {
	return domain.Combination{
		"period":    domain.Number(period),
		"stop_loss": domain.Number(stopLoss),
	}
}

func gridRequest(space *paramspace.Space) GridRequest {
	return GridRequest{
		Name:           "test-sweep",
		Symbols:        []string{"BTCUSDT"},
		Start:          date(2020, 1, 1),
		End:            date(2020, 12, 31),
		Strategies:     []string{"breakout"},
		InitialCapital: 10000,
		RiskPerTrade:   0.01,
		Space:          space,
		Metric:         domain.MetricProfitFactor,
		MinTrades:      10,
	}
}

type testEnv struct {
	runs    *memory.RunStore
	results *memory.ResultStore
	stub    *simulator.Stub
}

func newTestEnv() *testEnv {
	return &testEnv{
		runs:    memory.NewRunStore(),
		results: memory.NewResultStore(),
		stub:    simulator.NewStub(),
	}
}

func (e *testEnv) orchestrator(opts Options) *Orchestrator {
	opts.RunStore = e.runs
	opts.ResultStore = e.results
	opts.Simulator = e.stub
	return New(opts)
}

func TestRunGridSearch_PicksArgmax(t *testing.T) {
	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 40, ProfitFactor: 1.1}
	env.stub.Script(combo(10, 0.02), &simulator.Result{TotalTrades: 40, ProfitFactor: 2.3})

	orch := env.orchestrator(Options{Workers: 2})
	outcome, err := orch.RunGridSearch(context.Background(), gridRequest(twoByTwoSpace(t)))
	require.NoError(t, err)
	require.NotNil(t, outcome.Best)
	assert.Equal(t, combo(10, 0.02).Key(), outcome.Best.Combination.Key())

	// Every combination produced a persisted record
	records, err := env.results.GetByRun(context.Background(), outcome.RunID, storage.ResultQuery{})
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, 4, env.stub.CallCount())

	state, err := env.runs.GetStatus(context.Background(), outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, 4, state.CompletedCombinations)
	assert.Equal(t, 4, state.TotalCombinations)
	assert.InDelta(t, 1.0, state.Progress, 1e-9)
	assert.Equal(t, combo(10, 0.02).Key(), state.BestParams.Key())
	assert.NotZero(t, state.FinishedAt)
}

func TestRunGridSearch_FailedCombinationIsolated(t *testing.T) {
	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 40, ProfitFactor: 1.4}
	// The would-be winner fails; the run must survive and pick elsewhere
	env.stub.ScriptError(combo(10, 0.01), errors.New("data feed unavailable"))

	orch := env.orchestrator(Options{Workers: 2})
	outcome, err := orch.RunGridSearch(context.Background(), gridRequest(twoByTwoSpace(t)))
	require.NoError(t, err)
	require.NotNil(t, outcome.Best)
	assert.NotEqual(t, combo(10, 0.01).Key(), outcome.Best.Combination.Key())

	// The failure is persisted as a zero-trade record
	records, _ := env.results.GetByRun(context.Background(), outcome.RunID, storage.ResultQuery{})
	require.Len(t, records, 4)
	var failed *domain.ResultRecord
	for _, r := range records {
		if r.Failed() {
			failed = r
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "data feed unavailable", failed.SimError)
	assert.Zero(t, failed.Metrics.TotalTrades)
}

func TestRunGridSearch_NoQualifiedCombination(t *testing.T) {
	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 3, ProfitFactor: 2.0}

	orch := env.orchestrator(Options{Workers: 2})
	outcome, err := orch.RunGridSearch(context.Background(), gridRequest(twoByTwoSpace(t)))
	require.NoError(t, err)
	assert.Nil(t, outcome.Best)

	state, _ := env.runs.GetStatus(context.Background(), outcome.RunID)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Nil(t, state.BestParams)
}

func TestRunGridSearch_DeterministicTieBreak(t *testing.T) {
	for i := 0; i < 3; i++ {
		env := newTestEnv()
		// All four combinations score identically
		env.stub.Default = &simulator.Result{TotalTrades: 40, ProfitFactor: 1.5}

		orch := env.orchestrator(Options{Workers: 4})
		outcome, err := orch.RunGridSearch(context.Background(), gridRequest(twoByTwoSpace(t)))
		require.NoError(t, err)
		require.NotNil(t, outcome.Best)
		// Lexically smallest key: period=10, stop_loss=0.01
		assert.Equal(t, combo(10, 0.01).Key(), outcome.Best.Combination.Key())
	}
}

func TestRunGridSearch_ProgressCallback(t *testing.T) {
	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 40, ProfitFactor: 1.2}

	var snapshots []Progress
	orch := env.orchestrator(Options{
		Workers:    1,
		OnProgress: func(p Progress) { snapshots = append(snapshots, p) },
	})
	_, err := orch.RunGridSearch(context.Background(), gridRequest(twoByTwoSpace(t)))
	require.NoError(t, err)

	require.Len(t, snapshots, 4)
	for i, p := range snapshots {
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 4, p.Total)
	}
	assert.InDelta(t, 1.0, snapshots[3].Fraction, 1e-9)
}

func TestRunGridSearch_Cancellation(t *testing.T) {
	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 40, ProfitFactor: 1.2}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	env.stub.Hook = func(simulator.Request) error {
		if calls.Add(1) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	orch := env.orchestrator(Options{Workers: 1})
	_, err := orch.RunGridSearch(ctx, gridRequest(twoByTwoSpace(t)))
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	// The run is marked cancelled and partial results stay readable
	runs, listErr := env.runs.List(context.Background())
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusCancelled, runs[0].Status)

	records, _ := env.results.GetByRun(context.Background(), runs[0].RunID, storage.ResultQuery{})
	assert.NotEmpty(t, records)
	assert.Less(t, len(records), 4)
}

func walkForwardRequest(t *testing.T, space *paramspace.Space, minTrades int) WalkForwardRequest {
	t.Helper()
	plan, err := windowplan.New(windowplan.Config{
		TrainingMonths: 6,
		TestingMonths:  3,
		StepMonths:     3,
		Metric:         "profit_factor",
		MinTrades:      minTrades,
	})
	require.NoError(t, err)

	return WalkForwardRequest{
		Name:           "wf-sweep",
		Symbols:        []string{"BTCUSDT"},
		Start:          date(2020, 1, 1),
		End:            date(2020, 12, 31),
		Strategies:     []string{"breakout"},
		InitialCapital: 10000,
		RiskPerTrade:   0.01,
		Space:          space,
		Plan:           plan,
	}
}

func TestRunWalkForward_EndToEnd(t *testing.T) {
	space, err := paramspace.New(map[string][]domain.ParamValue{
		"period": {domain.Number(10), domain.Number(20)},
	})
	require.NoError(t, err)

	env := newTestEnv()
	env.stub.Script(domain.Combination{"period": domain.Number(10)},
		&simulator.Result{TotalTrades: 50, ProfitFactor: 2.0, NetProfit: 800, WinRate: 0.55})
	env.stub.Script(domain.Combination{"period": domain.Number(20)},
		&simulator.Result{TotalTrades: 50, ProfitFactor: 1.2, NetProfit: 200, WinRate: 0.48})

	orch := env.orchestrator(Options{Workers: 2})
	outcome, err := orch.RunWalkForward(context.Background(), walkForwardRequest(t, space, 10))
	require.NoError(t, err)

	// Two windows fit 2020 with 6/3/3 months
	require.Len(t, outcome.Windows, 2)
	for _, w := range outcome.Windows {
		require.NotNil(t, w.TrainingWinner)
		require.NotNil(t, w.TestingResult)
		assert.Equal(t, "period=number:10", w.TrainingWinner.Combination.Key())
		assert.True(t, w.TrainingWinner.IsTraining)
		assert.False(t, w.TestingResult.IsTraining)
	}

	// Stub returns identical figures in and out of sample: no degradation
	require.Len(t, outcome.Summaries, 1)
	s := outcome.Summaries[0]
	assert.Equal(t, 2, s.Windows)
	assert.False(t, s.IsOverfit)
	require.NotNil(t, s.DegradationPct)
	assert.InDelta(t, 0.0, *s.DegradationPct, 1e-9)

	require.NotNil(t, outcome.Best)
	assert.Equal(t, "period=number:10", outcome.Best.Key())

	// 2 windows * 2 training calls + 2 testing calls
	assert.Equal(t, 6, env.stub.CallCount())

	state, _ := env.runs.GetStatus(context.Background(), outcome.RunID)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, 6, state.CompletedCombinations)
	assert.InDelta(t, 1.0, state.Progress, 1e-9)
	assert.Equal(t, "period=number:10", state.BestParams.Key())

	// Validation fields landed on the winning training records
	records, _ := env.results.GetByRun(context.Background(), outcome.RunID, storage.ResultQuery{TrainingOnly: true})
	var validated int
	for _, r := range records {
		if r.Validation != nil {
			validated++
			assert.False(t, r.Validation.IsOverfit)
		}
	}
	assert.Equal(t, 2, validated)
}

func TestRunWalkForward_SkipsWindowsWithoutWinner(t *testing.T) {
	space, err := paramspace.New(map[string][]domain.ParamValue{
		"period": {domain.Number(10), domain.Number(20)},
	})
	require.NoError(t, err)

	env := newTestEnv()
	env.stub.Default = &simulator.Result{TotalTrades: 5, ProfitFactor: 1.5}

	orch := env.orchestrator(Options{Workers: 2})
	outcome, err := orch.RunWalkForward(context.Background(), walkForwardRequest(t, space, 30))
	require.NoError(t, err)

	assert.Empty(t, outcome.Windows)
	assert.Empty(t, outcome.Summaries)
	assert.Nil(t, outcome.Best)

	// Both testing calls dropped out of the total; progress still closes at 1
	state, _ := env.runs.GetStatus(context.Background(), outcome.RunID)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, 4, state.TotalCombinations)
	assert.Equal(t, 4, state.CompletedCombinations)
	assert.InDelta(t, 1.0, state.Progress, 1e-9)
}

func TestRunWalkForward_RangeTooShort(t *testing.T) {
	env := newTestEnv()
	space := twoByTwoSpace(t)

	req := walkForwardRequest(t, space, 10)
	req.End = date(2020, 6, 30) // fits training only

	orch := env.orchestrator(Options{Workers: 2})
	_, err := orch.RunWalkForward(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, env.stub.CallCount())

	// No run record is created for a request that cannot produce windows
	runs, _ := env.runs.List(context.Background())
	assert.Empty(t, runs)
}

func TestRunWalkForward_TestingFailureRecorded(t *testing.T) {
	space, err := paramspace.New(map[string][]domain.ParamValue{
		"period": {domain.Number(10)},
	})
	require.NoError(t, err)

	env := newTestEnv()
	winner := domain.Combination{"period": domain.Number(10)}

	// Succeed in training, fail out of sample
	var calls atomic.Int32
	env.stub.Script(winner, &simulator.Result{TotalTrades: 50, ProfitFactor: 2.0, NetProfit: 500})
	env.stub.Hook = func(req simulator.Request) error {
		calls.Add(1)
		// Calls alternate training, testing per window with one combination
		if calls.Load()%2 == 0 {
			return errors.New("testing feed gap")
		}
		return nil
	}

	orch := env.orchestrator(Options{Workers: 1})
	outcome, err := orch.RunWalkForward(context.Background(), walkForwardRequest(t, space, 10))
	require.NoError(t, err)

	require.Len(t, outcome.Windows, 2)
	for _, w := range outcome.Windows {
		require.NotNil(t, w.TestingResult)
		assert.True(t, w.TestingResult.Failed())
		assert.Zero(t, w.TestingResult.Metrics.TotalTrades)
	}

	// Zero OOS against positive IS reads as full degradation: flagged
	require.Len(t, outcome.Summaries, 1)
	assert.True(t, outcome.Summaries[0].IsOverfit)
	assert.Nil(t, outcome.Best)

	state, _ := env.runs.GetStatus(context.Background(), outcome.RunID)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Nil(t, state.BestParams)
}
