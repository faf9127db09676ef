package idhash

import "testing"

func TestComputeResultID(t *testing.T) {
	idx := 3
	tests := []struct {
		name           string
		runID          string
		combinationKey string
		windowIndex    *int
		isTraining     bool
		wantLen        int // hash length should be 64
	}{
		{
			name:           "windowed training result",
			runID:          "run_abc",
			combinationKey: "rsi_period=number:14&stop_loss=number:0.02",
			windowIndex:    &idx,
			isTraining:     true,
			wantLen:        64,
		},
		{
			name:           "full-range result without window",
			runID:          "run_abc",
			combinationKey: "rsi_period=number:14&stop_loss=number:0.02",
			windowIndex:    nil,
			isTraining:     true,
			wantLen:        64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeResultID(tt.runID, tt.combinationKey, tt.windowIndex, tt.isTraining)
			if len(got) != tt.wantLen {
				t.Errorf("result_id length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestComputeResultID_Deterministic(t *testing.T) {
	idx := 0
	first := ComputeResultID("run_abc", "period=number:14", &idx, true)
	second := ComputeResultID("run_abc", "period=number:14", &idx, true)
	if first != second {
		t.Errorf("Determinism failed: %s != %s", first, second)
	}
}

func TestComputeResultID_DifferentInputs(t *testing.T) {
	idx := 0
	base := ComputeResultID("run_abc", "period=number:14", &idx, true)

	if diff := ComputeResultID("run_xyz", "period=number:14", &idx, true); diff == base {
		t.Error("Different run_id should produce different hash")
	}
	if diff := ComputeResultID("run_abc", "period=number:21", &idx, true); diff == base {
		t.Error("Different combination should produce different hash")
	}
	other := 1
	if diff := ComputeResultID("run_abc", "period=number:14", &other, true); diff == base {
		t.Error("Different window_index should produce different hash")
	}
	if diff := ComputeResultID("run_abc", "period=number:14", &idx, false); diff == base {
		t.Error("Different phase should produce different hash")
	}
	if diff := ComputeResultID("run_abc", "period=number:14", nil, true); diff == base {
		t.Error("Nil window_index should produce different hash than index 0")
	}
}
