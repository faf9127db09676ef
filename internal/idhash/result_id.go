package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeResultID computes a deterministic result_id using SHA256.
// Formula: SHA256(run_id|combination_key|window_index|is_training)
// A nil window index is encoded as -1 so full-range and windowed
// results for the same combination never collide.
// Returns hex-encoded hash (64 characters).
func ComputeResultID(
	runID string,
	combinationKey string,
	windowIndex *int,
	isTraining bool,
) string {
	idx := -1
	if windowIndex != nil {
		idx = *windowIndex
	}

	data := fmt.Sprintf("%s|%s|%d|%t",
		runID,
		combinationKey,
		idx,
		isTraining,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
