package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: "run_" + base58(SHA256(name|mode|created_at)[:16])
// The 16-byte prefix keeps the identifier short enough for log lines
// while staying collision-safe for the run volumes involved.
func ComputeRunID(name string, mode string, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%d", name, mode, createdAt)

	hash := sha256.Sum256([]byte(data))
	return "run_" + base58.Encode(hash[:16])
}
