// Package scheduler implements the Delivery Scheduler (spec.md §4.7): one
// bounded FIFO queue per actor, a fixed worker pool per queue, and the
// attempt state machine (scheduled → delivered|rejected|error →
// scheduled|failed).
//
// The exponential-backoff shape — base delay, multiplicative factor, a cap,
// and deterministic per-attempt jitter derived from a seed hash rather than
// a shared PRNG — is grounded on the teacher's retry delay calculator
// (internal/attractor/engine/backoff.go). Defaults are overridden to
// spec.md's values (base=1s, factor=2, jitter=±25%, cap=5min,
// max_attempts=5) rather than the teacher's 200ms/2.0/60s/no-jitter.
package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BackoffConfig configures retry delay calculation for one actor's queue.
type BackoffConfig struct {
	Base       time.Duration
	Factor     float64
	Jitter     float64 // fractional, e.g. 0.25 for ±25%
	Cap        time.Duration
	MaxAttempt int
}

// DefaultBackoffConfig returns spec.md §4.7's defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:       time.Second,
		Factor:     2.0,
		Jitter:     0.25,
		Cap:        5 * time.Minute,
		MaxAttempt: 5,
	}
}

// DelayForAttempt returns the backoff delay before attempt (1-indexed,
// counting the attempt that just failed). seed makes the jitter
// deterministic per (event, attempt) pair rather than drawn from a shared
// PRNG, so replays and tests are reproducible.
func DelayForAttempt(attempt int, cfg BackoffConfig, seed string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	baseNS := float64(cfg.Base) * math.Pow(cfg.Factor, float64(attempt-1))
	if cfg.Cap > 0 {
		baseNS = math.Min(baseNS, float64(cfg.Cap))
	}
	if cfg.Jitter > 0 {
		// Map jitterUnit() in [0,1] to a multiplier in [1-Jitter, 1+Jitter].
		m := 1 - cfg.Jitter + 2*cfg.Jitter*jitterUnit(seed)
		baseNS *= m
	}
	if baseNS < 0 {
		baseNS = 0
	}
	return time.Duration(baseNS)
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	const max = float64(^uint64(0))
	return float64(u) / max
}

func jitterSeed(actorID, eventID string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", actorID, eventID, attempt)
}
