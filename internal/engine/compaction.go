package engine

import (
	"context"
	"time"

	"github.com/orgloop/engine/internal/observer"
)

// startCompaction runs the background ticker described in SPEC_FULL.md's
// supplemented compaction feature: every CompactTick, sweep expired dedup
// fingerprints from the checkpoint store, and truncate WAL segments that
// are both older than CompactMaxAge and only once the total sealed-segment
// size exceeds CompactMinWAL. The size gate avoids truncating (and thus
// losing replay history for a freshly restarted dispatch loop) while the
// log is still small enough that keeping it costs nothing.
func (e *Engine) startCompaction(ctx context.Context) {
	compactCtx, cancel := context.WithCancel(ctx)
	e.compactCancel = cancel

	go func() {
		ticker := time.NewTicker(e.cfg.CompactTick)
		defer ticker.Stop()
		for {
			select {
			case <-compactCtx.Done():
				return
			case <-ticker.C:
				e.runCompaction()
			}
		}
	}()
}

func (e *Engine) runCompaction() {
	if err := e.checkpoint.SweepExpired(); err != nil {
		e.log.WithError(err).Warn("checkpoint sweep failed")
	}

	stats, err := e.bus.SealedStats()
	if err != nil {
		e.log.WithError(err).Warn("wal sealed stats failed")
		return
	}

	var total int64
	for _, s := range stats {
		total += s.Bytes
	}
	if total < e.cfg.CompactMinWAL {
		return
	}

	cutoff := time.Now().Add(-e.cfg.CompactMaxAge)
	var truncateBefore uint64
	var found bool
	for _, s := range stats {
		if s.ModTime.After(cutoff) {
			break
		}
		truncateBefore = s.EndOffset
		found = true
	}
	if !found {
		return
	}

	if err := e.bus.Truncate(truncateBefore); err != nil {
		e.log.WithError(err).Warn("wal truncate failed")
		return
	}
	e.observer.Emit(observer.KindCompaction, map[string]any{"truncated_before": truncateBefore, "total_bytes": total})
}
