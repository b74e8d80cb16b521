// Package source implements the Source Runner (spec.md §4.3): one
// long-lived worker per declared source, in poll, webhook, or hook mode.
// Each worker's only job is getting events durably onto the bus and
// advancing the source's checkpoint; route matching and delivery happen
// downstream of the bus tail.
package source

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/checkpoint"
	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/metrics"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
	"github.com/orgloop/engine/internal/wal"
)

const pollJitterFraction = 0.10 // ±10%, spec.md §4.3

// PollRunner drives one poll-mode source on its declared interval.
type PollRunner struct {
	sourceID string
	source   connector.Source
	interval time.Duration
	bus      *wal.Bus
	store    *checkpoint.Store
	obs      *observer.Bus
	log      *logrus.Entry
}

func NewPollRunner(sourceID string, src connector.Source, interval time.Duration, bus *wal.Bus, store *checkpoint.Store, obs *observer.Bus, log *logrus.Entry) *PollRunner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PollRunner{
		sourceID: sourceID,
		source:   src,
		interval: interval,
		bus:      bus,
		store:    store,
		obs:      obs,
		log:      log.WithField("source", sourceID),
	}
}

// Run blocks, ticking at interval±jitter until ctx is cancelled or the
// source reports ErrNotSupported.
func (r *PollRunner) Run(ctx context.Context) {
	for {
		delay := jitteredInterval(r.interval)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if !r.tick(ctx) {
			return
		}
	}
}

// tick runs one poll and reports whether the runner should keep polling.
func (r *PollRunner) tick(ctx context.Context) bool {
	cp := r.store.Get(r.sourceID)
	result, err := r.source.Poll(ctx, cp.Cursor)
	if err != nil {
		if err == connector.ErrNotSupported {
			metrics.SourcePollTotal.WithLabelValues(r.sourceID, "unsupported").Inc()
			r.log.Warn("source.poll: not supported, stopping poll runner")
			return false
		}
		metrics.SourcePollTotal.WithLabelValues(r.sourceID, "error").Inc()
		r.log.WithError(err).Warn("source.poll: transient error, will retry next tick")
		return true
	}
	metrics.SourcePollTotal.WithLabelValues(r.sourceID, "ok").Inc()

	r.obs.Emit(observer.KindSourcePolled, map[string]any{
		"source_id":   r.sourceID,
		"event_count": len(result.Events),
	})

	for _, ev := range result.Events {
		if err := appendEvent(ctx, r.bus, r.obs, r.sourceID, ev); err != nil {
			r.log.WithError(err).Error("wal append failed, checkpoint not advanced")
			return true
		}
	}

	if result.Checkpoint == "" || result.Checkpoint == cp.Cursor {
		return true
	}
	next := model.Checkpoint{SourceID: r.sourceID, Cursor: result.Checkpoint, UpdatedAt: time.Now().UTC(), DedupEntries: cp.DedupEntries}
	if err := r.store.Put(next); err != nil {
		r.log.WithError(err).Error("checkpoint write failed; next poll may re-deliver")
	}
	return true
}

func appendEvent(ctx context.Context, bus *wal.Bus, obs *observer.Bus, sourceID string, ev model.Event) error {
	if ev.ID == "" {
		ev.ID = model.NewEventID()
	}
	if ev.Source == "" {
		ev.Source = sourceID
	}
	if _, err := bus.Append(ctx, ev); err != nil {
		return err
	}
	obs.Emit(observer.KindEventAccepted, map[string]any{"event_id": ev.ID, "source_id": sourceID})
	return nil
}

func jitteredInterval(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	jitter := float64(base) * pollJitterFraction
	offset := (rand.Float64()*2 - 1) * jitter // [-jitter, +jitter]
	return base + time.Duration(offset)
}
