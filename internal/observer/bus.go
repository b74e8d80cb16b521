// Package observer implements the Observer Bus (spec.md §4.8): a
// non-blocking fan-out of engine lifecycle events to registered loggers.
// The fan-out pattern (per-subscriber buffered channel, drop on full
// rather than block) is adapted from the teacher's SSE Broadcaster
// (internal/server/sse.go), generalized from one-broadcaster-per-pipeline
// HTTP streaming to many registered Logger connectors.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/orgloop/engine/internal/connector"
)

// Taxonomy is the fixed set of observer event kinds named in spec.md §4.8.
const (
	KindSourcePolled     = "source.polled"
	KindEventAccepted    = "event.accepted"
	KindRouteMatched     = "route.matched"
	KindTransformDropped = "transform.dropped"
	KindDeliveryAttempt  = "delivery.attempt"
	KindDeliveryResult   = "delivery.result"
	KindEngineLifecycle  = "engine.lifecycle"
	KindCompaction       = "wal.compaction"
)

const subscriberBuffer = 256

type subscriber struct {
	logger connector.Logger
	ch     chan connector.ObserverEvent
}

// Bus fans engine events out to every registered Logger. Thread-safe.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscriber
	wg   sync.WaitGroup
}

func New() *Bus {
	return &Bus{}
}

// Register starts a dedicated delivery goroutine for logger and returns an
// unregister function. Each logger gets its own bounded channel so one slow
// logger never blocks another or the emitting pipeline stage.
func (b *Bus) Register(logger connector.Logger) func() {
	sub := &subscriber{logger: logger, ch: make(chan connector.ObserverEvent, subscriberBuffer)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			logger.Observe(ev)
		}
	}()

	return func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}
}

// Emit publishes an event to every registered logger. If a logger's buffer
// is full, the event is dropped for that logger only — observers never
// apply backpressure to the pipeline (spec.md §4.8).
func (b *Bus) Emit(kind string, fields map[string]any) {
	ev := connector.ObserverEvent{
		Kind:      kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Fields:    fields,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Dropped for this logger only.
		}
	}
}

// Shutdown unregisters every logger and waits for their delivery goroutines
// to drain, giving each logger's Shutdown a bounded window via ctx.
func (b *Bus) Shutdown(ctx context.Context) {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	for _, sub := range subs {
		_ = sub.logger.Shutdown(ctx)
	}
}
