// Package connector defines the boundary between the engine core and
// plugins (spec.md §6 and §9): Source, Actor, Transform, and Logger are
// capability interfaces. The core never knows about concrete connector
// types, only these contracts.
package connector

import (
	"context"

	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
)

// PollResult is returned by a poll Source on each tick.
type PollResult struct {
	Events     []model.Event
	Checkpoint string
}

// Source emits events into the bus, either by being polled on an interval
// or by registering webhook/hook handlers (spec.md §4.3).
type Source interface {
	Init(ctx context.Context, cfg dynval.Value) error
	// Poll is called by the Source Runner for poll-mode sources. checkpoint
	// is the opaque cursor returned by the previous call, or "" on first
	// run. Poll sources that don't support polling return ErrNotSupported.
	Poll(ctx context.Context, checkpoint string) (PollResult, error)
	Shutdown(ctx context.Context) error
}

// WebhookSource is implemented by sources that translate inbound HTTP
// requests into events (spec.md §4.3 webhook mode, §4.4 HTTP Listener).
type WebhookSource interface {
	Source
	// HandleWebhook translates a request body into zero or more events.
	HandleWebhook(ctx context.Context, body []byte, headers map[string][]string) ([]model.Event, error)
}

// DeliveryResult is returned by Actor.Deliver.
type DeliveryResult struct {
	Status model.DeliveryStatus
	Error  string
}

// Actor is the terminal recipient of a delivered event (spec.md §4.7, §6).
// Deliver MUST be safe to call concurrently: actor instances are shared
// across a per-actor worker pool.
type Actor interface {
	Init(ctx context.Context, cfg dynval.Value) error
	Deliver(ctx context.Context, event model.Event, routeConfig map[string]any) (DeliveryResult, error)
	Shutdown(ctx context.Context) error
}

// Transform is a per-route, possibly stateful pipeline stage (spec.md
// §4.6). Execute returns (event, true) to pass the event along, or
// (zero, false) to drop it from that route's pipeline. Implementations
// MUST be re-entrancy-safe across concurrent events on different routes,
// since transform instances are constructed once per route.
type Transform interface {
	Init(ctx context.Context, cfg dynval.Value) error
	Execute(ctx context.Context, event model.Event) (model.Event, bool, error)
	Shutdown(ctx context.Context) error
}

// ObserverEvent is one entry in the fixed taxonomy fanned out by the
// Observer Bus (spec.md §4.8).
type ObserverEvent struct {
	Kind      string         `json:"kind"`
	Timestamp string         `json:"ts"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger consumes observer events (spec.md §6). Observe MUST NOT block;
// the Observer Bus treats a slow logger by dropping events for it alone.
type Logger interface {
	Init(ctx context.Context, cfg dynval.Value) error
	Observe(ev ObserverEvent)
	Shutdown(ctx context.Context) error
}
