// Package model defines the wire and in-memory shapes shared across the
// engine: events, route/source/actor specs, checkpoints, and delivery
// attempts.
package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType enumerates the event kinds a source may emit.
type EventType string

const (
	EventResourceChanged EventType = "resource.changed"
	EventActorStopped    EventType = "actor.stopped"
	EventMessageReceived EventType = "message.received"
)

// Valid reports whether t is one of the declared event types.
func (t EventType) Valid() bool {
	switch t {
	case EventResourceChanged, EventActorStopped, EventMessageReceived:
		return true
	default:
		return false
	}
}

// Provenance carries the platform-native origin of an event. Platform,
// PlatformEvent, Author, and AuthorType are named per spec.md §3; Extra
// holds any additional connector-specific keys.
type Provenance struct {
	Platform      string         `json:"platform,omitempty"`
	PlatformEvent string         `json:"platform_event,omitempty"`
	Author        string         `json:"author,omitempty"`
	AuthorType    string         `json:"author_type,omitempty"`
	Extra         map[string]any `json:"-"`
}

// Payload is a free-form, JSON-serializable mapping of string to value.
type Payload map[string]any

// Event is immutable once appended to the bus.
type Event struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Type        EventType  `json:"type"`
	Timestamp   time.Time  `json:"timestamp"`
	Provenance  Provenance `json:"provenance"`
	Payload     Payload    `json:"payload"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// NewEventID returns a new time-ordered event identifier. ulid.Make uses the
// default monotonic entropy source and the current wall-clock time, giving
// IDs that sort in emission order within a process, including several in the
// same millisecond, as long as the wall clock does not step backwards.
func NewEventID() string {
	return ulid.Make().String()
}

// Clone returns a deep-enough copy of e suitable for independent mutation by
// a route's transform pipeline. Each route sees its own cloned event so that
// a drop or enrichment on one route never leaks into another (spec.md §4.6).
func (e Event) Clone() Event {
	c := e
	c.Payload = cloneMap(e.Payload)
	c.Provenance.Extra = cloneMap(e.Provenance.Extra)
	return c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
