// Package engine implements the Engine Supervisor (spec.md §4.9): startup
// and shutdown ordering, the bus-to-scheduler dispatch loop that runs the
// Route Matcher and Transform Pipeline between the WAL tail and the
// Delivery Scheduler, and the background compaction/dedup-sweep ticker.
package engine

import (
	"github.com/orgloop/engine/internal/connector"
)

// SourceFactory constructs a fresh, uninitialized Source connector instance
// for a given connector name (spec.md §9: the core never knows concrete
// connector types, only these factories registered by name at startup).
type SourceFactory func() connector.Source

// ActorFactory constructs a fresh, uninitialized Actor connector instance.
type ActorFactory func() connector.Actor

// LoggerFactory constructs a fresh, uninitialized Logger connector
// instance.
type LoggerFactory func() connector.Logger

// Registry maps connector names (as used in SourceSpec.Connector /
// ActorSpec.Connector / config) to factories.
type Registry struct {
	Sources map[string]SourceFactory
	Actors  map[string]ActorFactory
	Loggers map[string]LoggerFactory
}

func NewRegistry() *Registry {
	return &Registry{
		Sources: map[string]SourceFactory{},
		Actors:  map[string]ActorFactory{},
		Loggers: map[string]LoggerFactory{},
	}
}

func (r *Registry) RegisterSource(name string, f SourceFactory) { r.Sources[name] = f }
func (r *Registry) RegisterActor(name string, f ActorFactory)   { r.Actors[name] = f }
func (r *Registry) RegisterLogger(name string, f LoggerFactory) { r.Loggers[name] = f }
