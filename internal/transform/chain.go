// Package transform implements the Transform Pipeline (spec.md §4.6): the
// four required built-ins (filter, dedup, enrich, gate) and the per-route
// chain that runs them in order against a cloned event.
//
// The chain's drop-short-circuits-without-error shape mirrors the retry
// decision tree in internal/attractor/engine/failure_policy.go, where a
// stage's outcome is a small enum rather than a bare bool, generalized here
// to the pass/drop contract spec.md assigns to Transform.Execute.
package transform

import (
	"context"
	"fmt"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/model"
)

// Chain runs an ordered list of transforms against a single route's cloned
// copy of an event.
type Chain struct {
	routeName string
	stages    []connector.Transform
}

// NewChain builds a Chain from already-constructed, already-initialized
// transform instances, in the order given.
func NewChain(routeName string, stages []connector.Transform) *Chain {
	return &Chain{routeName: routeName, stages: stages}
}

// Run executes every stage in order. It returns (event, true) if the event
// survived the whole chain, or (zero, false) if some stage dropped it.
func (c *Chain) Run(ctx context.Context, event model.Event) (model.Event, bool, error) {
	cur := event
	for i, stage := range c.stages {
		next, keep, err := stage.Execute(ctx, cur)
		if err != nil {
			return model.Event{}, false, fmt.Errorf("route %q: transform stage %d: %w", c.routeName, i, err)
		}
		if !keep {
			return model.Event{}, false, nil
		}
		cur = next
	}
	return cur, true, nil
}

// Shutdown shuts down every stage, collecting the first error but
// attempting all of them regardless.
func (c *Chain) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, stage := range c.stages {
		if err := stage.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
