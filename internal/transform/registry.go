package transform

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/checkpoint"
	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

// Builder constructs per-route transform chains from declarative specs,
// wiring the built-ins' shared dependencies (the checkpoint store for
// dedup, registered capabilities for gate).
type Builder struct {
	store        *checkpoint.Store
	capabilities map[string]Capability
	log          *logrus.Entry
}

func NewBuilder(store *checkpoint.Store, capabilities map[string]Capability, log *logrus.Entry) *Builder {
	return &Builder{store: store, capabilities: capabilities, log: log}
}

// BuildChain constructs and initializes one Chain per route's ordered
// transform list.
func (b *Builder) BuildChain(ctx context.Context, routeName string, specs []model.TransformSpec) (*Chain, error) {
	stages := make([]connector.Transform, 0, len(specs))
	for i, spec := range specs {
		stage, err := b.build(spec)
		if err != nil {
			return nil, orgerr.Wrap(orgerr.ConfigInvalid, "route", routeName, err)
		}
		if err := stage.Init(ctx, dynval.New(spec.Config)); err != nil {
			return nil, fmt.Errorf("route %q: transform %d (%s): %w", routeName, i, spec.Type, err)
		}
		stages = append(stages, stage)
	}
	return NewChain(routeName, stages), nil
}

func (b *Builder) build(spec model.TransformSpec) (connector.Transform, error) {
	switch spec.Type {
	case "filter":
		return NewFilter(), nil
	case "dedup":
		return NewDedup(b.store), nil
	case "enrich":
		return NewEnrich(), nil
	case "gate":
		return NewGate(b.capabilities, b.log), nil
	default:
		return nil, fmt.Errorf("unknown built-in transform %q", spec.Type)
	}
}
