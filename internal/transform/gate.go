package transform

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

// Capability is an external yes/no check a gate transform consults (e.g.
// "any active session exists?" spec.md §4.6). Capabilities are registered
// by name at engine startup; they are not part of the connector contract
// since they're queried by the engine core itself, not a plugin.
type Capability interface {
	Check(ctx context.Context) (bool, error)
}

// Gate drops events when a named capability reports closed. A capability
// check error fails open: spec.md §4.6 explicitly prefers an extra
// delivery over losing one to a flaky capability backend.
type Gate struct {
	name         string
	capabilities map[string]Capability
	log          *logrus.Entry
}

func NewGate(capabilities map[string]Capability, log *logrus.Entry) *Gate {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gate{capabilities: capabilities, log: log.WithField("component", "transform.gate")}
}

func (g *Gate) Init(_ context.Context, cfg dynval.Value) error {
	name := cfg.String("capability", "")
	if name == "" {
		return orgerr.New(orgerr.ConfigInvalid, "transform.gate", "", fmt.Errorf(`config requires a "capability" name`))
	}
	if _, ok := g.capabilities[name]; !ok {
		return orgerr.New(orgerr.ConfigInvalid, "transform.gate", name, fmt.Errorf("unregistered capability"))
	}
	g.name = name
	return nil
}

func (g *Gate) Execute(ctx context.Context, event model.Event) (model.Event, bool, error) {
	capability := g.capabilities[g.name]
	open, err := capability.Check(ctx)
	if err != nil {
		g.log.WithError(err).WithField("capability", g.name).Warn("gate check failed, failing open")
		return event, true, nil
	}
	if !open {
		return model.Event{}, false, nil
	}
	return event, true, nil
}

func (g *Gate) Shutdown(context.Context) error { return nil }
