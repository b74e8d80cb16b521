package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/orgerr"
	"github.com/orgloop/engine/internal/source"
)

const defaultPollInterval = time.Minute

// startSources instantiates every declared source and starts its runner in
// the mode implied by its connector and config (spec.md §4.3): webhook
// sources register with the listener, hook-mode sources register with the
// shared HookRouter, everything else polls on an interval.
func (e *Engine) startSources(ctx context.Context, reg *Registry) error {
	hookRouterNeeded := false

	for _, spec := range e.cfg.Sources {
		factory, ok := reg.Sources[spec.Connector]
		if !ok {
			return orgerr.New(orgerr.ConfigInvalid, "source", spec.ID, fmt.Errorf("unregistered connector %q", spec.Connector))
		}
		src := factory()
		cfg := dynval.New(spec.Config)
		if err := src.Init(ctx, cfg); err != nil {
			e.log.WithError(err).WithField("source", spec.ID).Error("source init failed, disabling source")
			continue
		}

		runCtx, cancel := context.WithCancel(ctx)
		e.sourceCancels = append(e.sourceCancels, cancel)

		switch {
		case func() bool { _, ok := src.(connector.WebhookSource); return ok }():
			runner := source.NewWebhookRunner(spec.ID, src.(connector.WebhookSource), e.bus, e.observer, e.log)
			runner.Register(e.listener)
		case cfg.String("mode", "poll") == "hook":
			e.hooks.RegisterSource(spec.ID)
			hookRouterNeeded = true
		default:
			interval := time.Duration(cfg.Int("interval_seconds", int(defaultPollInterval/time.Second))) * time.Second
			runner := source.NewPollRunner(spec.ID, src, interval, e.bus, e.checkpoint, e.observer, e.log)
			go runner.Run(runCtx)
		}
	}

	if hookRouterNeeded {
		go func() {
			if err := e.hooks.Run(ctx, os.Stdin); err != nil {
				e.log.WithError(err).Warn("hook router stopped reading stdin")
			}
		}()
	}
	return nil
}
