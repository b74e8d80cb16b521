package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/orgloop/engine/internal/checkpoint"
	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/listener"
	"github.com/orgloop/engine/internal/metrics"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
	"github.com/orgloop/engine/internal/orgerr"
	"github.com/orgloop/engine/internal/route"
	"github.com/orgloop/engine/internal/scheduler"
	"github.com/orgloop/engine/internal/source"
	"github.com/orgloop/engine/internal/transform"
	"github.com/orgloop/engine/internal/wal"
)

// Engine owns every long-lived subsystem and enforces the startup/shutdown
// ordering of spec.md §4.9. It is an explicitly constructed, explicitly
// shut-down object rather than a process-wide singleton, so multiple
// engines can coexist in one process (spec.md §9).
type Engine struct {
	cfg Config
	log *logrus.Entry

	bus        *wal.Bus
	checkpoint *checkpoint.Store
	observer   *observer.Bus
	listener   *listener.Listener
	hooks      *source.HookRouter
	scheduler  *scheduler.Scheduler
	matcher    *route.Matcher

	chains map[string]*transform.Chain // route name -> chain

	sourceCancels []context.CancelFunc
	compactCancel context.CancelFunc

	actors  map[string]connector.Actor
	loggers map[string]connector.Logger
}

// New validates nothing yet; call Start to bring the engine up.
func New(cfg Config, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		log:     log.WithField("component", "engine"),
		actors:  map[string]connector.Actor{},
		loggers: map[string]connector.Logger{},
		chains:  map[string]*transform.Chain{},
	}
}

// Start brings every subsystem up in spec.md §4.9 order: bus, checkpoint
// store, connectors, routes, listener, source runners, schedulers.
func (e *Engine) Start(ctx context.Context, reg *Registry) error {
	if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("engine: create data dir: %w", err)
	}

	bus, err := wal.Open(wal.Options{
		Dir:    filepath.Join(e.cfg.DataDir, "wal"),
		Fsync:  e.cfg.Fsync,
		Logger: e.log,
	})
	if err != nil {
		return err
	}
	e.bus = bus

	store, err := checkpoint.Open(filepath.Join(e.cfg.DataDir, "checkpoints"), e.log)
	if err != nil {
		return err
	}
	e.checkpoint = store

	e.observer = observer.New()

	if err := e.instantiateActors(ctx, reg); err != nil {
		return err
	}
	if err := e.instantiateLoggers(ctx, reg); err != nil {
		return err
	}

	matcher, err := route.Load(e.cfg.Routes, e.cfg.Sources, e.cfg.Actors)
	if err != nil {
		return err
	}
	e.matcher = matcher

	builder := transform.NewBuilder(e.checkpoint, e.cfg.Capabilities, e.log)
	for _, r := range e.cfg.Routes {
		chain, err := builder.BuildChain(ctx, r.Name, r.Transforms)
		if err != nil {
			return err
		}
		e.chains[r.Name] = chain
	}

	e.listener = listener.New(e.cfg.ListenAddr, e.log)
	e.hooks = source.NewHookRouter(e.bus, e.observer, e.log)

	if err := e.startSources(ctx, reg); err != nil {
		return err
	}

	e.scheduler = scheduler.New(e.log)
	for _, a := range e.cfg.Actors {
		actor := e.actors[a.ID]
		cfg := dynval.New(a.Config)
		s := scheduler.ActorConfig{
			Workers:    cfg.Int("workers", scheduler.DefaultWorkersPerActor),
			QueueSize:  cfg.Int("queue_size", scheduler.DefaultQueueCapacity),
			RatePerSec: cfg.Float("rate_per_sec", 0),
		}
		e.scheduler.Register(ctx, a.ID, actor, s, e.observer)
	}

	go func() {
		if err := e.listener.ListenAndServe(); err != nil {
			e.log.WithError(err).Error("listener exited")
		}
	}()

	go e.runDispatchLoop(ctx)
	e.startCompaction(ctx)

	e.observer.Emit(observer.KindEngineLifecycle, map[string]any{"phase": "started"})
	return nil
}

// DrainTimeout returns the resolved (defaulted) drain timeout, for callers
// that need to bound their own Stop call the same way Stop bounds its drain
// phase.
func (e *Engine) DrainTimeout() time.Duration { return e.cfg.DrainTimeout }

func (e *Engine) instantiateActors(ctx context.Context, reg *Registry) error {
	for _, spec := range e.cfg.Actors {
		factory, ok := reg.Actors[spec.Connector]
		if !ok {
			return orgerr.New(orgerr.ConfigInvalid, "actor", spec.ID, fmt.Errorf("unregistered connector %q", spec.Connector))
		}
		actor := factory()
		if err := actor.Init(ctx, dynval.New(spec.Config)); err != nil {
			return orgerr.Wrap(orgerr.ConfigInvalid, "actor", spec.ID, err)
		}
		e.actors[spec.ID] = actor
	}
	return nil
}

func (e *Engine) instantiateLoggers(ctx context.Context, reg *Registry) error {
	for _, spec := range e.cfg.Loggers {
		factory, ok := reg.Loggers[spec.Connector]
		if !ok {
			return orgerr.New(orgerr.ConfigInvalid, "logger", spec.ID, fmt.Errorf("unregistered connector %q", spec.Connector))
		}
		logger := factory()
		if err := logger.Init(ctx, dynval.New(spec.Config)); err != nil {
			return orgerr.Wrap(orgerr.ConfigInvalid, "logger", spec.ID, err)
		}
		e.loggers[spec.ID] = logger
		e.observer.Register(logger)
	}
	return nil
}

// Stop shuts every subsystem down in reverse order with a drain phase
// (spec.md §4.9): stop accepting new events, wait up to DrainTimeout for
// in-flight deliveries, then force-terminate.
func (e *Engine) Stop(ctx context.Context) error {
	e.observer.Emit(observer.KindEngineLifecycle, map[string]any{"phase": "draining"})
	e.listener.Drain()

	if e.compactCancel != nil {
		e.compactCancel()
	}
	for _, cancel := range e.sourceCancels {
		cancel()
	}

	drainCtx, cancel := context.WithTimeout(ctx, e.cfg.DrainTimeout)
	defer cancel()
	e.scheduler.Stop(drainCtx)

	_ = e.listener.Shutdown(drainCtx)

	// Actors are independent of one another, so their Shutdown hooks run
	// concurrently rather than serially eating into DrainTimeout.
	var g errgroup.Group
	for id, actor := range e.actors {
		id, actor := id, actor
		g.Go(func() error {
			if err := actor.Shutdown(drainCtx); err != nil {
				e.log.WithError(err).WithField("actor", id).Warn("actor shutdown error")
			}
			return nil
		})
	}
	_ = g.Wait()

	e.observer.Shutdown(drainCtx)

	for id, logger := range e.loggers {
		if err := logger.Shutdown(drainCtx); err != nil {
			e.log.WithError(err).WithField("logger", id).Warn("logger shutdown error")
		}
	}

	if err := e.bus.Close(); err != nil {
		return err
	}
	return nil
}

// runDispatchLoop tails the bus from the beginning and runs every event
// through the Route Matcher and Transform Pipeline before handing it to the
// Delivery Scheduler. A fresh engine start always tails from offset 0;
// already-delivered events are re-matched but rely on the dedup transform
// and actor idempotency to avoid duplicate side effects (see DESIGN.md).
func (e *Engine) runDispatchLoop(ctx context.Context) {
	err := e.bus.Tail(ctx, 0, func(a wal.Appended) error {
		e.dispatch(ctx, a)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		e.log.WithError(err).Error("dispatch loop exited unexpectedly")
	}
}

func (e *Engine) dispatch(ctx context.Context, a wal.Appended) {
	routes, err := e.matcher.MatchingRoutes(a.Event)
	if err != nil {
		e.log.WithError(err).WithField("event_id", a.Event.ID).Error("route matching failed")
		return
	}
	for _, r := range routes {
		metrics.RouteMatchedTotal.WithLabelValues(r.Name).Inc()
		e.observer.Emit(observer.KindRouteMatched, map[string]any{"event_id": a.Event.ID, "route": r.Name})
		e.dispatchRoute(ctx, a.Event.Clone(), r)
	}
}

func (e *Engine) dispatchRoute(ctx context.Context, event model.Event, r model.RouteSpec) {
	chain := e.chains[r.Name]
	out, keep, err := chain.Run(ctx, event)
	if err != nil {
		metrics.TransformDroppedTotal.WithLabelValues(r.Name, "error").Inc()
		e.observer.Emit(observer.KindTransformDropped, map[string]any{"event_id": event.ID, "route": r.Name, "error": err.Error()})
		return
	}
	if !keep {
		metrics.TransformDroppedTotal.WithLabelValues(r.Name, "filtered").Inc()
		e.observer.Emit(observer.KindTransformDropped, map[string]any{"event_id": event.ID, "route": r.Name})
		return
	}
	if err := e.scheduler.Dispatch(ctx, out, r); err != nil {
		e.log.WithError(err).WithField("route", r.Name).Error("scheduler dispatch failed")
	}
}
