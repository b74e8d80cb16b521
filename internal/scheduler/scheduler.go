package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
)

const (
	DefaultWorkersPerActor = 4
	DefaultQueueCapacity   = 256
	DefaultDeliverTimeout  = 30 * time.Second
)

// Scheduler owns one ActorQueue per declared actor (spec.md §4.7).
type Scheduler struct {
	queues map[string]*ActorQueue
	log    *logrus.Entry
}

// ActorConfig is the per-actor scheduler tuning, sourced from the actor's
// declared spec.
type ActorConfig struct {
	Workers    int
	QueueSize  int
	RatePerSec float64 // 0 means unthrottled
}

func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{queues: map[string]*ActorQueue{}, log: log.WithField("component", "scheduler")}
}

// Register wires actorID's queue and starts its workers. ctx governs both
// the worker lifetime and each delivery attempt's own timeout.
func (s *Scheduler) Register(ctx context.Context, actorID string, actor connector.Actor, cfg ActorConfig, bus *observer.Bus) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkersPerActor
	}
	capacity := cfg.QueueSize
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := NewActorQueue(actorID, actor, workers, capacity, DefaultBackoffConfig(), DefaultDeliverTimeout, cfg.RatePerSec, bus, s.log)
	q.Start(ctx)
	s.queues[actorID] = q
}

// Dispatch enqueues event for delivery to route's actor, blocking for
// backpressure if that actor's queue is full (spec.md §4.7).
func (s *Scheduler) Dispatch(ctx context.Context, event model.Event, route model.RouteSpec) error {
	q, ok := s.queues[route.Then.Actor]
	if !ok {
		return fmt.Errorf("scheduler: no queue registered for actor %q", route.Then.Actor)
	}
	return q.Enqueue(ctx, Job{
		Event:         event,
		RouteName:     route.Name,
		ActorID:       route.Then.Actor,
		Config:        route.Then.Config,
		CorrelationID: uuid.NewString(),
	})
}

// Stop drains every actor queue, waiting up to the deadline on ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	for _, q := range s.queues {
		q.Stop(ctx)
	}
}
