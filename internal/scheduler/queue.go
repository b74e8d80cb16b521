package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
)

// Job is one event's pending delivery through a single route to a single
// actor.
type Job struct {
	Event         model.Event
	RouteName     string
	ActorID       string
	Config        map[string]any
	Attempt       int    // 1-indexed; 0 means "not yet attempted"
	CorrelationID string // stable across every retry of this delivery
}

// ActorQueue is one actor's bounded FIFO queue and fixed worker pool
// (spec.md §4.7).
type ActorQueue struct {
	actorID        string
	actor          connector.Actor
	queue          chan Job
	workers        int
	backoff        BackoffConfig
	deliverTimeout time.Duration
	limiter        *rate.Limiter // nil means unthrottled
	bus            *observer.Bus
	log            *logrus.Entry

	ctx    context.Context
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewActorQueue builds a queue of the given bounded capacity, backed by
// workers worker goroutines, none of which are started until Start is
// called. ratePerSec <= 0 means deliveries to this actor are unthrottled.
func NewActorQueue(actorID string, actor connector.Actor, workers, capacity int, backoff BackoffConfig, deliverTimeout time.Duration, ratePerSec float64, bus *observer.Bus, log *logrus.Entry) *ActorQueue {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), max(1, int(ratePerSec)))
	}
	return &ActorQueue{
		actorID:        actorID,
		actor:          actor,
		queue:          make(chan Job, capacity),
		workers:        workers,
		backoff:        backoff,
		deliverTimeout: deliverTimeout,
		limiter:        limiter,
		bus:            bus,
		log:            log.WithField("actor", actorID),
		stopCh:         make(chan struct{}),
	}
}
