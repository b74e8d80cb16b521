package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
)

type scriptedActor struct {
	mu      sync.Mutex
	results []connector.DeliveryResult
	calls   int32
}

func (a *scriptedActor) Init(context.Context, dynval.Value) error { return nil }

func (a *scriptedActor) Deliver(ctx context.Context, event model.Event, routeConfig map[string]any) (connector.DeliveryResult, error) {
	n := atomic.AddInt32(&a.calls, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := int(n) - 1
	if idx >= len(a.results) {
		return connector.DeliveryResult{Status: model.StatusDelivered}, nil
	}
	return a.results[idx], nil
}

func (a *scriptedActor) Shutdown(context.Context) error { return nil }

func (a *scriptedActor) callCount() int32 { return atomic.LoadInt32(&a.calls) }

func TestScheduler_DeliveredIsTerminal(t *testing.T) {
	actor := &scriptedActor{results: []connector.DeliveryResult{{Status: model.StatusDelivered}}}
	bus := observer.New()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Register(ctx, "a1", actor, ActorConfig{Workers: 1, QueueSize: 4}, bus)

	err := s.Dispatch(context.Background(), model.Event{ID: "e1", Source: "gh"},
		model.RouteSpec{Name: "r1", Then: model.Then{Actor: "a1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return actor.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), actor.callCount())
}

func TestScheduler_RejectedDoesNotRetry(t *testing.T) {
	actor := &scriptedActor{results: []connector.DeliveryResult{{Status: model.StatusRejected}}}
	bus := observer.New()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Register(ctx, "a1", actor, ActorConfig{Workers: 1, QueueSize: 4}, bus)

	require.NoError(t, s.Dispatch(context.Background(), model.Event{ID: "e1", Source: "gh"},
		model.RouteSpec{Name: "r1", Then: model.Then{Actor: "a1"}}))

	require.Eventually(t, func() bool { return actor.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), actor.callCount())
}

func TestScheduler_ErrorRetriesThenSucceeds(t *testing.T) {
	actor := &scriptedActor{results: []connector.DeliveryResult{
		{Status: model.StatusError, Error: "timeout"},
		{Status: model.StatusDelivered},
	}}
	bus := observer.New()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Register(ctx, "a1", actor, ActorConfig{Workers: 1, QueueSize: 4}, bus)
	// Shrink backoff for the test so it doesn't wait a full second.
	s.queues["a1"].backoff = BackoffConfig{Base: time.Millisecond, Factor: 1, Jitter: 0, Cap: time.Second, MaxAttempt: 5}

	require.NoError(t, s.Dispatch(context.Background(), model.Event{ID: "e1", Source: "gh"},
		model.RouteSpec{Name: "r1", Then: model.Then{Actor: "a1"}}))

	require.Eventually(t, func() bool { return actor.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ExhaustsRetriesToFailed(t *testing.T) {
	actor := &scriptedActor{results: []connector.DeliveryResult{
		{Status: model.StatusError}, {Status: model.StatusError}, {Status: model.StatusError},
	}}
	bus := observer.New()
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Register(ctx, "a1", actor, ActorConfig{Workers: 1, QueueSize: 4}, bus)
	s.queues["a1"].backoff = BackoffConfig{Base: time.Millisecond, Factor: 1, Jitter: 0, Cap: time.Second, MaxAttempt: 3}

	require.NoError(t, s.Dispatch(context.Background(), model.Event{ID: "e1", Source: "gh"},
		model.RouteSpec{Name: "r1", Then: model.Then{Actor: "a1"}}))

	require.Eventually(t, func() bool { return actor.callCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(3), actor.callCount())
}

func TestScheduler_DispatchUnknownActorErrors(t *testing.T) {
	s := New(nil)
	err := s.Dispatch(context.Background(), model.Event{ID: "e1"}, model.RouteSpec{Then: model.Then{Actor: "missing"}})
	require.Error(t, err)
}

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{Base: time.Second, Factor: 2, Jitter: 0, Cap: 5 * time.Second, MaxAttempt: 10}
	require.Equal(t, time.Second, DelayForAttempt(1, cfg, "s"))
	require.Equal(t, 2*time.Second, DelayForAttempt(2, cfg, "s"))
	require.Equal(t, 4*time.Second, DelayForAttempt(3, cfg, "s"))
	require.Equal(t, 5*time.Second, DelayForAttempt(4, cfg, "s")) // capped
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	cfg := BackoffConfig{Base: time.Second, Factor: 1, Jitter: 0.25, Cap: time.Minute, MaxAttempt: 10}
	d := DelayForAttempt(1, cfg, "seed-a")
	require.GreaterOrEqual(t, d, 750*time.Millisecond)
	require.LessOrEqual(t, d, 1250*time.Millisecond)
}
