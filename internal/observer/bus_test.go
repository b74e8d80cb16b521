package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
)

type recordingLogger struct {
	mu   sync.Mutex
	seen []connector.ObserverEvent
}

func (l *recordingLogger) Init(context.Context, dynval.Value) error { return nil }

func (l *recordingLogger) Observe(ev connector.ObserverEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, ev)
}

func (l *recordingLogger) Shutdown(context.Context) error { return nil }

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

func TestBus_EmitFansOutToAllLoggers(t *testing.T) {
	b := New()
	l1 := &recordingLogger{}
	l2 := &recordingLogger{}
	unreg1 := b.Register(l1)
	unreg2 := b.Register(l2)
	defer unreg1()
	defer unreg2()

	b.Emit(KindEventAccepted, map[string]any{"event_id": "e1"})

	require.Eventually(t, func() bool {
		return l1.count() == 1 && l2.count() == 1
	}, time.Second, time.Millisecond)
}

type blockingLogger struct {
	observed chan connector.ObserverEvent
}

func (l *blockingLogger) Init(context.Context, dynval.Value) error { return nil }
func (l *blockingLogger) Observe(ev connector.ObserverEvent)       { l.observed <- ev }
func (l *blockingLogger) Shutdown(context.Context) error           { return nil }

func TestBus_SlowLoggerDropsWithoutBlockingOthers(t *testing.T) {
	b := New()
	slow := &blockingLogger{observed: make(chan connector.ObserverEvent)} // never drained
	fast := &recordingLogger{}
	b.Register(slow)
	b.Register(fast)

	// Emit far more than the subscriber buffer; the slow logger's channel
	// fills and further events are dropped for it, but fast still sees all.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Emit(KindDeliveryAttempt, nil)
	}

	require.Eventually(t, func() bool {
		return fast.count() == subscriberBuffer+10
	}, time.Second, time.Millisecond)
}

func TestBus_ShutdownWaitsForDrain(t *testing.T) {
	b := New()
	l := &recordingLogger{}
	b.Register(l)
	b.Emit(KindEngineLifecycle, map[string]any{"phase": "start"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Shutdown(ctx)

	require.Equal(t, 1, l.count())
}
