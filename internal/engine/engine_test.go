package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
)

// onceSource emits a single event on its first poll, then ErrNotSupported,
// which stops the PollRunner — enough to exercise one full
// poll -> match -> transform -> deliver round trip without a ticking loop.
type onceSource struct {
	mu    sync.Mutex
	fired bool
}

func (s *onceSource) Init(ctx context.Context, cfg dynval.Value) error { return nil }

func (s *onceSource) Poll(ctx context.Context, checkpoint string) (connector.PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return connector.PollResult{}, connector.ErrNotSupported
	}
	s.fired = true
	ev := model.Event{
		ID:        model.NewEventID(),
		Type:      model.EventResourceChanged,
		Timestamp: time.Now().UTC(),
		Payload:   model.Payload{"n": 1},
	}
	return connector.PollResult{Events: []model.Event{ev}, Checkpoint: "1"}, nil
}

func (s *onceSource) Shutdown(ctx context.Context) error { return nil }

type capturingActor struct {
	delivered chan model.Event
}

func (a *capturingActor) Init(ctx context.Context, cfg dynval.Value) error { return nil }

func (a *capturingActor) Deliver(ctx context.Context, event model.Event, routeConfig map[string]any) (connector.DeliveryResult, error) {
	a.delivered <- event
	return connector.DeliveryResult{Status: model.StatusDelivered}, nil
}

func (a *capturingActor) Shutdown(ctx context.Context) error { return nil }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		DataDir:      filepath.Join(t.TempDir(), "data"),
		ListenAddr:   "127.0.0.1:0",
		DrainTimeout: 2 * time.Second,
		Sources: []model.SourceSpec{
			{ID: "src1", Connector: "once", Config: map[string]any{"interval_seconds": 1}},
		},
		Actors: []model.ActorSpec{
			{ID: "act1", Connector: "capture"},
		},
		Routes: []model.RouteSpec{
			{
				Name: "r1",
				When: model.When{Source: "src1", EventTypes: []string{string(model.EventResourceChanged)}},
				Then: model.Then{Actor: "act1"},
			},
		},
	}
}

func TestEngine_StartDispatchesPolledEventToActor(t *testing.T) {
	delivered := make(chan model.Event, 1)
	actor := &capturingActor{delivered: delivered}

	reg := NewRegistry()
	reg.RegisterSource("once", func() connector.Source { return &onceSource{} })
	reg.RegisterActor("capture", func() connector.Actor { return actor })

	e := New(testConfig(t), logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx, reg))
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		require.NoError(t, e.Stop(stopCtx))
	}()

	select {
	case ev := <-delivered:
		require.Equal(t, model.EventResourceChanged, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("event was never delivered")
	}
}

func TestEngine_StopDrainsWithoutHanging(t *testing.T) {
	delivered := make(chan model.Event, 1)
	actor := &capturingActor{delivered: delivered}

	reg := NewRegistry()
	reg.RegisterSource("once", func() connector.Source { return &onceSource{} })
	reg.RegisterActor("capture", func() connector.Actor { return actor })

	e := New(testConfig(t), logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx, reg))
	<-delivered

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, e.Stop(stopCtx))
}

func TestEngine_UnregisteredSourceConnectorFailsStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources[0].Connector = "missing"

	reg := NewRegistry()
	reg.RegisterActor("capture", func() connector.Actor { return &capturingActor{delivered: make(chan model.Event, 1)} })

	e := New(cfg, logrus.NewEntry(logrus.New()))
	err := e.Start(context.Background(), reg)
	require.Error(t, err)
}
