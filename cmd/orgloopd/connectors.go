package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
)

// clockSource is a minimal poll Source that emits one resource.changed
// heartbeat event per tick. It exists to exercise the Source Runner's poll
// path end to end without pulling in an external platform connector.
type clockSource struct {
	payload string
}

func (c *clockSource) Init(ctx context.Context, cfg dynval.Value) error {
	c.payload = cfg.String("payload", "tick")
	return nil
}

func (c *clockSource) Poll(ctx context.Context, checkpoint string) (connector.PollResult, error) {
	now := time.Now().UTC()
	ev := model.Event{
		ID:        model.NewEventID(),
		Type:      model.EventResourceChanged,
		Timestamp: now,
		Provenance: model.Provenance{
			Platform:      "clock",
			PlatformEvent: "tick",
		},
		Payload: model.Payload{"message": c.payload, "at": now.Format(time.RFC3339)},
	}
	return connector.PollResult{Events: []model.Event{ev}, Checkpoint: now.Format(time.RFC3339Nano)}, nil
}

func (c *clockSource) Shutdown(ctx context.Context) error { return nil }

// stdoutActor prints every delivered event to stdout. It exists to exercise
// the Delivery Scheduler without an external sink.
type stdoutActor struct{}

func (a *stdoutActor) Init(ctx context.Context, cfg dynval.Value) error { return nil }

func (a *stdoutActor) Deliver(ctx context.Context, event model.Event, routeConfig map[string]any) (connector.DeliveryResult, error) {
	fmt.Fprintf(os.Stdout, "[deliver] route=%v event=%s type=%s payload=%v\n", routeConfig["label"], event.ID, event.Type, event.Payload)
	return connector.DeliveryResult{Status: model.StatusDelivered}, nil
}

func (a *stdoutActor) Shutdown(ctx context.Context) error { return nil }

// stdoutLogger fans observer events out to stdout as one line each.
type stdoutLogger struct{}

func (l *stdoutLogger) Init(ctx context.Context, cfg dynval.Value) error { return nil }

func (l *stdoutLogger) Observe(ev connector.ObserverEvent) {
	fmt.Fprintf(os.Stdout, "[observe] kind=%s ts=%s fields=%v\n", ev.Kind, ev.Timestamp, ev.Fields)
}

func (l *stdoutLogger) Shutdown(ctx context.Context) error { return nil }
