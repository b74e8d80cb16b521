package transform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/checkpoint"
	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/model"
)

func sampleEvent() model.Event {
	return model.Event{
		ID:        "e1",
		Source:    "gh",
		Type:      model.EventResourceChanged,
		Timestamp: time.Now().UTC(),
		Provenance: model.Provenance{
			Platform:      "github",
			PlatformEvent: "pull_request.opened",
			AuthorType:    "user",
		},
		Payload: model.Payload{"pr_number": float64(42)},
	}
}

func TestFilter_DropsNonMatchingEvent(t *testing.T) {
	f := NewFilter()
	cfg := dynval.New(map[string]any{
		"filter": map[string]any{"key": "provenance.author_type", "op": "equals", "value": "bot"},
	})
	require.NoError(t, f.Init(context.Background(), cfg))

	_, keep, err := f.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.False(t, keep)
}

func TestFilter_PassesMatchingEvent(t *testing.T) {
	f := NewFilter()
	cfg := dynval.New(map[string]any{
		"filter": map[string]any{"key": "provenance.author_type", "op": "equals", "value": "user"},
	})
	require.NoError(t, f.Init(context.Background(), cfg))

	out, keep, err := f.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, "e1", out.ID)
}

func TestDedup_SecondIdenticalEventDropped(t *testing.T) {
	store, err := checkpoint.Open(t.TempDir(), nil)
	require.NoError(t, err)

	d := NewDedup(store)
	cfg := dynval.New(map[string]any{"fields": []any{"payload.pr_number"}})
	require.NoError(t, d.Init(context.Background(), cfg))

	_, keep, err := d.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)

	_, keep, err = d.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.False(t, keep)
}

func TestEnrich_StaticValueCopyAndTemplate(t *testing.T) {
	e := NewEnrich()
	cfg := dynval.New(map[string]any{
		"fields": []any{
			map[string]any{"target": "reviewed", "value": true},
			map[string]any{"target": "author_copy", "copy_from": "provenance.author_type"},
			map[string]any{"target": "summary", "template": "PR #{{payload.pr_number}} by {{provenance.author_type}}"},
		},
	})
	require.NoError(t, e.Init(context.Background(), cfg))

	out, keep, err := e.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, true, out.Payload["reviewed"])
	require.Equal(t, "user", out.Payload["author_copy"])
	require.Equal(t, "PR #42 by user", out.Payload["summary"])
}

func TestEnrich_MissingCopySourceSkipped(t *testing.T) {
	e := NewEnrich()
	cfg := dynval.New(map[string]any{
		"fields": []any{map[string]any{"target": "x", "copy_from": "payload.missing"}},
	})
	require.NoError(t, e.Init(context.Background(), cfg))

	out, keep, err := e.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)
	_, ok := out.Payload["x"]
	require.False(t, ok)
}

type fakeCapability struct {
	open bool
	err  error
}

func (f fakeCapability) Check(context.Context) (bool, error) { return f.open, f.err }

func TestGate_ClosedCapabilityDropsEvent(t *testing.T) {
	g := NewGate(map[string]Capability{"sessions": fakeCapability{open: false}}, nil)
	require.NoError(t, g.Init(context.Background(), dynval.New(map[string]any{"capability": "sessions"})))

	_, keep, err := g.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.False(t, keep)
}

func TestGate_CapabilityErrorFailsOpen(t *testing.T) {
	g := NewGate(map[string]Capability{"sessions": fakeCapability{err: assertErr}}, nil)
	require.NoError(t, g.Init(context.Background(), dynval.New(map[string]any{"capability": "sessions"})))

	_, keep, err := g.Execute(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)
}

var assertErr = errCapabilityUnavailable{}

type errCapabilityUnavailable struct{}

func (errCapabilityUnavailable) Error() string { return "capability backend unavailable" }

func TestChain_DropStopsRemainingStages(t *testing.T) {
	store, err := checkpoint.Open(t.TempDir(), nil)
	require.NoError(t, err)

	// Filter drops the event, so the chain must report a drop and the dedup
	// stage after it must never run: no fingerprint is recorded in the store.
	f := NewFilter()
	require.NoError(t, f.Init(context.Background(), dynval.New(map[string]any{
		"filter": map[string]any{"key": "provenance.author_type", "op": "equals", "value": "bot"},
	})))
	d := NewDedup(store)
	require.NoError(t, d.Init(context.Background(), dynval.New(map[string]any{"fields": []any{"id"}})))

	chain := NewChain("r1", []connector.Transform{f, d})
	_, keep, err := chain.Run(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.False(t, keep)
	require.Empty(t, store.Get("gh").DedupEntries)
	require.Empty(t, store.Get("").DedupEntries)
}

func TestChain_AllStagesPassEvent(t *testing.T) {
	e := NewEnrich()
	require.NoError(t, e.Init(context.Background(), dynval.New(map[string]any{
		"fields": []any{map[string]any{"target": "x", "value": 1}},
	})))
	chain := NewChain("r1", []connector.Transform{e})
	out, keep, err := chain.Run(context.Background(), sampleEvent())
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, 1, out.Payload["x"])
}
