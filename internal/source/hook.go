package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
	"github.com/orgloop/engine/internal/wal"
)

// HookRouter reads NDJSON events from a single stream (standard input in
// production) and appends them to the bus under the tagged source ID.
// There is exactly one HookRouter per engine; individual hook sources
// register with it rather than each owning their own stdin reader.
type HookRouter struct {
	bus *wal.Bus
	obs *observer.Bus
	log *logrus.Entry

	mu      sync.RWMutex
	sources map[string]bool
}

func NewHookRouter(bus *wal.Bus, obs *observer.Bus, log *logrus.Entry) *HookRouter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HookRouter{bus: bus, obs: obs, log: log.WithField("component", "source.hook"), sources: map[string]bool{}}
}

// RegisterSource allows sourceID-tagged lines through; untagged or
// unregistered source lines are logged and dropped.
func (h *HookRouter) RegisterSource(sourceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[sourceID] = true
}

func (h *HookRouter) isRegistered(sourceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sources[sourceID]
}

// Run reads newline-delimited JSON events from r until ctx is cancelled or
// r is exhausted.
func (h *HookRouter) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		h.handleLine(ctx, line)
	}
	return scanner.Err()
}

func (h *HookRouter) handleLine(ctx context.Context, line []byte) {
	var env struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		h.log.WithError(err).Warn("hook: malformed NDJSON line, dropping")
		return
	}
	if env.Source == "" || !h.isRegistered(env.Source) {
		h.log.WithField("source", env.Source).Warn("hook: unregistered source, dropping line")
		return
	}

	var ev model.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		h.log.WithError(err).Warn("hook: malformed event body, dropping")
		return
	}
	if err := appendEvent(ctx, h.bus, h.obs, env.Source, ev); err != nil {
		h.log.WithError(err).Error("hook: wal append failed")
	}
}
