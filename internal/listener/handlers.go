package listener

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/orgloop/engine/internal/metrics"
)

func (l *Listener) handleWebhook(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("source_id")
	l.mu.RLock()
	h, ok := l.webhooks[sourceID]
	l.mu.RUnlock()
	if !ok {
		l.respondNotFound(w, "webhook")
		return
	}
	l.dispatch(w, r, "webhook", h)
}

func (l *Listener) handleHook(w http.ResponseWriter, r *http.Request) {
	hookName := r.PathValue("hook_name")
	h, ok := l.lookupHook(hookName)
	if !ok {
		l.respondNotFound(w, "hook")
		return
	}
	l.dispatch(w, r, "hook", h)
}

func (l *Listener) respondNotFound(w http.ResponseWriter, kind string) {
	metrics.ListenerRequestsTotal.WithLabelValues(kind, "4xx").Inc()
	http.Error(w, fmt.Sprintf(`{"error":"unknown %s"}`, kind), http.StatusNotFound)
}

// lookupHook resolves hookName against registered hook handlers, first by
// exact match and then by glob pattern (e.g. a source registering "ci-*" to
// receive every CI hook without one registration per job name).
func (l *Listener) lookupHook(hookName string) (WebhookHandler, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if h, ok := l.hooks[hookName]; ok {
		return h, true
	}
	for pattern, h := range l.hooks {
		if matched, _ := doublestar.Match(pattern, hookName); matched {
			return h, true
		}
	}
	return nil, false
}

func (l *Listener) dispatch(w http.ResponseWriter, r *http.Request, kind string, h WebhookHandler) {
	if l.draining.Load() {
		metrics.ListenerRequestsTotal.WithLabelValues(kind, "5xx").Inc()
		http.Error(w, `{"error":"engine draining"}`, http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.ListenerRequestsTotal.WithLabelValues(kind, "4xx").Inc()
		http.Error(w, `{"error":"request body exceeds 1 MiB limit"}`, http.StatusRequestEntityTooLarge)
		return
	}

	status, err := h(r.Context(), body, r.Header)
	if err != nil {
		l.log.WithError(err).Warn("listener: handler rejected request")
		if status == 0 {
			status = http.StatusBadRequest
		}
		metrics.ListenerRequestsTotal.WithLabelValues(kind, statusClass(status)).Inc()
		http.Error(w, `{"error":"`+err.Error()+`"}`, status)
		return
	}
	if status == 0 {
		status = http.StatusAccepted
	}
	metrics.ListenerRequestsTotal.WithLabelValues(kind, statusClass(status)).Inc()
	w.WriteHeader(status)
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 4:
		return "4xx"
	default:
		return "5xx"
	}
}
