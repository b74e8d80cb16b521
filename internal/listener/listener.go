// Package listener implements the HTTP Listener (spec.md §4.4): a
// loopback-only HTTP server that routes inbound webhook and hook requests
// to the Source Runner that registered the path.
//
// The server lifecycle (mux + csrfProtect wrapper + graceful Shutdown) is
// adapted from the teacher's internal/server/server.go, generalized from a
// pipeline-submission API to dynamic per-source route registration and a
// drain flag that turns 503 once the engine stops accepting new events.
package listener

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20 // 1 MiB, spec.md §4.4

// WebhookHandler translates a raw request body into events and appends
// them. It returns the HTTP status to respond with.
type WebhookHandler func(ctx context.Context, body []byte, headers map[string][]string) (status int, err error)

// Listener binds to loopback and dispatches to dynamically registered
// per-source webhook and hook handlers.
type Listener struct {
	addr string
	log  *logrus.Entry

	mu       sync.RWMutex
	webhooks map[string]WebhookHandler
	hooks    map[string]WebhookHandler

	draining atomic.Bool
	httpSrv  *http.Server
}

func New(addr string, log *logrus.Entry) *Listener {
	if addr == "" {
		addr = "127.0.0.1:4800"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	l := &Listener{
		addr:     addr,
		log:      log.WithField("component", "listener"),
		webhooks: map[string]WebhookHandler{},
		hooks:    map[string]WebhookHandler{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{source_id}", l.handleWebhook)
	mux.HandleFunc("POST /hooks/{hook_name}", l.handleHook)

	l.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      csrfProtect(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return l
}

// RegisterWebhook wires sourceID's handler for POST /webhooks/{sourceID}.
func (l *Listener) RegisterWebhook(sourceID string, h WebhookHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.webhooks[sourceID] = h
}

// RegisterHook wires hookName's handler for POST /hooks/{hookName}.
func (l *Listener) RegisterHook(hookName string, h WebhookHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks[hookName] = h
}

// ListenAndServe binds the loopback listener and blocks until Shutdown is
// called (or the server errors).
func (l *Listener) ListenAndServe() error {
	lis, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listener: bind %s: %w", l.addr, err)
	}
	l.log.WithField("addr", l.addr).Info("listener: accepting connections")
	err = l.httpSrv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Drain marks the listener as refusing new events; in-flight requests are
// unaffected but new POSTs get 503 (spec.md §4.9).
func (l *Listener) Drain() {
	l.draining.Store(true)
}

// Shutdown stops accepting connections, waiting up to ctx's deadline for
// in-flight requests to finish.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.httpSrv.Shutdown(ctx)
}

// csrfProtect rejects cross-origin POSTs from browser-originated requests,
// the same Origin-header check the teacher's pipeline API uses, while
// allowing programmatic/webhook callers that omit Origin entirely.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					http.Error(w, `{"error":"invalid Origin header"}`, http.StatusForbidden)
					return
				}
				host := u.Hostname()
				if host != "localhost" && host != "127.0.0.1" && host != "::1" {
					http.Error(w, `{"error":"cross-origin request blocked"}`, http.StatusForbidden)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
