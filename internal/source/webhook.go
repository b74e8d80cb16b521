package source

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/listener"
	"github.com/orgloop/engine/internal/observer"
	"github.com/orgloop/engine/internal/wal"
)

// WebhookRunner bridges a WebhookSource connector to the HTTP Listener,
// translating each accepted request into bus appends (spec.md §4.3).
type WebhookRunner struct {
	sourceID string
	source   connector.WebhookSource
	bus      *wal.Bus
	obs      *observer.Bus
	log      *logrus.Entry
}

func NewWebhookRunner(sourceID string, src connector.WebhookSource, bus *wal.Bus, obs *observer.Bus, log *logrus.Entry) *WebhookRunner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WebhookRunner{sourceID: sourceID, source: src, bus: bus, obs: obs, log: log.WithField("source", sourceID)}
}

// Register wires this source's handler into l at /webhooks/{sourceID}.
func (r *WebhookRunner) Register(l *listener.Listener) {
	l.RegisterWebhook(r.sourceID, r.handle)
}

func (r *WebhookRunner) handle(ctx context.Context, body []byte, headers map[string][]string) (int, error) {
	events, err := r.source.HandleWebhook(ctx, body, headers)
	if err != nil {
		return http.StatusBadRequest, err
	}
	for _, ev := range events {
		if err := appendEvent(ctx, r.bus, r.obs, r.sourceID, ev); err != nil {
			r.log.WithError(err).Error("wal append failed for webhook event")
			return http.StatusServiceUnavailable, err
		}
	}
	return http.StatusAccepted, nil
}
