package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moveline/internal/config"
	"moveline/internal/domain"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookQueue   = 256
)

// WebhookDispatcher delivers estimate events to the configured URLs. Saves
// enqueue without blocking; Run posts them in order.
type WebhookDispatcher struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	log      *zap.Logger
	queue    chan webhookEvent
	Now      func() time.Time
	NewID    func() string
}

func NewWebhookDispatcher(hooks []config.WebhookConfig, log *zap.Logger) *WebhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	var active []config.WebhookConfig
	for _, h := range hooks {
		if h.IsEnabled() && strings.TrimSpace(h.URL) != "" {
			active = append(active, h)
		}
	}
	return &WebhookDispatcher{
		webhooks: active,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      log,
		queue:    make(chan webhookEvent, defaultWebhookQueue),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

type webhookEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

type estimatePayload struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	Status         string         `json:"status"`
	CompletionRate float64        `json:"completion_rate"`
	Phone          *string        `json:"phone,omitempty"`
	SubmittedAt    *string        `json:"submitted_at,omitempty"`
	Schema         *domain.Schema `json:"schema,omitempty"`
}

// Enqueue matches session.SavedFunc.
func (d *WebhookDispatcher) Enqueue(_ context.Context, est domain.Estimate, events []string) {
	if len(d.webhooks) == 0 {
		return
	}
	for _, typ := range events {
		p := estimatePayload{
			ID:             est.ID,
			RequestID:      est.RequestID,
			Status:         est.Status,
			CompletionRate: est.CompletionRate,
			Phone:          est.Phone,
			SubmittedAt:    est.SubmittedAt,
		}
		if typ == domain.EventEstimateSubmitted {
			s := est.Schema
			p.Schema = &s
		}
		data, err := json.Marshal(p)
		if err != nil {
			d.log.Error("webhook: encode payload", zap.String("estimate_id", est.ID), zap.Error(err))
			continue
		}
		evt := webhookEvent{
			ID:         d.NewID(),
			Type:       typ,
			EntityKind: domain.EntityEstimate,
			EntityID:   est.ID,
			TS:         d.Now().UTC().Format(time.RFC3339),
			Payload:    data,
		}
		select {
		case d.queue <- evt:
		default:
			d.log.Warn("webhook: queue full, event dropped", zap.String("type", typ), zap.String("estimate_id", est.ID))
		}
	}
}

// Run delivers queued events until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-d.queue:
			d.dispatchAll(ctx, evt)
		}
	}
}

func (d *WebhookDispatcher) dispatchAll(ctx context.Context, evt webhookEvent) {
	for _, hook := range d.webhooks {
		if !newEventFilter(hook.Events).match(evt.Type) {
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.log.Warn("webhook: delivery failed",
				zap.String("url", hook.URL),
				zap.String("type", evt.Type),
				zap.String("estimate_id", evt.EntityID),
				zap.Error(err))
			continue
		}
		d.log.Debug("webhook: delivered", zap.String("url", hook.URL), zap.String("type", evt.Type))
	}
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt webhookEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Moveline-Event", evt.Type)
	req.Header.Set("X-Moveline-Delivery", evt.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Moveline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
