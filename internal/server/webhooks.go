package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ferry/internal/config"
	"ferry/internal/domain"
	"ferry/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the event log and posts matching events to
// each configured endpoint. Each hook keeps its own cursor; delivery is
// at-least-once and ordered per hook.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	events, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.engine.Log.Warn().Err(err).Msg("webhook: fetch events failed")
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.engine.Log.Warn().Err(err).Str("url", hook.URL).Msg("webhook: delivery failed")
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor lazily initializes a hook's cursor at the log head so
// endpoints only see events newer than dispatcher start.
func (d *webhookDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventID(context.Background())
	if err != nil {
		d.engine.Log.Warn().Err(err).Msg("webhook: init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	IntentID   string          `json:"intent_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		IntentID:   evt.IntentID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ferry-Event", evt.Type)
	req.Header.Set("X-Ferry-Delivery", fmt.Sprintf("%d", evt.ID))
	res, err := d.client.Do(req)
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
