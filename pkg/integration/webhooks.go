// Package integration delivers daemon events to external systems.
//
// Each configured webhook receives a JSON POST per matching bus event.
// Deliveries are retried with backoff; a webhook that keeps failing only
// loses its own notifications, never blocks the bus.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
)

const defaultTimeout = 10 * time.Second

// allEventTypes is the subscription used when a webhook lists no filter.
var allEventTypes = []events.EventType{
	events.EventTransferEnqueued,
	events.EventTransferStateChanged,
	events.EventTransferRemoved,
	events.EventSessionStateChanged,
	events.EventSessionLoggedIn,
	events.EventSessionDisconnected,
	events.EventScanStarted,
	events.EventScanComplete,
	events.EventScanFaulted,
	events.EventAgentRegistered,
	events.EventAgentDeregistered,
	events.EventSearchRequested,
	events.EventSearchResponded,
}

// payload is the JSON body delivered to webhook endpoints.
type payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Dispatcher fans bus events out to configured webhooks.
type Dispatcher struct {
	bus   *events.Bus
	hooks []*hook
	wg    sync.WaitGroup
}

type hook struct {
	url    string
	client *retryablehttp.Client
	ch     <-chan events.Event
}

// NewDispatcher creates a dispatcher for the given webhook configuration.
// Returns nil when no webhooks are configured; a nil dispatcher's Run and
// Close are no-ops.
func NewDispatcher(cfg config.IntegrationConfig, bus *events.Bus) *Dispatcher {
	if len(cfg.Webhooks) == 0 {
		return nil
	}

	d := &Dispatcher{bus: bus}
	for _, wh := range cfg.Webhooks {
		timeout := wh.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		client := retryablehttp.NewClient()
		client.RetryMax = 3
		client.RetryWaitMin = 500 * time.Millisecond
		client.RetryWaitMax = 5 * time.Second
		client.HTTPClient.Timeout = timeout
		client.Logger = nil

		types := allEventTypes
		if len(wh.Events) > 0 {
			types = make([]events.EventType, 0, len(wh.Events))
			for _, name := range wh.Events {
				types = append(types, events.EventType(name))
			}
		}

		d.hooks = append(d.hooks, &hook{
			url:    wh.URL,
			client: client,
			ch:     bus.Subscribe(types...),
		})
	}
	return d
}

// Run delivers events until the context ends or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil {
		return
	}
	for _, h := range d.hooks {
		d.wg.Add(1)
		go func(h *hook) {
			defer d.wg.Done()
			d.deliverLoop(ctx, h)
		}(h)
	}
}

// Close waits for in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliverLoop(ctx context.Context, h *hook) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.ch:
			if !ok {
				return
			}
			d.deliver(ctx, h, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, h *hook, ev events.Event) {
	body, err := json.Marshal(payload{
		Event:     string(ev.Type()),
		Timestamp: time.Now().UTC(),
		Data:      ev,
	})
	if err != nil {
		logger.Warn("webhook payload marshal failed",
			"event", string(ev.Type()), logger.Err(err))
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", h.url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("webhook request build failed", "url", h.url, logger.Err(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Warn("webhook delivery failed",
			"url", h.url, "event", string(ev.Type()), logger.Err(err))
		return
	}
	_ = resp.Body.Close()

	logger.Debug("webhook delivered",
		"url", h.url, "event", string(ev.Type()), logger.Status(resp.StatusCode))
}
