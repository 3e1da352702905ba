package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/events"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func waitForDeliveries(t *testing.T, c *capture, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("deliveries = %d, want %d", c.count(), want)
}

func TestDeliversMatchingEvents(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	bus := events.NewBus(16)
	defer bus.Close()

	d := NewDispatcher(config.IntegrationConfig{
		Webhooks: []config.WebhookConfig{{
			URL:    srv.URL,
			Events: []string{"transfer.state_changed"},
		}},
	}, bus)
	if d == nil {
		t.Fatal("dispatcher is nil despite configured webhook")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Run(ctx)

	bus.Publish(events.TransferEvent{
		BaseEvent: events.NewBase(events.EventTransferStateChanged),
		Direction: "download",
		Username:  "alice",
		State:     "in_progress",
	})
	bus.Publish(events.SessionEvent{
		BaseEvent: events.NewBase(events.EventSessionLoggedIn),
		State:     "logged_in",
	})

	waitForDeliveries(t, cap, 1)
	time.Sleep(50 * time.Millisecond)
	if cap.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (session event should be filtered)", cap.count())
	}

	var body struct {
		Event string `json:"event"`
		Data  struct {
			Username string `json:"Username"`
		} `json:"data"`
	}
	if err := json.Unmarshal(cap.bodies[0], &body); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if body.Event != "transfer.state_changed" {
		t.Errorf("event = %q", body.Event)
	}
	if body.Data.Username != "alice" {
		t.Errorf("username = %q, want alice", body.Data.Username)
	}

	cancel()
	d.Close()
}

func TestNilDispatcherWhenUnconfigured(t *testing.T) {
	bus := events.NewBus(1)
	defer bus.Close()

	d := NewDispatcher(config.IntegrationConfig{}, bus)
	if d != nil {
		t.Fatal("expected nil dispatcher")
	}
	d.Run(context.Background())
	d.Close()
}
