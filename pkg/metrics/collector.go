package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seekd/seekd/pkg/events"
)

// Collector turns bus events into Prometheus series. It observes the same
// notifications the webhooks and the API consume, so the engines need no
// metrics hooks of their own.
type Collector struct {
	bus *events.Bus
	ch  <-chan events.Event

	transferStates  *prometheus.CounterVec
	transferredByte *prometheus.CounterVec
	sessionStates   *prometheus.CounterVec
	sessionUp       prometheus.Gauge
	agentsConnected prometheus.Gauge
	searchesStarted prometheus.Counter
	searchResponses prometheus.Counter
	scanFiles       prometheus.Gauge
	scanDirectories prometheus.Gauge
}

// NewCollector creates a collector registered against the process registry.
// Returns nil when metrics are disabled; a nil collector's Run is a no-op.
func NewCollector(bus *events.Bus) *Collector {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	c := &Collector{
		bus: bus,
		transferStates: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seekd_transfer_state_changes_total",
				Help: "Transfer state transitions by direction and resulting state",
			},
			[]string{"direction", "state"},
		),
		transferredByte: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seekd_transfer_bytes_total",
				Help: "Bytes moved by completed transfers, by direction",
			},
			[]string{"direction"},
		),
		sessionStates: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seekd_session_state_changes_total",
				Help: "Overlay session state transitions by resulting state",
			},
			[]string{"state"},
		),
		sessionUp: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "seekd_session_up",
				Help: "1 while the overlay session is logged in",
			},
		),
		agentsConnected: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "seekd_agents_connected",
				Help: "Currently registered share agents",
			},
		),
		searchesStarted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "seekd_searches_started_total",
				Help: "Overlay searches issued by this node",
			},
		),
		searchResponses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "seekd_search_responses_total",
				Help: "Peer responses received across all searches",
			},
		),
		scanFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "seekd_shared_files",
				Help: "Files in the current share catalog",
			},
		),
		scanDirectories: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "seekd_shared_directories",
				Help: "Directories in the current share catalog",
			},
		),
	}

	c.ch = bus.Subscribe(
		events.EventTransferStateChanged,
		events.EventSessionStateChanged,
		events.EventSessionLoggedIn,
		events.EventSessionDisconnected,
		events.EventAgentRegistered,
		events.EventAgentDeregistered,
		events.EventSearchRequested,
		events.EventSearchResponded,
		events.EventScanComplete,
	)
	return c
}

// Run consumes bus events until the context ends or the bus closes.
func (c *Collector) Run(ctx context.Context) {
	if c == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.ch:
			if !ok {
				return
			}
			c.observe(ev)
		}
	}
}

func (c *Collector) observe(ev events.Event) {
	switch e := ev.(type) {
	case events.TransferEvent:
		c.transferStates.WithLabelValues(e.Direction, e.State).Inc()
		if e.State == "completed_succeeded" {
			c.transferredByte.WithLabelValues(e.Direction).Add(float64(e.Bytes))
		}
	case events.SessionEvent:
		switch ev.Type() {
		case events.EventSessionLoggedIn:
			c.sessionUp.Set(1)
		case events.EventSessionDisconnected:
			c.sessionUp.Set(0)
		}
		c.sessionStates.WithLabelValues(e.State).Inc()
	case events.AgentEvent:
		if ev.Type() == events.EventAgentRegistered {
			c.agentsConnected.Inc()
		} else {
			c.agentsConnected.Dec()
		}
	case events.SearchEvent:
		if ev.Type() == events.EventSearchRequested {
			c.searchesStarted.Inc()
		} else {
			c.searchResponses.Inc()
		}
	case events.ScanEvent:
		if !e.Faulted {
			c.scanFiles.Set(float64(e.Files))
			c.scanDirectories.Set(float64(e.Directories))
		}
	}
}
