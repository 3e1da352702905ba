// Package events provides the in-process publish/subscribe bus.
//
// Delivery is fire-and-forget: publishing never blocks, and a subscriber
// that falls behind loses events rather than stalling the publisher. Each
// subscriber owns a buffered channel, so a slow consumer cannot affect the
// others.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of an event.
type EventType string

const (
	// Transfer lifecycle.
	EventTransferEnqueued     EventType = "transfer.enqueued"
	EventTransferStateChanged EventType = "transfer.state_changed"
	EventTransferProgress     EventType = "transfer.progress"
	EventTransferRemoved      EventType = "transfer.removed"

	// Overlay session.
	EventSessionStateChanged EventType = "session.state_changed"
	EventSessionLoggedIn     EventType = "session.logged_in"
	EventSessionDisconnected EventType = "session.disconnected"

	// Shared-file index.
	EventScanStarted  EventType = "shares.scan_started"
	EventScanProgress EventType = "shares.scan_progress"
	EventScanComplete EventType = "shares.scan_complete"
	EventScanFaulted  EventType = "shares.scan_faulted"

	// Agent fabric.
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentDeregistered EventType = "agent.deregistered"

	// Searches.
	EventSearchRequested EventType = "search.requested"
	EventSearchResponded EventType = "search.responded"

	// Wall-clock ticks.
	EventTickMinute        EventType = "clock.tick_1m"
	EventTickFiveMinutes   EventType = "clock.tick_5m"
	EventTickThirtyMinutes EventType = "clock.tick_30m"
	EventTickHour          EventType = "clock.tick_60m"

	// Configuration.
	EventConfigChanged EventType = "config.changed"
)

// Event is the interface all bus events implement.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides the common fields for all events.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// TransferEvent carries a transfer lifecycle notification. Payload fields
// are plain values so that subscribers do not need the transfers package.
type TransferEvent struct {
	BaseEvent
	TransferID  string
	Direction   string
	Username    string
	Filename    string
	PrevState   string
	State       string
	Size        int64
	Bytes       int64
	AverageRate float64
	Failure     string
}

// SessionEvent carries an overlay session state notification.
type SessionEvent struct {
	BaseEvent
	State    string
	Server   string
	Username string
	Attempt  int
	Reason   string
}

// ScanEvent carries shared-file index scan progress.
type ScanEvent struct {
	BaseEvent
	Progress    float64
	Directories int
	Files       int
	Faulted     bool
}

// AgentEvent carries agent fabric registration changes.
type AgentEvent struct {
	BaseEvent
	Agent        string
	ConnectionID string
	RemoteAddr   string
}

// SearchEvent carries incoming or answered overlay searches.
type SearchEvent struct {
	BaseEvent
	SearchID  string
	Username  string
	Text      string
	Token     uint32
	FileCount int
}

// TickEvent fires on the wall-clock schedule.
type TickEvent struct {
	BaseEvent
}

// ConfigChangedEvent announces a validated configuration change. Subsystems
// is the list of areas whose settings differ from the prior snapshot.
type ConfigChangedEvent struct {
	BaseEvent
	Subsystems []string
}

// Bus is the in-process event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	all         []chan Event
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// NewBus creates a bus whose subscriber channels buffer bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel receiving events of the given types.
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	return ch
}

// SubscribeAll returns a channel receiving every event.
func (b *Bus) SubscribeAll() <-chan Event {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.all = append(b.all, ch)
	return ch
}

// Publish delivers the event to all matching subscribers without blocking.
// Events to full subscriber channels are dropped and counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes the channel from the given event types and closes it.
// The channel must have come from Subscribe with the same types.
func (b *Bus) Unsubscribe(ch <-chan Event, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	var found chan Event
	for _, t := range types {
		subs := b.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				found = sub
				b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	if found != nil {
		close(found)
	}
}

// UnsubscribeAll removes a SubscribeAll channel and closes it.
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for i, sub := range b.all {
		if sub == ch {
			b.all = append(b.all[:i:i], b.all[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Event]bool)
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	for _, ch := range b.all {
		if !seen[ch] {
			seen[ch] = true
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
	b.all = nil
}

// Dropped returns the number of events dropped due to full subscriber
// channels since the bus was created or the counter was reset.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// ResetDropped zeroes the dropped-event counter and returns the prior value.
func (b *Bus) ResetDropped() int64 {
	return b.dropped.Swap(0)
}
