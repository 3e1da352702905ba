// Package clock fires named wall-clock tick events on the bus.
//
// It is a pure time source: subsystems that need periodic work (session
// watchdog, share auto-rescan, agent keepalive) subscribe to the tick
// events instead of owning timers.
package clock

import (
	"github.com/robfig/cron/v3"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/events"
)

// Clock publishes tick events at 1, 5, 30, and 60 minute intervals.
type Clock struct {
	cron *cron.Cron
	bus  *events.Bus
}

// New creates a stopped clock publishing to the given bus.
func New(bus *events.Bus) *Clock {
	return &Clock{
		cron: cron.New(),
		bus:  bus,
	}
}

// Start registers the tick schedule and begins firing.
func (c *Clock) Start() error {
	schedule := []struct {
		spec string
		tick events.EventType
	}{
		{"* * * * *", events.EventTickMinute},
		{"*/5 * * * *", events.EventTickFiveMinutes},
		{"*/30 * * * *", events.EventTickThirtyMinutes},
		{"0 * * * *", events.EventTickHour},
	}

	for _, s := range schedule {
		tick := s.tick
		if _, err := c.cron.AddFunc(s.spec, func() {
			c.publishTick(tick)
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	logger.Debug("clock started", "ticks", len(schedule))
	return nil
}

// Stop halts the schedule and waits for in-flight tick handlers.
func (c *Clock) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	logger.Debug("clock stopped")
}

// Entries returns the number of registered tick schedules.
func (c *Clock) Entries() int {
	return len(c.cron.Entries())
}

func (c *Clock) publishTick(tick events.EventType) {
	c.bus.Publish(events.TickEvent{BaseEvent: events.NewBase(tick)})
}
