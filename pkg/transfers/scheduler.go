package transfers

import (
	"sync"
	"time"

	"github.com/seekd/seekd/pkg/groups"
)

// governorTick bounds how long an admissible transfer waits once bucket
// tokens replenish.
const governorTick = 250 * time.Millisecond

// scheduler admits queued transfers for one direction. A single loop
// goroutine owns the pick; it sleeps on the condition variable and wakes on
// enqueue, slot release, reconfiguration and the periodic governor tick.
type scheduler struct {
	direction Direction
	resolver  GroupResolver
	governor  *Governor

	// admit starts the pump for an admitted transfer. Called outside the
	// scheduler lock.
	admit func(h *handle, group groups.Group)

	mu   sync.Mutex
	cond *sync.Cond

	queue         []*handle
	globalSlots   int
	inFlight      int
	groupInFlight map[string]int

	// lastServed tracks, per group, when each user was last granted a
	// slot. Round robin groups pick the longest-unserved user.
	lastServed map[string]map[string]time.Time

	closed bool
}

func newScheduler(direction Direction, slots int, resolver GroupResolver, governor *Governor, admit func(*handle, groups.Group)) *scheduler {
	s := &scheduler{
		direction:     direction,
		resolver:      resolver,
		governor:      governor,
		admit:         admit,
		globalSlots:   slots,
		groupInFlight: make(map[string]int),
		lastServed:    make(map[string]map[string]time.Time),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// run is the scheduling loop. It exits when close is called.
func (s *scheduler) run() {
	ticker := time.NewTicker(governorTick)
	defer ticker.Stop()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.cond.Broadcast()
			case <-stop:
				return
			}
		}
	}()
	defer close(stop)

	for {
		s.mu.Lock()
		for !s.closed && !s.pickable() {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		h, group := s.pick()
		if h != nil {
			s.inFlight++
			s.groupInFlight[group.Name]++
			s.markServed(group.Name, h)
		}
		s.mu.Unlock()

		if h != nil {
			s.admit(h, group)
		}
	}
}

// enqueue appends a transfer in QueuedLocally and wakes the loop.
func (s *scheduler) enqueue(h *handle) {
	s.mu.Lock()
	s.queue = append(s.queue, h)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// withdraw removes a still-queued transfer, returning false if it was
// already admitted.
func (s *scheduler) withdraw(h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, q := range s.queue {
		if q == h {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// release returns a slot once a transfer leaves its active phase and wakes
// the loop so the next queued transfer can be admitted.
func (s *scheduler) release(group string) {
	s.mu.Lock()
	s.inFlight--
	if s.groupInFlight[group] > 0 {
		s.groupInFlight[group]--
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// reconfigure applies a new global slot count.
func (s *scheduler) reconfigure(slots int) {
	s.mu.Lock()
	s.globalSlots = slots
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *scheduler) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// queuePosition returns the 1-based position of h among queued transfers
// for the same user, or 0 when h is no longer queued.
func (s *scheduler) queuePosition(h *handle) int {
	user := newKey(s.direction, h.snapshot().Username, h.snapshot().ID).username
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := 0
	for _, q := range s.queue {
		if newKey(s.direction, q.snapshot().Username, q.snapshot().ID).username == user {
			pos++
			if q == h {
				return pos
			}
		}
	}
	return 0
}

// pickable reports whether the loop has any chance of admitting work. It
// holds s.mu.
func (s *scheduler) pickable() bool {
	if len(s.queue) == 0 {
		return false
	}
	if s.globalSlots > 0 && s.inFlight >= s.globalSlots {
		return false
	}
	return true
}

// pick walks groups by ascending priority and returns the next admissible
// transfer, removing it from the queue. It holds s.mu.
func (s *scheduler) pick() (*handle, groups.Group) {
	if !s.pickable() {
		return nil, groups.Group{}
	}

	// Resolve each queued transfer's group once per pass. Membership can
	// change between passes, so the assignment is never cached.
	byGroup := make(map[string][]*handle)
	resolved := make(map[*handle]groups.Group)
	for _, h := range s.queue {
		g := s.resolver.Resolve(h.snapshot().Username)
		byGroup[g.Name] = append(byGroup[g.Name], h)
		resolved[h] = g
	}

	for _, g := range s.resolver.Groups() {
		candidates := byGroup[g.Name]
		if len(candidates) == 0 {
			continue
		}
		if g.Slots > 0 && s.groupInFlight[g.Name] >= g.Slots {
			continue
		}
		if !s.governor.HasBudget(s.direction, g.Name) {
			continue
		}
		var chosen *handle
		switch g.Strategy {
		case groups.RoundRobin:
			chosen = s.pickRoundRobin(g.Name, candidates)
		default:
			chosen = s.pickFIFO(candidates)
		}
		if chosen == nil {
			continue
		}
		for i, q := range s.queue {
			if q == chosen {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
		return chosen, resolved[chosen]
	}
	return nil, groups.Group{}
}

// pickFIFO returns the candidate with the oldest enqueue time.
func (s *scheduler) pickFIFO(candidates []*handle) *handle {
	var chosen *handle
	var oldest time.Time
	for _, h := range candidates {
		t := h.snapshot()
		if chosen == nil || t.EnqueuedAt.Before(oldest) {
			chosen = h
			oldest = t.EnqueuedAt
		}
	}
	return chosen
}

// pickRoundRobin picks the user served longest ago, then the oldest
// transfer of that user. Users never served sort first.
func (s *scheduler) pickRoundRobin(group string, candidates []*handle) *handle {
	served := s.lastServed[group]

	var bestUser string
	var bestServed time.Time
	haveUser := false
	for _, h := range candidates {
		user := newKey(s.direction, h.snapshot().Username, h.snapshot().ID).username
		at := served[user]
		if !haveUser || at.Before(bestServed) {
			bestUser = user
			bestServed = at
			haveUser = true
		}
	}

	var chosen *handle
	var oldest time.Time
	for _, h := range candidates {
		t := h.snapshot()
		if newKey(s.direction, t.Username, t.ID).username != bestUser {
			continue
		}
		if chosen == nil || t.EnqueuedAt.Before(oldest) {
			chosen = h
			oldest = t.EnqueuedAt
		}
	}
	return chosen
}

// markServed stamps the served time used by round robin ordering. It holds
// s.mu.
func (s *scheduler) markServed(group string, h *handle) {
	user := newKey(s.direction, h.snapshot().Username, h.snapshot().ID).username
	m := s.lastServed[group]
	if m == nil {
		m = make(map[string]time.Time)
		s.lastServed[group] = m
	}
	m[user] = time.Now()
}
