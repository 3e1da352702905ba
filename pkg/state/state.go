// Package state holds the daemon's derived runtime state as a single
// immutable snapshot.
//
// Components update the snapshot through Update, which applies a pure
// function to the current value and atomically swaps in the result.
// Observers receive the whole new snapshot, never deltas, so they can be
// stateless.
package state

import (
	"sync"
	"sync/atomic"
)

// ServerState describes overlay server connectivity.
type ServerState struct {
	Address   string
	State     string
	Username  string
	Connected bool
	LoggedIn  bool
}

// ScanState describes shared-file index fill progress.
type ScanState struct {
	Filling      bool
	FillProgress float64
	Directories  int
	Files        int
	Faulted      bool
}

// VersionInfo describes the running build.
type VersionInfo struct {
	Version string
	Commit  string
}

// PendingFlags marks operator actions required by configuration changes.
type PendingFlags struct {
	Restart     bool
	Reconnect   bool
	ShareRescan bool
}

// Snapshot is the complete immutable runtime state.
type Snapshot struct {
	Version VersionInfo
	Server  ServerState
	Scan    ScanState
	Pending PendingFlags
}

// WithServer returns a copy with the server state replaced.
func (s Snapshot) WithServer(server ServerState) Snapshot {
	s.Server = server
	return s
}

// WithScan returns a copy with the scan state replaced.
func (s Snapshot) WithScan(scan ScanState) Snapshot {
	s.Scan = scan
	return s
}

// WithPending returns a copy with the pending flags replaced.
func (s Snapshot) WithPending(pending PendingFlags) Snapshot {
	s.Pending = pending
	return s
}

// Store holds the current snapshot and broadcasts replacements.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex
	subscribers []chan Snapshot
	closed      bool
}

// NewStore creates a store seeded with the given initial snapshot.
func NewStore(initial Snapshot) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() Snapshot {
	return *s.current.Load()
}

// Update applies fn to the current snapshot and swaps in the result.
// The returned snapshot is the new current value. Update serializes
// writers; fn must be pure and fast.
func (s *Store) Update(fn func(Snapshot) Snapshot) Snapshot {
	s.mu.Lock()
	next := fn(*s.current.Load())
	s.current.Store(&next)
	subs := make([]chan Snapshot, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, ch := range subs {
		// Latest-wins delivery: a full subscriber loses the stale
		// snapshot, not the new one.
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
	return next
}

// Subscribe returns a channel that receives every snapshot swap.
// The channel buffers one snapshot; slow consumers observe only the
// most recent state.
func (s *Store) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes the channel and closes it.
func (s *Store) Unsubscribe(ch <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close closes all subscriber channels. Further Updates still swap the
// snapshot but broadcast to nobody.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}
