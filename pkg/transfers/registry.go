package transfers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// handle is the engine's live record of one transfer. The engine is the
// single writer: the scheduler and the transfer's pump goroutine mutate it
// under mu, everyone else reads snapshots.
type handle struct {
	mu sync.Mutex
	t  Transfer

	// group is the policy group resolved at the last scheduling pass.
	group string

	// cancel aborts the pump; set when the transfer is admitted.
	cancel context.CancelFunc

	// cancelRequested marks an operator cancel so the pump records
	// Cancelled rather than Errored when its context dies.
	cancelRequested bool

	// removeOnExit removes the persisted row once the pump unwinds.
	removeOnExit bool

	// done closes when the pump goroutine exits. Nil while queued.
	done chan struct{}

	lastPersist time.Time
}

// snapshot returns a copy of the transfer for readers.
func (h *handle) snapshot() Transfer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.t
}

// key identifies a transfer in the registry. Usernames are case-folded.
type key struct {
	direction Direction
	username  string
	id        uuid.UUID
}

func newKey(direction Direction, username string, id uuid.UUID) key {
	return key{direction: direction, username: strings.ToLower(username), id: id}
}

// registry is the flat keyed table of all transfers for one direction,
// live and completed. Completed transfers stay until the operator removes
// them.
type registry struct {
	mu      sync.Mutex
	entries map[key]*handle
}

func newRegistry() *registry {
	return &registry{entries: make(map[key]*handle)}
}

// add inserts a handle; returns false when the key is already present.
func (r *registry) add(k key, h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[k]; exists {
		return false
	}
	r.entries[k] = h
	return true
}

func (r *registry) get(k key) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[k]
	return h, ok
}

func (r *registry) remove(k key) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[k]
	if ok {
		delete(r.entries, k)
	}
	return h, ok
}

// findActive returns the non-terminal handle for (username, filename), used
// to refuse duplicate enqueues.
func (r *registry) findActive(username, remoteFilename string) (*handle, bool) {
	user := strings.ToLower(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.entries {
		if k.username != user {
			continue
		}
		t := h.snapshot()
		if !t.State.IsTerminal() && t.RemoteFilename == remoteFilename {
			return h, true
		}
	}
	return nil, false
}

// list returns snapshots ordered by enqueue time then ID.
func (r *registry) list(filter func(Transfer) bool) []Transfer {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.entries))
	for _, h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	out := make([]Transfer, 0, len(handles))
	for _, h := range handles {
		t := h.snapshot()
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
