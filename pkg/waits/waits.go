// Package waits provides keyed, time-limited promises.
//
// The agent fabric registers a waiter before pushing a request over the
// control channel, then blocks on it until the peer's reply completes it,
// the deadline passes, or the connection drops. Keys are scoped by
// operation and counterparty so a disconnect can fail every outstanding
// waiter for one agent without touching the others.
package waits

import (
	"context"
	"sync"
	"time"

	"github.com/seekd/seekd/pkg/seekerr"
)

// Key identifies one outstanding waiter.
type Key struct {
	Op           string
	Counterparty string
	ID           string
}

// Waiter is a one-shot promise. It is resolved by exactly one of
// Complete, Fail, or a timeout in Await.
type Waiter struct {
	done  chan struct{}
	value any
	err   error
}

// Done returns a channel closed when the waiter resolves.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Result returns the resolution. Valid only after Done is closed.
func (w *Waiter) Result() (any, error) {
	return w.value, w.err
}

// Registry tracks outstanding waiters by key.
type Registry struct {
	mu      sync.Mutex
	waiters map[Key]*Waiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[Key]*Waiter)}
}

// Register creates a waiter for the key. A second registration for a live
// key fails with AlreadyExists.
func (r *Registry) Register(key Key) (*Waiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.waiters[key]; exists {
		return nil, seekerr.Newf(seekerr.KindAlreadyExists, "waiter %s/%s/%s already registered", key.Op, key.Counterparty, key.ID)
	}
	w := &Waiter{done: make(chan struct{})}
	r.waiters[key] = w
	return w, nil
}

// Complete resolves the waiter with a value and removes it.
// Returns false when no waiter is registered for the key.
func (r *Registry) Complete(key Key, value any) bool {
	r.mu.Lock()
	w, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.value = value
	close(w.done)
	return true
}

// Fail resolves the waiter with an error and removes it.
func (r *Registry) Fail(key Key, err error) bool {
	r.mu.Lock()
	w, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	w.err = err
	close(w.done)
	return true
}

// FailAllFor resolves every waiter belonging to the counterparty with err
// and returns how many were failed. Used when an agent disconnects.
func (r *Registry) FailAllFor(counterparty string, err error) int {
	r.mu.Lock()
	var failed []*Waiter
	for key, w := range r.waiters {
		if key.Counterparty == counterparty {
			delete(r.waiters, key)
			failed = append(failed, w)
		}
	}
	r.mu.Unlock()

	for _, w := range failed {
		w.err = err
		close(w.done)
	}
	return len(failed)
}

// Len returns the number of outstanding waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// remove drops the key only if it still maps to w. A waiter resolved
// between a timeout firing and the removal stays resolved.
func (r *Registry) remove(key Key, w *Waiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.waiters[key]; ok && current == w {
		delete(r.waiters, key)
		return true
	}
	return false
}

// Await blocks until the waiter resolves, the timeout elapses, or the
// context is cancelled, and returns the value asserted to T.
func Await[T any](ctx context.Context, r *Registry, key Key, w *Waiter, timeout time.Duration) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		value, err := w.Result()
		if err != nil {
			return zero, err
		}
		typed, ok := value.(T)
		if !ok {
			return zero, seekerr.Newf(seekerr.KindInternal, "waiter %s/%s/%s resolved with %T", key.Op, key.Counterparty, key.ID, value)
		}
		return typed, nil
	case <-timer.C:
		if r.remove(key, w) {
			return zero, seekerr.Newf(seekerr.KindTimeout, "waiter %s/%s/%s timed out after %s", key.Op, key.Counterparty, key.ID, timeout)
		}
		// Resolved concurrently with the timeout; take the result.
		<-w.done
		value, err := w.Result()
		if err != nil {
			return zero, err
		}
		typed, ok := value.(T)
		if !ok {
			return zero, seekerr.Newf(seekerr.KindInternal, "waiter %s/%s/%s resolved with %T", key.Op, key.Counterparty, key.ID, value)
		}
		return typed, nil
	case <-ctx.Done():
		if r.remove(key, w) {
			return zero, seekerr.Wrap(seekerr.KindCancelled, "awaiting response", ctx.Err())
		}
		<-w.done
		value, err := w.Result()
		if err != nil {
			return zero, err
		}
		typed, ok := value.(T)
		if !ok {
			return zero, seekerr.Newf(seekerr.KindInternal, "waiter %s/%s/%s resolved with %T", key.Op, key.Counterparty, key.ID, value)
		}
		return typed, nil
	}
}
