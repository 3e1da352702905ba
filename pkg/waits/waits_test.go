package waits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seekd/seekd/pkg/seekerr"
)

type fileInfo struct {
	Exists bool
	Length int64
}

func TestCompleteResolvesAwait(t *testing.T) {
	r := NewRegistry()
	key := Key{Op: "FileInfo", Counterparty: "shed", ID: "req-1"}

	w, err := r.Register(key)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if !r.Complete(key, fileInfo{Exists: true, Length: 42}) {
			t.Error("Complete returned false")
		}
	}()

	got, err := Await[fileInfo](context.Background(), r, key, w, time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !got.Exists || got.Length != 42 {
		t.Errorf("got %+v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	key := Key{Op: "FileInfo", Counterparty: "shed", ID: "req-1"}

	if _, err := r.Register(key); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := r.Register(key); !seekerr.Is(err, seekerr.KindAlreadyExists) {
		t.Errorf("second Register err = %v, want AlreadyExists", err)
	}
}

func TestFailPropagatesError(t *testing.T) {
	r := NewRegistry()
	key := Key{Op: "FileInfo", Counterparty: "shed", ID: "req-2"}
	w, _ := r.Register(key)

	cause := seekerr.New(seekerr.KindAgentDisconnected, "agent shed disconnected")
	r.Fail(key, cause)

	_, err := Await[fileInfo](context.Background(), r, key, w, time.Second)
	if !errors.Is(err, cause) {
		t.Errorf("Await err = %v, want the failure cause", err)
	}
}

func TestAwaitTimeout(t *testing.T) {
	r := NewRegistry()
	key := Key{Op: "FileInfo", Counterparty: "shed", ID: "req-3"}
	w, _ := r.Register(key)

	start := time.Now()
	_, err := Await[fileInfo](context.Background(), r, key, w, 30*time.Millisecond)
	if !seekerr.IsTimeout(err) {
		t.Fatalf("err = %v, want Timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout took %s", elapsed)
	}
	if r.Len() != 0 {
		t.Error("timed-out waiter still registered")
	}

	// Complete after timeout finds nothing to resolve.
	if r.Complete(key, fileInfo{}) {
		t.Error("Complete succeeded after timeout removal")
	}
}

func TestAwaitCancellation(t *testing.T) {
	r := NewRegistry()
	key := Key{Op: "FileFetch", Counterparty: "shed", ID: "req-4"}
	w, _ := r.Register(key)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Await[fileInfo](ctx, r, key, w, time.Minute)
	if !seekerr.IsCancelled(err) {
		t.Errorf("err = %v, want Cancelled", err)
	}
}

func TestFailAllForOneCounterparty(t *testing.T) {
	r := NewRegistry()

	shedKeys := []Key{
		{Op: "FileInfo", Counterparty: "shed", ID: "a"},
		{Op: "FileFetch", Counterparty: "shed", ID: "b"},
	}
	atticKey := Key{Op: "FileInfo", Counterparty: "attic", ID: "c"}

	var shedWaiters []*Waiter
	for _, k := range shedKeys {
		w, _ := r.Register(k)
		shedWaiters = append(shedWaiters, w)
	}
	atticW, _ := r.Register(atticKey)

	cause := seekerr.New(seekerr.KindAgentDisconnected, "agent shed disconnected")
	if n := r.FailAllFor("shed", cause); n != 2 {
		t.Errorf("FailAllFor = %d, want 2", n)
	}

	for i, w := range shedWaiters {
		_, err := Await[fileInfo](context.Background(), r, shedKeys[i], w, time.Second)
		if !seekerr.Is(err, seekerr.KindAgentDisconnected) {
			t.Errorf("waiter %d err = %v", i, err)
		}
	}

	// The other counterparty's waiter is untouched.
	select {
	case <-atticW.Done():
		t.Error("attic waiter resolved by shed disconnect")
	default:
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestConcurrentCompleteAndTimeoutRace(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		key := Key{Op: "FileInfo", Counterparty: "shed", ID: string(rune('a' + i))}
		w, _ := r.Register(key)

		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Complete(key, fileInfo{Exists: true})
		}()
		go func() {
			defer wg.Done()
			got, err := Await[fileInfo](context.Background(), r, key, w, time.Microsecond)
			// Either outcome is fine; a resolved result must carry the value.
			if err == nil && !got.Exists {
				t.Error("resolved waiter lost its value")
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after race", r.Len())
	}
}
