package state

import (
	"sync"
	"testing"
	"time"
)

func TestCurrentReturnsSeed(t *testing.T) {
	store := NewStore(Snapshot{Version: VersionInfo{Version: "1.2.3"}})

	if got := store.Current().Version.Version; got != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", got)
	}
}

func TestUpdateSwapsAtomically(t *testing.T) {
	store := NewStore(Snapshot{})

	next := store.Update(func(s Snapshot) Snapshot {
		return s.WithServer(ServerState{State: "LoggedIn", Connected: true, LoggedIn: true})
	})

	if !next.Server.LoggedIn {
		t.Error("returned snapshot missing update")
	}
	if !store.Current().Server.LoggedIn {
		t.Error("Current() missing update")
	}
}

func TestUpdateDoesNotMutatePriorSnapshot(t *testing.T) {
	store := NewStore(Snapshot{})
	before := store.Current()

	store.Update(func(s Snapshot) Snapshot {
		return s.WithScan(ScanState{Filling: true, FillProgress: 0.5})
	})

	if before.Scan.Filling {
		t.Error("prior snapshot mutated by Update")
	}
}

func TestSubscribeReceivesWholeSnapshot(t *testing.T) {
	store := NewStore(Snapshot{Version: VersionInfo{Version: "0.9.0"}})
	ch := store.Subscribe()

	store.Update(func(s Snapshot) Snapshot {
		return s.WithPending(PendingFlags{Restart: true})
	})

	select {
	case snap := <-ch:
		if !snap.Pending.Restart {
			t.Error("snapshot missing pending flag")
		}
		if snap.Version.Version != "0.9.0" {
			t.Error("broadcast is not the whole snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	store := NewStore(Snapshot{})
	ch := store.Subscribe()

	for i := 1; i <= 5; i++ {
		n := i
		store.Update(func(s Snapshot) Snapshot {
			return s.WithScan(ScanState{Files: n * 100})
		})
	}

	select {
	case snap := <-ch:
		if snap.Scan.Files != 500 {
			t.Errorf("Files = %d, want 500 (latest wins)", snap.Scan.Files)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	store := NewStore(Snapshot{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update(func(s Snapshot) Snapshot {
				s.Scan.Files++
				return s
			})
		}()
	}
	wg.Wait()

	if got := store.Current().Scan.Files; got != 50 {
		t.Errorf("Files = %d, want 50", got)
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	store := NewStore(Snapshot{})

	a := store.Subscribe()
	store.Unsubscribe(a)
	if _, open := <-a; open {
		t.Error("channel open after Unsubscribe")
	}

	b := store.Subscribe()
	store.Close()
	if _, open := <-b; open {
		t.Error("channel open after Close")
	}

	// Updates after Close still swap.
	store.Update(func(s Snapshot) Snapshot {
		return s.WithServer(ServerState{Connected: true})
	})
	if !store.Current().Server.Connected {
		t.Error("Update after Close lost the swap")
	}
}
