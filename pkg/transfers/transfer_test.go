package transfers

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"requested to queued locally", StateRequested, StateQueuedLocally, true},
		{"queued locally to queued remotely", StateQueuedLocally, StateQueuedRemotely, true},
		{"queued remotely to initializing", StateQueuedRemotely, StateInitializing, true},
		{"queued locally to initializing", StateQueuedLocally, StateInitializing, true},
		{"initializing to in progress", StateInitializing, StateInProgress, true},
		{"in progress to succeeded", StateInProgress, StateCompletedSucceeded, true},

		{"no skipping to in progress", StateQueuedLocally, StateInProgress, false},
		{"no success without progress", StateInitializing, StateCompletedSucceeded, false},
		{"no backwards motion", StateInProgress, StateQueuedLocally, false},
		{"no self transition", StateInProgress, StateInProgress, false},

		{"cancel from requested", StateRequested, StateCompletedCancelled, true},
		{"cancel from in progress", StateInProgress, StateCompletedCancelled, true},
		{"reject only from requested", StateRequested, StateCompletedRejected, true},
		{"no reject once queued", StateQueuedLocally, StateCompletedRejected, false},
		{"no reject mid transfer", StateInProgress, StateCompletedRejected, false},
		{"timeout from queued remotely", StateQueuedRemotely, StateCompletedTimedOut, true},
		{"error from initializing", StateInitializing, StateCompletedErrored, true},

		{"terminal states are final", StateCompletedSucceeded, StateCompletedCancelled, false},
		{"no leaving errored", StateCompletedErrored, StateQueuedLocally, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStateNames(t *testing.T) {
	names := TerminalStateNames()
	if len(names) != 5 {
		t.Fatalf("expected 5 terminal states, got %d", len(names))
	}
	for _, name := range names {
		st, ok := ParseState(name)
		if !ok {
			t.Fatalf("terminal name %q does not parse", name)
		}
		if !st.IsTerminal() {
			t.Errorf("state %s listed as terminal but IsTerminal is false", st)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, ok := ParseDirection("upload"); !ok || d != Upload {
		t.Errorf("ParseDirection(upload) = %v, %v", d, ok)
	}
	if d, ok := ParseDirection("download"); !ok || d != Download {
		t.Errorf("ParseDirection(download) = %v, %v", d, ok)
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection accepted an unknown direction")
	}
}
