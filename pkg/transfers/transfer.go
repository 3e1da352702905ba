// Package transfers implements the upload/download engine: admission,
// per-group scheduling, bandwidth governance, execution, and persistence of
// transfers in both directions.
package transfers

import (
	"time"

	"github.com/google/uuid"
)

// Direction distinguishes uploads from downloads.
type Direction int

const (
	// Download moves a file from a peer to this node.
	Download Direction = iota

	// Upload serves a file from this node to a peer.
	Upload
)

// String returns the direction name as persisted and exposed by the API.
func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Valid reports whether the direction is one of the two defined values.
func (d Direction) Valid() bool {
	return d == Download || d == Upload
}

// ParseDirection maps a direction name to its value.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "download":
		return Download, true
	case "upload":
		return Upload, true
	default:
		return 0, false
	}
}

// State is a transfer's position in its lifecycle.
type State int

const (
	// StateRequested is the initial state: the transfer exists but has not
	// joined the local queue.
	StateRequested State = iota

	// StateQueuedLocally means the transfer waits for a local slot.
	StateQueuedLocally

	// StateQueuedRemotely means a download waits in the peer's upload
	// queue. Uploads skip this state.
	StateQueuedRemotely

	// StateInitializing means a slot is held and the byte stream is being
	// established.
	StateInitializing

	// StateInProgress means bytes are moving.
	StateInProgress

	// StateCompletedSucceeded is the successful terminal state.
	StateCompletedSucceeded

	// StateCompletedCancelled is the terminal state after a local cancel.
	StateCompletedCancelled

	// StateCompletedTimedOut is the terminal state after a peer deadline.
	StateCompletedTimedOut

	// StateCompletedRejected is the terminal state when the peer refused
	// the request outright.
	StateCompletedRejected

	// StateCompletedErrored is the terminal state for every other failure.
	StateCompletedErrored
)

// String returns the state name as persisted and exposed by the API.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateQueuedLocally:
		return "queued_locally"
	case StateQueuedRemotely:
		return "queued_remotely"
	case StateInitializing:
		return "initializing"
	case StateInProgress:
		return "in_progress"
	case StateCompletedSucceeded:
		return "completed_succeeded"
	case StateCompletedCancelled:
		return "completed_cancelled"
	case StateCompletedTimedOut:
		return "completed_timed_out"
	case StateCompletedRejected:
		return "completed_rejected"
	case StateCompletedErrored:
		return "completed_errored"
	default:
		return "unknown"
	}
}

// ParseState maps a persisted state name back to its value.
func ParseState(s string) (State, bool) {
	for st := StateRequested; st <= StateCompletedErrored; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// IsTerminal reports whether the state ends the lifecycle.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompletedSucceeded, StateCompletedCancelled,
		StateCompletedTimedOut, StateCompletedRejected, StateCompletedErrored:
		return true
	default:
		return false
	}
}

// TerminalStateNames returns the terminal state names, for store queries.
func TerminalStateNames() []string {
	return []string{
		StateCompletedSucceeded.String(),
		StateCompletedCancelled.String(),
		StateCompletedTimedOut.String(),
		StateCompletedRejected.String(),
		StateCompletedErrored.String(),
	}
}

// canTransition encodes the lifecycle machine. States advance monotonically
// and are never re-entered. Cancellation is reachable from every
// non-terminal state; rejection only from the initial request; timeout and
// error from anywhere a failure can still occur.
func canTransition(from, to State) bool {
	if from.IsTerminal() || from == to {
		return false
	}
	switch to {
	case StateQueuedLocally:
		return from == StateRequested
	case StateQueuedRemotely:
		return from == StateQueuedLocally
	case StateInitializing:
		return from == StateQueuedLocally || from == StateQueuedRemotely
	case StateInProgress:
		return from == StateInitializing
	case StateCompletedSucceeded:
		return from == StateInProgress
	case StateCompletedCancelled:
		return true
	case StateCompletedRejected:
		return from == StateRequested
	case StateCompletedTimedOut, StateCompletedErrored:
		return true
	default:
		return false
	}
}

// FailureDetail records why a transfer ended in a failure state. Kind names
// a taxonomy kind; Message preserves the underlying cause verbatim.
type FailureDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Transfer is one upload or download. Values returned by the engine are
// snapshots; the engine's single writer per transfer mutates the live copy.
type Transfer struct {
	ID        uuid.UUID
	Direction Direction
	Username  string

	// RemoteFilename is in overlay form (backslash separators);
	// LocalFilename in host form.
	RemoteFilename string
	LocalFilename  string

	Size             int64
	StartOffset      int64
	BytesTransferred int64

	// AverageSpeed is a sliding-window average in bytes per second,
	// meaningful from InProgress onward.
	AverageSpeed float64

	State State

	EnqueuedAt time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time

	Failure *FailureDetail

	// PlaceInQueue is the last computed queue position, when known.
	PlaceInQueue *int
}
