package agents

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"
	"time"
)

// ticketTTL is how long an issued token stays redeemable.
const ticketTTL = 60 * time.Second

type ticketKind int

const (
	ticketShareUpload ticketKind = iota
	ticketFileUpload
)

// streamResult resolves a file-upload ticket's stream promise.
type streamResult struct {
	body io.ReadCloser
	err  error
}

// ticket is one outstanding one-shot upload credential.
type ticket struct {
	token    string
	agent    string
	filename string
	kind     ticketKind
	issuedAt time.Time

	// stream resolves when the agent's data channel arrives or the
	// request fails. Buffered so the resolver never blocks.
	stream chan streamResult

	// completion is signalled by the consumer once it is done with the
	// stream; the HTTP handler holds the connection open until then.
	completion chan error
}

// ticketTable issues and redeems one-shot tokens. A token is removed on
// the first redemption attempt regardless of outcome.
type ticketTable struct {
	mu      sync.Mutex
	tickets map[string]*ticket
	now     func() time.Time
}

func newTicketTable() *ticketTable {
	return &ticketTable{tickets: make(map[string]*ticket), now: time.Now}
}

// issue mints a fresh 128-bit token for the agent.
func (tt *ticketTable) issue(kind ticketKind, agent, filename string) (*ticket, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	tk := &ticket{
		token:      hex.EncodeToString(raw),
		agent:      agent,
		filename:   filename,
		kind:       kind,
		issuedAt:   tt.now(),
		stream:     make(chan streamResult, 1),
		completion: make(chan error, 1),
	}
	tt.mu.Lock()
	tt.prune()
	tt.tickets[tk.token] = tk
	tt.mu.Unlock()
	return tk, nil
}

// redeem removes and returns the ticket for token. One shot: the entry is
// gone after this call whether or not the caller's credential verifies.
func (tt *ticketTable) redeem(token string) (*ticket, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tk, ok := tt.tickets[token]
	if !ok {
		return nil, false
	}
	delete(tt.tickets, token)
	if tt.now().Sub(tk.issuedAt) > ticketTTL {
		return nil, false
	}
	return tk, true
}

// withdraw removes a ticket the issuer no longer wants honored, for
// timeouts. Returns false when the ticket was already redeemed.
func (tt *ticketTable) withdraw(token string) bool {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if _, ok := tt.tickets[token]; !ok {
		return false
	}
	delete(tt.tickets, token)
	return true
}

// failAllFor fails the stream promise of every live ticket belonging to
// the agent. Used on agent disconnect.
func (tt *ticketTable) failAllFor(agent string, err error) int {
	tt.mu.Lock()
	var failed []*ticket
	for token, tk := range tt.tickets {
		if tk.agent == agent {
			delete(tt.tickets, token)
			failed = append(failed, tk)
		}
	}
	tt.mu.Unlock()

	for _, tk := range failed {
		select {
		case tk.stream <- streamResult{err: err}:
		default:
		}
	}
	return len(failed)
}

// fail removes a live ticket and resolves its stream promise with err,
// for failure notifications arriving over the control channel. Returns
// false when the ticket was already redeemed or withdrawn.
func (tt *ticketTable) fail(token string, err error) bool {
	tt.mu.Lock()
	tk, ok := tt.tickets[token]
	if ok {
		delete(tt.tickets, token)
	}
	tt.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case tk.stream <- streamResult{err: err}:
	default:
	}
	return true
}

// prune drops expired entries. Caller holds tt.mu.
func (tt *ticketTable) prune() {
	cutoff := tt.now().Add(-ticketTTL)
	for token, tk := range tt.tickets {
		if tk.issuedAt.Before(cutoff) {
			delete(tt.tickets, token)
		}
	}
}

// len reports live tickets, for tests.
func (tt *ticketTable) len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.tickets)
}
