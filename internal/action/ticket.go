package action

import (
	"sync"
	"time"

	"github.com/pborman/uuid"
)

type TicketState uint8

const (
	TicketQueued TicketState = iota
	TicketInFlight
	TicketSucceeded
	TicketFailedRetryable
	TicketFailedTerminal
	TicketCancelled
)

func (s TicketState) String() string {
	switch s {
	case TicketQueued:
		return "queued"
	case TicketInFlight:
		return "in_flight"
	case TicketSucceeded:
		return "succeeded"
	case TicketFailedRetryable:
		return "failed_retryable"
	case TicketFailedTerminal:
		return "failed_terminal"
	case TicketCancelled:
		return "cancelled"
	}
	return "unknown"
}

func (s TicketState) Terminal() bool {
	switch s {
	case TicketSucceeded, TicketFailedTerminal, TicketCancelled:
		return true
	}
	return false
}

// Ticket tracks one in-flight plan entry. Owned by the dispatcher; other
// components only observe it through the accessor methods.
type Ticket struct {
	ID      string
	GuildID string
	// Locale is the guild language the plan was issued under, for
	// user-facing texts produced while executing the entry.
	Locale string
	Entry  Entry

	mu        sync.Mutex
	state     TicketState
	attempts  int
	nextRetry time.Time
	lastErr   error
	cancelled bool
	// Reasons accumulates audit context from coalesced duplicate plans.
	reasons []string
}

func NewTicket(guildID, locale string, entry Entry) *Ticket {
	t := &Ticket{
		ID:      uuid.New(),
		GuildID: guildID,
		Locale:  locale,
		Entry:   entry,
		state:   TicketQueued,
	}
	if entry.Reason != "" {
		t.reasons = []string{entry.Reason}
	}
	return t
}

func (t *Ticket) State() TicketState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Ticket) SetState(s TicketState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Ticket) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *Ticket) RecordAttempt(err error, nextRetry time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	t.lastErr = err
	t.nextRetry = nextRetry
}

func (t *Ticket) NextRetry() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRetry
}

func (t *Ticket) LastErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Cancel marks the ticket moot (e.g. the target already left the guild).
// The dispatcher checks this before every attempt, not only at submission.
func (t *Ticket) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *Ticket) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// MergeReason appends audit context from a coalesced duplicate plan entry.
func (t *Ticket) MergeReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.reasons {
		if r == reason {
			return
		}
	}
	t.reasons = append(t.reasons, reason)
}

func (t *Ticket) Reasons() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.reasons))
	copy(out, t.reasons)
	return out
}
