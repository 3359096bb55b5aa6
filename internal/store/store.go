// ABOUTME: Store interface and data types for coven-relay persistence.
// ABOUTME: Defines the Outcome record and the Store interface for ledger operations.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Outcome is the persisted disposition of one inbound message. The ledger is
// operator-facing: it records what happened to every event, while the
// conversation history itself stays in memory only.
type Outcome struct {
	ID        string
	UserID    string
	MessageID string
	State     string // done, failed_permanent, failed_transient, ambiguous_delivery, overloaded, rejected_invalid
	ReplyID   string // provider ID of the dispatched reply, if any
	Error     string
	Latency   time.Duration
	CreatedAt time.Time
}

// Store defines the persistence operations for outcome records
type Store interface {
	// SaveOutcome appends one outcome row. Outcome IDs are unique;
	// re-saving an existing ID is an error.
	SaveOutcome(ctx context.Context, o *Outcome) error

	// GetOutcome returns the outcome with the given record ID
	GetOutcome(ctx context.Context, id string) (*Outcome, error)

	// GetOutcomeByMessageID returns the most recent outcome recorded for a
	// user's inbound message ID
	GetOutcomeByMessageID(ctx context.Context, userID, messageID string) (*Outcome, error)

	// RecentOutcomes returns up to limit outcomes, newest first
	RecentOutcomes(ctx context.Context, limit int) ([]*Outcome, error)

	// CountByState returns outcome totals grouped by terminal state
	CountByState(ctx context.Context) (map[string]int, error)

	// Close releases the underlying database
	Close() error
}
