// ABOUTME: Domain types for the relay pipeline: inbound events, terminal states, outcomes.
// ABOUTME: One inbound event always yields exactly one Outcome.

package relay

import "time"

// Event is one normalized inbound user message, as parsed by the ingress.
type Event struct {
	UserID    string // opaque stable sender address
	Text      string
	MessageID string // provider message ID, the idempotency key
	Timestamp time.Time
}

// State is the terminal disposition of one inbound event.
type State string

const (
	// StateDone means the reply was generated and dispatched.
	StateDone State = "done"
	// StateFailedPermanent means a provider rejected the request; no retry helps.
	StateFailedPermanent State = "failed_permanent"
	// StateFailedTransient means retries were exhausted; the assistant turn was
	// never recorded, so history stays consistent for a later attempt.
	StateFailedTransient State = "failed_transient"
	// StateAmbiguousDelivery means the send may or may not have reached the
	// user. Recorded distinctly from success; never retried automatically.
	StateAmbiguousDelivery State = "ambiguous_delivery"
	// StateOverloaded means the user's wait queue was full and the event was
	// rejected before processing.
	StateOverloaded State = "overloaded"
	// StateRejectedInvalid means the event failed local validation.
	StateRejectedInvalid State = "rejected_invalid"
)

// Terminal success/failure dispositions that will not change on replay are
// cached for webhook re-delivery; transient ones are not, so a provider
// retry gets a fresh attempt.
func (s State) replayable() bool {
	switch s {
	case StateDone, StateFailedPermanent, StateAmbiguousDelivery:
		return true
	default:
		return false
	}
}

// Outcome records the disposition of one inbound event.
type Outcome struct {
	ID        string // unique record ID
	UserID    string
	MessageID string
	State     State
	ReplyID   string // provider ID of the outbound reply, when one was dispatched
	Latency   time.Duration
	Err       string // terse failure description, empty on success
}
