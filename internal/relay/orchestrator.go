// ABOUTME: Orchestrator driving one inbound event through history, completion, and send.
// ABOUTME: Serializes per user, deduplicates by message ID, and records one outcome per event.

package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-relay/internal/conversation"
	"github.com/2389/coven-relay/internal/dedupe"
	"github.com/2389/coven-relay/internal/faults"
	"github.com/2389/coven-relay/internal/store"
)

// Completer generates a reply from an ordered conversation history.
type Completer interface {
	Complete(ctx context.Context, history []conversation.Turn) (string, error)
}

// Sender dispatches an outbound message and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, userID, text string) (string, error)
}

// Ledger persists outcome records for operators. May be nil-checked via the
// noopLedger below when persistence is disabled.
type Ledger interface {
	SaveOutcome(ctx context.Context, o *store.Outcome) error
}

// Config holds the orchestrator's tunables.
type Config struct {
	QueueDepth    int           // max waiting events per user before Overloaded
	IdleTTL       time.Duration // session eviction threshold
	SweepInterval time.Duration // how often the idle sweep runs
	DedupeTTL     time.Duration // how long terminal outcomes answer re-deliveries
	DedupeSize    int
}

func (c *Config) applyDefaults() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 8
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.IdleTTL / 10
		if c.SweepInterval < time.Minute {
			c.SweepInterval = time.Minute
		}
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = time.Hour
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = 10000
	}
}

// Orchestrator owns the conversation store and drives the
// history -> completion -> send pipeline for every inbound event.
type Orchestrator struct {
	conversations *conversation.Store
	completer     Completer
	sender        Sender
	ledger        Ledger
	outcomes      *dedupe.Cache[Outcome]
	locks         *lockTable
	cfg           Config
	logger        *slog.Logger
}

// New creates an orchestrator. A nil ledger disables outcome persistence; a
// nil logger falls back to slog.Default.
func New(conversations *conversation.Store, completer Completer, sender Sender, ledger Ledger, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = noopLedger{}
	}
	return &Orchestrator{
		conversations: conversations,
		completer:     completer,
		sender:        sender,
		ledger:        ledger,
		outcomes:      dedupe.New[Outcome](cfg.DedupeTTL, cfg.DedupeSize),
		locks:         newLockTable(cfg.QueueDepth),
		cfg:           cfg,
		logger:        logger.With("component", "relay"),
	}
}

// Handle processes one inbound event to a terminal outcome. Safe for
// concurrent use; events for the same user are serialized, events for
// distinct users proceed in parallel.
func (o *Orchestrator) Handle(ctx context.Context, event Event) Outcome {
	started := time.Now()

	if event.UserID == "" || event.MessageID == "" || event.Text == "" {
		return o.record(event, started, Outcome{
			State: StateRejectedInvalid,
			Err:   "event requires user ID, message ID, and text",
		})
	}

	key := event.UserID + ":" + event.MessageID
	if cached, ok := o.outcomes.Get(key); ok {
		o.logger.Info("replaying cached outcome for re-delivered message",
			"user_id", event.UserID,
			"message_id", event.MessageID,
			"state", cached.State)
		return cached
	}

	if err := o.locks.acquire(event.UserID); err != nil {
		return o.record(event, started, Outcome{
			State: StateOverloaded,
			Err:   err.Error(),
		})
	}
	defer o.locks.release(event.UserID)

	// A duplicate may have finished while this one waited for the lock.
	if cached, ok := o.outcomes.Get(key); ok {
		o.logger.Info("duplicate resolved while waiting for user lock",
			"user_id", event.UserID,
			"message_id", event.MessageID,
			"state", cached.State)
		return cached
	}

	return o.record(event, started, o.process(ctx, event))
}

// process runs the locked portion of the pipeline and returns a partial
// outcome (state, reply ID, error text).
func (o *Orchestrator) process(ctx context.Context, event Event) Outcome {
	if err := o.conversations.Append(event.UserID, conversation.RoleUser, event.Text); err != nil {
		return Outcome{State: StateRejectedInvalid, Err: err.Error()}
	}

	history := o.conversations.Snapshot(event.UserID)
	o.logger.Debug("requesting completion",
		"user_id", event.UserID,
		"message_id", event.MessageID,
		"history_turns", len(history))

	reply, err := o.completer.Complete(ctx, history)
	if err != nil {
		// The assistant turn was never appended: history stays consistent
		// and a later delivery of the same text starts clean.
		return Outcome{State: stateForError(err), Err: err.Error()}
	}

	// Record the reply before dispatching it. If the send turns out
	// ambiguous, a retried inbound message still sees this turn as context
	// instead of generating a second completion.
	if err := o.conversations.Append(event.UserID, conversation.RoleAssistant, reply); err != nil {
		return Outcome{State: StateRejectedInvalid, Err: err.Error()}
	}

	replyID, err := o.sender.Send(ctx, event.UserID, reply)
	if err != nil {
		return Outcome{State: stateForError(err), ReplyID: replyID, Err: err.Error()}
	}

	return Outcome{State: StateDone, ReplyID: replyID}
}

// record finalizes the outcome: identity, latency, log line, ledger row, and
// the re-delivery cache for dispositions that will not change on replay.
func (o *Orchestrator) record(event Event, started time.Time, partial Outcome) Outcome {
	outcome := partial
	outcome.ID = uuid.New().String()
	outcome.UserID = event.UserID
	outcome.MessageID = event.MessageID
	outcome.Latency = time.Since(started)

	if outcome.State == StateDone {
		o.logger.Info("event processed",
			"user_id", outcome.UserID,
			"message_id", outcome.MessageID,
			"reply_id", outcome.ReplyID,
			"latency", outcome.Latency)
	} else {
		o.logger.Warn("event did not complete",
			"user_id", outcome.UserID,
			"message_id", outcome.MessageID,
			"state", outcome.State,
			"latency", outcome.Latency,
			"error", outcome.Err)
	}

	o.saveOutcome(&outcome)

	if outcome.State.replayable() && outcome.MessageID != "" {
		o.outcomes.Put(outcome.UserID+":"+outcome.MessageID, outcome)
	}
	return outcome
}

// saveOutcome persists the record on its own timeout so ledger trouble never
// blocks or cancels the pipeline.
func (o *Orchestrator) saveOutcome(outcome *Outcome) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &store.Outcome{
		ID:        outcome.ID,
		UserID:    outcome.UserID,
		MessageID: outcome.MessageID,
		State:     string(outcome.State),
		ReplyID:   outcome.ReplyID,
		Error:     outcome.Err,
		Latency:   outcome.Latency,
		CreatedAt: time.Now(),
	}
	if err := o.ledger.SaveOutcome(saveCtx, rec); err != nil {
		o.logger.Error("failed to save outcome",
			"error", err,
			"outcome_id", outcome.ID,
			"message_id", outcome.MessageID)
	}
}

// RunSweeper evicts idle sessions until ctx is cancelled. It is the only
// background task the orchestrator runs. Each eviction takes the user's
// in-flight lock first, so a sweep never races live processing; busy users
// are skipped until the next pass.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) sweep() {
	cutoff := time.Now().Add(-o.cfg.IdleTTL)
	for _, userID := range o.conversations.IdleSince(cutoff) {
		if !o.locks.tryAcquire(userID) {
			continue
		}
		o.conversations.Evict(userID)
		o.locks.forget(userID)
		o.logger.Debug("evicted idle session", "user_id", userID)
	}
}

// ActiveSessions reports the number of live conversations.
func (o *Orchestrator) ActiveSessions() int {
	return o.conversations.Len()
}

// Close releases background resources.
func (o *Orchestrator) Close() {
	o.outcomes.Close()
}

// noopLedger discards outcome records when persistence is disabled.
type noopLedger struct{}

func (noopLedger) SaveOutcome(context.Context, *store.Outcome) error { return nil }

// stateForError maps a classified adapter failure to a terminal state.
func stateForError(err error) State {
	switch faults.KindOf(err) {
	case faults.KindPermanent, faults.KindInvalidArgument:
		return StateFailedPermanent
	case faults.KindAmbiguous:
		return StateAmbiguousDelivery
	default:
		return StateFailedTransient
	}
}
