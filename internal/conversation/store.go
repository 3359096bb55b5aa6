// ABOUTME: Thread-safe in-memory store of bounded per-user conversation histories.
// ABOUTME: Sessions are created lazily, trimmed FIFO to maxTurns, and evicted when idle.

package conversation

import (
	"sync"
	"time"

	"github.com/2389/coven-relay/internal/faults"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation history. Immutable once created.
type Turn struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// session owns one user's history plus its last-activity time.
type session struct {
	turns        []Turn
	lastActivity time.Time
}

// Store is a thread-safe map from user ID to bounded conversation history.
// Operations on distinct users never contend beyond the map lock itself.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	maxTurns int
	now      func() time.Time // injectable for tests
}

// NewStore creates a store that keeps at most maxTurns turns per user.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Store{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// Append records a turn for the user, creating the session if absent and
// trimming the oldest turns once the history exceeds the cap.
func (s *Store) Append(userID string, role Role, text string) error {
	if userID == "" {
		return faults.New(faults.KindInvalidArgument, "user ID is required")
	}
	if text == "" {
		return faults.New(faults.KindInvalidArgument, "turn text is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
	}

	sess.turns = append(sess.turns, Turn{Role: role, Text: text, CreatedAt: now})
	if excess := len(sess.turns) - s.maxTurns; excess > 0 {
		// Drop oldest first, shifting in place so the backing array doesn't
		// grow without bound across many appends.
		copied := copy(sess.turns, sess.turns[excess:])
		sess.turns = sess.turns[:copied]
	}
	sess.lastActivity = now
	return nil
}

// Snapshot returns a copy of the user's history, oldest first.
// A missing session yields an empty slice, not an error.
func (s *Store) Snapshot(userID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return []Turn{}
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Evict removes the user's session. No-op if the session does not exist.
func (s *Store) Evict(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// IdleSince returns the IDs of sessions with no activity since cutoff.
// The caller (the relay's sweep) is responsible for serializing eviction
// against in-flight processing via the per-user lock.
func (s *Store) IdleSince(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for id, sess := range s.sessions {
		if sess.lastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
