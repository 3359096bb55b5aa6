// ABOUTME: Per-user in-flight locks with a bounded wait queue.
// ABOUTME: Guarantees at most one event per user is processed at a time.

package relay

import (
	"sync"

	"github.com/2389/coven-relay/internal/faults"
)

// userLock serializes processing for one user. The buffered channel of width
// one is the lock slot; waiting counts events blocked on it.
type userLock struct {
	slot    chan struct{}
	waiting int
}

// lockTable hands out per-user locks. Events for distinct users never contend
// beyond the table's own map lock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*userLock
	depth int // max events allowed to wait per user
}

func newLockTable(depth int) *lockTable {
	if depth <= 0 {
		depth = 8
	}
	return &lockTable{
		locks: make(map[string]*userLock),
		depth: depth,
	}
}

// acquire takes the user's lock, blocking behind at most depth earlier
// waiters. Returns an Overloaded fault when the wait queue is full.
func (lt *lockTable) acquire(userID string) error {
	lt.mu.Lock()
	l, ok := lt.locks[userID]
	if !ok {
		l = &userLock{slot: make(chan struct{}, 1)}
		lt.locks[userID] = l
	}

	select {
	case l.slot <- struct{}{}:
		lt.mu.Unlock()
		return nil
	default:
	}

	if l.waiting >= lt.depth {
		lt.mu.Unlock()
		return faults.New(faults.KindOverloaded, "user %s has %d events queued", userID, l.waiting)
	}
	l.waiting++
	lt.mu.Unlock()

	l.slot <- struct{}{}

	lt.mu.Lock()
	l.waiting--
	lt.mu.Unlock()
	return nil
}

// tryAcquire takes the lock only if it is immediately free.
func (lt *lockTable) tryAcquire(userID string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l, ok := lt.locks[userID]
	if !ok {
		l = &userLock{slot: make(chan struct{}, 1)}
		lt.locks[userID] = l
	}
	select {
	case l.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// release frees the user's lock.
func (lt *lockTable) release(userID string) {
	lt.mu.Lock()
	l, ok := lt.locks[userID]
	lt.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-l.slot:
	default:
		// Releasing an unheld lock is a programming error; make it harmless.
	}
}

// forget drops the lock entry for a user if it is held by the caller and
// nobody is waiting. Used by the idle sweep after evicting a session; the
// caller must currently hold the lock.
func (lt *lockTable) forget(userID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	l, ok := lt.locks[userID]
	if !ok {
		return
	}
	if l.waiting == 0 {
		delete(lt.locks, userID)
		return
	}
	// Someone queued up while we were sweeping; just release normally.
	select {
	case <-l.slot:
	default:
	}
}
