// ABOUTME: Tests for the per-user lock table.
// ABOUTME: Validates mutual exclusion, bounded waiting, tryAcquire, and forget semantics.

package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/faults"
)

func TestLockTable_AcquireRelease(t *testing.T) {
	lt := newLockTable(4)

	require.NoError(t, lt.acquire("u1"))
	assert.False(t, lt.tryAcquire("u1"), "held lock cannot be taken")
	lt.release("u1")
	assert.True(t, lt.tryAcquire("u1"))
	lt.release("u1")
}

func TestLockTable_DistinctUsersIndependent(t *testing.T) {
	lt := newLockTable(4)

	require.NoError(t, lt.acquire("u1"))
	require.NoError(t, lt.acquire("u2"), "u2 must not block on u1's lock")
	lt.release("u1")
	lt.release("u2")
}

func TestLockTable_WaiterProceedsAfterRelease(t *testing.T) {
	lt := newLockTable(4)
	require.NoError(t, lt.acquire("u1"))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, lt.acquire("u1"))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	lt.release("u1")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
	lt.release("u1")
}

func TestLockTable_OverloadedBeyondDepth(t *testing.T) {
	lt := newLockTable(1)
	require.NoError(t, lt.acquire("u1"))

	// One waiter fits in the queue.
	waiterIn := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(waiterIn)
		_ = lt.acquire("u1")
		close(done)
	}()
	<-waiterIn
	require.Eventually(t, func() bool {
		lt.mu.Lock()
		defer lt.mu.Unlock()
		return lt.locks["u1"].waiting == 1
	}, time.Second, time.Millisecond)

	// The next one is rejected.
	err := lt.acquire("u1")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindOverloaded))

	lt.release("u1")
	<-done
	lt.release("u1")
}

func TestLockTable_ReleaseUnheldIsHarmless(t *testing.T) {
	lt := newLockTable(4)
	lt.release("never-acquired")
	lt.release("never-acquired")
}

func TestLockTable_ForgetDropsIdleEntry(t *testing.T) {
	lt := newLockTable(4)
	require.True(t, lt.tryAcquire("u1"))
	lt.forget("u1")

	lt.mu.Lock()
	_, exists := lt.locks["u1"]
	lt.mu.Unlock()
	assert.False(t, exists)

	// A fresh acquire works after the entry was dropped.
	require.NoError(t, lt.acquire("u1"))
	lt.release("u1")
}

func TestLockTable_ForgetWithWaiterReleasesInstead(t *testing.T) {
	lt := newLockTable(4)
	require.True(t, lt.tryAcquire("u1"))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, lt.acquire("u1"))
		close(acquired)
	}()
	require.Eventually(t, func() bool {
		lt.mu.Lock()
		defer lt.mu.Unlock()
		return lt.locks["u1"].waiting == 1
	}, time.Second, time.Millisecond)

	lt.forget("u1")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter starved after forget")
	}

	lt.mu.Lock()
	_, exists := lt.locks["u1"]
	lt.mu.Unlock()
	assert.True(t, exists, "entry kept while a waiter held it")
	lt.release("u1")
}

func TestLockTable_ConcurrentAcquireReleaseStress(t *testing.T) {
	lt := newLockTable(64)

	var wg sync.WaitGroup
	var mu sync.Mutex
	held := map[string]bool{}

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				user := "u" + string(rune('a'+i%3))
				if err := lt.acquire(user); err != nil {
					continue
				}
				mu.Lock()
				require.False(t, held[user], "two holders for %s", user)
				held[user] = true
				mu.Unlock()

				mu.Lock()
				held[user] = false
				mu.Unlock()
				lt.release(user)
			}
		}()
	}
	wg.Wait()
}
