package tx

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

func newTestManager(t *testing.T, opts Options) (*Manager, *storage.Table) {
	t.Helper()
	s, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s, opts), s.Table("t", false)
}

// TestCommitMakesWritesVisible tests that committed writes are visible to the store.
func TestCommitMakesWritesVisible(t *testing.T) {
	m, tbl := newTestManager(t, Options{})

	txn := m.Begin()
	require.NoError(t, txn.Put(tbl, []byte("k"), []byte("v")))

	// Own writes are visible inside the transaction, not outside.
	v, err := txn.Get(tbl, []byte("k"), storage.LockNone)
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
	_, err = m.Store().Get(tbl, []byte("k"), storage.LockNone)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, txn.Commit())
	assert.Equal(t, TxCommitted, txn.State())

	v, err = m.Store().Get(tbl, []byte("k"), storage.LockNone)
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
	assert.Equal(t, 0, m.ActiveCount())
}

// TestAbortDiscardsWrites tests that aborted writes never reach the store.
func TestAbortDiscardsWrites(t *testing.T) {
	m, tbl := newTestManager(t, Options{})

	txn := m.Begin()
	require.NoError(t, txn.Put(tbl, []byte("k"), []byte("v")))
	assert.Equal(t, 1, m.Locks().HeldBy(txn.ID))
	txn.Abort()
	txn.Abort()

	assert.Equal(t, TxAborted, txn.State())
	assert.Equal(t, 0, m.Locks().HeldBy(txn.ID))
	_, err := m.Store().Get(tbl, []byte("k"), storage.LockNone)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, txn.Put(tbl, []byte("k"), nil), ErrTxNotActive)
	assert.ErrorIs(t, txn.Commit(), ErrTxNotActive)
}

// TestCursorSeesOwnWrites tests cursors opened inside a transaction.
func TestCursorSeesOwnWrites(t *testing.T) {
	m, tbl := newTestManager(t, Options{})

	txn := m.Begin()
	require.NoError(t, txn.Put(tbl, []byte("a"), []byte("1")))
	require.NoError(t, txn.Put(tbl, []byte("b"), []byte("2")))
	require.NoError(t, txn.Delete(tbl, []byte("a")))

	c, err := txn.NewCursor(tbl, nil, nil)
	require.NoError(t, err)
	var keys []string
	for ok := c.First(); ok; ok = c.Next() {
		keys = append(keys, string(c.Key()))
	}
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"b"}, keys)
	assert.Equal(t, 3, txn.Writes())
	txn.Abort()
}

// TestSharedLocksAreCompatible tests that readers do not block each other.
func TestSharedLocksAreCompatible(t *testing.T) {
	lm := NewLockManager(0)
	require.NoError(t, lm.Acquire(1, "k", storage.LockShared))
	require.NoError(t, lm.Acquire(2, "k", storage.LockShared))
	require.NoError(t, lm.Acquire(1, "k", storage.LockShared))
	lm.ReleaseAll(1)
	lm.ReleaseAll(2)
	assert.Equal(t, uint64(0), lm.Deadlocks())
}

// TestExclusiveLockWaits tests that a writer waits for the holder to finish.
func TestExclusiveLockWaits(t *testing.T) {
	lm := NewLockManager(0)
	require.NoError(t, lm.Acquire(1, "k", storage.LockRMW))

	done := make(chan error, 1)
	go func() { done <- lm.Acquire(2, "k", storage.LockRMW) }()

	select {
	case <-done:
		t.Fatal("second writer acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	lm.ReleaseAll(1)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.Equal(t, 1, lm.HeldBy(2))
}

// TestDeadlockDetection tests that the request closing a cycle fails.
func TestDeadlockDetection(t *testing.T) {
	lm := NewLockManager(0)
	require.NoError(t, lm.Acquire(1, "a", storage.LockRMW))
	require.NoError(t, lm.Acquire(2, "b", storage.LockRMW))

	waiting := make(chan error, 1)
	go func() { waiting <- lm.Acquire(1, "b", storage.LockRMW) }()

	// Let tx 1 enqueue behind tx 2.
	require.Eventually(t, func() bool {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		return len(lm.waitsFor[1]) > 0
	}, time.Second, time.Millisecond)

	err := lm.Acquire(2, "a", storage.LockRMW)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeadlock))
	assert.Equal(t, uint64(1), lm.Deadlocks())

	lm.ReleaseAll(2)
	require.NoError(t, <-waiting)
}

// TestUpgradeDeadlock tests that two shared holders upgrading deadlock.
func TestUpgradeDeadlock(t *testing.T) {
	lm := NewLockManager(0)
	require.NoError(t, lm.Acquire(1, "k", storage.LockShared))
	require.NoError(t, lm.Acquire(2, "k", storage.LockShared))

	waiting := make(chan error, 1)
	go func() { waiting <- lm.Acquire(1, "k", storage.LockRMW) }()
	require.Eventually(t, func() bool {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		return len(lm.waitsFor[1]) > 0
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, lm.Acquire(2, "k", storage.LockRMW), ErrDeadlock)
	lm.ReleaseAll(2)
	require.NoError(t, <-waiting)
}

// TestLockTimeout tests that a bounded wait reports a deadlock.
func TestLockTimeout(t *testing.T) {
	lm := NewLockManager(20 * time.Millisecond)
	require.NoError(t, lm.Acquire(1, "k", storage.LockRMW))

	err := lm.Acquire(2, "k", storage.LockShared)
	assert.ErrorIs(t, err, ErrDeadlock)
	assert.Equal(t, 0, lm.HeldBy(2))
}

// TestTransactionsConflict tests deadlock between two transactions on the store.
func TestTransactionsConflict(t *testing.T) {
	m, tbl := newTestManager(t, Options{LockTimeout: 50 * time.Millisecond})

	t1 := m.Begin()
	t2 := m.Begin()
	require.NoError(t, t1.Put(tbl, []byte("x"), []byte("1")))

	_, err := t2.Get(tbl, []byte("x"), storage.LockRMW)
	assert.ErrorIs(t, err, ErrDeadlock)
	t2.Abort()

	require.NoError(t, t1.Commit())

	t3 := m.Begin()
	v, err := t3.Get(tbl, []byte("x"), storage.LockRMW)
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	require.NoError(t, t3.Commit())
}
