package tx

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// TxState represents the state of a transaction.
type TxState int

const (
	// TxActive indicates the transaction is currently active.
	TxActive TxState = iota
	// TxCommitted indicates the transaction has been successfully committed.
	TxCommitted
	// TxAborted indicates the transaction has been rolled back.
	TxAborted
)

// String returns the string representation of a TxState.
func (s TxState) String() string {
	switch s {
	case TxActive:
		return "Active"
	case TxCommitted:
		return "Committed"
	case TxAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Transaction is a unit of work against the store. It implements
// storage.Writer.
type Transaction struct {
	// ID is the unique transaction identifier.
	ID uint64

	// StartTime is when the transaction began.
	StartTime time.Time

	state  TxState
	batch  *pebble.Batch
	rw     storage.BatchReader
	mgr    *Manager
	writes int

	mu sync.Mutex
}

// State returns the current state.
func (t *Transaction) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsActive returns true if the transaction is still active.
func (t *Transaction) IsActive() bool {
	return t.State() == TxActive
}

// Writes returns the number of staged puts and deletes.
func (t *Transaction) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// Get reads key, taking the requested row lock first.
func (t *Transaction) Get(tbl *storage.Table, key []byte, mode storage.LockMode) ([]byte, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := t.mgr.locks.Acquire(t.ID, storage.LockKey(tbl, key), mode); err != nil {
		return nil, err
	}
	return t.rw.Get(tbl, key)
}

// NewCursor opens a cursor that sees the transaction's own writes.
// Cursors take no locks.
func (t *Transaction) NewCursor(tbl *storage.Table, lower, upper []byte) (storage.Cursor, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.rw.NewCursor(tbl, lower, upper)
}

// Put writes key under an exclusive lock.
func (t *Transaction) Put(tbl *storage.Table, key, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.mgr.locks.Acquire(t.ID, storage.LockKey(tbl, key), storage.LockRMW); err != nil {
		return err
	}
	if err := t.rw.Put(tbl, key, value); err != nil {
		return errors.Wrapf(err, "tx: put into %s", tbl.Name())
	}
	t.mu.Lock()
	t.writes++
	t.mu.Unlock()
	return nil
}

// Delete removes key under an exclusive lock.
func (t *Transaction) Delete(tbl *storage.Table, key []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.mgr.locks.Acquire(t.ID, storage.LockKey(tbl, key), storage.LockRMW); err != nil {
		return err
	}
	if err := t.rw.Delete(tbl, key); err != nil {
		return errors.Wrapf(err, "tx: delete from %s", tbl.Name())
	}
	t.mu.Lock()
	t.writes++
	t.mu.Unlock()
	return nil
}

// Commit applies the staged writes atomically and releases all locks.
func (t *Transaction) Commit() error {
	return t.mgr.commit(t)
}

// Abort discards the staged writes and releases all locks. Aborting an
// ended transaction is a no-op.
func (t *Transaction) Abort() {
	t.mgr.abort(t)
}

func (t *Transaction) check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxActive {
		return ErrTxNotActive
	}
	return nil
}
