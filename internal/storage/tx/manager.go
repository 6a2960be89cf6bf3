package tx

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// Transaction manager errors.
var (
	ErrTxNotActive    = errors.New("tx: transaction is not active")
	ErrNilTransaction = errors.New("tx: transaction is nil")
)

// Options configures a Manager.
type Options struct {
	// LockTimeout bounds how long a lock request may wait. Zero waits until
	// the lock is granted or a deadlock is detected.
	LockTimeout time.Duration
}

// Manager manages transaction lifecycle: begin, commit and abort.
type Manager struct {
	store    *storage.Store
	locks    *LockManager
	nextTxID atomic.Uint64

	mu     sync.Mutex
	active map[uint64]*Transaction
}

// NewManager creates a transaction manager over store.
func NewManager(store *storage.Store, opts Options) *Manager {
	return &Manager{
		store:  store,
		locks:  NewLockManager(opts.LockTimeout),
		active: make(map[uint64]*Transaction),
	}
}

// Store returns the underlying store.
func (m *Manager) Store() *storage.Store {
	return m.store
}

// Locks returns the lock manager.
func (m *Manager) Locks() *LockManager {
	return m.locks
}

// Begin starts a new transaction.
func (m *Manager) Begin() *Transaction {
	b := m.store.DB().NewIndexedBatch()
	t := &Transaction{
		ID:        m.nextTxID.Add(1),
		StartTime: time.Now(),
		state:     TxActive,
		batch:     b,
		rw:        storage.NewBatchReader(b),
		mgr:       m,
	}

	m.mu.Lock()
	m.active[t.ID] = t
	m.mu.Unlock()
	return t
}

// ActiveCount returns the number of transactions not yet ended.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) commit(t *Transaction) error {
	if t == nil {
		return ErrNilTransaction
	}
	t.mu.Lock()
	if t.state != TxActive {
		t.mu.Unlock()
		return ErrTxNotActive
	}

	err := t.batch.Commit(m.store.WriteOptions())
	if err != nil {
		t.state = TxAborted
	} else {
		t.state = TxCommitted
	}
	_ = t.batch.Close()
	t.mu.Unlock()

	m.end(t)
	if err != nil {
		return errors.Wrap(err, "tx: commit")
	}
	return nil
}

func (m *Manager) abort(t *Transaction) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.state != TxActive {
		t.mu.Unlock()
		return
	}
	t.state = TxAborted
	_ = t.batch.Close()
	t.mu.Unlock()

	m.end(t)
}

func (m *Manager) end(t *Transaction) {
	m.locks.ReleaseAll(t.ID)
	m.mu.Lock()
	delete(m.active, t.ID)
	m.mu.Unlock()
}
