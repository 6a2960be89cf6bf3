package storage

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// Store errors.
var (
	ErrNotFound = errors.New("storage: key not found")
	ErrClosed   = errors.New("storage: store is closed")
)

// LockMode tells a transactional read which row lock to take on the key.
type LockMode int

const (
	// LockNone reads committed data without taking a lock.
	LockNone LockMode = iota
	// LockShared takes a shared lock held until the transaction ends.
	LockShared
	// LockRMW takes an exclusive lock for a read-modify-write cycle.
	LockRMW
)

// String returns the string representation of the lock mode.
func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockShared:
		return "shared"
	case LockRMW:
		return "rmw"
	default:
		return "unknown"
	}
}

// Reader is the read side of the store.
type Reader interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(t *Table, key []byte, mode LockMode) ([]byte, error)
	// NewCursor opens a cursor over the keys of t in [lower, upper).
	// A nil bound leaves that side open.
	NewCursor(t *Table, lower, upper []byte) (Cursor, error)
}

// Writer is the write side of the store. Writes are only possible inside a
// transaction.
type Writer interface {
	Reader
	Put(t *Table, key, value []byte) error
	Delete(t *Table, key []byte) error
}

// Store is an ordered key-value store backed by pebble.
type Store struct {
	db     *pebble.DB
	opts   Options
	mu     sync.Mutex
	tables map[string]*Table
	closed atomic.Bool
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	dir := opts.Dir
	if opts.InMemory && dir == "" {
		dir = "mem"
	}
	popts := opts.pebbleOptions()
	db, err := pebble.Open(dir, popts)
	if popts.Cache != nil {
		popts.Cache.Unref()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open %s", dir)
	}
	return &Store{
		db:     db,
		opts:   opts,
		tables: make(map[string]*Table),
	}, nil
}

// DB exposes the underlying pebble database.
func (s *Store) DB() *pebble.DB {
	return s.db
}

// Checkpoint writes a consistent copy of the store to dir, which must not
// exist. The copy is itself a store that Open can use.
func (s *Store) Checkpoint(dir string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return errors.Wrapf(s.db.Checkpoint(dir, pebble.WithFlushedWAL()), "storage: checkpoint to %s", dir)
}

// WriteOptions returns the pebble write options used for commits.
func (s *Store) WriteOptions() *pebble.WriteOptions {
	return s.opts.writeOptions()
}

// Table returns the table with the given name, creating its descriptor on
// first use. The reversed flag of the first call wins.
func (s *Store) Table(name string, reversed bool) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t
	}
	t := newTable(name, reversed)
	s.tables[name] = t
	return t
}

// Get reads committed data. The lock mode is ignored outside a transaction.
func (s *Store) Get(t *Table, key []byte, _ LockMode) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return get(s.db, t, key)
}

// NewCursor opens a cursor over committed data.
func (s *Store) NewCursor(t *Table, lower, upper []byte) (Cursor, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return newCursor(s.db, t, lower, upper)
}

// DropTable removes every key of t.
func (s *Store) DropTable(t *Table) error {
	if s.closed.Load() {
		return ErrClosed
	}
	lo, hi := t.span()
	if err := s.db.DeleteRange(lo, hi, s.WriteOptions()); err != nil {
		return errors.Wrapf(err, "storage: drop table %s", t.Name())
	}
	s.mu.Lock()
	delete(s.tables, t.Name())
	s.mu.Unlock()
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.db.Close()
}

// get reads a key through any pebble reader, copying the value out.
func get(r pebble.Reader, t *Table, key []byte) ([]byte, error) {
	v, closer, err := r.Get(t.encode(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: get from %s", t.Name())
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}
