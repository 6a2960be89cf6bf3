package storage

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// Cursor iterates over the keys of one table in table order.
// Key and Value return copies that remain valid after the cursor moves.
type Cursor interface {
	First() bool
	Last() bool
	Next() bool
	Prev() bool
	SeekGE(key []byte) bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

type iterCursor struct {
	it *pebble.Iterator
	t  *Table
}

// newCursor opens a bounded pebble iterator. For reversed tables the bounds
// are user keys whose reversed forms delimit the range.
func newCursor(r pebble.Reader, t *Table, lower, upper []byte) (Cursor, error) {
	it, err := r.NewIter(&pebble.IterOptions{
		LowerBound: t.bound(lower, false),
		UpperBound: t.bound(upper, true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open cursor on %s", t.Name())
	}
	return &iterCursor{it: it, t: t}, nil
}

func (c *iterCursor) First() bool { return c.it.First() }
func (c *iterCursor) Last() bool  { return c.it.Last() }
func (c *iterCursor) Next() bool  { return c.it.Next() }
func (c *iterCursor) Prev() bool  { return c.it.Prev() }
func (c *iterCursor) Valid() bool { return c.it.Valid() }

func (c *iterCursor) SeekGE(key []byte) bool {
	return c.it.SeekGE(c.t.encode(key))
}

func (c *iterCursor) Key() []byte {
	return c.t.decode(c.it.Key())
}

func (c *iterCursor) Value() []byte {
	v := c.it.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (c *iterCursor) Error() error {
	return c.it.Error()
}

func (c *iterCursor) Close() error {
	return c.it.Close()
}

// NewBatchReader adapts an indexed pebble batch so that the tx package can
// share the read paths of Store.
func NewBatchReader(b *pebble.Batch) BatchReader {
	return BatchReader{b: b}
}

// BatchReader reads through an indexed batch: uncommitted writes of the
// batch are visible on top of committed data.
type BatchReader struct {
	b *pebble.Batch
}

// Get reads a key through the batch.
func (r BatchReader) Get(t *Table, key []byte) ([]byte, error) {
	return get(r.b, t, key)
}

// NewCursor opens a cursor through the batch.
func (r BatchReader) NewCursor(t *Table, lower, upper []byte) (Cursor, error) {
	return newCursor(r.b, t, lower, upper)
}

// Put stages a write in the batch.
func (r BatchReader) Put(t *Table, key, value []byte) error {
	return r.b.Set(t.encode(key), value, nil)
}

// Delete stages a delete in the batch.
func (r BatchReader) Delete(t *Table, key []byte) error {
	return r.b.Delete(t.encode(key), nil)
}

// LockKey returns the identity used to lock key of t.
func LockKey(t *Table, key []byte) string {
	return string(t.encode(key))
}
