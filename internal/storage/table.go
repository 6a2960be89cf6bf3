package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// TablePrefixSize is the length of the keyspace prefix of every table.
const TablePrefixSize = 8

// Table is a named region of the keyspace.
type Table struct {
	name     string
	prefix   []byte
	reversed bool
}

func newTable(name string, reversed bool) *Table {
	return &Table{
		name:     name,
		prefix:   TablePrefix(name),
		reversed: reversed,
	}
}

// TablePrefix returns the keyspace prefix of the named table.
func TablePrefix(name string) []byte {
	p := make([]byte, TablePrefixSize)
	binary.BigEndian.PutUint64(p, xxhash.Sum64String(name))
	return p
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Reversed reports whether keys are ordered by reversed-byte comparison.
func (t *Table) Reversed() bool {
	return t.reversed
}

// encode maps a user key to its stored form.
func (t *Table) encode(key []byte) []byte {
	out := make([]byte, len(t.prefix)+len(key))
	n := copy(out, t.prefix)
	if !t.reversed {
		copy(out[n:], key)
		return out
	}
	for i := range key {
		out[len(out)-1-i] = key[i]
	}
	return out
}

// decode maps a stored key back to the user key.
func (t *Table) decode(raw []byte) []byte {
	k := raw[len(t.prefix):]
	out := make([]byte, len(k))
	if !t.reversed {
		copy(out, k)
		return out
	}
	for i := range k {
		out[len(out)-1-i] = k[i]
	}
	return out
}

// bound encodes a cursor bound; nil means the table edge.
func (t *Table) bound(key []byte, upper bool) []byte {
	if key != nil {
		return t.encode(key)
	}
	if !upper {
		return t.encode(nil)
	}
	_, hi := t.span()
	return hi
}

// span returns the stored key range covering the whole table.
func (t *Table) span() (lo, hi []byte) {
	lo = append([]byte(nil), t.prefix...)
	hi = append([]byte(nil), t.prefix...)
	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] != 0xFF {
			hi[i]++
			return lo, hi[:i+1]
		}
	}
	return lo, nil
}

// Reverse returns a reversed copy of b. Callers of reversed tables use it to
// express cursor bounds in stored order.
func Reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
