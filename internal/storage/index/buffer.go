package index

import (
	"sort"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

type bufferedKey struct {
	added   *EntryIDSet
	deleted *EntryIDSet
}

// Buffer accumulates ID insertions and removals per index and key so that
// each key is written once. A Buffer is not safe for concurrent use.
type Buffer struct {
	indexes map[*Index]map[string]*bufferedKey
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{indexes: make(map[*Index]map[string]*bufferedKey)}
}

func (b *Buffer) values(ix *Index, key []byte) *bufferedKey {
	keys, ok := b.indexes[ix]
	if !ok {
		keys = make(map[string]*bufferedKey)
		b.indexes[ix] = keys
	}
	bk, ok := keys[string(key)]
	if !ok {
		bk = &bufferedKey{added: NewEntryIDSet(), deleted: NewEntryIDSet()}
		keys[string(key)] = bk
	}
	return bk
}

// Insert buffers the insertion of id under key. A pending removal of the
// same ID is cancelled instead.
func (b *Buffer) Insert(ix *Index, key []byte, id EntryID) {
	bk := b.values(ix, key)
	if !bk.deleted.Remove(id) {
		bk.added.Add(id)
	}
}

// Remove buffers the removal of id from key. A pending insertion of the
// same ID is cancelled instead.
func (b *Buffer) Remove(ix *Index, key []byte, id EntryID) {
	bk := b.values(ix, key)
	if !bk.added.Remove(id) {
		bk.deleted.Add(id)
	}
}

// Len returns the number of buffered keys.
func (b *Buffer) Len() int {
	n := 0
	for _, keys := range b.indexes {
		n += len(keys)
	}
	return n
}

// Flush writes the buffered changes and empties the buffer. Indexes are
// flushed in name order and keys in ascending order, so that concurrent
// flushes lock keys in the same order.
func (b *Buffer) Flush(w storage.Writer) error {
	indexes := make([]*Index, 0, len(b.indexes))
	for ix := range b.indexes {
		indexes = append(indexes, ix)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name() < indexes[j].Name() })

	for _, ix := range indexes {
		keys := b.indexes[ix]
		for _, k := range sortedKeys(keys) {
			bk := keys[k]
			if bk.added.Len() == 0 && bk.deleted.Len() == 0 {
				continue
			}
			if err := ix.updateKey(w, []byte(k), bk.deleted, bk.added); err != nil {
				return err
			}
		}
	}
	b.indexes = make(map[*Index]map[string]*bufferedKey)
	return nil
}
