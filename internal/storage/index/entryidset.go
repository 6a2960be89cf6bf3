package index

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/pkg/errors"
)

// ErrInvalidSetEncoding is returned when decoding a value whose length is
// not a multiple of EntryIDSize.
var ErrInvalidSetEncoding = errors.New("index: invalid entry id set encoding")

// roaringFanIn is the number of inputs above which Union merges through a
// roaring bitmap instead of concatenating and sorting.
const roaringFanIn = 8

// EntryIDSet is a set of entry IDs. A defined set holds its IDs in strictly
// ascending order. An undefined set stands for an unknown, possibly
// unbounded, set of IDs: it is the identity of intersection and absorbs
// union.
//
// The zero value is an empty defined set.
type EntryIDSet struct {
	ids       []EntryID
	undefined bool
}

// NewEntryIDSet creates a defined set holding ids.
func NewEntryIDSet(ids ...EntryID) *EntryIDSet {
	s := &EntryIDSet{ids: append([]EntryID(nil), ids...)}
	s.normalize()
	return s
}

// NewUndefinedSet creates an undefined set.
func NewUndefinedSet() *EntryIDSet {
	return &EntryIDSet{undefined: true}
}

func (s *EntryIDSet) normalize() {
	if sort.SliceIsSorted(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] }) {
		s.ids = dedupSorted(s.ids)
		return
	}
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] })
	s.ids = dedupSorted(s.ids)
}

func dedupSorted(ids []EntryID) []EntryID {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// IsDefined reports whether the set enumerates its members.
func (s *EntryIDSet) IsDefined() bool {
	return !s.undefined
}

// Len returns the number of IDs in a defined set, or -1 if undefined.
func (s *EntryIDSet) Len() int {
	if s.undefined {
		return -1
	}
	return len(s.ids)
}

// IDs returns the IDs of a defined set in ascending order, or nil if
// undefined. The slice must not be modified.
func (s *EntryIDSet) IDs() []EntryID {
	if s.undefined {
		return nil
	}
	return s.ids
}

// Clone returns a deep copy of s.
func (s *EntryIDSet) Clone() *EntryIDSet {
	if s.undefined {
		return NewUndefinedSet()
	}
	return &EntryIDSet{ids: append([]EntryID(nil), s.ids...)}
}

func (s *EntryIDSet) search(id EntryID) (int, bool) {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	return i, i < len(s.ids) && s.ids[i] == id
}

// Add inserts id. It returns false if id was already present or the set is
// undefined.
func (s *EntryIDSet) Add(id EntryID) bool {
	if s.undefined {
		return false
	}
	i, found := s.search(id)
	if found {
		return false
	}
	s.ids = append(s.ids, 0)
	copy(s.ids[i+1:], s.ids[i:])
	s.ids[i] = id
	return true
}

// Remove deletes id. It returns false if id was absent or the set is
// undefined.
func (s *EntryIDSet) Remove(id EntryID) bool {
	if s.undefined {
		return false
	}
	i, found := s.search(id)
	if !found {
		return false
	}
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	return true
}

// Contains reports whether id may be in the set. An undefined set may hold
// anything and always reports true.
func (s *EntryIDSet) Contains(id EntryID) bool {
	if s.undefined {
		return true
	}
	_, found := s.search(id)
	return found
}

// RetainAll intersects s with that in place. Undefined operands do not
// restrict the result: an undefined s becomes a copy of a defined that.
func (s *EntryIDSet) RetainAll(that *EntryIDSet) {
	if that.undefined {
		return
	}
	if s.undefined {
		s.undefined = false
		s.ids = append([]EntryID(nil), that.ids...)
		return
	}
	out := s.ids[:0]
	i, j := 0, 0
	for i < len(s.ids) && j < len(that.ids) {
		switch {
		case s.ids[i] < that.ids[j]:
			i++
		case s.ids[i] > that.ids[j]:
			j++
		default:
			out = append(out, s.ids[i])
			i++
			j++
		}
	}
	s.ids = out
}

// AddAll unions that into s. Any undefined operand makes s undefined.
func (s *EntryIDSet) AddAll(that *EntryIDSet) {
	if s.undefined {
		return
	}
	if that.undefined {
		s.undefined = true
		s.ids = nil
		return
	}
	if len(that.ids) == 0 {
		return
	}
	out := make([]EntryID, 0, len(s.ids)+len(that.ids))
	i, j := 0, 0
	for i < len(s.ids) && j < len(that.ids) {
		switch {
		case s.ids[i] < that.ids[j]:
			out = append(out, s.ids[i])
			i++
		case s.ids[i] > that.ids[j]:
			out = append(out, that.ids[j])
			j++
		default:
			out = append(out, s.ids[i])
			i++
			j++
		}
	}
	out = append(out, s.ids[i:]...)
	out = append(out, that.ids[j:]...)
	s.ids = out
}

// DeleteAll removes the IDs of that from s. Subtracting an undefined set
// makes s undefined, since the removed IDs are unknown.
func (s *EntryIDSet) DeleteAll(that *EntryIDSet) {
	if s.undefined {
		return
	}
	if that.undefined {
		s.undefined = true
		s.ids = nil
		return
	}
	out := s.ids[:0]
	i, j := 0, 0
	for i < len(s.ids) {
		for j < len(that.ids) && that.ids[j] < s.ids[i] {
			j++
		}
		if j < len(that.ids) && that.ids[j] == s.ids[i] {
			i++
			continue
		}
		out = append(out, s.ids[i])
		i++
	}
	s.ids = out
}

// Encode returns the concatenated 8-byte big-endian IDs of a defined set.
// Undefined sets are represented by the Index layer and encode to nil.
func (s *EntryIDSet) Encode() []byte {
	if s.undefined {
		return nil
	}
	b := make([]byte, len(s.ids)*EntryIDSize)
	for i, id := range s.ids {
		binary.BigEndian.PutUint64(b[i*EntryIDSize:], uint64(id))
	}
	return b
}

// DecodeEntryIDSet decodes a value produced by Encode.
func DecodeEntryIDSet(b []byte) (*EntryIDSet, error) {
	if len(b)%EntryIDSize != 0 {
		return nil, errors.Wrapf(ErrInvalidSetEncoding, "length %d", len(b))
	}
	ids := make([]EntryID, len(b)/EntryIDSize)
	for i := range ids {
		ids[i] = EntryID(binary.BigEndian.Uint64(b[i*EntryIDSize:]))
	}
	s := &EntryIDSet{ids: ids}
	s.normalize()
	return s, nil
}

// String returns a debug form such as "[1 2 3]" or "[undefined]".
func (s *EntryIDSet) String() string {
	if s.undefined {
		return "[undefined]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range s.ids {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(id.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Union merges sets into a new set. Any undefined input makes the result
// undefined. When allowDuplicates is false the caller guarantees that the
// inputs are pairwise disjoint and the merge skips deduplication.
func Union(sets []*EntryIDSet, allowDuplicates bool) *EntryIDSet {
	total := 0
	for _, s := range sets {
		if s.undefined {
			return NewUndefinedSet()
		}
		total += len(s.ids)
	}
	switch {
	case len(sets) == 0:
		return NewEntryIDSet()
	case len(sets) == 1:
		return sets[0].Clone()
	case len(sets) > roaringFanIn && allowDuplicates:
		return unionBitmap(sets)
	}

	ids := make([]EntryID, 0, total)
	sorted := true
	for _, s := range sets {
		if len(ids) > 0 && len(s.ids) > 0 && s.ids[0] <= ids[len(ids)-1] {
			sorted = false
		}
		ids = append(ids, s.ids...)
	}
	if !sorted {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	if allowDuplicates {
		ids = dedupSorted(ids)
	}
	return &EntryIDSet{ids: ids}
}

func unionBitmap(sets []*EntryIDSet) *EntryIDSet {
	bm := roaring64.New()
	for _, s := range sets {
		for _, id := range s.ids {
			bm.Add(uint64(id))
		}
	}
	out := make([]EntryID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, EntryID(it.Next()))
	}
	return &EntryIDSet{ids: out}
}

// Intersect returns the intersection of sets. Undefined inputs are ignored;
// the result is undefined only if every input is undefined.
func Intersect(sets []*EntryIDSet) *EntryIDSet {
	result := NewUndefinedSet()
	for _, s := range sets {
		result.RetainAll(s)
	}
	return result
}

// IDIterator walks entry IDs in ascending order.
type IDIterator interface {
	Next() bool
	ID() EntryID
	Err() error
	Close() error
}

// Iterator returns an iterator over a defined set. For an undefined set the
// fallback iterator, normally a scan of every stored entry, is returned.
func (s *EntryIDSet) Iterator(fallback IDIterator) IDIterator {
	if s.undefined && fallback != nil {
		return fallback
	}
	return &sliceIterator{ids: s.IDs(), pos: -1}
}

type sliceIterator struct {
	ids []EntryID
	pos int
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.ids)
}

func (it *sliceIterator) ID() EntryID  { return it.ids[it.pos] }
func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
