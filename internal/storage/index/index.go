package index

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// undefinedValue is the stored form of an undefined set. Its length is not
// a multiple of EntryIDSize, so it never collides with a defined set.
var undefinedValue = []byte{0x80}

func isUndefinedValue(v []byte) bool {
	return len(v) == 1 && v[0] == undefinedValue[0]
}

func decodeValue(v []byte) (*EntryIDSet, error) {
	if isUndefinedValue(v) {
		return NewUndefinedSet(), nil
	}
	return DecodeEntryIDSet(v)
}

// Options configures an Index.
type Options struct {
	// EntryLimit caps the IDs stored under one key; 0 means unlimited.
	EntryLimit int
	// CursorEntryLimit caps the IDs a range read accumulates; 0 means
	// unlimited.
	CursorEntryLimit int
	// Indexer derives keys from entries. Indexes maintained directly by
	// key, such as the children index, have none.
	Indexer *Indexer
	// State persists the trust flag. Indexes without state are always
	// trusted.
	State  *State
	Logger logging.Logger
}

// Index maps byte-string keys to entry ID sets in one table of the store.
// All updates happen inside a caller-provided transaction.
type Index struct {
	name    string
	store   *storage.Store
	table   *storage.Table
	indexer *Indexer
	state   *State
	logger  logging.Logger

	mu               sync.RWMutex
	entryLimit       int
	cursorEntryLimit int
	trusted          bool
	rebuildRunning   bool
	closed           bool

	exceeded atomic.Int64
}

// Open binds the index to its table and loads its trust flag.
func Open(s *storage.Store, name string, opts Options) (*Index, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	ix := &Index{
		name:             name,
		store:            s,
		table:            s.Table(name, false),
		indexer:          opts.Indexer,
		state:            opts.State,
		logger:           opts.Logger.WithFields("index", name),
		entryLimit:       opts.EntryLimit,
		cursorEntryLimit: opts.CursorEntryLimit,
		trusted:          true,
	}
	if ix.state != nil {
		trusted, err := ix.state.IsTrusted(s, name)
		if err != nil {
			return nil, err
		}
		ix.trusted = trusted
	}
	return ix, nil
}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// Table returns the backing table.
func (ix *Index) Table() *storage.Table { return ix.table }

// Indexer returns the key deriver, or nil.
func (ix *Index) Indexer() *Indexer { return ix.indexer }

// SetIndexer replaces the key deriver, for instance after the substring
// length changed.
func (ix *Index) SetIndexer(indexer *Indexer) {
	ix.mu.Lock()
	ix.indexer = indexer
	ix.mu.Unlock()
}

func (ix *Index) currentIndexer() *Indexer {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.indexer
}

// EntryLimit returns the per-key ID limit.
func (ix *Index) EntryLimit() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entryLimit
}

// SetIndexEntryLimit changes the per-key ID limit. It returns true when the
// index must be rebuilt: keys already made undefined cannot regain their IDs
// once the limit is raised.
func (ix *Index) SetIndexEntryLimit(limit int) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	raised := ix.entryLimit > 0 && (limit == 0 || limit > ix.entryLimit)
	ix.entryLimit = limit
	return raised && ix.exceeded.Load() > 0
}

// CursorEntryLimit returns the range read ID limit.
func (ix *Index) CursorEntryLimit() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.cursorEntryLimit
}

// SetCursorEntryLimit changes the range read ID limit.
func (ix *Index) SetCursorEntryLimit(limit int) {
	ix.mu.Lock()
	ix.cursorEntryLimit = limit
	ix.mu.Unlock()
}

// EntryLimitExceededCount returns how many keys became undefined since the
// index was opened.
func (ix *Index) EntryLimitExceededCount() int64 {
	return ix.exceeded.Load()
}

// IsTrusted reports whether the index content is known to be consistent.
func (ix *Index) IsTrusted() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.trusted
}

// SetTrusted persists and caches the trust flag.
func (ix *Index) SetTrusted(w storage.Writer, trusted bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.state != nil {
		if err := ix.state.SetTrusted(w, ix.name, trusted); err != nil {
			return err
		}
	}
	ix.trusted = trusted
	return nil
}

// SetRebuildStatus records whether a rebuild is filling the index.
func (ix *Index) SetRebuildStatus(running bool) {
	ix.mu.Lock()
	ix.rebuildRunning = running
	ix.mu.Unlock()
}

// IsRebuildRunning reports whether a rebuild is in progress.
func (ix *Index) IsRebuildRunning() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.rebuildRunning
}

// Close detaches the index. Later updates fail with ErrIndexClosed.
func (ix *Index) Close() {
	ix.mu.Lock()
	ix.closed = true
	ix.mu.Unlock()
}

func (ix *Index) checkOpen() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return errors.Wrap(ErrIndexClosed, ix.name)
	}
	return nil
}

// Drop deletes every key of the index and its trust record, then closes
// it.
func (ix *Index) Drop(w storage.Writer) error {
	if err := ix.store.DropTable(ix.table); err != nil {
		return errors.Wrapf(err, "index: drop %s", ix.name)
	}
	if ix.state != nil {
		if err := ix.state.Remove(w, ix.name); err != nil {
			return err
		}
	}
	ix.Close()
	return nil
}

// Read returns the set stored under key. A missing key is an empty defined
// set.
func (ix *Index) Read(r storage.Reader, key []byte, mode storage.LockMode) (*EntryIDSet, error) {
	v, err := r.Get(ix.table, key, mode)
	if errors.Is(err, storage.ErrNotFound) {
		return NewEntryIDSet(), nil
	}
	if err != nil {
		return nil, err
	}
	set, err := decodeValue(v)
	if err != nil {
		return nil, errors.Wrapf(err, "index: %s key %x", ix.name, key)
	}
	return set, nil
}

func (ix *Index) write(w storage.Writer, key []byte, set *EntryIDSet) error {
	switch {
	case !set.IsDefined():
		return w.Put(ix.table, key, undefinedValue)
	case set.Len() == 0:
		return w.Delete(ix.table, key)
	default:
		return w.Put(ix.table, key, set.Encode())
	}
}

func (ix *Index) limitExceeded(key []byte) {
	ix.exceeded.Add(1)
	EntryLimitExceeded.WithLabelValues(ix.name).Inc()
	ix.logger.Debug("index entry limit exceeded", "key", string(key), "limit", ix.EntryLimit())
}

func (ix *Index) anomaly(kind string, key []byte, id EntryID) {
	IntegrityAnomalies.WithLabelValues(ix.name, kind).Inc()
	ix.logger.Warn("index inconsistency", "kind", kind, "key", string(key), "id", uint64(id))
}

// InsertID adds id under key. It returns false if id was already stored
// there. A key whose set would grow beyond the entry limit becomes
// undefined.
func (ix *Index) InsertID(w storage.Writer, key []byte, id EntryID) (bool, error) {
	if err := ix.checkOpen(); err != nil {
		return false, err
	}
	set, err := ix.Read(w, key, storage.LockRMW)
	if err != nil {
		return false, err
	}
	if !set.IsDefined() {
		return true, nil
	}
	if set.Contains(id) {
		return false, nil
	}
	if limit := ix.EntryLimit(); limit > 0 && set.Len() >= limit {
		ix.limitExceeded(key)
		return true, ix.write(w, key, NewUndefinedSet())
	}
	set.Add(id)
	return true, ix.write(w, key, set)
}

// RemoveID deletes id from the set under key. Undefined sets are left
// unchanged since their members are unknown.
func (ix *Index) RemoveID(w storage.Writer, key []byte, id EntryID) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	v, err := w.Get(ix.table, key, storage.LockRMW)
	if errors.Is(err, storage.ErrNotFound) {
		ix.anomaly("missing_key", key, id)
		return nil
	}
	if err != nil {
		return err
	}
	set, err := decodeValue(v)
	if err != nil {
		return errors.Wrapf(err, "index: %s key %x", ix.name, key)
	}
	if !set.IsDefined() {
		IntegrityAnomalies.WithLabelValues(ix.name, "undefined_remove").Inc()
		ix.logger.Debug("cannot remove id from undefined set", "key", string(key), "id", uint64(id))
		return nil
	}
	if !set.Remove(id) {
		ix.anomaly("missing_id", key, id)
		return nil
	}
	return ix.write(w, key, set)
}

// ContainsID reports whether id is stored under key.
func (ix *Index) ContainsID(r storage.Reader, key []byte, id EntryID) (ConditionResult, error) {
	set, err := ix.Read(r, key, storage.LockShared)
	if err != nil {
		return ConditionUndefined, err
	}
	switch {
	case !set.IsDefined():
		return ConditionUndefined, nil
	case set.Contains(id):
		return ConditionTrue, nil
	default:
		return ConditionFalse, nil
	}
}

// ReadKey returns the set under key without locking. Read failures yield
// an undefined set.
func (ix *Index) ReadKey(r storage.Reader, key []byte) *EntryIDSet {
	set, err := ix.Read(r, key, storage.LockNone)
	if err != nil {
		ix.logger.Error("index read failed", "key", string(key), "error", err)
		return NewUndefinedSet()
	}
	return set
}

// ReadRange unions the sets of all keys between lower and upper. An empty
// bound leaves that side open. The result is undefined as soon as one key
// is undefined or the accumulated ID count exceeds the cursor entry limit.
func (ix *Index) ReadRange(r storage.Reader, lower, upper []byte, lowerIncluded, upperIncluded bool) *EntryIDSet {
	var lo, hi []byte
	if len(lower) > 0 {
		lo = lower
	}
	if len(upper) > 0 {
		hi = upper
		if upperIncluded {
			hi = append(append([]byte(nil), upper...), 0x00)
		}
	}

	cur, err := r.NewCursor(ix.table, lo, hi)
	if err != nil {
		ix.logger.Error("index range read failed", "error", err)
		return NewUndefinedSet()
	}
	defer cur.Close()

	limit := ix.CursorEntryLimit()
	total := 0
	var sets []*EntryIDSet
	for ok := cur.First(); ok; ok = cur.Next() {
		if !lowerIncluded && lo != nil && bytes.Equal(cur.Key(), lo) {
			continue
		}
		set, err := decodeValue(cur.Value())
		if err != nil {
			ix.logger.Error("index range read failed", "key", string(cur.Key()), "error", err)
			return NewUndefinedSet()
		}
		if !set.IsDefined() {
			return set
		}
		total += set.Len()
		if limit > 0 && total > limit {
			return NewUndefinedSet()
		}
		sets = append(sets, set)
	}
	if err := cur.Error(); err != nil {
		ix.logger.Error("index range read failed", "error", err)
		return NewUndefinedSet()
	}
	return Union(sets, true)
}

// Count returns the number of keys in the index.
func (ix *Index) Count(r storage.Reader) (int, error) {
	cur, err := r.NewCursor(ix.table, nil, nil)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	for ok := cur.First(); ok; ok = cur.Next() {
		n++
	}
	return n, cur.Error()
}

// updateKey applies buffered deletions and insertions to one key in a
// single read-modify-write.
func (ix *Index) updateKey(w storage.Writer, key []byte, deleted, added *EntryIDSet) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}
	set, err := ix.Read(w, key, storage.LockRMW)
	if err != nil {
		return err
	}
	if !set.IsDefined() {
		return nil
	}
	if deleted != nil {
		set.DeleteAll(deleted)
	}
	if added != nil {
		set.AddAll(added)
	}
	if limit := ix.EntryLimit(); limit > 0 && set.Len() > limit {
		ix.limitExceeded(key)
		set = NewUndefinedSet()
	}
	return ix.write(w, key, set)
}

// AddEntry inserts id under every key derived from e. It returns false if
// id was already present under some key.
func (ix *Index) AddEntry(w storage.Writer, id EntryID, e *entry.Entry) (bool, error) {
	indexer := ix.currentIndexer()
	if indexer == nil {
		return true, nil
	}
	success := true
	for _, key := range indexer.IndexEntry(e) {
		added, err := ix.InsertID(w, key, id)
		if err != nil {
			return false, err
		}
		if !added {
			success = false
		}
	}
	return success, nil
}

// RemoveEntry removes id from every key derived from e.
func (ix *Index) RemoveEntry(w storage.Writer, id EntryID, e *entry.Entry) error {
	indexer := ix.currentIndexer()
	if indexer == nil {
		return nil
	}
	for _, key := range indexer.IndexEntry(e) {
		if err := ix.RemoveID(w, key, id); err != nil {
			return err
		}
	}
	return nil
}

// ModifyEntry updates only the keys that differ between oldEntry and
// newEntry. Keys are visited in ascending order.
func (ix *Index) ModifyEntry(w storage.Writer, id EntryID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) error {
	indexer := ix.currentIndexer()
	if indexer == nil {
		return nil
	}
	add, del := indexer.ModifyEntry(oldEntry, newEntry, mods)
	i, j := 0, 0
	for i < len(add) || j < len(del) {
		if j >= len(del) || (i < len(add) && bytes.Compare(add[i], del[j]) < 0) {
			if _, err := ix.InsertID(w, add[i], id); err != nil {
				return err
			}
			i++
			continue
		}
		if err := ix.RemoveID(w, del[j], id); err != nil {
			return err
		}
		j++
	}
	return nil
}

// AddEntryBuffered records the keys of e in buf instead of writing them.
func (ix *Index) AddEntryBuffered(buf *Buffer, id EntryID, e *entry.Entry) {
	if indexer := ix.currentIndexer(); indexer != nil {
		for _, key := range indexer.IndexEntry(e) {
			buf.Insert(ix, key, id)
		}
	}
}

// RemoveEntryBuffered records the removal of e's keys in buf.
func (ix *Index) RemoveEntryBuffered(buf *Buffer, id EntryID, e *entry.Entry) {
	if indexer := ix.currentIndexer(); indexer != nil {
		for _, key := range indexer.IndexEntry(e) {
			buf.Remove(ix, key, id)
		}
	}
}

// ModifyEntryBuffered records the differential keys of a modification in
// buf.
func (ix *Index) ModifyEntryBuffered(buf *Buffer, id EntryID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) {
	indexer := ix.currentIndexer()
	if indexer == nil {
		return
	}
	add, del := indexer.ModifyEntry(oldEntry, newEntry, mods)
	for _, key := range add {
		buf.Insert(ix, key, id)
	}
	for _, key := range del {
		buf.Remove(ix, key, id)
	}
}

// ContainsEntry checks that id is stored under every key derived from e.
// The result is ConditionFalse if some key lacks id, ConditionUndefined if
// some key is undefined and none lacks id.
func (ix *Index) ContainsEntry(r storage.Reader, id EntryID, e *entry.Entry) (ConditionResult, error) {
	indexer := ix.currentIndexer()
	if indexer == nil {
		return ConditionTrue, nil
	}
	result := ConditionTrue
	for _, key := range indexer.IndexEntry(e) {
		c, err := ix.ContainsID(r, key, id)
		if err != nil {
			return ConditionUndefined, err
		}
		switch c {
		case ConditionFalse:
			return ConditionFalse, nil
		case ConditionUndefined:
			result = ConditionUndefined
		}
	}
	return result, nil
}
