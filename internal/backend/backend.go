package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
	"github.com/KilimcininKorOglu/obaidx/internal/stream"
)

// Table names of an entry container.
const (
	tableDN2ID       = "dn2id"
	tableID2Entry    = "id2entry"
	tableID2Children = "id2children"
	tableID2Subtree  = "id2subtree"
	tableState       = "state"
)

// Options configures an EntryContainer.
type Options struct {
	Schema *schema.Schema
	Logger logging.Logger
	// LockTimeout bounds row lock waits. Zero waits until granted or a
	// deadlock is detected.
	LockTimeout time.Duration
}

// EntryContainer stores the entries below one base DN together with their
// hierarchy and attribute indexes.
type EntryContainer struct {
	cfg    config.BackendConfig
	baseDN string
	store  *storage.Store
	txm    *tx.Manager
	schema *schema.Schema
	logger logging.Logger
	codec  entry.Codec

	dn2id       *storage.Table
	id2entry    *storage.Table
	id2children *index.Index
	id2subtree  *index.Index
	state       *index.State

	attrIndexes *xsync.MapOf[string, *index.AttributeIndex]
	cache       *lru.Cache[index.EntryID, *entry.Entry]
	nextID      atomic.Uint64

	// mu is held shared by entry operations and exclusively while physical
	// indexes are dropped or rebuilt.
	mu    sync.RWMutex
	admin sync.Mutex

	optimizer *filter.Optimizer
	evaluator *filter.Evaluator
	changes   *stream.Broker

	ownsStore bool
	closed    atomic.Bool
}

// Open opens the container stored in store.
func Open(store *storage.Store, cfg config.BackendConfig, opts Options) (*EntryContainer, error) {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	base, err := entry.NormalizeDN(cfg.BaseDN)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDN, "base DN %q", cfg.BaseDN)
	}
	if cfg.SubtreeDeleteBatchSize <= 0 {
		cfg.SubtreeDeleteBatchSize = config.DefaultSubtreeDeleteBatchSize
	}
	if cfg.CursorEntryLimit <= 0 {
		cfg.CursorEntryLimit = config.DefaultCursorEntryLimit
	}

	ec := &EntryContainer{
		cfg:         cfg,
		baseDN:      base,
		store:       store,
		txm:         tx.NewManager(store, tx.Options{LockTimeout: opts.LockTimeout}),
		schema:      opts.Schema,
		logger:      opts.Logger.WithFields("component", "backend", "base", base),
		codec:       entry.Codec{Compress: cfg.CompressEntries},
		dn2id:       store.Table(tableDN2ID, true),
		id2entry:    store.Table(tableID2Entry, false),
		state:       index.NewState(store, tableState),
		attrIndexes: xsync.NewMapOf[string, *index.AttributeIndex](),
		evaluator:   filter.NewEvaluator(opts.Schema),
	}
	ec.optimizer = filter.NewOptimizer(ec)
	ec.changes = stream.NewBroker(stream.Options{Evaluator: ec.evaluator})

	hierarchy := index.Options{EntryLimit: cfg.HierarchyEntryLimit, Logger: opts.Logger}
	if ec.id2children, err = index.Open(store, tableID2Children, hierarchy); err != nil {
		return nil, err
	}
	if ec.id2subtree, err = index.Open(store, tableID2Subtree, hierarchy); err != nil {
		return nil, err
	}
	if cfg.EntryCacheSize > 0 {
		if ec.cache, err = lru.New[index.EntryID, *entry.Entry](cfg.EntryCacheSize); err != nil {
			return nil, errors.Wrap(err, "backend: entry cache")
		}
	}
	last, err := ec.lastEntryID()
	if err != nil {
		return nil, err
	}
	ec.nextID.Store(uint64(last))
	ec.logger.Info("entry container opened", "last_id", uint64(last))
	return ec, nil
}

// New opens the store described by cfg, then a container over it with the
// configured attribute indexes.
func New(cfg *config.Config, logger logging.Logger) (*EntryContainer, error) {
	cacheSize, err := config.ParseSize(cfg.Storage.CacheSize)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Options{
		Dir:       cfg.Storage.DataDir,
		InMemory:  cfg.Storage.InMemory,
		Sync:      cfg.Storage.Sync,
		CacheSize: cacheSize,
	})
	if err != nil {
		return nil, err
	}
	ec, err := Open(store, cfg.Backend, Options{Logger: logger, LockTimeout: cfg.Storage.LockTimeout})
	if err != nil {
		store.Close()
		return nil, err
	}
	ec.ownsStore = true
	for _, ic := range cfg.Indexes {
		res, err := ec.ApplyIndexConfig(context.Background(), ic)
		if err != nil {
			ec.Close()
			return nil, err
		}
		for _, msg := range res.Messages {
			ec.logger.Warn("index configuration", "attribute", ic.Attribute, "message", msg)
		}
	}
	return ec, nil
}

// Close closes every attribute index, and the store when the container
// opened it.
func (ec *EntryContainer) Close() error {
	if !ec.closed.CompareAndSwap(false, true) {
		return nil
	}
	ec.changes.Close()
	ec.attrIndexes.Range(func(_ string, ai *index.AttributeIndex) bool {
		ai.Close()
		return true
	})
	ec.id2children.Close()
	ec.id2subtree.Close()
	if ec.ownsStore {
		return ec.store.Close()
	}
	return nil
}

// BaseDN returns the normalized base DN.
func (ec *EntryContainer) BaseDN() string { return ec.baseDN }

// Store returns the underlying store.
func (ec *EntryContainer) Store() *storage.Store { return ec.store }

func (ec *EntryContainer) checkOpen() error {
	if ec.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (ec *EntryContainer) lastEntryID() (index.EntryID, error) {
	c, err := ec.store.NewCursor(ec.id2entry, nil, nil)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	if !c.Last() {
		return 0, c.Error()
	}
	return index.EntryIDFromBytes(c.Key())
}

func (ec *EntryContainer) allocateID() index.EntryID {
	return index.EntryID(ec.nextID.Add(1))
}

// normalize parses dn and checks that it lies within the container.
func (ec *EntryContainer) normalize(op, dn string) (string, error) {
	norm, err := entry.NormalizeDN(dn)
	if err != nil || norm == "" {
		return "", opError(op, dn, ErrInvalidDN)
	}
	if ec.baseDN != "" && norm != ec.baseDN && !entry.IsDescendant(norm, ec.baseDN) {
		return "", &OperationError{Op: op, DN: norm, Err: ErrEntryNotFound}
	}
	return norm, nil
}

func (ec *EntryContainer) isSuffix(dn string) bool {
	if ec.baseDN == "" {
		return entry.ParentDN(dn) == ""
	}
	return dn == ec.baseDN
}

// lookupID returns the ID stored for a normalized DN.
func (ec *EntryContainer) lookupID(r storage.Reader, dn string, mode storage.LockMode) (index.EntryID, error) {
	v, err := r.Get(ec.dn2id, []byte(dn), mode)
	if err != nil {
		return 0, err
	}
	return index.EntryIDFromBytes(v)
}

// matchedDN returns the deepest existing ancestor of dn.
func (ec *EntryContainer) matchedDN(r storage.Reader, dn string) string {
	for p := entry.ParentDN(dn); p != ""; p = entry.ParentDN(p) {
		if _, err := ec.lookupID(r, p, storage.LockNone); err == nil {
			return p
		}
	}
	return ""
}

func (ec *EntryContainer) notFound(r storage.Reader, op, dn string) error {
	return &OperationError{Op: op, DN: dn, Err: ErrEntryNotFound, MatchedDN: ec.matchedDN(r, dn)}
}

// ancestorIDs returns the IDs of the stored ancestors of dn, nearest first.
func (ec *EntryContainer) ancestorIDs(r storage.Reader, dn string) ([]index.EntryID, error) {
	var out []index.EntryID
	for p := entry.ParentDN(dn); p != ""; p = entry.ParentDN(p) {
		id, err := ec.lookupID(r, p, storage.LockShared)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// readEntry loads an entry inside a transaction, bypassing the cache.
func (ec *EntryContainer) readEntry(r storage.Reader, id index.EntryID, mode storage.LockMode) (*entry.Entry, error) {
	v, err := r.Get(ec.id2entry, id.Bytes(), mode)
	if err != nil {
		return nil, err
	}
	return ec.codec.Decode(v)
}

// getEntry loads a committed entry through the cache. The result must not
// be modified.
func (ec *EntryContainer) getEntry(id index.EntryID) (*entry.Entry, error) {
	if ec.cache != nil {
		if e, ok := ec.cache.Get(id); ok {
			return e, nil
		}
	}
	e, err := ec.readEntry(ec.store, id, storage.LockNone)
	if err != nil {
		return nil, err
	}
	if ec.cache != nil {
		ec.cache.Add(id, e)
	}
	return e, nil
}

func (ec *EntryContainer) cacheEntry(id index.EntryID, e *entry.Entry) {
	if ec.cache != nil {
		ec.cache.Add(id, e)
	}
}

func (ec *EntryContainer) uncacheEntry(id index.EntryID) {
	if ec.cache != nil {
		ec.cache.Remove(id)
	}
}

// GetEntry returns a copy of the entry stored under dn.
func (ec *EntryContainer) GetEntry(ctx context.Context, dn string) (*entry.Entry, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	norm, err := ec.normalize("get", dn)
	if err != nil {
		return nil, err
	}
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	id, err := ec.lookupID(ec.store, norm, storage.LockNone)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ec.notFound(ec.store, "get", norm)
	}
	if err != nil {
		return nil, err
	}
	e, err := ec.getEntry(id)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// EntryCount returns the number of stored entries.
func (ec *EntryContainer) EntryCount() (int, error) {
	c, err := ec.store.NewCursor(ec.id2entry, nil, nil)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	n := 0
	for ok := c.First(); ok; ok = c.Next() {
		n++
	}
	return n, c.Error()
}

func (ec *EntryContainer) isEmpty() (bool, error) {
	c, err := ec.store.NewCursor(ec.id2entry, nil, nil)
	if err != nil {
		return false, err
	}
	defer c.Close()
	return !c.First(), c.Error()
}

// HasChildren reports whether dn has subordinate entries.
func (ec *EntryContainer) HasChildren(ctx context.Context, dn string) (bool, error) {
	if err := ec.checkOpen(); err != nil {
		return false, err
	}
	norm, err := ec.normalize("hasChildren", dn)
	if err != nil {
		return false, err
	}
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	id, err := ec.lookupID(ec.store, norm, storage.LockNone)
	if errors.Is(err, storage.ErrNotFound) {
		return false, ec.notFound(ec.store, "hasChildren", norm)
	}
	if err != nil {
		return false, err
	}
	return ec.hasChildren(ec.store, id, norm)
}

// hasChildren answers from id2children, or from dn2id when the children
// key has exceeded its entry limit.
func (ec *EntryContainer) hasChildren(r storage.Reader, id index.EntryID, dn string) (bool, error) {
	if children := ec.id2children.ReadKey(r, id.Bytes()); children.IsDefined() {
		return children.Len() > 0, nil
	}
	lower, upper := subtreeBounds(dn)
	c, err := r.NewCursor(ec.dn2id, lower, upper)
	if err != nil {
		return false, err
	}
	defer c.Close()
	return c.First(), c.Error()
}

// subtreeBounds returns the dn2id cursor bounds covering the strict
// descendants of dn. Keys are stored reversed, so every descendant key
// begins with the reversed form of ","+dn.
func subtreeBounds(dn string) (lower, upper []byte) {
	return []byte("," + dn), []byte("-" + dn)
}

// attributeKey is the map key of the attribute index for name.
func (ec *EntryContainer) attributeKey(name string) string {
	return strings.ToLower(ec.schema.ResolveAttributeType(name).NameOrOID())
}

// attributeIndex returns the index of an attribute, or nil.
func (ec *EntryContainer) attributeIndex(name string) *index.AttributeIndex {
	ai, _ := ec.attrIndexes.Load(ec.attributeKey(name))
	return ai
}

func (ec *EntryContainer) attributeIndexes() []*index.AttributeIndex {
	var out []*index.AttributeIndex
	ec.attrIndexes.Range(func(_ string, ai *index.AttributeIndex) bool {
		out = append(out, ai)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// HasIndex reports whether a trusted index can evaluate a filter component
// of the given type on attr.
func (ec *EntryContainer) HasIndex(attr string, kind filter.FilterType) bool {
	ai := ec.attributeIndex(attr)
	if ai == nil || !ai.IsTrusted() {
		return false
	}
	cfg := ai.Config()
	switch kind {
	case filter.FilterEquality:
		return cfg.Has(index.IndexEquality)
	case filter.FilterPresent:
		return cfg.Has(index.IndexPresence)
	case filter.FilterSubstring:
		return cfg.Has(index.IndexSubstring) || cfg.Has(index.IndexEquality)
	case filter.FilterGreaterOrEqual, filter.FilterLessOrEqual:
		return cfg.Has(index.IndexOrdering)
	case filter.FilterApproxMatch:
		return cfg.Has(index.IndexApproximate)
	case filter.FilterExtensibleMatch:
		return cfg.Has(index.IndexExtensible)
	}
	return false
}
