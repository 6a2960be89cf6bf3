package index

import (
	"bytes"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// AttributeIndexOptions configures an AttributeIndex.
type AttributeIndexOptions struct {
	Schema           *schema.Schema
	State            *State
	Logger           logging.Logger
	CursorEntryLimit int
	// ExclusiveLock is held while physical indexes are dropped. It is
	// normally the write side of the container lock.
	ExclusiveLock sync.Locker
}

// AttributeIndex owns every physical index of one attribute type and
// evaluates filter components against them.
type AttributeIndex struct {
	attr      *schema.AttributeType
	schema    *schema.Schema
	store     *storage.Store
	state     *State
	logger    logging.Logger
	exclusive sync.Locker

	mu               sync.RWMutex
	cfg              AttributeIndexConfig
	cursorEntryLimit int
	builtin          map[IndexType]*Index
	ext              *extensibleRegistry
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// NewAttributeIndex validates cfg and opens the configured indexes.
func NewAttributeIndex(s *storage.Store, cfg AttributeIndexConfig, opts AttributeIndexOptions) (*AttributeIndex, error) {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.ExclusiveLock == nil {
		opts.ExclusiveLock = nopLocker{}
	}
	if opts.CursorEntryLimit == 0 {
		opts.CursorEntryLimit = DefaultCursorEntryLimit
	}
	attr := opts.Schema.ResolveAttributeType(cfg.Attribute)
	ai := &AttributeIndex{
		attr:             attr,
		schema:           opts.Schema,
		store:            s,
		state:            opts.State,
		logger:           opts.Logger.WithFields("attribute", attr.NameOrOID()),
		exclusive:        opts.ExclusiveLock,
		cursorEntryLimit: opts.CursorEntryLimit,
		builtin:          make(map[IndexType]*Index),
		ext:              newExtensibleRegistry(),
	}
	if err := ai.IsConfigurationAcceptable(cfg); err != nil {
		return nil, err
	}
	ai.cfg = cfg

	for _, t := range BuiltinIndexTypes {
		if !cfg.Has(t) {
			continue
		}
		ix, err := ai.openBuiltin(t, cfg)
		if err != nil {
			return nil, err
		}
		ai.builtin[t] = ix
	}
	if cfg.Has(IndexExtensible) {
		for _, name := range cfg.ExtensibleRules {
			rule, _ := ai.schema.ExtensibleRule(name)
			if err := ai.ext.addRule(rule, ai.extensibleOpener(cfg)); err != nil {
				return nil, err
			}
		}
	}
	return ai, nil
}

// AttributeType returns the indexed attribute type.
func (ai *AttributeIndex) AttributeType() *schema.AttributeType { return ai.attr }

// Config returns the active configuration.
func (ai *AttributeIndex) Config() AttributeIndexConfig {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return ai.cfg
}

// Name returns the name prefix of the physical indexes.
func (ai *AttributeIndex) Name() string {
	return strings.ToLower(ai.attr.NameOrOID())
}

func (ai *AttributeIndex) indexName(id string) string {
	return ai.Name() + "." + id
}

func (ai *AttributeIndex) newIndexer(t IndexType, cfg AttributeIndexConfig) (*Indexer, error) {
	var rule *schema.MatchingRule
	switch t {
	case IndexPresence:
		return NewPresenceIndexer(ai.attr), nil
	case IndexEquality:
		rule = ai.schema.EqualityRule(ai.attr)
	case IndexSubstring:
		rule = ai.schema.SubstringRule(ai.attr)
	case IndexOrdering:
		rule = ai.schema.OrderingRule(ai.attr)
	case IndexApproximate:
		rule = ai.schema.ApproximateRule(ai.attr)
	default:
		return nil, errors.Wrapf(ErrUnknownIndexType, "%d", t)
	}
	if rule == nil {
		return nil, errors.Wrapf(ErrMissingMatchingRule, "%s %s", ai.attr.NameOrOID(), t)
	}
	switch t {
	case IndexEquality:
		return NewEqualityIndexer(ai.attr, rule), nil
	case IndexSubstring:
		return NewSubstringIndexer(ai.attr, rule, cfg.substringLength()), nil
	case IndexOrdering:
		return NewOrderingIndexer(ai.attr, rule), nil
	default:
		return NewApproximateIndexer(ai.attr, rule), nil
	}
}

func (ai *AttributeIndex) openBuiltin(t IndexType, cfg AttributeIndexConfig) (*Index, error) {
	indexer, err := ai.newIndexer(t, cfg)
	if err != nil {
		return nil, err
	}
	return Open(ai.store, ai.indexName(t.String()), Options{
		EntryLimit:       cfg.EntryLimit,
		CursorEntryLimit: ai.cursorEntryLimit,
		Indexer:          indexer,
		State:            ai.state,
		Logger:           ai.logger,
	})
}

func (ai *AttributeIndex) extensibleOpener(cfg AttributeIndexConfig) func(schema.ExtensibleIndexer) (*Index, error) {
	return func(ext schema.ExtensibleIndexer) (*Index, error) {
		return Open(ai.store, ai.indexName(ext.IndexID()), Options{
			EntryLimit:       cfg.EntryLimit,
			CursorEntryLimit: ai.cursorEntryLimit,
			Indexer:          NewExtensibleIndexer(ai.attr, ext),
			State:            ai.state,
			Logger:           ai.logger,
		})
	}
}

// Index returns the built-in index of type t, or nil.
func (ai *AttributeIndex) Index(t IndexType) *Index {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return ai.builtin[t]
}

// ExtensibleIndex returns the extensible index with the given indexer ID.
func (ai *AttributeIndex) ExtensibleIndex(id string) *Index {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return ai.ext.index(id)
}

// AllIndexes returns the built-in indexes in configuration order followed
// by the extensible indexes ordered by ID.
func (ai *AttributeIndex) AllIndexes() []*Index {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return ai.allIndexes()
}

func (ai *AttributeIndex) allIndexes() []*Index {
	var out []*Index
	for _, t := range BuiltinIndexTypes {
		if ix, ok := ai.builtin[t]; ok {
			out = append(out, ix)
		}
	}
	return append(out, ai.ext.all()...)
}

// usableIndex returns the index with the given ID if it can serve
// searches: it exists, is trusted and is not being rebuilt.
func (ai *AttributeIndex) usableIndex(id string) *Index {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	var ix *Index
	if t, err := ParseIndexType(id); err == nil && t != IndexExtensible {
		ix = ai.builtin[t]
	} else {
		ix = ai.ext.index(id)
	}
	if ix == nil || !ix.IsTrusted() || ix.IsRebuildRunning() {
		return nil
	}
	return ix
}

// AddEntry adds id to every index of the attribute. It returns false if
// some index already held id under one of the entry's keys.
func (ai *AttributeIndex) AddEntry(w storage.Writer, id EntryID, e *entry.Entry) (bool, error) {
	success := true
	for _, ix := range ai.AllIndexes() {
		ok, err := ix.AddEntry(w, id, e)
		if err != nil {
			return false, err
		}
		if !ok {
			success = false
		}
	}
	return success, nil
}

// RemoveEntry removes id from every index of the attribute.
func (ai *AttributeIndex) RemoveEntry(w storage.Writer, id EntryID, e *entry.Entry) error {
	for _, ix := range ai.AllIndexes() {
		if err := ix.RemoveEntry(w, id, e); err != nil {
			return err
		}
	}
	return nil
}

// ModifyEntry applies the key differences caused by mods to every index.
func (ai *AttributeIndex) ModifyEntry(w storage.Writer, id EntryID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) error {
	for _, ix := range ai.AllIndexes() {
		if err := ix.ModifyEntry(w, id, oldEntry, newEntry, mods); err != nil {
			return err
		}
	}
	return nil
}

// AddEntryBuffered records the keys of e in buf.
func (ai *AttributeIndex) AddEntryBuffered(buf *Buffer, id EntryID, e *entry.Entry) {
	for _, ix := range ai.AllIndexes() {
		ix.AddEntryBuffered(buf, id, e)
	}
}

// RemoveEntryBuffered records the removal of e's keys in buf.
func (ai *AttributeIndex) RemoveEntryBuffered(buf *Buffer, id EntryID, e *entry.Entry) {
	for _, ix := range ai.AllIndexes() {
		ix.RemoveEntryBuffered(buf, id, e)
	}
}

// ModifyEntryBuffered records the key differences of a modification.
func (ai *AttributeIndex) ModifyEntryBuffered(buf *Buffer, id EntryID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) {
	for _, ix := range ai.AllIndexes() {
		ix.ModifyEntryBuffered(buf, id, oldEntry, newEntry, mods)
	}
}

// ContainsEntry verifies the keys of e in every index.
func (ai *AttributeIndex) ContainsEntry(r storage.Reader, id EntryID, e *entry.Entry) (ConditionResult, error) {
	result := ConditionTrue
	for _, ix := range ai.AllIndexes() {
		c, err := ix.ContainsEntry(r, id, e)
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

func (ai *AttributeIndex) record(filterType string, set *EntryIDSet) *EntryIDSet {
	result := "indexed"
	if !set.IsDefined() {
		result = "undefined"
	}
	FilterEvaluations.WithLabelValues(ai.Name(), filterType, result).Inc()
	return set
}

func (ai *AttributeIndex) normalizeAssertion(rule *schema.MatchingRule, value []byte) ([]byte, bool) {
	if rule == nil {
		return nil, false
	}
	norm, err := rule.NormalizeAssertionValue(value)
	if err != nil {
		ai.logger.Debug("assertion value rejected", "rule", rule.NameOrOID(), "error", err)
		return nil, false
	}
	return norm, true
}

// EvaluateEquality returns the candidates for (attr=value).
func (ai *AttributeIndex) EvaluateEquality(r storage.Reader, value []byte) *EntryIDSet {
	ix := ai.usableIndex(IndexEquality.String())
	if ix == nil {
		return ai.record("equality", NewUndefinedSet())
	}
	key, ok := ai.normalizeAssertion(ai.schema.EqualityRule(ai.attr), value)
	if !ok {
		return ai.record("equality", NewUndefinedSet())
	}
	return ai.record("equality", ix.ReadKey(r, key))
}

// EvaluatePresence returns the candidates for (attr=*).
func (ai *AttributeIndex) EvaluatePresence(r storage.Reader) *EntryIDSet {
	ix := ai.usableIndex(IndexPresence.String())
	if ix == nil {
		return ai.record("presence", NewUndefinedSet())
	}
	return ai.record("presence", ix.ReadKey(r, PresenceKey))
}

// EvaluateGreaterOrEqual returns the candidates for (attr>=value).
func (ai *AttributeIndex) EvaluateGreaterOrEqual(r storage.Reader, value []byte) *EntryIDSet {
	return ai.record("greaterOrEqual", ai.evaluateRange(r, value, nil, true, false))
}

// EvaluateLessOrEqual returns the candidates for (attr<=value).
func (ai *AttributeIndex) EvaluateLessOrEqual(r storage.Reader, value []byte) *EntryIDSet {
	return ai.record("lessOrEqual", ai.evaluateRange(r, nil, value, false, true))
}

// EvaluateBoundedRange returns the candidates for (&(attr>=lower)(attr<=upper)).
func (ai *AttributeIndex) EvaluateBoundedRange(r storage.Reader, lower, upper []byte) *EntryIDSet {
	return ai.record("boundedRange", ai.evaluateRange(r, lower, upper, true, true))
}

func (ai *AttributeIndex) evaluateRange(r storage.Reader, lower, upper []byte, lowerIncluded, upperIncluded bool) *EntryIDSet {
	ix := ai.usableIndex(IndexOrdering.String())
	if ix == nil {
		return NewUndefinedSet()
	}
	rule := ai.schema.OrderingRule(ai.attr)
	var lo, hi []byte
	if lower != nil {
		var ok bool
		if lo, ok = ai.normalizeAssertion(rule, lower); !ok {
			return NewUndefinedSet()
		}
	}
	if upper != nil {
		var ok bool
		if hi, ok = ai.normalizeAssertion(rule, upper); !ok {
			return NewUndefinedSet()
		}
	}
	return ix.ReadRange(r, lo, hi, lowerIncluded, upperIncluded)
}

// EvaluateApproximate returns the candidates for (attr~=value).
func (ai *AttributeIndex) EvaluateApproximate(r storage.Reader, value []byte) *EntryIDSet {
	ix := ai.usableIndex(IndexApproximate.String())
	if ix == nil {
		return ai.record("approximate", NewUndefinedSet())
	}
	key, ok := ai.normalizeAssertion(ai.schema.ApproximateRule(ai.attr), value)
	if !ok {
		return ai.record("approximate", NewUndefinedSet())
	}
	return ai.record("approximate", ix.ReadKey(r, key))
}

// EvaluateSubstring returns the candidates for (attr=initial*any*...*final).
// Nil initial or final means the element is absent.
//
// An initial element is first matched as a prefix of the equality keys;
// when that alone yields few enough candidates the substring index is not
// read. The remaining elements are matched through the substring index and
// intersected.
func (ai *AttributeIndex) EvaluateSubstring(r storage.Reader, initial []byte, subAny [][]byte, final []byte) *EntryIDSet {
	return ai.record("substring", ai.evaluateSubstring(r, initial, subAny, final))
}

func (ai *AttributeIndex) evaluateSubstring(r storage.Reader, initial []byte, subAny [][]byte, final []byte) *EntryIDSet {
	rule := ai.schema.SubstringRule(ai.attr)
	if rule == nil {
		return NewUndefinedSet()
	}
	results := NewUndefinedSet()
	var elements [][]byte

	if initial != nil {
		if eq := ai.usableIndex(IndexEquality.String()); eq != nil {
			prefix, ok := ai.normalizeAssertion(rule, initial)
			if !ok {
				return NewUndefinedSet()
			}
			results.RetainAll(ai.matchInitialSubstring(r, eq, bytes.TrimLeft(prefix, " ")))
			if results.IsDefined() && results.Len() <= FilterCandidateThreshold {
				return results
			}
		} else {
			elements = append(elements, initial)
		}
	}

	sub := ai.usableIndex(IndexSubstring.String())
	if sub == nil {
		return results
	}
	elements = append(elements, subAny...)
	if final != nil {
		elements = append(elements, final)
	}
	for _, elem := range elements {
		norm, ok := ai.normalizeAssertion(rule, elem)
		if !ok {
			return NewUndefinedSet()
		}
		if len(norm) == 0 {
			continue
		}
		results.RetainAll(ai.matchSubstring(r, sub, norm))
		if results.IsDefined() && results.Len() <= FilterCandidateThreshold {
			return results
		}
	}
	return results
}

// matchInitialSubstring reads the equality keys starting with prefix.
func (ai *AttributeIndex) matchInitialSubstring(r storage.Reader, eq *Index, prefix []byte) *EntryIDSet {
	if len(prefix) == 0 {
		return NewUndefinedSet()
	}
	return eq.ReadRange(r, prefix, IncrementBytes(prefix), true, false)
}

// matchSubstring returns the candidates holding value somewhere. Values
// shorter than the key length are matched as prefixes of substring keys;
// longer values intersect the sets of all their key-length windows.
func (ai *AttributeIndex) matchSubstring(r storage.Reader, sub *Index, value []byte) *EntryIDSet {
	length := DefaultSubstringLength
	if indexer := sub.currentIndexer(); indexer != nil {
		length = indexer.SubstringLength()
	}
	if len(value) < length {
		return sub.ReadRange(r, value, IncrementBytes(value), true, false)
	}
	results := NewUndefinedSet()
	seen := make(map[string]bool)
	for i := 0; i+length <= len(value); i++ {
		key := value[i : i+length]
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		results.RetainAll(sub.ReadKey(r, key))
		if results.IsDefined() && results.Len() <= FilterCandidateThreshold {
			break
		}
	}
	return results
}

// EvaluateExtensible returns the candidates for (attr:rule:=value). No rule,
// or the attribute's own equality rule, is evaluated as equality. Rules
// without an index on this attribute yield an undefined set.
func (ai *AttributeIndex) EvaluateExtensible(r storage.Reader, ruleID string, value []byte) *EntryIDSet {
	eq := ai.schema.EqualityRule(ai.attr)
	if ruleID == "" || (eq != nil && eq.HasName(ruleID)) {
		return ai.EvaluateEquality(r, value)
	}
	rule, ok := ai.schema.ExtensibleRule(ruleID)
	if !ok {
		return ai.record("extensible", NewUndefinedSet())
	}
	ai.mu.RLock()
	indexed := ai.ext.hasIndexFor(rule)
	ai.mu.RUnlock()
	if !indexed {
		ai.logger.Debug("matching rule not indexed", "rule", ruleID)
		return ai.record("extensible", NewUndefinedSet())
	}
	q, err := rule.CreateIndexQuery(value, queryFactory{})
	if err != nil {
		ai.logger.Debug("cannot build index query", "rule", ruleID, "error", err)
		return ai.record("extensible", NewUndefinedSet())
	}
	return ai.record("extensible", ai.evaluateQuery(r, q))
}

// IsTrusted reports whether every index of the attribute is trusted.
func (ai *AttributeIndex) IsTrusted() bool {
	for _, ix := range ai.AllIndexes() {
		if !ix.IsTrusted() {
			return false
		}
	}
	return true
}

// SetTrusted sets the trust flag of every index.
func (ai *AttributeIndex) SetTrusted(w storage.Writer, trusted bool) error {
	for _, ix := range ai.AllIndexes() {
		if err := ix.SetTrusted(w, trusted); err != nil {
			return err
		}
	}
	return nil
}

// SetRebuildStatus marks every index as being rebuilt or not.
func (ai *AttributeIndex) SetRebuildStatus(running bool) {
	for _, ix := range ai.AllIndexes() {
		ix.SetRebuildStatus(running)
	}
}

// EntryLimitExceededCount sums the exceeded counts of all indexes.
func (ai *AttributeIndex) EntryLimitExceededCount() int64 {
	var n int64
	for _, ix := range ai.AllIndexes() {
		n += ix.EntryLimitExceededCount()
	}
	return n
}

// Close closes every index.
func (ai *AttributeIndex) Close() {
	for _, ix := range ai.AllIndexes() {
		ix.Close()
	}
}

// Drop deletes every physical index of the attribute.
func (ai *AttributeIndex) Drop(w storage.Writer) error {
	ai.exclusive.Lock()
	defer ai.exclusive.Unlock()
	ai.mu.Lock()
	defer ai.mu.Unlock()
	for _, ix := range ai.allIndexes() {
		if err := ix.Drop(w); err != nil {
			return err
		}
	}
	ai.builtin = make(map[IndexType]*Index)
	ai.ext = newExtensibleRegistry()
	return nil
}

// IndexStats describes one physical index.
type IndexStats struct {
	Name                    string
	Trusted                 bool
	RebuildRunning          bool
	EntryLimit              int
	EntryLimitExceededCount int64
	Keys                    int
	// Rules lists the extensible rules sharing the index.
	Rules int
}

// Stats reports the state of every index of the attribute.
func (ai *AttributeIndex) Stats(r storage.Reader) ([]IndexStats, error) {
	ai.mu.RLock()
	indexes := ai.allIndexes()
	refs := make(map[*Index]int)
	for id, ix := range ai.ext.indexes {
		refs[ix] = ai.ext.refCount(id)
	}
	ai.mu.RUnlock()

	out := make([]IndexStats, 0, len(indexes))
	for _, ix := range indexes {
		keys, err := ix.Count(r)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexStats{
			Name:                    ix.Name(),
			Trusted:                 ix.IsTrusted(),
			RebuildRunning:          ix.IsRebuildRunning(),
			EntryLimit:              ix.EntryLimit(),
			EntryLimitExceededCount: ix.EntryLimitExceededCount(),
			Keys:                    keys,
			Rules:                   refs[ix],
		})
	}
	return out, nil
}
