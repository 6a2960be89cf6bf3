package index

import (
	"bytes"
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// PresenceKey is the single key of every presence index.
var PresenceKey = []byte("+")

// IndexerKind selects how an Indexer derives keys.
type IndexerKind int

const (
	KindEquality IndexerKind = iota
	KindPresence
	KindSubstring
	KindOrdering
	KindApproximate
	// KindExtensibleShared derives keys through an extensible rule indexer
	// that several rules may share.
	KindExtensibleShared
	// KindExtensibleSubstring derives keys through a substring indexer that
	// belongs to one extensible rule.
	KindExtensibleSubstring
)

// String returns the string representation of the kind.
func (k IndexerKind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindPresence:
		return "presence"
	case KindSubstring:
		return "substring"
	case KindOrdering:
		return "ordering"
	case KindApproximate:
		return "approximate"
	case KindExtensibleShared:
		return "extensible-shared"
	case KindExtensibleSubstring:
		return "extensible-substring"
	default:
		return "unknown"
	}
}

// Indexer derives the keys of one attribute for one physical index.
// Indexers are stateless and safe for concurrent use.
type Indexer struct {
	kind            IndexerKind
	attr            *schema.AttributeType
	rule            *schema.MatchingRule
	substringLength int
	ext             schema.ExtensibleIndexer
}

// NewEqualityIndexer creates an indexer emitting one key per value
// normalized by the equality rule.
func NewEqualityIndexer(attr *schema.AttributeType, rule *schema.MatchingRule) *Indexer {
	return &Indexer{kind: KindEquality, attr: attr, rule: rule}
}

// NewPresenceIndexer creates an indexer emitting PresenceKey for entries
// holding the attribute.
func NewPresenceIndexer(attr *schema.AttributeType) *Indexer {
	return &Indexer{kind: KindPresence, attr: attr}
}

// NewSubstringIndexer creates an indexer emitting the substring keys of
// each value normalized by the substring rule.
func NewSubstringIndexer(attr *schema.AttributeType, rule *schema.MatchingRule, length int) *Indexer {
	if length <= 0 {
		length = DefaultSubstringLength
	}
	return &Indexer{kind: KindSubstring, attr: attr, rule: rule, substringLength: length}
}

// NewOrderingIndexer creates an indexer emitting one key per value
// normalized by the ordering rule.
func NewOrderingIndexer(attr *schema.AttributeType, rule *schema.MatchingRule) *Indexer {
	return &Indexer{kind: KindOrdering, attr: attr, rule: rule}
}

// NewApproximateIndexer creates an indexer emitting one key per value
// normalized by the approximate rule.
func NewApproximateIndexer(attr *schema.AttributeType, rule *schema.MatchingRule) *Indexer {
	return &Indexer{kind: KindApproximate, attr: attr, rule: rule}
}

// NewExtensibleIndexer wraps an extensible rule indexer. Indexers whose ID
// ends in ".substring" are private to their rule.
func NewExtensibleIndexer(attr *schema.AttributeType, ext schema.ExtensibleIndexer) *Indexer {
	kind := KindExtensibleShared
	if isSubstringIndexID(ext.IndexID()) {
		kind = KindExtensibleSubstring
	}
	return &Indexer{kind: kind, attr: attr, ext: ext}
}

func isSubstringIndexID(id string) bool {
	return strings.HasSuffix(id, "."+IndexSubstring.String())
}

// Kind returns the variant of ix.
func (ix *Indexer) Kind() IndexerKind { return ix.kind }

// ID returns the index ID: the index type for built-in kinds and the
// rule-provided ID for extensible kinds.
func (ix *Indexer) ID() string {
	switch ix.kind {
	case KindExtensibleShared, KindExtensibleSubstring:
		return ix.ext.IndexID()
	case KindEquality:
		return IndexEquality.String()
	case KindPresence:
		return IndexPresence.String()
	case KindSubstring:
		return IndexSubstring.String()
	case KindOrdering:
		return IndexOrdering.String()
	default:
		return IndexApproximate.String()
	}
}

// SubstringLength returns the key length of a substring indexer.
func (ix *Indexer) SubstringLength() int { return ix.substringLength }

// Rule returns the matching rule of a built-in indexer, nil otherwise.
func (ix *Indexer) Rule() *schema.MatchingRule { return ix.rule }

// ValueKeys returns the keys derived from a single attribute value.
func (ix *Indexer) ValueKeys(value []byte) ([][]byte, error) {
	switch ix.kind {
	case KindPresence:
		return [][]byte{PresenceKey}, nil
	case KindExtensibleShared, KindExtensibleSubstring:
		return ix.ext.CreateKeys(value)
	}
	norm, err := ix.rule.NormalizeValue(value)
	if err != nil {
		return nil, err
	}
	if ix.kind == KindSubstring {
		return SubstringKeys(norm, ix.substringLength), nil
	}
	return [][]byte{norm}, nil
}

// IndexEntry returns the sorted, distinct keys of e. Values the matching
// rule rejects produce no keys.
func (ix *Indexer) IndexEntry(e *entry.Entry) [][]byte {
	if e == nil {
		return nil
	}
	values := e.ValuesFor(ix.attr.Names)
	if len(values) == 0 {
		return nil
	}
	if ix.kind == KindPresence {
		return [][]byte{PresenceKey}
	}
	set := make(map[string]struct{})
	for _, v := range values {
		keys, err := ix.ValueKeys(v)
		if err != nil {
			continue
		}
		for _, k := range keys {
			set[string(k)] = struct{}{}
		}
	}
	return sortedKeySet(set)
}

// ModifyEntry returns the keys to add and to delete when oldEntry becomes
// newEntry through mods. Both lists are sorted. Modifications that do not
// touch the attribute yield no keys.
func (ix *Indexer) ModifyEntry(oldEntry, newEntry *entry.Entry, mods []entry.Modification) (add, del [][]byte) {
	touched := false
	for _, m := range mods {
		if ix.appliesTo(m.Attribute) {
			touched = true
			break
		}
	}
	if !touched {
		return nil, nil
	}
	oldKeys := ix.IndexEntry(oldEntry)
	newKeys := ix.IndexEntry(newEntry)
	return diffSorted(newKeys, oldKeys), diffSorted(oldKeys, newKeys)
}

func (ix *Indexer) appliesTo(attr string) bool {
	if i := strings.IndexByte(attr, ';'); i >= 0 {
		attr = attr[:i]
	}
	return ix.attr.HasName(attr)
}

// SubstringKeys decomposes value into keys of at most length bytes: one key
// per start position, each min(length, remaining) bytes long. The keys are
// distinct and sorted.
func SubstringKeys(value []byte, length int) [][]byte {
	set := make(map[string]struct{}, len(value))
	for i := range value {
		end := i + length
		if end > len(value) {
			end = len(value)
		}
		set[string(value[i:end])] = struct{}{}
	}
	return sortedKeySet(set)
}

func sortedKeySet(set map[string]struct{}) [][]byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// diffSorted returns the keys of a that are not in b; both sorted.
func diffSorted(a, b [][]byte) [][]byte {
	var out [][]byte
	j := 0
	for _, k := range a {
		for j < len(b) && bytes.Compare(b[j], k) < 0 {
			j++
		}
		if j < len(b) && bytes.Equal(b[j], k) {
			continue
		}
		out = append(out, k)
	}
	return out
}
