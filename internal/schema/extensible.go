package schema

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IndexQuery is an index query built by an IndexQueryFactory. Only the
// factory that created a query knows how to evaluate it.
type IndexQuery interface {
	String() string
}

// IndexQueryFactory builds index queries against the indexes registered for
// an extensible rule, addressed by index ID.
type IndexQueryFactory interface {
	CreateExactMatchQuery(indexID string, key []byte) IndexQuery
	CreateRangeMatchQuery(indexID string, lower, upper []byte, lowerIncluded, upperIncluded bool) IndexQuery
	CreateIntersectionQuery(queries []IndexQuery) IndexQuery
	CreateUnionQuery(queries []IndexQuery) IndexQuery
	CreateMatchAllQuery() IndexQuery
}

// ExtensibleIndexer derives index keys for one physical extensible index.
type ExtensibleIndexer interface {
	// IndexID identifies the physical index. Indexers of different rules
	// with the same ID share one index.
	IndexID() string
	CreateKeys(value []byte) ([][]byte, error)
}

// ExtensibleRule is a matching rule usable in extensible match filters.
type ExtensibleRule interface {
	OID() string
	Names() []string
	Indexers() []ExtensibleIndexer
	CreateIndexQuery(assertion []byte, f IndexQueryFactory) (IndexQuery, error)
	ValuesMatch(value, assertion []byte) (bool, error)
}

// CollationSubstringLength is the n-gram length of collation substring indexes.
const CollationSubstringLength = 6

type collationOp int

const (
	collLess collationOp = iota + 1
	collLessOrEqual
	collEqual
	collGreaterOrEqual
	collGreater
	collSubstring
)

var collationOps = []struct {
	op     collationOp
	suffix string
}{
	{collLess, "lt"},
	{collLessOrEqual, "lte"},
	{collEqual, "eq"},
	{collGreaterOrEqual, "gte"},
	{collGreater, "gt"},
	{collSubstring, "sub"},
}

// collationLocales maps locale names to the OID arc of their rules.
var collationLocales = []struct {
	name string
	arc  string
}{
	{"de", "1.3.6.1.4.1.42.2.27.9.4.28.1"},
	{"en", "1.3.6.1.4.1.42.2.27.9.4.34.1"},
	{"es", "1.3.6.1.4.1.42.2.27.9.4.49.1"},
	{"fr", "1.3.6.1.4.1.42.2.27.9.4.76.1"},
}

// collationLocale holds the collator pool shared by the rules of one locale.
type collationLocale struct {
	name  string
	tag   language.Tag
	pool  sync.Pool
	keyID string
	subID string
}

func newCollationLocale(name string) *collationLocale {
	l := &collationLocale{
		name:  name,
		tag:   language.MustParse(name),
		keyID: name + ".shared",
		subID: name + ".substring",
	}
	l.pool.New = func() any {
		return collate.New(l.tag, collate.IgnoreCase)
	}
	return l
}

func (l *collationLocale) key(value []byte) []byte {
	c := l.pool.Get().(*collate.Collator)
	defer l.pool.Put(c)
	var buf collate.Buffer
	k := c.Key(&buf, norm.NFC.Bytes(value))
	return append([]byte(nil), k...)
}

func (l *collationLocale) compare(a, b []byte) int {
	c := l.pool.Get().(*collate.Collator)
	defer l.pool.Put(c)
	return c.Compare(norm.NFC.Bytes(a), norm.NFC.Bytes(b))
}

// fold removes case and diacritics; substring keys are n-grams of it.
func (l *collationLocale) fold(value []byte) []byte {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.Bytes(t, value)
	if err != nil {
		out = value
	}
	return []byte(foldString(string(out)))
}

type collationKeyIndexer struct{ l *collationLocale }

func (ix collationKeyIndexer) IndexID() string { return ix.l.keyID }

func (ix collationKeyIndexer) CreateKeys(value []byte) ([][]byte, error) {
	return [][]byte{ix.l.key(value)}, nil
}

type collationSubstringIndexer struct{ l *collationLocale }

func (ix collationSubstringIndexer) IndexID() string { return ix.l.subID }

func (ix collationSubstringIndexer) CreateKeys(value []byte) ([][]byte, error) {
	folded := ix.l.fold(value)
	seen := make(map[string]bool)
	var keys [][]byte
	for i := range folded {
		end := i + CollationSubstringLength
		if end > len(folded) {
			end = len(folded)
		}
		k := string(folded[i:end])
		if !seen[k] {
			seen[k] = true
			keys = append(keys, []byte(k))
		}
	}
	return keys, nil
}

type collationRule struct {
	oid    string
	names  []string
	op     collationOp
	locale *collationLocale
}

func (r *collationRule) OID() string     { return r.oid }
func (r *collationRule) Names() []string { return r.names }

func (r *collationRule) Indexers() []ExtensibleIndexer {
	if r.op == collSubstring {
		return []ExtensibleIndexer{collationSubstringIndexer{r.locale}}
	}
	return []ExtensibleIndexer{collationKeyIndexer{r.locale}}
}

func (r *collationRule) CreateIndexQuery(assertion []byte, f IndexQueryFactory) (IndexQuery, error) {
	id := r.locale.keyID
	switch r.op {
	case collLess:
		return f.CreateRangeMatchQuery(id, nil, r.locale.key(assertion), false, false), nil
	case collLessOrEqual:
		return f.CreateRangeMatchQuery(id, nil, r.locale.key(assertion), false, true), nil
	case collEqual:
		return f.CreateExactMatchQuery(id, r.locale.key(assertion)), nil
	case collGreaterOrEqual:
		return f.CreateRangeMatchQuery(id, r.locale.key(assertion), nil, true, false), nil
	case collGreater:
		return f.CreateRangeMatchQuery(id, r.locale.key(assertion), nil, false, false), nil
	case collSubstring:
		return r.substringQuery(assertion, f)
	}
	return nil, errors.Errorf("schema: unknown collation operator %d", r.op)
}

func (r *collationRule) substringQuery(assertion []byte, f IndexQueryFactory) (IndexQuery, error) {
	var queries []IndexQuery
	for _, elem := range strings.Split(string(assertion), "*") {
		if elem == "" {
			continue
		}
		folded := r.locale.fold([]byte(elem))
		if len(folded) < CollationSubstringLength {
			upper := incrementPrefix(folded)
			queries = append(queries, f.CreateRangeMatchQuery(r.locale.subID, folded, upper, true, false))
			continue
		}
		var grams []IndexQuery
		for i := 0; i+CollationSubstringLength <= len(folded); i++ {
			grams = append(grams, f.CreateExactMatchQuery(r.locale.subID, folded[i:i+CollationSubstringLength]))
		}
		queries = append(queries, f.CreateIntersectionQuery(grams))
	}
	if len(queries) == 0 {
		return f.CreateMatchAllQuery(), nil
	}
	return f.CreateIntersectionQuery(queries), nil
}

func (r *collationRule) ValuesMatch(value, assertion []byte) (bool, error) {
	if r.op == collSubstring {
		return substringMatches(string(r.locale.fold(value)), strings.Split(string(assertion), "*"), r.locale.fold), nil
	}
	c := r.locale.compare(value, assertion)
	switch r.op {
	case collLess:
		return c < 0, nil
	case collLessOrEqual:
		return c <= 0, nil
	case collEqual:
		return c == 0, nil
	case collGreaterOrEqual:
		return c >= 0, nil
	case collGreater:
		return c > 0, nil
	}
	return false, nil
}

func (r *collationRule) String() string {
	return fmt.Sprintf("%s (%s)", r.names[0], r.oid)
}

// substringMatches checks the '*'-split pattern elements in order.
func substringMatches(value string, elems []string, fold func([]byte) []byte) bool {
	if len(elems) == 1 {
		return strings.Contains(value, string(fold([]byte(elems[0]))))
	}
	pos := 0
	for i, e := range elems {
		fe := string(fold([]byte(e)))
		switch {
		case fe == "":
			continue
		case i == 0:
			if !strings.HasPrefix(value, fe) {
				return false
			}
			pos = len(fe)
		case i == len(elems)-1:
			return len(value)-len(fe) >= pos && strings.HasSuffix(value, fe)
		default:
			idx := strings.Index(value[pos:], fe)
			if idx < 0 {
				return false
			}
			pos += idx + len(fe)
		}
	}
	return true
}

// incrementPrefix returns the smallest key greater than every key starting
// with p, or nil when no such key of equal length exists.
func incrementPrefix(p []byte) []byte {
	out := append([]byte(nil), p...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return nil
}

// collationRules builds the lt/lte/eq/gte/gt/sub rules of every locale.
func collationRules() []ExtensibleRule {
	var rules []ExtensibleRule
	for _, loc := range collationLocales {
		l := newCollationLocale(loc.name)
		for i, op := range collationOps {
			rules = append(rules, &collationRule{
				oid:    fmt.Sprintf("%s.%d", loc.arc, i+1),
				names:  []string{loc.name + "." + op.suffix, loc.arc + "." + op.suffix},
				op:     op.op,
				locale: l,
			})
		}
	}
	return rules
}
