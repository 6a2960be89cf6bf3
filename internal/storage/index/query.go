package index

import (
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

type queryKind int

const (
	queryExact queryKind = iota
	queryRange
	queryAnd
	queryOr
	queryAll
)

// indexQuery is the IndexQuery built by queryFactory.
type indexQuery struct {
	kind          queryKind
	indexID       string
	key           []byte
	lower, upper  []byte
	lowerIncluded bool
	upperIncluded bool
	children      []*indexQuery
}

func (q *indexQuery) String() string {
	switch q.kind {
	case queryExact:
		return fmt.Sprintf("exact(%s,%x)", q.indexID, q.key)
	case queryRange:
		return fmt.Sprintf("range(%s,%x,%x,%t,%t)", q.indexID, q.lower, q.upper, q.lowerIncluded, q.upperIncluded)
	case queryAll:
		return "all"
	}
	parts := make([]string, len(q.children))
	for i, c := range q.children {
		parts[i] = c.String()
	}
	op := "and"
	if q.kind == queryOr {
		op = "or"
	}
	return op + "(" + strings.Join(parts, ",") + ")"
}

// queryFactory builds queries for extensible matching rules. Queries are
// evaluated by the AttributeIndex that owns the named indexes.
type queryFactory struct{}

var _ schema.IndexQueryFactory = queryFactory{}

func (queryFactory) CreateExactMatchQuery(indexID string, key []byte) schema.IndexQuery {
	return &indexQuery{kind: queryExact, indexID: indexID, key: key}
}

func (queryFactory) CreateRangeMatchQuery(indexID string, lower, upper []byte, lowerIncluded, upperIncluded bool) schema.IndexQuery {
	return &indexQuery{
		kind:          queryRange,
		indexID:       indexID,
		lower:         lower,
		upper:         upper,
		lowerIncluded: lowerIncluded,
		upperIncluded: upperIncluded,
	}
}

func (queryFactory) CreateIntersectionQuery(queries []schema.IndexQuery) schema.IndexQuery {
	return &indexQuery{kind: queryAnd, children: toIndexQueries(queries)}
}

func (queryFactory) CreateUnionQuery(queries []schema.IndexQuery) schema.IndexQuery {
	return &indexQuery{kind: queryOr, children: toIndexQueries(queries)}
}

func (queryFactory) CreateMatchAllQuery() schema.IndexQuery {
	return &indexQuery{kind: queryAll}
}

// toIndexQueries keeps the queries built by queryFactory. Foreign queries
// become match-all, which never restricts an intersection.
func toIndexQueries(queries []schema.IndexQuery) []*indexQuery {
	out := make([]*indexQuery, 0, len(queries))
	for _, q := range queries {
		if iq, ok := q.(*indexQuery); ok {
			out = append(out, iq)
		} else {
			out = append(out, &indexQuery{kind: queryAll})
		}
	}
	return out
}

// evaluateQuery computes the candidates of q against the indexes of ai.
func (ai *AttributeIndex) evaluateQuery(r storage.Reader, q schema.IndexQuery) *EntryIDSet {
	iq, ok := q.(*indexQuery)
	if !ok {
		return NewUndefinedSet()
	}
	switch iq.kind {
	case queryExact:
		ix := ai.usableIndex(iq.indexID)
		if ix == nil {
			return NewUndefinedSet()
		}
		return ix.ReadKey(r, iq.key)
	case queryRange:
		ix := ai.usableIndex(iq.indexID)
		if ix == nil {
			return NewUndefinedSet()
		}
		return ix.ReadRange(r, iq.lower, iq.upper, iq.lowerIncluded, iq.upperIncluded)
	case queryAnd:
		results := NewUndefinedSet()
		for _, c := range iq.children {
			results.RetainAll(ai.evaluateQuery(r, c))
			if results.IsDefined() && results.Len() <= FilterCandidateThreshold {
				break
			}
		}
		return results
	case queryOr:
		sets := make([]*EntryIDSet, 0, len(iq.children))
		for _, c := range iq.children {
			set := ai.evaluateQuery(r, c)
			if !set.IsDefined() {
				return set
			}
			sets = append(sets, set)
		}
		return Union(sets, true)
	default:
		ix := ai.usableIndex(IndexPresence.String())
		if ix == nil {
			return NewUndefinedSet()
		}
		return ix.ReadKey(r, PresenceKey)
	}
}
