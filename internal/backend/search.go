package backend

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
)

// ErrSizeLimitExceeded is returned with the partial result when a search
// finds more entries than its size limit.
var ErrSizeLimitExceeded = errors.New("backend: size limit exceeded")

// Scope is the search scope.
type Scope int

// Search scopes.
const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
)

// String returns the LDAP URL name of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseScope parses base, one or sub.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel":
		return ScopeOneLevel, nil
	case "sub", "subtree":
		return ScopeSubtree, nil
	}
	return 0, errors.Errorf("backend: unknown scope %q", s)
}

// SearchRequest describes a search.
type SearchRequest struct {
	BaseDN string
	Scope  Scope
	// Filter defaults to (objectClass=*).
	Filter *filter.Filter
	// SizeLimit caps the number of returned entries; 0 means no limit.
	SizeLimit int
	// Subordinates adds hasSubordinates and numSubordinates to the results.
	Subordinates bool
}

// SearchResult holds the matching entries in ascending ID order, which
// returns parents before their children.
type SearchResult struct {
	Entries []*entry.Entry
	// Indexed is false when the search scanned every entry.
	Indexed bool
	// Candidates is the number of entries read and verified.
	Candidates int
}

// Search returns the entries in scope that match the filter. The indexes
// narrow the candidates; every candidate is then checked against the full
// filter.
func (ec *EntryContainer) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	f := req.Filter
	if f == nil {
		f = filter.NewPresentFilter("objectClass")
	}
	base, err := ec.normalize("search", req.BaseDN)
	if err != nil {
		return nil, err
	}

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	baseID, err := ec.lookupID(ec.store, base, storage.LockNone)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ec.notFound(ec.store, "search", base)
	}
	if err != nil {
		return nil, err
	}

	s := &searcher{ec: ec, req: req, base: base, filter: f, res: &SearchResult{}}
	if req.Scope == ScopeBase {
		s.res.Indexed = true
		_, err := s.consider(baseID, nil)
		return s.res, err
	}

	candidates := ec.evaluateIndexFilter(ec.store, ec.optimizer.Optimize(f))
	var scopeSet *index.EntryIDSet
	switch req.Scope {
	case ScopeOneLevel:
		scopeSet = ec.id2children.ReadKey(ec.store, baseID.Bytes())
	case ScopeSubtree:
		scopeSet = ec.id2subtree.ReadKey(ec.store, baseID.Bytes())
		scopeSet.Add(baseID)
	default:
		return nil, errors.Errorf("backend: unknown scope %d", req.Scope)
	}
	candidates.RetainAll(scopeSet)

	if candidates.IsDefined() {
		s.res.Indexed = true
		for i, id := range candidates.IDs() {
			if i%256 == 0 {
				if err := ctx.Err(); err != nil {
					return s.res, err
				}
			}
			more, err := s.consider(id, nil)
			if err != nil || !more {
				return s.res, err
			}
		}
		return s.res, nil
	}
	return s.res, s.scan(ctx)
}

type searcher struct {
	ec     *EntryContainer
	req    *SearchRequest
	base   string
	filter *filter.Filter
	res    *SearchResult
}

// scan walks id2entry in ID order.
func (s *searcher) scan(ctx context.Context) error {
	s.ec.logger.Debug("unindexed search", "base", s.base, "filter", s.filter.String())
	c, err := s.ec.store.NewCursor(s.ec.id2entry, nil, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	n := 0
	for ok := c.First(); ok; ok = c.Next() {
		if n++; n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		id, err := index.EntryIDFromBytes(c.Key())
		if err != nil {
			return err
		}
		e, err := s.ec.codec.Decode(c.Value())
		if err != nil {
			return errors.Wrapf(err, "backend: decode entry %s", id)
		}
		more, err := s.consider(id, e)
		if err != nil || !more {
			return err
		}
	}
	return c.Error()
}

// consider verifies one candidate and appends it when it matches. It
// returns false once the size limit is reached.
func (s *searcher) consider(id index.EntryID, e *entry.Entry) (bool, error) {
	if e == nil {
		var err error
		if e, err = s.ec.getEntry(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return true, nil
			}
			return false, err
		}
	}
	s.res.Candidates++
	if !s.inScope(e.DN) || !s.ec.evaluator.Matches(s.filter, e) {
		return true, nil
	}
	if s.req.SizeLimit > 0 && len(s.res.Entries) == s.req.SizeLimit {
		return false, ErrSizeLimitExceeded
	}
	out := e.Clone()
	if s.req.Subordinates {
		num := -1
		if children := s.ec.id2children.ReadKey(s.ec.store, id.Bytes()); children.IsDefined() {
			num = children.Len()
		}
		setSubordinateAttrs(out, num)
	}
	s.res.Entries = append(s.res.Entries, out)
	return true, nil
}

func (s *searcher) inScope(dn string) bool {
	switch s.req.Scope {
	case ScopeBase:
		return dn == s.base
	case ScopeOneLevel:
		return entry.ParentDN(dn) == s.base
	default:
		return isWithin(dn, s.base)
	}
}
