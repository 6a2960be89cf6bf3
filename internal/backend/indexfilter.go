package backend

import (
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
)

// evaluateIndexFilter computes a candidate superset for f from the
// attribute indexes. An undefined result means the indexes cannot narrow
// the search and every entry in scope is a candidate.
func (ec *EntryContainer) evaluateIndexFilter(r storage.Reader, f *filter.Filter) *index.EntryIDSet {
	switch f.Type {
	case filter.FilterAnd:
		return ec.evaluateAnd(r, f.Children)
	case filter.FilterOr:
		if len(f.Children) == 0 {
			return index.NewEntryIDSet()
		}
		sets := make([]*index.EntryIDSet, 0, len(f.Children))
		for _, c := range f.Children {
			set := ec.evaluateIndexFilter(r, c)
			if !set.IsDefined() {
				return set
			}
			sets = append(sets, set)
		}
		return index.Union(sets, true)
	case filter.FilterNot:
		return index.NewUndefinedSet()
	}

	attr := f.Attribute
	if f.Type == filter.FilterExtensibleMatch && f.Extensible != nil {
		attr = f.Extensible.Attribute
	}
	ai := ec.attributeIndex(attr)
	if attr == "" || ai == nil {
		return index.NewUndefinedSet()
	}
	switch f.Type {
	case filter.FilterEquality:
		return ai.EvaluateEquality(r, f.Value)
	case filter.FilterPresent:
		return ai.EvaluatePresence(r)
	case filter.FilterSubstring:
		if f.Substring == nil {
			return index.NewUndefinedSet()
		}
		return ai.EvaluateSubstring(r, f.Substring.Initial, f.Substring.Any, f.Substring.Final)
	case filter.FilterGreaterOrEqual:
		return ai.EvaluateGreaterOrEqual(r, f.Value)
	case filter.FilterLessOrEqual:
		return ai.EvaluateLessOrEqual(r, f.Value)
	case filter.FilterApproxMatch:
		return ai.EvaluateApproximate(r, f.Value)
	case filter.FilterExtensibleMatch:
		if f.Extensible == nil || f.Extensible.DNAttributes {
			return index.NewUndefinedSet()
		}
		return ai.EvaluateExtensible(r, f.Extensible.MatchingRule, f.Extensible.Value)
	}
	return index.NewUndefinedSet()
}

// evaluateAnd intersects the candidates of the children in order and stops
// once the intersection is small enough to verify directly. A >= and a <=
// component on the same attribute are read as one bounded range.
func (ec *EntryContainer) evaluateAnd(r storage.Reader, children []*filter.Filter) *index.EntryIDSet {
	result := index.NewUndefinedSet()
	done := make(map[*filter.Filter]bool)
	for _, c := range children {
		if done[c] {
			continue
		}
		var set *index.EntryIDSet
		if partner := rangePartner(ec, c, children, done); partner != nil {
			done[partner] = true
			lower, upper := c.Value, partner.Value
			if c.Type == filter.FilterLessOrEqual {
				lower, upper = upper, lower
			}
			if ai := ec.attributeIndex(c.Attribute); ai != nil {
				set = ai.EvaluateBoundedRange(r, lower, upper)
			} else {
				set = index.NewUndefinedSet()
			}
		} else {
			set = ec.evaluateIndexFilter(r, c)
		}
		result.RetainAll(set)
		if result.IsDefined() && result.Len() <= index.FilterCandidateThreshold {
			break
		}
	}
	return result
}

// rangePartner finds the unused opposite bound of a range component.
func rangePartner(ec *EntryContainer, c *filter.Filter, children []*filter.Filter, done map[*filter.Filter]bool) *filter.Filter {
	var want filter.FilterType
	switch c.Type {
	case filter.FilterGreaterOrEqual:
		want = filter.FilterLessOrEqual
	case filter.FilterLessOrEqual:
		want = filter.FilterGreaterOrEqual
	default:
		return nil
	}
	key := ec.attributeKey(c.Attribute)
	for _, o := range children {
		if o != c && !done[o] && o.Type == want && ec.attributeKey(o.Attribute) == key {
			return o
		}
	}
	return nil
}
