package filter

import (
	"sort"
	"strings"
)

// IndexCatalog reports which attribute indexes are available. Kind is one
// of the filter types that an index can serve.
type IndexCatalog interface {
	HasIndex(attr string, kind FilterType) bool
}

// Cost constants for ordering filter components.
const (
	// CostFullScan is the cost of a component that no index serves.
	CostFullScan = 10000

	// CostIndexLookup is the base cost for an exact index lookup.
	CostIndexLookup = 10

	// CostPresenceIndex is the cost for presence index lookup.
	CostPresenceIndex = 30

	// CostSubstringIndex is the cost for substring index lookup.
	// Higher than equality because it may return false positives.
	CostSubstringIndex = 50

	// CostRangeIndex is the cost for an ordering index range scan.
	CostRangeIndex = 80

	// CostOrUnion is the additional cost per OR branch.
	CostOrUnion = 50
)

// Optimizer rewrites filters so that the cheapest indexed components of an
// AND are evaluated first. Since evaluation of an AND stops once the
// candidate set is small, the order decides how many index reads happen.
type Optimizer struct {
	catalog IndexCatalog
}

// NewOptimizer creates a new Optimizer. A nil catalog treats every
// component as unindexed.
func NewOptimizer(catalog IndexCatalog) *Optimizer {
	return &Optimizer{catalog: catalog}
}

// Optimize returns an equivalent filter with nested AND/OR flattened,
// single-child AND/OR collapsed, double negation removed, and AND children
// sorted by estimated cost. The input is not modified.
func (o *Optimizer) Optimize(filter *Filter) *Filter {
	if filter == nil {
		return nil
	}

	switch filter.Type {
	case FilterAnd, FilterOr:
		children := o.flatten(filter.Type, filter.Children)
		if len(children) == 1 {
			return children[0]
		}
		if filter.Type == FilterAnd {
			sort.SliceStable(children, func(i, j int) bool {
				return o.Cost(children[i]) < o.Cost(children[j])
			})
		}
		return &Filter{Type: filter.Type, Children: children}
	case FilterNot:
		child := o.Optimize(filter.Child)
		if child != nil && child.Type == FilterNot {
			return child.Child
		}
		return NewNotFilter(child)
	default:
		return filter
	}
}

func (o *Optimizer) flatten(t FilterType, children []*Filter) []*Filter {
	out := make([]*Filter, 0, len(children))
	seen := make(map[string]bool)
	for _, c := range children {
		c = o.Optimize(c)
		var parts []*Filter
		if c.Type == t && len(c.Children) > 0 {
			parts = c.Children
		} else {
			parts = []*Filter{c}
		}
		for _, p := range parts {
			key := p.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// Cost estimates the cost of evaluating a filter component against the
// indexes.
func (o *Optimizer) Cost(filter *Filter) int {
	if filter == nil {
		return 0
	}

	switch filter.Type {
	case FilterAnd:
		if len(filter.Children) == 0 {
			return CostFullScan
		}
		best := CostFullScan
		for _, child := range filter.Children {
			if c := o.Cost(child); c < best {
				best = c
			}
		}
		return best
	case FilterOr:
		if len(filter.Children) == 0 {
			return CostIndexLookup
		}
		cost := 0
		for _, child := range filter.Children {
			cost += o.Cost(child) + CostOrUnion
		}
		if cost > CostFullScan {
			return CostFullScan
		}
		return cost
	case FilterNot:
		return CostFullScan
	case FilterEquality:
		return o.indexedCost(filter.Attribute, FilterEquality, CostIndexLookup)
	case FilterPresent:
		return o.indexedCost(filter.Attribute, FilterPresent, CostPresenceIndex)
	case FilterSubstring:
		return o.indexedCost(filter.Attribute, FilterSubstring, CostSubstringIndex)
	case FilterGreaterOrEqual, FilterLessOrEqual:
		return o.indexedCost(filter.Attribute, filter.Type, CostRangeIndex)
	case FilterApproxMatch:
		return o.indexedCost(filter.Attribute, FilterApproxMatch, CostIndexLookup)
	case FilterExtensibleMatch:
		if filter.Extensible == nil || filter.Extensible.Attribute == "" {
			return CostFullScan
		}
		return o.indexedCost(filter.Attribute, FilterExtensibleMatch, CostSubstringIndex)
	default:
		return CostFullScan
	}
}

func (o *Optimizer) indexedCost(attr string, kind FilterType, cost int) int {
	if o.catalog != nil && o.catalog.HasIndex(normalizeAttr(attr), kind) {
		return cost
	}
	return CostFullScan
}

// normalizeAttr normalizes an attribute name for index lookup.
func normalizeAttr(attr string) string {
	return strings.ToLower(strings.TrimSpace(attr))
}
