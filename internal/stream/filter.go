package stream

import (
	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
)

// Scope selects the entries below BaseDN a subscription sees.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOneLevel
	ScopeSubtree
)

// WatchFilter selects the events delivered to a subscriber.
type WatchFilter struct {
	// BaseDN limits events to entries relative to it. Empty matches every DN.
	BaseDN string
	Scope  Scope
	// Filter is evaluated against the event entry. Nil matches every entry.
	Filter *filter.Filter
	// Operations lists the accepted operations. Empty accepts all.
	Operations []Operation
}

// normalize returns a copy of f with its base DN normalized.
func (f WatchFilter) normalize() (WatchFilter, error) {
	if f.BaseDN == "" {
		return f, nil
	}
	base, err := entry.NormalizeDN(f.BaseDN)
	if err != nil {
		return f, errors.Wrapf(err, "stream: base DN %q", f.BaseDN)
	}
	f.BaseDN = base
	return f, nil
}

// Matches reports whether ev passes f. A renamed entry matches when
// either its old or its new DN is in scope.
func (f *WatchFilter) Matches(ev *ChangeEvent, eval *filter.Evaluator) bool {
	if ev == nil {
		return false
	}
	if len(f.Operations) > 0 && !containsOp(f.Operations, ev.Operation) {
		return false
	}
	if !f.inScope(ev.DN) && (ev.OldDN == "" || !f.inScope(ev.OldDN)) {
		return false
	}
	if f.Filter == nil {
		return true
	}
	return ev.Entry != nil && eval.Matches(f.Filter, ev.Entry)
}

func (f *WatchFilter) inScope(dn string) bool {
	if f.BaseDN == "" {
		return true
	}
	switch f.Scope {
	case ScopeBase:
		return dn == f.BaseDN
	case ScopeOneLevel:
		return entry.ParentDN(dn) == f.BaseDN
	case ScopeSubtree:
		return dn == f.BaseDN || entry.IsDescendant(dn, f.BaseDN)
	}
	return false
}

func containsOp(ops []Operation, op Operation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// MatchAll returns a filter that matches all events.
func MatchAll() WatchFilter {
	return WatchFilter{}
}

// MatchSubtree returns a filter that matches events at or below baseDN.
func MatchSubtree(baseDN string) WatchFilter {
	return WatchFilter{BaseDN: baseDN, Scope: ScopeSubtree}
}
