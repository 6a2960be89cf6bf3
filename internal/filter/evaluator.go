package filter

import (
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// Result is the three-valued outcome of evaluating a filter against an
// entry (RFC 4511 section 4.5.1.7).
type Result int

const (
	False Result = iota
	True
	Undefined
)

// String returns the string representation of the Result.
func (r Result) String() string {
	switch r {
	case False:
		return "FALSE"
	case True:
		return "TRUE"
	default:
		return "UNDEFINED"
	}
}

func not(r Result) Result {
	switch r {
	case True:
		return False
	case False:
		return True
	default:
		return Undefined
	}
}

// Evaluator evaluates LDAP search filters against entries using the
// matching rules of a schema.
type Evaluator struct {
	schema *schema.Schema
}

// NewEvaluator creates a new filter evaluator with the given schema.
// If nil, the default schema is used.
func NewEvaluator(s *schema.Schema) *Evaluator {
	if s == nil {
		s = schema.Default()
	}
	return &Evaluator{schema: s}
}

// Matches reports whether the entry matches the filter. Undefined counts
// as no match.
func (e *Evaluator) Matches(filter *Filter, ent *entry.Entry) bool {
	return e.Evaluate(filter, ent) == True
}

// Evaluate tests a filter against an entry.
func (e *Evaluator) Evaluate(filter *Filter, ent *entry.Entry) Result {
	if filter == nil || ent == nil {
		return Undefined
	}

	switch filter.Type {
	case FilterAnd:
		return e.evaluateAnd(filter, ent)
	case FilterOr:
		return e.evaluateOr(filter, ent)
	case FilterNot:
		if filter.Child == nil {
			return Undefined
		}
		return not(e.Evaluate(filter.Child, ent))
	case FilterEquality:
		return e.evaluateEquality(filter.Attribute, filter.Value, ent)
	case FilterSubstring:
		return e.evaluateSubstring(filter.Substring, ent)
	case FilterPresent:
		return e.evaluatePresent(filter.Attribute, ent)
	case FilterGreaterOrEqual:
		return e.evaluateOrdering(filter.Attribute, filter.Value, ent, func(c int) bool { return c >= 0 })
	case FilterLessOrEqual:
		return e.evaluateOrdering(filter.Attribute, filter.Value, ent, func(c int) bool { return c <= 0 })
	case FilterApproxMatch:
		return e.evaluateApproxMatch(filter.Attribute, filter.Value, ent)
	case FilterExtensibleMatch:
		return e.evaluateExtensible(filter.Extensible, ent)
	default:
		return Undefined
	}
}

// evaluateAnd is FALSE if any child is FALSE, TRUE if all are TRUE.
// An empty AND is TRUE.
func (e *Evaluator) evaluateAnd(filter *Filter, ent *entry.Entry) Result {
	result := True
	for _, child := range filter.Children {
		switch e.Evaluate(child, ent) {
		case False:
			return False
		case Undefined:
			result = Undefined
		}
	}
	return result
}

// evaluateOr is TRUE if any child is TRUE, FALSE if all are FALSE.
// An empty OR is FALSE.
func (e *Evaluator) evaluateOr(filter *Filter, ent *entry.Entry) Result {
	result := False
	for _, child := range filter.Children {
		switch e.Evaluate(child, ent) {
		case True:
			return True
		case Undefined:
			result = Undefined
		}
	}
	return result
}

func (e *Evaluator) evaluateEquality(attr string, value []byte, ent *entry.Entry) Result {
	at := e.schema.ResolveAttributeType(attr)
	return matchWithRule(e.schema.EqualityRule(at), e.values(attr, at, ent), value, matchEquality)
}

func (e *Evaluator) evaluateSubstring(sf *SubstringFilter, ent *entry.Entry) Result {
	if sf == nil {
		return Undefined
	}
	at := e.schema.ResolveAttributeType(sf.Attribute)
	rule := e.schema.SubstringRule(at)
	if rule == nil {
		return Undefined
	}
	pattern, ok := normalizePattern(rule, sf)
	if !ok {
		return Undefined
	}
	result := False
	for _, v := range e.values(sf.Attribute, at, ent) {
		norm, err := rule.NormalizeValue(v)
		if err != nil {
			result = Undefined
			continue
		}
		if matchSubstring(norm, pattern.Initial, pattern.Any, pattern.Final) {
			return True
		}
	}
	return result
}

func (e *Evaluator) evaluatePresent(attr string, ent *entry.Entry) Result {
	at := e.schema.ResolveAttributeType(attr)
	if len(e.values(attr, at, ent)) > 0 {
		return True
	}
	return False
}

func (e *Evaluator) evaluateOrdering(attr string, value []byte, ent *entry.Entry, accept func(int) bool) Result {
	at := e.schema.ResolveAttributeType(attr)
	return matchWithRule(e.schema.OrderingRule(at), e.values(attr, at, ent), value, func(v, a []byte) bool {
		return accept(compareNormalized(v, a))
	})
}

// evaluateApproxMatch falls back to equality matching when the attribute
// has no approximate rule.
func (e *Evaluator) evaluateApproxMatch(attr string, value []byte, ent *entry.Entry) Result {
	at := e.schema.ResolveAttributeType(attr)
	rule := e.schema.ApproximateRule(at)
	if rule == nil {
		rule = e.schema.EqualityRule(at)
	}
	return matchWithRule(rule, e.values(attr, at, ent), value, matchEquality)
}

func (e *Evaluator) evaluateExtensible(em *ExtensibleMatch, ent *entry.Entry) Result {
	if em == nil {
		return Undefined
	}

	var attrs []string
	if em.Attribute != "" {
		attrs = []string{em.Attribute}
	} else {
		attrs = ent.AttributeNames()
	}

	result := False
	merge := func(r Result) bool {
		if r == True {
			return true
		}
		if r == Undefined {
			result = Undefined
		}
		return false
	}

	for _, attr := range attrs {
		at := e.schema.ResolveAttributeType(attr)
		var values [][]byte
		if em.Attribute == "" {
			values = ent.Values(attr)
		} else {
			values = e.values(attr, at, ent)
		}
		if merge(e.extensibleValues(em.MatchingRule, at, values, em.Value)) {
			return True
		}
	}

	if em.DNAttributes {
		for _, ava := range dnAttributeValues(ent.DN) {
			if em.Attribute != "" && !e.schema.ResolveAttributeType(em.Attribute).HasName(ava.attr) {
				continue
			}
			at := e.schema.ResolveAttributeType(ava.attr)
			if merge(e.extensibleValues(em.MatchingRule, at, [][]byte{[]byte(ava.value)}, em.Value)) {
				return True
			}
		}
	}
	return result
}

// extensibleValues matches values of one attribute type with the named
// rule. An empty rule means the attribute's equality rule.
func (e *Evaluator) extensibleValues(ruleID string, at *schema.AttributeType, values [][]byte, assertion []byte) Result {
	if ruleID == "" {
		return matchWithRule(e.schema.EqualityRule(at), values, assertion, matchEquality)
	}
	if rule, ok := e.schema.ExtensibleRule(ruleID); ok {
		result := False
		for _, v := range values {
			ok, err := rule.ValuesMatch(v, assertion)
			if err != nil {
				result = Undefined
				continue
			}
			if ok {
				return True
			}
		}
		return result
	}
	rule, ok := e.schema.MatchingRule(ruleID)
	if !ok {
		return Undefined
	}
	switch rule.Kind {
	case schema.KindOrdering:
		return matchWithRule(rule, values, assertion, func(v, a []byte) bool { return compareNormalized(v, a) < 0 })
	case schema.KindSubstring:
		pattern, ok := normalizePattern(rule, substringFromAssertion(assertion))
		if !ok {
			return Undefined
		}
		return matchWithRule(rule, values, nil, func(v, _ []byte) bool {
			return matchSubstring(v, pattern.Initial, pattern.Any, pattern.Final)
		})
	default:
		return matchWithRule(rule, values, assertion, matchEquality)
	}
}

// values returns the values of attr in ent. Attribute descriptions with
// options match only that option; plain names match every alias of the
// type and all their options.
func (e *Evaluator) values(attr string, at *schema.AttributeType, ent *entry.Entry) [][]byte {
	if strings.IndexByte(attr, ';') >= 0 {
		return ent.Values(attr)
	}
	names := make([]string, 0, len(at.Names)+2)
	names = append(names, at.Names...)
	names = append(names, attr, at.OID)
	return ent.ValuesFor(names)
}

// GetSchema returns the evaluator's schema.
func (e *Evaluator) GetSchema() *schema.Schema {
	return e.schema
}

type dnValue struct {
	attr  string
	value string
}

func dnAttributeValues(dn string) []dnValue {
	rdns, err := entry.SplitDN(dn)
	if err != nil {
		return nil
	}
	var out []dnValue
	for _, rdn := range rdns {
		for attr, value := range entry.RDNValues(rdn) {
			out = append(out, dnValue{attr: attr, value: value})
		}
	}
	return out
}
