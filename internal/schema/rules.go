package schema

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidValue is returned by normalizers for values outside the syntax
// of the rule.
var ErrInvalidValue = errors.New("schema: invalid attribute value")

// RuleKind is the matching category of a rule.
type RuleKind int

const (
	KindEquality RuleKind = iota
	KindOrdering
	KindSubstring
	KindApproximate
)

// String returns the string representation of the kind.
func (k RuleKind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindOrdering:
		return "ordering"
	case KindSubstring:
		return "substring"
	case KindApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// Normalizer maps a value to its canonical byte form.
type Normalizer func(value []byte) ([]byte, error)

// MatchingRule defines how attribute values are compared.
type MatchingRule struct {
	OID   string
	Name  string
	Names []string
	Kind  RuleKind

	// Normalize produces index keys from attribute values.
	Normalize Normalizer

	// NormalizeAssertion normalizes assertion values and substring
	// elements. Nil means Normalize.
	NormalizeAssertion Normalizer
}

// NewMatchingRule creates a matching rule.
func NewMatchingRule(oid, name string, kind RuleKind, normalize Normalizer) *MatchingRule {
	return &MatchingRule{
		OID:       oid,
		Name:      name,
		Names:     []string{name},
		Kind:      kind,
		Normalize: normalize,
	}
}

// NameOrOID returns the primary name, or the OID for unnamed rules.
func (r *MatchingRule) NameOrOID() string {
	if r.Name != "" {
		return r.Name
	}
	return r.OID
}

// HasName reports whether name (case-insensitive) names r or is its OID.
func (r *MatchingRule) HasName(name string) bool {
	if name == r.OID {
		return true
	}
	for _, n := range r.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// NormalizeValue normalizes an attribute value.
func (r *MatchingRule) NormalizeValue(value []byte) ([]byte, error) {
	return r.Normalize(value)
}

// NormalizeAssertionValue normalizes an assertion value or substring element.
func (r *MatchingRule) NormalizeAssertionValue(value []byte) ([]byte, error) {
	if r.NormalizeAssertion != nil {
		return r.NormalizeAssertion(value)
	}
	return r.Normalize(value)
}

// builtinRules returns the matching rules known to every schema.
func builtinRules() []*MatchingRule {
	substr := func(oid, name string, n Normalizer, a Normalizer) *MatchingRule {
		r := NewMatchingRule(oid, name, KindSubstring, n)
		r.NormalizeAssertion = a
		return r
	}
	return []*MatchingRule{
		NewMatchingRule("2.5.13.0", "objectIdentifierMatch", KindEquality, normalizeCaseIgnore),
		NewMatchingRule("2.5.13.1", "distinguishedNameMatch", KindEquality, normalizeDN),
		NewMatchingRule("2.5.13.2", "caseIgnoreMatch", KindEquality, normalizeCaseIgnore),
		NewMatchingRule("2.5.13.3", "caseIgnoreOrderingMatch", KindOrdering, normalizeCaseIgnore),
		substr("2.5.13.4", "caseIgnoreSubstringsMatch", normalizeCaseIgnore, normalizeCaseIgnoreElement),
		NewMatchingRule("2.5.13.5", "caseExactMatch", KindEquality, normalizeCaseExact),
		NewMatchingRule("2.5.13.6", "caseExactOrderingMatch", KindOrdering, normalizeCaseExact),
		substr("2.5.13.7", "caseExactSubstringsMatch", normalizeCaseExact, normalizeCaseExactElement),
		NewMatchingRule("2.5.13.8", "numericStringMatch", KindEquality, normalizeNumericString),
		NewMatchingRule("2.5.13.9", "numericStringOrderingMatch", KindOrdering, normalizeNumericString),
		substr("2.5.13.10", "numericStringSubstringsMatch", normalizeNumericString, normalizeNumericString),
		NewMatchingRule("2.5.13.14", "integerMatch", KindEquality, normalizeInteger),
		NewMatchingRule("2.5.13.15", "integerOrderingMatch", KindOrdering, normalizeInteger),
		NewMatchingRule("2.5.13.17", "octetStringMatch", KindEquality, normalizeOctetString),
		NewMatchingRule("2.5.13.18", "octetStringOrderingMatch", KindOrdering, normalizeOctetString),
		NewMatchingRule("2.5.13.20", "telephoneNumberMatch", KindEquality, normalizeTelephoneNumber),
		substr("2.5.13.21", "telephoneNumberSubstringsMatch", normalizeTelephoneNumber, normalizeTelephoneNumber),
		NewMatchingRule("2.5.13.27", "generalizedTimeMatch", KindEquality, normalizeGeneralizedTime),
		NewMatchingRule("2.5.13.28", "generalizedTimeOrderingMatch", KindOrdering, normalizeGeneralizedTime),
		NewMatchingRule("1.3.6.1.4.1.1466.109.114.2", "caseIgnoreIA5Match", KindEquality, normalizeCaseIgnore),
		substr("1.3.6.1.4.1.1466.109.114.3", "caseIgnoreIA5SubstringsMatch", normalizeCaseIgnore, normalizeCaseIgnoreElement),
		NewMatchingRule("1.3.6.1.4.1.26027.1.4.1", "ds-mr-double-metaphone-approx", KindApproximate, normalizePhonetic),
	}
}
