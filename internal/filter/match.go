package filter

import (
	"bytes"

	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// matchWithRule normalizes every value and the assertion with rule and
// applies cmp. A missing rule or an assertion outside the rule's syntax is
// Undefined; values outside the syntax are skipped.
func matchWithRule(rule *schema.MatchingRule, values [][]byte, assertion []byte, cmp func(value, assertion []byte) bool) Result {
	if rule == nil {
		return Undefined
	}
	var norm []byte
	if assertion != nil {
		var err error
		norm, err = rule.NormalizeAssertionValue(assertion)
		if err != nil {
			return Undefined
		}
	}
	result := False
	for _, v := range values {
		nv, err := rule.NormalizeValue(v)
		if err != nil {
			result = Undefined
			continue
		}
		if cmp(nv, norm) {
			return True
		}
	}
	return result
}

func matchEquality(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// compareNormalized orders normalized values. Ordering normalizers produce
// keys whose byte order is the attribute order.
func compareNormalized(a, b []byte) int {
	return bytes.Compare(a, b)
}

// matchSubstring checks a normalized value against normalized substring
// components. Components must match in order without overlapping.
func matchSubstring(value []byte, initial []byte, any [][]byte, final []byte) bool {
	pos := 0
	if len(initial) > 0 {
		if !bytes.HasPrefix(value, initial) {
			return false
		}
		pos = len(initial)
	}

	for _, substr := range any {
		if len(substr) == 0 {
			continue
		}
		idx := bytes.Index(value[pos:], substr)
		if idx < 0 {
			return false
		}
		pos += idx + len(substr)
	}

	if len(final) > 0 {
		if len(value)-pos < len(final) || !bytes.HasSuffix(value, final) {
			return false
		}
	}
	return true
}

// normalizePattern normalizes every component of sf with the assertion
// normalizer of rule.
func normalizePattern(rule *schema.MatchingRule, sf *SubstringFilter) (*SubstringFilter, bool) {
	out := &SubstringFilter{Attribute: sf.Attribute}
	norm := func(v []byte) ([]byte, bool) {
		if len(v) == 0 {
			return nil, true
		}
		n, err := rule.NormalizeAssertionValue(v)
		return n, err == nil
	}
	var ok bool
	if out.Initial, ok = norm(sf.Initial); !ok {
		return nil, false
	}
	for _, a := range sf.Any {
		n, ok := norm(a)
		if !ok {
			return nil, false
		}
		if len(n) > 0 {
			out.Any = append(out.Any, n)
		}
	}
	if out.Final, ok = norm(sf.Final); !ok {
		return nil, false
	}
	return out, true
}

// substringFromAssertion splits a raw "ini*any*fin" assertion used with a
// substring matching rule in an extensible match.
func substringFromAssertion(assertion []byte) *SubstringFilter {
	parts := bytes.Split(assertion, []byte{'*'})
	sf := &SubstringFilter{}
	if len(parts) == 1 {
		sf.Any = parts
		return sf
	}
	sf.Initial = parts[0]
	sf.Final = parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		if len(p) > 0 {
			sf.Any = append(sf.Any, p)
		}
	}
	return sf
}
