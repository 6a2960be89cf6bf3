package filter

import (
	"strings"

	"github.com/pkg/errors"
)

// Parser errors
var (
	ErrEmptyFilter      = errors.New("filter: empty filter")
	ErrInvalidFilter    = errors.New("filter: invalid filter syntax")
	ErrUnbalancedParens = errors.New("filter: unbalanced parentheses")
	ErrMissingAttribute = errors.New("filter: missing attribute name")
	ErrInvalidEscape    = errors.New("filter: invalid escape sequence")
)

// Parse parses an LDAP filter string into a Filter structure.
// Supports RFC 4515 filter syntax:
//   - (attr=value)          - equality
//   - (attr=*)              - presence
//   - (attr=*val*)          - substring
//   - (attr>=value)         - greater or equal
//   - (attr<=value)         - less or equal
//   - (attr~=value)         - approximate match
//   - (attr:dn:rule:=value) - extensible match
//   - (&(f1)(f2)...)        - AND, (&) is absolute true
//   - (|(f1)(f2)...)        - OR, (|) is absolute false
//   - (!(filter))           - NOT
//
// Values may contain \XX hex escapes. A filter without surrounding
// parentheses is accepted when it is a single item.
func Parse(filterStr string) (*Filter, error) {
	s := strings.TrimSpace(filterStr)
	if s == "" {
		return nil, ErrEmptyFilter
	}
	if s[0] != '(' {
		s = "(" + s + ")"
	}

	p := &parser{s: s}
	f, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, errors.Wrapf(ErrInvalidFilter, "trailing data at offset %d", p.pos)
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func MustParse(filterStr string) *Filter {
	f, err := Parse(filterStr)
	if err != nil {
		panic(err)
	}
	return f
}

type parser struct {
	s   string
	pos int
}

func (p *parser) parseFilter() (*Filter, error) {
	if p.pos >= len(p.s) || p.s[p.pos] != '(' {
		return nil, errors.Wrapf(ErrInvalidFilter, "expected '(' at offset %d", p.pos)
	}
	p.pos++
	if p.pos >= len(p.s) {
		return nil, ErrUnbalancedParens
	}

	var f *Filter
	var err error
	switch p.s[p.pos] {
	case '&':
		p.pos++
		var children []*Filter
		children, err = p.parseFilterList()
		f = NewAndFilter(children...)
	case '|':
		p.pos++
		var children []*Filter
		children, err = p.parseFilterList()
		f = NewOrFilter(children...)
	case '!':
		p.pos++
		var child *Filter
		child, err = p.parseFilter()
		f = NewNotFilter(child)
	case ')':
		return nil, ErrEmptyFilter
	default:
		end := strings.IndexByte(p.s[p.pos:], ')')
		if end < 0 {
			return nil, ErrUnbalancedParens
		}
		item := p.s[p.pos : p.pos+end]
		if strings.IndexByte(item, '(') >= 0 {
			return nil, errors.Wrapf(ErrInvalidFilter, "unexpected '(' in %q", item)
		}
		f, err = parseItem(item)
		p.pos += end
	}
	if err != nil {
		return nil, err
	}

	if p.pos >= len(p.s) || p.s[p.pos] != ')' {
		return nil, ErrUnbalancedParens
	}
	p.pos++
	return f, nil
}

func (p *parser) parseFilterList() ([]*Filter, error) {
	var filters []*Filter
	for p.pos < len(p.s) && p.s[p.pos] == '(' {
		f, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if p.pos >= len(p.s) {
		return nil, ErrUnbalancedParens
	}
	return filters, nil
}

func parseItem(s string) (*Filter, error) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return nil, errors.Wrapf(ErrInvalidFilter, "no operator in %q", s)
	}
	rawValue := s[idx+1:]

	var op byte
	attr := s[:idx]
	if idx > 0 {
		switch s[idx-1] {
		case '>', '<', '~', ':':
			op = s[idx-1]
			attr = s[:idx-1]
		}
	}

	if op == ':' {
		return parseExtensible(attr, rawValue)
	}
	if err := checkAttribute(attr); err != nil {
		return nil, err
	}

	if op == 0 {
		if rawValue == "*" {
			return NewPresentFilter(attr), nil
		}
		if strings.IndexByte(rawValue, '*') >= 0 {
			return parseSubstring(attr, rawValue)
		}
	}

	value, err := unescape(rawValue)
	if err != nil {
		return nil, err
	}
	switch op {
	case '>':
		return NewGreaterOrEqualFilter(attr, value), nil
	case '<':
		return NewLessOrEqualFilter(attr, value), nil
	case '~':
		return NewApproxMatchFilter(attr, value), nil
	default:
		return NewEqualityFilter(attr, value), nil
	}
}

// parseExtensible parses the part before ":=" of an extensible item:
// attr[:dn][:rule] or [:dn]:rule.
func parseExtensible(desc, rawValue string) (*Filter, error) {
	value, err := unescape(rawValue)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(desc, ":")
	em := &ExtensibleMatch{Attribute: parts[0], Value: value}
	rest := parts[1:]
	if len(rest) > 0 && strings.EqualFold(rest[0], "dn") {
		em.DNAttributes = true
		rest = rest[1:]
	}
	switch len(rest) {
	case 0:
	case 1:
		if rest[0] == "" {
			return nil, errors.Wrapf(ErrInvalidFilter, "empty matching rule in %q", desc)
		}
		em.MatchingRule = rest[0]
	default:
		return nil, errors.Wrapf(ErrInvalidFilter, "malformed extensible match %q", desc)
	}

	if em.Attribute == "" && em.MatchingRule == "" {
		return nil, errors.Wrapf(ErrMissingAttribute, "extensible match %q needs an attribute or a rule", desc)
	}
	if em.Attribute != "" {
		if err := checkAttribute(em.Attribute); err != nil {
			return nil, err
		}
	}
	return NewExtensibleMatchFilter(em), nil
}

func parseSubstring(attr, rawValue string) (*Filter, error) {
	parts := strings.Split(rawValue, "*")
	sf := &SubstringFilter{Attribute: attr}
	for i, part := range parts {
		v, err := unescape(part)
		if err != nil {
			return nil, err
		}
		switch {
		case i == 0:
			if len(v) > 0 {
				sf.Initial = v
			}
		case i == len(parts)-1:
			if len(v) > 0 {
				sf.Final = v
			}
		case len(v) > 0:
			sf.Any = append(sf.Any, v)
		}
	}
	return NewSubstringFilter(sf), nil
}

func checkAttribute(attr string) error {
	if attr == "" {
		return ErrMissingAttribute
	}
	for i := 0; i < len(attr); i++ {
		c := attr[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == ';' || c == '.') {
			return errors.Wrapf(ErrInvalidFilter, "invalid attribute description %q", attr)
		}
	}
	return nil
}

func unescape(s string) ([]byte, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return []byte(s), nil
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			out = append(out, s[i])
			continue
		}
		if i+2 >= len(s) {
			return nil, errors.Wrapf(ErrInvalidEscape, "%q", s)
		}
		hi, ok1 := fromHex(s[i+1])
		lo, ok2 := fromHex(s[i+2])
		if !ok1 || !ok2 {
			return nil, errors.Wrapf(ErrInvalidEscape, "%q", s)
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return out, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
