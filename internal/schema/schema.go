package schema

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Schema errors.
var (
	ErrAttributeTypeExists = errors.New("schema: attribute type already defined")
	ErrMatchingRuleExists  = errors.New("schema: matching rule already defined")
	ErrUnknownMatchingRule = errors.New("schema: unknown matching rule")
)

// Schema is a registry of attribute types, matching rules and extensible
// matching rules. Lookups are case-insensitive by name or OID.
type Schema struct {
	mu              sync.RWMutex
	attributeTypes  map[string]*AttributeType
	matchingRules   map[string]*MatchingRule
	extensibleRules map[string]ExtensibleRule
	extensibleList  []ExtensibleRule
}

// NewSchema creates a schema holding only the built-in matching rules.
func NewSchema() *Schema {
	s := &Schema{
		attributeTypes:  make(map[string]*AttributeType),
		matchingRules:   make(map[string]*MatchingRule),
		extensibleRules: make(map[string]ExtensibleRule),
	}
	for _, r := range builtinRules() {
		_ = s.AddMatchingRule(r)
	}
	return s
}

// Default creates a schema with the built-in rules, the locale collation
// rules and the common user and operational attribute types.
func Default() *Schema {
	s := NewSchema()
	for _, r := range collationRules() {
		_ = s.AddExtensibleRule(r)
	}
	for _, at := range defaultAttributeTypes() {
		_ = s.AddAttributeType(at)
	}
	return s
}

func lookupKey(name string) string { return strings.ToLower(name) }

// AddAttributeType registers at under all its names and its OID.
func (s *Schema) AddAttributeType(at *AttributeType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range append([]string{at.OID}, at.Names...) {
		if n == "" {
			continue
		}
		if _, ok := s.attributeTypes[lookupKey(n)]; ok {
			return errors.Wrapf(ErrAttributeTypeExists, "%s", n)
		}
	}
	for _, n := range append([]string{at.OID}, at.Names...) {
		if n != "" {
			s.attributeTypes[lookupKey(n)] = at
		}
	}
	return nil
}

// AttributeType looks up an attribute type by name or OID.
func (s *Schema) AttributeType(name string) (*AttributeType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.attributeTypes[lookupKey(name)]
	return at, ok
}

// ResolveAttributeType returns the registered type for name, or a
// caseIgnore-matched placeholder for unknown attributes.
func (s *Schema) ResolveAttributeType(name string) *AttributeType {
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	if at, ok := s.AttributeType(name); ok {
		return at
	}
	return NewAttributeType(name, name).WithRules(
		"caseIgnoreMatch", "caseIgnoreOrderingMatch", "caseIgnoreSubstringsMatch", "")
}

// AddMatchingRule registers r under all its names and its OID.
func (s *Schema) AddMatchingRule(r *MatchingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matchingRules[lookupKey(r.OID)]; ok {
		return errors.Wrapf(ErrMatchingRuleExists, "%s", r.OID)
	}
	s.matchingRules[lookupKey(r.OID)] = r
	for _, n := range r.Names {
		s.matchingRules[lookupKey(n)] = r
	}
	return nil
}

// MatchingRule looks up a matching rule by name or OID.
func (s *Schema) MatchingRule(name string) (*MatchingRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.matchingRules[lookupKey(name)]
	return r, ok
}

// AddExtensibleRule registers an extensible matching rule.
func (s *Schema) AddExtensibleRule(r ExtensibleRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.extensibleRules[lookupKey(r.OID())]; ok {
		return errors.Wrapf(ErrMatchingRuleExists, "%s", r.OID())
	}
	s.extensibleRules[lookupKey(r.OID())] = r
	for _, n := range r.Names() {
		s.extensibleRules[lookupKey(n)] = r
	}
	s.extensibleList = append(s.extensibleList, r)
	return nil
}

// ExtensibleRule looks up an extensible matching rule by name or OID.
func (s *Schema) ExtensibleRule(name string) (ExtensibleRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.extensibleRules[lookupKey(name)]
	return r, ok
}

// ExtensibleRules returns all extensible rules in registration order.
func (s *Schema) ExtensibleRules() []ExtensibleRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ExtensibleRule(nil), s.extensibleList...)
}

// EqualityRule returns the equality rule of at, inherited from its
// superiors when not set. Nil means none.
func (s *Schema) EqualityRule(at *AttributeType) *MatchingRule {
	return s.inheritedRule(at, func(a *AttributeType) string { return a.Equality })
}

// OrderingRule returns the ordering rule of at or its superiors.
func (s *Schema) OrderingRule(at *AttributeType) *MatchingRule {
	return s.inheritedRule(at, func(a *AttributeType) string { return a.Ordering })
}

// SubstringRule returns the substring rule of at or its superiors.
func (s *Schema) SubstringRule(at *AttributeType) *MatchingRule {
	return s.inheritedRule(at, func(a *AttributeType) string { return a.Substring })
}

// ApproximateRule returns the approximate rule of at or its superiors.
func (s *Schema) ApproximateRule(at *AttributeType) *MatchingRule {
	return s.inheritedRule(at, func(a *AttributeType) string { return a.Approximate })
}

func (s *Schema) inheritedRule(at *AttributeType, pick func(*AttributeType) string) *MatchingRule {
	seen := make(map[*AttributeType]bool)
	for at != nil && !seen[at] {
		seen[at] = true
		if name := pick(at); name != "" {
			r, _ := s.MatchingRule(name)
			return r
		}
		if at.Superior == "" {
			return nil
		}
		at, _ = s.AttributeType(at.Superior)
	}
	return nil
}

func defaultAttributeTypes() []*AttributeType {
	const (
		ci    = "caseIgnoreMatch"
		ciOrd = "caseIgnoreOrderingMatch"
		ciSub = "caseIgnoreSubstringsMatch"
		ia5   = "caseIgnoreIA5Match"
		ia5S  = "caseIgnoreIA5SubstringsMatch"
		dn    = "distinguishedNameMatch"
		appr  = "ds-mr-double-metaphone-approx"
	)
	sub := func(oid, sup string, names ...string) *AttributeType {
		at := NewAttributeType(oid, names...)
		at.Superior = sup
		return at
	}
	op := func(at *AttributeType) *AttributeType {
		at.Usage = DirectoryOperation
		at.SingleValue = true
		return at
	}
	single := func(at *AttributeType) *AttributeType {
		at.SingleValue = true
		return at
	}

	return []*AttributeType{
		NewAttributeType("2.5.4.0", "objectClass").WithRules("objectIdentifierMatch", "", "", ""),
		NewAttributeType("2.5.4.1", "aliasedObjectName").WithRules(dn, "", "", ""),
		NewAttributeType("2.5.4.41", "name").WithRules(ci, ciOrd, ciSub, appr),
		sub("2.5.4.3", "name", "cn", "commonName"),
		sub("2.5.4.4", "name", "sn", "surname"),
		sub("2.5.4.42", "name", "givenName", "gn"),
		sub("2.5.4.43", "name", "initials"),
		sub("2.5.4.12", "name", "title"),
		sub("2.5.4.7", "name", "l", "localityName"),
		sub("2.5.4.8", "name", "st", "stateOrProvinceName"),
		sub("2.5.4.10", "name", "o", "organizationName"),
		sub("2.5.4.11", "name", "ou", "organizationalUnitName"),
		sub("2.16.840.1.113730.3.1.241", "name", "displayName"),
		NewAttributeType("2.5.4.13", "description").WithRules(ci, ciOrd, ciSub, appr),
		NewAttributeType("2.5.4.9", "street", "streetAddress").WithRules(ci, ciOrd, ciSub, appr),
		single(NewAttributeType("2.5.4.6", "c", "countryName").WithRules(ci, ciOrd, ciSub, "")),
		single(NewAttributeType("0.9.2342.19200300.100.1.25", "dc", "domainComponent").WithRules(ia5, "", ia5S, "")),
		NewAttributeType("0.9.2342.19200300.100.1.1", "uid", "userid").WithRules(ci, ciOrd, ciSub, ""),
		NewAttributeType("0.9.2342.19200300.100.1.3", "mail", "rfc822Mailbox").WithRules(ia5, "", ia5S, appr),
		NewAttributeType("2.5.4.20", "telephoneNumber").WithRules("telephoneNumberMatch", "", "telephoneNumberSubstringsMatch", ""),
		NewAttributeType("2.16.840.1.113730.3.1.3", "employeeNumber").WithRules(ci, ciOrd, ciSub, ""),
		NewAttributeType("2.5.4.31", "member").WithRules(dn, "", "", ""),
		NewAttributeType("2.5.4.50", "uniqueMember").WithRules(dn, "", "", ""),
		NewAttributeType("2.5.4.34", "seeAlso").WithRules(dn, "", "", ""),
		NewAttributeType("2.5.4.35", "userPassword").WithRules("octetStringMatch", "", "", ""),
		single(NewAttributeType("1.3.6.1.1.1.1.0", "uidNumber").WithRules("integerMatch", "integerOrderingMatch", "", "")),
		single(NewAttributeType("1.3.6.1.1.1.1.1", "gidNumber").WithRules("integerMatch", "integerOrderingMatch", "", "")),
		single(NewAttributeType("1.3.6.1.1.1.1.3", "homeDirectory").WithRules("caseExactMatch", "caseExactOrderingMatch", "caseExactSubstringsMatch", "")),
		single(NewAttributeType("1.3.6.1.1.1.1.4", "loginShell").WithRules("caseExactMatch", "", "", "")),
		op(NewAttributeType("2.5.18.1", "createTimestamp").WithRules("generalizedTimeMatch", "generalizedTimeOrderingMatch", "", "")),
		op(NewAttributeType("2.5.18.2", "modifyTimestamp").WithRules("generalizedTimeMatch", "generalizedTimeOrderingMatch", "", "")),
		op(NewAttributeType("1.3.6.1.1.16.4", "entryUUID").WithRules(ci, ciOrd, "", "")),
		op(NewAttributeType("1.3.6.1.4.1.453.16.2.103", "numSubordinates").WithRules("integerMatch", "integerOrderingMatch", "", "")),
	}
}
