package schema

import "strings"

// AttributeUsage defines how an attribute is used in the directory.
type AttributeUsage int

const (
	// UserApplications indicates a user attribute.
	UserApplications AttributeUsage = iota
	// DirectoryOperation indicates an operational attribute maintained by the directory.
	DirectoryOperation
)

// AttributeType represents an LDAP attribute type definition.
type AttributeType struct {
	OID         string   // Object Identifier (e.g., "2.5.4.3")
	Name        string   // Primary name (e.g., "cn")
	Names       []string // All names including aliases (e.g., ["cn", "commonName"])
	Superior    string   // Parent attribute type name
	Equality    string   // Equality matching rule name
	Ordering    string   // Ordering matching rule name
	Substring   string   // Substring matching rule name
	Approximate string   // Approximate matching rule name
	SingleValue bool
	Usage       AttributeUsage
}

// NewAttributeType creates a new AttributeType with the given OID and names.
func NewAttributeType(oid string, names ...string) *AttributeType {
	at := &AttributeType{OID: oid, Usage: UserApplications}
	for _, n := range names {
		at.AddName(n)
	}
	if len(at.Names) > 0 {
		at.Name = at.Names[0]
	}
	return at
}

// NameOrOID returns the primary name, or the OID if the type is unnamed.
func (at *AttributeType) NameOrOID() string {
	if at.Name != "" {
		return at.Name
	}
	return at.OID
}

// HasName reports whether name (case-insensitive) is a name or the OID of at.
func (at *AttributeType) HasName(name string) bool {
	if strings.EqualFold(name, at.OID) {
		return true
	}
	for _, n := range at.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// AddName adds an alias name to this attribute type.
func (at *AttributeType) AddName(name string) {
	for _, n := range at.Names {
		if strings.EqualFold(n, name) {
			return
		}
	}
	at.Names = append(at.Names, name)
}

// WithRules sets the matching rule names and returns at.
func (at *AttributeType) WithRules(equality, ordering, substring, approximate string) *AttributeType {
	at.Equality = equality
	at.Ordering = ordering
	at.Substring = substring
	at.Approximate = approximate
	return at
}

// IsOperational returns true if this is an operational attribute.
func (at *AttributeType) IsOperational() bool {
	return at.Usage != UserApplications
}
