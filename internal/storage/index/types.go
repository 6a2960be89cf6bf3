package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Configuration errors.
var (
	ErrMissingMatchingRule    = errors.New("index: attribute has no matching rule for index type")
	ErrInvalidSubstringLength = errors.New("index: substring length must be at least 1")
	ErrNoExtensibleRules      = errors.New("index: extensible index requires at least one matching rule")
	ErrUnknownIndexType       = errors.New("index: unknown index type")
	ErrUnknownExtensibleRule  = errors.New("index: unknown extensible matching rule")
	ErrIndexClosed            = errors.New("index: index is closed")
)

// IndexType represents the type of index for attribute searching.
type IndexType int

const (
	// IndexEquality supports equality searches like (uid=alice).
	IndexEquality IndexType = iota
	// IndexPresence supports presence searches like (mail=*).
	IndexPresence
	// IndexSubstring supports substring searches like (cn=*admin*).
	IndexSubstring
	// IndexOrdering supports (attr>=v) and (attr<=v).
	IndexOrdering
	// IndexApproximate supports (attr~=v).
	IndexApproximate
	// IndexExtensible supports extensible matches through matching-rule
	// provided indexers.
	IndexExtensible
)

// BuiltinIndexTypes lists the index types with a fixed physical index, in
// configuration order.
var BuiltinIndexTypes = []IndexType{IndexPresence, IndexEquality, IndexSubstring, IndexOrdering, IndexApproximate}

// String returns the string representation of an IndexType.
func (t IndexType) String() string {
	switch t {
	case IndexEquality:
		return "equality"
	case IndexPresence:
		return "presence"
	case IndexSubstring:
		return "substring"
	case IndexOrdering:
		return "ordering"
	case IndexApproximate:
		return "approximate"
	case IndexExtensible:
		return "extensible"
	default:
		return "unknown"
	}
}

// ParseIndexType parses a configuration index type name.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(s) {
	case "equality":
		return IndexEquality, nil
	case "presence":
		return IndexPresence, nil
	case "substring":
		return IndexSubstring, nil
	case "ordering":
		return IndexOrdering, nil
	case "approximate":
		return IndexApproximate, nil
	case "extensible":
		return IndexExtensible, nil
	}
	return 0, errors.Wrapf(ErrUnknownIndexType, "%q", s)
}

// ConditionResult is a three-valued membership answer.
type ConditionResult int

const (
	ConditionFalse ConditionResult = iota
	ConditionTrue
	// ConditionUndefined means the key's set is undefined and membership
	// cannot be decided from the index.
	ConditionUndefined
)

// String returns the string representation of the result.
func (c ConditionResult) String() string {
	switch c {
	case ConditionFalse:
		return "false"
	case ConditionTrue:
		return "true"
	default:
		return "undefined"
	}
}

// Default configuration values.
const (
	DefaultEntryLimit       = 4000
	DefaultSubstringLength  = 6
	DefaultCursorEntryLimit = 100000

	// FilterCandidateThreshold is the candidate count at or below which
	// filter evaluation stops reading further indexes.
	FilterCandidateThreshold = 10
)

// AttributeIndexConfig describes the indexes of one attribute.
type AttributeIndexConfig struct {
	Attribute       string
	Types           []IndexType
	EntryLimit      int
	SubstringLength int
	ExtensibleRules []string
}

// Has reports whether t is enabled.
func (c AttributeIndexConfig) Has(t IndexType) bool {
	for _, x := range c.Types {
		if x == t {
			return true
		}
	}
	return false
}

func (c AttributeIndexConfig) substringLength() int {
	if c.SubstringLength <= 0 {
		return DefaultSubstringLength
	}
	return c.SubstringLength
}

// ConfigChangeResult reports the outcome of an online index
// reconfiguration.
type ConfigChangeResult struct {
	Success             bool
	AdminActionRequired bool
	Messages            []string
}

func (r *ConfigChangeResult) requireRebuild(format string, args ...interface{}) {
	r.AdminActionRequired = true
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
