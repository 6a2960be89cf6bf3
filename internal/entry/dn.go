package entry

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidDN is returned for DNs that cannot be parsed.
var ErrInvalidDN = errors.New("entry: invalid DN")

// SplitDN splits a DN into its RDN components, honoring backslash escapes.
func SplitDN(dn string) ([]string, error) {
	if strings.TrimSpace(dn) == "" {
		return nil, nil
	}
	var rdns []string
	start := 0
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			rdns = append(rdns, dn[start:i])
			start = i + 1
		}
	}
	rdns = append(rdns, dn[start:])
	for _, r := range rdns {
		if !strings.Contains(r, "=") {
			return nil, errors.Wrapf(ErrInvalidDN, "%q", dn)
		}
	}
	return rdns, nil
}

// NormalizeDN returns the canonical form of dn: attribute names and values
// lower-cased, surrounding whitespace removed, multi-valued RDN components
// sorted.
func NormalizeDN(dn string) (string, error) {
	rdns, err := SplitDN(dn)
	if err != nil {
		return "", err
	}
	for i, r := range rdns {
		rdns[i] = normalizeRDN(r)
	}
	return strings.Join(rdns, ","), nil
}

func normalizeRDN(rdn string) string {
	var parts []string
	start := 0
	for i := 0; i < len(rdn); i++ {
		switch rdn[i] {
		case '\\':
			i++
		case '+':
			parts = append(parts, rdn[start:i])
			start = i + 1
		}
	}
	parts = append(parts, rdn[start:])
	for i, p := range parts {
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			parts[i] = strings.ToLower(strings.TrimSpace(p))
			continue
		}
		name := normalizeAttrName(p[:eq])
		value := strings.ToLower(strings.Join(strings.Fields(p[eq+1:]), " "))
		parts[i] = name + "=" + value
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

func normalizeAttrName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParentDN returns the parent of a normalized DN, or "" for a single RDN.
func ParentDN(dn string) string {
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			return dn[i+1:]
		}
	}
	return ""
}

// RDN returns the first RDN of dn.
func RDN(dn string) string {
	parent := ParentDN(dn)
	if parent == "" {
		return dn
	}
	return dn[:len(dn)-len(parent)-1]
}

// RDNValues returns the attribute/value pairs of an RDN.
func RDNValues(rdn string) map[string]string {
	out := make(map[string]string)
	start := 0
	add := func(p string) {
		if eq := strings.IndexByte(p, '='); eq > 0 {
			out[strings.TrimSpace(p[:eq])] = strings.TrimSpace(p[eq+1:])
		}
	}
	for i := 0; i < len(rdn); i++ {
		switch rdn[i] {
		case '\\':
			i++
		case '+':
			add(rdn[start:i])
			start = i + 1
		}
	}
	add(rdn[start:])
	return out
}

// JoinDN joins an RDN and a parent DN.
func JoinDN(rdn, parent string) string {
	if parent == "" {
		return rdn
	}
	return rdn + "," + parent
}

// IsDescendant reports whether dn lies strictly below base. Both must be
// normalized.
func IsDescendant(dn, base string) bool {
	if base == "" {
		return dn != ""
	}
	return strings.HasSuffix(dn, ","+base)
}

// RenameDN replaces the oldBase suffix of dn with newBase.
func RenameDN(dn, oldBase, newBase string) string {
	if dn == oldBase {
		return newBase
	}
	return strings.TrimSuffix(dn, oldBase) + newBase
}

// Depth returns the number of RDNs in a normalized DN.
func Depth(dn string) int {
	if dn == "" {
		return 0
	}
	n := 1
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			n++
		}
	}
	return n
}
