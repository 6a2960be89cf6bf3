package entry

import (
	"bytes"
	"sort"
	"strings"
)

// Entry represents a directory entry.
type Entry struct {
	DN         string
	Attributes map[string][][]byte
}

// NewEntry creates a new Entry with the given DN.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: make(map[string][][]byte),
	}
}

// SetAttribute replaces all values of an attribute.
func (e *Entry) SetAttribute(name string, values ...[]byte) {
	if key, ok := e.lookup(name); ok {
		delete(e.Attributes, key)
	}
	if len(values) == 0 {
		return
	}
	e.Attributes[name] = cloneValues(values)
}

// SetStringAttribute replaces all values of an attribute with string values.
func (e *Entry) SetStringAttribute(name string, values ...string) {
	vals := make([][]byte, len(values))
	for i, v := range values {
		vals[i] = []byte(v)
	}
	e.SetAttribute(name, vals...)
}

// AddValues appends values that are not already present. It returns the
// number of values added.
func (e *Entry) AddValues(name string, values ...[]byte) int {
	key, ok := e.lookup(name)
	if !ok {
		key = name
	}
	existing := e.Attributes[key]
	added := 0
	for _, v := range values {
		if containsValue(existing, v) {
			continue
		}
		existing = append(existing, append([]byte(nil), v...))
		added++
	}
	if len(existing) > 0 {
		e.Attributes[key] = existing
	}
	return added
}

// RemoveValues removes the given values. It returns the number of values
// removed. The attribute disappears when its last value goes.
func (e *Entry) RemoveValues(name string, values ...[]byte) int {
	key, ok := e.lookup(name)
	if !ok {
		return 0
	}
	kept := e.Attributes[key][:0:0]
	removed := 0
	for _, v := range e.Attributes[key] {
		if containsValue(values, v) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		delete(e.Attributes, key)
	} else {
		e.Attributes[key] = kept
	}
	return removed
}

// Values returns the values of the attribute with exactly this name,
// compared case-insensitively. Options are significant.
func (e *Entry) Values(name string) [][]byte {
	if key, ok := e.lookup(name); ok {
		return e.Attributes[key]
	}
	return nil
}

// ValuesFor returns the values of every attribute whose base name (the part
// before any ";option") matches one of names. Values of attributes with
// options are included, in attribute name order.
func (e *Entry) ValuesFor(names []string) [][]byte {
	var out [][]byte
	for _, attr := range e.AttributeNames() {
		base := attr
		if i := strings.IndexByte(attr, ';'); i >= 0 {
			base = attr[:i]
		}
		for _, n := range names {
			if strings.EqualFold(base, n) {
				out = append(out, e.Attributes[attr]...)
				break
			}
		}
	}
	return out
}

// HasAttribute reports whether the attribute is present.
func (e *Entry) HasAttribute(name string) bool {
	_, ok := e.lookup(name)
	return ok
}

// AttributeNames returns the attribute names in sorted order.
func (e *Entry) AttributeNames() []string {
	names := make([]string, 0, len(e.Attributes))
	for n := range e.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := NewEntry(e.DN)
	for name, values := range e.Attributes {
		c.Attributes[name] = cloneValues(values)
	}
	return c
}

func (e *Entry) lookup(name string) (string, bool) {
	if _, ok := e.Attributes[name]; ok {
		return name, true
	}
	for key := range e.Attributes {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}

func cloneValues(values [][]byte) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = append([]byte(nil), v...)
	}
	return out
}

func containsValue(values [][]byte, v []byte) bool {
	for _, x := range values {
		if bytes.Equal(x, v) {
			return true
		}
	}
	return false
}
