package entry

import (
	"strconv"

	"github.com/pkg/errors"
)

// Modification errors.
var (
	ErrNoSuchAttribute = errors.New("entry: no such attribute")
	ErrNotInteger      = errors.New("entry: attribute value is not an integer")
)

// ModOp is a modification type.
type ModOp int

const (
	ModAdd ModOp = iota
	ModDelete
	ModReplace
	ModIncrement
)

// String returns the LDIF name of the operation.
func (op ModOp) String() string {
	switch op {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	case ModIncrement:
		return "increment"
	default:
		return "unknown"
	}
}

// Modification is one change of a modify operation.
type Modification struct {
	Op        ModOp
	Attribute string
	Values    [][]byte
}

// Apply applies mods to e in order.
func Apply(e *Entry, mods []Modification) error {
	for _, m := range mods {
		switch m.Op {
		case ModAdd:
			e.AddValues(m.Attribute, m.Values...)
		case ModDelete:
			if !e.HasAttribute(m.Attribute) {
				return errors.Wrapf(ErrNoSuchAttribute, "delete %s", m.Attribute)
			}
			if len(m.Values) == 0 {
				e.SetAttribute(m.Attribute)
			} else {
				e.RemoveValues(m.Attribute, m.Values...)
			}
		case ModReplace:
			e.SetAttribute(m.Attribute, m.Values...)
		case ModIncrement:
			if err := increment(e, m); err != nil {
				return err
			}
		default:
			return errors.Errorf("entry: unknown modification %d", m.Op)
		}
	}
	return nil
}

func increment(e *Entry, m Modification) error {
	if len(m.Values) != 1 {
		return errors.Wrapf(ErrNotInteger, "increment %s needs exactly one value", m.Attribute)
	}
	delta, err := strconv.ParseInt(string(m.Values[0]), 10, 64)
	if err != nil {
		return errors.Wrapf(ErrNotInteger, "increment %s", m.Attribute)
	}
	current := e.Values(m.Attribute)
	if len(current) == 0 {
		return errors.Wrapf(ErrNoSuchAttribute, "increment %s", m.Attribute)
	}
	out := make([][]byte, len(current))
	for i, v := range current {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return errors.Wrapf(ErrNotInteger, "increment %s value %q", m.Attribute, v)
		}
		out[i] = []byte(strconv.FormatInt(n+delta, 10))
	}
	e.SetAttribute(m.Attribute, out...)
	return nil
}

// ModifiedAttributes returns the distinct attribute names touched by mods.
func ModifiedAttributes(mods []Modification) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mods {
		key := normalizeAttrName(m.Attribute)
		if !seen[key] {
			seen[key] = true
			out = append(out, m.Attribute)
		}
	}
	return out
}
