package index

import (
	"sort"

	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// extensibleRegistry tracks the physical indexes of extensible rules. Rules
// whose indexers share an ID share one Index; an Index is released only
// when the last rule depending on it is removed.
type extensibleRegistry struct {
	indexes map[string]*Index                // index ID -> index
	rules   map[string]map[string]struct{}   // index ID -> rule OIDs
	byRule  map[string]schema.ExtensibleRule // rule OID -> rule
}

func newExtensibleRegistry() *extensibleRegistry {
	return &extensibleRegistry{
		indexes: make(map[string]*Index),
		rules:   make(map[string]map[string]struct{}),
		byRule:  make(map[string]schema.ExtensibleRule),
	}
}

// index returns the index registered under id.
func (reg *extensibleRegistry) index(id string) *Index {
	return reg.indexes[id]
}

// hasRule reports whether rule is registered.
func (reg *extensibleRegistry) hasRule(oid string) bool {
	_, ok := reg.byRule[oid]
	return ok
}

// addRule registers rule. open is called for every indexer ID that has no
// index yet.
func (reg *extensibleRegistry) addRule(rule schema.ExtensibleRule, open func(schema.ExtensibleIndexer) (*Index, error)) error {
	for _, ext := range rule.Indexers() {
		id := ext.IndexID()
		if _, ok := reg.indexes[id]; !ok {
			ix, err := open(ext)
			if err != nil {
				return err
			}
			reg.indexes[id] = ix
			reg.rules[id] = make(map[string]struct{})
		}
		reg.rules[id][rule.OID()] = struct{}{}
	}
	reg.byRule[rule.OID()] = rule
	return nil
}

// removeRule unregisters a rule and returns the indexes no longer used by
// any rule. The caller drops them.
func (reg *extensibleRegistry) removeRule(oid string) []*Index {
	rule, ok := reg.byRule[oid]
	if !ok {
		return nil
	}
	delete(reg.byRule, oid)
	var released []*Index
	for _, ext := range rule.Indexers() {
		id := ext.IndexID()
		users, ok := reg.rules[id]
		if !ok {
			continue
		}
		delete(users, oid)
		if len(users) == 0 {
			released = append(released, reg.indexes[id])
			delete(reg.indexes, id)
			delete(reg.rules, id)
		}
	}
	return released
}

// refCount returns the number of rules using the index id.
func (reg *extensibleRegistry) refCount(id string) int {
	return len(reg.rules[id])
}

// hasIndexFor reports whether at least one indexer of rule has an index.
func (reg *extensibleRegistry) hasIndexFor(rule schema.ExtensibleRule) bool {
	for _, ext := range rule.Indexers() {
		if _, ok := reg.indexes[ext.IndexID()]; ok {
			return true
		}
	}
	return false
}

// ruleOIDs returns the registered rule OIDs in sorted order.
func (reg *extensibleRegistry) ruleOIDs() []string {
	out := make([]string, 0, len(reg.byRule))
	for oid := range reg.byRule {
		out = append(out, oid)
	}
	sort.Strings(out)
	return out
}

// all returns the registered indexes ordered by ID.
func (reg *extensibleRegistry) all() []*Index {
	out := make([]*Index, 0, len(reg.indexes))
	for _, id := range sortedKeys(reg.indexes) {
		out = append(out, reg.indexes[id])
	}
	return out
}
