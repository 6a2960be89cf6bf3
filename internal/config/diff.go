package config

import (
	"reflect"
	"sort"
	"strings"
)

// IndexChanges lists the attributes whose index configuration differs
// between two configs.
type IndexChanges struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether no index configuration changed.
func (c IndexChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// DiffIndexes compares the index sections of two configs. Attribute names
// are compared case-insensitively and reported in lower case.
func DiffIndexes(oldCfg, newCfg *Config) IndexChanges {
	before := indexMap(oldCfg)
	after := indexMap(newCfg)

	var changes IndexChanges
	for name, ic := range after {
		prev, ok := before[name]
		switch {
		case !ok:
			changes.Added = append(changes.Added, name)
		case !sameIndex(prev, ic):
			changes.Modified = append(changes.Modified, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			changes.Removed = append(changes.Removed, name)
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Removed)
	sort.Strings(changes.Modified)
	return changes
}

func indexMap(cfg *Config) map[string]IndexConfig {
	m := make(map[string]IndexConfig)
	if cfg == nil {
		return m
	}
	for _, ic := range cfg.Indexes {
		m[strings.ToLower(ic.Attribute)] = ic
	}
	return m
}

func sameIndex(a, b IndexConfig) bool {
	if a.SubstringLength != b.SubstringLength || a.Limit(-1) != b.Limit(-1) {
		return false
	}
	return reflect.DeepEqual(lowerSorted(a.Types), lowerSorted(b.Types)) &&
		reflect.DeepEqual(lowerSorted(a.ExtensibleRules), lowerSorted(b.ExtensibleRules))
}

func lowerSorted(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	sort.Strings(out)
	return out
}
