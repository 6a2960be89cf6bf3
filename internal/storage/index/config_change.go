package index

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

// ErrInvalidEntryLimit is returned for a negative entry limit.
var ErrInvalidEntryLimit = errors.New("index: entry limit must not be negative")

// IsConfigurationAcceptable checks that every requested index type has a
// matching rule for the attribute. It creates nothing.
func (ai *AttributeIndex) IsConfigurationAcceptable(cfg AttributeIndexConfig) error {
	if cfg.SubstringLength < 0 {
		return errors.Wrapf(ErrInvalidSubstringLength, "%s: %d", ai.attr.NameOrOID(), cfg.SubstringLength)
	}
	if cfg.EntryLimit < 0 {
		return errors.Wrapf(ErrInvalidEntryLimit, "%s: %d", ai.attr.NameOrOID(), cfg.EntryLimit)
	}
	for _, t := range []IndexType{IndexEquality, IndexSubstring, IndexOrdering, IndexApproximate} {
		if !cfg.Has(t) {
			continue
		}
		if _, err := ai.newIndexer(t, cfg); err != nil {
			return err
		}
	}
	if cfg.Has(IndexExtensible) {
		if len(cfg.ExtensibleRules) == 0 {
			return errors.Wrap(ErrNoExtensibleRules, ai.attr.NameOrOID())
		}
		for _, name := range cfg.ExtensibleRules {
			if _, ok := ai.schema.ExtensibleRule(name); !ok {
				return errors.Wrapf(ErrUnknownExtensibleRule, "%s: %s", ai.attr.NameOrOID(), name)
			}
		}
	}
	return nil
}

// ApplyConfigurationChange reconciles the physical indexes with cfg.
// The whole change runs under the exclusive lock, which is taken before
// the attribute lock. Dropped indexes lose their state records through w.
// New indexes start untrusted and the result then asks for a rebuild.
func (ai *AttributeIndex) ApplyConfigurationChange(w storage.Writer, cfg AttributeIndexConfig) ConfigChangeResult {
	if err := ai.IsConfigurationAcceptable(cfg); err != nil {
		return ConfigChangeResult{Messages: []string{err.Error()}}
	}

	ai.exclusive.Lock()
	defer ai.exclusive.Unlock()
	ai.mu.Lock()
	defer ai.mu.Unlock()

	res := ConfigChangeResult{Success: true}
	for _, t := range BuiltinIndexTypes {
		if err := ai.applyChangeToIndex(w, t, cfg, &res); err != nil {
			res.Success = false
			res.Messages = append(res.Messages, err.Error())
			return res
		}
	}
	if err := ai.applyChangeToExtensible(w, cfg, &res); err != nil {
		res.Success = false
		res.Messages = append(res.Messages, err.Error())
		return res
	}
	ai.cfg = cfg
	ai.logger.Info("index configuration applied",
		"types", len(cfg.Types), "entry_limit", cfg.EntryLimit, "admin_action", res.AdminActionRequired)
	return res
}

func (ai *AttributeIndex) applyChangeToIndex(w storage.Writer, t IndexType, cfg AttributeIndexConfig, res *ConfigChangeResult) error {
	ix := ai.builtin[t]
	if !cfg.Has(t) {
		if ix != nil {
			delete(ai.builtin, t)
			return ai.removeIndex(w, ix)
		}
		return nil
	}
	if ix == nil {
		ix, err := ai.openBuiltin(t, cfg)
		if err != nil {
			return err
		}
		ai.builtin[t] = ix
		if !ix.IsTrusted() {
			res.requireRebuild("index %s must be rebuilt before it can be used", ix.Name())
		}
		return nil
	}
	if ix.SetIndexEntryLimit(cfg.EntryLimit) {
		res.requireRebuild("index %s must be rebuilt for the new entry limit to apply to existing keys", ix.Name())
	}
	if t == IndexSubstring && cfg.substringLength() != ai.cfg.substringLength() {
		indexer, err := ai.newIndexer(t, cfg)
		if err != nil {
			return err
		}
		ix.SetIndexer(indexer)
		res.requireRebuild("index %s must be rebuilt for the new substring length", ix.Name())
	}
	return nil
}

func (ai *AttributeIndex) applyChangeToExtensible(w storage.Writer, cfg AttributeIndexConfig, res *ConfigChangeResult) error {
	valid := make(map[string]schema.ExtensibleRule)
	if cfg.Has(IndexExtensible) {
		for _, name := range cfg.ExtensibleRules {
			rule, ok := ai.schema.ExtensibleRule(name)
			if !ok {
				ai.logger.Error("unknown extensible matching rule", "rule", name)
				continue
			}
			valid[rule.OID()] = rule
		}
	}

	oids := make([]string, 0, len(valid))
	for oid := range valid {
		oids = append(oids, oid)
	}
	sort.Strings(oids)

	// Added rules are registered before removed ones are released so that
	// a shared index stays alive while another configured rule needs it.
	for _, oid := range oids {
		rule := valid[oid]
		if ai.ext.hasRule(oid) {
			for _, ext := range rule.Indexers() {
				if ix := ai.ext.index(ext.IndexID()); ix != nil && ix.SetIndexEntryLimit(cfg.EntryLimit) {
					res.requireRebuild("index %s must be rebuilt for the new entry limit to apply to existing keys", ix.Name())
				}
			}
			continue
		}
		var opened []*Index
		open := ai.extensibleOpener(cfg)
		err := ai.ext.addRule(rule, func(ext schema.ExtensibleIndexer) (*Index, error) {
			ix, err := open(ext)
			if err == nil {
				opened = append(opened, ix)
			}
			return ix, err
		})
		if err != nil {
			return err
		}
		for _, ix := range opened {
			if !ix.IsTrusted() {
				res.requireRebuild("index %s must be rebuilt before it can be used", ix.Name())
			}
		}
	}

	for _, oid := range ai.ext.ruleOIDs() {
		if _, keep := valid[oid]; keep {
			continue
		}
		for _, ix := range ai.ext.removeRule(oid) {
			if err := ai.removeIndex(w, ix); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ai *AttributeIndex) removeIndex(w storage.Writer, ix *Index) error {
	ai.logger.Info("dropping index", "index", ix.Name())
	return ix.Drop(w)
}
