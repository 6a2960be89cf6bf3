package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
)

// rebuildBatchSize is the number of entries buffered between rebuild commits.
const rebuildBatchSize = 1000

// toIndexConfig converts a configuration block to an attribute index
// configuration.
func toIndexConfig(ic config.IndexConfig) (index.AttributeIndexConfig, error) {
	types := make([]index.IndexType, 0, len(ic.Types))
	for _, s := range ic.Types {
		t, err := index.ParseIndexType(s)
		if err != nil {
			return index.AttributeIndexConfig{}, errors.Wrapf(err, "index %s", ic.Attribute)
		}
		types = append(types, t)
	}
	return index.AttributeIndexConfig{
		Attribute:       ic.Attribute,
		Types:           types,
		EntryLimit:      ic.Limit(config.DefaultEntryLimit),
		SubstringLength: ic.SubstringLength,
		ExtensibleRules: ic.ExtensibleRules,
	}, nil
}

func (ec *EntryContainer) newAttributeIndex(cfg index.AttributeIndexConfig) (*index.AttributeIndex, error) {
	return index.NewAttributeIndex(ec.store, cfg, index.AttributeIndexOptions{
		Schema:           ec.schema,
		State:            ec.state,
		Logger:           ec.logger,
		CursorEntryLimit: ec.cfg.CursorEntryLimit,
		ExclusiveLock:    &ec.mu,
	})
}

// IsIndexConfigAcceptable checks ic without changing anything.
func (ec *EntryContainer) IsIndexConfigAcceptable(ic config.IndexConfig) error {
	cfg, err := toIndexConfig(ic)
	if err != nil {
		return err
	}
	if ai := ec.attributeIndex(ic.Attribute); ai != nil {
		return ai.IsConfigurationAcceptable(cfg)
	}
	_, err = index.NewAttributeIndex(ec.store, cfg, index.AttributeIndexOptions{Schema: ec.schema})
	return err
}

// ApplyIndexConfig creates or reconfigures the index of one attribute. New
// indexes on a container that already holds entries start untrusted and
// the result asks for a rebuild; on an empty container they are trusted
// at once.
func (ec *EntryContainer) ApplyIndexConfig(ctx context.Context, ic config.IndexConfig) (index.ConfigChangeResult, error) {
	if err := ec.checkOpen(); err != nil {
		return index.ConfigChangeResult{}, err
	}
	cfg, err := toIndexConfig(ic)
	if err != nil {
		return index.ConfigChangeResult{Messages: []string{err.Error()}}, err
	}
	ec.admin.Lock()
	defer ec.admin.Unlock()

	if ai := ec.attributeIndex(ic.Attribute); ai != nil {
		var res index.ConfigChangeResult
		err := ec.RunTransacted(ctx, TransactedOperation{
			Name: "applyIndexConfig",
			Invoke: func(txn *tx.Transaction) error {
				res = ai.ApplyConfigurationChange(txn, cfg)
				if !res.Success {
					return errors.Errorf("backend: index %s: %v", ai.Name(), res.Messages)
				}
				return nil
			},
		})
		if err != nil {
			return res, err
		}
		if res.AdminActionRequired {
			if err := ec.trustIfEmpty(ctx, ai, &res); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ai, err := ec.newAttributeIndex(cfg)
	if err != nil {
		return index.ConfigChangeResult{Messages: []string{err.Error()}}, err
	}
	res := index.ConfigChangeResult{Success: true}
	if !ai.IsTrusted() {
		res.AdminActionRequired = true
		res.Messages = append(res.Messages, "index "+ai.Name()+" must be rebuilt before it can be used")
		if err := ec.trustIfEmpty(ctx, ai, &res); err != nil {
			return res, err
		}
	}
	ec.attrIndexes.Store(ec.attributeKey(ic.Attribute), ai)
	ec.logger.Info("attribute index added", "attribute", ai.Name(), "trusted", ai.IsTrusted())
	return res, nil
}

// trustIfEmpty marks ai trusted when the container has no entries, since
// there is nothing to rebuild.
func (ec *EntryContainer) trustIfEmpty(ctx context.Context, ai *index.AttributeIndex, res *index.ConfigChangeResult) error {
	empty, err := ec.isEmpty()
	if err != nil || !empty {
		return err
	}
	err = ec.RunTransacted(ctx, TransactedOperation{
		Name: "trustIndex",
		Invoke: func(txn *tx.Transaction) error {
			return ai.SetTrusted(txn, true)
		},
	})
	if err != nil {
		return err
	}
	res.AdminActionRequired = false
	res.Messages = nil
	return nil
}

// RemoveIndex drops every physical index of an attribute.
func (ec *EntryContainer) RemoveIndex(ctx context.Context, attr string) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	ec.admin.Lock()
	defer ec.admin.Unlock()

	key := ec.attributeKey(attr)
	ai, ok := ec.attrIndexes.LoadAndDelete(key)
	if !ok {
		return errors.Wrap(ErrIndexNotFound, attr)
	}
	err := ec.RunTransacted(ctx, TransactedOperation{
		Name: "removeIndex",
		Invoke: func(txn *tx.Transaction) error {
			return ai.Drop(txn)
		},
	})
	if err != nil {
		return err
	}
	ec.logger.Info("attribute index removed", "attribute", ai.Name())
	return nil
}

// OrphanedIndexes returns the names of stored indexes that no loaded
// attribute index owns, such as those of attributes since dropped from
// the configuration.
func (ec *EntryContainer) OrphanedIndexes() ([]string, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	names, err := ec.state.Names(ec.store)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool)
	for _, ai := range ec.attributeIndexes() {
		for _, ix := range ai.AllIndexes() {
			owned[ix.Name()] = true
		}
	}
	var out []string
	for _, name := range names {
		if !owned[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// DropOrphanedIndex deletes the keys and state record of a stored index
// returned by OrphanedIndexes.
func (ec *EntryContainer) DropOrphanedIndex(ctx context.Context, name string) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	ec.admin.Lock()
	defer ec.admin.Unlock()

	orphans, err := ec.OrphanedIndexes()
	if err != nil {
		return err
	}
	found := false
	for _, o := range orphans {
		found = found || o == name
	}
	if !found {
		return errors.Wrap(ErrIndexNotFound, name)
	}
	ix, err := index.Open(ec.store, name, index.Options{State: ec.state, Logger: ec.logger})
	if err != nil {
		return err
	}
	err = ec.RunTransacted(ctx, TransactedOperation{
		Name: "dropIndex",
		Invoke: func(txn *tx.Transaction) error {
			return ix.Drop(txn)
		},
	})
	if err != nil {
		return err
	}
	ec.logger.Info("orphaned index dropped", "index", name)
	return nil
}

// RebuildIndex drops the index of attr and fills it again from id2entry.
// Entry operations wait while the index is filled. The index is trusted
// again only if the rebuild completes.
func (ec *EntryContainer) RebuildIndex(ctx context.Context, attr string) (int, error) {
	if err := ec.checkOpen(); err != nil {
		return 0, err
	}
	ec.admin.Lock()
	defer ec.admin.Unlock()

	key := ec.attributeKey(attr)
	old, ok := ec.attrIndexes.Load(key)
	if !ok {
		return 0, errors.Wrap(ErrIndexNotFound, attr)
	}
	cfg := old.Config()
	ec.attrIndexes.Delete(key)
	err := ec.RunTransacted(ctx, TransactedOperation{
		Name: "rebuildIndex",
		Invoke: func(txn *tx.Transaction) error {
			return old.Drop(txn)
		},
	})
	if err != nil {
		return 0, err
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ai, err := ec.newAttributeIndex(cfg)
	if err != nil {
		return 0, err
	}
	ec.attrIndexes.Store(key, ai)

	logger := ec.logger.WithFields("attribute", ai.Name())
	logger.Info("index rebuild started")
	ai.SetRebuildStatus(true)
	defer ai.SetRebuildStatus(false)

	n, err := ec.fillIndex(ctx, ai)
	if err != nil {
		logger.Error("index rebuild failed", "entries", n, "error", err)
		return n, err
	}
	err = ec.RunTransacted(ctx, TransactedOperation{
		Name: "rebuildIndex",
		Invoke: func(txn *tx.Transaction) error {
			return ai.SetTrusted(txn, true)
		},
	})
	if err != nil {
		return n, err
	}
	logger.Info("index rebuild finished", "entries", n)
	return n, nil
}

// fillIndex adds every stored entry to ai through a buffer that is flushed
// every rebuildBatchSize entries.
func (ec *EntryContainer) fillIndex(ctx context.Context, ai *index.AttributeIndex) (int, error) {
	c, err := ec.store.NewCursor(ec.id2entry, nil, nil)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	buf := index.NewBuffer()
	pending, total := 0, 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		err := ec.RunTransacted(ctx, TransactedOperation{
			Name: "rebuildIndex",
			Invoke: func(txn *tx.Transaction) error {
				return buf.Flush(txn)
			},
		})
		if err != nil {
			return err
		}
		total += pending
		pending = 0
		buf = index.NewBuffer()
		return nil
	}
	for ok := c.First(); ok; ok = c.Next() {
		id, err := index.EntryIDFromBytes(c.Key())
		if err != nil {
			return total, err
		}
		e, err := ec.codec.Decode(c.Value())
		if err != nil {
			return total, errors.Wrapf(err, "backend: decode entry %s", id)
		}
		ai.AddEntryBuffered(buf, id, e)
		if pending++; pending >= rebuildBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := c.Error(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// VerifyReport summarizes an index verification.
type VerifyReport struct {
	Attribute string
	Entries   int
	// Missing lists the DNs of entries with at least one key lacking
	// their ID.
	Missing []string
	// Undefined counts entries that sit under an undefined key and so
	// cannot be checked.
	Undefined int
}

// VerifyIndex checks that every stored entry is present under each of its
// keys in the index of attr.
func (ec *EntryContainer) VerifyIndex(ctx context.Context, attr string) (*VerifyReport, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	ai := ec.attributeIndex(attr)
	if ai == nil {
		return nil, errors.Wrap(ErrIndexNotFound, attr)
	}
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	report := &VerifyReport{Attribute: ai.Name()}
	c, err := ec.store.NewCursor(ec.id2entry, nil, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	for ok := c.First(); ok; ok = c.Next() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id, err := index.EntryIDFromBytes(c.Key())
		if err != nil {
			return report, err
		}
		var e *entry.Entry
		if e, err = ec.codec.Decode(c.Value()); err != nil {
			return report, err
		}
		report.Entries++
		switch res, err := ai.ContainsEntry(ec.store, id, e); {
		case err != nil:
			return report, err
		case res == index.ConditionFalse:
			report.Missing = append(report.Missing, e.DN)
		case res == index.ConditionUndefined:
			report.Undefined++
		}
	}
	return report, c.Error()
}

// AttributeIndexStats describes the indexes of one attribute.
type AttributeIndexStats struct {
	Attribute string
	Types     []string
	Trusted   bool
	Indexes   []index.IndexStats
}

// IndexStats reports every attribute index in name order.
func (ec *EntryContainer) IndexStats() ([]AttributeIndexStats, error) {
	if err := ec.checkOpen(); err != nil {
		return nil, err
	}
	var out []AttributeIndexStats
	for _, ai := range ec.attributeIndexes() {
		stats, err := ai.Stats(ec.store)
		if err != nil {
			return nil, err
		}
		cfg := ai.Config()
		types := make([]string, len(cfg.Types))
		for i, t := range cfg.Types {
			types[i] = t.String()
		}
		out = append(out, AttributeIndexStats{
			Attribute: ai.Name(),
			Types:     types,
			Trusted:   ai.IsTrusted(),
			Indexes:   stats,
		})
	}
	return out, nil
}
