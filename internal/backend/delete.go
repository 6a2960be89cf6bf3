package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
	"github.com/KilimcininKorOglu/obaidx/internal/stream"
)

// Delete removes the leaf entry dn.
func (ec *EntryContainer) Delete(ctx context.Context, dn string) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	norm, err := ec.normalize("delete", dn)
	if err != nil {
		return err
	}

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	var removed deletedEntry
	return ec.RunTransacted(ctx, TransactedOperation{
		Name: "delete",
		Invoke: func(txn *tx.Transaction) error {
			id, err := ec.lookupID(txn, norm, storage.LockRMW)
			if errors.Is(err, storage.ErrNotFound) {
				return ec.notFound(txn, "delete", norm)
			}
			if err != nil {
				return err
			}
			nonLeaf, err := ec.hasChildren(txn, id, norm)
			if err != nil {
				return err
			}
			if nonLeaf {
				return opError("delete", norm, ErrNotAllowedOnNonLeaf)
			}
			e, err := ec.deleteEntry(txn, norm, id)
			removed = deletedEntry{dn: norm, id: id, entry: e}
			return err
		},
		PostCommit: func() {
			ec.afterDelete(removed)
		},
	})
}

// DeleteSubtree removes dn and every entry below it. The number of entries
// is checked against SubtreeDeleteSizeLimit before anything is removed.
// Entries are deleted leaves first in transactions of at most
// SubtreeDeleteBatchSize entries, so a failure part way leaves a smaller
// but consistent subtree behind. It returns the number of entries removed.
func (ec *EntryContainer) DeleteSubtree(ctx context.Context, dn string) (int, error) {
	if err := ec.checkOpen(); err != nil {
		return 0, err
	}
	norm, err := ec.normalize("deleteSubtree", dn)
	if err != nil {
		return 0, err
	}

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	apex, err := ec.lookupID(ec.store, norm, storage.LockNone)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ec.notFound(ec.store, "deleteSubtree", norm)
	}
	if err != nil {
		return 0, err
	}
	if limit := ec.cfg.SubtreeDeleteSizeLimit; limit > 0 {
		n, err := ec.countSubtree(apex, norm)
		if err != nil {
			return 0, err
		}
		if n+1 > limit {
			return 0, &OperationError{Op: "deleteSubtree", DN: norm,
				Err: errors.Wrapf(ErrAdminLimitExceeded, "%d entries, limit %d", n+1, limit)}
		}
	}

	logger := ec.logger.WithFields("dn", norm)
	total := 0
	for {
		var batch []deletedEntry
		err := ec.RunTransacted(ctx, TransactedOperation{
			Name: "deleteSubtree",
			Begin: func() {
				batch = batch[:0]
			},
			Invoke: func(txn *tx.Transaction) error {
				return ec.deleteBatch(txn, norm, &batch)
			},
			PostCommit: func() {
				for _, d := range batch {
					ec.afterDelete(d)
				}
			},
		})
		if err != nil {
			return total, err
		}
		total += len(batch)
		if len(batch) == 0 {
			break
		}
		logger.Debug("subtree delete batch committed", "entries", len(batch), "total", total)
	}

	var removed deletedEntry
	err = ec.RunTransacted(ctx, TransactedOperation{
		Name: "deleteSubtree",
		Invoke: func(txn *tx.Transaction) error {
			id, err := ec.lookupID(txn, norm, storage.LockRMW)
			if errors.Is(err, storage.ErrNotFound) {
				return ec.notFound(txn, "deleteSubtree", norm)
			}
			if err != nil {
				return err
			}
			e, err := ec.deleteEntry(txn, norm, id)
			removed = deletedEntry{dn: norm, id: id, entry: e}
			return err
		},
		PostCommit: func() {
			ec.afterDelete(removed)
		},
	})
	if err != nil {
		return total, err
	}
	total++
	logger.Info("subtree deleted", "entries", total)
	return total, nil
}

// deleteBatch deletes up to one batch of descendants of dn. Walking the
// reversed dn2id keys backwards visits every entry before its ancestors.
func (ec *EntryContainer) deleteBatch(txn *tx.Transaction, dn string, batch *[]deletedEntry) error {
	type victim struct {
		dn string
		id index.EntryID
	}
	lower, upper := subtreeBounds(dn)
	c, err := txn.NewCursor(ec.dn2id, lower, upper)
	if err != nil {
		return err
	}
	var victims []victim
	for ok := c.Last(); ok && len(victims) < ec.cfg.SubtreeDeleteBatchSize; ok = c.Prev() {
		id, err := index.EntryIDFromBytes(c.Value())
		if err != nil {
			c.Close()
			return err
		}
		victims = append(victims, victim{dn: string(c.Key()), id: id})
	}
	err = c.Error()
	c.Close()
	if err != nil {
		return err
	}
	for _, v := range victims {
		e, err := ec.deleteEntry(txn, v.dn, v.id)
		if err != nil {
			return err
		}
		*batch = append(*batch, deletedEntry{dn: v.dn, id: v.id, entry: e})
	}
	return nil
}

// deletedEntry records an entry removed by a transaction until it commits.
type deletedEntry struct {
	dn    string
	id    index.EntryID
	entry *entry.Entry
}

// afterDelete drops a committed deletion from the cache and publishes it.
func (ec *EntryContainer) afterDelete(d deletedEntry) {
	ec.uncacheEntry(d.id)
	ec.changes.Publish(stream.ChangeEvent{Operation: stream.OpDelete, DN: d.dn, Entry: d.entry})
}

// deleteEntry removes one entry with its hierarchy links and index keys
// and returns the removed entry.
func (ec *EntryContainer) deleteEntry(txn *tx.Transaction, dn string, id index.EntryID) (*entry.Entry, error) {
	e, err := ec.readEntry(txn, id, storage.LockRMW)
	if err != nil {
		return nil, errors.Wrapf(err, "backend: read entry %s", id)
	}
	ancestors, err := ec.ancestorIDs(txn, dn)
	if err != nil {
		return nil, err
	}
	if err := ec.unlinkHierarchy(txn, id, ancestors); err != nil {
		return nil, err
	}
	for _, ai := range ec.attributeIndexes() {
		if err := ai.RemoveEntry(txn, id, e); err != nil {
			return nil, err
		}
	}
	for _, key := range []struct {
		t *storage.Table
		k []byte
	}{
		{ec.id2children.Table(), id.Bytes()},
		{ec.id2subtree.Table(), id.Bytes()},
		{ec.id2entry, id.Bytes()},
		{ec.dn2id, []byte(dn)},
	} {
		if err := txn.Delete(key.t, key.k); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// countSubtree returns the number of strict descendants of dn.
func (ec *EntryContainer) countSubtree(id index.EntryID, dn string) (int, error) {
	if set := ec.id2subtree.ReadKey(ec.store, id.Bytes()); set.IsDefined() {
		return set.Len(), nil
	}
	lower, upper := subtreeBounds(dn)
	c, err := ec.store.NewCursor(ec.dn2id, lower, upper)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	n := 0
	for ok := c.First(); ok; ok = c.Next() {
		n++
	}
	return n, c.Error()
}

// isWithin reports whether dn equals base or lies below it.
func isWithin(dn, base string) bool {
	return dn == base || entry.IsDescendant(dn, base)
}
