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

// Add stores a new entry. Its parent must exist unless the entry is the
// container suffix. The entry is stored under its normalized DN together
// with createTimestamp, modifyTimestamp and entryUUID.
func (ec *EntryContainer) Add(ctx context.Context, e *entry.Entry) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	if e == nil {
		return ErrInvalidEntry
	}
	dn, err := ec.normalize("add", e.DN)
	if err != nil {
		return err
	}

	stored := e.Clone()
	stored.DN = dn
	setCreateAttrs(stored)
	id := ec.allocateID()

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return ec.RunTransacted(ctx, TransactedOperation{
		Name: "add",
		Invoke: func(txn *tx.Transaction) error {
			return ec.addEntry(txn, id, stored)
		},
		PostCommit: func() {
			ec.cacheEntry(id, stored)
			ec.changes.Publish(stream.ChangeEvent{Operation: stream.OpAdd, DN: dn, Entry: stored})
		},
	})
}

func (ec *EntryContainer) addEntry(txn *tx.Transaction, id index.EntryID, e *entry.Entry) error {
	_, err := ec.lookupID(txn, e.DN, storage.LockRMW)
	if err == nil {
		return opError("add", e.DN, ErrEntryExists)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	var ancestors []index.EntryID
	if !ec.isSuffix(e.DN) {
		parent := entry.ParentDN(e.DN)
		if _, err := ec.lookupID(txn, parent, storage.LockShared); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ec.notFound(txn, "add", e.DN)
			}
			return err
		}
		if ancestors, err = ec.ancestorIDs(txn, e.DN); err != nil {
			return err
		}
	}

	value, err := ec.codec.Encode(e)
	if err != nil {
		return err
	}
	if err := txn.Put(ec.dn2id, []byte(e.DN), id.Bytes()); err != nil {
		return err
	}
	if err := txn.Put(ec.id2entry, id.Bytes(), value); err != nil {
		return err
	}
	if err := ec.linkHierarchy(txn, id, ancestors); err != nil {
		return err
	}
	for _, ai := range ec.attributeIndexes() {
		if _, err := ai.AddEntry(txn, id, e); err != nil {
			return err
		}
	}
	return nil
}

// linkHierarchy records id as a child of ancestors[0] and as a subtree
// member of every ancestor.
func (ec *EntryContainer) linkHierarchy(w storage.Writer, id index.EntryID, ancestors []index.EntryID) error {
	if len(ancestors) == 0 {
		return nil
	}
	if _, err := ec.id2children.InsertID(w, ancestors[0].Bytes(), id); err != nil {
		return err
	}
	for _, a := range ancestors {
		if _, err := ec.id2subtree.InsertID(w, a.Bytes(), id); err != nil {
			return err
		}
	}
	return nil
}

func (ec *EntryContainer) unlinkHierarchy(w storage.Writer, id index.EntryID, ancestors []index.EntryID) error {
	if len(ancestors) == 0 {
		return nil
	}
	if err := ec.id2children.RemoveID(w, ancestors[0].Bytes(), id); err != nil {
		return err
	}
	for _, a := range ancestors {
		if err := ec.id2subtree.RemoveID(w, a.Bytes(), id); err != nil {
			return err
		}
	}
	return nil
}
