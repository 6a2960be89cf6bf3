package backend

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
	"github.com/KilimcininKorOglu/obaidx/internal/stream"
)

// Modify applies mods to the entry dn in order and refreshes its
// modifyTimestamp. Values of the RDN cannot be removed.
func (ec *EntryContainer) Modify(ctx context.Context, dn string, mods []entry.Modification) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	norm, err := ec.normalize("modify", dn)
	if err != nil {
		return err
	}
	all := make([]entry.Modification, 0, len(mods)+1)
	all = append(all, mods...)
	all = append(all, modifyTimestampMod())

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	var (
		id      index.EntryID
		updated *entry.Entry
	)
	return ec.RunTransacted(ctx, TransactedOperation{
		Name: "modify",
		Invoke: func(txn *tx.Transaction) error {
			var err error
			id, err = ec.lookupID(txn, norm, storage.LockRMW)
			if errors.Is(err, storage.ErrNotFound) {
				return ec.notFound(txn, "modify", norm)
			}
			if err != nil {
				return err
			}
			old, err := ec.readEntry(txn, id, storage.LockRMW)
			if err != nil {
				return err
			}
			updated = old.Clone()
			if err := entry.Apply(updated, all); err != nil {
				return &OperationError{Op: "modify", DN: norm, Err: errors.Wrap(ErrConstraintViolation, err.Error())}
			}
			if attr, ok := missingRDNValue(updated, norm); !ok {
				return &OperationError{Op: "modify", DN: norm, Err: errors.Wrap(ErrNotAllowedOnRDN, attr)}
			}
			value, err := ec.codec.Encode(updated)
			if err != nil {
				return err
			}
			if err := txn.Put(ec.id2entry, id.Bytes(), value); err != nil {
				return err
			}
			for _, ai := range ec.attributeIndexes() {
				if err := ai.ModifyEntry(txn, id, old, updated, all); err != nil {
					return err
				}
			}
			return nil
		},
		PostCommit: func() {
			ec.cacheEntry(id, updated)
			ec.changes.Publish(stream.ChangeEvent{Operation: stream.OpModify, DN: norm, Entry: updated})
		},
	})
}

// missingRDNValue checks that e still holds every value of the RDN of dn.
// On failure it returns the attribute whose value is gone.
func missingRDNValue(e *entry.Entry, dn string) (string, bool) {
	for attr, value := range entry.RDNValues(entry.RDN(dn)) {
		if !hasValueFold(e.Values(attr), value) {
			return attr, false
		}
	}
	return "", true
}

func hasValueFold(values [][]byte, v string) bool {
	for _, have := range values {
		if strings.EqualFold(strings.Join(strings.Fields(string(have)), " "), v) {
			return true
		}
	}
	return false
}
