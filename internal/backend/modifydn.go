package backend

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
	"github.com/KilimcininKorOglu/obaidx/internal/stream"
)

// ModifyDNRequest represents a request to rename or move an entry.
type ModifyDNRequest struct {
	// DN is the distinguished name of the entry to rename or move.
	DN string
	// NewRDN is the new relative distinguished name.
	NewRDN string
	// DeleteOldRDN removes the values of the old RDN from the entry.
	DeleteOldRDN bool
	// NewSuperior is the optional new parent DN.
	NewSuperior string
}

// movedEntry is one member of a renamed subtree.
type movedEntry struct {
	oldDN, newDN string
	oldID, newID index.EntryID
	old, updated *entry.Entry
}

// ModifyDN renames an entry and moves its whole subtree. When the entry is
// moved below a superior with a higher ID, the subtree is renumbered top
// down so that every entry keeps an ID above its ancestors. IDs picked on
// the first attempt are kept across deadlock retries.
func (ec *EntryContainer) ModifyDN(ctx context.Context, req *ModifyDNRequest) error {
	if err := ec.checkOpen(); err != nil {
		return err
	}
	if req == nil {
		return ErrInvalidEntry
	}
	oldDN, err := ec.normalize("modifyDN", req.DN)
	if err != nil {
		return err
	}
	if ec.isSuffix(oldDN) {
		return &OperationError{Op: "modifyDN", DN: oldDN, Err: errors.Wrap(ErrUnwillingToPerform, "cannot rename the suffix entry")}
	}
	rawRDN := strings.TrimSpace(req.NewRDN)
	newRDN, err := entry.NormalizeDN(rawRDN)
	if err != nil || newRDN == "" || entry.ParentDN(newRDN) != "" {
		return opError("modifyDN", req.NewRDN, ErrInvalidDN)
	}
	newParent := entry.ParentDN(oldDN)
	if req.NewSuperior != "" {
		if newParent, err = ec.normalize("modifyDN", req.NewSuperior); err != nil {
			return err
		}
	}
	if isWithin(newParent, oldDN) {
		return &OperationError{Op: "modifyDN", DN: oldDN, Err: errors.Wrap(ErrUnwillingToPerform, "new superior lies within the entry")}
	}
	newDN := entry.JoinDN(newRDN, newParent)

	ec.mu.RLock()
	defer ec.mu.RUnlock()

	r := &renamer{
		ec:          ec,
		oldDN:       oldDN,
		newDN:       newDN,
		newParent:   newParent,
		rawRDN:      rawRDN,
		deleteOld:   req.DeleteOldRDN,
		allowMove:   req.NewSuperior != "",
		renumbering: make(map[index.EntryID]index.EntryID),
	}
	return ec.RunTransacted(ctx, TransactedOperation{
		Name: "modifyDN",
		Begin: func() {
			r.moved = nil
			r.renumber = false
		},
		Invoke: r.invoke,
		PostCommit: func() {
			for _, m := range r.moved {
				if m.newID != m.oldID {
					ec.uncacheEntry(m.oldID)
				}
				ec.cacheEntry(m.newID, m.updated)
				ec.changes.Publish(stream.ChangeEvent{
					Operation: stream.OpModifyDN, DN: m.newDN, OldDN: m.oldDN, Entry: m.updated,
				})
			}
			ec.logger.Debug("entry renamed", "dn", oldDN, "new_dn", newDN,
				"entries", len(r.moved), "renumbered", r.renumber)
		},
	})
}

type renamer struct {
	ec                      *EntryContainer
	oldDN, newDN, newParent string
	rawRDN                  string
	deleteOld               bool
	allowMove               bool

	// renumbering maps old IDs to the IDs assigned on an earlier attempt.
	renumbering map[index.EntryID]index.EntryID

	moved    []*movedEntry
	renumber bool
}

func (r *renamer) invoke(txn *tx.Transaction) error {
	ec := r.ec
	apexID, err := ec.lookupID(txn, r.oldDN, storage.LockRMW)
	if errors.Is(err, storage.ErrNotFound) {
		return ec.notFound(txn, "modifyDN", r.oldDN)
	}
	if err != nil {
		return err
	}
	if r.newDN != r.oldDN {
		_, err := ec.lookupID(txn, r.newDN, storage.LockRMW)
		if err == nil {
			return opError("modifyDN", r.newDN, ErrEntryExists)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	newParentID, err := ec.lookupID(txn, r.newParent, storage.LockShared)
	if errors.Is(err, storage.ErrNotFound) {
		return ec.notFound(txn, "modifyDN", r.newParent)
	}
	if err != nil {
		return err
	}
	r.renumber = r.allowMove && newParentID > apexID

	oldAncestors, err := ec.ancestorIDs(txn, r.oldDN)
	if err != nil {
		return err
	}
	newAncestors, err := ec.ancestorIDs(txn, r.newParent)
	if err != nil {
		return err
	}
	newAncestors = append([]index.EntryID{newParentID}, newAncestors...)

	if err := r.collect(txn, apexID); err != nil {
		return err
	}
	apexMods := r.updateApex()

	relink := r.renumber || r.newParent != entry.ParentDN(r.oldDN)
	if relink {
		apex := r.moved[0]
		for _, m := range r.moved {
			for _, a := range oldAncestors {
				if err := ec.id2subtree.RemoveID(txn, a.Bytes(), m.oldID); err != nil {
					return err
				}
			}
		}
		if len(oldAncestors) > 0 {
			if err := ec.id2children.RemoveID(txn, oldAncestors[0].Bytes(), apex.oldID); err != nil {
				return err
			}
		}
	}

	for _, m := range r.moved {
		if err := txn.Delete(ec.dn2id, []byte(m.oldDN)); err != nil {
			return err
		}
		if m.newID == m.oldID {
			continue
		}
		for _, t := range []*storage.Table{ec.id2entry, ec.id2children.Table(), ec.id2subtree.Table()} {
			if err := txn.Delete(t, m.oldID.Bytes()); err != nil {
				return err
			}
		}
	}

	for i, m := range r.moved {
		value, err := ec.codec.Encode(m.updated)
		if err != nil {
			return err
		}
		if err := txn.Put(ec.dn2id, []byte(m.newDN), m.newID.Bytes()); err != nil {
			return err
		}
		if err := txn.Put(ec.id2entry, m.newID.Bytes(), value); err != nil {
			return err
		}
		for _, ai := range ec.attributeIndexes() {
			switch {
			case m.newID != m.oldID:
				if err := ai.RemoveEntry(txn, m.oldID, m.old); err != nil {
					return err
				}
				if _, err := ai.AddEntry(txn, m.newID, m.updated); err != nil {
					return err
				}
			case i == 0:
				if err := ai.ModifyEntry(txn, m.newID, m.old, m.updated, apexMods); err != nil {
					return err
				}
			}
		}
	}

	if relink {
		apex := r.moved[0]
		if _, err := ec.id2children.InsertID(txn, newParentID.Bytes(), apex.newID); err != nil {
			return err
		}
		for _, m := range r.moved {
			for _, a := range newAncestors {
				if _, err := ec.id2subtree.InsertID(txn, a.Bytes(), m.newID); err != nil {
					return err
				}
			}
		}
	}
	if r.renumber {
		return r.relinkInternal(txn)
	}
	return nil
}

// collect loads the subtree of the entry, apex first and then ordered by
// depth, and assigns the new DN and ID of every member.
func (r *renamer) collect(txn *tx.Transaction, apexID index.EntryID) error {
	ec := r.ec
	members := []*movedEntry{{oldDN: r.oldDN, oldID: apexID}}
	lower, upper := subtreeBounds(r.oldDN)
	c, err := txn.NewCursor(ec.dn2id, lower, upper)
	if err != nil {
		return err
	}
	for ok := c.First(); ok; ok = c.Next() {
		id, err := index.EntryIDFromBytes(c.Value())
		if err != nil {
			c.Close()
			return err
		}
		members = append(members, &movedEntry{oldDN: string(c.Key()), oldID: id})
	}
	err = c.Error()
	c.Close()
	if err != nil {
		return err
	}
	sort.SliceStable(members[1:], func(i, j int) bool {
		a, b := members[1+i], members[1+j]
		if da, db := entry.Depth(a.oldDN), entry.Depth(b.oldDN); da != db {
			return da < db
		}
		return a.oldID < b.oldID
	})

	for _, m := range members {
		m.old, err = ec.readEntry(txn, m.oldID, storage.LockRMW)
		if err != nil {
			return errors.Wrapf(err, "backend: read entry %s", m.oldID)
		}
		m.newDN = entry.RenameDN(m.oldDN, r.oldDN, r.newDN)
		m.newID = m.oldID
		if r.renumber {
			id, ok := r.renumbering[m.oldID]
			if !ok {
				id = ec.allocateID()
				r.renumbering[m.oldID] = id
			}
			m.newID = id
		}
		m.updated = m.old.Clone()
		m.updated.DN = m.newDN
	}
	r.moved = members
	return nil
}

// updateApex applies the RDN change to the renamed entry and returns the
// modifications the attribute indexes need to see.
func (r *renamer) updateApex() []entry.Modification {
	e := r.moved[0].updated
	newValues := entry.RDNValues(r.rawRDN)
	touched := make(map[string]bool)

	if r.deleteOld {
		old := entry.RDNValues(entry.RDN(r.oldDN))
		for _, attr := range sortedKeys(old) {
			value := old[attr]
			if kept, ok := lookupFold(newValues, attr); ok && strings.EqualFold(collapse(kept), value) {
				continue
			}
			var rest [][]byte
			for _, v := range e.Values(attr) {
				if !strings.EqualFold(collapse(string(v)), value) {
					rest = append(rest, v)
				}
			}
			if len(rest) != len(e.Values(attr)) {
				e.SetAttribute(attr, rest...)
				touched[attr] = true
			}
		}
	}
	for _, attr := range sortedKeys(newValues) {
		value := newValues[attr]
		if !hasValueFold(e.Values(attr), collapse(value)) {
			e.AddValues(attr, []byte(value))
			touched[attr] = true
		}
	}

	ts := modifyTimestampMod()
	e.SetAttribute(ts.Attribute, ts.Values...)
	mods := []entry.Modification{ts}
	for _, attr := range sortedKeys(touched) {
		mods = append(mods, entry.Modification{Op: entry.ModReplace, Attribute: attr, Values: e.Values(attr)})
	}
	return mods
}

// relinkInternal rebuilds the children and subtree keys inside a
// renumbered subtree.
func (r *renamer) relinkInternal(txn *tx.Transaction) error {
	ec := r.ec
	ids := make(map[string]index.EntryID, len(r.moved))
	for _, m := range r.moved {
		ids[m.newDN] = m.newID
	}
	for _, m := range r.moved[1:] {
		parent := entry.ParentDN(m.newDN)
		if _, err := ec.id2children.InsertID(txn, ids[parent].Bytes(), m.newID); err != nil {
			return err
		}
		for p := parent; ; p = entry.ParentDN(p) {
			if _, err := ec.id2subtree.InsertID(txn, ids[p].Bytes(), m.newID); err != nil {
				return err
			}
			if p == r.newDN {
				break
			}
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lookupFold(m map[string]string, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
