// Package storage provides the ordered key-value store used by the directory
// index engine.
//
// The store is a thin layer over pebble. Every logical database (dn2id,
// id2entry, one per physical index, ...) is a Table: a contiguous region of
// the pebble keyspace addressed by an 8-byte prefix derived from the table
// name. Tables may order their keys by reversed-byte comparison, which is
// implemented by storing keys byte-reversed.
//
// # Reads and Writes
//
// Store implements Reader for committed, lock-free reads. Transactional
// access, including row locks and deadlock detection, lives in the tx
// subpackage whose Transaction implements Writer.
//
//	store, err := storage.Open(storage.Options{Dir: "/var/lib/obaidx"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	dn2id := store.Table("dn2id", true)
//	id, err := store.Get(dn2id, []byte("dc=example,dc=com"), storage.LockNone)
package storage
