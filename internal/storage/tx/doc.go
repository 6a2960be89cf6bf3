// Package tx provides transactions over the pebble-backed store.
//
// A Transaction stages its writes in an indexed pebble batch, so reads inside
// the transaction observe its own uncommitted writes. Isolation between
// concurrent transactions comes from row locks: every Put and Delete takes an
// exclusive lock on the key, and reads may take a shared or read-modify-write
// lock. Locks are held until Commit or Abort (strict two-phase locking).
//
// The LockManager maintains a wait-for graph. A lock request that would close
// a cycle fails immediately with ErrDeadlock; the caller is expected to abort
// the transaction and retry with a fresh one.
//
//	txn := mgr.Begin()
//	v, err := txn.Get(table, key, storage.LockRMW)
//	if errors.Is(err, tx.ErrDeadlock) {
//	    txn.Abort()
//	    // retry
//	}
//	...
//	err = txn.Commit()
package tx
