// Package backend implements the entry container: the entries below one
// base DN, their hierarchy and their attribute indexes, kept consistent by
// transactional add, delete, modify and rename operations.
//
// # Tables
//
// A container uses these tables of one store:
//
//	dn2id        normalized DN -> entry ID, keys stored reversed
//	id2entry     entry ID -> encoded entry
//	id2children  parent ID -> IDs of the immediate children
//	id2subtree   ancestor ID -> IDs of every descendant
//	state        index name -> trust flag
//
// Reversed dn2id keys place an entry directly after its ancestors, so a
// subtree is one contiguous key range.
//
// # Operations
//
// Every update runs inside a transaction through RunTransacted, which
// retries the operation after a deadlock up to DeadlockRetryLimit times.
// Entry IDs are assigned before the first attempt and reused by retries.
//
//	ec, err := backend.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer ec.Close()
//
//	e := entry.NewEntry("uid=alice,ou=people,dc=example,dc=com")
//	e.SetStringAttribute("objectClass", "person")
//	e.SetStringAttribute("uid", "alice")
//	err = ec.Add(ctx, e)
//
// # Search
//
// Search evaluates the optimized filter against the attribute indexes to
// get a candidate set, intersects it with the scope taken from id2children
// or id2subtree, and verifies every candidate against the full filter.
// When the indexes cannot narrow the search the container scans id2entry.
//
// # Index administration
//
// ApplyIndexConfig, RemoveIndex and RebuildIndex change the attribute
// indexes of a live container. Physical indexes are dropped while holding
// the container lock exclusively; entry operations hold it shared.
package backend
