// Package index implements the attribute indexes of the directory engine.
//
// # Overview
//
// An Index maps byte-string keys to an EntryIDSet in one table of the
// store:
//
//	ix, err := index.Open(store, "cn.equality", index.Options{
//	    EntryLimit: 4000,
//	    Indexer:    index.NewEqualityIndexer(cn, caseIgnoreMatch),
//	})
//
//	txn := txManager.Begin()
//	added, err := ix.InsertID(txn, []byte("smith"), 5)
//	err = txn.Commit()
//
// When the IDs under one key would exceed the entry limit the key is stored
// as an undefined set. Undefined sets behave as "any entry may match":
// intersecting with one keeps the other operand, and a union containing one
// is undefined.
//
// # Attribute Indexes
//
// An AttributeIndex groups the presence, equality, substring, ordering and
// approximate indexes of one attribute plus the indexes of its extensible
// matching rules, and evaluates filter components:
//
//	ai.EvaluateEquality(store, []byte("Smith"))
//	ai.EvaluateSubstring(store, []byte("sm"), nil, []byte("th"))
//	ai.EvaluateGreaterOrEqual(store, []byte("15"))
//
// Evaluation never fails: a missing or untrusted index and values the
// matching rule rejects produce an undefined set, which makes the caller
// fall back to scanning entries.
//
// # Key Order
//
// Keys derived from an entry are always written in ascending order, so
// that concurrent transactions lock shared keys in the same order.
package index
