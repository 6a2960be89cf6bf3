package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/tx"
)

type testEnv struct {
	store  *storage.Store
	txm    *tx.Manager
	state  *State
	schema *schema.Schema
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &testEnv{
		store:  s,
		txm:    tx.NewManager(s, tx.Options{}),
		state:  NewState(s, "state"),
		schema: schema.Default(),
	}
}

// update runs fn in a transaction and commits it.
func (env *testEnv) update(t *testing.T, fn func(w storage.Writer)) {
	t.Helper()
	txn := env.txm.Begin()
	fn(txn)
	require.NoError(t, txn.Commit())
}

func (env *testEnv) openIndex(t *testing.T, name string, opts Options) *Index {
	t.Helper()
	ix, err := Open(env.store, name, opts)
	require.NoError(t, err)
	return ix
}

// attributeIndex opens an attribute index and marks it trusted.
func (env *testEnv) attributeIndex(t *testing.T, cfg AttributeIndexConfig) *AttributeIndex {
	t.Helper()
	ai, err := NewAttributeIndex(env.store, cfg, AttributeIndexOptions{Schema: env.schema, State: env.state})
	require.NoError(t, err)
	env.update(t, func(w storage.Writer) {
		require.NoError(t, ai.SetTrusted(w, true))
	})
	return ai
}

// addEntries indexes entries under IDs 1, 2, ... in one transaction.
func (env *testEnv) addEntries(t *testing.T, ai *AttributeIndex, entries ...*entry.Entry) {
	t.Helper()
	env.update(t, func(w storage.Writer) {
		for i, e := range entries {
			_, err := ai.AddEntry(w, EntryID(i+1), e)
			require.NoError(t, err)
		}
	})
}

// newEntry builds an entry from attribute name/value pairs.
func newEntry(dn string, pairs ...string) *entry.Entry {
	e := entry.NewEntry(dn)
	for i := 0; i+1 < len(pairs); i += 2 {
		e.AddValues(pairs[i], []byte(pairs[i+1]))
	}
	return e
}
