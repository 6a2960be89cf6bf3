package index

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

func TestInsertIDEntryLimit(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "limit.equality", Options{EntryLimit: 2})
	key := []byte("smith")
	before := testutil.ToFloat64(EntryLimitExceeded.WithLabelValues(ix.Name()))

	env.update(t, func(w storage.Writer) {
		for _, id := range []EntryID{1, 2, 3} {
			added, err := ix.InsertID(w, key, id)
			require.NoError(t, err)
			assert.True(t, added)
		}
	})

	assert.False(t, ix.ReadKey(env.store, key).IsDefined())
	assert.EqualValues(t, 1, ix.EntryLimitExceededCount())
	raw, err := env.store.Get(ix.Table(), key, storage.LockNone)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, raw)

	// Further inserts into an undefined key do not count again.
	env.update(t, func(w storage.Writer) {
		_, err := ix.InsertID(w, key, 4)
		require.NoError(t, err)
	})
	assert.EqualValues(t, 1, ix.EntryLimitExceededCount())
	assert.Equal(t, before+1, testutil.ToFloat64(EntryLimitExceeded.WithLabelValues(ix.Name())))
}

func TestInsertIDDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "dup.equality", Options{})

	env.update(t, func(w storage.Writer) {
		added, err := ix.InsertID(w, []byte("k"), 9)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = ix.InsertID(w, []byte("k"), 9)
		require.NoError(t, err)
		assert.False(t, added)
	})
	assert.Equal(t, []EntryID{9}, ix.ReadKey(env.store, []byte("k")).IDs())
}

func TestRemoveIDDeletesEmptyKey(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "remove.equality", Options{})
	key := []byte("jones")

	env.update(t, func(w storage.Writer) {
		_, err := ix.InsertID(w, key, 7)
		require.NoError(t, err)
		_, err = ix.InsertID(w, key, 8)
		require.NoError(t, err)
	})
	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.RemoveID(w, key, 7))
	})
	assert.Equal(t, []EntryID{8}, ix.ReadKey(env.store, key).IDs())

	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.RemoveID(w, key, 8))
	})
	_, err := env.store.Get(ix.Table(), key, storage.LockNone)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveIDInconsistencies(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "anomaly.equality", Options{})
	missingKey := IntegrityAnomalies.WithLabelValues(ix.Name(), "missing_key")
	missingID := IntegrityAnomalies.WithLabelValues(ix.Name(), "missing_id")
	keyBefore, idBefore := testutil.ToFloat64(missingKey), testutil.ToFloat64(missingID)

	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.RemoveID(w, []byte("nokey"), 1))
		_, err := ix.InsertID(w, []byte("k"), 2)
		require.NoError(t, err)
		require.NoError(t, ix.RemoveID(w, []byte("k"), 3))
	})

	assert.Equal(t, keyBefore+1, testutil.ToFloat64(missingKey))
	assert.Equal(t, idBefore+1, testutil.ToFloat64(missingID))
	assert.Equal(t, []EntryID{2}, ix.ReadKey(env.store, []byte("k")).IDs())
}

func TestRemoveIDFromUndefinedSetIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "undef.equality", Options{EntryLimit: 1})
	key := []byte("k")

	env.update(t, func(w storage.Writer) {
		for _, id := range []EntryID{1, 2} {
			_, err := ix.InsertID(w, key, id)
			require.NoError(t, err)
		}
	})
	require.False(t, ix.ReadKey(env.store, key).IsDefined())

	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.RemoveID(w, key, 1))
	})
	assert.False(t, ix.ReadKey(env.store, key).IsDefined())
}

func TestContainsID(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "contains.equality", Options{EntryLimit: 2})

	env.update(t, func(w storage.Writer) {
		_, err := ix.InsertID(w, []byte("a"), 1)
		require.NoError(t, err)
		for _, id := range []EntryID{1, 2, 3} {
			_, err := ix.InsertID(w, []byte("full"), id)
			require.NoError(t, err)
		}
	})

	tests := []struct {
		key      string
		id       EntryID
		expected ConditionResult
	}{
		{"a", 1, ConditionTrue},
		{"a", 2, ConditionFalse},
		{"missing", 1, ConditionFalse},
		{"full", 99, ConditionUndefined},
	}
	for _, tt := range tests {
		got, err := ix.ContainsID(env.store, []byte(tt.key), tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "%s/%d", tt.key, tt.id)
	}
}

func fillRangeIndex(t *testing.T, env *testEnv, ix *Index) {
	t.Helper()
	env.update(t, func(w storage.Writer) {
		for i, k := range []string{"a", "b", "c", "d"} {
			_, err := ix.InsertID(w, []byte(k), EntryID(i+1))
			require.NoError(t, err)
		}
	})
}

func TestReadRange(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "range.ordering", Options{})
	fillRangeIndex(t, env, ix)

	tests := []struct {
		name          string
		lower, upper  string
		lowerIncluded bool
		upperIncluded bool
		expected      []EntryID
	}{
		{"inclusive both", "b", "c", true, true, []EntryID{2, 3}},
		{"exclusive both", "b", "d", false, false, []EntryID{3}},
		{"open lower", "", "c", false, false, []EntryID{1, 2}},
		{"open lower inclusive", "", "c", false, true, []EntryID{1, 2, 3}},
		{"open upper", "c", "", true, false, []EntryID{3, 4}},
		{"open upper exclusive", "c", "", false, false, []EntryID{4}},
		{"unbounded", "", "", false, false, []EntryID{1, 2, 3, 4}},
		{"empty range", "bb", "bc", true, true, []EntryID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ix.ReadRange(env.store, []byte(tt.lower), []byte(tt.upper), tt.lowerIncluded, tt.upperIncluded)
			require.True(t, got.IsDefined())
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestReadRangeCursorLimit(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "cursor.ordering", Options{CursorEntryLimit: 2})
	fillRangeIndex(t, env, ix)

	assert.Equal(t, []EntryID{1, 2}, ids(ix.ReadRange(env.store, []byte("a"), []byte("b"), true, true)))
	assert.False(t, ix.ReadRange(env.store, []byte("a"), []byte("c"), true, true).IsDefined())

	ix.SetCursorEntryLimit(0)
	assert.Equal(t, 3, ix.ReadRange(env.store, []byte("a"), []byte("c"), true, true).Len())
}

func TestReadRangeStopsAtUndefinedKey(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "undefrange.ordering", Options{EntryLimit: 1})
	env.update(t, func(w storage.Writer) {
		_, err := ix.InsertID(w, []byte("a"), 1)
		require.NoError(t, err)
		for _, id := range []EntryID{2, 3} {
			_, err := ix.InsertID(w, []byte("b"), id)
			require.NoError(t, err)
		}
	})

	assert.Equal(t, []EntryID{1}, ids(ix.ReadRange(env.store, []byte("a"), []byte("a"), true, true)))
	assert.False(t, ix.ReadRange(env.store, []byte("a"), []byte("z"), true, true).IsDefined())
}

func TestSetIndexEntryLimit(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "setlimit.equality", Options{EntryLimit: 2})

	assert.False(t, ix.SetIndexEntryLimit(5), "raising without exceeded keys needs no rebuild")
	assert.False(t, ix.SetIndexEntryLimit(1))

	env.update(t, func(w storage.Writer) {
		for _, id := range []EntryID{1, 2} {
			_, err := ix.InsertID(w, []byte("k"), id)
			require.NoError(t, err)
		}
	})
	require.EqualValues(t, 1, ix.EntryLimitExceededCount())

	assert.False(t, ix.SetIndexEntryLimit(1))
	assert.True(t, ix.SetIndexEntryLimit(10))
	assert.Equal(t, 10, ix.EntryLimit())
	assert.True(t, ix.SetIndexEntryLimit(0), "removing the limit is a raise")
}

func TestTrustStatePersists(t *testing.T) {
	env := newTestEnv(t)

	plain := env.openIndex(t, "plain.equality", Options{})
	assert.True(t, plain.IsTrusted())

	ix := env.openIndex(t, "trust.equality", Options{State: env.state})
	assert.False(t, ix.IsTrusted())

	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.SetTrusted(w, true))
	})
	assert.True(t, ix.IsTrusted())

	reopened := env.openIndex(t, "trust.equality", Options{State: env.state})
	assert.True(t, reopened.IsTrusted())

	env.update(t, func(w storage.Writer) {
		require.NoError(t, reopened.SetTrusted(w, false))
	})
	trusted, err := env.state.IsTrusted(env.store, "trust.equality")
	require.NoError(t, err)
	assert.False(t, trusted)
}

func TestDropIndex(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "drop.equality", Options{State: env.state})
	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.SetTrusted(w, true))
		_, err := ix.InsertID(w, []byte("k"), 1)
		require.NoError(t, err)
	})

	env.update(t, func(w storage.Writer) {
		require.NoError(t, ix.Drop(w))
	})

	n, err := ix.Count(env.store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	trusted, err := env.state.IsTrusted(env.store, ix.Name())
	require.NoError(t, err)
	assert.False(t, trusted)

	txn := env.txm.Begin()
	defer txn.Abort()
	_, err = ix.InsertID(txn, []byte("k"), 2)
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestBufferFlush(t *testing.T) {
	env := newTestEnv(t)
	ix := env.openIndex(t, "buffer.equality", Options{EntryLimit: 3})
	env.update(t, func(w storage.Writer) {
		for _, id := range []EntryID{3, 4} {
			_, err := ix.InsertID(w, []byte("existing"), id)
			require.NoError(t, err)
		}
	})

	buf := NewBuffer()
	buf.Insert(ix, []byte("new"), 2)
	buf.Insert(ix, []byte("new"), 1)
	buf.Remove(ix, []byte("existing"), 3)
	buf.Insert(ix, []byte("cancelled"), 5)
	buf.Remove(ix, []byte("cancelled"), 5)
	for _, id := range []EntryID{10, 11, 12, 13} {
		buf.Insert(ix, []byte("big"), id)
	}
	assert.Equal(t, 4, buf.Len())

	env.update(t, func(w storage.Writer) {
		require.NoError(t, buf.Flush(w))
	})
	assert.Equal(t, 0, buf.Len())

	assert.Equal(t, []EntryID{1, 2}, ids(ix.ReadKey(env.store, []byte("new"))))
	assert.Equal(t, []EntryID{4}, ids(ix.ReadKey(env.store, []byte("existing"))))
	assert.Equal(t, 0, ix.ReadKey(env.store, []byte("cancelled")).Len())
	assert.False(t, ix.ReadKey(env.store, []byte("big")).IsDefined())
	assert.EqualValues(t, 1, ix.EntryLimitExceededCount())
}

func TestRegisterMetricsTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}
