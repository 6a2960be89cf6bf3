package storage

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s *Store, tbl *Table, key, value string) {
	t.Helper()
	b := s.DB().NewIndexedBatch()
	w := NewBatchReader(b)
	require.NoError(t, w.Put(tbl, []byte(key), []byte(value)))
	require.NoError(t, b.Commit(pebble.Sync))
	require.NoError(t, b.Close())
}

func collect(t *testing.T, c Cursor) []string {
	t.Helper()
	var keys []string
	for ok := c.First(); ok; ok = c.Next() {
		keys = append(keys, string(c.Key()))
	}
	require.NoError(t, c.Error())
	require.NoError(t, c.Close())
	return keys
}

func TestStoreGetNotFound(t *testing.T) {
	s := openTestStore(t)
	tbl := s.Table("t", false)

	_, err := s.Get(tbl, []byte("missing"), LockNone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTablesAreIsolated(t *testing.T) {
	s := openTestStore(t)
	a := s.Table("a", false)
	b := s.Table("b", false)

	put(t, s, a, "k1", "va")
	put(t, s, b, "k1", "vb")
	put(t, s, b, "k2", "vb2")

	v, err := s.Get(a, []byte("k1"), LockNone)
	require.NoError(t, err)
	assert.Equal(t, "va", string(v))

	c, err := s.NewCursor(a, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, collect(t, c))

	c, err = s.NewCursor(b, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, collect(t, c))
}

func TestTableReturnsSameDescriptor(t *testing.T) {
	s := openTestStore(t)
	assert.Same(t, s.Table("x", true), s.Table("x", false))
	assert.True(t, s.Table("x", false).Reversed())
}

func TestReversedTableOrdering(t *testing.T) {
	s := openTestStore(t)
	tbl := s.Table("dn2id", true)

	for _, dn := range []string{
		"dc=com",
		"dc=example,dc=com",
		"ou=people,dc=example,dc=com",
		"uid=a,ou=people,dc=example,dc=com",
		"dc=org",
	} {
		put(t, s, tbl, dn, "x")
	}

	// Descendants of ou=people share the reversed prefix of ",ou=people,dc=example,dc=com".
	suffix := []byte(",ou=people,dc=example,dc=com")
	upper := Reverse(suffix)
	upper[len(upper)-1]++
	c, err := s.NewCursor(tbl, suffix, Reverse(upper))
	require.NoError(t, err)
	assert.Equal(t, []string{"uid=a,ou=people,dc=example,dc=com"}, collect(t, c))

	c, err = s.NewCursor(tbl, nil, nil)
	require.NoError(t, err)
	keys := collect(t, c)
	require.Len(t, keys, 5)
	// "gro=cd" sorts before "moc=cd".
	assert.Equal(t, "dc=org", keys[0])
	assert.Equal(t, "dc=com", keys[1])
}

func TestCursorBounds(t *testing.T) {
	s := openTestStore(t)
	tbl := s.Table("t", false)
	for _, k := range []string{"a", "b", "c", "d"} {
		put(t, s, tbl, k, k)
	}

	c, err := s.NewCursor(tbl, []byte("b"), []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, collect(t, c))

	c, err = s.NewCursor(tbl, nil, nil)
	require.NoError(t, err)
	require.True(t, c.Last())
	assert.Equal(t, "d", string(c.Key()))
	require.True(t, c.Prev())
	assert.Equal(t, "c", string(c.Value()))
	require.True(t, c.SeekGE([]byte("bb")))
	assert.Equal(t, "c", string(c.Key()))
	require.NoError(t, c.Close())
}

func TestDropTable(t *testing.T) {
	s := openTestStore(t)
	tbl := s.Table("gone", false)
	keep := s.Table("kept", false)
	put(t, s, tbl, "k", "v")
	put(t, s, keep, "k", "v")

	require.NoError(t, s.DropTable(tbl))

	_, err := s.Get(tbl, []byte("k"), LockNone)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(keep, []byte("k"), LockNone)
	assert.NoError(t, err)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(s.Table("t", false), []byte("k"), LockNone)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}

func TestCollector(t *testing.T) {
	s := openTestStore(t)
	s.Table("a", false)
	s.Table("b", false)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(s)))

	n, err := testutil.GatherAndCount(reg, "obaidx_storage_tables")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: filepath.Join(dir, "db")})
	require.NoError(t, err)
	tbl := s.Table("entries", false)
	put(t, s, tbl, "a", "1")

	require.NoError(t, s.Checkpoint(filepath.Join(dir, "copy")))
	put(t, s, tbl, "b", "2")
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Checkpoint(filepath.Join(dir, "late")), ErrClosed)

	c, err := Open(Options{Dir: filepath.Join(dir, "copy")})
	require.NoError(t, err)
	defer c.Close()
	v, err := c.Get(c.Table("entries", false), []byte("a"), LockNone)
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	_, err = c.Get(c.Table("entries", false), []byte("b"), LockNone)
	assert.ErrorIs(t, err, ErrNotFound)
}
