package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

const testBase = "dc=example,dc=com"

var testIndexes = []config.IndexConfig{
	{Attribute: "objectClass", Types: []string{"equality"}},
	{Attribute: "cn", Types: []string{"equality", "presence", "substring"}},
	{Attribute: "uid", Types: []string{"equality"}},
	{Attribute: "mail", Types: []string{"equality"}},
	{Attribute: "uidNumber", Types: []string{"equality", "ordering"}},
}

func testConfig() config.BackendConfig {
	return config.BackendConfig{
		BaseDN:                 testBase,
		DeadlockRetryLimit:     config.DefaultDeadlockRetryLimit,
		SubtreeDeleteBatchSize: config.DefaultSubtreeDeleteBatchSize,
		EntryCacheSize:         100,
		CompressEntries:        true,
	}
}

func newStore(t testing.TB) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestContainer opens a container with the test indexes on a fresh
// in-memory store. mutate may adjust the configuration first.
func newTestContainer(t testing.TB, mutate func(*config.BackendConfig)) *EntryContainer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ec, err := Open(newStore(t), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ec.Close() })
	for _, ic := range testIndexes {
		res, err := ec.ApplyIndexConfig(context.Background(), ic)
		require.NoError(t, err)
		require.False(t, res.AdminActionRequired)
	}
	return ec
}

// newEntry builds an entry from attribute name/value pairs.
func newEntry(dn string, pairs ...string) *entry.Entry {
	e := entry.NewEntry(dn)
	for i := 0; i+1 < len(pairs); i += 2 {
		e.AddValues(pairs[i], []byte(pairs[i+1]))
	}
	return e
}

// addTree adds the base entry, two organizational units and three people:
//
//	1 dc=example,dc=com
//	2 ou=people
//	3 ou=groups
//	4 uid=alice,ou=people
//	5 uid=bob,ou=people
//	6 uid=carol,ou=people
func addTree(t *testing.T, ec *EntryContainer) {
	t.Helper()
	entries := []*entry.Entry{
		newEntry(testBase, "objectClass", "domain", "dc", "example"),
		newEntry("ou=People,"+testBase, "objectClass", "organizationalUnit", "ou", "People"),
		newEntry("ou=Groups,"+testBase, "objectClass", "organizationalUnit", "ou", "Groups"),
		newEntry("uid=alice,ou=People,"+testBase, "objectClass", "person", "uid", "alice",
			"cn", "Alice Smith", "mail", "alice@example.com", "uidNumber", "1001"),
		newEntry("uid=bob,ou=People,"+testBase, "objectClass", "person", "uid", "bob",
			"cn", "Bob Jones", "mail", "bob@example.com", "uidNumber", "1002"),
		newEntry("uid=carol,ou=People,"+testBase, "objectClass", "person", "uid", "carol",
			"cn", "Carol Smith", "uidNumber", "1003"),
	}
	for _, e := range entries {
		require.NoError(t, ec.Add(context.Background(), e))
	}
}

// search runs a search and returns the DNs found.
func search(t *testing.T, ec *EntryContainer, base string, scope Scope, f string) []string {
	t.Helper()
	res, err := ec.Search(context.Background(), &SearchRequest{BaseDN: base, Scope: scope, Filter: filter.MustParse(f)})
	require.NoError(t, err)
	return dns(res.Entries)
}

func dns(entries []*entry.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DN)
	}
	return out
}

func people(uids ...string) []string {
	out := make([]string, len(uids))
	for i, u := range uids {
		out[i] = "uid=" + u + ",ou=people," + testBase
	}
	return out
}
