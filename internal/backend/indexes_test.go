package backend

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
)

func indexStats(t *testing.T, ec *EntryContainer, attr string) (AttributeIndexStats, bool) {
	t.Helper()
	stats, err := ec.IndexStats()
	require.NoError(t, err)
	for _, s := range stats {
		if s.Attribute == attr {
			return s, true
		}
	}
	return AttributeIndexStats{}, false
}

func TestApplyIndexConfigNeedsRebuild(t *testing.T) {
	ec := newTestContainer(t, nil)
	addTree(t, ec)
	ctx := context.Background()

	res, err := ec.ApplyIndexConfig(ctx, config.IndexConfig{Attribute: "ou", Types: []string{"equality"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AdminActionRequired)
	assert.NotEmpty(t, res.Messages)

	s, ok := indexStats(t, ec, "ou")
	require.True(t, ok)
	assert.False(t, s.Trusted)
	assert.False(t, ec.HasIndex("ou", filter.FilterEquality))

	// The untrusted index is ignored, so only the scope narrows the search.
	req := &SearchRequest{BaseDN: testBase, Scope: ScopeSubtree, Filter: filter.MustParse("(ou=people)")}
	sr, err := ec.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 6, sr.Candidates)
	assert.Equal(t, []string{"ou=people," + testBase}, dns(sr.Entries))

	n, err := ec.RebuildIndex(ctx, "ou")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	s, ok = indexStats(t, ec, "ou")
	require.True(t, ok)
	assert.True(t, s.Trusted)
	assert.True(t, ec.HasIndex("OU", filter.FilterEquality))

	sr, err = ec.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, sr.Candidates)
	assert.Equal(t, []string{"ou=people," + testBase}, dns(sr.Entries))

	report, err := ec.VerifyIndex(ctx, "ou")
	require.NoError(t, err)
	assert.Equal(t, 6, report.Entries)
	assert.Empty(t, report.Missing)
	assert.Zero(t, report.Undefined)
}

func TestApplyIndexConfigChangesTypes(t *testing.T) {
	ec := newTestContainer(t, nil)
	addTree(t, ec)
	ctx := context.Background()

	res, err := ec.ApplyIndexConfig(ctx, config.IndexConfig{Attribute: "cn", Types: []string{"equality"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AdminActionRequired)

	s, ok := indexStats(t, ec, "cn")
	require.True(t, ok)
	assert.Len(t, s.Types, 1)
	assert.True(t, s.Trusted)
	assert.False(t, ec.HasIndex("cn", filter.FilterPresent))

	assert.Equal(t, people("alice", "carol"), search(t, ec, testBase, ScopeSubtree, "(cn=*smith)"))
}

func TestRebuildIndexOnFreshContainer(t *testing.T) {
	ec := newTestContainer(t, nil)
	addTree(t, ec)
	ctx := context.Background()

	n, err := ec.RebuildIndex(ctx, "uid")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, people("bob"), search(t, ec, testBase, ScopeSubtree, "(uid=bob)"))

	report, err := ec.VerifyIndex(ctx, "uid")
	require.NoError(t, err)
	assert.Empty(t, report.Missing)

	_, err = ec.RebuildIndex(ctx, "nope")
	assert.ErrorIs(t, err, ErrIndexNotFound)
	_, err = ec.VerifyIndex(ctx, "nope")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestRemoveIndex(t *testing.T) {
	ec := newTestContainer(t, nil)
	addTree(t, ec)
	ctx := context.Background()

	require.NoError(t, ec.RemoveIndex(ctx, "Mail"))
	assert.ErrorIs(t, ec.RemoveIndex(ctx, "mail"), ErrIndexNotFound)

	_, ok := indexStats(t, ec, "mail")
	assert.False(t, ok)
	assert.False(t, ec.HasIndex("mail", filter.FilterEquality))
	assert.Equal(t, people("bob"), search(t, ec, testBase, ScopeSubtree, "(mail=bob@example.com)"))

	// Entries added afterwards do not need the dropped index.
	require.NoError(t, ec.Add(ctx, newEntry("uid=dave,ou=people,"+testBase, "uid", "dave", "mail", "dave@example.com")))
}

func TestIsIndexConfigAcceptable(t *testing.T) {
	ec := newTestContainer(t, nil)
	negative := -1

	assert.NoError(t, ec.IsIndexConfigAcceptable(config.IndexConfig{Attribute: "sn", Types: []string{"equality", "substring"}}))
	assert.Error(t, ec.IsIndexConfigAcceptable(config.IndexConfig{Attribute: "cn", Types: []string{"bogus"}}))
	assert.ErrorIs(t, ec.IsIndexConfigAcceptable(config.IndexConfig{Attribute: "cn", Types: []string{"extensible"}}),
		index.ErrNoExtensibleRules)
	assert.ErrorIs(t, ec.IsIndexConfigAcceptable(config.IndexConfig{Attribute: "sn", Types: []string{"substring"}, SubstringLength: -1}),
		index.ErrInvalidSubstringLength)
	assert.ErrorIs(t, ec.IsIndexConfigAcceptable(config.IndexConfig{Attribute: "uid", Types: []string{"equality"}, EntryLimit: &negative}),
		index.ErrInvalidEntryLimit)

	_, err := ec.ApplyIndexConfig(context.Background(), config.IndexConfig{Attribute: "cn", Types: []string{"extensible"}})
	assert.Error(t, err)
	s, ok := indexStats(t, ec, "cn")
	require.True(t, ok)
	assert.Len(t, s.Types, 3)
}

func TestRegisterMetrics(t *testing.T) {
	ec := newTestContainer(t, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, ec.Store()))
	require.NoError(t, Register(reg, nil))

	before := testutil.ToFloat64(Operations.WithLabelValues("add", "success"))
	addTree(t, ec)
	assert.Equal(t, before+6, testutil.ToFloat64(Operations.WithLabelValues("add", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOrphanedIndexes(t *testing.T) {
	first := newTestContainer(t, nil)
	addTree(t, first)
	require.NoError(t, first.Close())
	ctx := context.Background()

	ec, err := Open(first.Store(), testConfig(), Options{})
	require.NoError(t, err)
	defer ec.Close()
	_, err = ec.ApplyIndexConfig(ctx, config.IndexConfig{Attribute: "uid", Types: []string{"equality"}})
	require.NoError(t, err)

	orphans, err := ec.OrphanedIndexes()
	require.NoError(t, err)
	assert.Contains(t, orphans, "cn.substring")
	assert.Contains(t, orphans, "uidnumber.ordering")
	assert.NotContains(t, orphans, "uid.equality")

	require.NoError(t, ec.DropOrphanedIndex(ctx, "cn.substring"))
	assert.ErrorIs(t, ec.DropOrphanedIndex(ctx, "cn.substring"), ErrIndexNotFound)
	assert.ErrorIs(t, ec.DropOrphanedIndex(ctx, "uid.equality"), ErrIndexNotFound)

	orphans, err = ec.OrphanedIndexes()
	require.NoError(t, err)
	assert.NotContains(t, orphans, "cn.substring")
	assert.Contains(t, orphans, "cn.equality")
}
