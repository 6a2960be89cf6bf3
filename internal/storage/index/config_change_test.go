package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

type countingLocker struct{ locks int }

func (l *countingLocker) Lock()   { l.locks++ }
func (l *countingLocker) Unlock() {}

func TestIsConfigurationAcceptable(t *testing.T) {
	env := newTestEnv(t)
	ai := env.attributeIndex(t, AttributeIndexConfig{Attribute: "member", Types: []IndexType{IndexEquality}})

	tests := []struct {
		name string
		cfg  AttributeIndexConfig
		err  error
	}{
		{"equality", AttributeIndexConfig{Types: []IndexType{IndexEquality, IndexPresence}}, nil},
		{"no substring rule", AttributeIndexConfig{Types: []IndexType{IndexSubstring}}, ErrMissingMatchingRule},
		{"no ordering rule", AttributeIndexConfig{Types: []IndexType{IndexOrdering}}, ErrMissingMatchingRule},
		{"no extensible rules", AttributeIndexConfig{Types: []IndexType{IndexExtensible}}, ErrNoExtensibleRules},
		{"unknown rule", AttributeIndexConfig{Types: []IndexType{IndexExtensible}, ExtensibleRules: []string{"xx.eq"}}, ErrUnknownExtensibleRule},
		{"negative limit", AttributeIndexConfig{Types: []IndexType{IndexEquality}, EntryLimit: -1}, ErrInvalidEntryLimit},
		{"negative substring length", AttributeIndexConfig{SubstringLength: -2}, ErrInvalidSubstringLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ai.IsConfigurationAcceptable(tt.cfg)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := NewAttributeIndex(env.store, AttributeIndexConfig{Attribute: "member", Types: []IndexType{IndexApproximate}},
		AttributeIndexOptions{Schema: env.schema})
	assert.ErrorIs(t, err, ErrMissingMatchingRule)
}

func TestApplyConfigurationChangeAddsIndex(t *testing.T) {
	env := newTestEnv(t)
	ai := env.attributeIndex(t, AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexEquality}})

	var res ConfigChangeResult
	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{
			Attribute: "cn",
			Types:     []IndexType{IndexEquality, IndexSubstring},
		})
	})

	assert.True(t, res.Success)
	assert.True(t, res.AdminActionRequired)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "cn.substring")

	sub := ai.Index(IndexSubstring)
	require.NotNil(t, sub)
	assert.False(t, sub.IsTrusted())
	assert.False(t, ai.IsTrusted())
	assert.True(t, ai.Index(IndexEquality).IsTrusted())
	assert.True(t, ai.Config().Has(IndexSubstring))
}

func TestApplyConfigurationChangeRemovesIndex(t *testing.T) {
	env := newTestEnv(t)
	lock := &countingLocker{}
	ai, err := NewAttributeIndex(env.store, AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexEquality, IndexPresence}},
		AttributeIndexOptions{Schema: env.schema, State: env.state, ExclusiveLock: lock})
	require.NoError(t, err)
	env.update(t, func(w storage.Writer) {
		require.NoError(t, ai.SetTrusted(w, true))
	})
	env.addEntries(t, ai, newEntry("cn=a", "cn", "a"))
	pres := ai.Index(IndexPresence)

	var res ConfigChangeResult
	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexEquality}})
	})
	assert.True(t, res.Success)
	assert.False(t, res.AdminActionRequired)
	assert.Nil(t, ai.Index(IndexPresence))
	assert.Equal(t, 1, lock.locks)

	n, err := pres.Count(env.store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	trusted, err := env.state.IsTrusted(env.store, "cn.presence")
	require.NoError(t, err)
	assert.False(t, trusted)
	assert.Equal(t, []EntryID{1}, ids(ai.EvaluateEquality(env.store, []byte("a"))))
}

func TestApplyConfigurationChangeEntryLimit(t *testing.T) {
	env := newTestEnv(t)
	ai := env.attributeIndex(t, AttributeIndexConfig{Attribute: "sn", Types: []IndexType{IndexEquality}, EntryLimit: 1})
	env.addEntries(t, ai, newEntry("cn=1", "sn", "doe"), newEntry("cn=2", "sn", "doe"))
	require.EqualValues(t, 1, ai.EntryLimitExceededCount())

	var res ConfigChangeResult
	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{Attribute: "sn", Types: []IndexType{IndexEquality}, EntryLimit: 10})
	})
	assert.True(t, res.Success)
	assert.True(t, res.AdminActionRequired)
	assert.Equal(t, 10, ai.Index(IndexEquality).EntryLimit())

	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{Attribute: "sn", Types: []IndexType{IndexEquality}, EntryLimit: 5})
	})
	assert.True(t, res.Success)
	assert.False(t, res.AdminActionRequired)
}

func TestApplyConfigurationChangeSubstringLength(t *testing.T) {
	env := newTestEnv(t)
	ai := env.attributeIndex(t, AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexSubstring}})

	var res ConfigChangeResult
	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexSubstring}, SubstringLength: 3})
	})
	assert.True(t, res.AdminActionRequired)
	assert.Equal(t, 3, ai.Index(IndexSubstring).Indexer().SubstringLength())
}

func TestApplyConfigurationChangeRejected(t *testing.T) {
	env := newTestEnv(t)
	ai := env.attributeIndex(t, AttributeIndexConfig{Attribute: "member", Types: []IndexType{IndexEquality}})

	var res ConfigChangeResult
	env.update(t, func(w storage.Writer) {
		res = ai.ApplyConfigurationChange(w, AttributeIndexConfig{Attribute: "member", Types: []IndexType{IndexSubstring}})
	})
	assert.False(t, res.Success)
	require.Len(t, res.Messages, 1)
	assert.NotNil(t, ai.Index(IndexEquality))
}

func TestExtensibleIndexSharing(t *testing.T) {
	env := newTestEnv(t)
	cfg := func(rules ...string) AttributeIndexConfig {
		c := AttributeIndexConfig{Attribute: "cn", Types: []IndexType{IndexEquality}, ExtensibleRules: rules}
		if len(rules) > 0 {
			c.Types = append(c.Types, IndexExtensible)
		}
		return c
	}
	a := env.attributeIndex(t, cfg("en.lt", "en.eq", "en.sub"))
	shared := a.ExtensibleIndex("en.shared")
	require.NotNil(t, shared)
	require.NotNil(t, a.ExtensibleIndex("en.substring"))
	assert.Equal(t, 2, a.ext.refCount("en.shared"))
	env.addEntries(t, a, newEntry("cn=1", "cn", "Zoe"))

	applyTo := func(c AttributeIndexConfig) ConfigChangeResult {
		var res ConfigChangeResult
		env.update(t, func(w storage.Writer) {
			res = a.ApplyConfigurationChange(w, c)
		})
		return res
	}

	// Dropping one of two rules keeps the shared index and its content.
	res := applyTo(cfg("en.eq", "en.sub"))
	require.True(t, res.Success)
	assert.False(t, res.AdminActionRequired)
	assert.Same(t, shared, a.ExtensibleIndex("en.shared"))
	assert.Equal(t, 1, a.ext.refCount("en.shared"))
	assert.Equal(t, []EntryID{1}, ids(a.EvaluateExtensible(env.store, "en.eq", []byte("zoe"))))

	// Swapping the last user for another rule of the same locale in one
	// change keeps the index alive.
	res = applyTo(cfg("en.gte", "en.sub"))
	require.True(t, res.Success)
	assert.Same(t, shared, a.ExtensibleIndex("en.shared"))
	assert.Equal(t, []EntryID{1}, ids(a.EvaluateExtensible(env.store, "en.gte", []byte("y"))))

	res = applyTo(cfg("en.sub", "fr.eq"))
	require.True(t, res.Success)
	assert.True(t, res.AdminActionRequired, "new fr.shared index")
	assert.Nil(t, a.ExtensibleIndex("en.shared"))
	assert.NotNil(t, a.ExtensibleIndex("fr.shared"))

	res = applyTo(cfg())
	require.True(t, res.Success)
	assert.Empty(t, a.ext.all())
	assert.Len(t, a.AllIndexes(), 1)
}
