package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
)

func TestState(t *testing.T) {
	env := newTestEnv(t)

	trusted, err := env.state.IsTrusted(env.store, "cn.equality")
	require.NoError(t, err)
	assert.False(t, trusted, "no record means untrusted")

	env.update(t, func(w storage.Writer) {
		require.NoError(t, env.state.SetTrusted(w, "cn.equality", true))
		require.NoError(t, env.state.SetTrusted(w, "uid.equality", false))
		require.NoError(t, env.state.SetTrusted(w, "cn.presence", true))
	})
	trusted, err = env.state.IsTrusted(env.store, "cn.equality")
	require.NoError(t, err)
	assert.True(t, trusted)

	names, err := env.state.Names(env.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"cn.equality", "cn.presence", "uid.equality"}, names)

	env.update(t, func(w storage.Writer) {
		require.NoError(t, env.state.Remove(w, "cn.presence"))
	})
	names, err = env.state.Names(env.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"cn.equality", "uid.equality"}, names)
}
