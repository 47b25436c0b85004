package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvoboda/goaliesync/internal/localstore"
)

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIsCanonical(t *testing.T) {
	assert.True(t, IsCanonical(uuid.NewString()))
	assert.False(t, IsCanonical("local-"+uuid.NewString()))
	assert.False(t, IsCanonical("match_17"))
	assert.False(t, IsCanonical(""))
	// uuid.Parse accepts upper case and braced forms; canonical form does not.
	assert.False(t, IsCanonical("A0EEBC99-9C0B-4EF8-BB6D-6BB9BD380A11"))
}

func TestResolveCanonicalPassthrough(t *testing.T) {
	r, err := NewResolver(newTestStore(t))
	require.NoError(t, err)

	id := uuid.NewString()
	resolved, err := r.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
}

func TestResolveIsIdempotent(t *testing.T) {
	r, err := NewResolver(newTestStore(t))
	require.NoError(t, err)

	first, err := r.Resolve("match_17")
	require.NoError(t, err)
	require.True(t, IsCanonical(first))

	second, err := r.Resolve("match_17")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// resolve(resolve(x)) == resolve(x)
	again, err := r.Resolve(first)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestResolveSurvivesRestart(t *testing.T) {
	store := newTestStore(t)

	r1, err := NewResolver(store)
	require.NoError(t, err)
	minted, err := r1.Resolve("goalie_3")
	require.NoError(t, err)

	// A fresh resolver over the same store must see the persisted mapping.
	r2, err := NewResolver(store)
	require.NoError(t, err)
	resolved, err := r2.Resolve("goalie_3")
	require.NoError(t, err)
	assert.Equal(t, minted, resolved)
}

func TestAdopt(t *testing.T) {
	r, err := NewResolver(newTestStore(t))
	require.NoError(t, err)

	remoteID := uuid.NewString()
	require.NoError(t, r.Adopt("team_5", remoteID))

	resolved, err := r.Resolve("team_5")
	require.NoError(t, err)
	assert.Equal(t, remoteID, resolved)

	// Re-adopting the same pair is a no-op.
	require.NoError(t, r.Adopt("team_5", remoteID))
}

func TestResolveEmptyID(t *testing.T) {
	r, err := NewResolver(newTestStore(t))
	require.NoError(t, err)

	resolved, err := r.Resolve("")
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
