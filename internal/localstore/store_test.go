package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvoboda/goaliesync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	var out string
	found, err := s.Get("nope", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, out)
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put("k", map[string]int{"a": 1}))

	out := map[string]int{}
	found, err := s.Get("k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]int{"a": 1}, out)

	require.NoError(t, s.Delete("k"))
	found, err = s.Get("k", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is a no-op.
	require.NoError(t, s.Delete("k"))
}

func TestCollectionsReadEmptyBeforeFirstWrite(t *testing.T) {
	s := newTestStore(t)

	matches, err := s.Matches()
	require.NoError(t, err)
	assert.Empty(t, matches)

	goalies, err := s.Goalies()
	require.NoError(t, err)
	assert.Empty(t, goalies)
}

func TestReplaceCollectionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := []models.Goalie{
		{ID: "g1", Name: "Tereza Novakova", CreatedAt: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "g2", Name: "Jakub Maly"},
	}
	require.NoError(t, s.SaveGoalies(in))

	out, err := s.Goalies()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Replace semantics: the old contents are gone, not merged.
	require.NoError(t, s.SaveGoalies(in[1:]))
	out, err = s.Goalies()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "g2", out[0].ID)
}

func TestReplaceCollectionNilWritesEmpty(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveMatches([]models.Match{{ID: "m1"}}))
	require.NoError(t, s.SaveMatches(nil))

	out, err := s.Matches()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUpsertMatch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertMatch(models.Match{ID: "m1", HomeTeam: "HC Kobra"}))
	require.NoError(t, s.UpsertMatch(models.Match{ID: "m2", HomeTeam: "HC Hvezda"}))
	require.NoError(t, s.UpsertMatch(models.Match{ID: "m1", HomeTeam: "HC Kobra", GoalieID: "g1"}))

	matches, err := s.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "m1", matches[0].ID) // position preserved on replace
	assert.Equal(t, "g1", matches[0].GoalieID)

	got, found, err := s.Match("m1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "g1", got.GoalieID)

	_, found, err = s.Match("m9")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEventsForMatchIncludesTombstones(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveEvents([]models.GoalieEvent{
		{ID: "e1", MatchID: "m1", Status: models.EventConfirmed},
		{ID: "e2", MatchID: "m1", Status: models.EventDeleted},
		{ID: "e3", MatchID: "m2", Status: models.EventConfirmed},
	}))

	events, err := s.EventsForMatch("m1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestReadMapRoundTrip(t *testing.T) {
	s := newTestStore(t)

	m, err := ReadMap[string](s, ColIDMap)
	require.NoError(t, err)
	assert.Empty(t, m)

	m["local-1"] = "c1"
	require.NoError(t, ReplaceMap(s, ColIDMap, m))

	again, err := ReadMap[string](s, ColIDMap)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}
