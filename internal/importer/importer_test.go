package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
)

type batchProducer struct {
	records []Record
	err     error
}

func (p batchProducer) Source() models.MatchSource { return models.SourceScraped }

func (p batchProducer) Fetch(_ context.Context) ([]Record, error) {
	return p.records, p.err
}

func newTestImporter(t *testing.T) (*Importer, *localstore.Store) {
	t.Helper()
	store, err := localstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil, nil), store
}

func TestRunAddsNewMatches(t *testing.T) {
	imp, store := newTestImporter(t)

	records := []Record{
		{
			ExternalID: "X-42",
			HomeTeam:   "HC Kobra",
			AwayTeam:   "HC Hvezda",
			Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
			Category:   "U13",
		},
		{
			HomeTeam: "HC Orli",
			AwayTeam: "HC Draci",
			Datetime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}
	summary, err := imp.Run(context.Background(), batchProducer{records: records})
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, Added: 2}, summary)

	matches, err := store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "imp-X-42", matches[0].ID)
	assert.Equal(t, models.StatusScheduled, matches[0].Status)
	assert.Equal(t, models.SourceScraped, matches[0].Source)
	assert.NotEqual(t, matches[0].ID, matches[1].ID)
}

func TestRunMergePreservesGoalieAndManualStats(t *testing.T) {
	imp, store := newTestImporter(t)

	// First import creates the fixture; the user then records their data.
	first := Record{
		ExternalID: "X-42",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
	}
	_, err := imp.Run(context.Background(), batchProducer{records: []Record{first}})
	require.NoError(t, err)

	matches, err := store.Matches()
	require.NoError(t, err)
	matches[0].GoalieID = "g1"
	matches[0].ManualStats = &models.ManualStats{Shots: 25, Saves: 23, Goals: 2}
	require.NoError(t, store.SaveMatches(matches))

	// The source later publishes the result for the same fixture.
	second := first
	second.Score = &models.Score{Home: 4, Away: 2}
	second.Completed = true
	summary, err := imp.Run(context.Background(), batchProducer{records: []Record{second}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Merged: 1}, summary)

	matches, err = store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 1, "re-import merged, not duplicated")
	assert.Equal(t, "g1", matches[0].GoalieID, "tracker-owned fields survive the merge")
	require.NotNil(t, matches[0].ManualStats)
	assert.Equal(t, 25, matches[0].ManualStats.Shots)
	require.NotNil(t, matches[0].Score)
	assert.Equal(t, 4, matches[0].Score.Home)
	assert.Equal(t, models.StatusCompleted, matches[0].Status)
}

func TestRunCompletedDoesNotRegressManualState(t *testing.T) {
	imp, store := newTestImporter(t)

	_, err := imp.Run(context.Background(), batchProducer{records: []Record{{
		ExternalID: "X-42",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
	}}})
	require.NoError(t, err)

	// The user is mid-tracking when the source marks the fixture completed.
	matches, err := store.Matches()
	require.NoError(t, err)
	matches[0].Status = models.StatusInProgress
	require.NoError(t, store.SaveMatches(matches))

	_, err = imp.Run(context.Background(), batchProducer{records: []Record{{
		ExternalID: "X-42",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Completed:  true,
	}}})
	require.NoError(t, err)

	matches, err = store.Matches()
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, matches[0].Status)
}

func TestRunIsIdempotent(t *testing.T) {
	imp, store := newTestImporter(t)

	records := []Record{{
		ExternalID: "X-42",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
	}}
	_, err := imp.Run(context.Background(), batchProducer{records: records})
	require.NoError(t, err)
	summary, err := imp.Run(context.Background(), batchProducer{records: records})
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Merged: 1}, summary)

	matches, err := store.Matches()
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunLinksCompetitionByCategory(t *testing.T) {
	imp, store := newTestImporter(t)
	require.NoError(t, store.SaveCompetitions([]models.Competition{
		{ID: "c1", Name: "Krajska liga U13", Category: "U13"},
	}))

	_, err := imp.Run(context.Background(), batchProducer{records: []Record{{
		ExternalID: "X-1",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Category:   "u13",
	}}})
	require.NoError(t, err)

	matches, err := store.Matches()
	require.NoError(t, err)
	assert.Equal(t, "c1", matches[0].CompetitionID)
}

func TestRunProducerError(t *testing.T) {
	imp, _ := newTestImporter(t)
	_, err := imp.Run(context.Background(), batchProducer{err: errors.New("fetch failed")})
	assert.Error(t, err)
}

func TestPrefixCategoryMatcher(t *testing.T) {
	competitions := []models.Competition{
		{ID: "c1", Name: "Krajska liga U13", Category: "U13"},
		{ID: "c2", Name: `Liga mladsich zaku "A"`, Category: `mladsi zaci "A"`},
	}
	m := PrefixCategoryMatcher{}

	id, ok := m.Match("U13", competitions)
	require.True(t, ok)
	assert.Equal(t, "c1", id)

	// Quote style and casing from the source do not matter.
	id, ok = m.Match(`MLADSI ZACI 'A'`, competitions)
	require.True(t, ok)
	assert.Equal(t, "c2", id)

	// Prefix overlap in either direction.
	id, ok = m.Match("Krajska liga", competitions)
	require.True(t, ok)
	assert.Equal(t, "c1", id)

	_, ok = m.Match("dorost", competitions)
	assert.False(t, ok)
	_, ok = m.Match("", competitions)
	assert.False(t, ok)
}
