package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvoboda/goaliesync/internal/identity"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
	"github.com/jsvoboda/goaliesync/internal/remote"
)

// fakeRemote is an in-memory RemoteStore. An optional gate channel makes
// ListTeams block, which the single-flight test uses to hold a pass open.
type fakeRemote struct {
	mu           sync.Mutex
	teams        map[uuid.UUID]remote.TeamRow
	competitions map[uuid.UUID]remote.CompetitionRow
	seasons      map[uuid.UUID]remote.SeasonRow
	goalies      map[uuid.UUID]remote.GoalieRow
	matches      map[uuid.UUID]remote.MatchRow
	events       map[uuid.UUID]remote.EventRow

	gate       chan struct{}
	failUpsert map[string]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		teams:        map[uuid.UUID]remote.TeamRow{},
		competitions: map[uuid.UUID]remote.CompetitionRow{},
		seasons:      map[uuid.UUID]remote.SeasonRow{},
		goalies:      map[uuid.UUID]remote.GoalieRow{},
		matches:      map[uuid.UUID]remote.MatchRow{},
		events:       map[uuid.UUID]remote.EventRow{},
		failUpsert:   map[string]error{},
	}
}

func (f *fakeRemote) UpsertTeams(_ context.Context, rows []remote.TeamRow) error {
	if err := f.failUpsert["teams"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.teams[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) UpsertCompetitions(_ context.Context, rows []remote.CompetitionRow) error {
	if err := f.failUpsert["competitions"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.competitions[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) UpsertSeasons(_ context.Context, rows []remote.SeasonRow) error {
	if err := f.failUpsert["seasons"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.seasons[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) UpsertGoalies(_ context.Context, rows []remote.GoalieRow) error {
	if err := f.failUpsert["goalies"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.goalies[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) UpsertMatches(_ context.Context, rows []remote.MatchRow) error {
	if err := f.failUpsert["matches"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.matches[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) UpsertEvents(_ context.Context, rows []remote.EventRow) error {
	if err := f.failUpsert["events"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.events[r.ID] = r
	}
	return nil
}

func (f *fakeRemote) ListTeams(_ context.Context) ([]remote.TeamRow, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.TeamRow, 0, len(f.teams))
	for _, r := range f.teams {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) ListCompetitions(_ context.Context) ([]remote.CompetitionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.CompetitionRow, 0, len(f.competitions))
	for _, r := range f.competitions {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) ListSeasons(_ context.Context) ([]remote.SeasonRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.SeasonRow, 0, len(f.seasons))
	for _, r := range f.seasons {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) ListGoalies(_ context.Context) ([]remote.GoalieRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.GoalieRow, 0, len(f.goalies))
	for _, r := range f.goalies {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) ListMatches(_ context.Context) ([]remote.MatchRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.MatchRow, 0, len(f.matches))
	for _, r := range f.matches {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) ListEvents(_ context.Context) ([]remote.EventRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.EventRow, 0, len(f.events))
	for _, r := range f.events {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRemote) CountMatches(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.matches)), nil
}

func (f *fakeRemote) DeleteMatch(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.matches, id)
	for eid, ev := range f.events {
		if ev.MatchID == id {
			delete(f.events, eid)
		}
	}
	return nil
}

func newTestEngine(t *testing.T, rs RemoteStore) (*Engine, *localstore.Store) {
	t.Helper()
	store, err := localstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	resolver, err := identity.NewResolver(store)
	require.NoError(t, err)
	machine := lifecycle.NewMachine(store, nil)
	return NewEngine(store, rs, resolver, machine, nil), store
}

func TestUploadWithoutRemote(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	result := e.Upload(context.Background())
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], ErrRemoteNotConfigured.Error())
	assert.True(t, e.LastSync().IsZero())
}

func TestUploadPromotesAndIsIdempotent(t *testing.T) {
	rs := newFakeRemote()
	e, store := newTestEngine(t, rs)

	matchID := identity.NewLocalID()
	goalieID := identity.NewLocalID()
	require.NoError(t, store.SaveGoalies([]models.Goalie{{ID: goalieID, Name: "Tereza Novakova"}}))
	require.NoError(t, store.SaveTeams([]models.Team{{ID: identity.NewLocalID(), Name: "HC Kobra"}}))
	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       matchID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
		GoalieID: goalieID,
	}}))
	require.NoError(t, store.SaveEvents([]models.GoalieEvent{{
		ID:      identity.NewLocalID(),
		MatchID: matchID,
		Result:  models.ResultSave,
		Status:  models.EventConfirmed,
	}}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Counts["teams"])
	assert.Equal(t, 1, result.Counts["goalies"])
	assert.Equal(t, 1, result.Counts["matches"])
	assert.Equal(t, 1, result.Counts["events"])
	assert.Empty(t, result.Deferred)
	assert.Len(t, rs.matches, 1)
	assert.Len(t, rs.events, 1)
	assert.False(t, e.LastSync().IsZero())

	// After promotion the local cache carries canonical ids only.
	matches, err := store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, identity.IsCanonical(matches[0].ID))
	assert.True(t, identity.IsCanonical(matches[0].GoalieID))

	var firstRow remote.MatchRow
	for _, row := range rs.matches {
		firstRow = row
	}

	// A second pass with unchanged data does not grow the remote side and
	// leaves the row content untouched.
	result = e.Upload(context.Background())
	require.True(t, result.Success)
	assert.Len(t, rs.matches, 1)
	assert.Len(t, rs.events, 1)
	assert.Len(t, rs.goalies, 1)

	var secondRow remote.MatchRow
	for _, row := range rs.matches {
		secondRow = row
	}
	secondRow.UpdatedAt = firstRow.UpdatedAt
	assert.Equal(t, firstRow, secondRow)
}

func TestUploadAdoptsRemoteMatchByExternalID(t *testing.T) {
	rs := newFakeRemote()
	remoteID := uuid.New()
	rs.matches[remoteID] = remote.MatchRow{
		ID:         remoteID,
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:     "scheduled",
		ExternalID: "X-42",
	}
	e, store := newTestEngine(t, rs)

	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:         "imp-X-42",
		HomeTeam:   "HC Kobra",
		AwayTeam:   "HC Hvezda",
		Datetime:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:     models.StatusScheduled,
		ExternalID: "X-42",
	}}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Len(t, rs.matches, 1, "existing remote row adopted, not duplicated")

	matches, err := store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, remoteID.String(), matches[0].ID)
}

func TestUploadAdoptsRemoteMatchByFixture(t *testing.T) {
	rs := newFakeRemote()
	remoteID := uuid.New()
	kickoff := time.Date(2026, 3, 8, 10, 30, 0, 0, time.UTC)
	rs.matches[remoteID] = remote.MatchRow{
		ID:       remoteID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: kickoff,
		Status:   "scheduled",
	}
	e, store := newTestEngine(t, rs)

	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       identity.NewLocalID(),
		HomeTeam: "hc kobra", // same fixture, different casing
		AwayTeam: "HC Hvezda",
		Datetime: kickoff,
		Status:   models.StatusScheduled,
	}}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Len(t, rs.matches, 1)
}

func TestUploadAdoptsRemoteGoalieByName(t *testing.T) {
	rs := newFakeRemote()
	remoteID := uuid.New()
	rs.goalies[remoteID] = remote.GoalieRow{ID: remoteID, Name: "Tereza Novakova"}
	e, store := newTestEngine(t, rs)

	require.NoError(t, store.SaveGoalies([]models.Goalie{{
		ID:   identity.NewLocalID(),
		Name: "tereza novakova",
	}}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Len(t, rs.goalies, 1)
}

func TestUploadDefersEventWithUnknownMatch(t *testing.T) {
	rs := newFakeRemote()
	e, store := newTestEngine(t, rs)

	orphan := models.GoalieEvent{
		ID:      identity.NewLocalID(),
		MatchID: identity.NewLocalID(), // no such match locally or remotely
		Result:  models.ResultGoal,
		Status:  models.EventConfirmed,
	}
	require.NoError(t, store.SaveEvents([]models.GoalieEvent{orphan}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "deferral is not an error: %v", result.Errors)
	assert.Equal(t, []string{orphan.ID}, result.Deferred)
	assert.Empty(t, rs.events)

	// The event stays local untouched, ready for the next pass.
	events, err := store.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, orphan.ID, events[0].ID)
}

func TestUploadDropsTombstoneAfterConfirmation(t *testing.T) {
	rs := newFakeRemote()
	e, store := newTestEngine(t, rs)

	matchID := identity.NewLocalID()
	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       matchID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
	}}))
	require.NoError(t, store.SaveEvents([]models.GoalieEvent{
		{ID: identity.NewLocalID(), MatchID: matchID, Result: models.ResultSave, Status: models.EventConfirmed},
		{ID: identity.NewLocalID(), MatchID: matchID, Result: models.ResultGoal, Status: models.EventDeleted},
	}))

	result := e.Upload(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 2, result.Counts["events"], "the tombstone is synced before removal")

	events, err := store.Events()
	require.NoError(t, err)
	require.Len(t, events, 1, "tombstone physically removed after remote confirmation")
	assert.Equal(t, models.EventConfirmed, events[0].Status)
}

func TestUploadContinuesPastFailedEntityType(t *testing.T) {
	rs := newFakeRemote()
	rs.failUpsert["goalies"] = errors.New("connection reset")
	e, store := newTestEngine(t, rs)

	require.NoError(t, store.SaveGoalies([]models.Goalie{{ID: identity.NewLocalID(), Name: "Tereza"}}))
	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       identity.NewLocalID(),
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
	}}))

	result := e.Upload(context.Background())
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "goalies")
	// Matches still made it out.
	assert.Len(t, rs.matches, 1)
	// A failed pass does not advance the last-sync timestamp.
	assert.True(t, e.LastSync().IsZero())
}

func TestUploadSingleFlight(t *testing.T) {
	rs := newFakeRemote()
	rs.gate = make(chan struct{})
	e, store := newTestEngine(t, rs)
	require.NoError(t, store.SaveTeams([]models.Team{{ID: identity.NewLocalID(), Name: "HC Kobra"}}))

	started := make(chan Result, 1)
	go func() {
		started <- e.Upload(context.Background())
	}()

	// Wait until the first pass is inside the guard.
	require.Eventually(t, e.InFlight, time.Second, time.Millisecond)

	second := e.Upload(context.Background())
	assert.False(t, second.Success)
	require.Len(t, second.Errors, 1)
	assert.Contains(t, second.Errors[0], ErrSyncInFlight.Error())

	close(rs.gate)
	first := <-started
	assert.True(t, first.Success, "errors: %v", first.Errors)
	assert.False(t, e.InFlight())
}

func TestDownloadMergesRemoteOverLocal(t *testing.T) {
	rs := newFakeRemote()
	goalieID := uuid.New()
	matchID := uuid.New()
	rs.goalies[goalieID] = remote.GoalieRow{ID: goalieID, Name: "Tereza Novakova"}
	rs.matches[matchID] = remote.MatchRow{
		ID:       matchID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   "closed", // legacy writer
	}
	e, store := newTestEngine(t, rs)

	// A purely-local match that never synced must survive the merge.
	localOnly := models.Match{
		ID:       identity.NewLocalID(),
		HomeTeam: "HC Orli",
		AwayTeam: "HC Draci",
		Datetime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
	}
	require.NoError(t, store.SaveMatches([]models.Match{localOnly}))

	result := e.Download(context.Background())
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Counts["goalies"])
	assert.Equal(t, 1, result.Counts["matches"])

	matches, err := store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, matchID.String(), matches[0].ID)
	assert.Equal(t, models.StatusCompleted, matches[0].Status, "legacy status normalized on the way in")
	assert.Equal(t, localOnly.ID, matches[1].ID)
}

func TestDownloadReplacesPreviouslySyncedLocal(t *testing.T) {
	rs := newFakeRemote()
	e, store := newTestEngine(t, rs)

	// First upload promotes the local match to a canonical id.
	localID := identity.NewLocalID()
	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       localID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
	}}))
	require.True(t, e.Upload(context.Background()).Success)

	// Another device set the score on the remote row.
	rs.mu.Lock()
	for id, row := range rs.matches {
		home, away := 5, 1
		row.ScoreHome, row.ScoreAway = &home, &away
		rs.matches[id] = row
	}
	rs.mu.Unlock()

	require.True(t, e.Download(context.Background()).Success)
	matches, err := store.Matches()
	require.NoError(t, err)
	require.Len(t, matches, 1, "remote copy replaces the synced local, no duplicate")
	require.NotNil(t, matches[0].Score)
	assert.Equal(t, 5, matches[0].Score.Home)
}

func TestDownloadAdvancesLastSync(t *testing.T) {
	rs := newFakeRemote()
	e, _ := newTestEngine(t, rs)
	require.True(t, e.LastSync().IsZero())

	require.True(t, e.Download(context.Background()).Success)
	assert.False(t, e.LastSync().IsZero(), "a clean download counts as a sync")
}

func TestRemoteMatchCount(t *testing.T) {
	rs := newFakeRemote()
	matchID := uuid.New()
	rs.matches[matchID] = remote.MatchRow{ID: matchID, HomeTeam: "HC Kobra", AwayTeam: "HC Hvezda", Status: "scheduled"}

	e, _ := newTestEngine(t, rs)
	n, err := e.RemoteMatchCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unconfigured, _ := newTestEngine(t, nil)
	_, err = unconfigured.RemoteMatchCount(context.Background())
	assert.ErrorIs(t, err, ErrRemoteNotConfigured)
}

func TestDeleteMatchPropagates(t *testing.T) {
	rs := newFakeRemote()
	e, store := newTestEngine(t, rs)

	matchID := identity.NewLocalID()
	require.NoError(t, store.SaveMatches([]models.Match{{
		ID:       matchID,
		HomeTeam: "HC Kobra",
		AwayTeam: "HC Hvezda",
		Datetime: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		Status:   models.StatusScheduled,
	}}))
	require.NoError(t, store.SaveEvents([]models.GoalieEvent{{
		ID: identity.NewLocalID(), MatchID: matchID, Result: models.ResultSave, Status: models.EventConfirmed,
	}}))
	require.True(t, e.Upload(context.Background()).Success)
	require.Len(t, rs.matches, 1)
	require.Len(t, rs.events, 1)

	matches, err := store.Matches()
	require.NoError(t, err)
	canonical := matches[0].ID

	require.NoError(t, e.DeleteMatch(context.Background(), canonical))
	assert.Empty(t, rs.matches)
	assert.Empty(t, rs.events)

	matches, err = store.Matches()
	require.NoError(t, err)
	assert.Empty(t, matches)
	events, err := store.Events()
	require.NoError(t, err)
	assert.Empty(t, events)
}
