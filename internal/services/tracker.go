// Package services is the UI-facing mutation path. Every call writes the
// local cache synchronously — the local write is the fallback of record and
// always succeeds from the caller's perspective — then fires an
// opportunistic, non-blocking sync.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/identity"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
	syncengine "github.com/jsvoboda/goaliesync/internal/sync"
)

var ErrNotFound = errors.New("record not found")

type Tracker struct {
	local     *localstore.Store
	lifecycle *lifecycle.Machine
	engine    *syncengine.Engine
	logger    *logrus.Logger
	now       func() time.Time
}

func NewTracker(local *localstore.Store, lc *lifecycle.Machine, engine *syncengine.Engine, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{local: local, lifecycle: lc, engine: engine, logger: logger, now: time.Now}
}

// SetClock overrides the tracker's clock. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) CreateGoalie(goalie models.Goalie) (models.Goalie, error) {
	if goalie.ID == "" {
		goalie.ID = identity.NewLocalID()
	}
	goalie.CreatedAt = t.now()
	goalies, err := t.local.Goalies()
	if err != nil {
		return models.Goalie{}, err
	}
	if err := t.local.SaveGoalies(append(goalies, goalie)); err != nil {
		return models.Goalie{}, err
	}
	t.kickSync()
	return goalie, nil
}

func (t *Tracker) CreateMatch(match models.Match) (models.Match, error) {
	if match.ID == "" {
		match.ID = identity.NewLocalID()
	}
	if match.Status == "" {
		match.Status = models.StatusScheduled
	}
	if match.Source == "" {
		match.Source = models.SourceManual
	}
	match.Status = lifecycle.NormalizeStatus(string(match.Status))
	match.CreatedAt = t.now()
	match.UpdatedAt = match.CreatedAt
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

// AssignGoalie links a goalie to a match. Passing an empty goalieID
// unassigns; that is a state-affecting change, so the auto-revert rule runs.
func (t *Tracker) AssignGoalie(matchID, goalieID string) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	match.GoalieID = goalieID
	match.UpdatedAt = t.now()
	if err := t.settle(&match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

func (t *Tracker) UnassignGoalie(matchID string) (models.Match, error) {
	return t.AssignGoalie(matchID, "")
}

// RecordEvent appends a goalie event and, when the match is still
// scheduled, moves it to in_progress.
func (t *Tracker) RecordEvent(event models.GoalieEvent) (models.GoalieEvent, error) {
	match, ok, err := t.local.Match(event.MatchID)
	if err != nil {
		return models.GoalieEvent{}, err
	}
	if !ok {
		return models.GoalieEvent{}, ErrNotFound
	}
	if event.ID == "" {
		event.ID = identity.NewLocalID()
	}
	if event.Status == "" {
		event.Status = models.EventConfirmed
	}
	if event.GoalieID == "" {
		event.GoalieID = match.GoalieID
	}
	event.CreatedAt = t.now()

	events, err := t.local.Events()
	if err != nil {
		return models.GoalieEvent{}, err
	}
	if err := t.local.SaveEvents(append(events, event)); err != nil {
		return models.GoalieEvent{}, err
	}

	if lifecycle.NormalizeStatus(string(match.Status)) == models.StatusScheduled {
		match.Status = models.StatusInProgress
		match.UpdatedAt = t.now()
		if err := t.local.UpsertMatch(match); err != nil {
			return models.GoalieEvent{}, err
		}
	}
	t.kickSync()
	return event, nil
}

// DeleteEvent soft-deletes: the event becomes a tombstone that stays local
// until its deletion has been synced. Deleting the last live event of a
// completed match can trigger the auto-revert rule.
func (t *Tracker) DeleteEvent(eventID string) error {
	events, err := t.local.Events()
	if err != nil {
		return err
	}
	matchID := ""
	found := false
	for i := range events {
		if events[i].ID == eventID {
			events[i].Status = models.EventDeleted
			matchID = events[i].MatchID
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	if err := t.local.SaveEvents(events); err != nil {
		return err
	}

	if match, ok, err := t.local.Match(matchID); err != nil {
		return err
	} else if ok {
		if err := t.settle(&match); err != nil {
			return err
		}
	}
	t.kickSync()
	return nil
}

func (t *Tracker) CloseMatch(matchID string) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	if _, err := t.lifecycle.Close(&match); err != nil {
		return models.Match{}, err
	}
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

func (t *Tracker) ReopenMatch(matchID string) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	events, err := t.local.EventsForMatch(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if _, err := t.lifecycle.Reopen(&match, events); err != nil {
		return models.Match{}, err
	}
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

func (t *Tracker) CancelMatch(matchID string) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	if _, err := t.lifecycle.Cancel(&match); err != nil {
		return models.Match{}, err
	}
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

// SetManualStats records the shot/save/goal triple used when no event-level
// detail exists. Nil clears it, which is state-affecting.
func (t *Tracker) SetManualStats(matchID string, stats *models.ManualStats) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	match.ManualStats = stats
	match.UpdatedAt = t.now()
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

func (t *Tracker) SetScore(matchID string, score *models.Score) (models.Match, error) {
	match, ok, err := t.local.Match(matchID)
	if err != nil {
		return models.Match{}, err
	}
	if !ok {
		return models.Match{}, ErrNotFound
	}
	match.Score = score
	match.UpdatedAt = t.now()
	if err := t.local.UpsertMatch(match); err != nil {
		return models.Match{}, err
	}
	t.kickSync()
	return match, nil
}

// Seasons returns the explicit season records plus labels that so far only
// appear on matches. Derived entries carry no id; they become real records
// once created explicitly or adopted during sync.
func (t *Tracker) Seasons() ([]models.Season, error) {
	seasons, err := t.local.Seasons()
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, s := range seasons {
		known[s.Label] = true
	}
	matches, err := t.local.Matches()
	if err != nil {
		return nil, err
	}
	var derived []string
	for _, m := range matches {
		if m.Season != "" && !known[m.Season] {
			known[m.Season] = true
			derived = append(derived, m.Season)
		}
	}
	sort.Strings(derived)
	for _, label := range derived {
		seasons = append(seasons, models.Season{Label: label})
	}
	return seasons, nil
}

// DeleteMatch is the explicit both-copies delete.
func (t *Tracker) DeleteMatch(ctx context.Context, matchID string) error {
	return t.engine.DeleteMatch(ctx, matchID)
}

// settle persists a mutated match after running the auto-revert rule
// against its current events.
func (t *Tracker) settle(match *models.Match) error {
	events, err := t.local.EventsForMatch(match.ID)
	if err != nil {
		return err
	}
	if _, err := t.lifecycle.AutoRevert(match, events); err != nil {
		return err
	}
	return t.local.UpsertMatch(*match)
}

// kickSync fires a background upload after a mutation. Fire-and-forget: it
// must never block the interaction that triggered it, and a failure is
// logged, not surfaced.
func (t *Tracker) kickSync() {
	if t.engine == nil || !t.engine.Configured() {
		return
	}
	go func() {
		result := t.engine.Upload(context.Background())
		if !result.Success {
			t.logger.WithField("errors", result.Errors).Warn("opportunistic sync failed")
		}
	}()
}
