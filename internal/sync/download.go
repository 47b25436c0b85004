package sync

import (
	"context"

	"github.com/jsvoboda/goaliesync/internal/metrics"
	"github.com/jsvoboda/goaliesync/internal/models"
	"github.com/jsvoboda/goaliesync/internal/remote"
)

// Download pulls every entity type from the remote store, translates rows
// through the entity mappers (normalizing match status along the way) and
// upserts them into the local cache keyed by canonical id. Remote data is
// authoritative and already deduplicated by the upload-side identity
// matching, so no Deduplicator runs here; the lifecycle auto-revert rule
// does run afterwards so derived match status stays consistent.
func (e *Engine) Download(ctx context.Context) Result {
	return e.guarded("download", func(result *Result) {
		metrics.SyncRuns.WithLabelValues("download").Inc()

		if err := e.downloadTeams(ctx, result); err != nil {
			result.fail("teams", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.downloadCompetitions(ctx, result); err != nil {
			result.fail("competitions", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.downloadSeasons(ctx, result); err != nil {
			result.fail("seasons", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.downloadGoalies(ctx, result); err != nil {
			result.fail("goalies", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.downloadMatches(ctx, result); err != nil {
			result.fail("matches", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.downloadEvents(ctx, result); err != nil {
			result.fail("events", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.revertEmptyCloses(); err != nil {
			result.fail("lifecycle", err)
		}
	})
}

// mergeByID overlays authoritative remote records onto the local collection:
// a local record whose id (directly or via the mapping table) matches an
// incoming canonical id is replaced; purely-local records are kept.
func mergeByID[T any](e *Engine, locals, incoming []T, id func(T) string) []T {
	seen := map[string]bool{}
	out := make([]T, 0, len(incoming)+len(locals))
	for _, item := range incoming {
		seen[id(item)] = true
		out = append(out, item)
	}
	for _, item := range locals {
		resolved, ok := e.ids.Lookup(id(item))
		if ok && seen[resolved] {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (e *Engine) downloadTeams(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListTeams(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.Team, 0, len(rows))
	for _, row := range rows {
		incoming = append(incoming, remote.FromTeamRow(row))
	}
	locals, err := e.local.Teams()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(t models.Team) string { return t.ID })
	if err := e.local.SaveTeams(merged); err != nil {
		return err
	}
	result.Counts["teams"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "teams").Add(float64(len(incoming)))
	return nil
}

func (e *Engine) downloadCompetitions(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListCompetitions(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.Competition, 0, len(rows))
	for _, row := range rows {
		incoming = append(incoming, remote.FromCompetitionRow(row))
	}
	locals, err := e.local.Competitions()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(c models.Competition) string { return c.ID })
	if err := e.local.SaveCompetitions(merged); err != nil {
		return err
	}
	result.Counts["competitions"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "competitions").Add(float64(len(incoming)))
	return nil
}

func (e *Engine) downloadSeasons(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListSeasons(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.Season, 0, len(rows))
	for _, row := range rows {
		incoming = append(incoming, remote.FromSeasonRow(row))
	}
	locals, err := e.local.Seasons()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(s models.Season) string { return s.ID })
	if err := e.local.SaveSeasons(merged); err != nil {
		return err
	}
	result.Counts["seasons"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "seasons").Add(float64(len(incoming)))
	return nil
}

func (e *Engine) downloadGoalies(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListGoalies(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.Goalie, 0, len(rows))
	for _, row := range rows {
		incoming = append(incoming, remote.FromGoalieRow(row))
	}
	locals, err := e.local.Goalies()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(g models.Goalie) string { return g.ID })
	if err := e.local.SaveGoalies(merged); err != nil {
		return err
	}
	result.Counts["goalies"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "goalies").Add(float64(len(incoming)))
	return nil
}

func (e *Engine) downloadMatches(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListMatches(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		m, err := remote.FromMatchRow(row)
		if err != nil {
			return err
		}
		incoming = append(incoming, m)
	}
	locals, err := e.local.Matches()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(m models.Match) string { return m.ID })
	if err := e.local.SaveMatches(merged); err != nil {
		return err
	}
	result.Counts["matches"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "matches").Add(float64(len(incoming)))
	return nil
}

func (e *Engine) downloadEvents(ctx context.Context, result *Result) error {
	rows, err := e.remote.ListEvents(ctx)
	if err != nil {
		return err
	}
	incoming := make([]models.GoalieEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := remote.FromEventRow(row)
		if err != nil {
			return err
		}
		incoming = append(incoming, ev)
	}
	locals, err := e.local.Events()
	if err != nil {
		return err
	}
	merged := mergeByID(e, locals, incoming,
		func(ev models.GoalieEvent) string { return ev.ID })
	if err := e.local.SaveEvents(merged); err != nil {
		return err
	}
	result.Counts["events"] = len(incoming)
	metrics.SyncedRows.WithLabelValues("download", "events").Add(float64(len(incoming)))
	return nil
}

// revertEmptyCloses runs the auto-revert rule over the merged matches, so a
// close undone on another device settles here too.
func (e *Engine) revertEmptyCloses() error {
	matches, err := e.local.Matches()
	if err != nil {
		return err
	}
	changed := false
	for i := range matches {
		events, err := e.local.EventsForMatch(matches[i].ID)
		if err != nil {
			return err
		}
		reverted, err := e.lifecycle.AutoRevert(&matches[i], events)
		if err != nil {
			return err
		}
		changed = changed || reverted
	}
	if !changed {
		return nil
	}
	return e.local.SaveMatches(matches)
}
