package sync

import (
	"context"
	"strings"
	"time"

	"github.com/jsvoboda/goaliesync/internal/dedupe"
	"github.com/jsvoboda/goaliesync/internal/metrics"
	"github.com/jsvoboda/goaliesync/internal/models"
	"github.com/jsvoboda/goaliesync/internal/remote"
)

// Upload pushes the local cache to the remote store in strict dependency
// order — teams, competitions, seasons, goalies, matches, events — because
// later entity types reference earlier ones by canonical id. A failed entity
// type is recorded and the remaining types still run; Success is false when
// any type failed. Events whose match is not confirmed remote come back in
// Deferred and are retried on the next pass.
func (e *Engine) Upload(ctx context.Context) Result {
	return e.guarded("upload", func(result *Result) {
		metrics.SyncRuns.WithLabelValues("upload").Inc()

		if err := e.uploadTeams(ctx, result); err != nil {
			result.fail("teams", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.uploadCompetitions(ctx, result); err != nil {
			result.fail("competitions", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.uploadSeasons(ctx, result); err != nil {
			result.fail("seasons", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.uploadGoalies(ctx, result); err != nil {
			result.fail("goalies", err)
			metrics.FailedEntityTypes.Inc()
		}
		remoteMatchIDs, err := e.uploadMatches(ctx, result)
		if err != nil {
			result.fail("matches", err)
			metrics.FailedEntityTypes.Inc()
		}
		if err := e.uploadEvents(ctx, result, remoteMatchIDs); err != nil {
			result.fail("events", err)
			metrics.FailedEntityTypes.Inc()
		}
	})
}

// promote resolves id to canonical form, first trying to adopt an existing
// remote id found by the supplied matchers (in priority order), minting only
// when nothing matches. Matchers return the candidate remote canonical id.
func (e *Engine) promote(id string, matchers ...func() (string, bool)) (string, error) {
	if canonical, ok := e.ids.Lookup(id); ok {
		return canonical, nil
	}
	for _, match := range matchers {
		if canonical, ok := match(); ok {
			if err := e.ids.Adopt(id, canonical); err != nil {
				return "", err
			}
			return canonical, nil
		}
	}
	return e.ids.Resolve(id)
}

func nameKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fixtureKey is the case-insensitive datetime+home+away identity used as the
// last-resort match against remote rows that carry neither a known canonical
// id nor an external id.
func fixtureKey(datetime time.Time, home, away string) string {
	return datetime.UTC().Format("2006-01-02T15:04") + "|" + nameKey(home) + "|" + nameKey(away)
}

func (e *Engine) uploadTeams(ctx context.Context, result *Result) error {
	locals, err := e.local.Teams()
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}
	existing, err := e.remote.ListTeams(ctx)
	if err != nil {
		return err
	}
	byExternal := map[string]string{}
	byName := map[string]string{}
	for _, row := range existing {
		if row.ExternalID != "" {
			byExternal[row.ExternalID] = row.ID.String()
		}
		byName[nameKey(row.Name)] = row.ID.String()
	}

	for i := range locals {
		t := &locals[i]
		canonical, err := e.promote(t.ID,
			func() (string, bool) { id, ok := byExternal[t.ExternalID]; return id, ok && t.ExternalID != "" },
			func() (string, bool) { id, ok := byName[nameKey(t.Name)]; return id, ok },
		)
		if err != nil {
			return err
		}
		t.ID = canonical
	}
	locals = dedupe.Teams(locals)

	rows := make([]remote.TeamRow, 0, len(locals))
	for _, t := range locals {
		row, err := remote.ToTeamRow(t)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertTeams(ctx, rows); err != nil {
		return err
	}
	if err := e.local.SaveTeams(locals); err != nil {
		return err
	}
	result.Counts["teams"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "teams").Add(float64(len(rows)))
	return nil
}

func (e *Engine) uploadCompetitions(ctx context.Context, result *Result) error {
	locals, err := e.local.Competitions()
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}
	existing, err := e.remote.ListCompetitions(ctx)
	if err != nil {
		return err
	}
	byExternal := map[string]string{}
	byKey := map[string]string{}
	for _, row := range existing {
		if row.ExternalID != "" {
			byExternal[row.ExternalID] = row.ID.String()
		}
		byKey[nameKey(row.Name)+"|"+row.Season] = row.ID.String()
	}

	for i := range locals {
		c := &locals[i]
		canonical, err := e.promote(c.ID,
			func() (string, bool) { id, ok := byExternal[c.ExternalID]; return id, ok && c.ExternalID != "" },
			func() (string, bool) { id, ok := byKey[nameKey(c.Name)+"|"+c.Season]; return id, ok },
		)
		if err != nil {
			return err
		}
		c.ID = canonical
	}

	rows := make([]remote.CompetitionRow, 0, len(locals))
	for _, c := range locals {
		row, err := remote.ToCompetitionRow(c)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertCompetitions(ctx, rows); err != nil {
		return err
	}
	if err := e.local.SaveCompetitions(locals); err != nil {
		return err
	}
	result.Counts["competitions"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "competitions").Add(float64(len(rows)))
	return nil
}

func (e *Engine) uploadSeasons(ctx context.Context, result *Result) error {
	locals, err := e.local.Seasons()
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}
	existing, err := e.remote.ListSeasons(ctx)
	if err != nil {
		return err
	}
	byLabel := map[string]string{}
	for _, row := range existing {
		byLabel[row.Label] = row.ID.String()
	}

	for i := range locals {
		s := &locals[i]
		canonical, err := e.promote(s.ID,
			func() (string, bool) { id, ok := byLabel[s.Label]; return id, ok },
		)
		if err != nil {
			return err
		}
		s.ID = canonical
	}

	rows := make([]remote.SeasonRow, 0, len(locals))
	for _, s := range locals {
		row, err := remote.ToSeasonRow(s)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertSeasons(ctx, rows); err != nil {
		return err
	}
	if err := e.local.SaveSeasons(locals); err != nil {
		return err
	}
	result.Counts["seasons"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "seasons").Add(float64(len(rows)))
	return nil
}

func (e *Engine) uploadGoalies(ctx context.Context, result *Result) error {
	locals, err := e.local.Goalies()
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}
	existing, err := e.remote.ListGoalies(ctx)
	if err != nil {
		return err
	}
	byName := map[string]string{}
	for _, row := range existing {
		byName[nameKey(row.Name)] = row.ID.String()
	}

	for i := range locals {
		g := &locals[i]
		canonical, err := e.promote(g.ID,
			func() (string, bool) { id, ok := byName[nameKey(g.Name)]; return id, ok },
		)
		if err != nil {
			return err
		}
		g.ID = canonical
	}

	rows := make([]remote.GoalieRow, 0, len(locals))
	for _, g := range locals {
		row, err := remote.ToGoalieRow(g)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertGoalies(ctx, rows); err != nil {
		return err
	}
	if err := e.local.SaveGoalies(locals); err != nil {
		return err
	}
	result.Counts["goalies"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "goalies").Add(float64(len(rows)))
	return nil
}

// uploadMatches returns the set of canonical match ids confirmed to exist
// remotely after this pass; the event pass checks against it.
func (e *Engine) uploadMatches(ctx context.Context, result *Result) (map[string]bool, error) {
	confirmed := map[string]bool{}
	existing, err := e.remote.ListMatches(ctx)
	if err != nil {
		return nil, err
	}
	byExternal := map[string]string{}
	byFixture := map[string]string{}
	for _, row := range existing {
		confirmed[row.ID.String()] = true
		if row.ExternalID != "" {
			byExternal[row.ExternalID] = row.ID.String()
		}
		byFixture[fixtureKey(row.Datetime, row.HomeTeam, row.AwayTeam)] = row.ID.String()
	}

	locals, err := e.local.Matches()
	if err != nil {
		return confirmed, err
	}
	if len(locals) == 0 {
		return confirmed, nil
	}
	locals = dedupe.Matches(e.logger, locals)

	for i := range locals {
		m := &locals[i]
		canonical, err := e.promote(m.ID,
			func() (string, bool) { id, ok := byExternal[m.ExternalID]; return id, ok && m.ExternalID != "" },
			func() (string, bool) {
				id, ok := byFixture[fixtureKey(m.Datetime, m.HomeTeam, m.AwayTeam)]
				return id, ok
			},
		)
		if err != nil {
			return confirmed, err
		}
		if canonical != m.ID {
			// Keep the side table keyed by the id the match now carries.
			if original, ok, err := e.lifecycle.Original(m.ID); err == nil && ok {
				if err := e.lifecycle.Forget(m.ID); err == nil {
					if err := e.lifecycle.Remember(canonical, original); err != nil {
						e.logger.WithError(err).Warn("rekey original datetime")
					}
				}
			}
		}
		m.ID = canonical

		// Foreign keys were promoted in earlier passes; resolving here only
		// consults the mapping (or mints for references that never synced,
		// keeping them stable for when their owner does).
		if m.HomeTeamID, err = e.ids.Resolve(m.HomeTeamID); err != nil {
			return confirmed, err
		}
		if m.AwayTeamID, err = e.ids.Resolve(m.AwayTeamID); err != nil {
			return confirmed, err
		}
		if m.CompetitionID, err = e.ids.Resolve(m.CompetitionID); err != nil {
			return confirmed, err
		}
		if m.GoalieID, err = e.ids.Resolve(m.GoalieID); err != nil {
			return confirmed, err
		}
	}

	rows := make([]remote.MatchRow, 0, len(locals))
	for _, m := range locals {
		row, err := remote.ToMatchRow(m)
		if err != nil {
			return confirmed, err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertMatches(ctx, rows); err != nil {
		return confirmed, err
	}
	if err := e.local.SaveMatches(locals); err != nil {
		return confirmed, err
	}
	for _, m := range locals {
		confirmed[m.ID] = true
	}
	result.Counts["matches"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "matches").Add(float64(len(rows)))
	return confirmed, nil
}

func (e *Engine) uploadEvents(ctx context.Context, result *Result, remoteMatches map[string]bool) error {
	locals, err := e.local.Events()
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		return nil
	}

	var uploadable []models.GoalieEvent
	var kept []models.GoalieEvent
	for _, ev := range locals {
		matchID, ok := e.ids.Lookup(ev.MatchID)
		if !ok || !remoteMatches[matchID] {
			// Held back, not dropped: the match has not synced yet. Retried
			// on the next pass once its match is confirmed remote.
			result.Deferred = append(result.Deferred, ev.ID)
			metrics.DeferredEvents.Inc()
			kept = append(kept, ev)
			continue
		}
		ev.MatchID = matchID
		if ev.ID, err = e.ids.Resolve(ev.ID); err != nil {
			return err
		}
		if ev.GoalieID, err = e.ids.Resolve(ev.GoalieID); err != nil {
			return err
		}
		uploadable = append(uploadable, ev)
	}

	rows := make([]remote.EventRow, 0, len(uploadable))
	for _, ev := range uploadable {
		row, err := remote.ToEventRow(ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := e.remote.UpsertEvents(ctx, rows); err != nil {
		return err
	}

	// Tombstones are physically dropped only now that the remote copy has
	// confirmed them; everything else is kept in promoted form.
	for _, ev := range uploadable {
		if ev.Status != models.EventDeleted {
			kept = append(kept, ev)
		}
	}
	if err := e.local.SaveEvents(kept); err != nil {
		return err
	}
	result.Counts["events"] = len(rows)
	metrics.SyncedRows.WithLabelValues("upload", "events").Add(float64(len(rows)))
	return nil
}
