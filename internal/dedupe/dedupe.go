// Package dedupe collapses batches of records that may describe the same
// real-world entity, arriving through more than one path (manual entry,
// remote query, repeated imports).
package dedupe

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/models"
)

// Completeness scores a match by how much recorded substance it carries.
// Used to decide which of two externalId-colliding records survives.
func Completeness(m models.Match) int {
	score := 0
	if m.GoalieID != "" {
		score++
	}
	if m.ManualStats != nil {
		score++
	}
	if m.Score != nil {
		score++
	}
	return score
}

// Matches collapses a batch of matches. Rules, in order:
//
//  1. a record whose id was already kept is dropped (hard duplicate);
//  2. a record sharing a non-empty externalId with a kept record replaces it
//     only when strictly more complete, otherwise it is discarded;
//  3. records sharing neither id nor externalId are all kept — two fixtures
//     between the same teams on the same day are legitimate tournament play,
//     so identical (datetime, home, away) triples only get a diagnostic line.
//
// The relative order of first-kept occurrences is preserved, and the whole
// operation is idempotent.
func Matches(logger *logrus.Logger, in []models.Match) []models.Match {
	out := make([]models.Match, 0, len(in))
	seenID := map[string]bool{}
	byExternal := map[string]int{} // externalId -> index in out
	seenKey := map[string]bool{}   // datetime+home+away, diagnostics only

	for _, m := range in {
		if m.ID != "" && seenID[m.ID] {
			continue
		}

		if m.ExternalID != "" {
			if idx, ok := byExternal[m.ExternalID]; ok {
				if Completeness(m) > Completeness(out[idx]) {
					if m.ID != "" {
						seenID[m.ID] = true
					}
					out[idx] = m
				}
				continue
			}
			byExternal[m.ExternalID] = len(out)
		}

		key := fixtureKey(m)
		if seenKey[key] && m.ExternalID == "" && logger != nil {
			logger.WithFields(logrus.Fields{
				"home":     m.HomeTeam,
				"away":     m.AwayTeam,
				"datetime": m.Datetime,
			}).Debug("keeping same-day fixture pair, not collapsing")
		}
		seenKey[key] = true

		if m.ID != "" {
			seenID[m.ID] = true
		}
		out = append(out, m)
	}
	return out
}

// Teams collapses a team batch by id, externalId and case-insensitive name.
// Team records carry no completeness signal; first occurrence wins.
func Teams(in []models.Team) []models.Team {
	out := make([]models.Team, 0, len(in))
	seenID := map[string]bool{}
	seenExternal := map[string]bool{}
	seenName := map[string]bool{}
	for _, t := range in {
		if t.ID != "" && seenID[t.ID] {
			continue
		}
		if t.ExternalID != "" && seenExternal[t.ExternalID] {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name != "" && seenName[name] {
			continue
		}
		if t.ID != "" {
			seenID[t.ID] = true
		}
		if t.ExternalID != "" {
			seenExternal[t.ExternalID] = true
		}
		if name != "" {
			seenName[name] = true
		}
		out = append(out, t)
	}
	return out
}

func fixtureKey(m models.Match) string {
	return m.Datetime.UTC().Format("2006-01-02T15:04") + "|" +
		strings.ToLower(strings.TrimSpace(m.HomeTeam)) + "|" +
		strings.ToLower(strings.TrimSpace(m.AwayTeam))
}
