// Package importer consumes external result producers (federation pages,
// already parsed into structured records) and folds their matches into the
// local cache. Records re-imported with the same external id merge into the
// existing match instead of duplicating it.
package importer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/dedupe"
	"github.com/jsvoboda/goaliesync/internal/identity"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
)

// Record is one match-shaped row from an external source. ExternalID is the
// source's own stable identifier for the fixture, the key re-imports are
// matched on.
type Record struct {
	ExternalID  string        `json:"external_id"`
	HomeTeam    string        `json:"home_team"`
	AwayTeam    string        `json:"away_team"`
	Datetime    time.Time     `json:"datetime"`
	Category    string        `json:"category,omitempty"`
	Season      string        `json:"season,omitempty"`
	Score       *models.Score `json:"score,omitempty"`
	Completed   bool          `json:"completed"`
	ExternalURL string        `json:"external_url,omitempty"`
}

// Producer yields structured records. The scraping/parsing behind it is out
// of scope; from here on a producer is just another upload source.
type Producer interface {
	Source() models.MatchSource
	Fetch(ctx context.Context) ([]Record, error)
}

// Summary reports what one import run did.
type Summary struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Merged  int `json:"merged"`
}

// Importer applies producer batches to the local cache.
type Importer struct {
	local   *localstore.Store
	matcher CategoryMatcher
	logger  *logrus.Logger
}

func New(local *localstore.Store, matcher CategoryMatcher, logger *logrus.Logger) *Importer {
	if matcher == nil {
		matcher = PrefixCategoryMatcher{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Importer{local: local, matcher: matcher, logger: logger}
}

// Run fetches one batch and folds it into the matches collection. Existing
// matches found by external id are updated in place — fields the source
// knows (score, datetime, completion) win, fields only the tracker knows
// (goalie assignment, manual stats) survive. The whole collection then runs
// through the Deduplicator, which is idempotent, so repeated imports of the
// same batch converge.
func (i *Importer) Run(ctx context.Context, producer Producer) (Summary, error) {
	records, err := producer.Fetch(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Fetched: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	matches, err := i.local.Matches()
	if err != nil {
		return summary, err
	}
	competitions, err := i.local.Competitions()
	if err != nil {
		return summary, err
	}
	byExternal := map[string]int{}
	for idx, m := range matches {
		if m.ExternalID != "" {
			byExternal[m.ExternalID] = idx
		}
	}

	now := time.Now()
	for _, record := range records {
		if idx, ok := byExternal[record.ExternalID]; ok && record.ExternalID != "" {
			mergeRecord(&matches[idx], record, now)
			summary.Merged++
			continue
		}
		match := models.Match{
			ID:          localID(record),
			HomeTeam:    record.HomeTeam,
			AwayTeam:    record.AwayTeam,
			Datetime:    record.Datetime,
			Category:    record.Category,
			Season:      record.Season,
			Score:       record.Score,
			Status:      recordStatus(record),
			Source:      producer.Source(),
			ExternalID:  record.ExternalID,
			ExternalURL: record.ExternalURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if id, ok := i.matcher.Match(record.Category, competitions); ok {
			match.CompetitionID = id
		}
		matches = append(matches, match)
		if record.ExternalID != "" {
			byExternal[record.ExternalID] = len(matches) - 1
		}
		summary.Added++
	}

	matches = dedupe.Matches(i.logger, matches)
	if err := i.local.SaveMatches(matches); err != nil {
		return summary, err
	}
	i.logger.WithFields(logrus.Fields{
		"source":  producer.Source(),
		"fetched": summary.Fetched,
		"added":   summary.Added,
		"merged":  summary.Merged,
	}).Info("import applied")
	return summary, nil
}

// localID derives a stable local id for an imported record. Both forms are
// deliberately not canonical-shaped, so the upload path still runs its
// adopt-before-mint matching against the remote store.
func localID(record Record) string {
	if record.ExternalID != "" {
		return "imp-" + record.ExternalID
	}
	return identity.NewLocalID()
}

func recordStatus(record Record) models.MatchStatus {
	if record.Completed {
		return models.StatusCompleted
	}
	return models.StatusScheduled
}

func mergeRecord(match *models.Match, record Record, now time.Time) {
	if record.Score != nil {
		match.Score = record.Score
	}
	if !record.Datetime.IsZero() {
		match.Datetime = record.Datetime
	}
	if record.ExternalURL != "" {
		match.ExternalURL = record.ExternalURL
	}
	if record.Completed && lifecycle.NormalizeStatus(string(match.Status)) == models.StatusScheduled {
		match.Status = models.StatusCompleted
	}
	match.UpdatedAt = now
}
