package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/models"
)

// Explicit bidirectional mappers between the internal entity shapes and the
// remote rows. Every entity that crosses the wire passes through exactly one
// To*/From* pair; round-trip behavior is pinned by tests.

// coordinates is the wire layout of EventRow.Coordinates.
type coordinates struct {
	ShotX *float64 `json:"shot_x,omitempty"`
	ShotY *float64 `json:"shot_y,omitempty"`
	GoalX *float64 `json:"goal_x,omitempty"`
	GoalY *float64 `json:"goal_y,omitempty"`
	Zone  string   `json:"zone,omitempty"`
}

func parseCanonical(kind, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("remote: %s id %q is not canonical: %w", kind, id, err)
	}
	return parsed, nil
}

// parseOptional validates an optional foreign key; empty maps to NULL.
func parseOptional(kind, id string) (*uuid.UUID, error) {
	if id == "" {
		return nil, nil
	}
	parsed, err := parseCanonical(kind, id)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func ToGoalieRow(g models.Goalie) (GoalieRow, error) {
	id, err := parseCanonical("goalie", g.ID)
	if err != nil {
		return GoalieRow{}, err
	}
	return GoalieRow{
		ID:        id,
		Name:      g.Name,
		CatchHand: g.CatchHand,
		BirthYear: g.BirthYear,
		CreatedAt: g.CreatedAt,
	}, nil
}

func FromGoalieRow(r GoalieRow) models.Goalie {
	return models.Goalie{
		ID:        r.ID.String(),
		Name:      r.Name,
		CatchHand: r.CatchHand,
		BirthYear: r.BirthYear,
		CreatedAt: r.CreatedAt,
	}
}

func ToTeamRow(t models.Team) (TeamRow, error) {
	id, err := parseCanonical("team", t.ID)
	if err != nil {
		return TeamRow{}, err
	}
	return TeamRow{ID: id, Name: t.Name, ExternalID: t.ExternalID}, nil
}

func FromTeamRow(r TeamRow) models.Team {
	return models.Team{ID: r.ID.String(), Name: r.Name, ExternalID: r.ExternalID}
}

func ToCompetitionRow(c models.Competition) (CompetitionRow, error) {
	id, err := parseCanonical("competition", c.ID)
	if err != nil {
		return CompetitionRow{}, err
	}
	return CompetitionRow{
		ID:         id,
		Name:       c.Name,
		Category:   c.Category,
		Season:     c.Season,
		ExternalID: c.ExternalID,
	}, nil
}

func FromCompetitionRow(r CompetitionRow) models.Competition {
	return models.Competition{
		ID:         r.ID.String(),
		Name:       r.Name,
		Category:   r.Category,
		Season:     r.Season,
		ExternalID: r.ExternalID,
	}
}

func ToSeasonRow(s models.Season) (SeasonRow, error) {
	id, err := parseCanonical("season", s.ID)
	if err != nil {
		return SeasonRow{}, err
	}
	return SeasonRow{ID: id, Label: s.Label}, nil
}

func FromSeasonRow(r SeasonRow) models.Season {
	return models.Season{ID: r.ID.String(), Label: r.Label}
}

// ToMatchRow maps a match whose references have already been resolved to
// canonical ids. Status is written in the normalized four-state form.
func ToMatchRow(m models.Match) (MatchRow, error) {
	id, err := parseCanonical("match", m.ID)
	if err != nil {
		return MatchRow{}, err
	}
	homeID, err := parseOptional("home team", m.HomeTeamID)
	if err != nil {
		return MatchRow{}, err
	}
	awayID, err := parseOptional("away team", m.AwayTeamID)
	if err != nil {
		return MatchRow{}, err
	}
	compID, err := parseOptional("competition", m.CompetitionID)
	if err != nil {
		return MatchRow{}, err
	}
	goalieID, err := parseOptional("goalie", m.GoalieID)
	if err != nil {
		return MatchRow{}, err
	}
	row := MatchRow{
		ID:            id,
		HomeTeam:      m.HomeTeam,
		AwayTeam:      m.AwayTeam,
		HomeTeamID:    homeID,
		AwayTeamID:    awayID,
		CompetitionID: compID,
		Category:      m.Category,
		Season:        m.Season,
		Datetime:      m.Datetime.UTC(),
		Status:        string(lifecycle.NormalizeStatus(string(m.Status))),
		GoalieID:      goalieID,
		Source:        string(m.Source),
		ExternalID:    m.ExternalID,
		ExternalURL:   m.ExternalURL,
		CreatedAt:     m.CreatedAt,
	}
	if m.Score != nil {
		home, away := m.Score.Home, m.Score.Away
		row.ScoreHome, row.ScoreAway = &home, &away
	}
	if m.ManualStats != nil {
		data, err := json.Marshal(m.ManualStats)
		if err != nil {
			return MatchRow{}, fmt.Errorf("remote: marshal manual stats: %w", err)
		}
		row.ManualStats = datatypes.JSON(data)
	}
	return row, nil
}

// FromMatchRow translates a remote row into the local shape, applying status
// normalization (remote rows written by legacy clients may still carry
// open/closed).
func FromMatchRow(r MatchRow) (models.Match, error) {
	m := models.Match{
		ID:            r.ID.String(),
		HomeTeam:      r.HomeTeam,
		AwayTeam:      r.AwayTeam,
		HomeTeamID:    optionalString(r.HomeTeamID),
		AwayTeamID:    optionalString(r.AwayTeamID),
		CompetitionID: optionalString(r.CompetitionID),
		Category:      r.Category,
		Season:        r.Season,
		Datetime:      r.Datetime,
		Status:        lifecycle.NormalizeStatus(r.Status),
		GoalieID:      optionalString(r.GoalieID),
		Source:        models.MatchSource(r.Source),
		ExternalID:    r.ExternalID,
		ExternalURL:   r.ExternalURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ScoreHome != nil && r.ScoreAway != nil {
		m.Score = &models.Score{Home: *r.ScoreHome, Away: *r.ScoreAway}
	}
	if len(r.ManualStats) > 0 {
		var stats models.ManualStats
		if err := json.Unmarshal(r.ManualStats, &stats); err != nil {
			return models.Match{}, fmt.Errorf("remote: unmarshal manual stats for %s: %w", r.ID, err)
		}
		m.ManualStats = &stats
	}
	return m, nil
}

func ToEventRow(e models.GoalieEvent) (EventRow, error) {
	id, err := parseCanonical("event", e.ID)
	if err != nil {
		return EventRow{}, err
	}
	matchID, err := parseCanonical("match", e.MatchID)
	if err != nil {
		return EventRow{}, err
	}
	var goalieID uuid.UUID
	if e.GoalieID != "" {
		goalieID, err = parseCanonical("goalie", e.GoalieID)
		if err != nil {
			return EventRow{}, err
		}
	}
	row := EventRow{
		ID:        id,
		MatchID:   matchID,
		GoalieID:  goalieID,
		Period:    e.Period,
		GameTime:  e.GameTime,
		Result:    string(e.Result),
		Situation: string(e.Situation),
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt,
	}
	if e.ShotX != nil || e.ShotY != nil || e.GoalX != nil || e.GoalY != nil || e.Zone != "" {
		data, err := json.Marshal(coordinates{
			ShotX: e.ShotX, ShotY: e.ShotY, GoalX: e.GoalX, GoalY: e.GoalY, Zone: e.Zone,
		})
		if err != nil {
			return EventRow{}, fmt.Errorf("remote: marshal coordinates: %w", err)
		}
		row.Coordinates = datatypes.JSON(data)
	}
	return row, nil
}

func FromEventRow(r EventRow) (models.GoalieEvent, error) {
	e := models.GoalieEvent{
		ID:        r.ID.String(),
		MatchID:   r.MatchID.String(),
		Period:    r.Period,
		GameTime:  r.GameTime,
		Result:    models.EventResult(r.Result),
		Situation: models.EventSituation(r.Situation),
		Status:    models.EventStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.GoalieID != uuid.Nil {
		e.GoalieID = r.GoalieID.String()
	}
	if len(r.Coordinates) > 0 {
		var c coordinates
		if err := json.Unmarshal(r.Coordinates, &c); err != nil {
			return models.GoalieEvent{}, fmt.Errorf("remote: unmarshal coordinates for %s: %w", r.ID, err)
		}
		e.ShotX, e.ShotY, e.GoalX, e.GoalY, e.Zone = c.ShotX, c.ShotY, c.GoalX, c.GoalY, c.Zone
	}
	if e.Status == "" {
		e.Status = models.EventConfirmed
	}
	return e, nil
}

func optionalString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// nowUTC exists so row timestamps are set uniformly by the store layer.
func nowUTC() time.Time { return time.Now().UTC() }
