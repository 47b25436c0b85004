package models

import "time"

// MatchStatus is the four-state lifecycle of a match. Legacy records written
// by old clients only know "open"/"closed"; those are normalized on read, see
// the lifecycle package.
type MatchStatus string

const (
	StatusScheduled  MatchStatus = "scheduled"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusCancelled  MatchStatus = "cancelled"

	// Legacy two-state values, accepted on read only.
	LegacyStatusOpen   = "open"
	LegacyStatusClosed = "closed"
)

// MatchSource records which path created a match.
type MatchSource string

const (
	SourceManual   MatchSource = "manual"
	SourceImported MatchSource = "imported"
	SourceScraped  MatchSource = "scraped"
)

type EventResult string

const (
	ResultSave EventResult = "save"
	ResultGoal EventResult = "goal"
	ResultMiss EventResult = "miss"
)

type EventSituation string

const (
	SituationEven        EventSituation = "even"
	SituationPowerplay   EventSituation = "powerplay"
	SituationShorthanded EventSituation = "shorthanded"
)

// EventStatus marks an event's edit state. Deleted events are tombstones:
// they stay in the local cache until the tombstone has been synced, only then
// may they be physically removed.
type EventStatus string

const (
	EventConfirmed EventStatus = "confirmed"
	EventEdited    EventStatus = "edited"
	EventDeleted   EventStatus = "deleted"
)

type Goalie struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CatchHand string    `json:"catch_hand,omitempty"`
	BirthYear int       `json:"birth_year,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Team struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

type Competition struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category,omitempty"`
	Season     string `json:"season,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type Season struct {
	ID    string `json:"id"`
	Label string `json:"label"` // e.g. "2025/2026"
}

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// ManualStats is the shot/save/goal triple used when a match has no
// event-level detail.
type ManualStats struct {
	Shots int `json:"shots"`
	Saves int `json:"saves"`
	Goals int `json:"goals"`
}

// Match is the richest entity in the graph. Team references carry both the
// display name and, once resolved, the canonical team id; the name is the
// fallback identity for imported rows that never got a canonical link.
type Match struct {
	ID            string       `json:"id"`
	HomeTeam      string       `json:"home_team"`
	AwayTeam      string       `json:"away_team"`
	HomeTeamID    string       `json:"home_team_id,omitempty"`
	AwayTeamID    string       `json:"away_team_id,omitempty"`
	CompetitionID string       `json:"competition_id,omitempty"`
	Category      string       `json:"category,omitempty"` // free-text, used when no competition link exists
	Season        string       `json:"season,omitempty"`
	Datetime      time.Time    `json:"datetime"`
	Status        MatchStatus  `json:"status"`
	GoalieID      string       `json:"goalie_id,omitempty"`
	Score         *Score       `json:"score,omitempty"`
	ManualStats   *ManualStats `json:"manual_stats,omitempty"`
	Source        MatchSource  `json:"source"`
	ExternalID    string       `json:"external_id,omitempty"`
	ExternalURL   string       `json:"external_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// GoalieEvent is one recorded shot against the goalie. Coordinates are
// optional; Zone is the coarse-grained location bucket used by the shot chart.
type GoalieEvent struct {
	ID        string         `json:"id"`
	MatchID   string         `json:"match_id"`
	GoalieID  string         `json:"goalie_id"`
	Period    int            `json:"period"`
	GameTime  string         `json:"game_time,omitempty"` // "mm:ss" within the period
	Result    EventResult    `json:"result"`
	ShotX     *float64       `json:"shot_x,omitempty"`
	ShotY     *float64       `json:"shot_y,omitempty"`
	GoalX     *float64       `json:"goal_x,omitempty"`
	GoalY     *float64       `json:"goal_y,omitempty"`
	Zone      string         `json:"zone,omitempty"`
	Situation EventSituation `json:"situation,omitempty"`
	Status    EventStatus    `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// Live reports whether the event still counts toward the match (i.e. is not
// a soft-delete tombstone).
func (e GoalieEvent) Live() bool {
	return e.Status != EventDeleted
}
