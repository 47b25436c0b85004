// Package remote is the durable multi-device side of the system: a Postgres
// schema mirroring the local entity graph, keyed by canonical ids, written
// exclusively through idempotent upserts.
package remote

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GoalieRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;index"`
	CatchHand string
	BirthYear int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GoalieRow) TableName() string { return "goalies" }

type TeamRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"not null;index"`
	ExternalID string    `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (TeamRow) TableName() string { return "teams" }

type CompetitionRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name       string    `gorm:"not null;index"`
	Category   string
	Season     string `gorm:"index"`
	ExternalID string `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CompetitionRow) TableName() string { return "competitions" }

type SeasonRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Label     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SeasonRow) TableName() string { return "seasons" }

// MatchRow is the remote shape of a match. Status is always stored in the
// normalized four-state form; legacy open/closed is translated at the
// mapping layer. ManualStats rides as a JSON column.
type MatchRow struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	HomeTeam      string    `gorm:"not null"`
	AwayTeam      string    `gorm:"not null"`
	HomeTeamID    *uuid.UUID `gorm:"type:uuid;index"`
	AwayTeamID    *uuid.UUID `gorm:"type:uuid;index"`
	CompetitionID *uuid.UUID `gorm:"type:uuid;index"`
	Category      string
	Season        string `gorm:"index"`
	Datetime      time.Time
	Status        string     `gorm:"not null;index"`
	GoalieID      *uuid.UUID `gorm:"type:uuid;index"`
	ScoreHome     *int
	ScoreAway     *int
	ManualStats   datatypes.JSON
	Source        string
	ExternalID    string `gorm:"index"`
	ExternalURL   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (MatchRow) TableName() string { return "matches" }

// EventRow is the remote shape of a goalie event. Coordinates ride as one
// JSON column holding the optional shot/goal points and zone.
type EventRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	MatchID     uuid.UUID `gorm:"type:uuid;not null;index"`
	GoalieID    uuid.UUID `gorm:"type:uuid;index"`
	Period      int
	GameTime    string
	Result      string `gorm:"not null"`
	Coordinates datatypes.JSON
	Situation   string
	Status      string `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EventRow) TableName() string { return "goalie_events" }
