package remote

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the Postgres connection. All writes are upserts keyed by the
// canonical id, so re-running an unchanged sync never creates new rows.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Connect opens the remote store. The DSN comes from configuration; callers
// must not construct a Store when the remote side is not configured.
func Connect(dsn string, logger *logrus.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("remote: connect: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, logger: logger}, nil
}

// Migrate creates/updates the schema in dependency order.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&TeamRow{},
		&CompetitionRow{},
		&SeasonRow{},
		&GoalieRow{},
		&MatchRow{},
		&EventRow{},
	); err != nil {
		return fmt.Errorf("remote: migrate: %w", err)
	}
	s.logger.Debug("remote schema migrated")
	return nil
}

func upsert[T any](ctx context.Context, db *gorm.DB, rows []T, updateCols []string) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updateCols),
	}).Create(&rows).Error
}

func (s *Store) UpsertTeams(ctx context.Context, rows []TeamRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{"name", "external_id", "updated_at"})
}

func (s *Store) UpsertCompetitions(ctx context.Context, rows []CompetitionRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{"name", "category", "season", "external_id", "updated_at"})
}

func (s *Store) UpsertSeasons(ctx context.Context, rows []SeasonRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{"label", "updated_at"})
}

func (s *Store) UpsertGoalies(ctx context.Context, rows []GoalieRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{"name", "catch_hand", "birth_year", "updated_at"})
}

func (s *Store) UpsertMatches(ctx context.Context, rows []MatchRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{
		"home_team", "away_team", "home_team_id", "away_team_id",
		"competition_id", "category", "season", "datetime", "status",
		"goalie_id", "score_home", "score_away", "manual_stats",
		"source", "external_id", "external_url", "updated_at",
	})
}

func (s *Store) UpsertEvents(ctx context.Context, rows []EventRow) error {
	for i := range rows {
		rows[i].UpdatedAt = nowUTC()
	}
	return upsert(ctx, s.db, rows, []string{
		"match_id", "goalie_id", "period", "game_time", "result",
		"coordinates", "situation", "status", "updated_at",
	})
}

func (s *Store) ListTeams(ctx context.Context) ([]TeamRow, error) {
	var rows []TeamRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list teams: %w", err)
	}
	return rows, nil
}

func (s *Store) ListCompetitions(ctx context.Context) ([]CompetitionRow, error) {
	var rows []CompetitionRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list competitions: %w", err)
	}
	return rows, nil
}

func (s *Store) ListSeasons(ctx context.Context) ([]SeasonRow, error) {
	var rows []SeasonRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list seasons: %w", err)
	}
	return rows, nil
}

func (s *Store) ListGoalies(ctx context.Context) ([]GoalieRow, error) {
	var rows []GoalieRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list goalies: %w", err)
	}
	return rows, nil
}

func (s *Store) ListMatches(ctx context.Context) ([]MatchRow, error) {
	var rows []MatchRow
	if err := s.db.WithContext(ctx).Order("datetime ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list matches: %w", err)
	}
	return rows, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]EventRow, error) {
	var rows []EventRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("remote: list events: %w", err)
	}
	return rows, nil
}

func (s *Store) CountMatches(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&MatchRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("remote: count matches: %w", err)
	}
	return n, nil
}

// DeleteMatch hard-deletes a match and its events remotely. Only the
// explicit delete path calls this; sync itself never removes remote rows.
func (s *Store) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("match_id = ?", id).Delete(&EventRow{}).Error; err != nil {
			return fmt.Errorf("remote: delete events of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&MatchRow{}).Error; err != nil {
			return fmt.Errorf("remote: delete match %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.WithField("match_id", id).Info("deleted match and its events remotely")
	return nil
}
