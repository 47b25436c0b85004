package localstore

import (
	"github.com/jsvoboda/goaliesync/internal/models"
)

// Typed wrappers over the generic collection contract. Callers that touch a
// single entity still read and replace the whole collection — collections are
// small (one goalie's season) and this keeps the replace semantics in one
// place.

func (s *Store) Goalies() ([]models.Goalie, error) {
	return ReadCollection[models.Goalie](s, ColGoalies)
}

func (s *Store) SaveGoalies(items []models.Goalie) error {
	return ReplaceCollection(s, ColGoalies, items)
}

func (s *Store) Teams() ([]models.Team, error) {
	return ReadCollection[models.Team](s, ColTeams)
}

func (s *Store) SaveTeams(items []models.Team) error {
	return ReplaceCollection(s, ColTeams, items)
}

func (s *Store) Competitions() ([]models.Competition, error) {
	return ReadCollection[models.Competition](s, ColCompetitions)
}

func (s *Store) SaveCompetitions(items []models.Competition) error {
	return ReplaceCollection(s, ColCompetitions, items)
}

func (s *Store) Seasons() ([]models.Season, error) {
	return ReadCollection[models.Season](s, ColSeasons)
}

func (s *Store) SaveSeasons(items []models.Season) error {
	return ReplaceCollection(s, ColSeasons, items)
}

func (s *Store) Matches() ([]models.Match, error) {
	return ReadCollection[models.Match](s, ColMatches)
}

func (s *Store) SaveMatches(items []models.Match) error {
	return ReplaceCollection(s, ColMatches, items)
}

func (s *Store) Events() ([]models.GoalieEvent, error) {
	return ReadCollection[models.GoalieEvent](s, ColEvents)
}

func (s *Store) SaveEvents(items []models.GoalieEvent) error {
	return ReplaceCollection(s, ColEvents, items)
}

// Match returns the match with the given id, if present.
func (s *Store) Match(id string) (models.Match, bool, error) {
	matches, err := s.Matches()
	if err != nil {
		return models.Match{}, false, err
	}
	for _, m := range matches {
		if m.ID == id {
			return m, true, nil
		}
	}
	return models.Match{}, false, nil
}

// UpsertMatch replaces the match with the same id, or appends it.
func (s *Store) UpsertMatch(match models.Match) error {
	matches, err := s.Matches()
	if err != nil {
		return err
	}
	replaced := false
	for i, m := range matches {
		if m.ID == match.ID {
			matches[i] = match
			replaced = true
			break
		}
	}
	if !replaced {
		matches = append(matches, match)
	}
	return s.SaveMatches(matches)
}

// EventsForMatch returns all events (tombstones included) for a match.
func (s *Store) EventsForMatch(matchID string) ([]models.GoalieEvent, error) {
	events, err := s.Events()
	if err != nil {
		return nil, err
	}
	var out []models.GoalieEvent
	for _, e := range events {
		if e.MatchID == matchID {
			out = append(out, e)
		}
	}
	return out, nil
}
