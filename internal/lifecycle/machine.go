// Package lifecycle drives the match status state machine:
//
//	scheduled → in_progress → completed, cancelled from any non-terminal state
//
// Closing a match moves its displayed datetime to "now" so it sorts into
// recently-played, and parks the real fixture datetime in a persisted side
// table so reopening can restore it. The same reversion runs autonomously
// when a completed match loses its last goalie/event, see AutoRevert.
package lifecycle

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/models"
)

// autoRevertWindow bounds how far the displayed datetime may sit from "now"
// for the auto-revert rule to consider the close recent.
const autoRevertWindow = 24 * time.Hour

// NormalizeStatus maps any stored status value, including the legacy
// open/closed pair, onto the four-state model. Runs on every read of a
// match from any source.
func NormalizeStatus(raw string) models.MatchStatus {
	switch raw {
	case models.LegacyStatusOpen:
		return models.StatusInProgress
	case models.LegacyStatusClosed:
		return models.StatusCompleted
	case string(models.StatusScheduled), string(models.StatusInProgress),
		string(models.StatusCompleted), string(models.StatusCancelled):
		return models.MatchStatus(raw)
	default:
		// Unknown values from future or broken writers: safest bucket.
		return models.StatusScheduled
	}
}

// DenormalizeStatus maps the four-state model back onto the legacy two-state
// shape for writers that still expect it. scheduled and cancelled have no
// legacy equivalent and pass through.
func DenormalizeStatus(status models.MatchStatus) string {
	switch status {
	case models.StatusInProgress:
		return models.LegacyStatusOpen
	case models.StatusCompleted:
		return models.LegacyStatusClosed
	default:
		return string(status)
	}
}

// Machine owns the transition rules and the original-datetime side table.
type Machine struct {
	store  *localstore.Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewMachine(store *localstore.Store, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the machine's clock. Tests only.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Close transitions scheduled/in_progress → completed. The pre-close
// datetime is parked in the side table and the displayed datetime becomes
// "now", so the match sorts into recently played even when the fixture date
// is in the future. Closing a completed or cancelled match is a no-op.
func (m *Machine) Close(match *models.Match) (bool, error) {
	switch NormalizeStatus(string(match.Status)) {
	case models.StatusScheduled, models.StatusInProgress:
	default:
		return false, nil
	}
	if err := m.storeOriginal(match.ID, match.Datetime); err != nil {
		return false, err
	}
	match.Status = models.StatusCompleted
	match.Datetime = m.now()
	match.UpdatedAt = m.now()
	return true, nil
}

// Reopen transitions completed → in_progress. When the match has neither an
// assigned goalie nor any live event it goes all the way back to scheduled
// and the original datetime is restored from the side table; a missing side
// entry degrades to keeping the current datetime.
func (m *Machine) Reopen(match *models.Match, events []models.GoalieEvent) (bool, error) {
	if NormalizeStatus(string(match.Status)) != models.StatusCompleted {
		return false, nil
	}
	match.Status = models.StatusInProgress
	if match.GoalieID == "" && countLive(events) == 0 {
		match.Status = models.StatusScheduled
		if err := m.restoreOriginal(match); err != nil {
			return false, err
		}
	}
	match.UpdatedAt = m.now()
	return true, nil
}

// Cancel transitions any non-terminal state → cancelled. Cancelled is
// terminal; nothing leads out of it.
func (m *Machine) Cancel(match *models.Match) (bool, error) {
	switch NormalizeStatus(string(match.Status)) {
	case models.StatusScheduled, models.StatusInProgress:
	default:
		return false, nil
	}
	match.Status = models.StatusCancelled
	match.UpdatedAt = m.now()
	return true, nil
}

// AutoRevert undoes an effectively-empty close without user action: a
// completed match with no goalie and no live events, whose displayed
// datetime sits within 24 hours of now and differs from the parked original,
// reverts to scheduled with the original datetime restored. Must be called
// after every state-affecting mutation (goalie change, event delete), not
// only at load time. Returns whether a reversion happened.
func (m *Machine) AutoRevert(match *models.Match, events []models.GoalieEvent) (bool, error) {
	if NormalizeStatus(string(match.Status)) != models.StatusCompleted {
		return false, nil
	}
	if match.GoalieID != "" || countLive(events) > 0 {
		return false, nil
	}
	original, ok, err := m.Original(match.ID)
	if err != nil {
		return false, err
	}
	if !ok || original.Equal(match.Datetime) {
		return false, nil
	}
	now := m.now()
	age := now.Sub(match.Datetime)
	if age < 0 {
		age = -age
	}
	if age > autoRevertWindow {
		return false, nil
	}
	match.Status = models.StatusScheduled
	match.Datetime = original
	match.UpdatedAt = now
	if err := m.clearOriginal(match.ID); err != nil {
		return false, err
	}
	m.logger.WithField("match_id", match.ID).Info("auto-reverted empty completed match to scheduled")
	return true, nil
}

// Original returns the parked pre-close datetime for a match, if any.
func (m *Machine) Original(matchID string) (time.Time, bool, error) {
	table, err := localstore.ReadMap[time.Time](m.store, localstore.ColOriginalDatetimes)
	if err != nil {
		return time.Time{}, false, err
	}
	original, ok := table[matchID]
	return original, ok, nil
}

func (m *Machine) storeOriginal(matchID string, datetime time.Time) error {
	table, err := localstore.ReadMap[time.Time](m.store, localstore.ColOriginalDatetimes)
	if err != nil {
		return err
	}
	table[matchID] = datetime
	return localstore.ReplaceMap(m.store, localstore.ColOriginalDatetimes, table)
}

func (m *Machine) restoreOriginal(match *models.Match) error {
	original, ok, err := m.Original(match.ID)
	if err != nil {
		return err
	}
	if !ok {
		// No side entry: keep the current datetime, per the degraded path.
		return nil
	}
	match.Datetime = original
	return m.clearOriginal(match.ID)
}

// Remember parks an original datetime under the given match id. Used when a
// match changes identity (local id adopted into a canonical one) and its
// side entry has to follow.
func (m *Machine) Remember(matchID string, original time.Time) error {
	return m.storeOriginal(matchID, original)
}

// Forget drops the side-table entry for a match that no longer exists.
func (m *Machine) Forget(matchID string) error {
	return m.clearOriginal(matchID)
}

func (m *Machine) clearOriginal(matchID string) error {
	table, err := localstore.ReadMap[time.Time](m.store, localstore.ColOriginalDatetimes)
	if err != nil {
		return err
	}
	if _, ok := table[matchID]; !ok {
		return nil
	}
	delete(table, matchID)
	return localstore.ReplaceMap(m.store, localstore.ColOriginalDatetimes, table)
}

func countLive(events []models.GoalieEvent) int {
	n := 0
	for _, e := range events {
		if e.Live() {
			n++
		}
	}
	return n
}
