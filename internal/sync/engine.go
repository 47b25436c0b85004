// Package sync reconciles the local cache with the remote store. Upload
// pushes local records in dependency order, adopting already-existing remote
// rows instead of duplicating them; download pulls remote rows back through
// the entity mappers. At most one pass runs at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/identity"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/remote"
)

var (
	// ErrSyncInFlight is returned when a pass is already running; the caller
	// gets it immediately instead of queueing behind the running pass.
	ErrSyncInFlight = errors.New("sync already in flight")
	// ErrRemoteNotConfigured short-circuits every remote operation when no
	// remote store is configured. Data stays local; this is not a failure of
	// the local write path.
	ErrRemoteNotConfigured = errors.New("remote store not configured")
)

// RemoteStore is the slice of the remote store the engine needs. The
// production implementation is remote.Store; tests substitute an in-memory
// fake.
type RemoteStore interface {
	UpsertTeams(ctx context.Context, rows []remote.TeamRow) error
	UpsertCompetitions(ctx context.Context, rows []remote.CompetitionRow) error
	UpsertSeasons(ctx context.Context, rows []remote.SeasonRow) error
	UpsertGoalies(ctx context.Context, rows []remote.GoalieRow) error
	UpsertMatches(ctx context.Context, rows []remote.MatchRow) error
	UpsertEvents(ctx context.Context, rows []remote.EventRow) error

	ListTeams(ctx context.Context) ([]remote.TeamRow, error)
	ListCompetitions(ctx context.Context) ([]remote.CompetitionRow, error)
	ListSeasons(ctx context.Context) ([]remote.SeasonRow, error)
	ListGoalies(ctx context.Context) ([]remote.GoalieRow, error)
	ListMatches(ctx context.Context) ([]remote.MatchRow, error)
	ListEvents(ctx context.Context) ([]remote.EventRow, error)

	CountMatches(ctx context.Context) (int64, error)
	DeleteMatch(ctx context.Context, id uuid.UUID) error
}

// Result is the structured outcome of one pass. Deferred lists the local ids
// of events held back because their match is not confirmed remote yet; they
// are not errors and will be retried on the next pass.
type Result struct {
	Success  bool           `json:"success"`
	Counts   map[string]int `json:"counts"`
	Deferred []string       `json:"deferred,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
}

func newResult() Result {
	return Result{Counts: map[string]int{}}
}

func (r *Result) fail(entity string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", entity, err))
}

// Engine owns all mutable sync state: the in-flight flag and the last-sync
// timestamp. It is constructed once and injected wherever sync is triggered;
// there is no package-level state, so tests run engines in parallel.
type Engine struct {
	local     *localstore.Store
	remote    RemoteStore // nil when not configured
	ids       *identity.Resolver
	lifecycle *lifecycle.Machine
	logger    *logrus.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight bool
}

type syncState struct {
	LastSyncAt time.Time `json:"last_sync_at"`
}

func NewEngine(local *localstore.Store, rs RemoteStore, ids *identity.Resolver, lc *lifecycle.Machine, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		local:     local,
		remote:    rs,
		ids:       ids,
		lifecycle: lc,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Configured reports whether a remote store is wired in.
func (e *Engine) Configured() bool { return e.remote != nil }

// InFlight reports whether a pass is currently running.
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// LastSync returns the timestamp of the last fully clean pass, zero if none.
func (e *Engine) LastSync() time.Time {
	var state syncState
	if _, err := e.local.Get(localstore.ColSyncState, &state); err != nil {
		e.logger.WithError(err).Warn("read sync state")
	}
	return state.LastSyncAt
}

func (e *Engine) tryBegin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return false
	}
	e.inFlight = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// guarded runs fn under the single-flight discipline and converts the two
// short-circuit cases into results instead of panics or blocking.
func (e *Engine) guarded(direction string, fn func(r *Result)) Result {
	result := newResult()
	if e.remote == nil {
		result.Errors = append(result.Errors, ErrRemoteNotConfigured.Error())
		return result
	}
	if !e.tryBegin() {
		result.Errors = append(result.Errors, ErrSyncInFlight.Error())
		return result
	}
	defer e.end()

	func() {
		// Anything unexpected becomes one error entry; the local cache is
		// untouched by a crashed pass.
		defer func() {
			if rec := recover(); rec != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: panic: %v", direction, rec))
			}
		}()
		fn(&result)
	}()

	result.Success = len(result.Errors) == 0
	if result.Success {
		// The timestamp marks the last clean pass in either direction; a clean
		// download proves connectivity the same way a clean upload does.
		if err := e.local.Put(localstore.ColSyncState, syncState{LastSyncAt: e.now()}); err != nil {
			e.logger.WithError(err).Warn("persist last-sync timestamp")
		}
	}
	return result
}

// RemoteMatchCount reports how many matches the remote store currently
// holds. Used by the status surface as a cheap liveness probe.
func (e *Engine) RemoteMatchCount(ctx context.Context) (int64, error) {
	if e.remote == nil {
		return 0, ErrRemoteNotConfigured
	}
	return e.remote.CountMatches(ctx)
}

// DeleteMatch propagates an explicit match delete to both copies: remote
// rows first (match plus its events), then the local cache and the
// original-datetime side entry. Refused while a sync pass is running.
func (e *Engine) DeleteMatch(ctx context.Context, id string) error {
	if !e.tryBegin() {
		return ErrSyncInFlight
	}
	defer e.end()

	canonical, ok := e.ids.Lookup(id)
	if e.remote != nil && ok {
		parsed, err := uuid.Parse(canonical)
		if err == nil {
			if err := e.remote.DeleteMatch(ctx, parsed); err != nil {
				return err
			}
		}
	}

	matches, err := e.local.Matches()
	if err != nil {
		return err
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.ID != id && m.ID != canonical {
			kept = append(kept, m)
		}
	}
	if err := e.local.SaveMatches(kept); err != nil {
		return err
	}

	events, err := e.local.Events()
	if err != nil {
		return err
	}
	keptEvents := events[:0]
	for _, ev := range events {
		if ev.MatchID != id && ev.MatchID != canonical {
			keptEvents = append(keptEvents, ev)
		}
	}
	if err := e.local.SaveEvents(keptEvents); err != nil {
		return err
	}
	return e.lifecycle.Forget(id)
}
