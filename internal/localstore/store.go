// Package localstore is the offline copy of record: a BadgerDB-backed store
// of named collections with whole-collection read/replace semantics. Every
// user-facing mutation lands here synchronously; the sync engine reconciles
// it with the remote store when connectivity allows.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Collection names. The first group mirrors the entity graph, the second
// holds engine-internal state that must survive restarts.
const (
	ColGoalies      = "goalies"
	ColTeams        = "teams"
	ColCompetitions = "competitions"
	ColSeasons      = "seasons"
	ColMatches      = "matches"
	ColEvents       = "events"

	ColIDMap             = "id_map"             // localId -> canonicalId
	ColOriginalDatetimes = "original_datetimes" // matchId -> pre-close datetime
	ColSyncState         = "sync_state"
)

// Config holds the knobs for opening a store.
type Config struct {
	// Path is the directory for the Badger files. Ignored when InMemory.
	Path string
	// InMemory disables disk persistence. Used by tests.
	InMemory bool
	// Logger receives store-level diagnostics. Badger's own logging is
	// disabled; it is far too chatty for an embedded cache.
	Logger *logrus.Logger
}

type Store struct {
	db     *badger.DB
	logger *logrus.Logger
}

// Open opens (creating if needed) the local store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("localstore: path required for a persistent store")
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %q: %w", cfg.Path, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory returns a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get unmarshals the value stored under key into out. Missing keys are not
// an error; found reports whether the key existed.
func (s *Store) Get(key string, out any) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		return false, fmt.Errorf("localstore: get %q: %w", key, err)
	}
	return found, nil
}

// Put stores value under key, replacing whatever was there.
func (s *Store) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("localstore: marshal %q: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("localstore: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("localstore: delete %q: %w", key, err)
	}
	return nil
}

// ReadCollection returns the whole named collection. A collection that was
// never written reads as empty, not as an error.
func ReadCollection[T any](s *Store, name string) ([]T, error) {
	var items []T
	if _, err := s.Get(name, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceCollection atomically swaps the whole named collection.
func ReplaceCollection[T any](s *Store, name string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return s.Put(name, items)
}

// ReadMap returns a persisted string-keyed map (id mappings, side tables).
func ReadMap[V any](s *Store, name string) (map[string]V, error) {
	m := map[string]V{}
	if _, err := s.Get(name, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReplaceMap swaps the whole persisted map.
func ReplaceMap[V any](s *Store, name string, m map[string]V) error {
	if m == nil {
		m = map[string]V{}
	}
	return s.Put(name, m)
}
