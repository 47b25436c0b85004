// Package identity resolves the three identifier spaces of the system —
// locally generated ids, canonical remote ids, and external-source ids —
// into a single canonical id per logical entity. The local→canonical mapping
// is durable, so promotion of a local id is idempotent across restarts.
package identity

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jsvoboda/goaliesync/internal/localstore"
)

// IsCanonical reports whether id is already in the canonical format: a
// dashed, lower-case UUID as issued by the remote store.
func IsCanonical(id string) bool {
	if len(id) != 36 {
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	// uuid.Parse is permissive about case; canonical form is lower-case.
	return parsed.String() == strings.ToLower(id)
}

// Mint returns a fresh canonical id.
func Mint() string {
	return uuid.NewString()
}

// NewLocalID returns a fresh local identifier. Deliberately not
// canonical-shaped: records created offline go through the full
// adopt-or-mint promotion on their first upload.
func NewLocalID() string {
	return "local-" + uuid.NewString()
}

// Resolver converts any identifier into its canonical form, minting and
// persisting a mapping the first time a local-only id is seen.
type Resolver struct {
	store *localstore.Store

	mu      sync.Mutex
	mapping map[string]string
}

// NewResolver loads the persisted mapping table from the local store.
func NewResolver(store *localstore.Store) (*Resolver, error) {
	mapping, err := localstore.ReadMap[string](store, localstore.ColIDMap)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, mapping: mapping}, nil
}

// Resolve returns the canonical id for id. Canonical input passes through
// untouched; known local ids return their stored mapping; unknown local ids
// get a freshly minted canonical id which is persisted before returning, so
// re-resolving the same local id always yields the same canonical id.
func (r *Resolver) Resolve(id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if IsCanonical(id) {
		return id, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if canonical, ok := r.mapping[id]; ok {
		return canonical, nil
	}
	canonical := Mint()
	if err := r.persist(id, canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

// Adopt records that localID corresponds to an already-existing canonical id
// (typically one found on the remote store during upload matching), instead
// of minting a new one. Re-adopting the same pair is a no-op.
func (r *Resolver) Adopt(localID, canonicalID string) error {
	if localID == "" || IsCanonical(localID) || localID == canonicalID {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.mapping[localID]; ok && existing == canonicalID {
		return nil
	}
	return r.persist(localID, canonicalID)
}

// Lookup returns the stored mapping for a local id without minting.
func (r *Resolver) Lookup(localID string) (string, bool) {
	if IsCanonical(localID) {
		return localID, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	canonical, ok := r.mapping[localID]
	return canonical, ok
}

// persist writes the mapping through to the store. Caller holds r.mu.
func (r *Resolver) persist(localID, canonicalID string) error {
	r.mapping[localID] = canonicalID
	if err := localstore.ReplaceMap(r.store, localstore.ColIDMap, r.mapping); err != nil {
		// Roll the in-memory entry back so a retry re-attempts the write.
		delete(r.mapping, localID)
		return err
	}
	return nil
}
