package importer

import (
	"strings"

	"github.com/jsvoboda/goaliesync/internal/models"
)

// CategoryMatcher maps a free-text category label from an external source to
// a known competition. League category naming is locale-specific and messy;
// the matching heuristic is a pluggable strategy so a league-specific one
// can be swapped in without touching the import flow.
type CategoryMatcher interface {
	// Match returns the canonical/local id of the matched competition.
	Match(category string, competitions []models.Competition) (string, bool)
}

// PrefixCategoryMatcher is the default strategy: case-insensitive comparison
// of normalized labels, accepting an exact match or a prefix in either
// direction. It makes no attempt at language-aware stemming.
type PrefixCategoryMatcher struct{}

func (PrefixCategoryMatcher) Match(category string, competitions []models.Competition) (string, bool) {
	needle := normalizeLabel(category)
	if needle == "" {
		return "", false
	}
	// Exact normalized match first, prefix overlap second.
	for _, c := range competitions {
		if normalizeLabel(c.Category) == needle || normalizeLabel(c.Name) == needle {
			return c.ID, true
		}
	}
	for _, c := range competitions {
		for _, label := range []string{c.Category, c.Name} {
			norm := normalizeLabel(label)
			if norm == "" {
				continue
			}
			if strings.HasPrefix(norm, needle) || strings.HasPrefix(needle, norm) {
				return c.ID, true
			}
		}
	}
	return "", false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Quoted single letters ("A", "B" squads) collapse into bare letters.
	s = strings.NewReplacer(`"`, "", "'", "", "„", "", "“", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
