// Package skipset holds the identifiers already known before a run starts,
// so they are never probed again.
package skipset

import (
	"log/slog"

	"github.com/yokai-gen/nichicrawl/internal/rowsink"
)

// Set is an insert-only set of canonical identifiers.
type Set struct {
	ids map[string]struct{}
}

// New returns a set seeded with ids.
func New(ids ...string) *Set {
	s := &Set{ids: make(map[string]struct{}, len(ids))}
	s.AddAll(ids)
	return s
}

// FromCSV builds a set from the identifier column of every CSV in paths.
// Missing files and files without an identifier column contribute nothing;
// unreadable files are logged and skipped.
func FromCSV(paths ...string) *Set {
	s := New()
	for _, p := range paths {
		if p == "" {
			continue
		}
		rows, err := rowsink.Load(p)
		if err != nil {
			slog.Warn("skip_source_unreadable", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		before := s.Len()
		for _, r := range rows {
			s.Add(r.Identifier())
		}
		slog.Debug("skip_source_loaded", slog.String("path", p), slog.Int("added", s.Len()-before))
	}
	return s
}

// Add inserts id. Empty identifiers are ignored.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	s.ids[id] = struct{}{}
}

// AddAll inserts every id.
func (s *Set) AddAll(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// Has reports whether id is known.
func (s *Set) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of known identifiers.
func (s *Set) Len() int { return len(s.ids) }
