// Package editor implements the EditorSurface port as an in-memory registry
// of view zones that the browser client polls and draws.
package editor

import (
	"context"
	"sort"
	"sync"

	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RenderedSurface = (*Surface)(nil)

// Zone is a registered decoration with its body rendered to sanitized HTML.
type Zone = driven.RenderedDecoration

// Stats counts surface calls since creation. Used to verify that redraws
// stay proportional to the dirty set.
type Stats struct {
	Sets    int
	Removes int
	Clears  int
}

// Surface is a mutex-protected decoration registry keyed by comment id.
type Surface struct {
	mu    sync.RWMutex
	zones map[string]Zone
	stats Stats
}

// NewSurface creates an empty Surface.
func NewSurface() *Surface {
	return &Surface{zones: make(map[string]Zone)}
}

// SetDecoration registers or replaces the decoration for d.CommentID.
func (s *Surface) SetDecoration(_ context.Context, d driven.Decoration) error {
	zone := Zone{
		Decoration: d,
		HTML:       RenderBody(d.Type, d.Body),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[d.CommentID] = zone
	s.stats.Sets++
	return nil
}

// RemoveDecoration drops the decoration for commentID. Unknown ids are a no-op.
func (s *Surface) RemoveDecoration(_ context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zones, commentID)
	s.stats.Removes++
	return nil
}

// Clear drops every decoration.
func (s *Surface) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.zones)
	s.stats.Clears++
	return nil
}

// Get returns the zone registered for commentID.
func (s *Surface) Get(commentID string) (Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[commentID]
	return z, ok
}

// Len returns the number of registered zones.
func (s *Surface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}

// Snapshot returns every zone ordered by line number, then depth, then id.
func (s *Surface) Snapshot() []Zone {
	s.mu.RLock()
	out := make([]Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LineNumber != out[j].LineNumber {
			return out[i].LineNumber < out[j].LineNumber
		}
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].CommentID < out[j].CommentID
	})

	return out
}

// Stats returns a copy of the call counters.
func (s *Surface) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
