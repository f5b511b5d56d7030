// Package commentstore folds the review comment event log into a
// materialized comment store. Everything here is pure: a fold never mutates
// its input store and never fails.
package commentstore

import (
	"maps"
	"slices"
	"sort"

	"github.com/Szazlo/delphi/internal/domain/model"
)

// IDSet is a set of comment ids.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Store is the materialized projection of a review comment event log.
// Comments and FileComments are a cache derived from Events and can always
// be rebuilt by replaying Events into an empty store.
type Store struct {
	// Comments holds every live comment. Deleted comments are evicted, not
	// tombstoned.
	Comments map[string]model.ReviewCommentState
	// FileComments indexes live comment ids by file path. Empty sets are
	// pruned.
	FileComments map[string]IDSet
	// Events is the full append-only log.
	Events []model.ReviewCommentEvent

	// DirtyCommentIDs and DeletedCommentIDs describe the most recent fold
	// only; they are recomputed every time.
	DirtyCommentIDs   IDSet
	DeletedCommentIDs IDSet
}

// New returns an empty store.
func New() *Store {
	return &Store{
		Comments:          map[string]model.ReviewCommentState{},
		FileComments:      map[string]IDSet{},
		Events:            []model.ReviewCommentEvent{},
		DirtyCommentIDs:   IDSet{},
		DeletedCommentIDs: IDSet{},
	}
}

// Clone returns a copy that shares no maps or slices with s.
func (s *Store) Clone() *Store {
	if s == nil {
		return New()
	}

	out := &Store{
		Comments:          maps.Clone(s.Comments),
		FileComments:      make(map[string]IDSet, len(s.FileComments)),
		Events:            slices.Clone(s.Events),
		DirtyCommentIDs:   maps.Clone(s.DirtyCommentIDs),
		DeletedCommentIDs: maps.Clone(s.DeletedCommentIDs),
	}
	for path, ids := range s.FileComments {
		out.FileComments[path] = maps.Clone(ids)
	}
	if out.Comments == nil {
		out.Comments = map[string]model.ReviewCommentState{}
	}
	if out.Events == nil {
		out.Events = []model.ReviewCommentEvent{}
	}
	if out.DirtyCommentIDs == nil {
		out.DirtyCommentIDs = IDSet{}
	}
	if out.DeletedCommentIDs == nil {
		out.DeletedCommentIDs = IDSet{}
	}
	return out
}

// Get returns the state for id.
func (s *Store) Get(id string) (model.ReviewCommentState, bool) {
	cs, ok := s.Comments[id]
	return cs, ok
}

// CommentsForFile returns the live comments anchored in path, ordered by line
// number, then creation time, then id. It only visits the file's index entry.
func (s *Store) CommentsForFile(path string) []model.ReviewCommentState {
	ids := s.FileComments[path]
	if len(ids) == 0 {
		return nil
	}

	out := make([]model.ReviewCommentState, 0, len(ids))
	for id := range ids {
		if cs, ok := s.Comments[id]; ok {
			out = append(out, cs)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Comment, out[j].Comment
		if a.LineNumber != b.LineNumber {
			return a.LineNumber < b.LineNumber
		}
		if !a.Dt.Equal(b.Dt) {
			return a.Dt.Before(b.Dt)
		}
		return a.ID < b.ID
	})

	return out
}

// Files returns every file path that has at least one live comment, sorted.
func (s *Store) Files() []string {
	return slices.Sorted(maps.Keys(s.FileComments))
}

// EventsForFile returns the slice of the log whose FilePath is path, in log
// order.
func (s *Store) EventsForFile(path string) []model.ReviewCommentEvent {
	var out []model.ReviewCommentEvent
	for _, e := range s.Events {
		if e.FilePath == path {
			out = append(out, e)
		}
	}
	return out
}
