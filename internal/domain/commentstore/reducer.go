package commentstore

import (
	"maps"

	"github.com/Szazlo/delphi/internal/domain/model"
)

// Reduce applies a single stamped event to prior and returns the next store.
// prior is never modified. Edits and deletes whose target does not resolve,
// and creates whose id already exists, leave the comment maps unchanged but
// are still appended to Events: the log records intent, not just effect.
//
// DirtyCommentIDs is every comment from prior that shares a line number with
// something the event touched, plus the touched comment itself. Comments
// that share a screen line are redrawn together.
func Reduce(event model.ReviewCommentEvent, prior *Store) *Store {
	if prior == nil {
		prior = New()
	}

	next := &Store{
		Comments:          maps.Clone(prior.Comments),
		FileComments:      maps.Clone(prior.FileComments),
		Events:            appendEvent(prior.Events, event),
		DirtyCommentIDs:   IDSet{},
		DeletedCommentIDs: IDSet{},
	}
	if next.Comments == nil {
		next.Comments = map[string]model.ReviewCommentState{}
	}
	if next.FileComments == nil {
		next.FileComments = map[string]IDSet{}
	}

	dirtyLines := map[int]struct{}{}
	touched := ""

	switch event.Type {
	case model.EventTypeCreate:
		if _, exists := next.Comments[event.ID]; exists {
			break
		}

		commentType := event.CommentType
		if commentType == "" {
			commentType = model.CommentTypeComment
		}
		text := ""
		if event.Text != nil {
			text = *event.Text
		}

		comment := model.ReviewComment{
			ID:         event.ID,
			ParentID:   event.TargetID,
			Author:     event.CreatedBy,
			Dt:         event.CreatedAt,
			LineNumber: event.LineNumber,
			Text:       text,
			Selection:  cloneSelection(event.Selection),
			Status:     model.StatusActive,
			Type:       commentType,
			TypeState:  event.TypeState.Value(),
			FilePath:   event.FilePath,
		}

		next.FileComments[event.FilePath] = withID(next.FileComments[event.FilePath], event.ID)
		next.Comments[event.ID] = model.NewReviewCommentState(comment)
		dirtyLines[comment.LineNumber] = struct{}{}
		touched = event.ID

	case model.EventTypeEdit:
		parent, ok := next.Comments[event.TargetID]
		if !ok {
			break
		}

		edited := parent.Comment
		edited.Author = event.CreatedBy
		edited.Dt = event.CreatedAt
		if event.Text != nil {
			edited.Text = *event.Text
		}
		edited.TypeState = event.TypeState.Apply(parent.Comment.TypeState)

		next.Comments[event.TargetID] = parent.Supersede(edited)
		dirtyLines[edited.LineNumber] = struct{}{}
		touched = event.TargetID

	case model.EventTypeDelete:
		selected, ok := next.Comments[event.TargetID]
		if !ok {
			break
		}

		path := selected.Comment.FilePath
		if ids, ok := next.FileComments[path]; ok {
			remaining := withoutID(ids, event.TargetID)
			if len(remaining) == 0 {
				delete(next.FileComments, path)
			} else {
				next.FileComments[path] = remaining
			}
		}

		delete(next.Comments, event.TargetID)
		next.DeletedCommentIDs[selected.Comment.ID] = struct{}{}
		dirtyLines[selected.Comment.LineNumber] = struct{}{}
		touched = event.TargetID
	}

	if len(dirtyLines) > 0 {
		for id, cs := range prior.Comments {
			if _, hit := dirtyLines[cs.Comment.LineNumber]; hit {
				next.DirtyCommentIDs[id] = struct{}{}
			}
		}
		next.DirtyCommentIDs[touched] = struct{}{}
	}

	return next
}

// ReduceComments folds events, in order, starting from initial. A nil initial
// starts from an empty store. This is both the bulk-load and the replay path.
func ReduceComments(events []model.ReviewCommentEvent, initial *Store) *Store {
	state := initial
	if state == nil {
		state = New()
	}
	for _, e := range events {
		state = Reduce(e, state)
	}
	return state
}

// appendEvent copies the log before appending so the prior store's backing
// array is never shared with the next one.
func appendEvent(events []model.ReviewCommentEvent, e model.ReviewCommentEvent) []model.ReviewCommentEvent {
	out := make([]model.ReviewCommentEvent, len(events), len(events)+1)
	copy(out, events)
	return append(out, e)
}

func withID(ids IDSet, id string) IDSet {
	out := make(IDSet, len(ids)+1)
	for k := range ids {
		out[k] = struct{}{}
	}
	out[id] = struct{}{}
	return out
}

func withoutID(ids IDSet, id string) IDSet {
	out := make(IDSet, len(ids))
	for k := range ids {
		if k != id {
			out[k] = struct{}{}
		}
	}
	return out
}

func cloneSelection(sel *model.CodeSelection) *model.CodeSelection {
	if sel == nil {
		return nil
	}
	c := *sel
	return &c
}
