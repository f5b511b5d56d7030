package model

// EventType identifies the kind of mutation a review comment event applies.
type EventType string

const (
	EventTypeCreate EventType = "create"
	EventTypeEdit   EventType = "edit"
	EventTypeDelete EventType = "delete"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCreate, EventTypeEdit, EventTypeDelete:
		return true
	default:
		return false
	}
}

// ReviewCommentType distinguishes plain comments from suggestions and tasks.
type ReviewCommentType string

const (
	CommentTypeComment    ReviewCommentType = "comment"
	CommentTypeSuggestion ReviewCommentType = "suggestion"
	CommentTypeTask       ReviewCommentType = "task"
)

// Valid reports whether t is one of the known comment types.
func (t ReviewCommentType) Valid() bool {
	switch t {
	case CommentTypeComment, CommentTypeSuggestion, CommentTypeTask:
		return true
	default:
		return false
	}
}

// ReviewCommentStatus tracks the lifecycle stage of a comment.
// The reducer only ever produces StatusActive; StatusDeleted is for callers
// rendering tombstones and StatusEdit is client-side editing state.
type ReviewCommentStatus string

const (
	StatusActive  ReviewCommentStatus = "active"
	StatusDeleted ReviewCommentStatus = "deleted"
	StatusEdit    ReviewCommentStatus = "edit"
)

// ReviewCommentRenderState describes how a decoration should be drawn.
type ReviewCommentRenderState string

const (
	RenderStateDirty  ReviewCommentRenderState = "dirty"
	RenderStateHidden ReviewCommentRenderState = "hidden"
	RenderStateNormal ReviewCommentRenderState = "normal"
)
