// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/Szazlo/delphi/internal/domain/model"
)

// EditorSide selects where a decoration attaches: the single inline editor,
// or the modified pane of a side-by-side diff.
type EditorSide string

const (
	SideInline   EditorSide = "inline"
	SideModified EditorSide = "modified"
)

// Decoration is the visual marker for one comment: a margin glyph plus an
// inline view zone below its anchor line.
type Decoration struct {
	CommentID      string
	FilePath       string
	LineNumber     int                  // 1-based anchor line.
	Selection      *model.CodeSelection // Highlighted span, if any.
	Type           model.ReviewCommentType
	GlyphClass     string
	RenderState    model.ReviewCommentRenderState
	Side           EditorSide
	Body           string // Markdown source; surfaces render and sanitize it.
	Author         string
	Date           string // Already formatted for display.
	Depth          int    // Reply nesting level; 0 for top-level comments.
	VerticalOffset int
	IndentOffset   int
	CanEdit        bool
	CanDelete      bool
}

// EditorSurface is the host editor the review manager draws on. Decorations
// are keyed by comment id; setting an id that already exists replaces it.
type EditorSurface interface {
	SetDecoration(ctx context.Context, d Decoration) error
	RemoveDecoration(ctx context.Context, commentID string) error
	// Clear removes every decoration registered by the manager.
	Clear(ctx context.Context) error
}

// RenderedDecoration is a decoration together with its body rendered to
// sanitized HTML.
type RenderedDecoration struct {
	Decoration
	HTML string
}

// RenderedSurface is an EditorSurface that retains what it was asked to draw
// so remote clients can fetch the current view.
type RenderedSurface interface {
	EditorSurface
	// Snapshot returns every decoration ordered by line, then depth.
	Snapshot() []RenderedDecoration
}
