// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Szazlo/delphi/internal/domain/commentstore"
	"github.com/Szazlo/delphi/internal/domain/model"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

// Sentinel errors returned when the manager rejects a proposal. A rejected
// proposal appends nothing to the log.
var (
	// ErrReadOnly indicates comments are in read-only mode.
	ErrReadOnly = errors.New("review comments are read-only")

	// ErrNotPermitted indicates the current user may not edit or delete the
	// target comment.
	ErrNotPermitted = errors.New("not permitted to modify comment")
)

// DefaultDateLayout renders timestamps as YY-MM-DD HH:mm.
const DefaultDateLayout = "06-01-02 15:04"

// RenderMode selects whether comments are drawn in a single editor or on the
// modified pane of a side-by-side diff.
type RenderMode string

const (
	RenderInline RenderMode = "inline"
	RenderDiff   RenderMode = "diff"
)

// ManagerConfig holds per-session display and permission options.
type ManagerConfig struct {
	EditButtonEnableRemove bool                   // Authors may delete their own comments.
	FormatDate             func(time.Time) string // Nil uses DefaultDateLayout.
	ReadOnly               bool
	VerticalOffset         int
	CommentIndentOffset    int
	FilePath               string   // File this manager draws; empty draws every file.
	Admins                 []string // Users who may edit or delete any comment.
}

// LayoutDateFormatter returns a FormatDate func for a Go time layout.
func LayoutDateFormatter(layout string) func(time.Time) string {
	return func(t time.Time) string { return t.Format(layout) }
}

// RelativeDateFormatter renders timestamps as "3 minutes ago".
func RelativeDateFormatter(t time.Time) string {
	return humanize.Time(t)
}

// ManagerOption configures a ReviewManager at construction time.
type ManagerOption func(*ReviewManager)

// WithClock overrides the timestamp source used when stamping events.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ReviewManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *ReviewManager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// ReviewManager binds the comment reducer to a live editor surface for one
// review session. It stamps proposed events, folds them into its store,
// redraws only the decorations the fold marked dirty, and hands a copy of the
// log to the change callback.
//
// A ReviewManager is not safe for concurrent use; SessionService serializes
// access when it is shared between requests.
type ReviewManager struct {
	surface     driven.EditorSurface
	currentUser string
	store       *commentstore.Store
	onChange    func([]model.ReviewCommentEvent)
	cfg         ManagerConfig
	mode        RenderMode
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
	drawn map[string]struct{}
}

// NewReviewManager creates a manager, folds the initial events, and draws a
// decoration for every comment in the configured file.
func NewReviewManager(
	ctx context.Context,
	surface driven.EditorSurface,
	currentUser string,
	events []model.ReviewCommentEvent,
	onChange func([]model.ReviewCommentEvent),
	cfg ManagerConfig,
	mode RenderMode,
	logger *slog.Logger,
	opts ...ManagerOption,
) *ReviewManager {
	if cfg.FormatDate == nil {
		cfg.FormatDate = LayoutDateFormatter(DefaultDateLayout)
	}
	if mode == "" {
		mode = RenderInline
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &ReviewManager{
		surface:     surface,
		currentUser: currentUser,
		store:       commentstore.New(),
		onChange:    onChange,
		cfg:         cfg,
		mode:        mode,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
		drawn:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.Load(ctx, events)
	return m
}

// AddEvent stamps a proposal with a fresh id, the current time, and the
// current user, then folds it into the store. The stamped event is returned.
func (m *ReviewManager) AddEvent(ctx context.Context, proposed model.ProposedEvent) (model.ReviewCommentEvent, error) {
	if m.cfg.ReadOnly {
		m.logger.Debug("proposal rejected: read-only", "type", proposed.Type, "user", m.currentUser)
		return model.ReviewCommentEvent{}, ErrReadOnly
	}

	if proposed.FilePath == "" {
		proposed.FilePath = m.cfg.FilePath
	}
	if err := proposed.Validate(); err != nil {
		return model.ReviewCommentEvent{}, err
	}

	if proposed.Type != model.EventTypeCreate {
		if _, known := m.store.Get(proposed.TargetID); !known {
			m.logger.Warn("proposal targets unknown comment", "type", proposed.Type, "target_id", proposed.TargetID, "user", m.currentUser)
		} else if proposed.Type == model.EventTypeEdit && !m.CanEdit(proposed.TargetID) {
			m.logger.Debug("edit rejected", "target_id", proposed.TargetID, "user", m.currentUser)
			return model.ReviewCommentEvent{}, fmt.Errorf("edit %s: %w", proposed.TargetID, ErrNotPermitted)
		} else if proposed.Type == model.EventTypeDelete && !m.CanDelete(proposed.TargetID) {
			m.logger.Debug("delete rejected", "target_id", proposed.TargetID, "user", m.currentUser)
			return model.ReviewCommentEvent{}, fmt.Errorf("delete %s: %w", proposed.TargetID, ErrNotPermitted)
		}
	}

	event := m.stamp(proposed)
	prior := m.store
	m.store = commentstore.Reduce(event, prior)

	dirty := make([]string, 0, len(m.store.DirtyCommentIDs)+len(m.store.DeletedCommentIDs))
	for id := range m.store.DirtyCommentIDs {
		dirty = append(dirty, id)
	}
	for id := range m.store.DeletedCommentIDs {
		dirty = append(dirty, id)
		dirty = append(dirty, m.descendants(prior, id)...)
	}
	slices.Sort(dirty)
	dirty = slices.Compact(dirty)
	m.redraw(ctx, dirty)

	if m.onChange != nil {
		m.onChange(m.Events())
	}

	return event, nil
}

// CreateComment proposes a top-level comment at line in the scoped file.
func (m *ReviewManager) CreateComment(ctx context.Context, line int, text string) (model.ReviewCommentEvent, error) {
	return m.AddEvent(ctx, model.NewCreateEvent(m.cfg.FilePath, line, text))
}

// ReplyTo proposes a reply to parentID, anchored on the parent's line when
// the parent is known.
func (m *ReviewManager) ReplyTo(ctx context.Context, parentID string, line int, text string) (model.ReviewCommentEvent, error) {
	path := m.cfg.FilePath
	if parent, ok := m.store.Get(parentID); ok {
		line = parent.Comment.LineNumber
		path = parent.Comment.FilePath
	}
	return m.AddEvent(ctx, model.NewReplyEvent(path, line, text, parentID))
}

// EditComment proposes new text for id.
func (m *ReviewManager) EditComment(ctx context.Context, id, text string) (model.ReviewCommentEvent, error) {
	return m.AddEvent(ctx, model.NewEditEvent(m.pathOf(id), id, text))
}

// DeleteComment proposes removing id.
func (m *ReviewManager) DeleteComment(ctx context.Context, id string) (model.ReviewCommentEvent, error) {
	return m.AddEvent(ctx, model.NewDeleteEvent(m.pathOf(id), id))
}

// CurrentUser returns the identity used to stamp new events.
func (m *ReviewManager) CurrentUser() string {
	return m.currentUser
}

// SetCurrentUser changes the identity used for future events and permission
// checks. Existing events are untouched; decorations are refreshed so their
// edit/delete affordances match the new user.
func (m *ReviewManager) SetCurrentUser(ctx context.Context, user string) {
	if user == m.currentUser {
		return
	}
	m.currentUser = user
	m.redrawAll(ctx)
}

// ReadOnly reports whether mutating proposals are suppressed.
func (m *ReviewManager) ReadOnly() bool {
	return m.cfg.ReadOnly
}

// SetReadOnly toggles read-only mode without discarding state.
func (m *ReviewManager) SetReadOnly(ctx context.Context, readOnly bool) {
	if readOnly == m.cfg.ReadOnly {
		return
	}
	m.cfg.ReadOnly = readOnly
	m.redrawAll(ctx)
}

// Mode returns the render mode chosen at construction.
func (m *ReviewManager) Mode() RenderMode {
	return m.mode
}

// FilePath returns the file this manager is scoped to.
func (m *ReviewManager) FilePath() string {
	return m.cfg.FilePath
}

// CanEdit reports whether the current user may edit id. Ownership belongs to
// the comment's creator, not the last editor.
func (m *ReviewManager) CanEdit(id string) bool {
	if m.cfg.ReadOnly {
		return false
	}
	cs, ok := m.store.Get(id)
	if !ok {
		return false
	}
	return m.isAdmin() || owner(cs) == m.currentUser
}

// CanDelete reports whether the current user may delete id.
func (m *ReviewManager) CanDelete(id string) bool {
	if !m.CanEdit(id) {
		return false
	}
	return m.isAdmin() || m.cfg.EditButtonEnableRemove
}

// FileComments returns the live comments in path, ordered by line.
func (m *ReviewManager) FileComments(path string) []model.ReviewCommentState {
	return m.store.CommentsForFile(path)
}

// Threads groups the comments in path into reply threads.
func (m *ReviewManager) Threads(path string) []CommentThread {
	return groupIntoThreads(m.store.CommentsForFile(path))
}

// Suggestions extracts proposed code from suggestion comments in path.
func (m *ReviewManager) Suggestions(path string) []Suggestion {
	return extractSuggestions(m.store.CommentsForFile(path))
}

// Events returns a copy of the full event log. The copy is never aliased
// with the manager's internal log.
func (m *ReviewManager) Events() []model.ReviewCommentEvent {
	return slices.Clone(m.store.Events)
}

// Store returns a snapshot of the materialized store.
func (m *ReviewManager) Store() *commentstore.Store {
	return m.store.Clone()
}

// Load replaces the event log, rebuilding the store from scratch and
// redrawing every decoration in the scoped file.
func (m *ReviewManager) Load(ctx context.Context, events []model.ReviewCommentEvent) {
	m.store = commentstore.ReduceComments(events, nil)
	m.ClearDecorations(ctx)
	m.redrawAll(ctx)
}

// SwitchFile clears decorations, rescopes the manager to path, and loads
// that file's events.
func (m *ReviewManager) SwitchFile(ctx context.Context, path string, events []model.ReviewCommentEvent) {
	m.cfg.FilePath = path
	m.Load(ctx, events)
}

// ClearComments empties the store and removes every decoration. The
// configuration and current user are kept.
func (m *ReviewManager) ClearComments(ctx context.Context) {
	m.store = commentstore.New()
	m.ClearDecorations(ctx)
}

// ClearDecorations removes every decoration without touching the store.
func (m *ReviewManager) ClearDecorations(ctx context.Context) {
	if err := m.surface.Clear(ctx); err != nil {
		m.logger.Error("failed to clear decorations", "file_path", m.cfg.FilePath, "error", err)
	}
	clear(m.drawn)
}

// Close clears decorations so nothing dangles on the surface after the
// manager is discarded.
func (m *ReviewManager) Close(ctx context.Context) {
	m.ClearDecorations(ctx)
}

func (m *ReviewManager) stamp(p model.ProposedEvent) model.ReviewCommentEvent {
	if p.Text != nil {
		text := *p.Text
		p.Text = &text
	}
	if p.Selection != nil {
		sel := *p.Selection
		p.Selection = &sel
	}

	createdAt := m.now().UTC()
	if n := len(m.store.Events); n > 0 {
		// Keep the log chronologically ordered even if the clock steps back.
		if last := m.store.Events[n-1].CreatedAt; createdAt.Before(last) {
			createdAt = last
		}
	}

	return model.ReviewCommentEvent{
		ProposedEvent: p,
		ID:            m.newID(),
		CreatedAt:     createdAt,
		CreatedBy:     m.currentUser,
	}
}

func (m *ReviewManager) visible(c model.ReviewComment) bool {
	return m.cfg.FilePath == "" || c.FilePath == m.cfg.FilePath
}

// redraw refreshes only the given ids.
func (m *ReviewManager) redraw(ctx context.Context, ids []string) {
	for _, id := range ids {
		cs, ok := m.store.Get(id)
		if !ok || !m.visible(cs.Comment) {
			if _, drawn := m.drawn[id]; !drawn {
				continue
			}
			if err := m.surface.RemoveDecoration(ctx, id); err != nil {
				m.logger.Error("failed to remove decoration", "comment_id", id, "error", err)
				continue
			}
			delete(m.drawn, id)
			continue
		}

		if err := m.surface.SetDecoration(ctx, m.decoration(cs)); err != nil {
			m.logger.Error("failed to set decoration", "comment_id", id, "line", cs.Comment.LineNumber, "error", err)
			continue
		}
		m.drawn[id] = struct{}{}
	}
}

func (m *ReviewManager) redrawAll(ctx context.Context) {
	var ids []string
	if m.cfg.FilePath == "" {
		for _, path := range m.store.Files() {
			ids = append(ids, m.store.FileComments[path].Sorted()...)
		}
	} else {
		ids = m.store.FileComments[m.cfg.FilePath].Sorted()
	}
	for id := range m.drawn {
		if _, ok := m.store.Get(id); !ok {
			ids = append(ids, id)
		}
	}
	m.redraw(ctx, ids)
}

func (m *ReviewManager) decoration(cs model.ReviewCommentState) driven.Decoration {
	c := cs.Comment

	side := driven.SideInline
	if m.mode == RenderDiff {
		side = driven.SideModified
	}
	depth := m.depth(c)

	return driven.Decoration{
		CommentID:      c.ID,
		FilePath:       c.FilePath,
		LineNumber:     c.LineNumber,
		Selection:      c.Selection,
		Type:           c.Type,
		GlyphClass:     "review-glyph-" + string(c.Type),
		RenderState:    model.RenderStateNormal,
		Side:           side,
		Body:           c.Text,
		Author:         c.Author,
		Date:           m.cfg.FormatDate(c.Dt),
		Depth:          depth,
		VerticalOffset: m.cfg.VerticalOffset,
		IndentOffset:   m.cfg.CommentIndentOffset * depth,
		CanEdit:        m.CanEdit(c.ID),
		CanDelete:      m.CanDelete(c.ID),
	}
}

// depth counts resolvable ancestors. The walk is bounded by the number of
// live comments so a malformed parent cycle cannot loop forever.
func (m *ReviewManager) depth(c model.ReviewComment) int {
	depth := 0
	parent := c.ParentID
	for parent != "" && depth < len(m.store.Comments) {
		p, ok := m.store.Get(parent)
		if !ok {
			break
		}
		depth++
		parent = p.Comment.ParentID
	}
	return depth
}

// descendants returns the live comments in the file of the deleted comment
// id whose parent chain in prior ran through id. Their depth changes with the
// delete even when they sit on another line.
func (m *ReviewManager) descendants(prior *commentstore.Store, id string) []string {
	deleted, ok := prior.Get(id)
	if !ok {
		return nil
	}

	var out []string
	for child := range m.store.FileComments[deleted.Comment.FilePath] {
		parent := m.store.Comments[child].Comment.ParentID
		for hops := 0; parent != "" && hops < len(prior.Comments); hops++ {
			if parent == id {
				out = append(out, child)
				break
			}
			p, ok := prior.Get(parent)
			if !ok {
				break
			}
			parent = p.Comment.ParentID
		}
	}
	return out
}

func (m *ReviewManager) pathOf(id string) string {
	if cs, ok := m.store.Get(id); ok {
		return cs.Comment.FilePath
	}
	return m.cfg.FilePath
}

func (m *ReviewManager) isAdmin() bool {
	return slices.Contains(m.cfg.Admins, m.currentUser)
}

// owner is the comment's creator. Edits overwrite Author, so the creation
// entry at the head of History is authoritative.
func owner(cs model.ReviewCommentState) string {
	if len(cs.History) > 0 {
		return cs.History[0].Author
	}
	return cs.Comment.Author
}
