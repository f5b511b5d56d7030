package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Szazlo/delphi/internal/application"
	"github.com/Szazlo/delphi/internal/domain/model"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Time     string `json:"time"`
}

// SelectionJSON is a highlighted code span, 1-based.
type SelectionJSON struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// ProposeEventRequest is the JSON body for the propose event endpoint. An
// absent type_state keeps the previous value, null clears it, and any other
// value replaces it.
type ProposeEventRequest struct {
	Type        string                `json:"type"`
	FilePath    string                `json:"file_path"`
	LineNumber  int                   `json:"line_number"`
	Text        *string               `json:"text"`
	Selection   *SelectionJSON        `json:"selection"`
	CommentType string                `json:"comment_type"`
	TypeState   model.TypeStateUpdate `json:"type_state,omitzero"`
	TargetID    string                `json:"target_id"`
}

// CommentVersionResponse is one entry of a comment's edit history.
type CommentVersionResponse struct {
	Author string `json:"author"`
	Date   string `json:"date"`
	Text   string `json:"text"`
}

// CommentResponse is the JSON representation of a live review comment.
type CommentResponse struct {
	ID         string                   `json:"id"`
	ParentID   string                   `json:"parent_id,omitempty"`
	Author     string                   `json:"author"`
	Date       string                   `json:"date"`
	LineNumber int                      `json:"line_number"`
	Text       string                   `json:"text"`
	Selection  *SelectionJSON           `json:"selection,omitempty"`
	Status     string                   `json:"status"`
	Type       string                   `json:"type"`
	TypeState  json.RawMessage          `json:"type_state,omitempty"`
	FilePath   string                   `json:"file_path"`
	Revision   int                      `json:"revision"`
	History    []CommentVersionResponse `json:"history"`
}

// ThreadReplyResponse is a reply within a thread with its nesting depth.
type ThreadReplyResponse struct {
	Comment CommentResponse `json:"comment"`
	Depth   int             `json:"depth"`
}

// ThreadResponse is a root comment with every reply beneath it.
type ThreadResponse struct {
	Root         CommentResponse       `json:"root"`
	Replies      []ThreadReplyResponse `json:"replies"`
	CommentCount int                   `json:"comment_count"`
}

// SuggestionResponse is a structured proposed code change extracted from a comment.
type SuggestionResponse struct {
	CommentID    string `json:"comment_id"`
	FilePath     string `json:"file_path"`
	Author       string `json:"author"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	ProposedCode string `json:"proposed_code"`
}

// EventResponse is the JSON representation of a stamped log entry.
type EventResponse struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	FilePath    string                 `json:"file_path"`
	LineNumber  int                    `json:"line_number,omitempty"`
	Text        *string                `json:"text,omitempty"`
	Selection   *SelectionJSON         `json:"selection,omitempty"`
	CommentType string                 `json:"comment_type,omitempty"`
	TypeState   *model.TypeStateUpdate `json:"type_state,omitempty"`
	TargetID    string                 `json:"target_id,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	CreatedBy   string                 `json:"created_by"`
}

// ProposeEventResponse is the stamped event returned by POST events.
// Persisted is false when the event was recorded but the store has not yet
// accepted it; the server retries, so clients must not resubmit.
type ProposeEventResponse struct {
	EventResponse
	Persisted bool `json:"persisted"`
}

// DecorationResponse is a drawn comment decoration with its rendered body.
type DecorationResponse struct {
	CommentID      string         `json:"comment_id"`
	FilePath       string         `json:"file_path"`
	LineNumber     int            `json:"line_number"`
	Selection      *SelectionJSON `json:"selection,omitempty"`
	Type           string         `json:"type"`
	GlyphClass     string         `json:"glyph_class"`
	RenderState    string         `json:"render_state"`
	Side           string         `json:"side"`
	HTML           string         `json:"html"`
	Author         string         `json:"author"`
	Date           string         `json:"date"`
	Depth          int            `json:"depth"`
	VerticalOffset int            `json:"vertical_offset"`
	IndentOffset   int            `json:"indent_offset"`
	CanEdit        bool           `json:"can_edit"`
	CanDelete      bool           `json:"can_delete"`
}

// FilesResponse lists the files of a submission that carry comments.
type FilesResponse struct {
	Submission string   `json:"submission"`
	Files      []string `json:"files"`
}

// toProposedEvent converts a request body into a domain proposal.
func (req ProposeEventRequest) toProposedEvent() model.ProposedEvent {
	return model.ProposedEvent{
		Type:        model.EventType(req.Type),
		FilePath:    req.FilePath,
		LineNumber:  req.LineNumber,
		Text:        req.Text,
		Selection:   fromSelectionJSON(req.Selection),
		CommentType: model.ReviewCommentType(req.CommentType),
		TypeState:   req.TypeState,
		TargetID:    req.TargetID,
	}
}

func toSelectionJSON(s *model.CodeSelection) *SelectionJSON {
	if s == nil {
		return nil
	}
	return &SelectionJSON{
		StartLine:   s.StartLineNumber,
		StartColumn: s.StartColumn,
		EndLine:     s.EndLineNumber,
		EndColumn:   s.EndColumn,
	}
}

func fromSelectionJSON(s *SelectionJSON) *model.CodeSelection {
	if s == nil {
		return nil
	}
	return &model.CodeSelection{
		StartLineNumber: s.StartLine,
		StartColumn:     s.StartColumn,
		EndLineNumber:   s.EndLine,
		EndColumn:       s.EndColumn,
	}
}

// toCommentResponse converts a materialized comment state to its JSON representation.
func toCommentResponse(cs model.ReviewCommentState) CommentResponse {
	c := cs.Comment

	history := make([]CommentVersionResponse, 0, len(cs.History))
	for _, h := range cs.History {
		history = append(history, CommentVersionResponse{
			Author: h.Author,
			Date:   h.Dt.UTC().Format(time.RFC3339),
			Text:   h.Text,
		})
	}

	return CommentResponse{
		ID:         c.ID,
		ParentID:   c.ParentID,
		Author:     c.Author,
		Date:       c.Dt.UTC().Format(time.RFC3339),
		LineNumber: c.LineNumber,
		Text:       c.Text,
		Selection:  toSelectionJSON(c.Selection),
		Status:     string(c.Status),
		Type:       string(c.Type),
		TypeState:  c.TypeState,
		FilePath:   c.FilePath,
		Revision:   cs.Revision,
		History:    history,
	}
}

// toThreadResponse converts an application CommentThread to its JSON representation.
func toThreadResponse(t application.CommentThread) ThreadResponse {
	replies := make([]ThreadReplyResponse, 0, len(t.Replies))
	for _, r := range t.Replies {
		replies = append(replies, ThreadReplyResponse{
			Comment: toCommentResponse(r.State),
			Depth:   r.Depth,
		})
	}

	return ThreadResponse{
		Root:         toCommentResponse(t.Root),
		Replies:      replies,
		CommentCount: 1 + len(t.Replies),
	}
}

// toSuggestionResponse converts an application Suggestion to its JSON representation.
func toSuggestionResponse(s application.Suggestion) SuggestionResponse {
	return SuggestionResponse{
		CommentID:    s.CommentID,
		FilePath:     s.FilePath,
		Author:       s.Author,
		StartLine:    s.StartLine,
		EndLine:      s.EndLine,
		ProposedCode: s.ProposedCode,
	}
}

// toEventResponse converts a stamped event to its JSON representation.
func toEventResponse(e model.ReviewCommentEvent) EventResponse {
	var typeState *model.TypeStateUpdate
	if !e.TypeState.IsZero() {
		ts := e.TypeState
		typeState = &ts
	}

	return EventResponse{
		ID:          e.ID,
		Type:        string(e.Type),
		FilePath:    e.FilePath,
		LineNumber:  e.LineNumber,
		Text:        e.Text,
		Selection:   toSelectionJSON(e.Selection),
		CommentType: string(e.CommentType),
		TypeState:   typeState,
		TargetID:    e.TargetID,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedBy:   e.CreatedBy,
	}
}

// toDecorationResponse converts a rendered decoration to its JSON representation.
func toDecorationResponse(d driven.RenderedDecoration) DecorationResponse {
	return DecorationResponse{
		CommentID:      d.CommentID,
		FilePath:       d.FilePath,
		LineNumber:     d.LineNumber,
		Selection:      toSelectionJSON(d.Selection),
		Type:           string(d.Type),
		GlyphClass:     d.GlyphClass,
		RenderState:    string(d.RenderState),
		Side:           string(d.Side),
		HTML:           d.HTML,
		Author:         d.Author,
		Date:           d.Date,
		Depth:          d.Depth,
		VerticalOffset: d.VerticalOffset,
		IndentOffset:   d.IndentOffset,
		CanEdit:        d.CanEdit,
		CanDelete:      d.CanDelete,
	}
}
