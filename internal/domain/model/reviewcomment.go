package model

import (
	"encoding/json"
	"regexp"
	"time"
)

// SuggestionBlock matches a fenced suggestion block in a comment body and
// captures the proposed code.
// Example: ```suggestion\n<proposed code>\n```
var SuggestionBlock = regexp.MustCompile("(?s)`{3,}suggestion[^\n]*\n(.*?)\n?`{3,}")

// CodeSelection is a highlighted span inside a file. All coordinates are
// 1-based to match editor widget conventions.
type CodeSelection struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

// Valid reports whether the selection has positive coordinates and does not
// end before it starts.
func (s CodeSelection) Valid() bool {
	if s.StartLineNumber < 1 || s.StartColumn < 1 || s.EndLineNumber < 1 || s.EndColumn < 1 {
		return false
	}
	if s.EndLineNumber < s.StartLineNumber {
		return false
	}
	return s.EndLineNumber > s.StartLineNumber || s.EndColumn >= s.StartColumn
}

// ReviewComment is the materialized, current-state view of one comment.
type ReviewComment struct {
	ID         string              `json:"id"`
	ParentID   string              `json:"parentId,omitempty"` // Reply target; may dangle.
	Author     string              `json:"author"`
	Dt         time.Time           `json:"dt"`
	LineNumber int                 `json:"lineNumber"`
	Text       string              `json:"text"`
	Selection  *CodeSelection      `json:"selection,omitempty"`
	Status     ReviewCommentStatus `json:"status"`
	Type       ReviewCommentType   `json:"type"`
	TypeState  json.RawMessage     `json:"typeState,omitempty"` // Opaque; never interpreted by the core.
	FilePath   string              `json:"filePath"`
}

// IsReply returns true when the comment was created as a reply to another.
func (c ReviewComment) IsReply() bool {
	return c.ParentID != ""
}

// ReviewCommentState pairs a live comment with its earlier versions, oldest
// first. History always starts with the comment as it was created, so after
// n > 0 edits it holds n entries: the creation state plus every superseded
// intermediate.
type ReviewCommentState struct {
	Comment  ReviewComment   `json:"comment"`
	History  []ReviewComment `json:"history"`
	Revision int             `json:"revision"` // Number of edits applied.
}

// NewReviewCommentState seeds a state whose history holds the initial value.
func NewReviewCommentState(c ReviewComment) ReviewCommentState {
	return ReviewCommentState{
		Comment: c,
		History: []ReviewComment{c},
	}
}

// Supersede returns a new state with next as the live comment. The receiver
// is left untouched. The creation entry already seeds History, so the first
// edit does not append it a second time.
func (s ReviewCommentState) Supersede(next ReviewComment) ReviewCommentState {
	history := make([]ReviewComment, len(s.History), len(s.History)+1)
	copy(history, s.History)
	if s.Revision > 0 || len(history) == 0 {
		history = append(history, s.Comment)
	}

	return ReviewCommentState{
		Comment:  next,
		History:  history,
		Revision: s.Revision + 1,
	}
}
