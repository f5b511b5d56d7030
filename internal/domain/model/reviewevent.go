package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent indicates a proposed event is structurally malformed.
// Referential integrity (does TargetID exist?) is never checked here.
var ErrInvalidEvent = errors.New("invalid review comment event")

// ProposedEvent is a caller-supplied mutation intent. It carries no id,
// timestamp, or author; those are stamped by the review manager before the
// event enters the log.
//
// FilePath is mandatory for every type so the log can be filtered and
// replayed per file without resolving TargetID.
type ProposedEvent struct {
	Type        EventType         `json:"type"`
	FilePath    string            `json:"filePath"`
	LineNumber  int               `json:"lineNumber,omitempty"`  // create only; 1-based.
	Text        *string           `json:"text,omitempty"`        // create: body; edit: nil keeps the previous body.
	Selection   *CodeSelection    `json:"selection,omitempty"`   // create only.
	CommentType ReviewCommentType `json:"commentType,omitempty"` // create only; defaults to comment.
	TypeState   TypeStateUpdate   `json:"typeState,omitzero"`
	TargetID    string            `json:"targetId,omitempty"` // edit/delete: target; create: reply parent.
}

// ReviewCommentEvent is a stamped, append-only log entry.
type ReviewCommentEvent struct {
	ProposedEvent
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// Validate checks the proposal's shape for its type.
func (p ProposedEvent) Validate() error {
	if p.FilePath == "" {
		return fmt.Errorf("%w: file path is required", ErrInvalidEvent)
	}

	switch p.Type {
	case EventTypeCreate:
		if p.LineNumber < 1 {
			return fmt.Errorf("%w: line number must be >= 1, got %d", ErrInvalidEvent, p.LineNumber)
		}
		if p.Text == nil {
			return fmt.Errorf("%w: create requires text", ErrInvalidEvent)
		}
		if p.CommentType != "" && !p.CommentType.Valid() {
			return fmt.Errorf("%w: unknown comment type %q", ErrInvalidEvent, p.CommentType)
		}
		if p.Selection != nil && !p.Selection.Valid() {
			return fmt.Errorf("%w: invalid selection", ErrInvalidEvent)
		}
	case EventTypeEdit, EventTypeDelete:
		if p.TargetID == "" {
			return fmt.Errorf("%w: %s requires a target id", ErrInvalidEvent, p.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, p.Type)
	}

	return nil
}

// NewCreateEvent proposes a top-level comment at line in filePath.
func NewCreateEvent(filePath string, line int, text string) ProposedEvent {
	return ProposedEvent{
		Type:       EventTypeCreate,
		FilePath:   filePath,
		LineNumber: line,
		Text:       &text,
	}
}

// NewReplyEvent proposes a reply to parentID anchored at line.
func NewReplyEvent(filePath string, line int, text, parentID string) ProposedEvent {
	p := NewCreateEvent(filePath, line, text)
	p.TargetID = parentID
	return p
}

// NewEditEvent proposes replacing the body of targetID.
func NewEditEvent(filePath, targetID, text string) ProposedEvent {
	return ProposedEvent{
		Type:     EventTypeEdit,
		FilePath: filePath,
		Text:     &text,
		TargetID: targetID,
	}
}

// NewDeleteEvent proposes removing targetID.
func NewDeleteEvent(filePath, targetID string) ProposedEvent {
	return ProposedEvent{
		Type:     EventTypeDelete,
		FilePath: filePath,
		TargetID: targetID,
	}
}

type typeStateOp uint8

const (
	typeStateKeep typeStateOp = iota
	typeStateClear
	typeStateSet
)

// TypeStateUpdate is a three-state change to a comment's opaque type state:
// keep (the zero value), clear, or set. On the wire an absent field keeps,
// JSON null clears, and any other value sets.
type TypeStateUpdate struct {
	op    typeStateOp
	value json.RawMessage
}

// KeepTypeState leaves the previous value unchanged.
func KeepTypeState() TypeStateUpdate { return TypeStateUpdate{} }

// ClearTypeState removes the previous value.
func ClearTypeState() TypeStateUpdate { return TypeStateUpdate{op: typeStateClear} }

// SetTypeState replaces the previous value with raw JSON.
func SetTypeState(raw json.RawMessage) TypeStateUpdate {
	if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ClearTypeState()
	}
	return TypeStateUpdate{op: typeStateSet, value: cloneRaw(raw)}
}

// IsZero reports whether the update keeps the previous value.
func (u TypeStateUpdate) IsZero() bool { return u.op == typeStateKeep }

// Value returns the payload carried by a set update, or nil.
func (u TypeStateUpdate) Value() json.RawMessage {
	if u.op != typeStateSet {
		return nil
	}
	return cloneRaw(u.value)
}

// Apply resolves the update against the previous value.
func (u TypeStateUpdate) Apply(prev json.RawMessage) json.RawMessage {
	switch u.op {
	case typeStateClear:
		return nil
	case typeStateSet:
		return cloneRaw(u.value)
	default:
		return prev
	}
}

// MarshalJSON encodes a set update as its payload and anything else as null.
// Keep updates are dropped by the omitzero tag before reaching here.
func (u TypeStateUpdate) MarshalJSON() ([]byte, error) {
	if u.op != typeStateSet {
		return []byte("null"), nil
	}
	return cloneRaw(u.value), nil
}

// UnmarshalJSON decodes null as clear and any other value as set.
func (u *TypeStateUpdate) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("type state: invalid JSON")
	}
	*u = SetTypeState(json.RawMessage(data))
	return nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
