package driven

import (
	"context"

	"github.com/Szazlo/delphi/internal/domain/model"
)

// EventStore persists review comment event logs keyed by submission.
// AppendEvents is idempotent on event id so callers may resubmit the whole
// log after every change.
type EventStore interface {
	AppendEvents(ctx context.Context, submissionID string, events []model.ReviewCommentEvent) error
	// ListEvents returns the file's events in the order they were first
	// appended.
	ListEvents(ctx context.Context, submissionID, filePath string) ([]model.ReviewCommentEvent, error)
	// ListFiles returns every file path with at least one event, sorted.
	ListFiles(ctx context.Context, submissionID string) ([]string, error)
}
