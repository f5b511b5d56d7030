package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Szazlo/delphi/internal/domain/model"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EventStore = (*EventRepo)(nil)

// EventRepo is the SQLite implementation of the EventStore port interface.
// Stamp fields and filter keys are stored as columns; the rest of the event
// is kept as a JSON payload.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new EventRepo backed by the given DB.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// AppendEvents inserts events for a submission in a single transaction.
// Events whose id is already stored are skipped, so resubmitting a log is
// safe and keeps the original insertion order.
func (r *EventRepo) AppendEvents(ctx context.Context, submissionID string, events []model.ReviewCommentEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `
		INSERT INTO review_events (id, submission_id, file_path, type, target_id, created_by, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert review event: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e.ProposedEvent)
		if err != nil {
			return fmt.Errorf("encode review event %s: %w", e.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID, submissionID, e.FilePath, string(e.Type), e.TargetID,
			e.CreatedBy, e.CreatedAt.UTC().Format(time.RFC3339Nano), string(payload),
		); err != nil {
			return fmt.Errorf("insert review event %s for submission %s: %w", e.ID, submissionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review events for submission %s: %w", submissionID, err)
	}

	return nil
}

// ListEvents returns a file's events in the order they were first appended.
func (r *EventRepo) ListEvents(ctx context.Context, submissionID, filePath string) ([]model.ReviewCommentEvent, error) {
	const query = `
		SELECT id, created_by, created_at, payload
		FROM review_events
		WHERE submission_id = ? AND file_path = ?
		ORDER BY seq
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, submissionID, filePath)
	if err != nil {
		return nil, fmt.Errorf("query review events for %s/%s: %w", submissionID, filePath, err)
	}
	defer rows.Close()

	var events []model.ReviewCommentEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review events: %w", err)
	}

	return events, nil
}

// ListFiles returns every file path with at least one event, sorted.
func (r *EventRepo) ListFiles(ctx context.Context, submissionID string) ([]string, error) {
	const query = `
		SELECT DISTINCT file_path
		FROM review_events
		WHERE submission_id = ?
		ORDER BY file_path
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query files for submission %s: %w", submissionID, err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		files = append(files, path)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.ReviewCommentEvent, error) {
	var event model.ReviewCommentEvent
	var createdAt, payload string

	if err := s.Scan(&event.ID, &event.CreatedBy, &createdAt, &payload); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &event.ProposedEvent); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", event.ID, err)
	}

	var err error
	event.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &event, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
