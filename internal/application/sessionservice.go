package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Szazlo/delphi/internal/domain/model"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

// ErrNotPersisted indicates an event was recorded in memory but the event
// store did not accept it. It is retried on the next change and when the
// session closes.
var ErrNotPersisted = errors.New("review event not yet persisted")

// SurfaceFactory creates the surface a new session draws on.
type SurfaceFactory func() driven.RenderedSurface

type sessionKey struct {
	submission string
	file       string
}

// session is one file of one submission: a manager, the surface it draws on,
// and how much of its log has reached the event store.
type session struct {
	manager   *ReviewManager
	surface   driven.RenderedSurface
	pending   []model.ReviewCommentEvent
	persisted int
}

// SessionService hosts one ReviewManager per (submission, file), loading each
// lazily from the event store and writing every change back through it. All
// methods are safe for concurrent use; calls are serialized on one mutex
// because a ReviewManager is single-threaded.
type SessionService struct {
	mu         sync.Mutex
	store      driven.EventStore
	newSurface SurfaceFactory
	cfg        ManagerConfig
	mode       RenderMode
	logger     *slog.Logger
	opts       []ManagerOption
	sessions   map[sessionKey]*session
}

// NewSessionService creates a SessionService. cfg is the template for every
// manager; its FilePath is replaced with each session's file.
func NewSessionService(
	store driven.EventStore,
	newSurface SurfaceFactory,
	cfg ManagerConfig,
	mode RenderMode,
	logger *slog.Logger,
	opts ...ManagerOption,
) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:      store,
		newSurface: newSurface,
		cfg:        cfg,
		mode:       mode,
		logger:     logger,
		opts:       opts,
		sessions:   make(map[sessionKey]*session),
	}
}

// Propose stamps proposed as user and folds it into the file's session, then
// persists the new tail of the log. When persistence fails the event is kept
// in memory and retried later; the stamped event is returned together with an
// error wrapping ErrNotPersisted.
func (s *SessionService) Propose(ctx context.Context, submissionID, user string, proposed model.ProposedEvent) (model.ReviewCommentEvent, error) {
	if err := proposed.Validate(); err != nil {
		return model.ReviewCommentEvent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, proposed.FilePath)
	if err != nil {
		return model.ReviewCommentEvent{}, err
	}

	sess.manager.SetCurrentUser(ctx, user)
	event, err := sess.manager.AddEvent(ctx, proposed)
	if err != nil {
		return model.ReviewCommentEvent{}, err
	}

	if err := s.persist(ctx, submissionID, sess); err != nil {
		return event, err
	}

	s.logger.Info("review event recorded",
		"submission_id", submissionID,
		"file_path", event.FilePath,
		"type", event.Type,
		"event_id", event.ID,
		"user", user,
	)
	return event, nil
}

// Comments returns the live comments of a file ordered by line.
func (s *SessionService) Comments(ctx context.Context, submissionID, filePath string) ([]model.ReviewCommentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, filePath)
	if err != nil {
		return nil, err
	}
	return sess.manager.FileComments(filePath), nil
}

// Threads returns a file's comments grouped into reply threads.
func (s *SessionService) Threads(ctx context.Context, submissionID, filePath string) ([]CommentThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, filePath)
	if err != nil {
		return nil, err
	}
	return sess.manager.Threads(filePath), nil
}

// Suggestions returns the proposed code blocks in a file's suggestion
// comments.
func (s *SessionService) Suggestions(ctx context.Context, submissionID, filePath string) ([]Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, filePath)
	if err != nil {
		return nil, err
	}
	return sess.manager.Suggestions(filePath), nil
}

// Events returns a copy of a file's event log.
func (s *SessionService) Events(ctx context.Context, submissionID, filePath string) ([]model.ReviewCommentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, filePath)
	if err != nil {
		return nil, err
	}
	return sess.manager.Events(), nil
}

// Decorations returns the file's drawn decorations with edit and delete
// affordances computed for user.
func (s *SessionService) Decorations(ctx context.Context, submissionID, filePath, user string) ([]driven.RenderedDecoration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, submissionID, filePath)
	if err != nil {
		return nil, err
	}
	sess.manager.SetCurrentUser(ctx, user)
	return sess.surface.Snapshot(), nil
}

// Files lists every file of a submission that has at least one event.
func (s *SessionService) Files(ctx context.Context, submissionID string) ([]string, error) {
	files, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", submissionID, err)
	}
	return files, nil
}

// Reload discards a file's in-memory state and rebuilds it from the event
// store. Events that never reached the store are lost.
func (s *SessionService) Reload(ctx context.Context, submissionID, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{submission: submissionID, file: filePath}
	sess, ok := s.sessions[key]
	if !ok {
		_, err := s.session(ctx, submissionID, filePath)
		return err
	}

	events, err := s.store.ListEvents(ctx, submissionID, filePath)
	if err != nil {
		return fmt.Errorf("reload %s/%s: %w", submissionID, filePath, err)
	}
	if dropped := len(sess.pending) - sess.persisted; dropped > 0 {
		s.logger.Warn("reload dropped unpersisted events",
			"submission_id", submissionID, "file_path", filePath, "count", dropped)
	}

	sess.manager.Load(ctx, events)
	sess.pending = nil
	sess.persisted = len(events)
	s.logger.Info("session reloaded", "submission_id", submissionID, "file_path", filePath, "events", len(events))
	return nil
}

// Close persists anything outstanding, then drops a file's session and
// clears its surface. Closing a session that was never opened is a no-op.
func (s *SessionService) Close(ctx context.Context, submissionID, filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{submission: submissionID, file: filePath}
	if sess, ok := s.sessions[key]; ok {
		s.release(ctx, key, sess)
	}
}

// CloseAll closes every session.
func (s *SessionService) CloseAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sess := range s.sessions {
		s.release(ctx, key, sess)
	}
}

// release makes a last attempt to persist sess before discarding it. Caller
// must hold s.mu.
func (s *SessionService) release(ctx context.Context, key sessionKey, sess *session) {
	if err := s.persist(ctx, key.submission, sess); err != nil {
		s.logger.Warn("closing session dropped unpersisted events",
			"submission_id", key.submission,
			"file_path", key.file,
			"count", len(sess.pending)-sess.persisted,
		)
	}
	sess.manager.Close(ctx)
	delete(s.sessions, key)
}

// session returns the open session for (submissionID, filePath), loading it
// from the event store on first use. Caller must hold s.mu.
func (s *SessionService) session(ctx context.Context, submissionID, filePath string) (*session, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: file path is required", model.ErrInvalidEvent)
	}

	key := sessionKey{submission: submissionID, file: filePath}
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}

	events, err := s.store.ListEvents(ctx, submissionID, filePath)
	if err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", submissionID, filePath, err)
	}

	cfg := s.cfg
	cfg.FilePath = filePath
	sess := &session{surface: s.newSurface(), persisted: len(events)}
	sess.manager = NewReviewManager(ctx, sess.surface, "", events,
		func(all []model.ReviewCommentEvent) { sess.pending = all },
		cfg, s.mode, s.logger, s.opts...)

	s.sessions[key] = sess
	s.logger.Debug("session opened", "submission_id", submissionID, "file_path", filePath, "events", len(events))
	return sess, nil
}

// persist writes every event the store has not yet acknowledged.
func (s *SessionService) persist(ctx context.Context, submissionID string, sess *session) error {
	if sess.persisted >= len(sess.pending) {
		return nil
	}

	tail := sess.pending[sess.persisted:]
	if err := s.store.AppendEvents(ctx, submissionID, tail); err != nil {
		s.logger.Error("failed to persist review events",
			"submission_id", submissionID,
			"count", len(tail),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}

	sess.persisted = len(sess.pending)
	return nil
}
