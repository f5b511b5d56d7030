package application

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Szazlo/delphi/internal/adapter/driven/editor"
	"github.com/Szazlo/delphi/internal/domain/model"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

type appendCall struct {
	submission string
	ids        []string
}

type mockEventStore struct {
	events    map[string][]model.ReviewCommentEvent // keyed by submission
	appends   []appendCall
	lists     int
	appendErr error
	listErr   error
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{events: make(map[string][]model.ReviewCommentEvent)}
}

func (m *mockEventStore) AppendEvents(_ context.Context, submissionID string, events []model.ReviewCommentEvent) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	call := appendCall{submission: submissionID}
	for _, e := range events {
		call.ids = append(call.ids, e.ID)
		exists := slices.ContainsFunc(m.events[submissionID], func(x model.ReviewCommentEvent) bool {
			return x.ID == e.ID
		})
		if !exists {
			m.events[submissionID] = append(m.events[submissionID], e)
		}
	}
	m.appends = append(m.appends, call)
	return nil
}

func (m *mockEventStore) ListEvents(_ context.Context, submissionID, filePath string) ([]model.ReviewCommentEvent, error) {
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.ReviewCommentEvent
	for _, e := range m.events[submissionID] {
		if e.FilePath == filePath {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventStore) ListFiles(_ context.Context, submissionID string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	seen := map[string]bool{}
	var files []string
	for _, e := range m.events[submissionID] {
		if !seen[e.FilePath] {
			seen[e.FilePath] = true
			files = append(files, e.FilePath)
		}
	}
	sort.Strings(files)
	return files, nil
}

func newTestSessionService(store driven.EventStore, cfg ManagerConfig) *SessionService {
	return NewSessionService(store,
		func() driven.RenderedSurface { return editor.NewSurface() },
		cfg, RenderInline, nil,
		WithClock(steppingClock()),
		WithIDGenerator(sequentialIDs()),
	)
}

func TestSessionService_ProposePersistsTail(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{EditButtonEnableRemove: true})
	ctx := context.Background()

	first, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 3, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "alice", first.CreatedBy)

	_, err = svc.Propose(ctx, "sub-1", "alice", model.NewEditEvent("main.go", first.ID, "hello again"))
	require.NoError(t, err)

	require.Len(t, store.appends, 2)
	assert.Equal(t, []string{"ev-1"}, store.appends[0].ids)
	assert.Equal(t, []string{"ev-2"}, store.appends[1].ids)
	assert.Equal(t, 1, store.lists, "session is loaded once")

	comments, err := svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "hello again", comments[0].Comment.Text)
}

func TestSessionService_LoadsExistingLog(t *testing.T) {
	store := newMockEventStore()
	store.events["sub-1"] = []model.ReviewCommentEvent{
		seedEvent("c1", "bob", "main.go", 4, "from disk"),
		seedEvent("c2", "bob", "other.go", 1, "elsewhere"),
	}
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	events, err := svc.Events(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c1", events[0].ID)

	files, err := svc.Files(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "other.go"}, files)
}

func TestSessionService_SessionsAreIsolated(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	_, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "one"))
	require.NoError(t, err)
	_, err = svc.Propose(ctx, "sub-2", "alice", model.NewCreateEvent("main.go", 1, "two"))
	require.NoError(t, err)

	c1, err := svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	c2, err := svc.Comments(ctx, "sub-2", "main.go")
	require.NoError(t, err)

	require.Len(t, c1, 1)
	require.Len(t, c2, 1)
	assert.Equal(t, "one", c1[0].Comment.Text)
	assert.Equal(t, "two", c2[0].Comment.Text)
}

func TestSessionService_RejectionsAreNotPersisted(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	created, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "mine"))
	require.NoError(t, err)

	_, err = svc.Propose(ctx, "sub-1", "mallory", model.NewEditEvent("main.go", created.ID, "defaced"))
	assert.ErrorIs(t, err, ErrNotPermitted)

	_, err = svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("", 1, "no file"))
	assert.ErrorIs(t, err, model.ErrInvalidEvent)

	assert.Len(t, store.events["sub-1"], 1)
}

func TestSessionService_ReadOnly(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{ReadOnly: true})

	_, err := svc.Propose(context.Background(), "sub-1", "alice", model.NewCreateEvent("main.go", 1, "x"))

	assert.ErrorIs(t, err, ErrReadOnly)
	assert.Empty(t, store.appends)
}

func TestSessionService_PersistFailureRetried(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	store.appendErr = errors.New("disk full")
	ev, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "first"))
	require.ErrorIs(t, err, ErrNotPersisted)
	assert.Equal(t, "ev-1", ev.ID, "stamped event is still returned")

	store.appendErr = nil
	_, err = svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 2, "second"))
	require.NoError(t, err)

	require.Len(t, store.appends, 1)
	assert.Equal(t, []string{"ev-1", "ev-2"}, store.appends[0].ids)
}

func TestSessionService_LoadError(t *testing.T) {
	store := newMockEventStore()
	store.listErr = errors.New("db locked")
	svc := newTestSessionService(store, ManagerConfig{})

	_, err := svc.Comments(context.Background(), "sub-1", "main.go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db locked")

	_, err = svc.Files(context.Background(), "sub-1")
	require.Error(t, err)
}

func TestSessionService_DecorationsPerUser(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{EditButtonEnableRemove: true})
	ctx := context.Background()

	_, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 2, "**bold** claim"))
	require.NoError(t, err)

	forAlice, err := svc.Decorations(ctx, "sub-1", "main.go", "alice")
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	assert.True(t, forAlice[0].CanEdit)
	assert.Contains(t, forAlice[0].HTML, "<strong>bold</strong>")

	forBob, err := svc.Decorations(ctx, "sub-1", "main.go", "bob")
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.False(t, forBob[0].CanEdit)
}

func TestSessionService_ThreadsAndSuggestions(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	root, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 5, "why?"))
	require.NoError(t, err)
	_, err = svc.Propose(ctx, "sub-1", "bob", model.NewReplyEvent("main.go", 5, "because", root.ID))
	require.NoError(t, err)

	p := model.NewCreateEvent("main.go", 9, "```suggestion\nreturn err\n```")
	p.CommentType = model.CommentTypeSuggestion
	_, err = svc.Propose(ctx, "sub-1", "bob", p)
	require.NoError(t, err)

	threads, err := svc.Threads(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Len(t, threads[0].Replies, 1)

	suggestions, err := svc.Suggestions(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "return err", suggestions[0].ProposedCode)
}

func TestSessionService_Reload(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	_, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "kept"))
	require.NoError(t, err)

	// Another process appends directly to the store.
	store.events["sub-1"] = append(store.events["sub-1"], seedEvent("ext", "carol", "main.go", 8, "external"))

	require.NoError(t, svc.Reload(ctx, "sub-1", "main.go"))

	comments, err := svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestSessionService_ReloadUnopenedLoads(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})

	require.NoError(t, svc.Reload(context.Background(), "sub-1", "main.go"))
	assert.Equal(t, 1, store.lists)
}

func TestSessionService_CloseReopens(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	_, err := svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)

	svc.Close(ctx, "sub-1", "main.go")
	svc.Close(ctx, "sub-1", "never-opened.go")

	_, err = svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, 2, store.lists)

	svc.CloseAll(ctx)
	_, err = svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	assert.Equal(t, 3, store.lists)
}

func TestSessionService_ClosePersistsOutstanding(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	store.appendErr = errors.New("disk full")
	_, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "a"))
	require.ErrorIs(t, err, ErrNotPersisted)
	_, err = svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("util.go", 1, "b"))
	require.ErrorIs(t, err, ErrNotPersisted)
	store.appendErr = nil

	svc.Close(ctx, "sub-1", "main.go")
	require.Len(t, store.appends, 1)
	assert.Equal(t, []string{"ev-1"}, store.appends[0].ids)

	svc.CloseAll(ctx)
	require.Len(t, store.appends, 2)
	assert.Equal(t, []string{"ev-2"}, store.appends[1].ids)

	comments, err := svc.Comments(ctx, "sub-1", "util.go")
	require.NoError(t, err)
	assert.Len(t, comments, 1, "reopened from the store")
}

func TestSessionService_CloseDropsWhenStoreStillFails(t *testing.T) {
	store := newMockEventStore()
	svc := newTestSessionService(store, ManagerConfig{})
	ctx := context.Background()

	store.appendErr = errors.New("disk full")
	_, err := svc.Propose(ctx, "sub-1", "alice", model.NewCreateEvent("main.go", 1, "a"))
	require.ErrorIs(t, err, ErrNotPersisted)

	svc.CloseAll(ctx)
	store.appendErr = nil

	comments, err := svc.Comments(ctx, "sub-1", "main.go")
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Empty(t, store.appends)
}

func TestSessionService_EmptyFileRejected(t *testing.T) {
	svc := newTestSessionService(newMockEventStore(), ManagerConfig{})

	_, err := svc.Comments(context.Background(), "sub-1", "")

	assert.ErrorIs(t, err, model.ErrInvalidEvent)
}
