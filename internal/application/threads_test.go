package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Szazlo/delphi/internal/domain/model"
)

func threadComment(id, parent string, line int, minute int) model.ReviewCommentState {
	return model.NewReviewCommentState(model.ReviewComment{
		ID:         id,
		ParentID:   parent,
		Author:     "alice",
		Dt:         managerEpoch.Add(time.Duration(minute) * time.Minute),
		LineNumber: line,
		Text:       id,
		Status:     model.StatusActive,
		Type:       model.CommentTypeComment,
		FilePath:   "main.go",
	})
}

func replyIDs(thread CommentThread) []string {
	ids := make([]string, 0, len(thread.Replies))
	for _, r := range thread.Replies {
		ids = append(ids, r.State.Comment.ID)
	}
	return ids
}

func TestGroupIntoThreads_Empty(t *testing.T) {
	assert.Nil(t, groupIntoThreads(nil))
}

func TestGroupIntoThreads_NestedReplies(t *testing.T) {
	comments := []model.ReviewCommentState{
		threadComment("r2", "", 20, 0),
		threadComment("r1", "", 10, 5),
		threadComment("a", "r1", 10, 6),
		threadComment("b", "r1", 10, 7),
		threadComment("a1", "a", 10, 8),
	}

	threads := groupIntoThreads(comments)

	require.Len(t, threads, 2)
	assert.Equal(t, "r1", threads[0].Root.Comment.ID)
	assert.Equal(t, "r2", threads[1].Root.Comment.ID)

	assert.Equal(t, []string{"a", "a1", "b"}, replyIDs(threads[0]))
	assert.Equal(t, 1, threads[0].Replies[0].Depth)
	assert.Equal(t, 2, threads[0].Replies[1].Depth)
	assert.Equal(t, 1, threads[0].Replies[2].Depth)
	assert.Empty(t, threads[1].Replies)
}

func TestGroupIntoThreads_SiblingsByCreationTime(t *testing.T) {
	comments := []model.ReviewCommentState{
		threadComment("root", "", 1, 0),
		threadComment("late", "root", 1, 9),
		threadComment("early", "root", 1, 2),
	}

	threads := groupIntoThreads(comments)

	require.Len(t, threads, 1)
	assert.Equal(t, []string{"early", "late"}, replyIDs(threads[0]))
}

func TestGroupIntoThreads_DanglingReplyBecomesRoot(t *testing.T) {
	comments := []model.ReviewCommentState{
		threadComment("orphan", "deleted-parent", 4, 1),
		threadComment("child", "orphan", 4, 2),
	}

	threads := groupIntoThreads(comments)

	require.Len(t, threads, 1)
	assert.Equal(t, "orphan", threads[0].Root.Comment.ID)
	assert.Equal(t, []string{"child"}, replyIDs(threads[0]))
}

func TestGroupIntoThreads_CycleIsNotDropped(t *testing.T) {
	comments := []model.ReviewCommentState{
		threadComment("x", "y", 3, 1),
		threadComment("y", "x", 3, 2),
	}

	threads := groupIntoThreads(comments)

	require.Len(t, threads, 1)
	assert.Equal(t, "x", threads[0].Root.Comment.ID)
	assert.Equal(t, []string{"y"}, replyIDs(threads[0]))
}

func TestExtractSuggestions(t *testing.T) {
	suggestion := threadComment("s1", "", 12, 0)
	suggestion.Comment.Type = model.CommentTypeSuggestion
	suggestion.Comment.Text = "Try this:\n```suggestion\nreturn nil\n```"
	suggestion.Comment.Selection = &model.CodeSelection{StartLineNumber: 12, StartColumn: 1, EndLineNumber: 14, EndColumn: 2}

	noBlock := threadComment("s2", "", 20, 1)
	noBlock.Comment.Type = model.CommentTypeSuggestion
	noBlock.Comment.Text = "just prose"

	plain := threadComment("c1", "", 30, 2)
	plain.Comment.Text = "```suggestion\nignored\n```"

	got := extractSuggestions([]model.ReviewCommentState{suggestion, noBlock, plain})

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].CommentID)
	assert.Equal(t, "return nil", got[0].ProposedCode)
	assert.Equal(t, 12, got[0].StartLine)
	assert.Equal(t, 14, got[0].EndLine)
	assert.Equal(t, "main.go", got[0].FilePath)
}

func TestExtractSuggestions_NoSelectionUsesLine(t *testing.T) {
	s := threadComment("s1", "", 7, 0)
	s.Comment.Type = model.CommentTypeSuggestion
	s.Comment.Text = "````suggestion\na := 1\nb := 2\n````"

	got := extractSuggestions([]model.ReviewCommentState{s})

	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].StartLine)
	assert.Equal(t, 7, got[0].EndLine)
	assert.Equal(t, "a := 1\nb := 2", got[0].ProposedCode)
}

func TestManagerThreadsAndSuggestions(t *testing.T) {
	f := newFixture(t, "alice", ManagerConfig{FilePath: "main.go"},
		seedEvent("root", "bob", "main.go", 3, "question"),
	)

	_, err := f.m.ReplyTo(t.Context(), "root", 0, "answer")
	require.NoError(t, err)

	p := model.NewCreateEvent("main.go", 9, "```suggestion\nfixed()\n```")
	p.CommentType = model.CommentTypeSuggestion
	_, err = f.m.AddEvent(t.Context(), p)
	require.NoError(t, err)

	threads := f.m.Threads("main.go")
	require.Len(t, threads, 2)
	assert.Equal(t, "root", threads[0].Root.Comment.ID)
	assert.Len(t, threads[0].Replies, 1)

	suggestions := f.m.Suggestions("main.go")
	require.Len(t, suggestions, 1)
	assert.Equal(t, "fixed()", suggestions[0].ProposedCode)
}
