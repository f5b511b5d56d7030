package application

import (
	"sort"

	"github.com/Szazlo/delphi/internal/domain/model"
)

// ThreadReply is one reply inside a thread with its nesting depth (1 for a
// direct reply to the root).
type ThreadReply struct {
	State model.ReviewCommentState
	Depth int
}

// CommentThread groups a root comment with every reply beneath it.
type CommentThread struct {
	Root    model.ReviewCommentState
	Replies []ThreadReply // Depth-first; siblings sorted by creation time.
}

// Suggestion is proposed code extracted from a suggestion comment.
type Suggestion struct {
	CommentID    string
	FilePath     string
	Author       string
	StartLine    int // From the selection when present; otherwise LineNumber.
	EndLine      int
	ProposedCode string
	OriginalBody string
}

// groupIntoThreads builds reply trees from a file's comments. Comments with
// no parent are roots. Replies whose parent is not among the comments (a
// dangling reply, or a parent that was deleted) become their own roots.
// Threads are ordered by root line number, then creation time.
func groupIntoThreads(comments []model.ReviewCommentState) []CommentThread {
	if len(comments) == 0 {
		return nil
	}

	byID := make(map[string]model.ReviewCommentState, len(comments))
	for _, cs := range comments {
		byID[cs.Comment.ID] = cs
	}

	children := make(map[string][]model.ReviewCommentState)
	var roots []model.ReviewCommentState
	for _, cs := range comments {
		parent := cs.Comment.ParentID
		if _, ok := byID[parent]; parent == "" || !ok || parent == cs.Comment.ID {
			roots = append(roots, cs)
			continue
		}
		children[parent] = append(children[parent], cs)
	}

	for id := range children {
		sortByCreation(children[id])
	}

	sort.SliceStable(roots, func(i, j int) bool {
		a, b := roots[i].Comment, roots[j].Comment
		if a.LineNumber != b.LineNumber {
			return a.LineNumber < b.LineNumber
		}
		if !a.Dt.Equal(b.Dt) {
			return a.Dt.Before(b.Dt)
		}
		return a.ID < b.ID
	})

	threads := make([]CommentThread, 0, len(roots))
	visited := make(map[string]bool, len(comments))
	build := func(root model.ReviewCommentState) CommentThread {
		thread := CommentThread{Root: root}
		visited[root.Comment.ID] = true

		var walk func(id string, depth int)
		walk = func(id string, depth int) {
			for _, child := range children[id] {
				if visited[child.Comment.ID] {
					continue
				}
				visited[child.Comment.ID] = true
				thread.Replies = append(thread.Replies, ThreadReply{State: child, Depth: depth})
				walk(child.Comment.ID, depth+1)
			}
		}
		walk(root.Comment.ID, 1)
		return thread
	}

	for _, root := range roots {
		threads = append(threads, build(root))
	}

	// Replies whose parent links form a cycle have no root; surface each
	// cycle once, rooted at its first member in line order.
	for _, cs := range comments {
		if !visited[cs.Comment.ID] {
			threads = append(threads, build(cs))
		}
	}

	return threads
}

func sortByCreation(states []model.ReviewCommentState) {
	sort.SliceStable(states, func(i, j int) bool {
		a, b := states[i].Comment, states[j].Comment
		if !a.Dt.Equal(b.Dt) {
			return a.Dt.Before(b.Dt)
		}
		return a.ID < b.ID
	})
}

// extractSuggestions parses suggestion blocks from suggestion-type comments.
func extractSuggestions(comments []model.ReviewCommentState) []Suggestion {
	var suggestions []Suggestion

	for _, cs := range comments {
		c := cs.Comment
		if c.Type != model.CommentTypeSuggestion {
			continue
		}

		matches := model.SuggestionBlock.FindStringSubmatch(c.Text)
		if matches == nil {
			continue
		}

		startLine, endLine := c.LineNumber, c.LineNumber
		if c.Selection != nil {
			startLine = c.Selection.StartLineNumber
			endLine = c.Selection.EndLineNumber
		}

		suggestions = append(suggestions, Suggestion{
			CommentID:    c.ID,
			FilePath:     c.FilePath,
			Author:       c.Author,
			StartLine:    startLine,
			EndLine:      endLine,
			ProposedCode: matches[1],
			OriginalBody: c.Text,
		})
	}

	return suggestions
}
