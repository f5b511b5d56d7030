package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Szazlo/delphi/internal/domain/model"
)

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestRenderMarkdown_Bold(t *testing.T) {
	result := RenderMarkdown("**bold text**")
	assert.Contains(t, result, "<strong>bold text</strong>")
}

func TestRenderMarkdown_InlineCode(t *testing.T) {
	result := RenderMarkdown("use `fmt.Println`")
	assert.Contains(t, result, "<code>fmt.Println</code>")
}

func TestRenderMarkdown_Heading(t *testing.T) {
	result := RenderMarkdown("###  Markdown Example")
	assert.Contains(t, result, "<h3")
	assert.Contains(t, result, "Markdown Example")
}

func TestRenderMarkdown_SanitizesScript(t *testing.T) {
	result := RenderMarkdown("looks fine\n\n<script>alert()</script>")
	assert.NotContains(t, result, "<script>")
	assert.Contains(t, result, "looks fine")
}

func TestRenderMarkdown_GFMStrikethrough(t *testing.T) {
	result := RenderMarkdown("~~deleted~~")
	assert.Contains(t, result, "<del>deleted</del>")
}

func TestRenderBody_PlainCommentUsesMarkdown(t *testing.T) {
	body := "```suggestion\nx := 1\n```"
	result := RenderBody(model.CommentTypeComment, body)
	assert.NotContains(t, result, "review-suggestion")
}

func TestRenderBody_SuggestionBlock(t *testing.T) {
	body := "Prefer a constant:\n```suggestion\nconst limit = 10 // <b>\n```\nThanks!"
	result := RenderBody(model.CommentTypeSuggestion, body)

	assert.Contains(t, result, `<pre class="review-suggestion">`)
	assert.Contains(t, result, "const limit = 10")
	assert.Contains(t, result, "&lt;b&gt;")
	assert.Contains(t, result, "Prefer a constant:")
	assert.Contains(t, result, "Thanks!")
}

func TestRenderBody_SuggestionWithoutBlock(t *testing.T) {
	result := RenderBody(model.CommentTypeSuggestion, "*just words*")
	assert.Contains(t, result, "<em>just words</em>")
}
