package editor

import (
	"bytes"
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/Szazlo/delphi/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)

	// Comment bodies are user supplied; raw HTML passes through goldmark and
	// is stripped here.
	htmlSanitizer = bluemonday.UGCPolicy()
	htmlSanitizer.AllowAttrs("class").Matching(regexp.MustCompile(`^review-[a-z-]+$`)).OnElements("pre", "div")
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(html.EscapeString(src))
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// RenderBody renders a comment body for its comment type. Suggestion blocks
// are lifted out of the markdown flow into a dedicated review-suggestion
// element so the host can offer an "apply" action on them.
func RenderBody(commentType model.ReviewCommentType, src string) string {
	if commentType != model.CommentTypeSuggestion {
		return RenderMarkdown(src)
	}

	loc := model.SuggestionBlock.FindStringSubmatchIndex(src)
	if loc == nil {
		return RenderMarkdown(src)
	}

	var buf bytes.Buffer
	buf.WriteString(RenderMarkdown(src[:loc[0]]))
	buf.WriteString(`<pre class="review-suggestion"><code>`)
	buf.WriteString(html.EscapeString(src[loc[2]:loc[3]]))
	buf.WriteString(`</code></pre>`)
	buf.WriteString(RenderMarkdown(src[loc[1]:]))

	return htmlSanitizer.Sanitize(buf.String())
}
