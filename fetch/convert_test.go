package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfold/docfold/core"
)

func TestToMarkdownPassesThroughMarkdown(t *testing.T) {
	c := NewConverter()
	doc := &core.RawDocument{
		Content:     "# Already Markdown\n\nbody",
		SourceURL:   "https://example.com/doc.md",
		ContentType: core.ContentTypeMarkdown,
	}
	markdown, title, err := c.ToMarkdown(doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, markdown)
	assert.Empty(t, title)
}

func TestToMarkdownPassesThroughPlainText(t *testing.T) {
	c := NewConverter()
	doc := &core.RawDocument{
		Content:     "just some text",
		SourceURL:   "https://example.com/note.txt",
		Title:       "Note",
		ContentType: core.ContentTypeText,
	}
	markdown, title, err := c.ToMarkdown(doc)
	require.NoError(t, err)
	assert.Equal(t, "just some text", markdown)
	assert.Equal(t, "Note", title)
}

func TestToMarkdownConvertsHTML(t *testing.T) {
	c := NewConverter()
	doc := &core.RawDocument{
		Content: `<html><head><title>The Page</title></head><body>
			<article>
				<h1>Heading</h1>
				<p>First paragraph with <strong>bold</strong> text.</p>
				<p>Second paragraph.</p>
			</article>
		</body></html>`,
		SourceURL:   "https://example.com/page",
		ContentType: core.ContentTypeHTML,
	}
	markdown, title, err := c.ToMarkdown(doc)
	require.NoError(t, err)
	assert.Contains(t, markdown, "Heading")
	assert.Contains(t, markdown, "**bold**")
	assert.NotContains(t, markdown, "<p>")
	assert.NotEmpty(t, title)
}

func TestToMarkdownHTMLFragment(t *testing.T) {
	// feed item bodies arrive as fragments without html/head/body
	c := NewConverter()
	doc := &core.RawDocument{
		Content:     "<p>A fragment with a <a href=\"https://example.com\">link</a>.</p>",
		SourceURL:   "https://example.com/feed-item",
		Title:       "Item",
		ContentType: core.ContentTypeRSS,
	}
	markdown, title, err := c.ToMarkdown(doc)
	require.NoError(t, err)
	assert.Contains(t, markdown, "A fragment")
	assert.Contains(t, markdown, "https://example.com")
	assert.Equal(t, "Item", title)
}

func TestToMarkdownTitleFromH1(t *testing.T) {
	c := NewConverter()
	doc := &core.RawDocument{
		Content:     "<body><h1>From Heading</h1><p>body text that is long enough to matter for extraction purposes</p></body>",
		SourceURL:   "https://example.com/x",
		ContentType: core.ContentTypeHTML,
	}
	_, title, err := c.ToMarkdown(doc)
	require.NoError(t, err)
	assert.Equal(t, "From Heading", title)
}

func TestExtractHTMLHeading(t *testing.T) {
	assert.Equal(t, "From Heading", extractHTMLHeading("<body><h1>From Heading</h1><p>x</p></body>"))
	assert.Equal(t, "Bold Title", extractHTMLHeading(`<h1 class="t"><em>Bold</em> Title</h1>`))
	assert.Equal(t, "A & B", extractHTMLHeading("<h1>A &amp; B</h1>"))
	assert.Equal(t, "", extractHTMLHeading("<h2>Not a top heading</h2>"))
}

func TestCleanMarkdown(t *testing.T) {
	in := "line one   \n\n\n\n\nline two\t\n"
	assert.Equal(t, "line one\n\nline two", cleanMarkdown(in))
}

func TestExtractMarkdownTitle(t *testing.T) {
	assert.Equal(t, "Title", extractMarkdownTitle("intro\n# Title\nbody"))
	assert.Equal(t, "", extractMarkdownTitle("no heading here"))
}
