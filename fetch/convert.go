package fetch

import (
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"github.com/docfold/docfold/core"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// Converter normalizes raw documents to markdown. HTML goes through
// readability extraction to drop navigation and boilerplate before the
// markdown conversion; markdown and plain text pass through unchanged.
type Converter struct {
	converter *md.Converter
	logger    *slog.Logger
}

// NewConverter creates a new Converter.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Converter{
		converter: converter,
		logger:    slog.Default().With("component", "convert"),
	}
}

// ToMarkdown converts a raw document's content to markdown. The returned
// title is the extracted document title when one was found, otherwise the
// document's existing title.
func (c *Converter) ToMarkdown(doc *core.RawDocument) (markdown, title string, err error) {
	title = doc.Title

	switch doc.ContentType {
	case core.ContentTypeMarkdown, core.ContentTypeText:
		return doc.Content, title, nil
	case core.ContentTypeHTML, core.ContentTypeRSS:
		// feed item bodies are HTML fragments
	default:
		return doc.Content, title, nil
	}

	content := doc.Content
	extractedTitle := ""
	if article, ok := c.extractReadable(doc); ok {
		content = article.Content
		extractedTitle = strings.TrimSpace(article.Title)
	}

	converted, err := c.converter.ConvertString(content)
	if err != nil {
		return "", title, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	if extractedTitle != "" {
		title = extractedTitle
	}
	markdown = cleanMarkdown(converted)
	if title == "" {
		title = extractMarkdownTitle(markdown)
	}
	if title == "" {
		// readability can drop the heading along with the page chrome
		title = extractHTMLHeading(doc.Content)
	}
	return markdown, title, nil
}

// extractReadable runs readability extraction, falling back to the full
// document when the page has no identifiable article.
func (c *Converter) extractReadable(doc *core.RawDocument) (readability.Article, bool) {
	pageURL, err := url.Parse(doc.SourceURL)
	if err != nil {
		return readability.Article{}, false
	}
	article, err := readability.FromReader(strings.NewReader(doc.Content), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		c.logger.Debug("readability extraction skipped", "url", doc.SourceURL, "error", err)
		return readability.Article{}, false
	}
	return article, true
}

// cleanMarkdown collapses excessive blank lines and trims trailing
// whitespace from each line.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var (
	h1Re      = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)
)

// extractHTMLHeading pulls the first h1 out of the original HTML.
func extractHTMLHeading(content string) string {
	m := h1Re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(m[1], "")))
}

// extractMarkdownTitle extracts the first H1 heading from markdown.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
