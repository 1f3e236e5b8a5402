package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docfold/docfold/core"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 10 << 20 // 10 MiB
	defaultUserAgent   = "docfold/1.0 (+https://github.com/docfold/docfold)"
	maxRedirects       = 5
)

// WebFetcher retrieves web pages and produces raw documents. Fetch never
// returns an error: a page that cannot be retrieved yields a placeholder
// document so a batch ingest is not derailed by one dead link.
type WebFetcher struct {
	client      *http.Client
	maxBodySize int64
	userAgent   string
	logger      *slog.Logger
}

// FetcherOption configures a WebFetcher.
type FetcherOption func(*WebFetcher) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *WebFetcher) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		f.client = client
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *WebFetcher) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		f.client.Timeout = timeout
		return nil
	}
}

// WithMaxBodySize caps how many response bytes are read.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *WebFetcher) error {
		if size <= 0 {
			return fmt.Errorf("max body size must be positive")
		}
		f.maxBodySize = size
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) FetcherOption {
	return func(f *WebFetcher) error {
		if ua == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		f.userAgent = ua
		return nil
	}
}

// NewWebFetcher creates a WebFetcher with the given options.
func NewWebFetcher(opts ...FetcherOption) (*WebFetcher, error) {
	f := &WebFetcher{
		client: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (max %d)", maxRedirects)
				}
				return nil
			},
		},
		maxBodySize: defaultMaxBodySize,
		userAgent:   defaultUserAgent,
		logger:      slog.Default().With("component", "fetch"),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Fetch retrieves pageURL and packages the response as a raw document.
// WordPress REST responses (wp-json post endpoints) are unwrapped into
// their rendered HTML. Failures yield a placeholder document carrying the
// error in SourceMetadata rather than an error return.
func (f *WebFetcher) Fetch(ctx context.Context, pageURL string) *core.RawDocument {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return f.placeholder(pageURL, fmt.Errorf("%w: %s", ErrInvalidURL, pageURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return f.placeholder(pageURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.placeholder(pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return f.placeholder(pageURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return f.placeholder(pageURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isWordPressEndpoint(parsed, contentType) {
		if doc := unwrapWordPressPost(pageURL, body); doc != nil {
			return doc
		}
		// not a post object after all; fall through to the generic path
	}

	return &core.RawDocument{
		Content:     string(body),
		SourceURL:   pageURL,
		ContentType: contentTypeFor(contentType),
		CreatedDate: time.Now().UTC(),
	}
}

// placeholder builds the document returned for unreachable pages.
func (f *WebFetcher) placeholder(pageURL string, cause error) *core.RawDocument {
	f.logger.Warn("fetch failed, using placeholder", "url", pageURL, "error", cause)
	return &core.RawDocument{
		Content:     fmt.Sprintf("Content unavailable for %s", pageURL),
		SourceURL:   pageURL,
		Title:       pageURL,
		ContentType: core.ContentTypeText,
		SourceMetadata: map[string]string{
			"fetchError": cause.Error(),
		},
		CreatedDate: time.Now().UTC(),
	}
}

// contentTypeFor maps a Content-Type header to a document content type.
func contentTypeFor(header string) core.ContentType {
	mediaType := header
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "text/markdown", "text/x-markdown":
		return core.ContentTypeMarkdown
	case "text/plain":
		return core.ContentTypeText
	case "application/rss+xml", "application/atom+xml":
		return core.ContentTypeRSS
	default:
		return core.ContentTypeHTML
	}
}

// isWordPressEndpoint reports whether a URL looks like a wp-json REST call
// that returned JSON.
func isWordPressEndpoint(u *url.URL, contentType string) bool {
	return strings.Contains(u.Path, "/wp-json/") && strings.Contains(contentType, "json")
}

// wpRendered is the {"rendered": "..."} shape used by the WordPress REST API.
type wpRendered struct {
	Rendered string `json:"rendered"`
}

// wpPost is the subset of a WordPress REST post object docfold consumes.
type wpPost struct {
	ID      int64      `json:"id"`
	Date    string     `json:"date_gmt"`
	Link    string     `json:"link"`
	Title   wpRendered `json:"title"`
	Content wpRendered `json:"content"`
	Excerpt wpRendered `json:"excerpt"`
}

// unwrapWordPressPost converts a wp-json post body into a raw HTML document.
// Returns nil when the body is not a post object.
func unwrapWordPressPost(pageURL string, body []byte) *core.RawDocument {
	var post wpPost
	if err := json.Unmarshal(body, &post); err != nil || post.Content.Rendered == "" {
		return nil
	}

	created := time.Now().UTC()
	if post.Date != "" {
		if t, err := time.Parse("2006-01-02T15:04:05", post.Date); err == nil {
			created = t.UTC()
		}
	}

	sourceURL := pageURL
	if post.Link != "" {
		sourceURL = post.Link
	}

	return &core.RawDocument{
		Content:     post.Content.Rendered,
		SourceURL:   sourceURL,
		Title:       strings.TrimSpace(post.Title.Rendered),
		Summary:     strings.TrimSpace(stripTags(post.Excerpt.Rendered)),
		ContentType: core.ContentTypeHTML,
		SourceMetadata: map[string]string{
			"wpPostId": fmt.Sprintf("%d", post.ID),
		},
		CreatedDate: created,
	}
}

// stripTags removes HTML tags from a short snippet. Good enough for
// excerpts; full documents go through the converter.
func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
