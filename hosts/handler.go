package hosts

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handler customizes ingestion for a family of hosts: rewriting links to
// fetchable forms and pulling host-specific metadata out of rendered
// markdown.
type Handler interface {
	// Domains lists the hostnames this handler claims. A document host
	// matches when it equals a domain or is a subdomain of one.
	Domains() []string

	// RewriteLink maps a link to the URL that should actually be fetched.
	// Links the handler has no opinion about are returned unchanged.
	RewriteLink(ctx context.Context, link string) string

	// ExtractMetadata derives host-specific metadata from a document's
	// source URL and its converted markdown.
	ExtractMetadata(sourceURL, markdown string) map[string]string
}

// Prober checks whether a URL exists. Handlers use it for cheap existence
// probes before committing to a rewrite.
type Prober interface {
	Exists(ctx context.Context, probeURL string) bool
}

// HTTPProber probes URLs with HEAD requests on a short timeout.
type HTTPProber struct {
	client *http.Client
}

var _ Prober = (*HTTPProber)(nil)

// NewHTTPProber creates a prober with a 5 second timeout.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: 5 * time.Second}}
}

// Exists reports whether a HEAD request for probeURL succeeds.
func (p *HTTPProber) Exists(ctx context.Context, probeURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Registry resolves the handler for a URL. Handlers are tried in
// registration order; the catch-all fallback handler always resolves.
type Registry struct {
	handlers []Handler
}

// NewRegistry creates a registry with the given handlers plus the implicit
// fallback.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: append(handlers, &FallbackHandler{})}
}

// DefaultRegistry creates a registry with the standard handler set.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGitHubHandler(NewHTTPProber()))
}

// ForURL returns the first handler whose domains match the URL's host.
func (r *Registry) ForURL(rawURL string) Handler {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	for _, h := range r.handlers {
		if matchesHost(h, host) {
			return h
		}
	}
	return r.handlers[len(r.handlers)-1]
}

func matchesHost(h Handler, host string) bool {
	domains := h.Domains()
	if len(domains) == 0 {
		return true
	}
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// FallbackHandler is the catch-all: no rewrites, host recorded as metadata.
type FallbackHandler struct{}

var _ Handler = (*FallbackHandler)(nil)

func (h *FallbackHandler) Domains() []string { return nil }

func (h *FallbackHandler) RewriteLink(ctx context.Context, link string) string { return link }

func (h *FallbackHandler) ExtractMetadata(sourceURL, markdown string) map[string]string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return map[string]string{"host": strings.ToLower(u.Hostname())}
}
