package enrich

import (
	"github.com/docfold/docfold/core"
)

// Enrichment is the metadata and tags an enricher derives from a raw
// document's origin.
type Enrichment struct {
	Metadata map[string]string
	Tags     []string
}

// Enricher derives origin metadata for documents it recognizes.
// Enrichers are pure: they inspect the document and return an Enrichment
// without performing I/O or mutating the document.
type Enricher interface {
	// Name identifies the enricher in logs and stage output.
	Name() string

	// Matches reports whether this enricher recognizes the document.
	Matches(doc *core.RawDocument) bool

	// Enrich derives metadata and tags. Called only when Matches is true.
	Enrich(doc *core.RawDocument) *Enrichment
}

// Registry dispatches documents to enrichers in registration order. The
// first match wins; the built-in fallback matches everything, so dispatch
// always produces an enrichment.
type Registry struct {
	enrichers []Enricher
}

// NewRegistry creates a registry with the given enrichers, tried in order.
// The fallback enricher is appended automatically.
func NewRegistry(enrichers ...Enricher) *Registry {
	return &Registry{enrichers: append(enrichers, &FallbackEnricher{})}
}

// DefaultRegistry creates a registry with the standard enricher set:
// feeds, WordPress posts, web pages, then plain documents.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&FeedEnricher{},
		&WordPressEnricher{},
		&HTMLEnricher{},
		&PlainTextEnricher{},
	)
}

// Apply runs the first enricher that matches the document and returns its
// enrichment along with the enricher's name.
func (r *Registry) Apply(doc *core.RawDocument) (*Enrichment, string) {
	for _, e := range r.enrichers {
		if e.Matches(doc) {
			return e.Enrich(doc), e.Name()
		}
	}
	// unreachable while the fallback is registered
	return &Enrichment{}, ""
}

// FeedEnricher recognizes documents captured from RSS/Atom feed entries.
type FeedEnricher struct{}

func (e *FeedEnricher) Name() string { return "feed" }

func (e *FeedEnricher) Matches(doc *core.RawDocument) bool {
	return doc.ContentType == core.ContentTypeRSS
}

func (e *FeedEnricher) Enrich(doc *core.RawDocument) *Enrichment {
	enrichment := &Enrichment{
		Metadata: map[string]string{"sourceType": "feed"},
		Tags:     []string{"feed-content"},
	}
	for _, key := range []string{"feedURL", "feedTitle", "author"} {
		if v, ok := doc.SourceMetadata[key]; ok && v != "" {
			enrichment.Metadata[key] = v
		}
	}
	return enrichment
}

// WordPressEnricher recognizes posts fetched through the WordPress REST API.
type WordPressEnricher struct{}

func (e *WordPressEnricher) Name() string { return "wordpress" }

func (e *WordPressEnricher) Matches(doc *core.RawDocument) bool {
	_, ok := doc.SourceMetadata["wpPostId"]
	return ok
}

func (e *WordPressEnricher) Enrich(doc *core.RawDocument) *Enrichment {
	return &Enrichment{
		Metadata: map[string]string{
			"sourceType": "wordpress",
			"wpPostId":   doc.SourceMetadata["wpPostId"],
		},
		Tags: []string{"wordpress-content"},
	}
}

// HTMLEnricher recognizes plain web pages.
type HTMLEnricher struct{}

func (e *HTMLEnricher) Name() string { return "html" }

func (e *HTMLEnricher) Matches(doc *core.RawDocument) bool {
	return doc.ContentType == core.ContentTypeHTML
}

func (e *HTMLEnricher) Enrich(doc *core.RawDocument) *Enrichment {
	return &Enrichment{
		Metadata: map[string]string{"sourceType": "web"},
		Tags:     []string{"web-content"},
	}
}

// PlainTextEnricher recognizes markdown and plain-text documents.
type PlainTextEnricher struct{}

func (e *PlainTextEnricher) Name() string { return "plaintext" }

func (e *PlainTextEnricher) Matches(doc *core.RawDocument) bool {
	return doc.ContentType == core.ContentTypeText || doc.ContentType == core.ContentTypeMarkdown
}

func (e *PlainTextEnricher) Enrich(doc *core.RawDocument) *Enrichment {
	return &Enrichment{
		Metadata: map[string]string{"sourceType": "document"},
		Tags:     []string{"document-content"},
	}
}

// FallbackEnricher matches every document. It keeps dispatch total so
// downstream stages can rely on sourceType being present.
type FallbackEnricher struct{}

func (e *FallbackEnricher) Name() string { return "fallback" }

func (e *FallbackEnricher) Matches(doc *core.RawDocument) bool { return true }

func (e *FallbackEnricher) Enrich(doc *core.RawDocument) *Enrichment {
	return &Enrichment{
		Metadata: map[string]string{"sourceType": "unknown"},
		Tags:     []string{"ingested"},
	}
}

var (
	_ Enricher = (*FeedEnricher)(nil)
	_ Enricher = (*WordPressEnricher)(nil)
	_ Enricher = (*HTMLEnricher)(nil)
	_ Enricher = (*PlainTextEnricher)(nil)
	_ Enricher = (*FallbackEnricher)(nil)
)
