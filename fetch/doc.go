// Package fetch retrieves content from the outside world: web pages,
// WordPress REST endpoints and RSS/Atom feeds. It also owns the
// HTML-to-markdown conversion used downstream.
//
// WebFetcher.Fetch deliberately never returns an error. An unreachable page
// produces a placeholder document so batch ingestion keeps going; the
// failure is recorded in the document's SourceMetadata.
package fetch
