package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ItemID is a unique identifier for a feed item, derived from the feed URL
// and the item's GUID (or link when no GUID is present). Identical items
// always hash to the same ID, which is what makes the dedup ledger work.
type ItemID uint64

// ItemIDFor computes the deterministic ID for a feed item.
func ItemIDFor(feedURL, guidOrLink string) ItemID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(feedURL))
	h.Write([]byte(guidOrLink))
	sum := h.Sum(nil)
	return ItemID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex, the form used on the CLI.
func (id ItemID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseItemID parses the hex form produced by String.
func ParseItemID(s string) (ItemID, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, fmt.Errorf("invalid item id %q: %w", s, err)
	}
	return ItemID(v), nil
}

// ContentType identifies the format of a RawDocument's content.
type ContentType string

const (
	ContentTypeHTML     ContentType = "html"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeRSS      ContentType = "rss"
)

// Valid reports whether ct is one of the known content types.
func (ct ContentType) Valid() bool {
	switch ct {
	case ContentTypeHTML, ContentTypeMarkdown, ContentTypeText, ContentTypeRSS:
		return true
	}
	return false
}

// RawDocument is the normalized input to the processing pipeline: one fetched
// or parsed content item. It is immutable once handed to the orchestrator.
type RawDocument struct {
	Content        string
	SourceURL      string // unique key for a logical document
	Title          string
	Summary        string
	ContentType    ContentType
	SourceMetadata map[string]string // origin-specific, open keyed
	Tags           []string
	CreatedDate    time.Time // zero when the origin did not supply one
}

// Empty reports whether the document carries no usable content. Fetchers
// return empty documents instead of errors, so a processing pass over one
// simply yields nothing.
func (d *RawDocument) Empty() bool {
	return d == nil || d.Content == ""
}

// Chunk is the durable storage unit: one size-bounded, embedded markdown
// fragment of a document. All chunks for a source URL are produced by a
// single processing pass; reprocessing replaces the whole set.
type Chunk struct {
	ChunkID     string
	Title       string
	SourceURL   string
	Content     string
	Embedding   []float32
	ChunkIndex  int // 0-based position within the document
	TotalChunks int
	ChunkSize   int // length of Content
	Metadata    map[string]string
	Tags        []string
	CreatedDate time.Time
	IndexedDate time.Time
}

// DocumentSummary is the lightweight per-source record for read-side
// consumers that only need headline metadata, distinct from chunks.
type DocumentSummary struct {
	SourceURL     string
	Title         string
	Summary       string
	Tags          []string
	PublishedDate time.Time
	IndexedDate   time.Time
}

// FeedSubscription is a feed the crawl workflow polls.
type FeedSubscription struct {
	FeedURL      string // unique
	Name         string
	Description  string
	Tags         []string
	Enabled      bool
	LastChecked  time.Time
	LastItemDate time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PendingItem is the full captured payload of a feed entry awaiting human
// disposition. Created on poll when auto-ingest is off; deleted on approve
// or reject, at which point a dedup ledger entry is written.
type PendingItem struct {
	ItemID        ItemID
	FeedURL       string
	GUID          string
	Link          string
	Title         string
	Content       string
	Summary       string
	Author        string
	Categories    []string
	PublishedDate time.Time
	CapturedAt    time.Time
}

// GUIDOrLink returns the item's GUID, falling back to its link. This is the
// value the item's ID was hashed from.
func (p *PendingItem) GUIDOrLink() string {
	if p.GUID != "" {
		return p.GUID
	}
	return p.Link
}

// SearchResult pairs a chunk with its relevance score.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// DedupTags returns a copy of tags with duplicates and empty entries
// removed, preserving first-seen order.
func DedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
