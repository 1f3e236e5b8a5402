package storage

import (
	"context"
	"time"

	"github.com/docfold/docfold/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Stats summarizes the contents of the document store.
type Stats struct {
	// Chunks is the total number of stored chunks.
	Chunks int

	// Documents is the number of distinct source URLs with stored chunks.
	Documents int

	// Summaries is the number of stored document summaries.
	Summaries int

	// Tags maps each tag to the number of chunks carrying it.
	Tags map[string]int
}

// DocumentRepository provides operations for managing chunks and document
// summaries.
type DocumentRepository interface {
	Repository

	// ReplaceChunks atomically replaces all chunks stored for sourceURL with
	// the given set. Old chunks and their index entries are removed and the
	// new chunks inserted in a single transaction, so a failure partway
	// through leaves the previous state intact. An empty set deletes the
	// document's chunks.
	ReplaceChunks(ctx context.Context, sourceURL string, chunks []*core.Chunk) error

	// UpdateChunks rewrites existing chunks in place, keyed by ChunkID.
	// Index entries are left untouched; use it for embedding refreshes.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by its ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, chunkID string) (*core.Chunk, error)

	// GetChunksBySource retrieves all chunks for a source URL, ordered by
	// chunk index. Returns an empty slice when the document is unknown.
	GetChunksBySource(ctx context.Context, sourceURL string) ([]*core.Chunk, error)

	// DeleteChunksBySource removes all chunks for a source URL along with
	// their index entries. Returns the number of chunks removed.
	DeleteChunksBySource(ctx context.Context, sourceURL string) (int, error)

	// FindChunksByTag retrieves chunks carrying the given tag, up to limit.
	// A limit <= 0 means no limit.
	FindChunksByTag(ctx context.Context, tag string, limit int) ([]*core.Chunk, error)

	// RecentChunks retrieves the most recently indexed chunks, newest first.
	RecentChunks(ctx context.Context, limit int) ([]*core.Chunk, error)

	// ListChunkIDs returns the IDs of all stored chunks.
	ListChunkIDs(ctx context.Context) ([]string, error)

	// FindSimilar finds chunks whose embeddings are similar to the given
	// vector. Returns chunks with similarity >= minSimilarity, up to limit
	// results, ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// UpsertSummary stores or replaces the summary for a source URL.
	UpsertSummary(ctx context.Context, summary *core.DocumentSummary) error

	// GetSummary retrieves the summary for a source URL.
	// Returns ErrNotFound if no summary is stored.
	GetSummary(ctx context.Context, sourceURL string) (*core.DocumentSummary, error)

	// ListSummaries retrieves all stored document summaries.
	ListSummaries(ctx context.Context) ([]*core.DocumentSummary, error)

	// ListSummariesByTag retrieves summaries carrying the given tag.
	ListSummariesByTag(ctx context.Context, tag string) ([]*core.DocumentSummary, error)

	// DeleteSummary removes the summary for a source URL. Deleting a
	// missing summary is not an error.
	DeleteSummary(ctx context.Context, sourceURL string) error

	// Stats reports counts over the stored chunks, documents and tags.
	Stats(ctx context.Context) (*Stats, error)
}

// FeedRepository provides operations for feed subscriptions, the seen-item
// ledger and the pending-approval queue.
type FeedRepository interface {
	Repository

	// UpsertSubscription stores or replaces a feed subscription, keyed by
	// its feed URL. UpdatedAt is set automatically; CreatedAt is set on
	// first insert.
	UpsertSubscription(ctx context.Context, sub *core.FeedSubscription) error

	// GetSubscription retrieves a subscription by feed URL.
	// Returns ErrNotFound if the subscription doesn't exist.
	GetSubscription(ctx context.Context, feedURL string) (*core.FeedSubscription, error)

	// DeleteSubscription removes a subscription by feed URL.
	// Returns ErrNotFound if the subscription doesn't exist.
	DeleteSubscription(ctx context.Context, feedURL string) error

	// ListSubscriptions retrieves all subscriptions, ordered by feed URL.
	ListSubscriptions(ctx context.Context) ([]*core.FeedSubscription, error)

	// MarkSeen records that a feed item has been processed, so later polls
	// skip it. Marking an already-seen item updates its timestamp.
	MarkSeen(ctx context.Context, feedURL string, id core.ItemID, seenAt time.Time) error

	// IsSeen reports whether a feed item is in the seen ledger.
	IsSeen(ctx context.Context, feedURL string, id core.ItemID) (bool, error)

	// PurgeSeenBefore removes ledger entries seen before the cutoff.
	// Returns the number of entries removed.
	PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error)

	// AddPending stores a feed item awaiting approval, keyed by its ItemID.
	AddPending(ctx context.Context, item *core.PendingItem) error

	// GetPending retrieves a pending item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetPending(ctx context.Context, id core.ItemID) (*core.PendingItem, error)

	// DeletePending removes a pending item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	DeletePending(ctx context.Context, id core.ItemID) error

	// ListPending retrieves all pending items, ordered by capture time.
	ListPending(ctx context.Context) ([]*core.PendingItem, error)
}
