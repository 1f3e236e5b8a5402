package badger

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the shared backend owns the database handle.
func (r *DocumentRepository) Close() error {
	return nil
}

// FindSimilar delegates to the backend.
func (r *DocumentRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	return r.backend.FindSimilar(ctx, vector, minSimilarity, limit)
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ReplaceChunks atomically replaces all chunks stored for sourceURL.
// The old chunks and every index entry pointing at them are removed and the
// new set written in one transaction, so readers never observe a mix of old
// and new chunks.
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, sourceURL string, chunks []*core.Chunk) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := r.readChunksBySource(tx, sourceURL)
		if err != nil {
			return err
		}
		for _, c := range old {
			if err := r.deleteChunkEntries(tx, c); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		for _, c := range chunks {
			if c.IndexedDate.IsZero() {
				c.IndexedDate = now
			}
			if err := r.writeChunkEntries(tx, c); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// UpdateChunks rewrites existing chunks in place, keyed by ChunkID.
func (r *DocumentRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, c := range chunks {
			key := makeChunkKey(c.ChunkID)
			old, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}
			if err := tx.Set(key, storage.MarshalChunk(c)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return chunks, err
}

// GetChunk retrieves a single chunk by ID.
func (r *DocumentRepository) GetChunk(ctx context.Context, chunkID string) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readChunk(tx, makeChunkKey(chunkID))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunksBySource retrieves all chunks for a source URL in document order.
func (r *DocumentRepository) GetChunksBySource(ctx context.Context, sourceURL string) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = r.readChunksBySource(tx, sourceURL)
		return err
	}, false)
	return results, err
}

// DeleteChunksBySource removes all chunks for a source URL.
func (r *DocumentRepository) DeleteChunksBySource(ctx context.Context, sourceURL string) (int, error) {
	var deleted int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		chunks, err := r.readChunksBySource(tx, sourceURL)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			if err := r.deleteChunkEntries(tx, c); err != nil {
				return err
			}
		}
		deleted = len(chunks)
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// FindChunksByTag retrieves chunks carrying the given tag via the tag index.
func (r *DocumentRepository) FindChunksByTag(ctx context.Context, tag string, limit int) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkTagKey(tag)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			var chunkID string
			if err := iter.Item().Value(func(val []byte) error {
				chunkID = string(val)
				return nil
			}); err != nil {
				return err
			}
			chunk, err := r.readChunk(tx, makeChunkKey(chunkID))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// RecentChunks retrieves the most recently indexed chunks, newest first.
func (r *DocumentRepository) RecentChunks(ctx context.Context, limit int) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// seek past the last possible date key, then walk backwards
		startKey := makeChunkDateKey(time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC), "\xff")
		prefix := []byte(chunkDatePrefix + ":")

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			key := iter.Item().Key()
			if len(key) < len(prefix) || slices.Compare(key[:len(prefix)], prefix) != 0 {
				break
			}
			var chunkID string
			if err := iter.Item().Value(func(val []byte) error {
				chunkID = string(val)
				return nil
			}); err != nil {
				return err
			}
			chunk, err := r.readChunk(tx, makeChunkKey(chunkID))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// ListChunkIDs returns the IDs of all stored chunks.
func (r *DocumentRepository) ListChunkIDs(ctx context.Context) ([]string, error) {
	var ids []string
	prefix := []byte(chunkPrefix + ":")
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	}, false)
	return ids, err
}

// UpsertSummary stores or replaces the summary for a source URL.
func (r *DocumentRepository) UpsertSummary(ctx context.Context, summary *core.DocumentSummary) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if summary.IndexedDate.IsZero() {
			summary.IndexedDate = time.Now().UTC()
		}
		key := makeSummaryKey(summary.SourceURL)
		if err := tx.Set(key, storage.MarshalSummary(summary)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetSummary retrieves the summary for a source URL.
func (r *DocumentRepository) GetSummary(ctx context.Context, sourceURL string) (*core.DocumentSummary, error) {
	var result *core.DocumentSummary
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeSummaryKey(sourceURL))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalSummary(val)
			return err
		})
	}, false)
	return result, err
}

// ListSummaries retrieves all stored document summaries.
func (r *DocumentRepository) ListSummaries(ctx context.Context) ([]*core.DocumentSummary, error) {
	return r.listSummaries(ctx, "")
}

// ListSummariesByTag retrieves summaries carrying the given tag.
func (r *DocumentRepository) ListSummariesByTag(ctx context.Context, tag string) ([]*core.DocumentSummary, error) {
	return r.listSummaries(ctx, tag)
}

func (r *DocumentRepository) listSummaries(ctx context.Context, tag string) ([]*core.DocumentSummary, error) {
	var results []*core.DocumentSummary
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var summary *core.DocumentSummary
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				summary, err = storage.UnmarshalSummary(val)
				return err
			}); err != nil {
				return err
			}
			if summary == nil {
				continue
			}
			if tag != "" && !slices.Contains(summary.Tags, tag) {
				continue
			}
			results = append(results, summary)
		}
		return nil
	}, false)
	return results, err
}

// DeleteSummary removes the summary for a source URL. Missing summaries are
// not an error.
func (r *DocumentRepository) DeleteSummary(ctx context.Context, sourceURL string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeSummaryKey(sourceURL)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Stats reports counts over the stored chunks, documents and tags.
func (r *DocumentRepository) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{Tags: make(map[string]int)}
	sources := make(map[string]struct{})

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			stats.Chunks++
			sources[chunk.SourceURL] = struct{}{}
			for _, tag := range chunk.Tags {
				stats.Tags[tag]++
			}
		}

		sumOpts := badger.DefaultIteratorOptions
		sumOpts.Prefix = []byte(summaryPrefix + ":")
		sumOpts.PrefetchValues = false
		sumIter := tx.NewIterator(sumOpts)
		defer sumIter.Close()

		for sumIter.Rewind(); sumIter.Valid(); sumIter.Next() {
			stats.Summaries++
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	stats.Documents = len(sources)
	return stats, nil
}

// readChunk reads a chunk by key, returning nil when the key is absent.
func (r *DocumentRepository) readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// readChunksBySource walks the source index, which is ordered by chunk index.
func (r *DocumentRepository) readChunksBySource(tx *badger.Txn, sourceURL string) ([]*core.Chunk, error) {
	var results []*core.Chunk
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialChunkSourceKey(sourceURL)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var chunkID string
		if err := iter.Item().Value(func(val []byte) error {
			chunkID = string(val)
			return nil
		}); err != nil {
			return nil, err
		}
		chunk, err := r.readChunk(tx, makeChunkKey(chunkID))
		if err != nil {
			return nil, err
		}
		if chunk != nil {
			results = append(results, chunk)
		}
	}
	return results, nil
}

// writeChunkEntries writes the primary record plus source, tag and date
// index entries.
func (r *DocumentRepository) writeChunkEntries(tx *badger.Txn, c *core.Chunk) error {
	if strings.TrimSpace(c.ChunkID) == "" {
		return storage.ErrInvalidQuery
	}
	if err := tx.Set(makeChunkKey(c.ChunkID), storage.MarshalChunk(c)); err != nil {
		return err
	}
	idBytes := []byte(c.ChunkID)
	if err := tx.Set(makeChunkSourceKey(c.SourceURL, uint32(c.ChunkIndex)), idBytes); err != nil {
		return err
	}
	for _, tag := range c.Tags {
		if err := tx.Set(makeChunkTagKey(tag, c.ChunkID), idBytes); err != nil {
			return err
		}
	}
	return tx.Set(makeChunkDateKey(c.IndexedDate, c.ChunkID), idBytes)
}

// deleteChunkEntries removes the primary record plus all index entries.
func (r *DocumentRepository) deleteChunkEntries(tx *badger.Txn, c *core.Chunk) error {
	if err := tx.Delete(makeChunkKey(c.ChunkID)); err != nil {
		return err
	}
	if err := tx.Delete(makeChunkSourceKey(c.SourceURL, uint32(c.ChunkIndex))); err != nil {
		return err
	}
	for _, tag := range c.Tags {
		if err := tx.Delete(makeChunkTagKey(tag, c.ChunkID)); err != nil {
			return err
		}
	}
	return tx.Delete(makeChunkDateKey(c.IndexedDate, c.ChunkID))
}
