package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/docfold/docfold/ai"
	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/storage"
)

// Searcher provides hybrid semantic and tag-based search over stored chunks,
// plus the listing and statistics read model.
type Searcher struct {
	documents storage.DocumentRepository
	feeds     storage.FeedRepository
	embedder  ai.Embedder
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	documents storage.DocumentRepository,
	feeds storage.FeedRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if feeds == nil {
		return nil, ErrFeedRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		documents: documents,
		feeds:     feeds,
		embedder:  provider.Embedder(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar searches for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor searches for chunks similar to the query with monitoring.
// The monitor receives callbacks at each stage of the search process.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	// 1. Perform semantic search
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.documents.FindSimilar(ctx, embedding, 0.60, maxHits)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	semanticScores := make(map[string]float32, len(matches))
	chunks := make(map[string]*core.Chunk, len(matches))
	semanticIDs := make([]string, 0, len(matches))
	for _, match := range matches {
		semanticScores[match.Chunk.ChunkID] = match.Score
		chunks[match.Chunk.ChunkID] = match.Chunk
		semanticIDs = append(semanticIDs, match.Chunk.ChunkID)
	}
	monitor.AfterSemanticSearch(semanticIDs)

	// 2. Find chunks whose tags match query words
	queryWords := tokenizeAndFilter(query)
	tagSet := make(map[string]bool)
	tagIDs := make([]string, 0)
	for _, word := range queryWords {
		tagged, err := s.documents.FindChunksByTag(ctx, word, maxHits)
		if err != nil {
			s.logger.Warn("failed to look up chunks by tag", "tag", word, "err", err)
			continue
		}
		for _, chunk := range tagged {
			if !tagSet[chunk.ChunkID] {
				tagSet[chunk.ChunkID] = true
				tagIDs = append(tagIDs, chunk.ChunkID)
			}
			if _, ok := chunks[chunk.ChunkID]; !ok {
				chunks[chunk.ChunkID] = chunk
			}
		}
	}
	monitor.AfterTagSearch(queryWords, tagIDs)

	if len(chunks) == 0 {
		return []*core.SearchResult{}, nil
	}

	// 3. Combine and score results
	results := make([]*core.SearchResult, 0, len(chunks))
	for id, chunk := range chunks {
		similarityScore, inSemantic := semanticScores[id]
		inTag := tagSet[id]

		var score float32
		if inSemantic && inTag {
			// In both: boost by 1.5x, weighted by similarity score
			score = 1.5 * similarityScore
			monitor.SemanticAndTagHit(chunk)
		} else if inTag {
			score = 1.2
			monitor.TagHit(chunk)
		} else {
			score = 1.0 * similarityScore
			monitor.SemanticHit(chunk)
		}

		// Apply verbatim match boost
		if containsAllQueryWords(chunk.Content, query) {
			score += 0.3
		}

		results = append(results, &core.SearchResult{
			Chunk: chunk,
			Score: score,
		})
	}

	// Sort by score descending
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if maxHits > 0 && len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}

// ByTag returns up to limit chunks carrying the given tag.
func (s *Searcher) ByTag(ctx context.Context, tag string, limit int) ([]*core.Chunk, error) {
	return s.documents.FindChunksByTag(ctx, strings.ToLower(strings.TrimSpace(tag)), limit)
}

// Recent returns the most recently indexed chunks, newest first.
func (s *Searcher) Recent(ctx context.Context, limit int) ([]*core.Chunk, error) {
	return s.documents.RecentChunks(ctx, limit)
}

// Summaries lists per-document summary records, optionally filtered by tag.
// An empty tag lists everything.
func (s *Searcher) Summaries(ctx context.Context, tag string) ([]*core.DocumentSummary, error) {
	if tag == "" {
		return s.documents.ListSummaries(ctx)
	}
	return s.documents.ListSummariesByTag(ctx, tag)
}

// Stats describes the stored corpus.
type Stats struct {
	Chunks        int
	Documents     int
	Summaries     int
	Subscriptions int
	Pending       int
	Tags          map[string]int
}

// Stats aggregates counts across the document and feed repositories.
func (s *Searcher) Stats(ctx context.Context) (*Stats, error) {
	docStats, err := s.documents.Stats(ctx)
	if err != nil {
		return nil, err
	}

	subs, err := s.feeds.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.feeds.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Chunks:        docStats.Chunks,
		Documents:     docStats.Documents,
		Summaries:     docStats.Summaries,
		Subscriptions: len(subs),
		Pending:       len(pending),
		Tags:          docStats.Tags,
	}, nil
}
