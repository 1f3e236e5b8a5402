// Copyright 2026 Docfold Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docfold/docfold/ai"
	"github.com/docfold/docfold/chunker"
	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/enrich"
	"github.com/docfold/docfold/fetch"
	"github.com/docfold/docfold/hosts"
	"github.com/docfold/docfold/storage"
)

const summaryInputLimit = 8000

var (
	markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s)\]>"']+`)
)

// Pipeline turns raw documents into stored, embedded, searchable chunks.
// Stages run in a fixed order: enrich, convert, extract links, summarize,
// chunk, embed, optionally categorize, store. Any stage failure aborts the
// run with a StageError, except conversion, which falls back to treating
// the raw content as markdown.
type Pipeline struct {
	documents    storage.DocumentRepository
	provider     ai.AIProvider
	enrichers    *enrich.Registry
	hostRegistry *hosts.Registry
	converter    *fetch.Converter
	locks        *sourceLocks
	maxChunkSize int
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithMaxChunkSize sets the default chunk size budget in bytes.
func WithMaxChunkSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("max chunk size must be positive")
		}
		p.maxChunkSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithEnrichers replaces the default enricher registry.
func WithEnrichers(registry *enrich.Registry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			return fmt.Errorf("enricher registry cannot be nil")
		}
		p.enrichers = registry
		return nil
	}
}

// WithHostRegistry replaces the default host handler registry.
func WithHostRegistry(registry *hosts.Registry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			return fmt.Errorf("host registry cannot be nil")
		}
		p.hostRegistry = registry
		return nil
	}
}

// NewPipeline creates a processing pipeline.
func NewPipeline(documents storage.DocumentRepository, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		documents:    documents,
		provider:     provider,
		enrichers:    enrich.DefaultRegistry(),
		hostRegistry: hosts.DefaultRegistry(),
		converter:    fetch.NewConverter(),
		locks:        newSourceLocks(),
		maxChunkSize: chunker.DefaultMaxSize,
		logger:       slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type stage struct {
	name string
	fn   func(ctx context.Context, pctx *ProcessingContext) error
}

// Process runs a raw document through all stages and stores the result.
// Concurrent calls for the same source URL serialize; distinct sources run
// in parallel. The returned context carries warnings, completed stages and
// (in what-if mode) the side effects that were skipped.
func (p *Pipeline) Process(ctx context.Context, raw *core.RawDocument, opts *ProcessOptions) (*ProcessingContext, error) {
	if raw == nil {
		return nil, ErrNilDocument
	}
	if opts == nil {
		opts = &ProcessOptions{}
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = p.maxChunkSize
	}
	if err := core.ValidateRawDocument(raw); err != nil {
		return nil, err
	}

	pctx := &ProcessingContext{
		Raw:      raw,
		Options:  *opts,
		Title:    raw.Title,
		Metadata: make(map[string]string),
	}
	for k, v := range raw.SourceMetadata {
		pctx.Metadata[k] = v
	}
	for k, v := range opts.Metadata {
		pctx.Metadata[k] = v
	}
	pctx.Tags = core.DedupTags(append(append([]string{}, raw.Tags...), opts.Tags...))

	p.locks.lock(raw.SourceURL)
	defer p.locks.unlock(raw.SourceURL)

	stages := []stage{
		{"enrich", p.stageEnrich},
		{"convert", p.stageConvert},
		{"extract-links", p.stageExtractLinks},
		{"summarize", p.stageSummarize},
		{"chunk", p.stageChunk},
		{"embed", p.stageEmbed},
	}
	if opts.Categorize {
		stages = append(stages, stage{"categorize", p.stageCategorize})
	}
	stages = append(stages, stage{"store", p.stageStore})

	for _, s := range stages {
		if s.name == "embed" && len(pctx.Chunks) == 0 {
			// conversion produced an empty body; nothing to embed or store
			pctx.warn("document produced no chunks")
			break
		}
		if err := s.fn(ctx, pctx); err != nil {
			p.logger.Error("stage failed", "stage", s.name, "url", raw.SourceURL, "error", err)
			return pctx, &StageError{Stage: s.name, Err: err}
		}
		pctx.CompletedStages = append(pctx.CompletedStages, s.name)
	}

	p.logger.Info("document processed",
		"url", raw.SourceURL,
		"chunks", len(pctx.Chunks),
		"warnings", len(pctx.Warnings),
		"whatIf", opts.WhatIf)
	return pctx, nil
}

func (p *Pipeline) stageEnrich(ctx context.Context, pctx *ProcessingContext) error {
	enrichment, name := p.enrichers.Apply(pctx.Raw)
	for k, v := range enrichment.Metadata {
		pctx.Metadata[k] = v
	}
	pctx.Tags = core.DedupTags(append(pctx.Tags, enrichment.Tags...))
	p.logger.Debug("document enriched", "enricher", name, "url", pctx.Raw.SourceURL)
	return nil
}

// stageConvert never fails the run: if conversion errors, the raw content
// is carried forward as markdown with a warning.
func (p *Pipeline) stageConvert(ctx context.Context, pctx *ProcessingContext) error {
	markdown, title, err := p.converter.ToMarkdown(pctx.Raw)
	if err != nil {
		pctx.warn(fmt.Sprintf("conversion failed (%v), treating content as markdown", err))
		pctx.Markdown = pctx.Raw.Content
	} else {
		pctx.Markdown = markdown
		if title != "" {
			pctx.Title = title
		}
	}

	handler := p.hostRegistry.ForURL(pctx.Raw.SourceURL)
	for k, v := range handler.ExtractMetadata(pctx.Raw.SourceURL, pctx.Markdown) {
		pctx.Metadata[k] = v
	}
	return nil
}

func (p *Pipeline) stageExtractLinks(ctx context.Context, pctx *ProcessingContext) error {
	seen := make(map[string]struct{})
	add := func(link string) {
		link = strings.TrimRight(link, ".,;")
		if link == "" || strings.HasPrefix(link, "#") {
			return
		}
		rewritten := p.hostRegistry.ForURL(link).RewriteLink(ctx, link)
		if _, ok := seen[rewritten]; ok {
			return
		}
		seen[rewritten] = struct{}{}
		pctx.Links = append(pctx.Links, rewritten)
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(pctx.Markdown, -1) {
		add(m[1])
	}
	for _, m := range bareURLRe.FindAllString(pctx.Markdown, -1) {
		add(m)
	}
	return nil
}

func (p *Pipeline) stageSummarize(ctx context.Context, pctx *ProcessingContext) error {
	if s := strings.TrimSpace(pctx.Raw.Summary); s != "" {
		pctx.Summary = s
		return nil
	}
	if strings.TrimSpace(pctx.Markdown) == "" {
		return nil
	}
	if pctx.Options.WhatIf {
		pctx.act("summarize: would generate a summary with the completion model")
		return nil
	}

	summary, err := p.provider.Completer().Complete(ctx, summarizeSystemPrompt, truncate(pctx.Markdown, summaryInputLimit))
	if err != nil {
		return err
	}
	pctx.Summary = strings.TrimSpace(summary)
	return nil
}

func (p *Pipeline) stageChunk(ctx context.Context, pctx *ProcessingContext) error {
	texts := chunker.Chunk(pctx.Markdown, pctx.Options.MaxChunkSize)
	now := time.Now().UTC()
	created := pctx.Raw.CreatedDate
	if created.IsZero() {
		created = now
	}

	pctx.Chunks = make([]*core.Chunk, len(texts))
	for i, text := range texts {
		metadata := make(map[string]string, len(pctx.Metadata)+3)
		for k, v := range pctx.Metadata {
			metadata[k] = v
		}
		metadata["chunkIndex"] = strconv.Itoa(i)
		metadata["totalChunks"] = strconv.Itoa(len(texts))
		metadata["sourceUrl"] = pctx.Raw.SourceURL
		pctx.Chunks[i] = &core.Chunk{
			ChunkID:     uuid.NewString(),
			Title:       pctx.Title,
			SourceURL:   pctx.Raw.SourceURL,
			Content:     text,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			ChunkSize:   len(text),
			Metadata:    metadata,
			Tags:        pctx.Tags,
			CreatedDate: created,
		}
	}
	return nil
}

func (p *Pipeline) stageEmbed(ctx context.Context, pctx *ProcessingContext) error {
	if pctx.Options.WhatIf {
		pctx.act(fmt.Sprintf("embed: would embed %d chunks", len(pctx.Chunks)))
		return nil
	}

	embedder := p.provider.Embedder()
	for _, chunk := range pctx.Chunks {
		embedding, err := embedder.EmbedText(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d: %w", chunk.ChunkIndex, err)
		}
		chunk.Embedding = embedding
	}
	return nil
}

func (p *Pipeline) stageCategorize(ctx context.Context, pctx *ProcessingContext) error {
	if pctx.Options.WhatIf {
		pctx.act("categorize: would assign categories with the completion model")
		return nil
	}

	response, err := p.provider.Completer().Complete(ctx, categorizeSystemPrompt, truncate(pctx.Markdown, summaryInputLimit))
	if err != nil {
		return err
	}
	categories, err := parseCategories(response)
	if err != nil {
		return err
	}

	pctx.Tags = core.DedupTags(append(pctx.Tags, categories...))
	for _, chunk := range pctx.Chunks {
		chunk.Tags = pctx.Tags
	}
	return nil
}

func (p *Pipeline) stageStore(ctx context.Context, pctx *ProcessingContext) error {
	if pctx.Options.WhatIf {
		pctx.act(fmt.Sprintf("store: would replace %d chunks for %s", len(pctx.Chunks), pctx.Raw.SourceURL))
		pctx.act(fmt.Sprintf("store: would upsert summary for %s", pctx.Raw.SourceURL))
		return nil
	}

	if err := p.documents.ReplaceChunks(ctx, pctx.Raw.SourceURL, pctx.Chunks); err != nil {
		return err
	}
	return p.documents.UpsertSummary(ctx, &core.DocumentSummary{
		SourceURL:     pctx.Raw.SourceURL,
		Title:         pctx.Title,
		Summary:       pctx.Summary,
		Tags:          pctx.Tags,
		PublishedDate: pctx.Raw.CreatedDate,
	})
}

// Delete removes a document's chunks and summary.
func (p *Pipeline) Delete(ctx context.Context, sourceURL string) (int, error) {
	p.locks.lock(sourceURL)
	defer p.locks.unlock(sourceURL)

	deleted, err := p.documents.DeleteChunksBySource(ctx, sourceURL)
	if err != nil {
		return 0, err
	}
	if err := p.documents.DeleteSummary(ctx, sourceURL); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// parseCategories parses the categorization response, tolerating stray
// prose around the JSON array.
func parseCategories(response string) ([]string, error) {
	start := strings.IndexByte(response, '[')
	end := strings.LastIndexByte(response, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in categorization response")
	}
	var categories []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &categories); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	cleaned := categories[:0]
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// sourceLocks serializes pipeline runs per source URL.
type sourceLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{entries: make(map[string]*lockEntry)}
}

func (l *sourceLocks) lock(key string) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *sourceLocks) unlock(key string) {
	l.mu.Lock()
	entry := l.entries[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
