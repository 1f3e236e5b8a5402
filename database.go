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


package docfold

import (
	"io"
	"log/slog"

	"github.com/docfold/docfold/ai"
	"github.com/docfold/docfold/ai/openai"
	"github.com/docfold/docfold/crawl"
	"github.com/docfold/docfold/pipeline"
	"github.com/docfold/docfold/reembed"
	"github.com/docfold/docfold/search"
	"github.com/docfold/docfold/storage"
	"github.com/docfold/docfold/storage/badger"
)

// Database bundles the storage backend, its repositories, and the AI
// provider behind one open/close lifecycle, and hands out the workers
// built on top of them.
type Database struct {
	backend  *badger.Backend
	docRepo  storage.DocumentRepository
	feedRepo storage.FeedRepository
	provider ai.AIProvider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
}

// WithAIConfig sets the AI service configuration used to build the default
// provider.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider supplies a ready-made AI provider instead of building one
// from configuration.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory opens the backend without touching disk. filePath is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens the backend at filePath and wires up the repositories
// and AI provider.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	docRepo := badger.NewDocumentRepository(backend)
	feedRepo := badger.NewFeedRepository(backend)

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:  backend,
		docRepo:  docRepo,
		feedRepo: feedRepo,
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.docRepo.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := db.feedRepo.Close(); err != nil {
		db.logger.Error("error closing feed repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.docRepo
}

func (db *Database) FeedRepository() storage.FeedRepository {
	return db.feedRepo
}

func (db *Database) NewPipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(db.docRepo, db.provider, opts...)
}

// NewCrawler builds a crawler backed by a fresh pipeline. Pass pipeline
// options through pipelineOpts; crawler options through opts.
func (db *Database) NewCrawler(pipelineOpts []pipeline.Option, opts ...crawl.Option) (*crawl.Crawler, error) {
	pipe, err := db.NewPipeline(pipelineOpts...)
	if err != nil {
		return nil, err
	}
	return crawl.NewCrawler(db.feedRepo, pipe, opts...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.docRepo, db.feedRepo, db.provider, opts...)
}

// NewReembedder builds a reembedder writing progress to the given writer.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) *reembed.Reembedder {
	return reembed.NewReembedder(db.docRepo, db.provider.Embedder(), config, progress)
}
