package docfold

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfold/docfold/ai/mock"
	"github.com/docfold/docfold/core"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.FeedRepository())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
	})

	t.Run("in-memory database", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer db.Close()
		assert.NotNil(t, db.DocumentRepository())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// a file where the directory should be
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	db, err := NewDatabase(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, db)

	assert.NoError(t, db.Close())
}

func TestDatabase_FactoryMethods(t *testing.T) {
	db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	t.Run("can create pipeline", func(t *testing.T) {
		pipe, err := db.NewPipeline()
		require.NoError(t, err)
		require.NotNil(t, pipe)
	})

	t.Run("can create crawler", func(t *testing.T) {
		crawler, err := db.NewCrawler(nil)
		require.NoError(t, err)
		require.NotNil(t, crawler)
		crawler.Release()
	})

	t.Run("can create searcher", func(t *testing.T) {
		searcher, err := db.NewSearcher()
		require.NoError(t, err)
		require.NotNil(t, searcher)
	})

	t.Run("can create reembedder", func(t *testing.T) {
		r := db.NewReembedder(nil, os.Stderr)
		require.NotNil(t, r)
	})
}

func TestDatabase_EndToEnd(t *testing.T) {
	db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	pipe, err := db.NewPipeline()
	require.NoError(t, err)

	_, err = pipe.Process(ctx, &core.RawDocument{
		Content:     "# Notes\n\nA short body to index.",
		SourceURL:   "https://example.com/notes",
		Summary:     "Short notes.",
		ContentType: core.ContentTypeMarkdown,
		Tags:        []string{"notes"},
	}, nil)
	require.NoError(t, err)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)

	chunks, err := searcher.ByTag(ctx, "notes", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)

	stats, err := searcher.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}
