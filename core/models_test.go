package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemIDFor(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := ItemIDFor("https://e.com/feed.xml", "guid-1")
		b := ItemIDFor("https://e.com/feed.xml", "guid-1")
		assert.Equal(t, a, b)
	})

	t.Run("distinct per item", func(t *testing.T) {
		a := ItemIDFor("https://e.com/feed.xml", "guid-1")
		b := ItemIDFor("https://e.com/feed.xml", "guid-2")
		assert.NotEqual(t, a, b)
	})

	t.Run("distinct per feed", func(t *testing.T) {
		a := ItemIDFor("https://e.com/feed.xml", "guid-1")
		b := ItemIDFor("https://e.com/other.xml", "guid-1")
		assert.NotEqual(t, a, b)
	})
}

func TestItemIDStringRoundTrip(t *testing.T) {
	id := ItemIDFor("https://e.com/feed.xml", "guid-1")

	s := id.String()
	assert.Len(t, s, 16)

	parsed, err := ParseItemID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseItemIDInvalid(t *testing.T) {
	_, err := ParseItemID("not hex")
	assert.Error(t, err)
}

func TestContentTypeValid(t *testing.T) {
	for _, ct := range []ContentType{ContentTypeHTML, ContentTypeMarkdown, ContentTypeText, ContentTypeRSS} {
		assert.True(t, ct.Valid(), string(ct))
	}
	assert.False(t, ContentType("pdf").Valid())
	assert.False(t, ContentType("").Valid())
}

func TestRawDocumentEmpty(t *testing.T) {
	var nilDoc *RawDocument
	assert.True(t, nilDoc.Empty())
	assert.True(t, (&RawDocument{}).Empty())
	assert.False(t, (&RawDocument{Content: "x"}).Empty())
}

func TestPendingItemGUIDOrLink(t *testing.T) {
	assert.Equal(t, "guid", (&PendingItem{GUID: "guid", Link: "link"}).GUIDOrLink())
	assert.Equal(t, "link", (&PendingItem{Link: "link"}).GUIDOrLink())
}

func TestDedupTags(t *testing.T) {
	t.Run("preserves first-seen order", func(t *testing.T) {
		assert.Equal(t, []string{"b", "a", "c"}, DedupTags([]string{"b", "a", "b", "c", "a"}))
	})

	t.Run("drops empty entries", func(t *testing.T) {
		assert.Equal(t, []string{"a"}, DedupTags([]string{"", "a", ""}))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, DedupTags(nil))
	})
}

func TestValidateRawDocument(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateRawDocument(&RawDocument{
			SourceURL:   "https://e.com/doc",
			ContentType: ContentTypeMarkdown,
		}))
	})

	t.Run("nil", func(t *testing.T) {
		assert.ErrorIs(t, ValidateRawDocument(nil), ErrInvalidDocument)
	})

	t.Run("missing source URL", func(t *testing.T) {
		err := ValidateRawDocument(&RawDocument{ContentType: ContentTypeText})
		assert.ErrorIs(t, err, ErrEmptySourceURL)
	})

	t.Run("unknown content type", func(t *testing.T) {
		err := ValidateRawDocument(&RawDocument{SourceURL: "https://e.com", ContentType: "pdf"})
		assert.ErrorIs(t, err, ErrInvalidContentType)
	})
}

func TestValidateChunk(t *testing.T) {
	valid := func() *Chunk {
		return &Chunk{
			ChunkID:     "id",
			SourceURL:   "https://e.com",
			Content:     "body",
			ChunkIndex:  0,
			TotalChunks: 1,
		}
	}

	assert.NoError(t, ValidateChunk(valid()))
	assert.ErrorIs(t, ValidateChunk(nil), ErrInvalidChunk)

	c := valid()
	c.ChunkID = ""
	assert.ErrorIs(t, ValidateChunk(c), ErrInvalidChunk)

	c = valid()
	c.Content = ""
	assert.ErrorIs(t, ValidateChunk(c), ErrEmptyChunkContent)

	c = valid()
	c.ChunkIndex = 1
	assert.ErrorIs(t, ValidateChunk(c), ErrInvalidChunk)
}

func TestValidateSubscription(t *testing.T) {
	assert.NoError(t, ValidateSubscription(&FeedSubscription{
		FeedURL: "https://e.com/feed.xml",
		Name:    "Feed",
	}))

	assert.ErrorIs(t, ValidateSubscription(nil), ErrInvalidFeedURL)
	assert.ErrorIs(t, ValidateSubscription(&FeedSubscription{FeedURL: "not a url", Name: "x"}), ErrInvalidFeedURL)
	assert.ErrorIs(t, ValidateSubscription(&FeedSubscription{FeedURL: "https://e.com/f"}), ErrEmptySubscriptionName)
}
