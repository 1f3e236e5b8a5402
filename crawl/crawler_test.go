package crawl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/fetch"
	"github.com/docfold/docfold/pipeline"
	"github.com/docfold/docfold/storage"
	"github.com/docfold/docfold/storage/badger"
)

type fakeFeedSource struct {
	feeds map[string]*fetch.FeedResult
	err   error
}

func (f *fakeFeedSource) FetchFeed(ctx context.Context, feedURL string) (*fetch.FeedResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result, ok := f.feeds[feedURL]
	if !ok {
		return nil, fetch.ErrFeedUnavailable
	}
	return result, nil
}

type fakePageSource struct {
	content string
	fetched []string
}

func (f *fakePageSource) Fetch(ctx context.Context, pageURL string) *core.RawDocument {
	f.fetched = append(f.fetched, pageURL)
	return &core.RawDocument{
		Content:     f.content,
		SourceURL:   pageURL,
		ContentType: core.ContentTypeHTML,
	}
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []*core.RawDocument
	failFor   map[string]bool
}

func (p *fakeProcessor) Process(ctx context.Context, raw *core.RawDocument, opts *pipeline.ProcessOptions) (*pipeline.ProcessingContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[raw.SourceURL] {
		return nil, errors.New("processing failed")
	}
	p.processed = append(p.processed, raw)
	return &pipeline.ProcessingContext{Raw: raw}, nil
}

func (p *fakeProcessor) processedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, len(p.processed))
	for i, raw := range p.processed {
		urls[i] = raw.SourceURL
	}
	return urls
}

const testFeedURL = "https://example.com/feed.xml"

func testItems() []*fetch.FeedItem {
	return []*fetch.FeedItem{
		{
			GUID:       "item-1",
			Link:       "https://example.com/posts/1",
			Title:      "First Post",
			Content:    "Body of the first post.",
			Categories: []string{"go"},
			Published:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			GUID:      "item-2",
			Link:      "https://example.com/posts/2",
			Title:     "Second Post",
			Content:   "Body of the second post.",
			Published: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		},
	}
}

func newTestCrawler(t *testing.T, src *fakeFeedSource, proc *fakeProcessor) (*Crawler, storage.FeedRepository) {
	t.Helper()
	_, feedRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	c, err := NewCrawler(feedRepo, proc,
		WithFeedSource(src),
		WithPageSource(&fakePageSource{content: "fetched body"}),
		WithPollWorkers(2),
	)
	require.NoError(t, err)
	t.Cleanup(c.Release)
	return c, feedRepo
}

func addTestSubscription(t *testing.T, feeds storage.FeedRepository, feedURL string, enabled bool) {
	t.Helper()
	err := feeds.UpsertSubscription(context.Background(), &core.FeedSubscription{
		FeedURL: feedURL,
		Name:    "Test Feed",
		Tags:    []string{"tech"},
		Enabled: enabled,
	})
	require.NoError(t, err)
}

func TestNewCrawlerValidation(t *testing.T) {
	_, feedRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewCrawler(nil, &fakeProcessor{})
	assert.ErrorIs(t, err, ErrFeedRepositoryRequired)

	_, err = NewCrawler(feedRepo, nil)
	assert.ErrorIs(t, err, ErrPipelineRequired)
}

func TestAddSubscription(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Title: "Feed Title", Description: "About things."},
	}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	ctx := context.Background()

	sub := &core.FeedSubscription{FeedURL: testFeedURL, Enabled: true}
	require.NoError(t, c.AddSubscription(ctx, sub))

	stored, err := feedRepo.GetSubscription(ctx, testFeedURL)
	require.NoError(t, err)
	assert.Equal(t, "Feed Title", stored.Name)
	assert.Equal(t, "About things.", stored.Description)
}

func TestAddSubscriptionRejectsUnparseableFeed(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	ctx := context.Background()

	err := c.AddSubscription(ctx, &core.FeedSubscription{FeedURL: "https://example.com/bad", Enabled: true})
	assert.ErrorIs(t, err, fetch.ErrFeedUnavailable)

	subs, err := feedRepo.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestPollFeedApprovalGated(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	// item-2 was handled in the past
	seenID := core.ItemIDFor(testFeedURL, "item-2")
	require.NoError(t, feedRepo.MarkSeen(ctx, testFeedURL, seenID, time.Now().UTC()))

	result, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Items)
	assert.Equal(t, 1, result.New)
	assert.Equal(t, 1, result.Queued)
	assert.Equal(t, 0, result.Ingested)

	pending, err := feedRepo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "item-1", pending[0].GUID)
	assert.Equal(t, "First Post", pending[0].Title)

	// nothing reached the pipeline, and the queued item is not yet seen
	assert.Empty(t, proc.processedURLs())
	seen, err := feedRepo.IsSeen(ctx, testFeedURL, pending[0].ItemID)
	require.NoError(t, err)
	assert.False(t, seen)

	sub, err := feedRepo.GetSubscription(ctx, testFeedURL)
	require.NoError(t, err)
	assert.False(t, sub.LastChecked.IsZero())
	assert.Equal(t, testItems()[0].Published, sub.LastItemDate)
}

func TestPollFeedIdempotent(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	first, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Queued)

	second, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 0, second.Queued)

	pending, err := feedRepo.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPollFeedAutoIngest(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	result, err := c.PollFeed(ctx, testFeedURL, &PollOptions{AutoIngest: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 0, result.Queued)

	urls := proc.processedURLs()
	assert.Contains(t, urls, "https://example.com/posts/1")
	assert.Contains(t, urls, "https://example.com/posts/2")

	// subscription tags propagated into the document
	assert.Contains(t, proc.processed[0].Tags, "tech")
	assert.Equal(t, core.ContentTypeRSS, proc.processed[0].ContentType)
	assert.Equal(t, testFeedURL, proc.processed[0].SourceMetadata["feedURL"])

	for _, item := range testItems() {
		seen, err := feedRepo.IsSeen(ctx, testFeedURL, core.ItemIDFor(testFeedURL, item.GUID))
		require.NoError(t, err)
		assert.True(t, seen)
	}
}

func TestPollFeedFailedIngestRetries(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{failFor: map[string]bool{"https://example.com/posts/1": true}}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	result, err := c.PollFeed(ctx, testFeedURL, &PollOptions{AutoIngest: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	// the failed item was not marked seen, so the next poll retries it
	failedID := core.ItemIDFor(testFeedURL, "item-1")
	seen, err := feedRepo.IsSeen(ctx, testFeedURL, failedID)
	require.NoError(t, err)
	assert.False(t, seen)

	proc.failFor = nil
	retry, err := c.PollFeed(ctx, testFeedURL, &PollOptions{AutoIngest: true})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Ingested)
}

func TestPollFeedDryRun(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	result, err := c.PollFeed(ctx, testFeedURL, &PollOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, 0, result.Queued)
	assert.Equal(t, 0, result.Ingested)

	pending, err := feedRepo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, proc.processedURLs())

	sub, err := feedRepo.GetSubscription(ctx, testFeedURL)
	require.NoError(t, err)
	assert.True(t, sub.LastChecked.IsZero())
}

func TestPollFeedDisabled(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	addTestSubscription(t, feedRepo, testFeedURL, false)

	_, err := c.PollFeed(context.Background(), testFeedURL, nil)
	assert.ErrorIs(t, err, ErrSubscriptionDisabled)
}

func TestPollFeedUnknownSubscription(t *testing.T) {
	c, _ := newTestCrawler(t, &fakeFeedSource{}, &fakeProcessor{})
	_, err := c.PollFeed(context.Background(), "https://example.com/unknown", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPollFetchesBodyForEmptyEntries(t *testing.T) {
	items := testItems()
	items[0].Content = ""
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: items[:1]},
	}}
	proc := &fakeProcessor{}
	pages := &fakePageSource{content: "fetched body"}

	_, feedRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	c, err := NewCrawler(feedRepo, proc, WithFeedSource(src), WithPageSource(pages))
	require.NoError(t, err)
	defer c.Release()

	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	_, err = c.PollFeed(ctx, testFeedURL, &PollOptions{AutoIngest: true})
	require.NoError(t, err)
	require.Len(t, proc.processed, 1)
	assert.Equal(t, "fetched body", proc.processed[0].Content)
	assert.Equal(t, []string{"https://example.com/posts/1"}, pages.fetched)
}

func TestApproveLifecycle(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	_, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)

	itemID := core.ItemIDFor(testFeedURL, "item-1")
	require.NoError(t, c.Approve(ctx, itemID))

	assert.Contains(t, proc.processedURLs(), "https://example.com/posts/1")
	seen, err := feedRepo.IsSeen(ctx, testFeedURL, itemID)
	require.NoError(t, err)
	assert.True(t, seen)

	// disposition is terminal
	assert.ErrorIs(t, c.Approve(ctx, itemID), storage.ErrNotFound)
	assert.ErrorIs(t, c.Reject(ctx, itemID), storage.ErrNotFound)
}

func TestRejectSkipsProcessing(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	_, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)

	itemID := core.ItemIDFor(testFeedURL, "item-2")
	require.NoError(t, c.Reject(ctx, itemID))

	assert.Empty(t, proc.processedURLs())
	seen, err := feedRepo.IsSeen(ctx, testFeedURL, itemID)
	require.NoError(t, err)
	assert.True(t, seen)

	// a rejected item does not resurface on the next poll
	result, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.New)
}

func TestApproveAllContinuesPastFailures(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	proc := &fakeProcessor{failFor: map[string]bool{"https://example.com/posts/1": true}}
	c, feedRepo := newTestCrawler(t, src, proc)
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	_, err := c.PollFeed(ctx, testFeedURL, nil)
	require.NoError(t, err)

	result, err := c.ApproveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	// the failed item stays pending for another attempt
	pending, err := feedRepo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "item-1", pending[0].GUID)
}

func TestPollAll(t *testing.T) {
	otherFeed := "https://example.com/other.xml"
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
		otherFeed:   {FeedURL: otherFeed, Items: testItems()[:1]},
	}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)
	addTestSubscription(t, feedRepo, otherFeed, true)
	addTestSubscription(t, feedRepo, "https://example.com/disabled.xml", false)

	results, err := c.PollAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	queued := 0
	for _, r := range results {
		queued += r.Queued
	}
	assert.Equal(t, 3, queued)
}

func TestPollAllContinuesPastFeedFailures(t *testing.T) {
	src := &fakeFeedSource{feeds: map[string]*fetch.FeedResult{
		testFeedURL: {FeedURL: testFeedURL, Items: testItems()},
	}}
	c, feedRepo := newTestCrawler(t, src, &fakeProcessor{})
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)
	addTestSubscription(t, feedRepo, "https://example.com/gone.xml", true)

	results, err := c.PollAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	failures := 0
	for _, r := range results {
		failures += r.Failed
	}
	assert.Equal(t, 1, failures)
}

func TestPurgeLedger(t *testing.T) {
	c, feedRepo := newTestCrawler(t, &fakeFeedSource{}, &fakeProcessor{})
	ctx := context.Background()

	oldID := core.ItemIDFor(testFeedURL, "old")
	newID := core.ItemIDFor(testFeedURL, "new")
	require.NoError(t, feedRepo.MarkSeen(ctx, testFeedURL, oldID, time.Now().UTC().Add(-40*24*time.Hour)))
	require.NoError(t, feedRepo.MarkSeen(ctx, testFeedURL, newID, time.Now().UTC()))

	purged, err := c.PurgeLedger(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	seen, err := feedRepo.IsSeen(ctx, testFeedURL, oldID)
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = feedRepo.IsSeen(ctx, testFeedURL, newID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRemoveSubscriptionKeepsLedger(t *testing.T) {
	c, feedRepo := newTestCrawler(t, &fakeFeedSource{}, &fakeProcessor{})
	ctx := context.Background()
	addTestSubscription(t, feedRepo, testFeedURL, true)

	itemID := core.ItemIDFor(testFeedURL, "item-1")
	require.NoError(t, feedRepo.MarkSeen(ctx, testFeedURL, itemID, time.Now().UTC()))

	require.NoError(t, c.RemoveSubscription(ctx, testFeedURL))
	_, err := feedRepo.GetSubscription(ctx, testFeedURL)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	seen, err := feedRepo.IsSeen(ctx, testFeedURL, itemID)
	require.NoError(t, err)
	assert.True(t, seen)
}
