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


package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/fetch"
	"github.com/docfold/docfold/pipeline"
	"github.com/docfold/docfold/storage"
)

// DefaultRetention is the seen-ledger retention window used when the caller
// does not specify one.
const DefaultRetention = 30 * 24 * time.Hour

// FeedSource retrieves and parses a feed URL.
type FeedSource interface {
	FetchFeed(ctx context.Context, feedURL string) (*fetch.FeedResult, error)
}

// PageSource retrieves a single page. It never fails; unreachable pages
// come back as placeholder documents.
type PageSource interface {
	Fetch(ctx context.Context, pageURL string) *core.RawDocument
}

// Processor runs one document through the processing pipeline.
type Processor interface {
	Process(ctx context.Context, raw *core.RawDocument, opts *pipeline.ProcessOptions) (*pipeline.ProcessingContext, error)
}

// Crawler manages feed subscriptions and drives new items into the pipeline,
// either directly or through an approval queue.
type Crawler struct {
	feeds     storage.FeedRepository
	processor Processor
	feedSrc   FeedSource
	pageSrc   PageSource
	pollPool  *ants.Pool
	logger    *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler) error

// WithPollWorkers sets the number of subscriptions polled concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPollWorkers(size int) Option {
	return func(c *Crawler) error {
		if size < 1 {
			size = 1
		}
		if c.pollPool != nil {
			c.pollPool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		c.pollPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithFeedSource replaces the default feed fetcher.
func WithFeedSource(src FeedSource) Option {
	return func(c *Crawler) error {
		if src == nil {
			return fmt.Errorf("feed source cannot be nil")
		}
		c.feedSrc = src
		return nil
	}
}

// WithPageSource replaces the default web fetcher used when a feed entry
// carries no body of its own.
func WithPageSource(src PageSource) Option {
	return func(c *Crawler) error {
		if src == nil {
			return fmt.Errorf("page source cannot be nil")
		}
		c.pageSrc = src
		return nil
	}
}

// NewCrawler creates a new Crawler.
func NewCrawler(feeds storage.FeedRepository, processor Processor, opts ...Option) (*Crawler, error) {
	if feeds == nil {
		return nil, ErrFeedRepositoryRequired
	}
	if processor == nil {
		return nil, ErrPipelineRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	webFetcher, err := fetch.NewWebFetcher()
	if err != nil {
		pool.Release()
		return nil, err
	}

	c := &Crawler{
		feeds:     feeds,
		processor: processor,
		feedSrc:   fetch.NewFeedFetcher(),
		pageSrc:   webFetcher,
		pollPool:  pool,
		logger:    slog.Default().With("component", "crawl"),
	}

	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.Release()
			return nil, optErr
		}
	}

	return c, nil
}

// Release releases the poll worker pool.
// The crawler should not be used after calling Release.
func (c *Crawler) Release() {
	if c.pollPool != nil {
		c.pollPool.Release()
	}
}

// AddSubscription validates and stores a subscription. The feed must parse;
// an unreachable or malformed feed is rejected. Name and Description fall
// back to the feed's own when left empty.
func (c *Crawler) AddSubscription(ctx context.Context, sub *core.FeedSubscription) error {
	if sub == nil {
		return core.ErrInvalidFeedURL
	}

	result, err := c.feedSrc.FetchFeed(ctx, sub.FeedURL)
	if err != nil {
		return fmt.Errorf("verifying feed: %w", err)
	}
	if sub.Name == "" {
		sub.Name = result.Title
	}
	if sub.Description == "" {
		sub.Description = result.Description
	}

	if err := core.ValidateSubscription(sub); err != nil {
		return err
	}

	if err := c.feeds.UpsertSubscription(ctx, sub); err != nil {
		return err
	}
	c.logger.Info("subscription added", "feedURL", sub.FeedURL, "name", sub.Name)
	return nil
}

// RemoveSubscription deletes a subscription. The seen ledger is kept so a
// re-added feed does not resurface old items.
func (c *Crawler) RemoveSubscription(ctx context.Context, feedURL string) error {
	return c.feeds.DeleteSubscription(ctx, feedURL)
}

// ListSubscriptions returns all subscriptions.
func (c *Crawler) ListSubscriptions(ctx context.Context) ([]*core.FeedSubscription, error) {
	return c.feeds.ListSubscriptions(ctx)
}

// ListPending returns all items awaiting approval, oldest first.
func (c *Crawler) ListPending(ctx context.Context) ([]*core.PendingItem, error) {
	return c.feeds.ListPending(ctx)
}

// PollOptions holds optional parameters for polling.
type PollOptions struct {
	// AutoIngest processes new items immediately instead of queueing them
	// for approval.
	AutoIngest bool

	// DryRun reports what a poll would do without touching the ledger, the
	// pending queue, or storage.
	DryRun bool
}

// PollResult reports the outcome of polling one subscription.
type PollResult struct {
	FeedURL  string
	Items    int // entries in the feed
	New      int // entries not yet seen or pending
	Queued   int // entries added to the approval queue
	Ingested int // entries processed and recorded as seen
	Failed   int
	Errors   []string
}

// PollFeed polls a single subscription. New items are ingested or queued
// according to opts; seen and already-pending items are skipped, so polling
// an unchanged feed is a no-op. Per-item failures are reported in the result
// and do not abort the poll.
func (c *Crawler) PollFeed(ctx context.Context, feedURL string, opts *PollOptions) (*PollResult, error) {
	if opts == nil {
		opts = &PollOptions{}
	}

	sub, err := c.feeds.GetSubscription(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !sub.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionDisabled, feedURL)
	}

	feed, err := c.feedSrc.FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	result := &PollResult{FeedURL: feedURL, Items: len(feed.Items)}
	var lastItemDate time.Time

	for _, item := range feed.Items {
		itemID := core.ItemIDFor(feedURL, item.GUIDOrLink())

		seen, err := c.feeds.IsSeen(ctx, feedURL, itemID)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}
		if _, err := c.feeds.GetPending(ctx, itemID); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		result.New++
		if item.Published.After(lastItemDate) {
			lastItemDate = item.Published
		}

		if opts.DryRun {
			c.logger.Info("dry run: would capture item",
				"feedURL", feedURL, "itemID", itemID, "title", item.Title)
			continue
		}

		if opts.AutoIngest {
			if err := c.ingestItem(ctx, sub, item, itemID); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", itemID, err))
				c.logger.Error("item ingestion failed",
					"feedURL", feedURL, "itemID", itemID, "err", err)
				continue
			}
			result.Ingested++
			continue
		}

		pending := pendingFromItem(feedURL, itemID, item)
		if err := c.feeds.AddPending(ctx, pending); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", itemID, err))
			continue
		}
		result.Queued++
	}

	if !opts.DryRun {
		now := time.Now().UTC()
		sub.LastChecked = now
		if lastItemDate.After(sub.LastItemDate) {
			sub.LastItemDate = lastItemDate
		}
		if err := c.feeds.UpsertSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}

	c.logger.Info("feed polled", "feedURL", feedURL,
		"items", result.Items, "new", result.New,
		"queued", result.Queued, "ingested", result.Ingested, "failed", result.Failed)
	return result, nil
}

// PollAll polls every enabled subscription concurrently. A failing
// subscription yields a PollResult carrying its error; the rest proceed.
func (c *Crawler) PollAll(ctx context.Context, opts *PollOptions) ([]*PollResult, error) {
	subs, err := c.feeds.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*PollResult
	)
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		feedURL := sub.FeedURL
		wg.Add(1)
		if err := c.pollPool.Submit(func() {
			defer wg.Done()
			result, pollErr := c.PollFeed(ctx, feedURL, opts)
			if pollErr != nil {
				result = &PollResult{
					FeedURL: feedURL,
					Failed:  1,
					Errors:  []string{pollErr.Error()},
				}
				c.logger.Error("poll failed", "feedURL", feedURL, "err", pollErr)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}); err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()

	return results, nil
}

// DispositionResult reports a batch of approve/reject outcomes.
type DispositionResult struct {
	Succeeded int
	Failed    int
	Errors    []string
}

// Approve processes a pending item through the pipeline, records it as
// seen, and removes it from the queue. Approving an item that is no longer
// pending returns storage.ErrNotFound.
func (c *Crawler) Approve(ctx context.Context, itemID core.ItemID) error {
	item, err := c.feeds.GetPending(ctx, itemID)
	if err != nil {
		return err
	}

	sub, err := c.feeds.GetSubscription(ctx, item.FeedURL)
	if err != nil {
		return fmt.Errorf("looking up subscription for pending item: %w", err)
	}

	if err := c.processItem(ctx, sub, c.rawFromPending(ctx, item)); err != nil {
		return err
	}

	if err := c.feeds.MarkSeen(ctx, item.FeedURL, itemID, time.Now().UTC()); err != nil {
		return err
	}
	return c.feeds.DeletePending(ctx, itemID)
}

// Reject records a pending item as seen without processing it and removes
// it from the queue. Rejecting an item that is no longer pending returns
// storage.ErrNotFound.
func (c *Crawler) Reject(ctx context.Context, itemID core.ItemID) error {
	item, err := c.feeds.GetPending(ctx, itemID)
	if err != nil {
		return err
	}
	if err := c.feeds.MarkSeen(ctx, item.FeedURL, itemID, time.Now().UTC()); err != nil {
		return err
	}
	return c.feeds.DeletePending(ctx, itemID)
}

// ApproveAll approves every pending item, continuing past failures.
func (c *Crawler) ApproveAll(ctx context.Context) (*DispositionResult, error) {
	items, err := c.feeds.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	result := &DispositionResult{}
	for _, item := range items {
		if err := c.Approve(ctx, item.ItemID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.ItemID, err))
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// PurgeLedger removes seen-ledger entries older than the retention window.
// A zero retention falls back to DefaultRetention. Stored chunks are
// untouched; a purged item can be re-ingested if its feed re-publishes it.
func (c *Crawler) PurgeLedger(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)
	purged, err := c.feeds.PurgeSeenBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	c.logger.Info("seen ledger purged", "cutoff", cutoff, "purged", purged)
	return purged, nil
}

// ingestItem runs one feed entry through the pipeline and, on success,
// records it as seen. A failed entry is left unrecorded so the next poll
// retries it.
func (c *Crawler) ingestItem(ctx context.Context, sub *core.FeedSubscription, item *fetch.FeedItem, itemID core.ItemID) error {
	raw := c.rawFromItem(ctx, sub, item)
	if err := c.processItem(ctx, sub, raw); err != nil {
		return err
	}
	return c.feeds.MarkSeen(ctx, sub.FeedURL, itemID, time.Now().UTC())
}

func (c *Crawler) processItem(ctx context.Context, sub *core.FeedSubscription, raw *core.RawDocument) error {
	_, err := c.processor.Process(ctx, raw, &pipeline.ProcessOptions{Tags: sub.Tags})
	return err
}

// rawFromItem builds the pipeline input for a feed entry. An entry without
// a body of its own is fetched from its link; the feed's provenance survives
// either way.
func (c *Crawler) rawFromItem(ctx context.Context, sub *core.FeedSubscription, item *fetch.FeedItem) *core.RawDocument {
	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = item.GUID
	}

	content := item.Content
	if strings.TrimSpace(content) == "" && item.Link != "" {
		fetched := c.pageSrc.Fetch(ctx, item.Link)
		content = fetched.Content
	}

	metadata := map[string]string{
		"feedURL":  sub.FeedURL,
		"feedName": sub.Name,
		"guid":     item.GUIDOrLink(),
	}
	if item.Author != "" {
		metadata["author"] = item.Author
	}

	return &core.RawDocument{
		Content:        content,
		SourceURL:      sourceURL,
		Title:          item.Title,
		Summary:        item.Summary,
		ContentType:    core.ContentTypeRSS,
		SourceMetadata: metadata,
		Tags:           core.DedupTags(append(append([]string{}, sub.Tags...), item.Categories...)),
		CreatedDate:    item.Published,
	}
}

// rawFromPending rebuilds the pipeline input from a captured pending item.
func (c *Crawler) rawFromPending(ctx context.Context, item *core.PendingItem) *core.RawDocument {
	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = item.GUID
	}

	content := item.Content
	if strings.TrimSpace(content) == "" && item.Link != "" {
		fetched := c.pageSrc.Fetch(ctx, item.Link)
		content = fetched.Content
	}

	metadata := map[string]string{
		"feedURL": item.FeedURL,
		"guid":    item.GUIDOrLink(),
	}
	if item.Author != "" {
		metadata["author"] = item.Author
	}

	return &core.RawDocument{
		Content:        content,
		SourceURL:      sourceURL,
		Title:          item.Title,
		Summary:        item.Summary,
		ContentType:    core.ContentTypeRSS,
		SourceMetadata: metadata,
		Tags:           core.DedupTags(item.Categories),
		CreatedDate:    item.PublishedDate,
	}
}

// pendingFromItem captures the full entry payload for later disposition.
func pendingFromItem(feedURL string, itemID core.ItemID, item *fetch.FeedItem) *core.PendingItem {
	return &core.PendingItem{
		ItemID:        itemID,
		FeedURL:       feedURL,
		GUID:          item.GUID,
		Link:          item.Link,
		Title:         item.Title,
		Content:       item.Content,
		Summary:       item.Summary,
		Author:        item.Author,
		Categories:    item.Categories,
		PublishedDate: item.Published,
	}
}
