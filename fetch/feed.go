package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is one entry of a parsed feed.
type FeedItem struct {
	GUID       string
	Link       string
	Title      string
	Content    string
	Summary    string
	Author     string
	Categories []string
	Published  time.Time
}

// GUIDOrLink returns the item's GUID, falling back to its link. This is the
// identity used for the seen-item ledger.
func (i *FeedItem) GUIDOrLink() string {
	if i.GUID != "" {
		return i.GUID
	}
	return i.Link
}

// FeedResult is a parsed feed with its entries in feed order.
type FeedResult struct {
	FeedURL     string
	Title       string
	Description string
	Items       []*FeedItem
}

// FeedFetcher retrieves and parses RSS and Atom feeds.
type FeedFetcher struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFeedFetcher creates a new FeedFetcher.
func NewFeedFetcher() *FeedFetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = defaultUserAgent

	return &FeedFetcher{
		parser: parser,
		logger: slog.Default().With("component", "feed"),
	}
}

// FetchFeed retrieves and parses the feed at feedURL.
func (f *FeedFetcher) FetchFeed(ctx context.Context, feedURL string) (*FeedResult, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, feedURL, err)
	}

	result := &FeedResult{
		FeedURL:     feedURL,
		Title:       feed.Title,
		Description: feed.Description,
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entry := &FeedItem{
			GUID:       item.GUID,
			Link:       item.Link,
			Title:      item.Title,
			Content:    item.Content,
			Summary:    item.Description,
			Categories: item.Categories,
		}
		if entry.Content == "" {
			entry.Content = item.Description
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.Author = item.Authors[0].Name
		}
		if item.PublishedParsed != nil {
			entry.Published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			entry.Published = item.UpdatedParsed.UTC()
		}
		if entry.GUIDOrLink() == "" {
			f.logger.Warn("skipping feed item without GUID or link", "feed", feedURL, "title", entry.Title)
			continue
		}
		result.Items = append(result.Items, entry)
	}

	return result, nil
}
