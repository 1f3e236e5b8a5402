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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/docfold/docfold"
	"github.com/docfold/docfold/ai"
	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/crawl"
	"github.com/docfold/docfold/fetch"
	"github.com/docfold/docfold/pipeline"
	"github.com/docfold/docfold/reembed"
)

func main() {
	app := &cli.App{
		Name:  "docfold",
		Usage: "Content ingestion pipeline and knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to BadgerDB database directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Describe every side-effecting step instead of performing it",
			},
			&cli.StringFlag{
				Name:  "ai-host",
				Usage: "Base URL of the OpenAI-compatible AI service",
				Value: "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: "embeddinggemma",
			},
			&cli.StringFlag{
				Name:  "completion-model",
				Usage: "Completion model name for summarization and categorization",
				Value: "qwen2.5:3b",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Fetch a URL and process it into the knowledge base",
				ArgsUsage: "<url>",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "Tag to attach to the document (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "meta",
						Usage: "Metadata key=value to attach (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "categorize",
						Usage: "Derive additional tags with the completion model",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum chunk size in bytes",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a document's chunks and summary",
				ArgsUsage: "<url>",
				Action:    deleteCommand,
			},
			{
				Name:      "search",
				Usage:     "Search stored chunks",
				ArgsUsage: "[query]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "tag",
						Aliases: []string{"t"},
						Usage:   "List chunks carrying this tag instead of searching",
					},
					&cli.BoolFlag{
						Name:  "recent",
						Usage: "List the most recently indexed chunks",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show corpus statistics",
				Action: statsCommand,
			},
			{
				Name:  "feeds",
				Usage: "Manage feed subscriptions",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Subscribe to a feed",
						ArgsUsage: "<feed-url>",
						Action:    feedsAddCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "name",
								Usage: "Subscription name (defaults to the feed title)",
							},
							&cli.StringSliceFlag{
								Name:    "tag",
								Aliases: []string{"t"},
								Usage:   "Tag applied to every item from this feed (repeatable)",
							},
							&cli.BoolFlag{
								Name:  "disabled",
								Usage: "Add the subscription without enabling polling",
							},
						},
					},
					{
						Name:      "remove",
						Usage:     "Remove a subscription (the seen ledger is kept)",
						ArgsUsage: "<feed-url>",
						Action:    feedsRemoveCommand,
					},
					{
						Name:   "list",
						Usage:  "List subscriptions",
						Action: feedsListCommand,
					},
				},
			},
			{
				Name:      "poll",
				Usage:     "Poll one subscription, or all of them",
				ArgsUsage: "[feed-url]",
				Action:    pollCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "auto",
						Usage: "Ingest new items immediately instead of queueing them",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Keep polling at this interval until interrupted",
					},
				},
			},
			{
				Name:  "pending",
				Usage: "Manage items awaiting approval",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List pending items",
						Action: pendingListCommand,
					},
					{
						Name:      "approve",
						Usage:     "Approve pending items by id",
						ArgsUsage: "<item-id>...",
						Action:    pendingApproveCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "all",
								Usage: "Approve every pending item",
							},
						},
					},
					{
						Name:      "reject",
						Usage:     "Reject pending items by id",
						ArgsUsage: "<item-id>...",
						Action:    pendingRejectCommand,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all stored chunks with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "purge",
				Usage:  "Remove old seen-ledger entries",
				Action: purgeCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Retention window; entries seen before it are removed",
						Value: crawl.DefaultRetention,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDatabase(c *cli.Context) (*docfold.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithCompletionModel(c.String("completion-model")),
	)
	return docfold.NewDatabase(c.String("db"), docfold.WithAIConfig(aiConfig))
}

func addCommand(c *cli.Context) error {
	pageURL := c.Args().First()
	if pageURL == "" {
		return fmt.Errorf("usage: docfold add <url>")
	}

	metadata, err := parseMetaFlags(c.StringSlice("meta"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipe, err := db.NewPipeline()
	if err != nil {
		return err
	}

	fetcher, err := fetch.NewWebFetcher()
	if err != nil {
		return err
	}

	ctx := context.Background()
	raw := fetcher.Fetch(ctx, pageURL)

	pctx, err := pipe.Process(ctx, raw, &pipeline.ProcessOptions{
		MaxChunkSize: c.Int("chunk-size"),
		Tags:         c.StringSlice("tag"),
		Metadata:     metadata,
		Categorize:   c.Bool("categorize"),
		WhatIf:       c.Bool("dry-run"),
	})
	if err != nil {
		return err
	}

	for _, warning := range pctx.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if c.Bool("dry-run") {
		for _, action := range pctx.Actions {
			fmt.Printf("would: %s\n", action)
		}
		return nil
	}

	fmt.Printf("Processed %s: %d chunks, tags [%s]\n",
		raw.SourceURL, len(pctx.Chunks), strings.Join(pctx.Tags, ", "))
	return nil
}

func deleteCommand(c *cli.Context) error {
	sourceURL := c.Args().First()
	if sourceURL == "" {
		return fmt.Errorf("usage: docfold delete <url>")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		chunks, err := db.DocumentRepository().GetChunksBySource(context.Background(), sourceURL)
		if err != nil {
			return err
		}
		fmt.Printf("would delete %d chunks and the summary for %s\n", len(chunks), sourceURL)
		return nil
	}

	pipe, err := db.NewPipeline()
	if err != nil {
		return err
	}
	deleted, err := pipe.Delete(context.Background(), sourceURL)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d chunks for %s\n", deleted, sourceURL)
	return nil
}

func searchCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}

	ctx := context.Background()
	limit := c.Int("limit")

	switch {
	case c.Bool("recent"):
		chunks, err := searcher.Recent(ctx, limit)
		if err != nil {
			return err
		}
		printChunks(chunks)
	case c.String("tag") != "":
		chunks, err := searcher.ByTag(ctx, c.String("tag"), limit)
		if err != nil {
			return err
		}
		printChunks(chunks)
	default:
		query := strings.Join(c.Args().Slice(), " ")
		if query == "" {
			return fmt.Errorf("usage: docfold search <query> (or --tag / --recent)")
		}
		results, err := searcher.FindSimilar(ctx, query, limit)
		if err != nil {
			return err
		}
		for _, result := range results {
			fmt.Printf("%.3f  %s [%d/%d]\n", result.Score,
				result.Chunk.SourceURL, result.Chunk.ChunkIndex+1, result.Chunk.TotalChunks)
			fmt.Printf("       %s\n", firstLine(result.Chunk.Content))
		}
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}

	stats, err := searcher.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Chunks:        %d\n", stats.Chunks)
	fmt.Printf("Documents:     %d\n", stats.Documents)
	fmt.Printf("Summaries:     %d\n", stats.Summaries)
	fmt.Printf("Subscriptions: %d\n", stats.Subscriptions)
	fmt.Printf("Pending:       %d\n", stats.Pending)

	if len(stats.Tags) > 0 {
		tags := make([]string, 0, len(stats.Tags))
		for tag := range stats.Tags {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		fmt.Println("Tags:")
		for _, tag := range tags {
			fmt.Printf("  %-24s %d\n", tag, stats.Tags[tag])
		}
	}
	return nil
}

func feedsAddCommand(c *cli.Context) error {
	feedURL := c.Args().First()
	if feedURL == "" {
		return fmt.Errorf("usage: docfold feeds add <feed-url>")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		fmt.Printf("would subscribe to %s\n", feedURL)
		return nil
	}

	crawler, err := db.NewCrawler(nil)
	if err != nil {
		return err
	}
	defer crawler.Release()

	sub := &core.FeedSubscription{
		FeedURL: feedURL,
		Name:    c.String("name"),
		Tags:    c.StringSlice("tag"),
		Enabled: !c.Bool("disabled"),
	}
	if err := crawler.AddSubscription(context.Background(), sub); err != nil {
		return err
	}
	fmt.Printf("Subscribed to %s (%s)\n", sub.FeedURL, sub.Name)
	return nil
}

func feedsRemoveCommand(c *cli.Context) error {
	feedURL := c.Args().First()
	if feedURL == "" {
		return fmt.Errorf("usage: docfold feeds remove <feed-url>")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		fmt.Printf("would remove subscription %s\n", feedURL)
		return nil
	}

	if err := db.FeedRepository().DeleteSubscription(context.Background(), feedURL); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", feedURL)
	return nil
}

func feedsListCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	subs, err := db.FeedRepository().ListSubscriptions(context.Background())
	if err != nil {
		return err
	}
	for _, sub := range subs {
		state := "enabled"
		if !sub.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s  %s (%s)", sub.FeedURL, sub.Name, state)
		if !sub.LastChecked.IsZero() {
			fmt.Printf("  last checked %s", sub.LastChecked.Format(time.RFC3339))
		}
		fmt.Println()
	}
	return nil
}

func pollCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	crawler, err := db.NewCrawler(nil)
	if err != nil {
		return err
	}
	defer crawler.Release()

	opts := &crawl.PollOptions{
		AutoIngest: c.Bool("auto"),
		DryRun:     c.Bool("dry-run"),
	}
	feedURL := c.Args().First()

	runOnce := func(ctx context.Context) error {
		if feedURL != "" {
			result, err := crawler.PollFeed(ctx, feedURL, opts)
			if err != nil {
				return err
			}
			printPollResult(result)
			return nil
		}
		results, err := crawler.PollAll(ctx, opts)
		if err != nil {
			return err
		}
		for _, result := range results {
			printPollResult(result)
		}
		return nil
	}

	interval := c.Duration("interval")
	if interval <= 0 {
		return runOnce(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "poll error: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func pendingListCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	items, err := db.FeedRepository().ListPending(context.Background())
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%s  %s\n", item.ItemID, item.Title)
		fmt.Printf("%*s  %s (captured %s)\n", len(item.ItemID.String()), "",
			item.Link, item.CapturedAt.Format(time.RFC3339))
	}
	if len(items) == 0 {
		fmt.Println("No pending items.")
	}
	return nil
}

func pendingApproveCommand(c *cli.Context) error {
	if !c.Bool("all") && c.Args().Len() == 0 {
		return fmt.Errorf("usage: docfold pending approve <item-id>... (or --all)")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		items, err := db.FeedRepository().ListPending(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("would approve %d pending item(s)\n", len(items))
		return nil
	}

	crawler, err := db.NewCrawler(nil)
	if err != nil {
		return err
	}
	defer crawler.Release()
	ctx := context.Background()

	if c.Bool("all") {
		result, err := crawler.ApproveAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Approved %d, failed %d\n", result.Succeeded, result.Failed)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		return nil
	}

	for _, arg := range c.Args().Slice() {
		itemID, err := core.ParseItemID(arg)
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", arg, err)
		}
		if err := crawler.Approve(ctx, itemID); err != nil {
			return fmt.Errorf("approving %s: %w", arg, err)
		}
		fmt.Printf("Approved %s\n", arg)
	}
	return nil
}

func pendingRejectCommand(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("usage: docfold pending reject <item-id>...")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		fmt.Printf("would reject %d item(s)\n", c.Args().Len())
		return nil
	}

	crawler, err := db.NewCrawler(nil)
	if err != nil {
		return err
	}
	defer crawler.Release()
	ctx := context.Background()

	for _, arg := range c.Args().Slice() {
		itemID, err := core.ParseItemID(arg)
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", arg, err)
		}
		if err := crawler.Reject(ctx, itemID); err != nil {
			return fmt.Errorf("rejecting %s: %w", arg, err)
		}
		fmt.Printf("Rejected %s\n", arg)
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Bool("dry-run") {
		ids, err := db.DocumentRepository().ListChunkIDs(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("would reembed %d chunks with %s\n", len(ids), c.String("embedding-model"))
		return nil
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("ai-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	if err := db.NewReembedder(config, os.Stderr).Run(context.Background()); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func purgeCommand(c *cli.Context) error {
	retention := c.Duration("older-than")
	if retention <= 0 {
		return fmt.Errorf("older-than must be a positive duration")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cutoff := time.Now().UTC().Add(-retention)
	if c.Bool("dry-run") {
		fmt.Printf("would purge seen-ledger entries older than %s (before %s)\n",
			retention, cutoff.Format(time.RFC3339))
		return nil
	}

	purged, err := db.FeedRepository().PurgeSeenBefore(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d ledger entries older than %s\n", purged, retention)
	return nil
}

func printPollResult(result *crawl.PollResult) {
	fmt.Printf("%s: %d items, %d new, %d queued, %d ingested, %d failed\n",
		result.FeedURL, result.Items, result.New, result.Queued, result.Ingested, result.Failed)
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
}

func printChunks(chunks []*core.Chunk) {
	for _, chunk := range chunks {
		fmt.Printf("%s [%d/%d] %s\n", chunk.SourceURL,
			chunk.ChunkIndex+1, chunk.TotalChunks, strings.Join(chunk.Tags, ","))
		fmt.Printf("  %s\n", firstLine(chunk.Content))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}

func parseMetaFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q: expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
