package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/storage"
)

func TestSubscriptionLifecycle(t *testing.T) {
	_, feedRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	sub := &core.FeedSubscription{
		FeedURL: "https://example.com/feed.xml",
		Name:    "Example",
		Enabled: true,
	}

	if err := feedRepo.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("Failed to upsert subscription: %v", err)
	}
	if sub.CreatedAt.IsZero() || sub.UpdatedAt.IsZero() {
		t.Fatal("Expected timestamps to be set")
	}

	got, err := feedRepo.GetSubscription(ctx, sub.FeedURL)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if got.Name != "Example" {
		t.Fatalf("Expected name Example, got %s", got.Name)
	}

	// upsert preserves CreatedAt
	created := got.CreatedAt
	got.Name = "Renamed"
	if err := feedRepo.UpsertSubscription(ctx, got); err != nil {
		t.Fatalf("Failed to re-upsert: %v", err)
	}
	again, err := feedRepo.GetSubscription(ctx, sub.FeedURL)
	if err != nil {
		t.Fatalf("Failed to get subscription: %v", err)
	}
	if again.Name != "Renamed" {
		t.Fatalf("Expected renamed subscription, got %s", again.Name)
	}
	if !again.CreatedAt.Equal(created) {
		t.Fatalf("Expected CreatedAt preserved, got %v vs %v", again.CreatedAt, created)
	}

	subs, err := feedRepo.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("Failed to list subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("Expected 1 subscription, got %d", len(subs))
	}

	if err := feedRepo.DeleteSubscription(ctx, sub.FeedURL); err != nil {
		t.Fatalf("Failed to delete subscription: %v", err)
	}
	if err := feedRepo.DeleteSubscription(ctx, sub.FeedURL); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSeenLedger(t *testing.T) {
	_, feedRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	feedURL := "https://example.com/feed.xml"
	id := core.ItemIDFor(feedURL, "guid-1")

	seen, err := feedRepo.IsSeen(ctx, feedURL, id)
	if err != nil {
		t.Fatalf("Failed to check seen: %v", err)
	}
	if seen {
		t.Fatal("Expected item unseen")
	}

	if err := feedRepo.MarkSeen(ctx, feedURL, id, time.Now().UTC()); err != nil {
		t.Fatalf("Failed to mark seen: %v", err)
	}

	seen, err = feedRepo.IsSeen(ctx, feedURL, id)
	if err != nil {
		t.Fatalf("Failed to check seen: %v", err)
	}
	if !seen {
		t.Fatal("Expected item seen")
	}

	// same GUID under a different feed is a distinct ledger entry
	seen, err = feedRepo.IsSeen(ctx, "https://other.com/feed.xml", id)
	if err != nil {
		t.Fatalf("Failed to check seen: %v", err)
	}
	if seen {
		t.Fatal("Expected item unseen under other feed")
	}
}

func TestPurgeSeenBefore(t *testing.T) {
	_, feedRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	feedURL := "https://example.com/feed.xml"
	now := time.Now().UTC()

	oldID := core.ItemIDFor(feedURL, "old")
	newID := core.ItemIDFor(feedURL, "new")
	if err := feedRepo.MarkSeen(ctx, feedURL, oldID, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatalf("Failed to mark seen: %v", err)
	}
	if err := feedRepo.MarkSeen(ctx, feedURL, newID, now); err != nil {
		t.Fatalf("Failed to mark seen: %v", err)
	}

	purged, err := feedRepo.PurgeSeenBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("Expected 1 purged entry, got %d", purged)
	}

	seen, err := feedRepo.IsSeen(ctx, feedURL, oldID)
	if err != nil {
		t.Fatalf("Failed to check seen: %v", err)
	}
	if seen {
		t.Fatal("Expected old entry purged")
	}
	seen, err = feedRepo.IsSeen(ctx, feedURL, newID)
	if err != nil {
		t.Fatalf("Failed to check seen: %v", err)
	}
	if !seen {
		t.Fatal("Expected recent entry kept")
	}
}

func TestPendingQueue(t *testing.T) {
	_, feedRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	feedURL := "https://example.com/feed.xml"

	first := &core.PendingItem{
		ItemID:     core.ItemIDFor(feedURL, "one"),
		FeedURL:    feedURL,
		GUID:       "one",
		Title:      "First",
		CapturedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	second := &core.PendingItem{
		ItemID:     core.ItemIDFor(feedURL, "two"),
		FeedURL:    feedURL,
		GUID:       "two",
		Title:      "Second",
		CapturedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	if err := feedRepo.AddPending(ctx, second); err != nil {
		t.Fatalf("Failed to add pending: %v", err)
	}
	if err := feedRepo.AddPending(ctx, first); err != nil {
		t.Fatalf("Failed to add pending: %v", err)
	}

	got, err := feedRepo.GetPending(ctx, first.ItemID)
	if err != nil {
		t.Fatalf("Failed to get pending: %v", err)
	}
	if got.Title != "First" {
		t.Fatalf("Expected First, got %s", got.Title)
	}

	all, err := feedRepo.ListPending(ctx)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 pending items, got %d", len(all))
	}
	if all[0].Title != "First" {
		t.Fatalf("Expected oldest capture first, got %s", all[0].Title)
	}

	if err := feedRepo.DeletePending(ctx, first.ItemID); err != nil {
		t.Fatalf("Failed to delete pending: %v", err)
	}
	if _, err := feedRepo.GetPending(ctx, first.ItemID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if err := feedRepo.DeletePending(ctx, first.ItemID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAddPendingSetsCapturedAt(t *testing.T) {
	_, feedRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	item := &core.PendingItem{
		ItemID:  core.ItemIDFor("https://e.com/f", "g"),
		FeedURL: "https://e.com/f",
		GUID:    "g",
	}
	if err := feedRepo.AddPending(ctx, item); err != nil {
		t.Fatalf("Failed to add pending: %v", err)
	}
	got, err := feedRepo.GetPending(ctx, item.ItemID)
	if err != nil {
		t.Fatalf("Failed to get pending: %v", err)
	}
	if got.CapturedAt.IsZero() {
		t.Fatal("Expected CapturedAt to be set")
	}
}
