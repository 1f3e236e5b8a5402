package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/docfold/docfold/core"
	"github.com/docfold/docfold/storage"
)

// FeedRepository implements storage.FeedRepository for BadgerDB.
type FeedRepository struct {
	backend *Backend
}

var _ storage.FeedRepository = (*FeedRepository)(nil)

// NewFeedRepository creates a new FeedRepository.
func NewFeedRepository(backend *Backend) *FeedRepository {
	return &FeedRepository{backend: backend}
}

// Close is a no-op; the shared backend owns the database handle.
func (r *FeedRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *FeedRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// UpsertSubscription stores or replaces a subscription keyed by feed URL.
func (r *FeedRepository) UpsertSubscription(ctx context.Context, sub *core.FeedSubscription) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		key := makeSubscriptionKey(sub.FeedURL)

		old, err := r.readSubscription(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			if sub.CreatedAt.IsZero() {
				sub.CreatedAt = now
			}
		} else {
			sub.CreatedAt = old.CreatedAt
		}
		sub.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalSubscription(sub)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetSubscription retrieves a subscription by feed URL.
func (r *FeedRepository) GetSubscription(ctx context.Context, feedURL string) (*core.FeedSubscription, error) {
	var result *core.FeedSubscription
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readSubscription(tx, makeSubscriptionKey(feedURL))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// DeleteSubscription removes a subscription by feed URL.
func (r *FeedRepository) DeleteSubscription(ctx context.Context, feedURL string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSubscriptionKey(feedURL)
		old, err := r.readSubscription(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListSubscriptions retrieves all subscriptions, ordered by feed URL.
func (r *FeedRepository) ListSubscriptions(ctx context.Context) ([]*core.FeedSubscription, error) {
	var results []*core.FeedSubscription
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(subscriptionPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var sub *core.FeedSubscription
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				sub, err = storage.UnmarshalSubscription(val)
				return err
			}); err != nil {
				return err
			}
			if sub != nil {
				results = append(results, sub)
			}
		}
		return nil
	}, false)
	return results, err
}

// MarkSeen records a feed item in the seen ledger.
func (r *FeedRepository) MarkSeen(ctx context.Context, feedURL string, id core.ItemID, seenAt time.Time) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(seenAt.UnixMicro()))
		if err := tx.Set(makeSeenKey(feedURL, id), val); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// IsSeen reports whether a feed item is in the seen ledger.
func (r *FeedRepository) IsSeen(ctx context.Context, feedURL string, id core.ItemID) (bool, error) {
	var seen bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeSeenKey(feedURL, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	}, false)
	return seen, err
}

// PurgeSeenBefore removes ledger entries seen before the cutoff.
func (r *FeedRepository) PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var purged int
	cutoffMicros := uint64(cutoff.UnixMicro())

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(seenPrefix + ":")
		iter := tx.NewIterator(opts)

		var stale [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var seenMicros uint64
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return storage.ErrTruncatedData
				}
				seenMicros = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				iter.Close()
				return err
			}
			if seenMicros < cutoffMicros {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		iter.Close()

		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		purged = len(stale)
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// AddPending stores a feed item awaiting approval.
func (r *FeedRepository) AddPending(ctx context.Context, item *core.PendingItem) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if item.CapturedAt.IsZero() {
			item.CapturedAt = time.Now().UTC()
		}
		if err := tx.Set(makePendingKey(item.ItemID), storage.MarshalPendingItem(item)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetPending retrieves a pending item by ID.
func (r *FeedRepository) GetPending(ctx context.Context, id core.ItemID) (*core.PendingItem, error) {
	var result *core.PendingItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePendingKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalPendingItem(val)
			return err
		})
	}, false)
	return result, err
}

// DeletePending removes a pending item by ID.
func (r *FeedRepository) DeletePending(ctx context.Context, id core.ItemID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makePendingKey(id)
		_, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListPending retrieves all pending items, oldest capture first.
func (r *FeedRepository) ListPending(ctx context.Context) ([]*core.PendingItem, error) {
	var results []*core.PendingItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var item *core.PendingItem
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalPendingItem(val)
				return err
			}); err != nil {
				return err
			}
			if item != nil {
				results = append(results, item)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.PendingItem) int {
		return a.CapturedAt.Compare(b.CapturedAt)
	})
	return results, nil
}

// readSubscription reads a subscription by key, returning nil when absent.
func (r *FeedRepository) readSubscription(tx *badger.Txn, key []byte) (*core.FeedSubscription, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sub *core.FeedSubscription
	err = item.Value(func(val []byte) error {
		var err error
		sub, err = storage.UnmarshalSubscription(val)
		return err
	})
	return sub, err
}
