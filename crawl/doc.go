// Package crawl implements the feed crawl and approval workflow.
//
// A Crawler owns the subscription list and, on each poll, walks a feed's
// entries and drops every one it has already handled. New entries either go
// straight through the pipeline (auto-ingest) or into a pending queue for a
// human to approve or reject.
//
// Each entry's lifecycle is driven by the seen ledger: an entry is marked
// seen when it has been ingested or rejected, and never before, so a failed
// ingestion is retried on the next poll. Approve and Reject both delete the
// pending record after writing the ledger entry, making them idempotent:
// a second disposition of the same item reports not found.
//
// Polling across subscriptions runs on a worker pool; a single subscription
// is always polled sequentially.
package crawl
