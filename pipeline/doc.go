// Package pipeline orchestrates document processing: enrichment,
// conversion to markdown, link extraction, summarization, chunking,
// embedding, optional categorization and storage.
//
// Processing is fail-fast. A StageError names the stage that broke the
// run; only conversion is forgiven, falling back to the raw content with a
// warning. What-if mode runs the pure stages and records every skipped
// side effect instead of performing it.
//
// Runs for the same source URL serialize on a keyed lock, and chunk
// replacement is a single storage transaction, so a reprocessed document
// is always observed either entirely old or entirely new.
package pipeline
