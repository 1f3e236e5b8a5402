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


package core

import (
	"fmt"
	"net/url"
)

// ValidateRawDocument validates a RawDocument according to domain rules.
//
// Validation rules:
//   - SourceURL must not be empty
//   - ContentType must be one of the known values
//
// NOT validated:
//   - Content (empty documents are legal; the pipeline yields nothing for them)
//   - Title/Summary/Tags/Metadata (all optional, tolerated by omission)
func ValidateRawDocument(d *RawDocument) error {
	if d == nil {
		return ErrInvalidDocument
	}
	if d.SourceURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySourceURL)
	}
	if !d.ContentType.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidContentType, d.ContentType)
	}
	return nil
}

// ValidateChunk validates a Chunk before storage.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return ErrInvalidChunk
	}
	if c.ChunkID == "" {
		return fmt.Errorf("%w: missing chunk id", ErrInvalidChunk)
	}
	if c.SourceURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptySourceURL)
	}
	if c.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkContent)
	}
	if c.ChunkIndex < 0 || c.TotalChunks < 1 || c.ChunkIndex >= c.TotalChunks {
		return fmt.Errorf("%w: chunk index %d out of range for total %d",
			ErrInvalidChunk, c.ChunkIndex, c.TotalChunks)
	}
	return nil
}

// ValidateSubscription validates a FeedSubscription.
func ValidateSubscription(s *FeedSubscription) error {
	if s == nil {
		return ErrInvalidFeedURL
	}
	u, err := url.Parse(s.FeedURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidFeedURL, s.FeedURL)
	}
	if s.Name == "" {
		return ErrEmptySubscriptionName
	}
	return nil
}
