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


package storage

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/docfold/docfold/core"
)

// MUS-format serialization for the stored record types. Composite fields
// (slices, maps, timestamps, float vectors) are encoded with explicit
// length prefixes on top of the varint and ord primitives.

// MarshalItemID serializes an ItemID to bytes.
func MarshalItemID(id core.ItemID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalItemID deserializes an ItemID from bytes.
func UnmarshalItemID(data []byte) (core.ItemID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ItemID(v), err
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, sizeChunk(chunk))
	marshalChunk(chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := unmarshalChunk(data)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// MarshalSummary serializes a DocumentSummary to bytes.
func MarshalSummary(summary *core.DocumentSummary) []byte {
	buf := make([]byte, sizeSummary(summary))
	marshalSummary(summary, buf)
	return buf
}

// UnmarshalSummary deserializes a DocumentSummary from bytes.
func UnmarshalSummary(data []byte) (*core.DocumentSummary, error) {
	summary, _, err := unmarshalSummary(data)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// MarshalSubscription serializes a FeedSubscription to bytes.
func MarshalSubscription(sub *core.FeedSubscription) []byte {
	buf := make([]byte, sizeSubscription(sub))
	marshalSubscription(sub, buf)
	return buf
}

// UnmarshalSubscription deserializes a FeedSubscription from bytes.
func UnmarshalSubscription(data []byte) (*core.FeedSubscription, error) {
	sub, _, err := unmarshalSubscription(data)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// MarshalPendingItem serializes a PendingItem to bytes.
func MarshalPendingItem(item *core.PendingItem) []byte {
	buf := make([]byte, sizePendingItem(item))
	marshalPendingItem(item, buf)
	return buf
}

// UnmarshalPendingItem deserializes a PendingItem from bytes.
func UnmarshalPendingItem(data []byte) (*core.PendingItem, error) {
	item, _, err := unmarshalPendingItem(data)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Chunk

func sizeChunk(c *core.Chunk) int {
	n := ord.String.Size(c.ChunkID)
	n += ord.String.Size(c.Title)
	n += ord.String.Size(c.SourceURL)
	n += ord.String.Size(c.Content)
	n += sizeVector(c.Embedding)
	n += varint.Int.Size(c.ChunkIndex)
	n += varint.Int.Size(c.TotalChunks)
	n += varint.Int.Size(c.ChunkSize)
	n += sizeStringMap(c.Metadata)
	n += sizeStringSlice(c.Tags)
	n += sizeTime(c.CreatedDate)
	n += sizeTime(c.IndexedDate)
	return n
}

func marshalChunk(c *core.Chunk, bs []byte) int {
	n := ord.String.Marshal(c.ChunkID, bs)
	n += ord.String.Marshal(c.Title, bs[n:])
	n += ord.String.Marshal(c.SourceURL, bs[n:])
	n += ord.String.Marshal(c.Content, bs[n:])
	n += marshalVector(c.Embedding, bs[n:])
	n += varint.Int.Marshal(c.ChunkIndex, bs[n:])
	n += varint.Int.Marshal(c.TotalChunks, bs[n:])
	n += varint.Int.Marshal(c.ChunkSize, bs[n:])
	n += marshalStringMap(c.Metadata, bs[n:])
	n += marshalStringSlice(c.Tags, bs[n:])
	n += marshalTime(c.CreatedDate, bs[n:])
	n += marshalTime(c.IndexedDate, bs[n:])
	return n
}

func unmarshalChunk(bs []byte) (*core.Chunk, int, error) {
	var c core.Chunk
	var n int
	var err error
	if c.ChunkID, n, err = ord.String.Unmarshal(bs); err != nil {
		return nil, n, err
	}
	var n1 int
	if c.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.SourceURL, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.Embedding, n1, err = unmarshalVector(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.TotalChunks, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.ChunkSize, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.Metadata, n1, err = unmarshalStringMap(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.Tags, n1, err = unmarshalStringSlice(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.CreatedDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if c.IndexedDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	return &c, n, nil
}

// DocumentSummary

func sizeSummary(s *core.DocumentSummary) int {
	n := ord.String.Size(s.SourceURL)
	n += ord.String.Size(s.Title)
	n += ord.String.Size(s.Summary)
	n += sizeStringSlice(s.Tags)
	n += sizeTime(s.PublishedDate)
	n += sizeTime(s.IndexedDate)
	return n
}

func marshalSummary(s *core.DocumentSummary, bs []byte) int {
	n := ord.String.Marshal(s.SourceURL, bs)
	n += ord.String.Marshal(s.Title, bs[n:])
	n += ord.String.Marshal(s.Summary, bs[n:])
	n += marshalStringSlice(s.Tags, bs[n:])
	n += marshalTime(s.PublishedDate, bs[n:])
	n += marshalTime(s.IndexedDate, bs[n:])
	return n
}

func unmarshalSummary(bs []byte) (*core.DocumentSummary, int, error) {
	var s core.DocumentSummary
	var n, n1 int
	var err error
	if s.SourceURL, n, err = ord.String.Unmarshal(bs); err != nil {
		return nil, n, err
	}
	if s.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.Summary, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.Tags, n1, err = unmarshalStringSlice(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.PublishedDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.IndexedDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	return &s, n, nil
}

// FeedSubscription

func sizeSubscription(s *core.FeedSubscription) int {
	n := ord.String.Size(s.FeedURL)
	n += ord.String.Size(s.Name)
	n += ord.String.Size(s.Description)
	n += sizeStringSlice(s.Tags)
	n += ord.Bool.Size(s.Enabled)
	n += sizeTime(s.LastChecked)
	n += sizeTime(s.LastItemDate)
	n += sizeTime(s.CreatedAt)
	n += sizeTime(s.UpdatedAt)
	return n
}

func marshalSubscription(s *core.FeedSubscription, bs []byte) int {
	n := ord.String.Marshal(s.FeedURL, bs)
	n += ord.String.Marshal(s.Name, bs[n:])
	n += ord.String.Marshal(s.Description, bs[n:])
	n += marshalStringSlice(s.Tags, bs[n:])
	n += ord.Bool.Marshal(s.Enabled, bs[n:])
	n += marshalTime(s.LastChecked, bs[n:])
	n += marshalTime(s.LastItemDate, bs[n:])
	n += marshalTime(s.CreatedAt, bs[n:])
	n += marshalTime(s.UpdatedAt, bs[n:])
	return n
}

func unmarshalSubscription(bs []byte) (*core.FeedSubscription, int, error) {
	var s core.FeedSubscription
	var n, n1 int
	var err error
	if s.FeedURL, n, err = ord.String.Unmarshal(bs); err != nil {
		return nil, n, err
	}
	if s.Name, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.Description, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.Tags, n1, err = unmarshalStringSlice(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.Enabled, n1, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.LastChecked, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.LastItemDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.CreatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if s.UpdatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	return &s, n, nil
}

// PendingItem

func sizePendingItem(p *core.PendingItem) int {
	n := varint.Uint64.Size(uint64(p.ItemID))
	n += ord.String.Size(p.FeedURL)
	n += ord.String.Size(p.GUID)
	n += ord.String.Size(p.Link)
	n += ord.String.Size(p.Title)
	n += ord.String.Size(p.Content)
	n += ord.String.Size(p.Summary)
	n += ord.String.Size(p.Author)
	n += sizeStringSlice(p.Categories)
	n += sizeTime(p.PublishedDate)
	n += sizeTime(p.CapturedAt)
	return n
}

func marshalPendingItem(p *core.PendingItem, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(p.ItemID), bs)
	n += ord.String.Marshal(p.FeedURL, bs[n:])
	n += ord.String.Marshal(p.GUID, bs[n:])
	n += ord.String.Marshal(p.Link, bs[n:])
	n += ord.String.Marshal(p.Title, bs[n:])
	n += ord.String.Marshal(p.Content, bs[n:])
	n += ord.String.Marshal(p.Summary, bs[n:])
	n += ord.String.Marshal(p.Author, bs[n:])
	n += marshalStringSlice(p.Categories, bs[n:])
	n += marshalTime(p.PublishedDate, bs[n:])
	n += marshalTime(p.CapturedAt, bs[n:])
	return n
}

func unmarshalPendingItem(bs []byte) (*core.PendingItem, int, error) {
	var p core.PendingItem
	var n, n1 int
	var err error
	var raw uint64
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return nil, n, err
	}
	p.ItemID = core.ItemID(raw)
	if p.FeedURL, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.GUID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Link, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Content, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Summary, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Author, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.Categories, n1, err = unmarshalStringSlice(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.PublishedDate, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	if p.CapturedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return nil, n + n1, err
	}
	n += n1
	return &p, n, nil
}

// Composite helpers

func sizeVector(v []float32) int {
	n := varint.Int.Size(len(v))
	for _, f := range v {
		n += varint.Uint32.Size(math.Float32bits(f))
	}
	return n
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	v := make([]float32, length)
	for i := 0; i < length; i++ {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		n += n1
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func sizeStringSlice(ss []string) int {
	n := varint.Int.Size(len(ss))
	for _, s := range ss {
		n += ord.String.Size(s)
	}
	return n
}

func marshalStringSlice(ss []string, bs []byte) int {
	n := varint.Int.Marshal(len(ss), bs)
	for _, s := range ss {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalStringSlice(bs []byte) ([]string, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	ss := make([]string, length)
	for i := 0; i < length; i++ {
		s, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		n += n1
		ss[i] = s
	}
	return ss, n, nil
}

func sizeStringMap(m map[string]string) int {
	n := varint.Int.Size(len(m))
	for k, v := range m {
		n += ord.String.Size(k)
		n += ord.String.Size(v)
	}
	return n
}

func marshalStringMap(m map[string]string, bs []byte) int {
	n := varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalStringMap(bs []byte) (map[string]string, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrTruncatedData
	}
	if length == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, length)
	for i := 0; i < length; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		n += n1
		v, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		n += n1
		m[k] = v
	}
	return m, n, nil
}

// Timestamps are stored as a presence flag plus microseconds since the Unix
// epoch; the zero time round-trips exactly.

func sizeTime(t time.Time) int {
	if t.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(t.UnixMicro())
}

func marshalTime(t time.Time, bs []byte) int {
	if t.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n := ord.Bool.Marshal(true, bs)
	n += varint.Int64.Marshal(t.UnixMicro(), bs[n:])
	return n
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	if !present {
		return time.Time{}, n, nil
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return time.Time{}, n + n1, err
	}
	return time.UnixMicro(micros).UTC(), n + n1, nil
}
