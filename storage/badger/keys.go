package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/docfold/docfold/core"
)

// Key prefixes for different data types
const (
	chunkPrefix        = "chkrec"
	chunkSourcePrefix  = "chksrc"
	chunkTagPrefix     = "chktag"
	chunkDatePrefix    = "chkdat"
	summaryPrefix      = "sumrec"
	subscriptionPrefix = "subrec"
	seenPrefix         = "seenit"
	pendingPrefix      = "pndrec"
)

// keySep separates variable-length key components. Source URLs and tags may
// contain ':' so a NUL byte is used instead.
const keySep = 0x00

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(chunkID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", chunkPrefix, chunkID))
}

// makeChunkSourceKey generates a composite key for the source index.
// Format: prefix:sourceURL NUL index
// The index is BigEndian so iteration yields chunks in document order.
func makeChunkSourceKey(sourceURL string, index uint32) []byte {
	prefix := chunkSourcePrefix + ":"
	buf := make([]byte, len(prefix)+len(sourceURL)+1+4)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], sourceURL)
	buf[offset] = keySep
	offset++
	binary.BigEndian.PutUint32(buf[offset:], index)
	return buf
}

// makePartialChunkSourceKey generates the iteration prefix for one source.
func makePartialChunkSourceKey(sourceURL string) []byte {
	prefix := chunkSourcePrefix + ":"
	buf := make([]byte, len(prefix)+len(sourceURL)+1)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], sourceURL)
	buf[offset] = keySep
	return buf
}

// makeChunkTagKey generates a composite key for the tag index.
// Format: prefix:tag NUL chunkID
func makeChunkTagKey(tag, chunkID string) []byte {
	prefix := chunkTagPrefix + ":"
	buf := make([]byte, len(prefix)+len(tag)+1+len(chunkID))
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], tag)
	buf[offset] = keySep
	offset++
	copy(buf[offset:], chunkID)
	return buf
}

// makePartialChunkTagKey generates the iteration prefix for one tag.
func makePartialChunkTagKey(tag string) []byte {
	prefix := chunkTagPrefix + ":"
	buf := make([]byte, len(prefix)+len(tag)+1)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], tag)
	buf[offset] = keySep
	return buf
}

// makeChunkDateKey generates a composite key for the indexed-date index.
// Format: prefix:timestamp chunkID
// The timestamp is BigEndian so lexicographic order is chronological.
func makeChunkDateKey(timestamp time.Time, chunkID string) []byte {
	prefix := chunkDatePrefix + ":"
	buf := make([]byte, len(prefix)+8+len(chunkID))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	copy(buf[offset:], chunkID)
	return buf
}

// makeSummaryKey generates a key for a document summary by source URL.
func makeSummaryKey(sourceURL string) []byte {
	return []byte(fmt.Sprintf("%s:%s", summaryPrefix, sourceURL))
}

// makeSubscriptionKey generates a key for a subscription by feed URL.
func makeSubscriptionKey(feedURL string) []byte {
	return []byte(fmt.Sprintf("%s:%s", subscriptionPrefix, feedURL))
}

// makeSeenKey generates a composite key for the seen-item ledger.
// Format: prefix:feedURL NUL itemID
func makeSeenKey(feedURL string, id core.ItemID) []byte {
	prefix := seenPrefix + ":"
	buf := make([]byte, len(prefix)+len(feedURL)+1+8)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], feedURL)
	buf[offset] = keySep
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePendingKey generates a key for a pending item by ID.
func makePendingKey(id core.ItemID) []byte {
	prefix := pendingPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
