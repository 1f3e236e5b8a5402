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


// Package chunker splits markdown text into an ordered sequence of
// size-bounded, structurally valid fragments.
//
// The size bound is strict: no emitted chunk exceeds maxSize bytes, with one
// exception: a single whitespace-free token longer than maxSize becomes its
// own chunk. Structure is preserved where the bound allows it: tables are
// split by whole rows with the header and separator re-emitted atop every
// continuation chunk, fenced code blocks are closed at each chunk boundary
// and reopened (keeping the language tag) in the next, lists break at item
// boundaries, and paragraphs fall back to sentence and finally word splits.
// Each continuation chunk is seeded with the single most recently active
// markdown header so it carries minimal but sufficient context.
package chunker

import "strings"

// DefaultMaxSize is the chunk size budget used when the caller passes a
// non-positive maxSize.
const DefaultMaxSize = 2000

// Chunk splits markdown into fragments of at most maxSize bytes each.
// It is a pure function: no I/O, no shared state.
func Chunk(markdown string, maxSize int) []string {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	b := &builder{maxSize: maxSize}
	for _, blk := range parseBlocks(markdown) {
		switch blk.kind {
		case blockHeader:
			b.writeHeader(blk)
		case blockBlank:
			b.writeBlank()
		case blockCode:
			b.writeCode(blk)
		case blockTable:
			b.writeTable(blk)
		case blockList:
			b.writeList(blk)
		default:
			b.writeParagraph(strings.Join(blk.lines, "\n"))
		}
	}
	b.flush()
	return b.chunks
}

// Block classification

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeader
	blockBlank
	blockCode
	blockTable
	blockList
)

type block struct {
	kind      blockKind
	lines     []string
	depth     int    // header nesting depth
	fence     string // opening fence line, including any language tag
	headerRow string // table header row
	sepRow    string // table separator row
}

// parseBlocks scans the document top to bottom, classifying each contiguous
// run of lines as one block.
func parseBlocks(md string) []block {
	lines := strings.Split(md, "\n")
	var blocks []block
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blocks = append(blocks, block{kind: blockBlank})
			i++
		case isHeader(line):
			blocks = append(blocks, block{kind: blockHeader, lines: []string{line}, depth: headerDepth(line)})
			i++
		case isFence(trimmed):
			blk := block{kind: blockCode, fence: line}
			i++
			for i < len(lines) {
				if isFence(strings.TrimSpace(lines[i])) {
					i++
					break
				}
				blk.lines = append(blk.lines, lines[i])
				i++
			}
			blocks = append(blocks, blk)
		case isTableStart(lines, i):
			blk := block{kind: blockTable, headerRow: lines[i], sepRow: lines[i+1]}
			i += 2
			for i < len(lines) && isTableRow(lines[i]) {
				blk.lines = append(blk.lines, lines[i])
				i++
			}
			blocks = append(blocks, blk)
		case isListItem(line):
			blk := block{kind: blockList}
			for i < len(lines) {
				l := lines[i]
				if strings.TrimSpace(l) == "" {
					// a blank continues the list only when a further item follows
					if i+1 < len(lines) && (isListItem(lines[i+1]) || isIndented(lines[i+1])) {
						blk.lines = append(blk.lines, l)
						i++
						continue
					}
					break
				}
				if !isListItem(l) && !isIndented(l) {
					break
				}
				blk.lines = append(blk.lines, l)
				i++
			}
			blocks = append(blocks, blk)
		default:
			blk := block{kind: blockParagraph}
			for i < len(lines) {
				l := lines[i]
				t := strings.TrimSpace(l)
				if t == "" || isHeader(l) || isFence(t) || isListItem(l) || isTableStart(lines, i) {
					break
				}
				blk.lines = append(blk.lines, l)
				i++
			}
			blocks = append(blocks, blk)
		}
	}
	return blocks
}

func isHeader(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	n := len(line) - len(trimmed)
	return n >= 1 && n <= 6 && strings.HasPrefix(trimmed, " ")
}

func headerDepth(line string) int {
	return len(line) - len(strings.TrimLeft(line, "#"))
}

func isFence(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// closingFenceFor returns the fence that closes the given opening fence line.
func closingFenceFor(fence string) string {
	if strings.HasPrefix(strings.TrimSpace(fence), "~~~") {
		return "~~~"
	}
	return "```"
}

func isTableStart(lines []string, i int) bool {
	return strings.Contains(lines[i], "|") && i+1 < len(lines) && isTableSeparator(lines[i+1])
}

func isTableSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.Contains(trimmed, "-") {
		return false
	}
	for _, r := range trimmed {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func isTableRow(line string) bool {
	return strings.Contains(line, "|")
}

func isListItem(line string) bool {
	t := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ") {
		return true
	}
	// ordered item: digits followed by '.' or ')' and a space
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(t) {
		return false
	}
	return (t[i] == '.' || t[i] == ')') && t[i+1] == ' '
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// Chunk assembly

type headerEntry struct {
	depth int
	line  string
}

type builder struct {
	maxSize     int
	chunks      []string
	cur         strings.Builder
	contentLen  int  // bytes of non-header content in cur
	inlineOpen  bool // last append joined inline; next inline append uses a space
	headerStack []headerEntry
}

// fits reports whether s can be appended to the current chunk without
// exceeding the budget. The cost of the joining separator is included.
func (b *builder) fits(s string) bool {
	if b.cur.Len() == 0 {
		return len(s) <= b.maxSize
	}
	return b.cur.Len()+1+len(s) <= b.maxSize
}

// writeLine appends s on its own line. content marks it toward the
// non-header content the chunk needs to be emitted.
func (b *builder) writeLine(s string, content bool) {
	if b.cur.Len() > 0 {
		b.cur.WriteByte('\n')
	}
	b.cur.WriteString(s)
	b.inlineOpen = false
	if content && strings.TrimSpace(s) != "" {
		b.contentLen += len(s)
	}
}

// appendInline appends s joined by a space when continuing a split
// sentence, or by a newline when starting fresh text in the chunk.
func (b *builder) appendInline(s string) {
	if b.cur.Len() > 0 {
		if b.inlineOpen {
			b.cur.WriteByte(' ')
		} else {
			b.cur.WriteByte('\n')
		}
	}
	b.cur.WriteString(s)
	b.inlineOpen = true
	b.contentLen += len(s)
}

// flush emits the current chunk if it holds any real content. A chunk
// consisting solely of headers or whitespace is dropped, never emitted.
func (b *builder) flush() {
	if b.contentLen > 0 {
		s := strings.TrimRight(b.cur.String(), " \t\n")
		if s != "" {
			b.chunks = append(b.chunks, s)
		}
	}
	b.cur.Reset()
	b.contentLen = 0
	b.inlineOpen = false
}

// activeHeader returns the most recently active header line, or "".
func (b *builder) activeHeader() string {
	if len(b.headerStack) == 0 {
		return ""
	}
	return b.headerStack[len(b.headerStack)-1].line
}

// seedHeader writes the active header into an empty current chunk, giving a
// continuation chunk minimal context. Skipped when the header itself would
// blow the budget.
func (b *builder) seedHeader() {
	if b.cur.Len() > 0 {
		return
	}
	if h := b.activeHeader(); h != "" && len(h) <= b.maxSize {
		b.cur.WriteString(h)
		b.inlineOpen = false
	}
}

// startNew finalizes the current chunk and begins a new one seeded with the
// active header.
func (b *builder) startNew() {
	b.flush()
	b.seedHeader()
}

// dropSeed clears a seeded header that turned out to leave no room for
// content, so the header is dropped for this chunk instead of emitted alone.
func (b *builder) dropSeed() {
	if b.contentLen == 0 {
		b.cur.Reset()
		b.inlineOpen = false
	}
}

// freshCapacity is the room left in a brand-new chunk after header seeding.
func (b *builder) freshCapacity() int {
	h := b.activeHeader()
	if h == "" || len(h) > b.maxSize {
		return b.maxSize
	}
	return b.maxSize - len(h) - 1
}

func (b *builder) writeHeader(blk block) {
	// pop entries at equal-or-deeper depth before pushing the new header
	for len(b.headerStack) > 0 && b.headerStack[len(b.headerStack)-1].depth >= blk.depth {
		b.headerStack = b.headerStack[:len(b.headerStack)-1]
	}
	line := blk.lines[0]
	if len(line) > b.maxSize {
		// budget narrower than the header line itself; pack it like text
		b.headerStack = append(b.headerStack, headerEntry{depth: blk.depth, line: ""})
		b.writeSpan(line)
		return
	}
	if !b.fits(line) {
		b.flush()
	}
	b.writeLine(line, false)
	b.headerStack = append(b.headerStack, headerEntry{depth: blk.depth, line: line})
}

func (b *builder) writeBlank() {
	if b.cur.Len() == 0 {
		return
	}
	// appended opportunistically; dropped on overflow, never starts a chunk
	if b.cur.Len()+1 <= b.maxSize {
		b.cur.WriteByte('\n')
		b.inlineOpen = false
	}
}

func (b *builder) writeParagraph(text string) {
	if text == "" {
		return
	}
	if b.fits(text) {
		b.writeLine(text, true)
		return
	}
	if len(text) <= b.freshCapacity() {
		b.startNew()
		b.writeLine(text, true)
		return
	}
	for _, sentence := range splitSentences(text) {
		b.writeSpan(sentence)
	}
}

// writeSpan places a sentence-sized run of text, falling back to greedy
// word packing when even a fresh chunk cannot hold it whole.
func (b *builder) writeSpan(s string) {
	if b.fits(s) {
		b.appendInline(s)
		return
	}
	if len(s) <= b.freshCapacity() {
		b.startNew()
		b.appendInline(s)
		return
	}
	for _, w := range strings.Fields(s) {
		if b.fits(w) {
			b.appendInline(w)
			continue
		}
		if len(w) > b.maxSize {
			// the single-token exception: it alone may exceed the budget
			b.flush()
			b.chunks = append(b.chunks, w)
			continue
		}
		b.startNew()
		if !b.fits(w) {
			b.dropSeed()
		}
		b.appendInline(w)
	}
}

func (b *builder) writeCode(blk block) {
	closeFence := closingFenceFor(blk.fence)
	whole := blk.fence + "\n"
	if len(blk.lines) > 0 {
		whole += strings.Join(blk.lines, "\n") + "\n"
	}
	whole += closeFence

	// whole block in the current chunk, else in a dedicated one
	if b.fits(whole) {
		b.writeLine(whole, true)
		return
	}
	if len(whole) <= b.freshCapacity() {
		b.startNew()
		b.writeLine(whole, true)
		return
	}

	// split the body line by line; every chunk closes its fence, the next
	// reopens one with the original language tag
	first := 0
	if len(blk.lines) > 0 {
		first = len(blk.lines[0])
	}
	b.openFencedChunk(blk.fence, closeFence, first)
	for _, line := range blk.lines {
		if !b.fitsWithClose(line, closeFence) {
			if b.fenceRoomFresh(line, blk.fence, closeFence) || len(line) > b.maxSize {
				b.writeLine(closeFence, false)
				b.flush()
				b.openFencedChunk(blk.fence, closeFence, len(line))
			}
			if !b.fitsWithClose(line, closeFence) {
				// a code line wider than any fenced chunk: the bound wins
				b.writeCodeOverflow(line, blk.fence, closeFence)
				continue
			}
		}
		b.writeLine(line, true)
	}
	b.writeLine(closeFence, false)
}

// openFencedChunk starts a fresh chunk and writes the opening fence. The
// header seed is kept only when need bytes of upcoming body still fit
// alongside it and the closing fence. Fences never count as content, so a
// chunk holding nothing but scaffolding is dropped at the next flush.
func (b *builder) openFencedChunk(fence, closeFence string, need int) {
	b.flush()
	b.seedHeader()
	if b.cur.Len() > 0 && b.cur.Len()+1+len(fence)+1+need+1+len(closeFence) > b.maxSize {
		b.dropSeed()
	}
	b.writeLine(fence, false)
}

// fitsWithClose reports whether line fits in the current chunk while still
// leaving room for the closing fence.
func (b *builder) fitsWithClose(line, closeFence string) bool {
	return b.cur.Len()+1+len(line)+1+len(closeFence) <= b.maxSize
}

// fenceRoomFresh reports whether line would fit in a brand-new fenced chunk.
func (b *builder) fenceRoomFresh(line, fence, closeFence string) bool {
	return len(fence)+1+len(line)+1+len(closeFence) <= b.maxSize
}

// writeCodeOverflow hard-splits a code line that cannot fit in any fenced
// chunk, packing its words greedily while keeping every chunk fenced.
func (b *builder) writeCodeOverflow(line, fence, closeFence string) {
	for _, w := range strings.Fields(line) {
		if len(w)+1+len(fence)+1+len(closeFence) > b.maxSize {
			// unbreakable token: its own chunk
			b.writeLine(closeFence, false)
			b.flush()
			b.chunks = append(b.chunks, w)
			b.openFencedChunk(fence, closeFence, 0)
			continue
		}
		if b.cur.Len()+1+len(w)+1+len(closeFence) > b.maxSize {
			b.writeLine(closeFence, false)
			b.flush()
			b.openFencedChunk(fence, closeFence, len(w))
		}
		b.appendInline(w)
	}
	b.inlineOpen = false
}

func (b *builder) writeTable(blk block) {
	head := blk.headerRow + "\n" + blk.sepRow
	whole := head
	if len(blk.lines) > 0 {
		whole += "\n" + strings.Join(blk.lines, "\n")
	}

	if b.fits(whole) {
		b.writeLine(whole, true)
		return
	}
	if len(whole) <= b.freshCapacity() {
		b.startNew()
		b.writeLine(whole, true)
		return
	}

	// split by whole data rows; the header+separator pair is written once in
	// the chunk that starts the table and re-emitted atop every continuation
	b.startNew()
	b.openTableChunk(head)
	for _, row := range blk.lines {
		if !b.fits(row) {
			b.flush()
			b.openTableChunk(head)
		}
		if b.fits(row) {
			b.writeLine(row, true)
			continue
		}
		// a row wider than a fresh chunk: never split mid-row unless the
		// bound itself forces it
		b.flush()
		if len(row) <= b.maxSize {
			b.chunks = append(b.chunks, row)
		} else {
			b.writeSpan(row)
			b.flush()
		}
		b.openTableChunk(head)
	}
}

// openTableChunk seeds a fresh chunk and writes the table header+separator
// pair, dropping first the markdown header seed and then the table head if
// the budget cannot hold them.
func (b *builder) openTableChunk(head string) {
	if b.cur.Len() == 0 {
		b.seedHeader()
	}
	if !b.fits(head) {
		b.dropSeed()
	}
	if b.fits(head) {
		b.writeLine(head, false)
	}
}

func (b *builder) writeList(blk block) {
	whole := strings.Join(blk.lines, "\n")
	if b.fits(whole) {
		b.writeLine(whole, true)
		return
	}
	if len(whole) <= b.freshCapacity() {
		b.startNew()
		b.writeLine(whole, true)
		return
	}

	// overflow starts a new chunk at an item boundary
	for _, item := range listItems(blk.lines) {
		if b.fits(item) {
			b.writeLine(item, true)
			continue
		}
		b.startNew()
		if b.fits(item) {
			b.writeLine(item, true)
			continue
		}
		// a single item wider than a chunk: split its lines like text
		for _, line := range strings.Split(item, "\n") {
			if b.fits(line) {
				b.writeLine(line, true)
			} else {
				b.writeSpan(line)
			}
		}
	}
}

// listItems groups a list block's lines into items; continuation lines stay
// attached to the item they indent under.
func listItems(lines []string) []string {
	var items []string
	var cur []string
	for _, line := range lines {
		if isListItem(line) && len(cur) > 0 {
			items = append(items, strings.Join(cur, "\n"))
			cur = cur[:0]
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		items = append(items, strings.Join(cur, "\n"))
	}
	return items
}

// splitSentences splits text at terminal punctuation followed by a space or
// newline.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				if i+1 < len(runes) && runes[i+1] == ' ' {
					i++
				}
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
