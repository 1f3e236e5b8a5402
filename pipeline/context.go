package pipeline

import (
	"github.com/docfold/docfold/core"
)

// ProcessOptions holds optional parameters for one Process call.
type ProcessOptions struct {
	// MaxChunkSize overrides the pipeline's chunk size budget.
	MaxChunkSize int

	// Tags are merged with the document's own tags and the enricher's.
	Tags []string

	// Metadata is merged over the document's source metadata.
	Metadata map[string]string

	// Categorize enables the LLM categorization stage.
	Categorize bool

	// WhatIf runs the pure stages but replaces every side effect (AI
	// calls included) with a recorded description of what would happen.
	WhatIf bool
}

// ProcessingContext accumulates state as a document moves through the
// pipeline stages. It doubles as the result returned to the caller.
type ProcessingContext struct {
	Raw     *core.RawDocument
	Options ProcessOptions

	// Markdown is the converted document body.
	Markdown string

	// Title is the best known document title after conversion.
	Title string

	// Summary is the document summary, provided or generated.
	Summary string

	// Links are the outbound links found in the markdown, rewritten to
	// fetchable form.
	Links []string

	// Chunks are the size-bounded fragments ready for storage.
	Chunks []*core.Chunk

	// Metadata is the merged source, enricher and host metadata.
	Metadata map[string]string

	// Tags is the merged tag set applied to every chunk.
	Tags []string

	// Warnings records recoverable problems (conversion fallback, empty
	// documents).
	Warnings []string

	// CompletedStages lists the stages that ran, in order.
	CompletedStages []string

	// Actions records the side effects what-if mode skipped.
	Actions []string
}

func (p *ProcessingContext) warn(msg string) {
	p.Warnings = append(p.Warnings, msg)
}

func (p *ProcessingContext) act(msg string) {
	p.Actions = append(p.Actions, msg)
}
