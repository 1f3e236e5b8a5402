package search

import "github.com/docfold/docfold/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterSemanticSearch(chunkIDs []string)
	AfterTagSearch(tags []string, chunkIDs []string)
	SemanticAndTagHit(chunk *core.Chunk)
	SemanticHit(chunk *core.Chunk)
	TagHit(chunk *core.Chunk)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                          {}
func (n *noopMonitor) AfterSemanticSearch(_ []string)          {}
func (n *noopMonitor) AfterTagSearch(_ []string, _ []string)   {}
func (n *noopMonitor) SemanticAndTagHit(_ *core.Chunk)         {}
func (n *noopMonitor) SemanticHit(_ *core.Chunk)               {}
func (n *noopMonitor) TagHit(_ *core.Chunk)                    {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)           {}
