// Package enrich tags raw documents with origin metadata before they enter
// the processing pipeline. Dispatch is first-match-wins over an ordered
// enricher list, ending in a fallback that matches everything.
package enrich
