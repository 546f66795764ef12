package extractor

import (
	"github.com/atracrawl/atra/internal/classifier"
)

// Policy governs when an extractor is run against a fetched resource,
// per spec.md §4.8's ordered (extractor_id, policy) dispatcher config.
type Policy int

const (
	// Always runs this extractor on every resource regardless of format.
	Always Policy = iota
	// IfSuitable runs this extractor only when the classified format is
	// one of its declared input formats.
	IfSuitable
	// Fallback runs only if no candidates have been produced yet by any
	// Always or IfSuitable extractor.
	Fallback
)

// LinkCandidate is a single outbound-link candidate surfaced by an
// extractor, carrying enough provenance for the caller to decide
// normalization, nofollow suppression, and budget admission.
type LinkCandidate struct {
	RawHref         string
	AnchorText      string
	Rel             []string
	SourceExtractor classifier.Format
	Nofollow        bool
}

// Entry is one (extractor, policy) pair in the dispatcher's configured
// ordered list.
type Entry struct {
	Extractor Extractor
	Policy    Policy
}

// Result is what Dispatch returns: the union of every candidate produced,
// plus non-fatal warnings surfaced along the way and whether the
// document declared itself nofollow document-wide (HTML's
// <meta name=robots content=nofollow>).
type Result struct {
	Candidates       []LinkCandidate
	Warnings         []string
	DocumentNofollow bool
}
