package extractor

import (
	"net/url"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/pkg/failure"
)

// Extractor is a pure function from a fetched resource's bytes and base
// URL to the outbound links it declares, per spec.md §4.8. Extractors do
// not resolve hrefs against the base, dedupe, or apply robots/nofollow
// budget decisions — Dispatch's caller does that once over the union of
// every extractor's candidates.
type Extractor interface {
	// InputFormats declares which classifier.Format values this
	// extractor considers itself suitable for. Only consulted by
	// Dispatch for entries configured with the IfSuitable policy.
	InputFormats() []classifier.Format

	Extract(base url.URL, body []byte) (Result, failure.ClassifiedError)
}

// Dispatch runs entries in order: every Always extractor runs
// unconditionally; every IfSuitable extractor runs only when format is
// among its InputFormats(); Fallback extractors run only if the prior
// two tiers produced zero candidates between them. The returned Result
// is the union of every extractor that ran.
func Dispatch(entries []Entry, base url.URL, body []byte, format classifier.Format) (Result, []failure.ClassifiedError) {
	var union Result
	var errs []failure.ClassifiedError

	run := func(e Entry) {
		result, err := e.Extractor.Extract(base, body)
		if err != nil {
			errs = append(errs, err)
			return
		}
		union.Candidates = append(union.Candidates, result.Candidates...)
		union.Warnings = append(union.Warnings, result.Warnings...)
		union.DocumentNofollow = union.DocumentNofollow || result.DocumentNofollow
	}

	for _, e := range entries {
		if e.Policy != Always {
			continue
		}
		run(e)
	}

	for _, e := range entries {
		if e.Policy != IfSuitable {
			continue
		}
		if suitableFor(e.Extractor, format) {
			run(e)
		}
	}

	if len(union.Candidates) == 0 {
		for _, e := range entries {
			if e.Policy != Fallback {
				continue
			}
			run(e)
		}
	}

	return union, errs
}

func suitableFor(e Extractor, format classifier.Format) bool {
	for _, f := range e.InputFormats() {
		if f == format {
			return true
		}
	}
	return false
}
