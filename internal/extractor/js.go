package extractor

import (
	"net/url"
	"regexp"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/pkg/failure"
)

// JsExtractor scans JavaScript source text for string literals that look
// like absolute URLs and for the import/require module-resolution forms.
// This is deliberately shallow: a real JS parser/AST walk is out of scope
// for a link-extraction dispatcher (spec.md §4.8 Non-goals) — the goal is
// to recover static, literal URLs, not evaluate dynamically constructed
// ones.
type JsExtractor struct{}

func NewJsExtractor() *JsExtractor {
	return &JsExtractor{}
}

func (e *JsExtractor) InputFormats() []classifier.Format {
	return []classifier.Format{classifier.Js}
}

func (e *JsExtractor) Extract(base url.URL, body []byte) (Result, failure.ClassifiedError) {
	var result Result
	seen := make(map[string]bool)

	add := func(href string) {
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		result.Candidates = append(result.Candidates, LinkCandidate{
			RawHref:         href,
			SourceExtractor: classifier.Js,
		})
	}

	for _, m := range jsAbsoluteURLPattern.FindAllSubmatch(body, -1) {
		add(string(m[1]))
	}
	for _, m := range jsImportPattern.FindAllSubmatch(body, -1) {
		add(string(m[1]))
	}

	return result, nil
}

var (
	jsAbsoluteURLPattern = regexp.MustCompile(`['"](https?://[^\s'"]+)['"]`)
	jsImportPattern      = regexp.MustCompile(`(?:import\s+(?:[^'";]+\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)
)
