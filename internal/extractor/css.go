package extractor

import (
	"net/url"
	"regexp"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/pkg/failure"
)

// CssExtractor scans a stylesheet for url(...) references and @import
// statements. A regexp pass is sufficient here — CSS's url() grammar is
// simple enough that a full tokenizer buys nothing the corpus's own
// crawlers don't already skip (dankinder-walker/parse.go takes the same
// regexp-over-bytes approach for its meta-refresh scan).
type CssExtractor struct{}

func NewCssExtractor() *CssExtractor {
	return &CssExtractor{}
}

func (e *CssExtractor) InputFormats() []classifier.Format {
	return []classifier.Format{classifier.Css}
}

func (e *CssExtractor) Extract(base url.URL, body []byte) (Result, failure.ClassifiedError) {
	var result Result
	for _, m := range cssURLPattern.FindAllSubmatch(body, -1) {
		href := string(m[1])
		if href == "" {
			continue
		}
		result.Candidates = append(result.Candidates, LinkCandidate{
			RawHref:         href,
			SourceExtractor: classifier.Css,
		})
	}
	for _, m := range cssImportPattern.FindAllSubmatch(body, -1) {
		href := string(m[1])
		if href == "" {
			continue
		}
		result.Candidates = append(result.Candidates, LinkCandidate{
			RawHref:         href,
			SourceExtractor: classifier.Css,
		})
	}
	return result, nil
}

var (
	cssURLPattern    = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	cssImportPattern = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)
