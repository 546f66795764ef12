package extractor

import (
	"net/url"
	"regexp"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/pkg/failure"
)

// RawLinkExtractor does a last-resort byte scan for embedded http(s)://
// sequences. It is intentionally shallow: no OOXML part parsing, no ODF
// manifest walking, no RTF field-code interpretation, no PDF object
// parsing, no EXIF tag decoding. Those each have a real container format
// the crawler has no corpus-grounded library for, so rather than invent
// an ungrounded parser this extractor only ever runs with Fallback
// policy, after every format-aware extractor has had its turn.
type RawLinkExtractor struct{}

func NewRawLinkExtractor() *RawLinkExtractor {
	return &RawLinkExtractor{}
}

func (e *RawLinkExtractor) InputFormats() []classifier.Format {
	return []classifier.Format{
		classifier.Ooxml,
		classifier.Odf,
		classifier.Rtf,
		classifier.Pdf,
		classifier.Exif,
		classifier.Raw,
	}
}

func (e *RawLinkExtractor) Extract(base url.URL, body []byte) (Result, failure.ClassifiedError) {
	var result Result
	seen := make(map[string]bool)
	for _, m := range rawURLPattern.FindAll(body, -1) {
		href := string(m)
		if seen[href] {
			continue
		}
		seen[href] = true
		result.Candidates = append(result.Candidates, LinkCandidate{
			RawHref:         href,
			SourceExtractor: classifier.Raw,
		})
	}
	return result, nil
}

var rawURLPattern = regexp.MustCompile(`https?://[^\s'"<>\\]+`)
