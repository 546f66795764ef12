package worker

import (
	"github.com/atracrawl/atra/internal/extractor"
	"github.com/atracrawl/atra/internal/metadata"
)

// DefaultExtractorEntries wires the ordered (extractor, policy) list
// spec.md §4.8 dispatches over: HTML/CSS/JS/XML run IfSuitable for the
// formats they declare, and the shallow byte-scanning fallback runs only
// when nothing upstream produced a candidate.
func DefaultExtractorEntries(metadataSink metadata.MetadataSink, htmlOpts extractor.HtmlOptions) []extractor.Entry {
	return []extractor.Entry{
		{Extractor: extractor.NewHtmlExtractor(metadataSink, htmlOpts), Policy: extractor.IfSuitable},
		{Extractor: extractor.NewCssExtractor(), Policy: extractor.IfSuitable},
		{Extractor: extractor.NewJsExtractor(), Policy: extractor.IfSuitable},
		{Extractor: extractor.NewXmlExtractor(), Policy: extractor.IfSuitable},
		{Extractor: extractor.NewRawLinkExtractor(), Policy: extractor.Fallback},
	}
}
