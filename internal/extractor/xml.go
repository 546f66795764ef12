package extractor

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"strings"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/pkg/failure"
)

// XmlExtractor walks a generic XML or SVG document token by token looking
// for attributes that carry a URL: href, xlink:href (SVG's <a>/<image>/
// <use> linking attribute), and src. encoding/xml's streaming decoder is
// used rather than golang.org/x/net/html's tree parser since XML/SVG
// don't need HTML's error-tolerant tag-soup recovery.
type XmlExtractor struct{}

func NewXmlExtractor() *XmlExtractor {
	return &XmlExtractor{}
}

func (e *XmlExtractor) InputFormats() []classifier.Format {
	return []classifier.Format{classifier.Xml, classifier.Svg}
}

func (e *XmlExtractor) Extract(base url.URL, body []byte) (Result, failure.ClassifiedError) {
	var result Result
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed XML isn't fatal to link extraction: surface what
			// was recovered up to the parse failure as a warning.
			result.Warnings = append(result.Warnings, "xml decode stopped early: "+err.Error())
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			name := attr.Name.Local
			switch attr.Name.Space {
			case "":
			case "xlink", xlinkNamespace:
				// The decoder reports a declared prefix as its namespace URL.
				name = "xlink:" + name
			default:
				name = attr.Name.Space + ":" + name
			}
			if !isLinkAttr(name) {
				continue
			}
			href := strings.TrimSpace(attr.Value)
			if href == "" {
				continue
			}
			result.Candidates = append(result.Candidates, LinkCandidate{
				RawHref:         href,
				SourceExtractor: classifier.Xml,
			})
		}
	}

	return result, nil
}

const xlinkNamespace = "http://www.w3.org/1999/xlink"

func isLinkAttr(name string) bool {
	switch strings.ToLower(name) {
	case "href", "xlink:href", "src":
		return true
	default:
		return false
	}
}
