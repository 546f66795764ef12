package classifier

// Format is the closed, tagged classification spec.md §4.7 produces for
// a fetched resource. It is also the key the link-extraction dispatcher
// (§4.8) uses to pick extractors, and the label extractor.LinkCandidate
// carries as SourceExtractor, rather than spec.md §4.7's looser prose list
// (which additionally names "Image-with-EXIF", "Archive", and
// "Unknown-Binary" — all folded into Exif/Raw here, since nothing
// downstream needs to tell an arbitrary binary from an arbitrary
// archive apart).
type Format int

const (
	Raw Format = iota
	Html
	Js
	Css
	PlainText
	Rtf
	Ooxml
	Odf
	Exif
	Xml
	Svg
	Pdf
)

func (f Format) String() string {
	switch f {
	case Html:
		return "html"
	case Js:
		return "js"
	case Css:
		return "css"
	case PlainText:
		return "plain_text"
	case Rtf:
		return "rtf"
	case Ooxml:
		return "ooxml"
	case Odf:
		return "odf"
	case Exif:
		return "exif"
	case Xml:
		return "xml"
	case Svg:
		return "svg"
	case Pdf:
		return "pdf"
	default:
		return "raw"
	}
}
