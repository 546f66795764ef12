package classifier

import (
	"archive/zip"
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/atracrawl/atra/pkg/fileutil"
)

// sniffWindow is how many leading bytes of the body Classify inspects.
// Callers are expected to pass at most this many bytes as sniff; a
// longer slice is harmless but wasteful.
const sniffWindow = 512

// htmlTags mirrors the tag set net/http's own content sniffer uses to
// recognize HTML, extended with the couple of lowercase-only checks we
// need since we fold case ourselves rather than relying on its table.
var htmlTags = []string{
	"<!doctype html", "<html", "<head", "<script", "<iframe", "<h1",
	"<div", "<font", "<table", "<a ", "<a>", "<style", "<title", "<b ",
	"<body", "<br", "<p ", "<p>", "<!--",
}

// OpenArchive lazily exposes random access to the full body so Classify
// can disambiguate zip-based containers (OOXML vs. ODF) without the
// caller paying for it on every fetch — only zip-magic bodies ever call
// this. It mirrors fetcher.BodyHandle.ReaderAt's (io.ReaderAt, size,
// closer, error) shape so a BodyHandle can be passed directly.
type OpenArchive func() (io.ReaderAt, int64, io.Closer, error)

// Classify resolves spec.md §4.7's tagged format for a fetched resource.
// Precedence is magic bytes > Content-Type > URL path extension; openArchive
// may be nil, in which case a zip-magic body that can't be told apart by
// Content-Type/extension falls back to Raw rather than Ooxml/Odf.
func Classify(contentType, urlPath string, sniff []byte, openArchive OpenArchive) Format {
	if len(sniff) > sniffWindow {
		sniff = sniff[:sniffWindow]
	}
	trimmed := bytes.TrimLeft(sniff, " \t\r\n")
	trimmed = bytes.TrimPrefix(trimmed, []byte{0xEF, 0xBB, 0xBF})
	lower := bytes.ToLower(trimmed)

	switch {
	case bytes.HasPrefix(trimmed, []byte("%PDF-")):
		return Pdf
	case bytes.HasPrefix(lower, []byte(`{\rtf`)):
		return Rtf
	case bytes.HasPrefix(sniff, []byte("PK\x03\x04")), bytes.HasPrefix(sniff, []byte("PK\x05\x06")):
		if kind, ok := classifyZip(openArchive); ok {
			return kind
		}
	case bytes.HasPrefix(lower, []byte("<?xml")):
		if looksLikeSVG(lower) {
			return Svg
		}
		return Xml
	case looksLikeSVG(lower):
		return Svg
	case looksLikeHTML(lower):
		return Html
	}

	// DetectContentType's generic text/plain verdict carries no signature,
	// so it must not outrank Content-Type or the extension.
	if sniffed := http.DetectContentType(sniff); !strings.HasPrefix(sniffed, "text/plain") {
		if f, ok := fromMime(sniffed); ok {
			return f
		}
	}
	if f, ok := fromMime(contentType); ok {
		return f
	}
	if f, ok := fromSuffix(urlPath); ok {
		return f
	}
	if looksTextual(sniff) {
		return PlainText
	}
	return Raw
}

func looksLikeHTML(lower []byte) bool {
	for _, tag := range htmlTags {
		if bytes.HasPrefix(lower, []byte(tag)) {
			return true
		}
	}
	return false
}

func looksLikeSVG(lower []byte) bool {
	return bytes.Contains(lower, []byte("<svg"))
}

func looksTextual(sniff []byte) bool {
	if len(sniff) == 0 {
		return true
	}
	for _, b := range sniff {
		if b == 0 {
			return false
		}
	}
	return true
}

func fromMime(contentType string) (Format, bool) {
	if contentType == "" {
		return Raw, false
	}
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case base == "text/html", base == "application/xhtml+xml":
		return Html, true
	case base == "text/javascript", base == "application/javascript", base == "application/x-javascript", base == "application/ecmascript":
		return Js, true
	case base == "text/css":
		return Css, true
	case base == "image/svg+xml":
		return Svg, true
	case base == "application/pdf":
		return Pdf, true
	case base == "application/rtf", base == "text/rtf":
		return Rtf, true
	case base == "text/xml", base == "application/xml":
		return Xml, true
	case strings.HasPrefix(base, "application/vnd.openxmlformats-officedocument"):
		return Ooxml, true
	case strings.HasPrefix(base, "application/vnd.oasis.opendocument"):
		return Odf, true
	case strings.HasPrefix(base, "image/"):
		return Exif, true
	case base == "text/plain":
		return PlainText, true
	default:
		return Raw, false
	}
}

var suffixFormats = map[string]Format{
	"html": Html, "htm": Html,
	"js": Js, "mjs": Js, "cjs": Js,
	"css":  Css,
	"txt":  PlainText,
	"rtf":  Rtf,
	"docx": Ooxml, "xlsx": Ooxml, "pptx": Ooxml,
	"odt": Odf, "ods": Odf, "odp": Odf,
	"jpg": Exif, "jpeg": Exif, "png": Exif, "gif": Exif, "tif": Exif, "tiff": Exif, "webp": Exif,
	"xml": Xml,
	"svg": Svg,
	"pdf": Pdf,
}

func fromSuffix(urlPath string) (Format, bool) {
	ext := strings.ToLower(fileutil.GetFileExtension(urlPath))
	f, ok := suffixFormats[ext]
	return f, ok
}

// classifyZip distinguishes OOXML from ODF per SPEC_FULL.md §4.7: both
// are zip containers; ODF stores a single "mimetype" entry first (and
// uncompressed), OOXML stores "[Content_Types].xml" first. If neither
// convention holds, or the archive can't be opened, ok is false and the
// caller falls through to Content-Type/extension.
func classifyZip(openArchive OpenArchive) (Format, bool) {
	if openArchive == nil {
		return Raw, false
	}
	r, size, closer, err := openArchive()
	if err != nil {
		return Raw, false
	}
	if closer != nil {
		defer closer.Close()
	}

	zr, err := zip.NewReader(r, size)
	if err != nil || len(zr.File) == 0 {
		return Raw, false
	}

	switch zr.File[0].Name {
	case "mimetype":
		return Odf, true
	case "[Content_Types].xml":
		return Ooxml, true
	}

	for _, f := range zr.File {
		switch f.Name {
		case "mimetype":
			return Odf, true
		case "[Content_Types].xml":
			return Ooxml, true
		}
	}
	return Raw, false
}
