package classifier_test

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/atracrawl/atra/internal/classifier"
)

func TestClassifyByMagicBytes(t *testing.T) {
	cases := []struct {
		name string
		body []byte
		want classifier.Format
	}{
		{"pdf", []byte("%PDF-1.7\n..."), classifier.Pdf},
		{"rtf", []byte(`{\rtf1\ansi hello}`), classifier.Rtf},
		{"xml", []byte(`<?xml version="1.0"?><root/>`), classifier.Xml},
		{"svg-with-decl", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`), classifier.Svg},
		{"svg-bare", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), classifier.Svg},
		{"html-doctype", []byte(`<!DOCTYPE html><html><body>hi</body></html>`), classifier.Html},
		{"html-bare-tag", []byte(`<html><head></head></html>`), classifier.Html},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.Classify("", "/x", tc.body, nil)
			if got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestClassifyPrefersMagicOverContentType(t *testing.T) {
	got := classifier.Classify("text/plain", "/report.txt", []byte("%PDF-1.4\n"), nil)
	if got != classifier.Pdf {
		t.Errorf("expected magic bytes to win over a misleading Content-Type, got %s", got)
	}
}

func TestClassifyFallsBackToContentType(t *testing.T) {
	got := classifier.Classify("text/css; charset=utf-8", "/x", []byte("body { color: red; }"), nil)
	if got != classifier.Css {
		t.Errorf("expected Css from Content-Type, got %s", got)
	}
}

func TestClassifyFallsBackToExtension(t *testing.T) {
	got := classifier.Classify("", "/archive/notes.rtf", []byte("plain looking bytes"), nil)
	if got != classifier.Rtf {
		t.Errorf("expected Rtf from extension, got %s", got)
	}
}

func TestClassifyPlainTextDefault(t *testing.T) {
	got := classifier.Classify("", "/robots.txt", []byte("User-agent: *\nDisallow:\n"), nil)
	if got != classifier.PlainText {
		t.Errorf("expected PlainText default for textual bytes, got %s", got)
	}
}

func TestClassifyRawForBinaryWithNoSignature(t *testing.T) {
	got := classifier.Classify("", "/blob", []byte{0x00, 0x01, 0x02, 0xFF, 0xFE}, nil)
	if got != classifier.Raw {
		t.Errorf("expected Raw for unrecognized binary, got %s", got)
	}
}

func buildZip(t *testing.T, firstName string, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	all := append([]string{firstName}, names...)
	for _, name := range all {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip.Create(%q) returned error: %v", name, err)
		}
		if _, err := w.Write([]byte("content")); err != nil {
			t.Fatalf("write to %q returned error: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Close returned error: %v", err)
	}
	return buf.Bytes()
}

func archiveOpener(data []byte) classifier.OpenArchive {
	return func() (io.ReaderAt, int64, io.Closer, error) {
		return bytes.NewReader(data), int64(len(data)), io.NopCloser(nil), nil
	}
}

func TestClassifyZipDisambiguatesOoxml(t *testing.T) {
	data := buildZip(t, "[Content_Types].xml", "word/document.xml")
	got := classifier.Classify("application/octet-stream", "/report.docx", data, archiveOpener(data))
	if got != classifier.Ooxml {
		t.Errorf("expected Ooxml, got %s", got)
	}
}

func TestClassifyZipDisambiguatesOdf(t *testing.T) {
	data := buildZip(t, "mimetype", "content.xml")
	got := classifier.Classify("application/octet-stream", "/report.odt", data, archiveOpener(data))
	if got != classifier.Odf {
		t.Errorf("expected Odf, got %s", got)
	}
}

func TestClassifyZipWithoutArchiveOpenerFallsBackToExtension(t *testing.T) {
	data := buildZip(t, "[Content_Types].xml")
	got := classifier.Classify("", "/report.docx", data, nil)
	if got != classifier.Ooxml {
		t.Errorf("expected extension fallback to Ooxml when no archive opener is supplied, got %s", got)
	}
}
