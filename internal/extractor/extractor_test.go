package extractor_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/internal/extractor"
	"github.com/atracrawl/atra/internal/metadata"
)

type noopMetadataSink struct{}

func (noopMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}
func (noopMetadataSink) RecordError(time.Time, string, string, metadata.ErrorCause, string, []metadata.Attribute) {
}
func (noopMetadataSink) RecordArtifact(metadata.ArtifactRecord) {}

var _ metadata.MetadataSink = noopMetadataSink{}

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %v", raw, err)
	}
	return *u
}

func containsHref(candidates []extractor.LinkCandidate, href string) bool {
	for _, c := range candidates {
		if c.RawHref == href {
			return true
		}
	}
	return false
}

func TestHtmlExtractorEnumeratesAnchorsAndAssets(t *testing.T) {
	body := []byte(`<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/styles.css">
<script src="/app.js"></script>
</head><body>
<a href="/docs/intro">Intro</a>
<a href="https://external.example/page" rel="nofollow">External</a>
</body></html>`)

	e := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	result, err := e.Extract(mustParseURL(t, "https://docs.example/index.html"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	for _, want := range []string{"/styles.css", "/app.js", "/docs/intro", "https://external.example/page"} {
		if !containsHref(result.Candidates, want) {
			t.Errorf("expected candidate %q in %+v", want, result.Candidates)
		}
	}

	for _, c := range result.Candidates {
		if c.RawHref == "https://external.example/page" && !c.Nofollow {
			t.Errorf("expected rel=nofollow anchor to be marked Nofollow")
		}
	}
}

func TestHtmlExtractorSkipsMediaAndFormsByDefault(t *testing.T) {
	body := []byte(`<html><body>
<img src="/logo.png">
<form action="/search"></form>
</body></html>`)

	e := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	result, err := e.Extract(mustParseURL(t, "https://docs.example/"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if containsHref(result.Candidates, "/logo.png") || containsHref(result.Candidates, "/search") {
		t.Errorf("expected media/form candidates to be excluded by default, got %+v", result.Candidates)
	}
}

func TestHtmlExtractorIncludesMediaAndFormsWhenEnabled(t *testing.T) {
	body := []byte(`<html><body>
<img src="/logo.png">
<iframe src="/embed"></iframe>
<form action="/search"></form>
</body></html>`)

	opts := extractor.DefaultHtmlOptions()
	opts.IncludeEmbeddedMedia = true
	opts.IncludeFormActions = true
	e := extractor.NewHtmlExtractor(noopMetadataSink{}, opts)
	result, err := e.Extract(mustParseURL(t, "https://docs.example/"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for _, want := range []string{"/logo.png", "/embed", "/search"} {
		if !containsHref(result.Candidates, want) {
			t.Errorf("expected candidate %q when toggles enabled, got %+v", want, result.Candidates)
		}
	}
}

func TestHtmlExtractorHonorsDocumentNofollowMeta(t *testing.T) {
	body := []byte(`<html><head><meta name="robots" content="noindex, nofollow"></head>
<body><a href="/x">x</a></body></html>`)

	e := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	result, err := e.Extract(mustParseURL(t, "https://docs.example/"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !result.DocumentNofollow {
		t.Errorf("expected DocumentNofollow=true from meta robots nofollow")
	}
}

func TestHtmlExtractorFollowsMetaRefresh(t *testing.T) {
	body := []byte(`<html><head><meta http-equiv="refresh" content="0; url=/moved"></head><body></body></html>`)

	e := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	result, err := e.Extract(mustParseURL(t, "https://docs.example/"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !containsHref(result.Candidates, "/moved") {
		t.Errorf("expected meta-refresh target /moved, got %+v", result.Candidates)
	}
}

func TestCssExtractorFindsUrlAndImport(t *testing.T) {
	body := []byte(`@import "base.css";
.bg { background: url('/images/bg.png'); }
.icon { background-image: url(/icons/arrow.svg); }`)

	e := extractor.NewCssExtractor()
	result, err := e.Extract(mustParseURL(t, "https://docs.example/style.css"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for _, want := range []string{"base.css", "/images/bg.png", "/icons/arrow.svg"} {
		if !containsHref(result.Candidates, want) {
			t.Errorf("expected candidate %q, got %+v", want, result.Candidates)
		}
	}
}

func TestJsExtractorFindsAbsoluteURLsAndImports(t *testing.T) {
	body := []byte(`import foo from "./foo.js";
const api = "https://api.example.com/v1/data";
require('../shared/util');`)

	e := extractor.NewJsExtractor()
	result, err := e.Extract(mustParseURL(t, "https://docs.example/app.js"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for _, want := range []string{"./foo.js", "https://api.example.com/v1/data", "../shared/util"} {
		if !containsHref(result.Candidates, want) {
			t.Errorf("expected candidate %q, got %+v", want, result.Candidates)
		}
	}
}

func TestXmlExtractorFindsHrefAndXlinkHref(t *testing.T) {
	body := []byte(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
<a xlink:href="/docs/a"><rect/></a>
<image href="/img/b.png"/>
</svg>`)

	e := extractor.NewXmlExtractor()
	result, err := e.Extract(mustParseURL(t, "https://docs.example/chart.svg"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for _, want := range []string{"/docs/a", "/img/b.png"} {
		if !containsHref(result.Candidates, want) {
			t.Errorf("expected candidate %q, got %+v", want, result.Candidates)
		}
	}
}

func TestRawLinkExtractorFindsEmbeddedURLs(t *testing.T) {
	body := []byte("binary junk https://example.com/embedded more junk")

	e := extractor.NewRawLinkExtractor()
	result, err := e.Extract(mustParseURL(t, "https://docs.example/file.pdf"), body)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !containsHref(result.Candidates, "https://example.com/embedded") {
		t.Errorf("expected embedded URL candidate, got %+v", result.Candidates)
	}
}

func TestDispatchRunsIfSuitableForMatchingFormat(t *testing.T) {
	html := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	entries := []extractor.Entry{
		{Extractor: html, Policy: extractor.IfSuitable},
	}
	body := []byte(`<html><body><a href="/x">x</a></body></html>`)

	result, errs := extractor.Dispatch(entries, mustParseURL(t, "https://docs.example/"), body, classifier.Html)
	if len(errs) != 0 {
		t.Fatalf("Dispatch returned errors: %v", errs)
	}
	if !containsHref(result.Candidates, "/x") {
		t.Errorf("expected IfSuitable HTML extractor to run for Html format, got %+v", result.Candidates)
	}
}

func TestDispatchSkipsIfSuitableForMismatchedFormat(t *testing.T) {
	html := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	entries := []extractor.Entry{
		{Extractor: html, Policy: extractor.IfSuitable},
	}
	body := []byte(`.bg { background: url(/x.png); }`)

	result, _ := extractor.Dispatch(entries, mustParseURL(t, "https://docs.example/style.css"), body, classifier.Css)
	if len(result.Candidates) != 0 {
		t.Errorf("expected no candidates when format doesn't match any IfSuitable extractor, got %+v", result.Candidates)
	}
}

func TestDispatchRunsFallbackOnlyWhenNoCandidatesFound(t *testing.T) {
	html := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	raw := extractor.NewRawLinkExtractor()
	entries := []extractor.Entry{
		{Extractor: html, Policy: extractor.IfSuitable},
		{Extractor: raw, Policy: extractor.Fallback},
	}
	body := []byte(`<html><body>no links here, but https://fallback.example/hit is embedded</body></html>`)

	result, _ := extractor.Dispatch(entries, mustParseURL(t, "https://docs.example/"), body, classifier.Html)
	if !containsHref(result.Candidates, "https://fallback.example/hit") {
		t.Errorf("expected fallback extractor to run when primary tiers found nothing, got %+v", result.Candidates)
	}
}

func TestDispatchSuppressesFallbackWhenCandidatesAlreadyFound(t *testing.T) {
	html := extractor.NewHtmlExtractor(noopMetadataSink{}, extractor.DefaultHtmlOptions())
	raw := extractor.NewRawLinkExtractor()
	entries := []extractor.Entry{
		{Extractor: html, Policy: extractor.IfSuitable},
		{Extractor: raw, Policy: extractor.Fallback},
	}
	body := []byte(`<html><body><a href="/real">real</a> https://fallback.example/hit</body></html>`)

	result, _ := extractor.Dispatch(entries, mustParseURL(t, "https://docs.example/"), body, classifier.Html)
	if containsHref(result.Candidates, "https://fallback.example/hit") {
		t.Errorf("expected fallback extractor to be suppressed once the IfSuitable tier found candidates, got %+v", result.Candidates)
	}
}
