package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/atracrawl/atra/internal/fetcher"
	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/internal/normalize"
	"github.com/atracrawl/atra/pkg/failure"
	"github.com/atracrawl/atra/pkg/retry"
	"github.com/atracrawl/atra/pkg/timeutil"
)

type mockMetadataSink struct {
	fetchEvents []fetchEvent
	errorEvents []errorEvent
}

type fetchEvent struct {
	fetchUrl    string
	httpStatus  int
	contentType string
	retryCount  int
	crawlDepth  int
}

type errorEvent struct {
	packageName string
	action      string
	cause       metadata.ErrorCause
}

func (m *mockMetadataSink) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	m.fetchEvents = append(m.fetchEvents, fetchEvent{fetchUrl: fetchUrl, httpStatus: httpStatus, contentType: contentType, retryCount: retryCount, crawlDepth: crawlDepth})
}

func (m *mockMetadataSink) RecordError(observedAt time.Time, packageName, action string, cause metadata.ErrorCause, errString string, attrs []metadata.Attribute) {
	m.errorEvents = append(m.errorEvents, errorEvent{packageName: packageName, action: action, cause: cause})
}

func (m *mockMetadataSink) RecordArtifact(record metadata.ArtifactRecord) {}

var _ metadata.MetadataSink = &mockMetadataSink{}

func testRetryParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		10*time.Millisecond,
		5*time.Millisecond,
		42,
		maxAttempts,
		timeutil.NewBackoffParam(10*time.Millisecond, 2.0, 100*time.Millisecond),
	)
}

func newFetcher(t *testing.T, sink metadata.MetadataSink, maxMemory, maxFile int64) *fetcher.HttpFetcher {
	t.Helper()
	bodySink := fetcher.NewBodySink(t.TempDir(), maxMemory, maxFile)
	return fetcher.NewHttpFetcher(sink, bodySink)
}

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %v", raw, err)
	}
	return *u
}

func drain(t *testing.T, handle *fetcher.BodyHandle) []byte {
	t.Helper()
	r, err := handle.Reader()
	if err != nil {
		t.Fatalf("Reader() returned error: %v", err)
	}
	defer r.Close()
	body := make([]byte, 0, handle.Len())
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		body = append(body, buf[:n]...)
		if err != nil {
			break
		}
	}
	return body
}

func TestFetchSuccessReadsBodyIntoMemory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	param := fetcher.NewFetchParam(mustParse(t, server.URL), "atra-test/1.0")
	result, err := f.Fetch(t.Context(), 0, param, testRetryParam(1))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected 200, got %d", result.Code())
	}
	if result.Handle().Variant() != fetcher.VariantMemory {
		t.Errorf("expected in-memory body, got variant %d", result.Handle().Variant())
	}
	if string(drain(t, result.Handle())) != "<html><body>hello</body></html>" {
		t.Errorf("unexpected body: %s", drain(t, result.Handle()))
	}
	if len(sink.fetchEvents) != 1 || sink.fetchEvents[0].httpStatus != http.StatusOK {
		t.Errorf("expected one recorded fetch event with status 200, got %+v", sink.fetchEvents)
	}
}

func TestFetchSpillsBodyToDiskPastThreshold(t *testing.T) {
	body := make([]byte, 128)
	for i := range body {
		body[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 16, 0)

	param := fetcher.NewFetchParam(mustParse(t, server.URL), "atra-test/1.0")
	result, err := f.Fetch(t.Context(), 0, param, testRetryParam(1))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if result.Handle().Variant() != fetcher.VariantSpilled {
		t.Errorf("expected spilled body past the in-memory threshold, got variant %d", result.Handle().Variant())
	}
	if int64(len(body)) != result.Handle().Len() {
		t.Errorf("expected spilled length %d, got %d", len(body), result.Handle().Len())
	}
	if string(drain(t, result.Handle())) != string(body) {
		t.Error("spilled body did not round-trip through Reader")
	}
}

func TestFetch403IsNonRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	param := fetcher.NewFetchParam(mustParse(t, server.URL), "atra-test/1.0")
	_, err := f.Fetch(t.Context(), 0, param, testRetryParam(3))
	if err == nil {
		t.Fatal("expected error for 403")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected 403 to be non-retryable")
	}
}

func TestFetch500ExhaustsRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	param := fetcher.NewFetchParam(mustParse(t, server.URL), "atra-test/1.0")
	_, err := f.Fetch(t.Context(), 0, param, testRetryParam(3))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if requests != 3 {
		t.Errorf("expected 3 attempts, got %d", requests)
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhaustion, got %T", err)
	}
	if len(sink.errorEvents) != 1 || sink.errorEvents[0].cause != metadata.CauseNetworkFailure {
		t.Errorf("expected one network-failure error event, got %+v", sink.errorEvents)
	}
}

func TestFetchSucceedsAfterTransientFailure(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	param := fetcher.NewFetchParam(mustParse(t, server.URL), "atra-test/1.0")
	result, err := f.Fetch(t.Context(), 0, param, testRetryParam(3))
	if err != nil {
		t.Fatalf("expected success after one transient failure, got: %v", err)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected 200, got %d", result.Code())
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestFetchStrictRedirectPolicyBlocksOffHostRedirect(t *testing.T) {
	offHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("off-host"))
	}))
	defer offHost.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, offHost.URL+"/dest", http.StatusFound)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	target := mustParse(t, server.URL)
	param := fetcher.NewFetchParam(target, "atra-test/1.0").
		WithRedirectPolicy(fetcher.RedirectStrict, 5, normalize.HostKey(target, true))

	_, err := f.Fetch(t.Context(), 0, param, testRetryParam(1))
	if err == nil {
		t.Fatal("expected strict redirect policy to reject an off-host redirect")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.Cause != fetcher.ErrCauseRedirectOffHost {
		t.Errorf("expected ErrCauseRedirectOffHost, got %s", fetchErr.Cause)
	}
}

func TestFetchLooseRedirectPolicyFollowsOffHostRedirect(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("destination"))
	}))
	defer dest.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, dest.URL+"/x", http.StatusFound)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newFetcher(t, sink, 1<<20, 0)

	target := mustParse(t, server.URL)
	param := fetcher.NewFetchParam(target, "atra-test/1.0").
		WithRedirectPolicy(fetcher.RedirectLoose, 5, normalize.HostKey(target, true))

	result, err := f.Fetch(t.Context(), 0, param, testRetryParam(1))
	if err != nil {
		t.Fatalf("expected loose policy to follow the redirect, got error: %v", err)
	}
	if string(drain(t, result.Handle())) != "destination" {
		t.Errorf("expected to land on the redirect target, got %q", drain(t, result.Handle()))
	}
}
