package fetcher

import (
	"net/http"
	"net/url"
	"time"
)

// RedirectPolicy governs how far, and where, a fetch may follow redirects.
type RedirectPolicy int

const (
	// RedirectLoose follows up to redirectLimit hops regardless of target host.
	RedirectLoose RedirectPolicy = iota
	// RedirectStrict additionally requires every redirect target to share
	// the seeded host/eTLD+1.
	RedirectStrict
)

// FetchParam is the HTTP boundary: everything performFetch needs to know
// about a single request that isn't retry bookkeeping.
type FetchParam struct {
	fetchUrl       url.URL
	userAgent      string
	headers        map[string]string
	cookieHeader   string
	jar            http.CookieJar
	timeout        time.Duration
	redirectPolicy RedirectPolicy
	redirectLimit  int
	seededHostKey  string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:      fetchUrl,
		userAgent:     userAgent,
		redirectLimit: 10,
	}
}

func (p FetchParam) WithHeaders(headers map[string]string) FetchParam {
	p.headers = headers
	return p
}

func (p FetchParam) WithCookieHeader(cookieHeader string) FetchParam {
	p.cookieHeader = cookieHeader
	return p
}

// WithJar attaches a per-host cookie jar; when set it takes precedence
// over WithCookieHeader's static string, per spec.md §4.6.
func (p FetchParam) WithJar(jar http.CookieJar) FetchParam {
	p.jar = jar
	return p
}

func (p FetchParam) WithTimeout(timeout time.Duration) FetchParam {
	p.timeout = timeout
	return p
}

func (p FetchParam) WithRedirectPolicy(policy RedirectPolicy, limit int, seededHostKey string) FetchParam {
	p.redirectPolicy = policy
	p.redirectLimit = limit
	p.seededHostKey = seededHostKey
	return p
}

// FetchResult is what a successful fetch produces: the final URL (after
// redirects), response metadata, and a body handle that may have spilled
// to disk.
type FetchResult struct {
	url       url.URL
	handle    *BodyHandle
	meta      ResponseMeta
	fetchedAt time.Time
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Handle() *BodyHandle {
	return f.handle
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	if f.handle == nil {
		return 0
	}
	return uint64(f.handle.Len())
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

type ResponseMeta struct {
	statusCode      int
	responseHeaders map[string]string
}

// NewFetchResultForTest builds a FetchResult for test packages without
// exposing the unexported fields directly.
func NewFetchResultForTest(
	fetchUrl url.URL,
	handle *BodyHandle,
	statusCode int,
	responseHeaders map[string]string,
	fetchedAt time.Time,
) FetchResult {
	return FetchResult{
		url:       fetchUrl,
		handle:    handle,
		fetchedAt: fetchedAt,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}
