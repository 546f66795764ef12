package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/internal/normalize"
	"github.com/atracrawl/atra/pkg/failure"
	"github.com/atracrawl/atra/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests against a fetch-ready URL
- Apply headers, cookies, timeouts, and redirect policy
- Stream the response body through a BodySink
- Never inspect or interpret body content — classification (§4.7) and
  extraction (§4.8) are downstream concerns

Fetch Semantics

- Every content type is fetched; the classifier decides what to do with it
- Redirect chains are bounded by redirect_limit and, under RedirectStrict,
  by the seeded host
- All attempts are recorded through the metadata sink, success or failure
*/

type Fetcher interface {
	Fetch(ctx context.Context, crawlDepth int, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError)
}

type HttpFetcher struct {
	metadataSink metadata.MetadataSink
	transport    *http.Transport
	sink         *BodySink
}

func NewHttpFetcher(metadataSink metadata.MetadataSink, bodySink *BodySink) *HttpFetcher {
	return &HttpFetcher{
		metadataSink: metadataSink,
		transport:    &http.Transport{},
		sink:         bodySink,
	}
}

func (h *HttpFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HttpFetcher.Fetch"
	startTime := time.Now()

	result, err := h.fetchWithRetry(ctx, fetchParam, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	var retryCount int

	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			retryCount = retryParam.MaxAttempts
		}
	} else {
		statusCode = result.Code()
		contentType = h.extractContentType(result.Headers())
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			h.recordRetryError(callerMethod, fetchParam.fetchUrl, retryErr)
		} else {
			h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		}
		return FetchResult{}, err
	}

	return result, nil
}

func (h *HttpFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *HttpFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HttpFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, retryErr *retry.RetryError) {
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		mapRetryErrorToMetadataCause(),
		retryErr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrMessage, retryErr.Error()),
			metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
		},
	)
}

func (h *HttpFetcher) fetchWithRetry(ctx context.Context, fetchParam FetchParam, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam)
	}

	result := retry.Retry(retryParam, fetchTask)
	if result.IsFailure() {
		var fetchErr *FetchError
		if errors.As(result.Err(), &fetchErr) {
			return FetchResult{}, fetchErr
		}
		return FetchResult{}, result.Err()
	}

	return result.Value(), nil
}

func (h *HttpFetcher) performFetch(ctx context.Context, fetchParam FetchParam) (FetchResult, failure.ClassifiedError) {
	reqCtx := ctx
	if fetchParam.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, fetchParam.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fetchParam.fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	for key, value := range requestHeaders(fetchParam.userAgent) {
		req.Header.Set(key, value)
	}
	for key, value := range fetchParam.headers {
		req.Header.Set(key, value)
	}
	if fetchParam.jar == nil && fetchParam.cookieHeader != "" {
		req.Header.Set("Cookie", fetchParam.cookieHeader)
	}

	client := h.buildClient(fetchParam)

	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("request timed out: %v", err),
				Retryable: true,
				Cause:     ErrCauseTimeout,
			}
		}
		if rpe, ok := asRedirectPolicyError(err); ok {
			return FetchResult{}, &FetchError{
				Message:   rpe.message,
				Retryable: false,
				Cause:     rpe.cause,
			}
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}
	case resp.StatusCode == 429:
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}
	case resp.StatusCode == 403:
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}
	}

	handle, ferr := h.sink.Consume(resp.Body)
	if ferr != nil {
		return FetchResult{}, ferr
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	result := FetchResult{
		url:       *resp.Request.URL,
		handle:    handle,
		fetchedAt: time.Now(),
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}
	return result, nil
}

// buildClient assembles a client bound to the shared transport (so
// connections still pool across requests) but with a CheckRedirect
// closure scoped to this fetch's redirect policy and a cookie jar if the
// caller supplied one.
func (h *HttpFetcher) buildClient(fetchParam FetchParam) *http.Client {
	limit := fetchParam.redirectLimit
	if limit <= 0 {
		limit = 10
	}

	client := &http.Client{
		Transport: h.transport,
		Jar:       fetchParam.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > limit {
				return &redirectPolicyError{
					message: fmt.Sprintf("exceeded redirect limit of %d", limit),
					cause:   ErrCauseRedirectLimitExceeded,
				}
			}
			if fetchParam.redirectPolicy == RedirectStrict && fetchParam.seededHostKey != "" {
				if normalize.HostKey(*req.URL, true) != fetchParam.seededHostKey {
					return &redirectPolicyError{
						message: fmt.Sprintf("redirect to %s left seeded host %s", req.URL.Host, fetchParam.seededHostKey),
						cause:   ErrCauseRedirectOffHost,
					}
				}
			}
			return nil
		},
	}
	return client
}

type redirectPolicyError struct {
	message string
	cause   FetchErrorCause
}

func (e *redirectPolicyError) Error() string {
	return e.message
}

func asRedirectPolicyError(err error) (*redirectPolicyError, bool) {
	var rpe *redirectPolicyError
	if errors.As(err, &rpe) {
		return rpe, true
	}
	return nil, false
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
