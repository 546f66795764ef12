package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/atracrawl/atra/internal/metadata"
)

// maxRobotsSize bounds how much of a robots.txt response body is read,
// per spec.md §4.5's fetch-with-a-short-timeout contract.
const maxRobotsSize = 500 * 1024

/*
Cache is the bounded, shared robots.txt cache (spec.md §4.5).

Responsibilities:
  - Fetch robots.txt per host, parse with github.com/temoto/robotstxt
  - Cache parsed rules keyed by host with an age TTL
  - Coalesce concurrent refreshes for the same host (singleflight)
  - Fall back to a permissive record with a short negative-cache TTL on
    fetch failure, so a down or unreachable robots.txt never blocks a crawl

Robots checks occur before a URL enters the frontier.
*/
type Cache struct {
	lru  *lru.Cache[string, *ruleSet]
	sf   singleflight.Group
	http *http.Client

	userAgent    string
	maxAge       time.Duration
	negativeTTL  time.Duration
	fetchTimeout time.Duration

	sink metadata.MetadataSink
}

// NewCache builds a robots.txt cache of the given host capacity.
func NewCache(
	sink metadata.MetadataSink,
	userAgent string,
	capacity int,
	maxAge time.Duration,
	negativeTTL time.Duration,
	fetchTimeout time.Duration,
	client *http.Client,
) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	l, err := lru.New[string, *ruleSet](capacity)
	if err != nil {
		return nil, &RobotsError{Message: err.Error(), Retryable: false, Cause: ErrCauseInvalidRobotsUrl}
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Cache{
		lru:          l,
		http:         client,
		userAgent:    userAgent,
		maxAge:       maxAge,
		negativeTTL:  negativeTTL,
		fetchTimeout: fetchTimeout,
		sink:         sink,
	}, nil
}

// Decide tests target against the cached (or freshly fetched) robots.txt
// rules for target.Host, resolving through the cache's TTL and single-
// flight coalescing. It never returns a hard error: a robots.txt fetch
// failure resolves to an Allowed decision via the negative cache.
func (c *Cache) Decide(ctx context.Context, target url.URL) Decision {
	rs := c.getOrFetch(ctx, target.Scheme, target.Host)

	dec := Decision{Url: target}

	if rs.negativeCache || rs.data == nil {
		dec.Allowed = true
		dec.Reason = NegativeCache
		return dec
	}

	group := rs.group()
	if group == nil {
		dec.Allowed = true
		dec.Reason = EmptyRuleSet
		return dec
	}

	path := target.Path
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}

	if group.Test(path) {
		dec.Allowed = true
		dec.Reason = AllowedByRobots
	} else {
		dec.Allowed = false
		dec.Reason = DisallowedByRobots
	}
	if group.CrawlDelay > 0 {
		delay := group.CrawlDelay
		dec.CrawlDelay = &delay
	}
	return dec
}

// getOrFetch returns the cached ruleSet for host, refreshing it through a
// singleflight call if missing or expired.
func (c *Cache) getOrFetch(ctx context.Context, scheme, host string) *ruleSet {
	now := time.Now()
	if rs, ok := c.lru.Get(host); ok && !rs.expired(now) {
		return rs
	}

	v, _, _ := c.sf.Do(host, func() (interface{}, error) {
		entry := c.fetchEntry(ctx, scheme, host)
		c.lru.Add(host, entry)
		return entry, nil
	})
	return v.(*ruleSet)
}

// fetchEntry fetches and parses host's robots.txt, always returning a
// usable ruleSet — fetch or parse failures produce a permissive
// negative-cache entry instead of propagating an error.
func (c *Cache) fetchEntry(ctx context.Context, scheme, host string) *ruleSet {
	now := time.Now()
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		c.recordFetchError(host, now, &RobotsError{
			Message: err.Error(), Retryable: false, Cause: ErrCausePreFetchFailure,
		})
		return c.negativeEntry(host, now, robotsURL)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain,text/html,*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFetchError(host, now, &RobotsError{
			Message: err.Error(), Retryable: true, Cause: ErrCauseHttpFetchFailure,
		})
		return c.negativeEntry(host, now, robotsURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize+1))
	if err != nil {
		c.recordFetchError(host, now, &RobotsError{
			Message: err.Error(), Retryable: true, Cause: ErrCauseParseError,
		})
		return c.negativeEntry(host, now, robotsURL)
	}
	if len(body) > maxRobotsSize {
		body = body[:maxRobotsSize]
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		c.recordFetchError(host, now, &RobotsError{
			Message: err.Error(), Retryable: false, Cause: ErrCauseParseError,
		})
		return c.negativeEntry(host, now, robotsURL)
	}

	return &ruleSet{
		host:      host,
		userAgent: c.userAgent,
		data:      data,
		sitemaps:  data.Sitemaps,
		fetchedAt: now,
		expiresAt: now.Add(c.maxAge),
		sourceURL: robotsURL,
	}
}

func (c *Cache) negativeEntry(host string, now time.Time, sourceURL string) *ruleSet {
	return &ruleSet{
		host:          host,
		userAgent:     c.userAgent,
		data:          nil,
		fetchedAt:     now,
		expiresAt:     now.Add(c.negativeTTL),
		sourceURL:     sourceURL,
		negativeCache: true,
	}
}

func (c *Cache) recordFetchError(host string, observedAt time.Time, rerr *RobotsError) {
	if c.sink == nil {
		return
	}
	c.sink.RecordError(observedAt, "robots", "fetch", mapRobotsErrorToMetadataCause(rerr), rerr.Error(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrHost, host),
		metadata.NewAttr(metadata.AttrMessage, rerr.Message),
	})
}

// mapRobotsErrorToMetadataCause maps robots-local error semantics to the
// canonical metadata.ErrorCause table. Observational only.
func mapRobotsErrorToMetadataCause(err *RobotsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseInvalidRobotsUrl:
		return metadata.CauseInvariantViolation
	case ErrCausePreFetchFailure:
		return metadata.CauseUnknown
	case ErrCauseHttpFetchFailure, ErrCauseHttpTooManyRequests, ErrCauseHttpTooManyRedirects, ErrCauseHttpServerError, ErrCauseHttpUnexpectedStatus:
		return metadata.CauseNetworkFailure
	case ErrCauseParseError:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
