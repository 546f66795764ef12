package robots

import (
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// ruleSet is the immutable, cached view of one host's robots.txt, wrapping
// a parsed github.com/temoto/robotstxt.RobotsData with the bookkeeping the
// cache layer needs (expiry, negative-cache bit, sitemaps).
type ruleSet struct {
	host      string
	userAgent string
	data      *robotstxt.RobotsData

	sitemaps []string

	fetchedAt time.Time
	expiresAt time.Time
	sourceURL string

	// negativeCache marks a permissive placeholder created after a fetch
	// failure, distinct from a genuinely empty (or 404) robots.txt.
	negativeCache bool
}

func (r ruleSet) expired(now time.Time) bool {
	return now.After(r.expiresAt)
}

// group resolves the most specific matching user-agent group, or nil if
// the robots.txt had no groups at all (or the fetch failed).
func (r ruleSet) group() *robotstxt.Group {
	if r.data == nil {
		return nil
	}
	return r.data.FindGroup(r.userAgent)
}

type DecisionReason string

const (
	AllowedByRobots    DecisionReason = "allowed_by_robots"
	DisallowedByRobots DecisionReason = "disallowed_by_robots"
	EmptyRuleSet       DecisionReason = "empty_rule_set"
	NegativeCache      DecisionReason = "negative_cache_permissive"
)

// Decision is the outcome of testing one URL against a host's cached
// robots.txt rules.
type Decision struct {
	Url url.URL

	Allowed bool

	Reason DecisionReason

	// CrawlDelay is the crawl-delay directive for the matched group, if any.
	CrawlDelay *time.Duration
}
