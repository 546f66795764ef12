package hostguard

import (
	"context"
	"net/url"
	"time"

	"github.com/atracrawl/atra/internal/linkstate"
	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/internal/robots"
)

/*
Guard is the per-host gate from spec.md §4.4: robots.txt, crawl-delay,
budget, and HTTP-signal back-off/blacklist enforcement. It wraps every
fetch attempt but never issues the fetch itself — the worker pool (§4.10)
calls Admit before enqueuing, Wait immediately before the HTTP call, and
ClassifyStatus immediately after, feeding the result back into the
link-state store and frontier.
*/
type Guard struct {
	robots    *robots.Cache
	blacklist *Blacklist
	limiter   *hostLimiter
	store     *linkstate.Store

	goneThreshold int
	quarantineFor time.Duration
	sink          metadata.MetadataSink
}

// Config bundles the tunables Guard needs beyond its collaborators.
type Config struct {
	BaseDelay      time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffMult    float64
	GoneThreshold  int           // consecutive 410s before host quarantine
	QuarantineFor  time.Duration // quarantine interval once threshold is hit
}

func NewGuard(robotsCache *robots.Cache, blacklist *Blacklist, store *linkstate.Store, sink metadata.MetadataSink, cfg Config) *Guard {
	return &Guard{
		robots:        robotsCache,
		blacklist:     blacklist,
		limiter:       newHostLimiter(cfg.BaseDelay, cfg.BackoffInitial, cfg.BackoffMax, cfg.BackoffMult),
		store:         store,
		goneThreshold: cfg.GoneThreshold,
		quarantineFor: cfg.QuarantineFor,
		sink:          sink,
	}
}

// Admit performs every semantic admission check — blacklist, host
// quarantine, robots.txt, budget — in that order, and is the single
// choke point a candidate URL must pass before entering the frontier.
func (g *Guard) Admit(ctx context.Context, target url.URL, hostKey string, seedHostKey string, depths linkstate.Depths, budget Budget) (AdmitDecision, error) {
	if g.blacklist != nil && g.blacklist.Match(target) {
		return AdmitDecision{Allowed: false, Reason: AdmitBlockedBlacklist}, nil
	}

	if until, err := g.store.HostQuarantine(hostKey); err == nil && time.Now().Before(until) {
		return AdmitDecision{Allowed: false, Reason: AdmitHostQuarantined}, nil
	}

	robotsDecision := g.robots.Decide(ctx, target)
	if robotsDecision.CrawlDelay != nil {
		g.limiter.SetCrawlDelay(target.Host, *robotsDecision.CrawlDelay)
	}
	if !robotsDecision.Allowed {
		return AdmitDecision{Allowed: false, Reason: AdmitBlockedRobots}, nil
	}

	if !budget.Admit(depths, hostKey == seedHostKey) {
		return AdmitDecision{Allowed: false, Reason: AdmitBudgetExceeded}, nil
	}

	var delay *time.Duration
	if robotsDecision.CrawlDelay != nil {
		d := *robotsDecision.CrawlDelay
		delay = &d
	}
	return AdmitDecision{Allowed: true, Reason: AdmitAllowed, CrawlDelay: delay}, nil
}

// Wait blocks until host's politeness delay (base delay, crawl-delay,
// active back-off — whichever is largest) has elapsed since the last
// admitted request to that host.
func (g *Guard) Wait(ctx context.Context, host string) error {
	return g.limiter.Wait(ctx, host)
}

// ClassifyStatus applies spec.md §4.4 step 4's status-driven policy after
// a fetch attempt completes, updating the host's back-off state and
// quarantine bookkeeping. hostKey is the registrable-domain host key
// (distinct from the wire host used for robots/limiter lookups) used for
// link-state host-quarantine records.
func (g *Guard) ClassifyStatus(host, hostKey string, statusCode int) StatusOutcome {
	switch {
	case statusCode == 429 || statusCode == 503:
		g.limiter.Backoff(host)
		return StatusRequeueBackoff
	case statusCode == 404:
		g.limiter.ResetBackoff(host)
		return StatusFailedNotFound
	case statusCode == 410:
		g.limiter.ResetBackoff(host)
		count, err := g.store.RecordGone(hostKey)
		if err != nil && g.sink != nil {
			g.sink.RecordError(time.Now(), "hostguard", "RecordGone", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrHost, hostKey),
			})
		}
		if g.goneThreshold > 0 && count >= g.goneThreshold {
			g.quarantineHost(hostKey)
		}
		return StatusBlockedGone
	case statusCode >= 200 && statusCode < 400:
		g.limiter.ResetBackoff(host)
		if err := g.store.ClearGone(hostKey); err != nil && g.sink != nil {
			g.sink.RecordError(time.Now(), "hostguard", "ClearGone", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
				metadata.NewAttr(metadata.AttrHost, hostKey),
			})
		}
		return StatusProceed
	case statusCode >= 400 && statusCode < 500:
		g.limiter.ResetBackoff(host)
		return StatusFailedHttpClient
	case statusCode >= 500:
		g.limiter.Backoff(host)
		return StatusRequeueBackoff
	default:
		return StatusProceed
	}
}

func (g *Guard) quarantineHost(hostKey string) {
	until := time.Now().Add(g.quarantineFor)
	if err := g.store.QuarantineHost(hostKey, until); err != nil && g.sink != nil {
		g.sink.RecordError(time.Now(), "hostguard", "quarantineHost", metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{
			metadata.NewAttr(metadata.AttrHost, hostKey),
		})
	}
}

// ResolveDelay reports host's current effective politeness delay, for
// observability and for frontier requeue scheduling.
func (g *Guard) ResolveDelay(host string) time.Duration {
	return g.limiter.ResolveDelay(host)
}
