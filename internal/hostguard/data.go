package hostguard

import (
	"time"

	"github.com/atracrawl/atra/internal/linkstate"
)

// BudgetKind is the closed set of crawl-scope budgets from spec.md §4.4.
type BudgetKind int

const (
	// SinglePage admits only the seed URL itself.
	SinglePage BudgetKind = iota
	// SeedOnly confines the crawl to the seed's host.
	SeedOnly
	// Normal allows cross-host traversal up to MaxDepth.
	Normal
	// Absolute is Normal with an additional hard depth ceiling (MaxJump)
	// that is never relaxed regardless of host confinement.
	Absolute
)

func (k BudgetKind) String() string {
	switch k {
	case SinglePage:
		return "single_page"
	case SeedOnly:
		return "seed_only"
	case Normal:
		return "normal"
	case Absolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// Budget is the depth/scope envelope admission is checked against.
type Budget struct {
	Kind           BudgetKind
	MaxDepth       int
	MaxDepthOnHost int
	// MaxJump is only consulted for Absolute and caps depth_from_seed
	// independent of MaxDepth.
	MaxJump int
}

// Admit reports whether depths is within budget scope for a candidate on
// a host that is, or is not, the seed's own host.
func (b Budget) Admit(depths linkstate.Depths, sameHostAsSeed bool) bool {
	switch b.Kind {
	case SinglePage:
		return depths.FromSeed == 0
	case SeedOnly:
		return sameHostAsSeed && depths.FromSeed <= b.MaxDepth && depths.OnHost <= b.MaxDepthOnHost
	case Normal:
		return depths.FromSeed <= b.MaxDepth && depths.OnHost <= b.MaxDepthOnHost
	case Absolute:
		return depths.FromSeed <= b.MaxDepth && depths.OnHost <= b.MaxDepthOnHost && depths.FromSeed <= b.MaxJump
	default:
		return false
	}
}

// AdmitReason records why Admit rejected (or accepted) a candidate, for
// logging; it must never itself drive further control flow beyond the
// boolean Allowed it accompanies.
type AdmitReason string

const (
	AdmitAllowed          AdmitReason = "allowed"
	AdmitBlockedRobots    AdmitReason = "blocked_robots"
	AdmitBlockedBlacklist AdmitReason = "blocked_blacklist"
	AdmitBudgetExceeded   AdmitReason = "budget_exceeded"
	AdmitHostQuarantined  AdmitReason = "host_quarantined"
)

// AdmitDecision is the result of checking a candidate URL against the
// blacklist, host quarantine, robots, and the active budget, in that order.
type AdmitDecision struct {
	Allowed bool
	Reason  AdmitReason

	// CrawlDelay is the robots.txt crawl-delay directive, if any; Admit
	// has already folded it into the per-host limiter via SetCrawlDelay.
	CrawlDelay *time.Duration
}

// StatusOutcome is the status-code-driven policy outcome from spec.md
// §4.4 step 4, applied after a fetch attempt completes.
type StatusOutcome int

const (
	StatusProceed StatusOutcome = iota
	StatusRequeueBackoff
	StatusFailedNotFound
	StatusFailedHttpClient
	StatusBlockedGone
)

func (s StatusOutcome) String() string {
	switch s {
	case StatusProceed:
		return "proceed"
	case StatusRequeueBackoff:
		return "requeue_backoff"
	case StatusFailedNotFound:
		return "failed_not_found"
	case StatusFailedHttpClient:
		return "failed_http_client"
	case StatusBlockedGone:
		return "blocked_gone"
	default:
		return "unknown"
	}
}
