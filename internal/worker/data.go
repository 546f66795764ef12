package worker

import (
	"net/url"
	"time"

	"github.com/atracrawl/atra/internal/fetcher"
	"github.com/atracrawl/atra/internal/hostguard"
	"github.com/atracrawl/atra/pkg/retry"
)

// Config bundles the crawl-wide tunables a Supervisor needs beyond its
// collaborators (frontier, link-state store, guard, fetcher, extractor
// entries, sink) — everything config.Config (the CLI/config layer, out
// of this package's scope) resolves from atra.ini/crawl.yaml/env/flags.
type Config struct {
	// Concurrency is the fixed number of worker tasks, spec.md §5's N
	// (defaults to CPU count; the caller resolves that default).
	Concurrency int

	Seed            url.URL
	SeedHostKey     string
	Budget          hostguard.Budget
	Subdomains      bool
	UserAgent       string
	RequestParam    FetchPolicy
	RetryParam      retry.RetryParam
	RespectNofollow bool

	// DecodeBigFilesUpTo caps how large a body may be before extraction
	// is skipped entirely (spec.md §6's decode_big_files_up_to); 0 means
	// unlimited. Classification still runs off a small sniff window
	// regardless of size, and the body is never buffered whole just to
	// decide whether it's over this cap.
	DecodeBigFilesUpTo int64
}

// FetchPolicy is the slice of FetchParam knobs that are constant across
// every request a Supervisor issues (the per-request URL varies; these
// don't).
type FetchPolicy struct {
	Timeout        time.Duration
	RedirectPolicy fetcher.RedirectPolicy
	RedirectLimit  int
	Headers        map[string]string
	CookieHeader   string
}

// Stats is the terminal, derived run summary returned once a Supervisor
// has fully drained — the worker-pool-scoped counters the teacher's
// single-threaded scheduler kept on itself, now accumulated across
// concurrent workers via atomics and reported exactly once.
type Stats struct {
	TotalPages   int
	TotalErrors  int
	TotalBlocked int
	Duration     time.Duration
}
