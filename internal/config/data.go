package config

import (
	"net/url"
	"time"

	"github.com/atracrawl/atra/internal/fetcher"
	"github.com/atracrawl/atra/internal/hostguard"
)

// LogLevel is the closed set from spec.md §6; it maps directly onto a
// zerolog.Level when the CLI layer wires up its logger.
type LogLevel string

const (
	LogOff   LogLevel = "off"
	LogError LogLevel = "error"
	LogWarn  LogLevel = "warn"
	LogInfo  LogLevel = "info"
	LogDebug LogLevel = "debug"
	LogTrace LogLevel = "trace"
)

// UserAgentMode selects how the crawl's User-Agent header is derived.
type UserAgentMode string

const (
	// UserAgentSpoof presents as a common desktop browser string.
	UserAgentSpoof UserAgentMode = "spoof"
	// UserAgentDefault uses the built-in "atra/<version>" identifier.
	UserAgentDefault UserAgentMode = "default"
	// UserAgentCustom uses CrawlConfig.UserAgentString verbatim.
	UserAgentCustom UserAgentMode = "custom"
)

// RedirectPolicyMode mirrors fetcher.RedirectPolicy at the config layer,
// kept as its own string-keyed type so atra.ini/crawl.yaml/env values
// don't leak fetcher's int-enum representation into the file format.
type RedirectPolicyMode string

const (
	RedirectPolicyLoose  RedirectPolicyMode = "loose"
	RedirectPolicyStrict RedirectPolicyMode = "strict"
)

// ToFetcherPolicy maps a RedirectPolicyMode onto fetcher.RedirectPolicy,
// defaulting unknown/empty values to RedirectLoose.
func (m RedirectPolicyMode) ToFetcherPolicy() fetcher.RedirectPolicy {
	if m == RedirectPolicyStrict {
		return fetcher.RedirectStrict
	}
	return fetcher.RedirectLoose
}

// BudgetKindMode mirrors hostguard.BudgetKind at the config layer.
type BudgetKindMode string

const (
	BudgetSinglePage BudgetKindMode = "single_page"
	BudgetSeedOnly   BudgetKindMode = "seed_only"
	BudgetNormal     BudgetKindMode = "normal"
	BudgetAbsolute   BudgetKindMode = "absolute"
)

func (m BudgetKindMode) ToHostguardKind() hostguard.BudgetKind {
	switch m {
	case BudgetSeedOnly:
		return hostguard.SeedOnly
	case BudgetAbsolute:
		return hostguard.Absolute
	case BudgetSinglePage:
		return hostguard.SinglePage
	default:
		return hostguard.Normal
	}
}

// BudgetSpec is one budget entry: either the default budget or a
// per-host override (crawl.budget.per_host in spec.md §6).
type BudgetSpec struct {
	Kind           BudgetKindMode
	MaxDepth       int
	MaxDepthOnHost int
	MaxJump        int
}

func (b BudgetSpec) ToHostguardBudget() hostguard.Budget {
	return hostguard.Budget{
		Kind:           b.Kind.ToHostguardKind(),
		MaxDepth:       b.MaxDepth,
		MaxDepthOnHost: b.MaxDepthOnHost,
		MaxJump:        b.MaxJump,
	}
}

// SystemConfig is spec.md §6's System group: process-wide resource caps
// and the logging posture, independent of any particular crawl.
type SystemConfig struct {
	RobotsCacheSize       int
	WebGraphCacheSize     int
	MaxFileSizeInMemory   int64
	MaxTempFileSizeOnDisc int64
	LogLevel              LogLevel
	LogToFile             bool
}

// PathsConfig is spec.md §6's Paths group. The directory and file
// entries are joined under the crawl's per-seed state directory (which
// sits under Root, or under --state-dir), absolute entries included.
type PathsConfig struct {
	Root               string
	DirDatabase        string
	DirBigFiles        string
	FileQueue          string
	FileBlacklist      string
	FileWebGraph       string
}

// SessionConfig is spec.md §6's Session group: identifiers stamped into
// WARC warcinfo records and log lines, carrying no crawl behavior.
type SessionConfig struct {
	Service     string
	Collection  string
	CrawlJobID  string
}

// CookiesConfig is crawl.cookies from spec.md §6: a default cookie
// header string plus per-host overrides, keyed by registrable host.
type CookiesConfig struct {
	Default string
	PerHost map[string]string
}

// CrawlConfig is spec.md §6's Crawl group: every knob that shapes the
// behavior of a single crawl run.
type CrawlConfig struct {
	UserAgentMode       UserAgentMode
	UserAgentString     string
	RespectRobotsTxt    bool
	RespectNofollow     bool
	CrawlEmbeddedData   bool
	CrawlForms          bool
	CrawlJavascript     bool
	CrawlOnclickHeuristic bool
	MaxFileSize         int64
	MaxRobotsAge        time.Duration
	IgnoreSitemap       bool
	Subdomains          bool
	Cache               bool
	UseCookies          bool
	Cookies             CookiesConfig
	Headers             map[string]string
	Proxies             []string
	TLD                 string
	Delay               time.Duration
	BudgetDefault       BudgetSpec
	BudgetPerHost       map[string]BudgetSpec
	MaxQueueAge         int
	RedirectLimit       int
	RedirectPolicy      RedirectPolicyMode
	AcceptInvalidCerts  bool
	LinkExtractors      []string
	DecodeBigFilesUpTo  int64

	Concurrency        int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	BackoffMultiplier  float64
	MaxAttempts        int
	RequestTimeout     time.Duration
	GoneThreshold      int
	QuarantineFor      time.Duration
	// RecrawlAfter is the link-state store's recrawl window (spec.md §9):
	// a Crawled URL is not eligible to be claimed again until this long
	// after its last crawl. Zero disables recrawling: a Crawled URL is
	// never claimed again.
	RecrawlAfter time.Duration
}

// Config is the fully resolved, validated configuration for one crawl
// invocation: the merge of built-in defaults, atra.ini, crawl.yaml,
// ATRA_-prefixed environment overrides, and CLI flags, in that
// ascending order of precedence.
type Config struct {
	seedURLs []url.URL

	system  SystemConfig
	paths   PathsConfig
	session SessionConfig
	crawl   CrawlConfig
}

func (c Config) SeedURLs() []url.URL {
	out := make([]url.URL, len(c.seedURLs))
	copy(out, c.seedURLs)
	return out
}

func (c Config) System() SystemConfig   { return c.system }
func (c Config) Paths() PathsConfig     { return c.paths }
func (c Config) Session() SessionConfig { return c.session }
func (c Config) Crawl() CrawlConfig     { return c.crawl }
