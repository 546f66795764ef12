package config

import (
	"fmt"
	"net/url"
	"time"
)

// WithDefault seeds a Config with every built-in default from spec.md §6
// and this package's own resolution of the remaining Open Questions
// (redirect policy defaults to Loose, budget defaults to Normal depth 3),
// ready for further WithXxx overrides before Build.
func WithDefault(seedURLs []url.URL) *Config {
	return &Config{
		seedURLs: seedURLs,
		system: SystemConfig{
			RobotsCacheSize:       1024,
			WebGraphCacheSize:     4096,
			MaxFileSizeInMemory:   4 << 20,
			MaxTempFileSizeOnDisc: 512 << 20,
			LogLevel:              LogInfo,
			LogToFile:             false,
		},
		paths: PathsConfig{
			Root:          "atra-data",
			DirDatabase:   "bboltdb",
			DirBigFiles:   "big_files",
			FileQueue:     "queue.tmp",
			FileBlacklist: "blacklist.txt",
			FileWebGraph:  "web_graph.ttl",
		},
		session: SessionConfig{
			Service:    "atra",
			Collection: "default",
			CrawlJobID: "",
		},
		crawl: CrawlConfig{
			UserAgentMode:      UserAgentDefault,
			RespectRobotsTxt:   true,
			RespectNofollow:    true,
			MaxFileSize:        64 << 20,
			MaxRobotsAge:       time.Hour,
			Subdomains:         true,
			Cache:              true,
			Delay:              time.Second,
			BudgetDefault:      BudgetSpec{Kind: BudgetNormal, MaxDepth: 3, MaxDepthOnHost: 3},
			MaxQueueAge:        10,
			RedirectLimit:      10,
			RedirectPolicy:     RedirectPolicyLoose,
			LinkExtractors:     []string{"html"},
			DecodeBigFilesUpTo: 16 << 20,

			Concurrency:       0,
			BackoffInitial:    time.Second,
			BackoffMax:        time.Minute,
			BackoffMultiplier: 2.0,
			MaxAttempts:       5,
			RequestTimeout:    30 * time.Second,
			GoneThreshold:     3,
			QuarantineFor:     time.Hour,
			RecrawlAfter:      0,
		},
	}
}

func (c *Config) WithSeedURLs(seedURLs []url.URL) *Config {
	c.seedURLs = seedURLs
	return c
}

func (c *Config) WithSystem(system SystemConfig) *Config {
	c.system = system
	return c
}

func (c *Config) WithPaths(paths PathsConfig) *Config {
	c.paths = paths
	return c
}

func (c *Config) WithSession(session SessionConfig) *Config {
	c.session = session
	return c
}

func (c *Config) WithCrawl(crawl CrawlConfig) *Config {
	c.crawl = crawl
	return c
}

func (c *Config) WithConcurrency(n int) *Config {
	c.crawl.Concurrency = n
	return c
}

func (c *Config) WithUserAgent(mode UserAgentMode, custom string) *Config {
	c.crawl.UserAgentMode = mode
	c.crawl.UserAgentString = custom
	return c
}

// Build validates the accumulated Config once every override has landed
// and returns it unchanged; it fills in no defaults of its own.
func (c Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: at least one seed URL is required", ErrInvalidConfig)
	}
	for _, u := range c.seedURLs {
		if u.Scheme != "http" && u.Scheme != "https" {
			return Config{}, fmt.Errorf("%w: unsupported seed scheme %q", ErrInvalidConfig, u.Scheme)
		}
		if u.Host == "" {
			return Config{}, fmt.Errorf("%w: seed URL %q has no host", ErrInvalidConfig, u.String())
		}
	}
	if c.crawl.UserAgentMode == UserAgentCustom && c.crawl.UserAgentString == "" {
		return Config{}, fmt.Errorf("%w: user_agent mode custom requires a non-empty string", ErrInvalidConfig)
	}
	if c.crawl.Concurrency < 0 {
		return Config{}, fmt.Errorf("%w: concurrency must not be negative", ErrInvalidConfig)
	}
	if c.paths.Root == "" {
		return Config{}, fmt.Errorf("%w: paths.root must not be empty", ErrInvalidConfig)
	}
	return c, nil
}

// ResolvedUserAgent returns the literal User-Agent header value for the
// configured mode.
func (c CrawlConfig) ResolvedUserAgent() string {
	switch c.UserAgentMode {
	case UserAgentSpoof:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	case UserAgentCustom:
		return c.UserAgentString
	default:
		return "atra/1.0 (+https://github.com/atracrawl/atra)"
	}
}
