package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadIniFile reads atra.ini (the System/Paths/Session groups of
// spec.md §6) and layers it over cfg. A missing file is not an error —
// atra.ini is optional and every key falls back to WithDefault's value —
// but a present, unparsable file is ErrConfigParsingFail.
func LoadIniFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadConfigFail, path, err)
	}

	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParsingFail, path, err)
	}

	if sec := f.Section("system"); sec != nil {
		sys := &cfg.system
		sys.RobotsCacheSize = sec.Key("robots_cache_size").MustInt(sys.RobotsCacheSize)
		sys.WebGraphCacheSize = sec.Key("web_graph_cache_size").MustInt(sys.WebGraphCacheSize)
		sys.MaxFileSizeInMemory = sec.Key("max_file_size_in_memory").MustInt64(sys.MaxFileSizeInMemory)
		sys.MaxTempFileSizeOnDisc = sec.Key("max_temp_file_size_on_disc").MustInt64(sys.MaxTempFileSizeOnDisc)
		if v := sec.Key("log_level").String(); v != "" {
			sys.LogLevel = LogLevel(strings.ToLower(v))
		}
		sys.LogToFile = sec.Key("log_to_file").MustBool(sys.LogToFile)
	}

	if sec := f.Section("paths"); sec != nil {
		p := &cfg.paths
		p.Root = sec.Key("root").MustString(p.Root)
		p.DirDatabase = sec.Key("directories.database").MustString(p.DirDatabase)
		p.DirBigFiles = sec.Key("directories.big_files").MustString(p.DirBigFiles)
		p.FileQueue = sec.Key("files.queue").MustString(p.FileQueue)
		p.FileBlacklist = sec.Key("files.blacklist").MustString(p.FileBlacklist)
		p.FileWebGraph = sec.Key("files.web_graph").MustString(p.FileWebGraph)
	}

	if sec := f.Section("session"); sec != nil {
		s := &cfg.session
		s.Service = sec.Key("service").MustString(s.Service)
		s.Collection = sec.Key("collection").MustString(s.Collection)
		s.CrawlJobID = sec.Key("crawl_job_id").MustString(s.CrawlJobID)
	}

	return nil
}

// crawlDTO mirrors crawl.yaml's shape. Only fields actually present in
// the file override cfg.crawl; zero values elsewhere are left alone, as
// a YAML document that omits a key must not silently reset it to Go's
// zero value (the same non-destructive-merge rule the teacher's
// newConfigFromDTO applies to its own JSON config file).
type crawlDTO struct {
	UserAgent             *string           `yaml:"user_agent"`
	RespectRobotsTxt      *bool             `yaml:"respect_robots_txt"`
	RespectNofollow       *bool             `yaml:"respect_nofollow"`
	CrawlEmbeddedData     *bool             `yaml:"crawl_embedded_data"`
	CrawlForms            *bool             `yaml:"crawl_forms"`
	CrawlJavascript       *bool             `yaml:"crawl_javascript"`
	CrawlOnclickHeuristic *bool             `yaml:"crawl_onclick_by_heuristic"`
	MaxFileSize           *int64            `yaml:"max_file_size"`
	MaxRobotsAge          *string           `yaml:"max_robots_age"`
	IgnoreSitemap         *bool             `yaml:"ignore_sitemap"`
	Subdomains            *bool             `yaml:"subdomains"`
	Cache                 *bool             `yaml:"cache"`
	UseCookies            *bool             `yaml:"use_cookies"`
	Cookies               *cookiesDTO       `yaml:"cookies"`
	Headers               map[string]string `yaml:"headers"`
	Proxies               []string          `yaml:"proxies"`
	TLD                   *string           `yaml:"tld"`
	Delay                 *string           `yaml:"delay"`
	Budget                *budgetGroupDTO   `yaml:"budget"`
	MaxQueueAge           *int              `yaml:"max_queue_age"`
	RedirectLimit         *int              `yaml:"redirect_limit"`
	RedirectPolicy        *string           `yaml:"redirect_policy"`
	AcceptInvalidCerts    *bool             `yaml:"accept_invalid_certs"`
	LinkExtractors        []string          `yaml:"link_extractors"`
	DecodeBigFilesUpTo    *int64            `yaml:"decode_big_files_up_to"`

	Concurrency       *int     `yaml:"concurrency"`
	BackoffInitial    *string  `yaml:"backoff_initial"`
	BackoffMax        *string  `yaml:"backoff_max"`
	BackoffMultiplier *float64 `yaml:"backoff_multiplier"`
	MaxAttempts       *int     `yaml:"max_attempts"`
	RequestTimeout    *string  `yaml:"request_timeout"`
	GoneThreshold     *int     `yaml:"gone_threshold"`
	QuarantineFor     *string  `yaml:"quarantine_for"`
	RecrawlAfter      *string  `yaml:"recrawl_after"`
}

type cookiesDTO struct {
	Default string            `yaml:"default"`
	PerHost map[string]string `yaml:"per_host"`
}

type budgetDTO struct {
	Kind           string `yaml:"kind"`
	MaxDepth       int    `yaml:"max_depth"`
	MaxDepthOnHost int    `yaml:"max_depth_on_host"`
	MaxJump        int    `yaml:"max_jump"`
}

type budgetGroupDTO struct {
	Default budgetDTO            `yaml:"default"`
	PerHost map[string]budgetDTO `yaml:"per_host"`
}

func (d budgetDTO) toBudgetSpec() BudgetSpec {
	return BudgetSpec{
		Kind:           BudgetKindMode(d.Kind),
		MaxDepth:       d.MaxDepth,
		MaxDepthOnHost: d.MaxDepthOnHost,
		MaxJump:        d.MaxJump,
	}
}

// LoadYAMLFile reads crawl.yaml (the Crawl group of spec.md §6) and
// layers it over cfg, on top of whatever atra.ini already set.
func LoadYAMLFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReadConfigFail, path, err)
	}

	var dto crawlDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParsingFail, path, err)
	}

	crawl := &cfg.crawl
	if dto.UserAgent != nil {
		switch mode := UserAgentMode(strings.ToLower(*dto.UserAgent)); mode {
		case UserAgentSpoof, UserAgentDefault:
			crawl.UserAgentMode = mode
			crawl.UserAgentString = ""
		default:
			crawl.UserAgentMode = UserAgentCustom
			crawl.UserAgentString = *dto.UserAgent
		}
	}
	setBool(&crawl.RespectRobotsTxt, dto.RespectRobotsTxt)
	setBool(&crawl.RespectNofollow, dto.RespectNofollow)
	setBool(&crawl.CrawlEmbeddedData, dto.CrawlEmbeddedData)
	setBool(&crawl.CrawlForms, dto.CrawlForms)
	setBool(&crawl.CrawlJavascript, dto.CrawlJavascript)
	setBool(&crawl.CrawlOnclickHeuristic, dto.CrawlOnclickHeuristic)
	if dto.MaxFileSize != nil {
		crawl.MaxFileSize = *dto.MaxFileSize
	}
	if dto.MaxRobotsAge != nil {
		if d, err := time.ParseDuration(*dto.MaxRobotsAge); err == nil {
			crawl.MaxRobotsAge = d
		}
	}
	setBool(&crawl.IgnoreSitemap, dto.IgnoreSitemap)
	setBool(&crawl.Subdomains, dto.Subdomains)
	setBool(&crawl.Cache, dto.Cache)
	setBool(&crawl.UseCookies, dto.UseCookies)
	if dto.Cookies != nil {
		crawl.Cookies = CookiesConfig{Default: dto.Cookies.Default, PerHost: dto.Cookies.PerHost}
	}
	if dto.Headers != nil {
		crawl.Headers = dto.Headers
	}
	if dto.Proxies != nil {
		crawl.Proxies = dto.Proxies
	}
	if dto.TLD != nil {
		crawl.TLD = *dto.TLD
	}
	if dto.Delay != nil {
		if d, err := time.ParseDuration(*dto.Delay); err == nil {
			crawl.Delay = d
		}
	}
	if dto.Budget != nil {
		crawl.BudgetDefault = dto.Budget.Default.toBudgetSpec()
		if dto.Budget.PerHost != nil {
			crawl.BudgetPerHost = make(map[string]BudgetSpec, len(dto.Budget.PerHost))
			for host, b := range dto.Budget.PerHost {
				crawl.BudgetPerHost[host] = b.toBudgetSpec()
			}
		}
	}
	if dto.MaxQueueAge != nil {
		crawl.MaxQueueAge = *dto.MaxQueueAge
	}
	if dto.RedirectLimit != nil {
		crawl.RedirectLimit = *dto.RedirectLimit
	}
	if dto.RedirectPolicy != nil {
		crawl.RedirectPolicy = RedirectPolicyMode(strings.ToLower(*dto.RedirectPolicy))
	}
	setBool(&crawl.AcceptInvalidCerts, dto.AcceptInvalidCerts)
	if dto.LinkExtractors != nil {
		crawl.LinkExtractors = dto.LinkExtractors
	}
	if dto.DecodeBigFilesUpTo != nil {
		crawl.DecodeBigFilesUpTo = *dto.DecodeBigFilesUpTo
	}
	if dto.Concurrency != nil {
		crawl.Concurrency = *dto.Concurrency
	}
	if dto.BackoffInitial != nil {
		if d, err := time.ParseDuration(*dto.BackoffInitial); err == nil {
			crawl.BackoffInitial = d
		}
	}
	if dto.BackoffMax != nil {
		if d, err := time.ParseDuration(*dto.BackoffMax); err == nil {
			crawl.BackoffMax = d
		}
	}
	if dto.BackoffMultiplier != nil {
		crawl.BackoffMultiplier = *dto.BackoffMultiplier
	}
	if dto.MaxAttempts != nil {
		crawl.MaxAttempts = *dto.MaxAttempts
	}
	if dto.RequestTimeout != nil {
		if d, err := time.ParseDuration(*dto.RequestTimeout); err == nil {
			crawl.RequestTimeout = d
		}
	}
	if dto.GoneThreshold != nil {
		crawl.GoneThreshold = *dto.GoneThreshold
	}
	if dto.QuarantineFor != nil {
		if d, err := time.ParseDuration(*dto.QuarantineFor); err == nil {
			crawl.QuarantineFor = d
		}
	}
	if dto.RecrawlAfter != nil {
		if d, err := time.ParseDuration(*dto.RecrawlAfter); err == nil {
			crawl.RecrawlAfter = d
		}
	}

	return nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// envPrefix is the environment-variable namespace spec.md §6 reserves
// for configuration overrides.
const envPrefix = "ATRA_"

// ApplyEnvOverrides layers ATRA_-prefixed environment variables over
// cfg, above atra.ini/crawl.yaml and below CLI flags in the precedence
// order LoadAll establishes. Only a small, high-value subset of keys is
// exposed this way — the full key space is reachable via crawl.yaml,
// which a container/orchestrator can template far more easily than a
// flat env namespace.
func ApplyEnvOverrides(cfg *Config) {
	crawl := &cfg.crawl

	if v, ok := os.LookupEnv(envPrefix + "USER_AGENT"); ok {
		crawl.UserAgentMode = UserAgentCustom
		crawl.UserAgentString = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			crawl.Concurrency = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "DELAY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			crawl.Delay = d
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_DEPTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			crawl.BudgetDefault.MaxDepth = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "SUBDOMAINS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			crawl.Subdomains = b
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "RESPECT_ROBOTS_TXT"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			crawl.RespectRobotsTxt = b
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.system.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv(envPrefix + "ROOT"); ok {
		cfg.paths.Root = v
	}
}

// LoadAll builds a Config for seedURLs by applying, in ascending
// precedence, the built-in defaults, atra.ini at iniPath, crawl.yaml at
// yamlPath, and ATRA_-prefixed environment variables. The caller is
// expected to apply any CLI-flag overrides via the WithXxx methods and
// then call Build, since flags outrank every other source.
func LoadAll(seedURLs []url.URL, iniPath, yamlPath string) (*Config, error) {
	cfg := WithDefault(nil)
	cfg.seedURLs = seedURLs

	if err := LoadIniFile(cfg, iniPath); err != nil {
		return nil, err
	}
	if err := LoadYAMLFile(cfg, yamlPath); err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg)

	return cfg, nil
}
