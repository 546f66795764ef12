package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustSeed(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %v", raw, err)
	}
	return *u
}

func TestWithDefaultBuildsSuccessfully(t *testing.T) {
	seed := mustSeed(t, "https://example.com/")
	cfg, err := WithDefault([]url.URL{seed}).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if cfg.Crawl().BudgetDefault.Kind != BudgetNormal {
		t.Errorf("default budget kind = %v, want BudgetNormal", cfg.Crawl().BudgetDefault.Kind)
	}
	if cfg.Crawl().RedirectPolicy != RedirectPolicyLoose {
		t.Errorf("default redirect policy = %v, want loose", cfg.Crawl().RedirectPolicy)
	}
}

func TestBuildRequiresAtLeastOneSeed(t *testing.T) {
	_, err := WithDefault(nil).Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Build() error = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildRejectsUnsupportedScheme(t *testing.T) {
	seed := mustSeed(t, "ftp://example.com/")
	_, err := WithDefault([]url.URL{seed}).Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Build() error = %v, want ErrInvalidConfig", err)
	}
}

func TestBuildRejectsCustomUserAgentWithoutString(t *testing.T) {
	seed := mustSeed(t, "https://example.com/")
	_, err := WithDefault([]url.URL{seed}).WithUserAgent(UserAgentCustom, "").Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Build() error = %v, want ErrInvalidConfig", err)
	}
}

func TestWithConcurrencyOverridesDefault(t *testing.T) {
	seed := mustSeed(t, "https://example.com/")
	cfg, err := WithDefault([]url.URL{seed}).WithConcurrency(8).Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if cfg.Crawl().Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Crawl().Concurrency)
	}
}

func TestResolvedUserAgentModes(t *testing.T) {
	cases := []struct {
		mode   UserAgentMode
		custom string
		want   string
	}{
		{UserAgentCustom, "my-bot/2.0", "my-bot/2.0"},
		{UserAgentDefault, "", "atra/1.0 (+https://github.com/atracrawl/atra)"},
	}
	for _, tc := range cases {
		crawl := CrawlConfig{UserAgentMode: tc.mode, UserAgentString: tc.custom}
		if got := crawl.ResolvedUserAgent(); got != tc.want {
			t.Errorf("ResolvedUserAgent(%v) = %q, want %q", tc.mode, got, tc.want)
		}
	}
}

func TestLoadIniFileMissingIsNotAnError(t *testing.T) {
	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	wantLevel := cfg.system.LogLevel
	if err := LoadIniFile(cfg, filepath.Join(t.TempDir(), "missing.ini")); err != nil {
		t.Fatalf("LoadIniFile(missing) returned error: %v", err)
	}
	if cfg.system.LogLevel != wantLevel {
		t.Errorf("LogLevel mutated by a missing file: got %v", cfg.system.LogLevel)
	}
}

func TestLoadIniFileOverridesSystemPathsSession(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "atra.ini")
	contents := "[system]\nlog_level = debug\nrobots_cache_size = 77\n\n[paths]\nroot = /data/atra\n\n[session]\nservice = svc-x\n"
	if err := os.WriteFile(iniPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	if err := LoadIniFile(cfg, iniPath); err != nil {
		t.Fatalf("LoadIniFile returned error: %v", err)
	}
	if cfg.system.LogLevel != LogDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.system.LogLevel)
	}
	if cfg.system.RobotsCacheSize != 77 {
		t.Errorf("RobotsCacheSize = %d, want 77", cfg.system.RobotsCacheSize)
	}
	if cfg.paths.Root != "/data/atra" {
		t.Errorf("Paths.Root = %q, want /data/atra", cfg.paths.Root)
	}
	if cfg.session.Service != "svc-x" {
		t.Errorf("Session.Service = %q, want svc-x", cfg.session.Service)
	}
}

func TestLoadIniFileMalformedIsParsingError(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "atra.ini")
	if err := os.WriteFile(iniPath, []byte("[unterminated"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	err := LoadIniFile(cfg, iniPath)
	if !errors.Is(err, ErrConfigParsingFail) {
		t.Fatalf("LoadIniFile error = %v, want ErrConfigParsingFail", err)
	}
}

func TestLoadYAMLFileOverridesCrawlGroup(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "crawl.yaml")
	contents := "subdomains: false\ndelay: 2500ms\nbudget:\n  default:\n    kind: absolute\n    max_depth: 5\n    max_depth_on_host: 2\n    max_jump: 1\nconcurrency: 16\n"
	if err := os.WriteFile(yamlPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	if err := LoadYAMLFile(cfg, yamlPath); err != nil {
		t.Fatalf("LoadYAMLFile returned error: %v", err)
	}
	if cfg.crawl.Subdomains {
		t.Error("Subdomains = true, want false after override")
	}
	if cfg.crawl.Delay != 2500*time.Millisecond {
		t.Errorf("Delay = %v, want 2.5s", cfg.crawl.Delay)
	}
	if cfg.crawl.BudgetDefault.Kind != BudgetAbsolute || cfg.crawl.BudgetDefault.MaxDepth != 5 {
		t.Errorf("BudgetDefault = %+v, want Absolute depth 5", cfg.crawl.BudgetDefault)
	}
	if cfg.crawl.Concurrency != 16 {
		t.Errorf("Concurrency = %d, want 16", cfg.crawl.Concurrency)
	}
}

func TestLoadYAMLFileOmittedKeysDoNotResetDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "crawl.yaml")
	if err := os.WriteFile(yamlPath, []byte("subdomains: false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	wantRedirectLimit := cfg.crawl.RedirectLimit
	if err := LoadYAMLFile(cfg, yamlPath); err != nil {
		t.Fatalf("LoadYAMLFile returned error: %v", err)
	}
	if cfg.crawl.RedirectLimit != wantRedirectLimit {
		t.Errorf("RedirectLimit reset by an omitted key: got %d, want %d", cfg.crawl.RedirectLimit, wantRedirectLimit)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ATRA_CONCURRENCY", "4")
	t.Setenv("ATRA_DELAY", "750ms")
	t.Setenv("ATRA_SUBDOMAINS", "false")
	t.Setenv("ATRA_LOG_LEVEL", "trace")

	cfg := WithDefault([]url.URL{mustSeed(t, "https://example.com/")})
	ApplyEnvOverrides(cfg)

	if cfg.crawl.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.crawl.Concurrency)
	}
	if cfg.crawl.Delay != 750*time.Millisecond {
		t.Errorf("Delay = %v, want 750ms", cfg.crawl.Delay)
	}
	if cfg.crawl.Subdomains {
		t.Error("Subdomains = true, want false")
	}
	if cfg.system.LogLevel != LogTrace {
		t.Errorf("LogLevel = %v, want trace", cfg.system.LogLevel)
	}
}

func TestLoadAllPrecedenceEnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "atra.ini")
	yamlPath := filepath.Join(dir, "crawl.yaml")
	if err := os.WriteFile(iniPath, []byte("[system]\nlog_level = warn\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	if err := os.WriteFile(yamlPath, []byte("concurrency: 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	t.Setenv("ATRA_CONCURRENCY", "9")

	cfg, err := LoadAll([]url.URL{mustSeed(t, "https://example.com/")}, iniPath, yamlPath)
	if err != nil {
		t.Fatalf("LoadAll returned error: %v", err)
	}
	if cfg.system.LogLevel != LogWarn {
		t.Errorf("LogLevel = %v, want warn (from atra.ini)", cfg.system.LogLevel)
	}
	if cfg.crawl.Concurrency != 9 {
		t.Errorf("Concurrency = %d, want 9 (env overrides crawl.yaml)", cfg.crawl.Concurrency)
	}
}

func TestGenerateExampleConfigWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateExampleConfig(dir); err != nil {
		t.Fatalf("GenerateExampleConfig returned error: %v", err)
	}
	for _, name := range []string{"atra.ini", "crawl.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestGenerateExampleConfigRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateExampleConfig(dir); err != nil {
		t.Fatalf("first GenerateExampleConfig returned error: %v", err)
	}
	err := GenerateExampleConfig(dir)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("second GenerateExampleConfig error = %v, want ErrInvalidConfig", err)
	}
}
