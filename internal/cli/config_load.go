package cli

import (
	"errors"
	"net/url"
	"path/filepath"

	"github.com/atracrawl/atra/internal/config"
)

// loadConfig builds a Config for seeds from atra.ini/crawl.yaml under
// --config-dir, layered with ATRA_-prefixed environment overrides, per
// the precedence LoadAll establishes. CLI-flag overrides are applied by
// the caller afterward, then Build validates the result.
func loadConfig(seeds []url.URL) (*config.Config, error) {
	iniPath := filepath.Join(configDir, "atra.ini")
	yamlPath := filepath.Join(configDir, "crawl.yaml")
	return config.LoadAll(seeds, iniPath, yamlPath)
}

// configLoadExitCode maps a config-loading error onto spec.md §6's exit
// code taxonomy: 3 for a semantically invalid config, 4 for a config
// file that failed to parse, 2 for anything else (missing directories,
// permission errors).
func configLoadExitCode(err error) ExitCode {
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitBadConfig
	case errors.Is(err, config.ErrConfigParsingFail):
		return ExitConfigDeserialization
	default:
		return ExitFilesystem
	}
}

// stateDirFor resolves the crawl's on-disk state root: --state-dir if
// given, otherwise the resolved Config's paths.root.
func stateDirFor(cfg config.Config) string {
	if stateDir != "" {
		return stateDir
	}
	return cfg.Paths().Root
}
