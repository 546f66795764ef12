package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var multiLogToFile bool

// multiCmd implements spec.md §6's `multi [--log-to-file] SEEDS_SPEC`:
// a multi-seed crawl driven entirely by the on-disk atra.ini/crawl.yaml
// configuration, with SEEDS_SPEC naming where the seed list comes from.
// Only the "file:<path>" form is implemented — a newline-separated seed
// URL file, as spec.md §6 specifies.
var multiCmd = &cobra.Command{
	Use:   "multi SEEDS_SPEC",
	Short: "Multi-seed crawl using the on-disk configuration.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seeds, err := resolveSeedsSpec(args[0])
		if err != nil {
			return newExitError(ExitBadConfig, err)
		}

		cfg, err := loadConfig(seeds)
		if err != nil {
			return newExitError(configLoadExitCode(err), err)
		}
		if multiLogToFile {
			sys := cfg.System()
			sys.LogToFile = true
			cfg = cfg.WithSystem(sys)
		}

		resolved, err := cfg.Build()
		if err != nil {
			return newExitError(ExitBadConfig, err)
		}

		dir := stateDirFor(resolved)
		code := runSeeds(resolved, seeds, dir)
		if code != ExitSuccess {
			return newExitError(code, fmt.Errorf("multi crawl exited with code %d", code))
		}
		return nil
	},
}

func init() {
	multiCmd.Flags().BoolVar(&multiLogToFile, "log-to-file", false, "write logs to atra.log under the state directory instead of stderr")
}

// resolveSeedsSpec parses SEEDS_SPEC. "file:<path>" reads a
// newline-separated list of seed URLs from path, skipping blank lines
// and "#"-prefixed comments.
func resolveSeedsSpec(spec string) ([]url.URL, error) {
	rest, ok := strings.CutPrefix(spec, "file:")
	if !ok {
		return nil, fmt.Errorf("unsupported seeds spec %q: only file:<path> is implemented", spec)
	}

	f, err := os.Open(rest)
	if err != nil {
		return nil, fmt.Errorf("opening seed file %s: %w", rest, err)
	}
	defer f.Close()

	var seeds []url.URL
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("parsing seed URL %q in %s: %w", line, rest, err)
		}
		seeds = append(seeds, *u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", rest, err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("seed file %s contained no URLs", rest)
	}
	return seeds, nil
}
