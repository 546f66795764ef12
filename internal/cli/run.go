package cli

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/atracrawl/atra/internal/config"
	"github.com/atracrawl/atra/internal/worker"
)

// runSeeds crawls each seed URL in turn, each under its own
// "<baseStateDir>/<seed-host>" state directory so independent seeds never
// contend for the same frontier/link-state files. Returns the first
// non-success exit code encountered, continuing past per-seed failures
// so one bad seed doesn't abort the rest of a multi-seed run.
func runSeeds(cfg config.Config, seeds []url.URL, baseStateDir string) ExitCode {
	worst := ExitSuccess
	for _, seed := range seeds {
		stateDir := filepath.Join(baseStateDir, seed.Hostname())
		code := runSeed(cfg, seed, stateDir)
		if code != ExitSuccess && worst == ExitSuccess {
			worst = code
		}
	}
	return worst
}

func runSeed(cfg config.Config, seed url.URL, stateDir string) ExitCode {
	rt, code, err := buildRuntime(cfg, seed, stateDir)
	if err != nil {
		fmt.Printf("init failed for %s: %v\n", seed.String(), err)
		return code
	}
	defer rt.Close()

	ctx := context.Background()
	if err := rt.sup.SeedCrawl(ctx); err != nil {
		fmt.Printf("seeding %s failed: %v\n", seed.String(), err)
		return mapWorkerError(err)
	}

	stats, err := rt.sup.Run(ctx)
	if err != nil {
		fmt.Printf("crawl of %s failed: %v\n", seed.String(), err)
		return mapWorkerError(err)
	}

	fmt.Printf("%s: %d pages, %d errors, %d blocked, %v\n",
		seed.String(), stats.TotalPages, stats.TotalErrors, stats.TotalBlocked, stats.Duration)
	return ExitSuccess
}

func mapWorkerError(err error) ExitCode {
	werr, ok := err.(*worker.WorkerError)
	if !ok {
		return ExitUnknown
	}
	switch werr.Cause {
	case worker.ErrCauseFrontierIO:
		return ExitStepQueueIO
	case worker.ErrCauseLinkStateIO:
		return ExitStepLinkWrite
	default:
		return ExitUnknown
	}
}
