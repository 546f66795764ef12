package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/atracrawl/atra/internal/config"
	"github.com/atracrawl/atra/internal/extractor"
	"github.com/atracrawl/atra/internal/fetcher"
	"github.com/atracrawl/atra/internal/frontier"
	"github.com/atracrawl/atra/internal/hostguard"
	"github.com/atracrawl/atra/internal/linkstate"
	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/internal/normalize"
	"github.com/atracrawl/atra/internal/robots"
	"github.com/atracrawl/atra/internal/warcsink"
	"github.com/atracrawl/atra/internal/worker"
	"github.com/atracrawl/atra/pkg/hashutil"
	"github.com/atracrawl/atra/pkg/retry"
	"github.com/atracrawl/atra/pkg/timeutil"
)

// crawlRuntime bundles every collaborator SeedCrawl/Run need alongside
// the Supervisor itself, so main can close them in reverse order once
// Run returns.
type crawlRuntime struct {
	frontier *frontier.Frontier
	store    *linkstate.Store
	warcFile *os.File
	sup      *worker.Supervisor
}

func (r *crawlRuntime) Close() {
	if r.frontier != nil {
		r.frontier.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
	if r.warcFile != nil {
		r.warcFile.Close()
	}
}

// buildRuntime wires every leaf package (frontier, link-state, robots,
// host guard, fetcher, warc sink, extractors) into one Supervisor,
// following the exact construction order worker_test.go's harness uses
// against real collaborators. seed is the crawl's sole seed URL — multi
// invokes this once per seed, each under its own frontier/link-state
// directory pair.
func buildRuntime(cfg config.Config, seed url.URL, stateDir string) (*crawlRuntime, ExitCode, error) {
	sys := cfg.System()
	crawl := cfg.Crawl()

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, ExitFilesystem, fmt.Errorf("creating state dir %s: %w", stateDir, err)
	}

	logWriter := io.Writer(os.Stderr)
	if sys.LogToFile {
		logPath := filepath.Join(stateDir, "atra.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, ExitFilesystem, fmt.Errorf("opening log file %s: %w", logPath, err)
		}
		logWriter = f
	}
	recorder := metadata.NewRecorder(logWriter, metadata.ParseLevel(string(sys.LogLevel)))

	f, err := frontier.Open(stateDir)
	if err != nil {
		return nil, ExitInitFrontier, fmt.Errorf("opening frontier: %w", err)
	}

	store, err := linkstate.Open(filepath.Join(stateDir, cfg.Paths().DirDatabase, "atra.db"), crawl.MaxAttempts, crawl.RecrawlAfter)
	if err != nil {
		f.Close()
		return nil, ExitInitLinkState, fmt.Errorf("opening link-state store: %w", err)
	}

	blacklist, err := hostguard.LoadBlacklist(filepath.Join(stateDir, cfg.Paths().FileBlacklist))
	if err != nil {
		f.Close()
		store.Close()
		return nil, ExitInitBlacklist, fmt.Errorf("loading blacklist: %w", err)
	}

	userAgent := crawl.ResolvedUserAgent()
	httpClient := &http.Client{Timeout: crawl.RequestTimeout}
	robotsCache, err := robots.NewCache(recorder, userAgent, sys.RobotsCacheSize, crawl.MaxRobotsAge, 5*time.Minute, 10*time.Second, httpClient)
	if err != nil {
		f.Close()
		store.Close()
		return nil, ExitInitRobots, fmt.Errorf("building robots cache: %w", err)
	}

	guard := hostguard.NewGuard(robotsCache, blacklist, store, recorder, hostguard.Config{
		BaseDelay:      crawl.Delay,
		BackoffInitial: crawl.BackoffInitial,
		BackoffMax:     crawl.BackoffMax,
		BackoffMult:    crawl.BackoffMultiplier,
		GoneThreshold:  crawl.GoneThreshold,
		QuarantineFor:  crawl.QuarantineFor,
	})

	bigFilesDir := filepath.Join(stateDir, cfg.Paths().DirBigFiles)
	bigFiles := warcsink.NewBigFileStore(bigFilesDir, hashutil.HashAlgoBLAKE3)

	warcPath := filepath.Join(stateDir, "crawl.warc.gz")
	warcFile, err := os.OpenFile(warcPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		f.Close()
		store.Close()
		return nil, ExitFilesystem, fmt.Errorf("opening warc output %s: %w", warcPath, err)
	}

	warcSink, err := warcsink.NewWarcSink(recorder, warcFile, bigFiles, hashutil.HashAlgoBLAKE3, false)
	if err != nil {
		f.Close()
		store.Close()
		warcFile.Close()
		return nil, ExitInitWarcSink, fmt.Errorf("building warc sink: %w", err)
	}

	bodySink := fetcher.NewBodySink(bigFilesDir, sys.MaxFileSizeInMemory, sys.MaxTempFileSizeOnDisc)
	httpFetcher := fetcher.NewHttpFetcher(recorder, bodySink)

	extractors := worker.DefaultExtractorEntries(recorder, extractor.HtmlOptions{RespectNofollow: crawl.RespectNofollow})

	hostKey := normalize.HostKey(seed, crawl.Subdomains)
	workerCfg := worker.Config{
		Concurrency: crawl.Concurrency,
		Seed:        seed,
		SeedHostKey: hostKey,
		Budget:      crawl.BudgetDefault.ToHostguardBudget(),
		Subdomains:  crawl.Subdomains,
		UserAgent:   userAgent,
		RequestParam: worker.FetchPolicy{
			Timeout:        crawl.RequestTimeout,
			RedirectPolicy: crawl.RedirectPolicy.ToFetcherPolicy(),
			RedirectLimit:  crawl.RedirectLimit,
			Headers:        crawl.Headers,
			CookieHeader:   crawl.Cookies.Default,
		},
		RetryParam: retry.NewRetryParam(
			crawl.BackoffInitial, 100*time.Millisecond, time.Now().UnixNano(), crawl.MaxAttempts,
			timeutil.NewBackoffParam(crawl.BackoffInitial, crawl.BackoffMultiplier, crawl.BackoffMax),
		),
		RespectNofollow:    crawl.RespectNofollow,
		DecodeBigFilesUpTo: crawl.DecodeBigFilesUpTo,
	}

	sup := worker.NewSupervisor(workerCfg, f, store, guard, httpFetcher, warcSink, recorder, recorder, extractors)

	return &crawlRuntime{frontier: f, store: store, warcFile: warcFile, sup: sup}, ExitSuccess, nil
}
