// Package worker is the fixed-size pool of concurrent worker tasks that
// drives the pipeline's steady-state loop: dequeue from the frontier,
// claim in the link-state store, fetch, classify, extract, archive, and
// complete — discovering and admitting new candidates along the way.
//
// This generalizes the teacher's single-threaded scheduler.Scheduler
// (internal/scheduler/scheduler.go's SubmitUrlForAdmission/ExecuteCrawling
// loop) into a concurrent pool of N identical workers coordinated through
// the same collaborators this package's siblings already implement —
// frontier, linkstate, hostguard, fetcher, classifier, extractor,
// warcsink — rather than the teacher's markdown-pipeline-specific
// sanitizer/mdconvert/assets collaborators.
package worker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/internal/extractor"
	"github.com/atracrawl/atra/internal/fetcher"
	"github.com/atracrawl/atra/internal/frontier"
	"github.com/atracrawl/atra/internal/hostguard"
	"github.com/atracrawl/atra/internal/linkstate"
	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/internal/normalize"
	"github.com/atracrawl/atra/internal/warcsink"
	"github.com/atracrawl/atra/pkg/failure"
	"golang.org/x/sync/errgroup"
)

// Supervisor owns the worker pool and every collaborator a worker's
// pipeline step drives. It is built once per crawl and is not reusable
// across Run calls.
type Supervisor struct {
	cfg Config

	frontier   *frontier.Frontier
	linkstate  *linkstate.Store
	guard      *hostguard.Guard
	fetcher    fetcher.Fetcher
	sink       warcsink.Sink
	metadata   metadata.MetadataSink
	finalizer  metadata.CrawlFinalizer
	extractors []extractor.Entry

	inFlight     atomic.Int64
	totalPages   atomic.Int64
	totalErrors  atomic.Int64
	totalBlocked atomic.Int64
}

func NewSupervisor(
	cfg Config,
	f *frontier.Frontier,
	ls *linkstate.Store,
	guard *hostguard.Guard,
	ftch fetcher.Fetcher,
	sink warcsink.Sink,
	metadataSink metadata.MetadataSink,
	finalizer metadata.CrawlFinalizer,
	extractors []extractor.Entry,
) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		frontier:   f,
		linkstate:  ls,
		guard:      guard,
		fetcher:    ftch,
		sink:       sink,
		metadata:   metadataSink,
		finalizer:  finalizer,
		extractors: extractors,
	}
}

// SeedCrawl admits the seed URL itself, the one candidate no extractor
// discovered, through the same robots/blacklist/quarantine/budget gate
// admitCandidate applies to discovered links (spec.md §4.4 step 1, §8's
// "no URL is Blocked by robots and also has a successful fetch"). Call
// once before Run.
func (sup *Supervisor) SeedCrawl(ctx context.Context) error {
	fp := normalize.Fingerprint(sup.cfg.Seed)
	if err := sup.linkstate.RecordDiscovery(fp, sup.cfg.Seed.String(), linkstate.Depths{}, 0); err != nil {
		return &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseLinkStateIO}
	}

	decision, err := sup.guard.Admit(ctx, sup.cfg.Seed, sup.cfg.SeedHostKey, sup.cfg.SeedHostKey, linkstate.Depths{}, sup.cfg.Budget)
	if err != nil {
		return &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseLinkStateIO}
	}
	if !decision.Allowed {
		reason := linkstate.BlockBlacklist
		if decision.Reason == hostguard.AdmitBlockedRobots {
			reason = linkstate.BlockRobots
		}
		if err := sup.linkstate.MarkBlocked(fp, reason); err != nil {
			return &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseLinkStateIO}
		}
		return nil
	}

	if err := sup.frontier.Enqueue(frontier.QueueEntry{
		Fingerprint:      fp,
		HostKey:          sup.cfg.SeedHostKey,
		EarliestEligible: time.Now(),
	}); err != nil {
		return &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseFrontierIO}
	}
	return nil
}

// Run starts the pool and blocks until either every worker has observed
// an empty frontier with nothing in flight (steady-state drain) or ctx /
// SIGINT / SIGTERM signals shutdown — in which case workers finish their
// current step and exit without picking up new work, per spec.md §4.10.
func (sup *Supervisor) Run(ctx context.Context) (Stats, error) {
	start := time.Now()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(sigCtx)

	quiescent := make(chan struct{})
	var quiescentOnce sync.Once
	done := mergeDone(groupCtx.Done(), quiescent)

	for i := 0; i < sup.workerCount(); i++ {
		group.Go(func() error {
			return sup.workerLoop(groupCtx, done, quiescent, &quiescentOnce)
		})
	}

	err := group.Wait()

	stats := Stats{
		TotalPages:   int(sup.totalPages.Load()),
		TotalErrors:  int(sup.totalErrors.Load()),
		TotalBlocked: int(sup.totalBlocked.Load()),
		Duration:     time.Since(start),
	}
	sup.finalizer.RecordFinalCrawlStats(stats.TotalPages, stats.TotalErrors, stats.TotalBlocked, stats.Duration)
	return stats, err
}

func (sup *Supervisor) workerCount() int {
	if sup.cfg.Concurrency < 1 {
		return 1
	}
	return sup.cfg.Concurrency
}

// workerLoop is the per-worker steady-state cycle. It never aborts a
// step already underway on shutdown — it only declines to start a new
// one once groupCtx is done, the "next suspension point" spec.md §5
// describes.
func (sup *Supervisor) workerLoop(groupCtx context.Context, done <-chan struct{}, quiescent chan struct{}, once *sync.Once) error {
	for {
		select {
		case <-groupCtx.Done():
			return nil
		default:
		}

		entry, found, err := sup.frontier.DequeueReady(time.Now())
		if err != nil {
			return &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseFrontierIO}
		}
		if !found {
			if sup.frontier.Empty() && sup.inFlight.Load() == 0 {
				once.Do(func() { close(quiescent) })
				return nil
			}
			sup.frontier.WaitFor(done)
			continue
		}

		sup.inFlight.Add(1)
		stepErr := sup.processStep(groupCtx, entry)
		sup.inFlight.Add(-1)
		if stepErr != nil {
			return stepErr
		}
	}
}

// mergeDone fans two done channels into one closed-on-either signal.
func mergeDone(a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		select {
		case <-a:
		case <-b:
		}
		close(out)
	}()
	return out
}

// processStep drives one dequeued entry through claim -> wait -> fetch
// -> classify -> extract -> admit-discovered-links -> archive -> complete.
// Fetch/classify/extract/guard failures are recorded through the
// metadata sink and fold into a Failed Complete() outcome rather than
// propagating. Only a non-nil return here means the link-state store
// itself is failing — the one class of error that halts the whole pool,
// since nothing downstream can make progress without it.
func (sup *Supervisor) processStep(ctx context.Context, entry frontier.QueueEntry) error {
	depths := linkstate.Depths{FromSeed: entry.DepthFromSeed, OnHost: entry.DepthOnHost}

	claim, err := sup.linkstate.TryClaim(entry.Fingerprint, depths, entry.Origin)
	if err != nil {
		werr := &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseLinkStateIO}
		sup.recordFatal(werr, "processStep.TryClaim")
		return werr
	}
	if claim != linkstate.Claimed {
		return nil
	}

	rec, found, err := sup.linkstate.Snapshot(entry.Fingerprint)
	if err != nil {
		werr := &WorkerError{Message: err.Error(), Retryable: false, Cause: ErrCauseLinkStateIO}
		sup.recordFatal(werr, "processStep.Snapshot")
		return werr
	}
	if !found || rec.RawURL == "" {
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		return nil
	}

	target, perr := url.Parse(rec.RawURL)
	if perr != nil {
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		return nil
	}

	if err := sup.guard.Wait(ctx, target.Host); err != nil {
		// Shutdown signaled mid-wait; leave the entry InProgress for
		// crash-safe recovery rather than marking it Failed.
		return nil
	}

	fetchResult, classifiedErr := sup.fetchOne(*target, entry.DepthFromSeed)
	if classifiedErr != nil {
		sup.totalErrors.Add(1)
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		return nil
	}

	outcome := sup.guard.ClassifyStatus(target.Host, entry.HostKey, fetchResult.Code())
	switch outcome {
	case hostguard.StatusRequeueBackoff:
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		sup.requeue(entry, target.Host)
		return nil
	case hostguard.StatusFailedNotFound:
		sup.totalErrors.Add(1)
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailNotFound})
		return nil
	case hostguard.StatusFailedHttpClient:
		sup.totalErrors.Add(1)
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		return nil
	case hostguard.StatusBlockedGone:
		sup.totalBlocked.Add(1)
		sup.linkstate.MarkBlocked(entry.Fingerprint, linkstate.BlockGone)
		return nil
	}

	sup.processBody(ctx, entry, *target, fetchResult)
	return nil
}

func (sup *Supervisor) fetchOne(target url.URL, crawlDepth int) (fetcher.FetchResult, failure.ClassifiedError) {
	param := fetcher.NewFetchParam(target, sup.cfg.UserAgent).
		WithHeaders(sup.cfg.RequestParam.Headers).
		WithCookieHeader(sup.cfg.RequestParam.CookieHeader).
		WithTimeout(sup.cfg.RequestParam.Timeout).
		WithRedirectPolicy(sup.cfg.RequestParam.RedirectPolicy, sup.cfg.RequestParam.RedirectLimit, sup.cfg.SeedHostKey)

	fetchCtx, cancel := context.WithTimeout(context.Background(), sup.cfg.RequestParam.Timeout)
	defer cancel()
	return sup.fetcher.Fetch(fetchCtx, crawlDepth, param, sup.cfg.RetryParam)
}

func (sup *Supervisor) recordFatal(err *WorkerError, action string) {
	sup.metadata.RecordError(time.Now(), "worker", action, metadata.CauseStorageFailure, err.Error(), nil)
}

// requeue schedules entry's next eligible attempt after a backoff delay.
// host is the wire host (target.Host) — the same key guard.Wait and
// guard.ClassifyStatus used for this request — not entry.HostKey, which is
// the registrable domain and indexes a different limiter bucket.
func (sup *Supervisor) requeue(entry frontier.QueueEntry, host string) {
	delay := sup.guard.ResolveDelay(host)
	entry.EarliestEligible = time.Now().Add(delay)
	sup.frontier.Requeue(entry)
}

// processBody classifies and extracts the fetched body, archives the
// step, and admits every discovered, in-budget candidate. Classification
// only ever reads a small sniff window; extraction reads the full body
// into memory only when it's within DecodeBigFilesUpTo. The archive
// write (writeStep) always opens its own fresh stream from the handle,
// so a body that spilled to disk past max_file_size_in_memory is never
// buffered whole just to hand it to the sink.
func (sup *Supervisor) processBody(ctx context.Context, entry frontier.QueueEntry, target url.URL, fetchResult fetcher.FetchResult) {
	readerAt, size, closer, err := fetchResult.Handle().ReaderAt()
	if err != nil {
		sup.totalErrors.Add(1)
		sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
		return
	}
	defer closer.Close()

	sniff := make([]byte, sniffLen(size))
	if len(sniff) > 0 {
		if _, err := readerAt.ReadAt(sniff, 0); err != nil && err != io.EOF {
			sup.totalErrors.Add(1)
			sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
			return
		}
	}

	// openArchive hands the classifier random access to the body already
	// opened above (mmap'd for spilled bodies) rather than reopening it;
	// its own Closer is a no-op since the defer above owns the lifetime.
	openArchive := func() (io.ReaderAt, int64, io.Closer, error) {
		return readerAt, size, io.NopCloser(nil), nil
	}

	contentType := fetchResult.Headers()["Content-Type"]
	format := classifier.Classify(contentType, target.Path, sniff, openArchive)

	var result extractor.Result
	if sup.cfg.DecodeBigFilesUpTo <= 0 || size <= sup.cfg.DecodeBigFilesUpTo {
		body := make([]byte, size)
		if size > 0 {
			if _, err := readerAt.ReadAt(body, 0); err != nil && err != io.EOF {
				sup.totalErrors.Add(1)
				sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: false, Reason: linkstate.FailHttpClient})
				return
			}
		}
		result, _ = extractor.Dispatch(sup.extractors, target, body, format)
	}

	if err := sup.writeStep(entry, target, format, fetchResult); err != nil {
		sup.totalErrors.Add(1)
	}

	sup.totalPages.Add(1)
	sup.linkstate.Complete(entry.Fingerprint, linkstate.Outcome{Success: true})

	for _, candidate := range result.Candidates {
		if candidate.Nofollow && sup.cfg.RespectNofollow {
			continue
		}
		if result.DocumentNofollow && sup.cfg.RespectNofollow {
			continue
		}
		sup.admitCandidate(ctx, entry, target, candidate)
	}
}

// writeStep opens its own fresh stream from the fetched body — a
// bytes.Reader for the in-memory variant, a reopened file for the
// spilled one (BodyHandle.Reader's contract) — rather than reusing
// whatever buffer classification/extraction may have already
// materialized, so archiving a spilled body never requires it to be
// resident in memory.
func (sup *Supervisor) writeStep(entry frontier.QueueEntry, target url.URL, format classifier.Format, fetchResult fetcher.FetchResult) error {
	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	headers := http.Header{}
	for k, v := range fetchResult.Headers() {
		headers.Set(k, v)
	}

	bodyReader, err := fetchResult.Handle().Reader()
	if err != nil {
		return err
	}
	defer bodyReader.Close()

	_, writeErr := sup.sink.WriteStep(warcsink.StepRecord{
		Request:         req,
		StatusCode:      fetchResult.Code(),
		ResponseHeaders: headers,
		Body:            bodyReader,
		Format:          format,
		FetchedAt:       fetchResult.FetchedAt(),
	})
	if writeErr != nil {
		return writeErr
	}
	return nil
}

// sniffLen caps how much of a body classification reads upfront; never
// more than the body actually holds. classifier.Classify truncates
// further to its own sniff window, so this only needs to be generous
// enough to cover it.
const sniffWindowUpperBound = 4096

func sniffLen(size int64) int64 {
	if size < sniffWindowUpperBound {
		return size
	}
	return sniffWindowUpperBound
}

// admitCandidate normalizes a discovered link and runs it through the
// host guard's blacklist/quarantine/robots/budget checks. A candidate that
// passes is recorded and enqueued; one rejected only by the budget is
// still recorded but not enqueued — spec.md §4.8's "normalized, checked
// against robots and the blacklist, recorded... and, if within budget,
// enqueued."
func (sup *Supervisor) admitCandidate(ctx context.Context, parent frontier.QueueEntry, base url.URL, candidate extractor.LinkCandidate) {
	normalized, err := normalize.Normalize(candidate.RawHref, &base)
	if err != nil {
		return
	}

	fp := normalize.Fingerprint(normalized)
	hostKey := normalize.HostKey(normalized, sup.cfg.Subdomains)
	depths := linkstate.Depths{FromSeed: parent.DepthFromSeed + 1}
	if hostKey == parent.HostKey {
		depths.OnHost = parent.DepthOnHost + 1
	}

	decision, err := sup.guard.Admit(ctx, normalized, hostKey, sup.cfg.SeedHostKey, depths, sup.cfg.Budget)
	if err != nil || (!decision.Allowed && decision.Reason != hostguard.AdmitBudgetExceeded) {
		return
	}

	if err := sup.linkstate.RecordDiscovery(fp, normalized.String(), depths, parent.Fingerprint); err != nil {
		return
	}
	sup.linkstate.AddEdge(parent.Fingerprint, fp)
	if !decision.Allowed {
		return
	}

	sup.frontier.Enqueue(frontier.QueueEntry{
		Fingerprint:      fp,
		HostKey:          hostKey,
		DepthFromSeed:    depths.FromSeed,
		DepthOnHost:      depths.OnHost,
		EarliestEligible: time.Now(),
		Origin:           parent.Fingerprint,
	})
}

