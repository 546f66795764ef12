package metadata

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

/*
Recorder is the structured event recorder. Every pipeline stage reports
through it; it is observational only and never a control-flow input.

Metadata collected:
  - Fetch timestamps
  - HTTP status codes
  - Content hashes / fingerprints
  - Crawl depth

Allowed fields:
  - Primitive values, timestamps, URLs as values (not objects with
    behavior), hashes, status codes, durations, identifiers.
*/

// MetadataSink is the recording contract every component writes through.
type MetadataSink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordError(observedAt time.Time, packageName, action string, cause ErrorCause, errString string, attrs []Attribute)
	RecordArtifact(record ArtifactRecord)
}

// CrawlFinalizer records the terminal, derived run summary exactly once.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages, totalErrors, totalBlocked int, duration time.Duration)
}

type Recorder struct {
	logger    zerolog.Logger
	startedAt time.Time
}

func NewRecorder(w io.Writer, level zerolog.Level) *Recorder {
	if w == nil {
		w = os.Stderr
	}
	return &Recorder{
		logger:    zerolog.New(w).Level(level).With().Timestamp().Logger(),
		startedAt: time.Now(),
	}
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	event := FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	}
	r.logger.Info().
		Str("url", event.fetchUrl).
		Int("status", event.httpStatus).
		Dur("duration", event.duration).
		Str("content_type", event.contentType).
		Int("retries", event.retryCount).
		Int("depth", event.crawlDepth).
		Msg("fetch")
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName, action string,
	cause ErrorCause,
	errString string,
	attrs []Attribute,
) {
	record := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errString,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	evt := r.logger.Warn().
		Str("package", record.packageName).
		Str("action", record.action).
		Int("cause", int(record.cause)).
		Time("observed_at", record.observedAt)
	for _, a := range record.attrs {
		evt = evt.Str(string(a.Key), a.Value)
	}
	evt.Msg(record.errorString)
}

func (r *Recorder) RecordArtifact(record ArtifactRecord) {
	r.logger.Info().
		Str("fingerprint", record.fingerprintHex).
		Str("warc_record_id", record.warcRecordID).
		Str("path", record.path).
		Msg("artifact")
}

// RecordFinalCrawlStats is computed once, after the worker pool has fully
// drained, and must never be used to derive further control flow.
func (r *Recorder) RecordFinalCrawlStats(totalPages, totalErrors, totalBlocked int, duration time.Duration) {
	stats := crawlStats{
		totalPages:   totalPages,
		totalErrors:  totalErrors,
		totalBlocked: totalBlocked,
		durationMs:   duration.Milliseconds(),
	}
	r.logger.Info().
		Int("total_pages", stats.totalPages).
		Int("total_errors", stats.totalErrors).
		Int("total_blocked", stats.totalBlocked).
		Int64("duration_ms", stats.durationMs).
		Msg("run summary")
}

func ParseLevel(level string) zerolog.Level {
	// zerolog spells the "off" level as "disabled".
	if strings.EqualFold(level, "off") {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
