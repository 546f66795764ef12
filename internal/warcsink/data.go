package warcsink

import (
	"io"
	"net/http"
	"time"

	"github.com/atracrawl/atra/internal/classifier"
)

// StepRecord is everything one completed crawl step hands the sink:
// enough to reconstruct WARC request and response records, plus the
// classification needed to decide whether the body belongs in the WARC
// itself or in the content-addressed big-file store.
type StepRecord struct {
	Request         *http.Request
	StatusCode      int
	ResponseHeaders http.Header
	Body            io.Reader // nil means the body was dropped upstream
	Format          classifier.Format
	FetchedAt       time.Time
}

// WriteResult identifies the artifact a completed WriteStep produced:
// the content fingerprint (for link-state dedup), the WARC response
// record's WARC-Record-ID, and the big-file store entry the bytes live
// at when store_only_html_in_warc diverted them (empty when the body was
// embedded in the WARC).
type WriteResult struct {
	fingerprintHex string
	warcRecordID   string
	path           string
}

func (w WriteResult) FingerprintHex() string { return w.fingerprintHex }
func (w WriteResult) WarcRecordID() string   { return w.warcRecordID }
func (w WriteResult) Path() string           { return w.path }
