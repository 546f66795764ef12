package warcsink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"git.autistici.org/ale/crawl/warc"
	"github.com/atracrawl/atra/internal/classifier"
	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/pkg/failure"
	"github.com/atracrawl/atra/pkg/hashutil"
)

/*
Responsibilities
- Write a WARC request record and a WARC response (or metadata) record
  per completed crawl step
- Divert every non-HTML body to the content-addressed big-file store
  when store_only_html_in_warc is set, leaving a hint record behind
- Guarantee a step's records are written consecutively — a writer
  failure mid-step propagates immediately so the caller can mark the
  step Failed and retry it, rather than leaving a half-written step
*/
type Sink interface {
	WriteStep(record StepRecord) (WriteResult, failure.ClassifiedError)
}

type WarcSink struct {
	metadataSink        metadata.MetadataSink
	warcWriter          *warc.Writer
	bigFiles            *BigFileStore
	hashAlgo            hashutil.HashAlgo
	storeOnlyHTMLInWarc bool
	warcInfoID          string

	mu sync.Mutex
}

// NewWarcSink opens a new WARC stream over w and writes the single
// warcinfo record every subsequent request/response record references.
func NewWarcSink(
	metadataSink metadata.MetadataSink,
	w io.Writer,
	bigFiles *BigFileStore,
	hashAlgo hashutil.HashAlgo,
	storeOnlyHTMLInWarc bool,
) (*WarcSink, error) {
	warcWriter := warc.NewWriter(w)

	info := "software: atra/1.0\r\n" +
		"format: WARC File Format 1.0\r\n" +
		"conformsTo: http://bibnum.bnf.fr/WARC/WARC_ISO_28500_version1_latestdraft.pdf\r\n"

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "warcinfo")
	hdr.Set("Content-Length", strconv.Itoa(len(info)))
	rec := warcWriter.NewRecord(hdr)
	if _, err := io.WriteString(rec, info); err != nil {
		return nil, fmt.Errorf("writing warcinfo record: %w", err)
	}
	if err := rec.Close(); err != nil {
		return nil, fmt.Errorf("closing warcinfo record: %w", err)
	}

	return &WarcSink{
		metadataSink:        metadataSink,
		warcWriter:          warcWriter,
		bigFiles:            bigFiles,
		hashAlgo:            hashAlgo,
		storeOnlyHTMLInWarc: storeOnlyHTMLInWarc,
		warcInfoID:          hdr.Get("WARC-Record-ID"),
	}, nil
}

func (s *WarcSink) WriteStep(record StepRecord) (WriteResult, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeResult, err := s.writeStep(record)
	if err != nil {
		var sinkError *SinkError
		errors.As(err, &sinkError)
		s.metadataSink.RecordError(
			time.Now(),
			"warcsink",
			"WarcSink.WriteStep",
			mapSinkErrorToMetadataCause(sinkError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, record.Request.URL.String()),
			},
		)
		return WriteResult{}, sinkError
	}

	s.metadataSink.RecordArtifact(
		metadata.NewArtifactRecord(writeResult.FingerprintHex(), writeResult.WarcRecordID(), writeResult.Path()),
	)
	return writeResult, nil
}

func (s *WarcSink) writeStep(record StepRecord) (WriteResult, *SinkError) {
	if err := s.writeRequestRecord(record); err != nil {
		return WriteResult{}, err
	}

	if record.Body == nil {
		recordID, err := s.writeMetadataOnlyRecord(record)
		if err != nil {
			return WriteResult{}, err
		}
		return WriteResult{warcRecordID: recordID}, nil
	}

	divertToBigFile := s.storeOnlyHTMLInWarc && record.Format != classifier.Html && s.bigFiles != nil
	if divertToBigFile {
		return s.writeDivertedResponse(record)
	}
	return s.writeInlineResponse(record)
}

func (s *WarcSink) writeRequestRecord(record StepRecord) *SinkError {
	var buf bytes.Buffer
	if err := record.Request.Write(&buf); err != nil {
		return &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
	}

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "request")
	hdr.Set("WARC-Target-URI", record.Request.URL.String())
	hdr.Set("WARC-Warcinfo-ID", s.warcInfoID)
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))
	hdr.Set("WARC-Date", record.FetchedAt.UTC().Format(time.RFC3339))

	rec := s.warcWriter.NewRecord(hdr)
	if _, err := rec.Write(buf.Bytes()); err != nil {
		return &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	if err := rec.Close(); err != nil {
		return &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

// writeInlineResponse embeds the full status-line/headers/body payload
// in a single WARC response record, the shape spec.md §4.9 defaults to.
func (s *WarcSink) writeInlineResponse(record StepRecord) (WriteResult, *SinkError) {
	body, err := io.ReadAll(record.Body)
	if err != nil {
		return WriteResult{}, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailure}
	}

	hashHex, hashErr := hashutil.HashBytes(body, s.hashAlgo)
	if hashErr != nil {
		return WriteResult{}, &SinkError{Message: hashErr.Error(), Retryable: false, Cause: ErrCauseHashComputationFailed}
	}

	statusLine := fmt.Sprintf("HTTP/1.1 %d %s", record.StatusCode, http.StatusText(record.StatusCode))
	var headerBuf bytes.Buffer
	record.ResponseHeaders.Write(&headerBuf)
	payload := bytes.Join([][]byte{[]byte(statusLine), headerBuf.Bytes(), body}, []byte{'\r', '\n'})

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "response")
	hdr.Set("WARC-Target-URI", record.Request.URL.String())
	hdr.Set("WARC-Warcinfo-ID", s.warcInfoID)
	hdr.Set("Content-Length", strconv.Itoa(len(payload)))
	hdr.Set("WARC-Date", record.FetchedAt.UTC().Format(time.RFC3339))
	hdr.Set(fingerprintHeader(s.hashAlgo), hashHex)

	rec := s.warcWriter.NewRecord(hdr)
	if _, err := rec.Write(payload); err != nil {
		return WriteResult{}, &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	if err := rec.Close(); err != nil {
		return WriteResult{}, &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}

	return WriteResult{
		fingerprintHex: hashHex,
		warcRecordID:   hdr.Get("WARC-Record-ID"),
	}, nil
}

// writeDivertedResponse streams the body into the big-file store and
// leaves a hint record in the WARC carrying (url, hash, size, path), per
// spec.md §4.9's store_only_html_in_warc behavior.
func (s *WarcSink) writeDivertedResponse(record StepRecord) (WriteResult, *SinkError) {
	path, hashHex, size, storeErr := s.bigFiles.Store(record.Body)
	if storeErr != nil {
		return WriteResult{}, storeErr
	}

	hint := fmt.Sprintf(
		"WARC-Target-URI: %s\r\nBigFile-Hash: %s\r\nBigFile-Size: %d\r\nBigFile-Path: %s\r\n",
		record.Request.URL.String(), hashHex, size, path,
	)

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "metadata")
	hdr.Set("WARC-Target-URI", record.Request.URL.String())
	hdr.Set("WARC-Warcinfo-ID", s.warcInfoID)
	hdr.Set("Content-Type", "application/atra-bigfile-hint")
	hdr.Set("Content-Length", strconv.Itoa(len(hint)))
	hdr.Set("WARC-Date", record.FetchedAt.UTC().Format(time.RFC3339))

	rec := s.warcWriter.NewRecord(hdr)
	if _, err := io.WriteString(rec, hint); err != nil {
		return WriteResult{}, &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	if err := rec.Close(); err != nil {
		return WriteResult{}, &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}

	return WriteResult{
		fingerprintHex: hashHex,
		warcRecordID:   hdr.Get("WARC-Record-ID"),
		path:           path,
	}, nil
}

// writeMetadataOnlyRecord handles the "body was dropped upstream" case
// (e.g. a non-2xx status hostguard lets through without a body to keep).
func (s *WarcSink) writeMetadataOnlyRecord(record StepRecord) (string, *SinkError) {
	note := fmt.Sprintf("WARC-Target-URI: %s\r\nDropped: true\r\n", record.Request.URL.String())

	hdr := warc.NewHeader()
	hdr.Set("WARC-Type", "metadata")
	hdr.Set("WARC-Target-URI", record.Request.URL.String())
	hdr.Set("WARC-Warcinfo-ID", s.warcInfoID)
	hdr.Set("Content-Length", strconv.Itoa(len(note)))
	hdr.Set("WARC-Date", record.FetchedAt.UTC().Format(time.RFC3339))

	rec := s.warcWriter.NewRecord(hdr)
	if _, err := io.WriteString(rec, note); err != nil {
		return "", &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	if err := rec.Close(); err != nil {
		return "", &SinkError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return hdr.Get("WARC-Record-ID"), nil
}

func fingerprintHeader(algo hashutil.HashAlgo) string {
	return "WARC-Payload-Digest-" + string(algo)
}
