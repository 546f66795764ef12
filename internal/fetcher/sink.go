package fetcher

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/atracrawl/atra/pkg/fileutil"
	mmap "github.com/edsrzf/mmap-go"
)

// Variant tags whether a BodyHandle's bytes live in memory or spilled to
// a temp file under the big-files directory.
type Variant int

const (
	VariantMemory Variant = iota
	VariantSpilled
)

// BodyHandle is a response body that may have spilled to disk past
// max_file_size_in_memory. Reader may be called more than once: the
// in-memory variant wraps a fresh bytes.Reader each time, and the
// spilled variant reopens its temp file each time, satisfying spec.md
// §4.6's "consumed at most once for extraction and once for WARC
// writing" without requiring the caller to tee or rewind anything.
type BodyHandle struct {
	variant Variant
	data    []byte
	path    string
	size    int64
}

func (h *BodyHandle) Variant() Variant {
	return h.variant
}

func (h *BodyHandle) Len() int64 {
	return h.size
}

func (h *BodyHandle) Path() string {
	return h.path
}

func (h *BodyHandle) Reader() (io.ReadCloser, error) {
	if h.variant == VariantMemory {
		return io.NopCloser(bytes.NewReader(h.data)), nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		return nil, fmt.Errorf("reopen spilled body %s: %w", h.path, err)
	}
	return f, nil
}

// ReaderAt exposes random access to the body for callers that need to
// seek without loading the whole thing into memory — the classifier's
// zip-container sniffing (§4.7) wants this instead of a forward-only
// Reader. Spilled bodies are mmap'd rather than read whole, keeping a
// large PDF or archive from ever being fully resident just to classify
// it. The returned closer must be called once the caller is done.
func (h *BodyHandle) ReaderAt() (io.ReaderAt, int64, io.Closer, error) {
	if h.variant == VariantMemory {
		return bytes.NewReader(h.data), h.size, io.NopCloser(nil), nil
	}

	f, err := os.Open(h.path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open spilled body %s: %w", h.path, err)
	}
	if h.size == 0 {
		return bytes.NewReader(nil), 0, f, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("mmap spilled body %s: %w", h.path, err)
	}
	return bytes.NewReader(m), int64(len(m)), &mmapCloser{file: f, mapping: m}, nil
}

type mmapCloser struct {
	file    *os.File
	mapping mmap.MMap
}

func (c *mmapCloser) Close() error {
	unmapErr := c.mapping.Unmap()
	closeErr := c.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// Close releases the spilled temp file. The in-memory variant is a no-op,
// and a spill file that is already gone is not an error. The big-file
// store copies the body through Reader, so it never takes the spill file
// over.
func (h *BodyHandle) Close() error {
	if h.variant != VariantSpilled {
		return nil
	}
	err := os.Remove(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// BodySink buffers a response body in memory up to maxMemory bytes;
// beyond that it spills to a temp file under bigFilesDir. If maxFile is
// set (>0) and the total body exceeds it, Consume aborts with
// ErrCauseFileTooLarge and cleans up any partial spill file.
type BodySink struct {
	bigFilesDir string
	maxMemory   int64
	maxFile     int64
}

func NewBodySink(bigFilesDir string, maxMemory, maxFile int64) *BodySink {
	return &BodySink{bigFilesDir: bigFilesDir, maxMemory: maxMemory, maxFile: maxFile}
}

func (s *BodySink) Consume(r io.Reader) (*BodyHandle, *FetchError) {
	limit := s.maxMemory
	if limit < 0 {
		limit = 0
	}

	buf := make([]byte, limit+1)
	n, err := io.ReadFull(r, buf)
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return &BodyHandle{variant: VariantMemory, data: buf[:n], size: int64(n)}, nil
	case err != nil:
		return nil, &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}

	// Body is larger than maxMemory: spill what we've already buffered
	// plus the remainder to a temp file.
	if ferr := fileutil.EnsureDir(s.bigFilesDir); ferr != nil {
		return nil, &FetchError{Message: ferr.Error(), Retryable: false, Cause: ErrCauseReadResponseBodyError}
	}
	tmp, err := os.CreateTemp(s.bigFilesDir, "body-*.tmp")
	if err != nil {
		return nil, &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseReadResponseBodyError}
	}
	defer tmp.Close()

	written := int64(0)
	if _, err := tmp.Write(buf); err != nil {
		os.Remove(tmp.Name())
		return nil, &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}
	written += int64(len(buf))

	rest := r
	if s.maxFile > 0 {
		remaining := s.maxFile - written
		if remaining < 0 {
			remaining = 0
		}
		rest = io.LimitReader(r, remaining+1)
	}

	copied, err := io.Copy(tmp, rest)
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}
	written += copied

	if s.maxFile > 0 && written > s.maxFile {
		os.Remove(tmp.Name())
		return nil, &FetchError{
			Message:   fmt.Sprintf("body exceeded max_file_size of %d bytes", s.maxFile),
			Retryable: false,
			Cause:     ErrCauseFileTooLarge,
		}
	}

	return &BodyHandle{variant: VariantSpilled, path: tmp.Name(), size: written}, nil
}
