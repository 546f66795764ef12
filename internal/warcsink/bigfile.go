package warcsink

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/atracrawl/atra/pkg/fileutil"
	"github.com/atracrawl/atra/pkg/hashutil"
)

/*
BigFileStore is the content-addressed sink for bodies
store_only_html_in_warc diverts out of the WARC proper (spec.md §4.9).
Content is addressed by its own hash rather than the source URL, so
identical bodies fetched from different URLs share one on-disk copy.

Layout: <dir>/<algo>/<first two hex chars>/<full hex hash>.bin — the two
-level fan-out keeps any single directory from holding an unbounded
number of entries.
*/
type BigFileStore struct {
	dir      string
	hashAlgo hashutil.HashAlgo
}

func NewBigFileStore(dir string, hashAlgo hashutil.HashAlgo) *BigFileStore {
	return &BigFileStore{dir: dir, hashAlgo: hashAlgo}
}

// Store streams r into the big-file directory, hashing as it copies so
// the body is never buffered fully in memory. Returns the final path and
// hex-encoded content hash.
func (s *BigFileStore) Store(r io.Reader) (path string, hashHex string, size int64, classified *SinkError) {
	hasher, err := hashutil.NewHasher(s.hashAlgo)
	if err != nil {
		return "", "", 0, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCauseHashComputationFailed}
	}

	stagingDir := filepath.Join(s.dir, string(s.hashAlgo), "staging")
	if err := fileutil.EnsureDir(stagingDir); err != nil {
		return "", "", 0, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: stagingDir}
	}

	tmp, err := os.CreateTemp(stagingDir, ".bigfile-*")
	if err != nil {
		return "", "", 0, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: stagingDir}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return "", "", 0, classifyWriteErr(err, tmpName)
	}
	if err := tmp.Close(); err != nil {
		return "", "", 0, classifyWriteErr(err, tmpName)
	}

	hashHex = hex.EncodeToString(hasher.Sum(nil))
	finalDir := filepath.Join(s.dir, string(s.hashAlgo), hashHex[:2])
	if err := fileutil.EnsureDir(finalDir); err != nil {
		return "", "", 0, &SinkError{Message: err.Error(), Retryable: false, Cause: ErrCausePathError, Path: finalDir}
	}
	finalPath := filepath.Join(finalDir, hashHex+".bin")

	if _, err := os.Stat(finalPath); err == nil {
		// Content already stored under this hash; nothing further to do.
		return finalPath, hashHex, written, nil
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", "", 0, classifyWriteErr(err, finalPath)
	}
	return finalPath, hashHex, written, nil
}

func classifyWriteErr(err error, path string) *SinkError {
	cause := ErrCauseWriteFailure
	retryable := false
	if os.IsPermission(err) {
		cause = ErrCausePathError
	}
	return &SinkError{Message: err.Error(), Retryable: retryable, Cause: cause, Path: path}
}
