package warcsink

import (
	"fmt"

	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/pkg/failure"
)

type SinkErrorCause string

const (
	ErrCauseDiskFull              SinkErrorCause = "disk is full"
	ErrCauseWriteFailure          SinkErrorCause = "write failed"
	ErrCauseHashComputationFailed SinkErrorCause = "hash computation failed"
	ErrCausePathError             SinkErrorCause = "path error"
)

type SinkError struct {
	Message   string
	Retryable bool
	Cause     SinkErrorCause
	Path      string
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error: %s", e.Cause)
}

func (e *SinkError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

var _ failure.ClassifiedError = (*SinkError)(nil)

// mapSinkErrorToMetadataCause is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapSinkErrorToMetadataCause(err *SinkError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull, ErrCauseWriteFailure, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseHashComputationFailed:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
