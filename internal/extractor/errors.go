package extractor

import (
	"fmt"

	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseMalformedInput ExtractionErrorCause = "malformed input"
	ErrCauseParseFailure   ExtractionErrorCause = "parse failure"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

var _ failure.ClassifiedError = (*ExtractionError)(nil)

// mapExtractionErrorToMetadataCause is observational only — must never
// feed back into control flow.
func mapExtractionErrorToMetadataCause(err *ExtractionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseMalformedInput, ErrCauseParseFailure:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
