package linkstate

import (
	"fmt"

	"github.com/atracrawl/atra/pkg/failure"
)

type LinkStateErrorCause string

const (
	ErrCauseStoreIO       LinkStateErrorCause = "store io"
	ErrCauseNotClaimer    LinkStateErrorCause = "not claimer"
	ErrCauseCorruptRecord LinkStateErrorCause = "corrupt record"
)

type LinkStateError struct {
	Message   string
	Retryable bool
	Cause     LinkStateErrorCause
}

func (e *LinkStateError) Error() string {
	return fmt.Sprintf("linkstate error: %s: %s", e.Cause, e.Message)
}

func (e *LinkStateError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
