package normalize

import (
	"fmt"

	"github.com/atracrawl/atra/pkg/failure"
)

type NormalizeErrorCause string

const (
	ErrCauseMalformed         NormalizeErrorCause = "malformed"
	ErrCauseUnsupportedScheme NormalizeErrorCause = "unsupported scheme"
)

type NormalizeError struct {
	Message string
	Cause   NormalizeErrorCause
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize error: %s: %s", e.Cause, e.Message)
}

// Severity is always fatal: a malformed or unsupported URL cannot be
// retried into a valid one.
func (e *NormalizeError) Severity() failure.Severity {
	return failure.SeverityFatal
}
