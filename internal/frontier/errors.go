package frontier

import (
	"fmt"

	"github.com/atracrawl/atra/pkg/failure"
)

type FrontierErrorCause string

const (
	ErrCauseQueueIO    FrontierErrorCause = "queue io"
	ErrCauseCorruptLog FrontierErrorCause = "corrupt queue log"
)

type FrontierError struct {
	Message   string
	Retryable bool
	Cause     FrontierErrorCause
}

func (e *FrontierError) Error() string {
	return fmt.Sprintf("frontier error: %s: %s", e.Cause, e.Message)
}

func (e *FrontierError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
