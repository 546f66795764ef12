package worker

import (
	"fmt"

	"github.com/atracrawl/atra/pkg/failure"
)

// WorkerErrorCause classifies failures the pipeline itself cannot route
// through a downstream collaborator's own ClassifiedError — almost
// exclusively durable-store I/O that, if it is failing, means the crawl
// as a whole cannot make progress.
type WorkerErrorCause string

const (
	ErrCauseFrontierIO  WorkerErrorCause = "frontier io"
	ErrCauseLinkStateIO WorkerErrorCause = "link state io"
)

type WorkerError struct {
	Message   string
	Retryable bool
	Cause     WorkerErrorCause
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker error: %s: %s", e.Cause, e.Message)
}

func (e *WorkerError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

var _ failure.ClassifiedError = (*WorkerError)(nil)
