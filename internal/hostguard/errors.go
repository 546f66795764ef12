package hostguard

import (
	"fmt"

	"github.com/atracrawl/atra/pkg/failure"
)

type HostGuardErrorCause string

const (
	ErrCauseRobotsInfra   HostGuardErrorCause = "robots infrastructure failure"
	ErrCauseBlacklistIO   HostGuardErrorCause = "blacklist file io"
	ErrCauseWaitCancelled HostGuardErrorCause = "politeness wait cancelled"
	ErrCauseQuarantineIO  HostGuardErrorCause = "quarantine store io"
)

type HostGuardError struct {
	Message   string
	Retryable bool
	Cause     HostGuardErrorCause
}

func (e *HostGuardError) Error() string {
	return fmt.Sprintf("hostguard error: %s: %s", e.Cause, e.Message)
}

func (e *HostGuardError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

var _ failure.ClassifiedError = (*HostGuardError)(nil)
