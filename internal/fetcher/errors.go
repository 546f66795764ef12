package fetcher

import (
	"fmt"

	"github.com/atracrawl/atra/internal/metadata"
	"github.com/atracrawl/atra/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseTimeout               FetchErrorCause = "timeout"
	ErrCauseNetworkFailure        FetchErrorCause = "network issues"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseRedirectLimitExceeded FetchErrorCause = "reached redirect limit"
	ErrCauseRedirectOffHost       FetchErrorCause = "redirect left seeded host under strict policy"
	ErrCauseRequestPageForbidden  FetchErrorCause = "forbidden"
	ErrCauseRequestTooMany        FetchErrorCause = "too many requests"
	ErrCauseRequest5xx            FetchErrorCause = "5xx"
	ErrCauseFileTooLarge          FetchErrorCause = "body exceeded max_file_size"
)

type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable lets pkg/retry decide whether to attempt this fetch again.
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

var _ failure.ClassifiedError = (*FetchError)(nil)

// mapFetchErrorToMetadataCause maps fetcher-local error semantics to the
// canonical metadata.ErrorCause table. Observational only — must never
// feed back into control flow.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseNetworkFailure, ErrCauseReadResponseBodyError:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestTooMany, ErrCauseRequestPageForbidden, ErrCauseRedirectOffHost:
		return metadata.CausePolicyDisallow
	case ErrCauseRedirectLimitExceeded, ErrCauseRequest5xx:
		return metadata.CauseNetworkFailure
	case ErrCauseFileTooLarge:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}

// mapRetryErrorToMetadataCause maps retry-budget exhaustion to the
// canonical table. CauseNetworkFailure's documented examples explicitly
// cover "retry-budget exhaustion on a transient error" — there is no
// separate enum case for it, by design.
func mapRetryErrorToMetadataCause() metadata.ErrorCause {
	return metadata.CauseNetworkFailure
}
