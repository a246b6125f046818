package model

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a validation, crawl, or transfer failure.
// The retry policy in the transfer engine is driven by these kinds, so
// classification must happen at the point of failure where the typed
// cause (net.Error, DNS error, syscall errno, HTTP status) is still
// observable. Message text is never parsed to recover a kind.
type ErrorKind int

const (
	// ErrorKindNone is the zero value and means no error occurred.
	ErrorKindNone ErrorKind = iota

	// ErrorKindNetworkTimeout covers deadline and timeout failures on
	// any network operation. Retryable.
	ErrorKindNetworkTimeout

	// ErrorKindNetworkUnreachable covers unreachable host or network
	// errors (EHOSTUNREACH, ENETUNREACH). Retryable.
	ErrorKindNetworkUnreachable

	// ErrorKindDNSResolutionFailed covers name resolution failures.
	// Retryable: transient resolver problems are common.
	ErrorKindDNSResolutionFailed

	// ErrorKindConnectionRefused covers ECONNREFUSED and reset
	// connections. Retryable.
	ErrorKindConnectionRefused

	// ErrorKindHTTPStatus covers non-success HTTP responses. The status
	// code decides retryability: 500, 502, 503, 504, and 429 are
	// retried, client errors such as 404, 403, and 401 are not.
	ErrorKindHTTPStatus

	// ErrorKindCircuitBreakerOpen means the per-host breaker rejected
	// the attempt before any network call. Not retryable within the
	// current download; the host needs its cool-down.
	ErrorKindCircuitBreakerOpen

	// ErrorKindRateLimitExceeded means the local rate limiter rejected
	// the request. Not retryable by the transfer engine.
	ErrorKindRateLimitExceeded

	// ErrorKindPathTraversal means a URL or destination path contained
	// a traversal sequence. Never retried.
	ErrorKindPathTraversal

	// ErrorKindInvalidURL means the URL failed validation or parsing.
	// Never retried.
	ErrorKindInvalidURL

	// ErrorKindUnsupportedProtocol means the URL scheme is outside the
	// configured allow-list. Never retried.
	ErrorKindUnsupportedProtocol

	// ErrorKindFileTooLarge means the reported or observed size exceeded
	// the configured cap. Never retried.
	ErrorKindFileTooLarge

	// ErrorKindChecksumMismatch means the completed file failed digest
	// verification. Never retried; the bytes on disk are kept for
	// inspection.
	ErrorKindChecksumMismatch

	// ErrorKindFilesystem covers local file operations (create, write,
	// rename, stat). Not retried: a failing disk rarely heals between
	// attempts.
	ErrorKindFilesystem

	// ErrorKindRobotsDisallowed means robots.txt forbids fetching the
	// URL. This is a soft skip recorded in statistics, not a failure.
	ErrorKindRobotsDisallowed

	// ErrorKindUnknown is any failure that could not be classified.
	// Treated as non-retryable.
	ErrorKindUnknown
)

// String returns the stable machine code for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "NONE"
	case ErrorKindNetworkTimeout:
		return "NETWORK_TIMEOUT"
	case ErrorKindNetworkUnreachable:
		return "NETWORK_UNREACHABLE"
	case ErrorKindDNSResolutionFailed:
		return "DNS_RESOLUTION_FAILED"
	case ErrorKindConnectionRefused:
		return "CONNECTION_REFUSED"
	case ErrorKindHTTPStatus:
		return "HTTP_STATUS"
	case ErrorKindCircuitBreakerOpen:
		return "CIRCUIT_BREAKER_OPEN"
	case ErrorKindRateLimitExceeded:
		return "RATE_LIMIT_EXCEEDED"
	case ErrorKindPathTraversal:
		return "PATH_TRAVERSAL"
	case ErrorKindInvalidURL:
		return "INVALID_URL"
	case ErrorKindUnsupportedProtocol:
		return "UNSUPPORTED_PROTOCOL"
	case ErrorKindFileTooLarge:
		return "FILE_TOO_LARGE"
	case ErrorKindChecksumMismatch:
		return "CHECKSUM_MISMATCH"
	case ErrorKindFilesystem:
		return "FILESYSTEM_ERROR"
	case ErrorKindRobotsDisallowed:
		return "ROBOTS_DISALLOWED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes the kind as its machine code so reports and
// history rows stay readable and stable across releases.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// ClassifiedError attaches an ErrorKind to an underlying error.
// It implements error and unwraps to the cause, so callers can use
// errors.Is/As on the chain while the retry policy reads the kind.
type ClassifiedError struct {
	// Kind is the failure category.
	Kind ErrorKind

	// StatusCode is the HTTP status for ErrorKindHTTPStatus, zero
	// otherwise.
	StatusCode int

	// Op names the failed local operation for ErrorKindFilesystem
	// ("create", "write", "rename", "stat"). Empty otherwise.
	Op string

	// Err is the underlying cause. May be nil for kinds that originate
	// in policy rather than in a lower-level error, such as
	// ErrorKindCircuitBreakerOpen.
	Err error
}

// Error returns the machine code followed by the cause.
func (e *ClassifiedError) Error() string {
	switch {
	case e.Kind == ErrorKindHTTPStatus && e.StatusCode != 0:
		return fmt.Sprintf("%s %d: %v", e.Kind, e.StatusCode, e.Err)
	case e.Kind == ErrorKindFilesystem && e.Op != "":
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Op, e.Err)
	case e.Err == nil:
		return e.Kind.String()
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with the given kind.
func Classify(kind ErrorKind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: err}
}

// ClassifyHTTP wraps err as an HTTP status failure.
func ClassifyHTTP(statusCode int, err error) *ClassifiedError {
	return &ClassifiedError{Kind: ErrorKindHTTPStatus, StatusCode: statusCode, Err: err}
}

// ClassifyFilesystem wraps err as a local filesystem failure for the
// named operation.
func ClassifyFilesystem(op string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: ErrorKindFilesystem, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Returns ErrorKindNone for nil and ErrorKindUnknown for errors that
// carry no classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindUnknown
}

// StatusCodeOf extracts the HTTP status from an error chain.
// Returns zero when the chain carries no HTTP status failure.
func StatusCodeOf(err error) int {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
