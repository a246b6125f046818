package config

import "errors"

// Configuration validation errors. These are returned by Config.Validate
// and identify the first invalid setting found. Package-level sentinels
// let callers use errors.Is for programmatic handling while keeping
// human-readable messages.
var (
	// ErrNoSeeds is returned when no seed URL is specified.
	ErrNoSeeds = errors.New("no seed URL specified: provide at least one URL")

	// ErrInvalidTimeout is returned when a request or robots timeout is
	// not positive. A zero timeout would fail every request immediately.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency ceiling is
	// not positive. Zero workers would process nothing.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	// Use 0 to fetch only the seed pages.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidDelay is returned when the crawl or batch delay is
	// negative. Use 0 for no delay.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetryCount is returned when the retry count is negative.
	// Use 0 to disable retries.
	ErrInvalidRetryCount = errors.New("invalid retry count: must be non-negative")

	// ErrInvalidRetryDelay is returned when the base delay is not
	// positive or the maximum delay is below the base delay.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: base must be positive and max must not be below base")

	// ErrInvalidExponentialBase is returned when the backoff multiplier
	// is below 1. A multiplier below 1 would shrink delays per attempt.
	ErrInvalidExponentialBase = errors.New("invalid exponential base: must be at least 1")

	// ErrInvalidBreakerConfig is returned when a circuit breaker
	// parameter (threshold, monitor window, reset timeout) is not
	// positive.
	ErrInvalidBreakerConfig = errors.New("invalid circuit breaker config: threshold, window, and reset timeout must be positive")

	// ErrInvalidMaxFileSize is returned when the file size cap is not
	// positive.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be positive")

	// ErrInvalidMaxBodySize is returned when the page body cap is not
	// positive.
	ErrInvalidMaxBodySize = errors.New("invalid max page body size: must be positive")

	// ErrInvalidRateLimit is returned when the per-host rate limit is
	// negative. Use 0 to disable local rate limiting.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a
	// time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidChecksum is returned when the checksum is not in
	// "sha256:<hex>" or "blake3:<hex>" form with a 32-byte digest.
	ErrInvalidChecksum = errors.New(`invalid checksum: expected "sha256:<hex>" or "blake3:<hex>" with a 64-character digest`)
)
