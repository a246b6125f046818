package model

import "time"

// CircuitState is the state of a per-host circuit breaker.
// The transfer engine owns the transitions; results carry a snapshot of
// the state observed when the transfer finished.
type CircuitState int

const (
	// CircuitClosed means requests to the host flow normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen means recent failures exceeded the threshold and
	// requests to the host fail fast without touching the network.
	CircuitOpen

	// CircuitHalfOpen means the cool-down period has elapsed and a trial
	// request is allowed through. Success closes the circuit; failure
	// reopens it.
	CircuitHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// DownloadResult is the terminal record of one requested transfer.
// Exactly one result exists per requested URL; it is never mutated after
// creation.
type DownloadResult struct {
	// URL is the resource that was requested.
	URL string `json:"url"`

	// Success is true if the file was fully written and verified.
	Success bool `json:"success"`

	// FilePath is the local path the file was written to. It may differ
	// from the requested destination when a numeric suffix was appended
	// to avoid overwriting an existing file.
	FilePath string `json:"file_path,omitempty"`

	// Size is the number of bytes transferred by this run. For a resumed
	// transfer this excludes the bytes already on disk.
	Size int64 `json:"size"`

	// Duration is the wall-clock time spent on this URL across all
	// attempts, including backoff sleeps.
	Duration time.Duration `json:"-"`

	// DurationMillis is Duration in milliseconds for serialization.
	DurationMillis int64 `json:"duration_ms"`

	// Resumed is true if the transfer continued from a partial file.
	Resumed bool `json:"resumed"`

	// ResumeFromByte is the offset the transfer resumed from.
	// Zero unless Resumed is true.
	ResumeFromByte int64 `json:"resume_from_byte,omitempty"`

	// Err is the terminal error for a failed transfer.
	Err error `json:"-"` // Excluded from JSON; see ErrorMessage

	// ErrorMessage is the string representation of Err for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// ErrorKind is the machine-readable failure category.
	// ErrorKindNone for successful transfers.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Attempts is the number of transfer attempts made (1 for a
	// first-try success).
	Attempts int `json:"attempts"`

	// CircuitState is the breaker state for the URL's host observed when
	// the result was created.
	CircuitState CircuitState `json:"circuit_state"`
}

// FinishResult fills the serialization companions of a result in place
// and returns it. It sets DurationMillis from Duration and ErrorMessage
// from Err so callers build results in one place.
func FinishResult(r DownloadResult) DownloadResult {
	r.DurationMillis = r.Duration.Milliseconds()
	if r.Err != nil {
		r.ErrorMessage = r.Err.Error()
	}
	return r
}
