// Package security screens download requests before any network or
// filesystem activity.
//
// # Architecture
//
// The Validator is the package's main type. It applies three groups of
// request-time checks plus a stateful rate limiter:
//
//   - URL checks: length, scheme allow-list, host block/allow lists,
//     private-network and localhost rejection (the SSRF guard),
//     traversal sequences, control characters
//   - Path checks: destination paths must stay inside the working root,
//     with either reject or sanitize behavior (configuration-driven)
//   - Header checks: CR/LF injection guard, length limits, warnings for
//     headers that commonly carry credentials
//   - Rate limiting: a sliding-window counter per client identifier
//
// Request-time checks are cheap and run before any connection is
// attempted. The file-size policy is separate (ValidateFileSize) because
// the size is only known once response headers arrive.
//
// # Results
//
// Validate never panics and never returns a Go error for invalid input;
// every failure is represented in the returned Result. A request is
// admitted only when Result.IsValid is true, in which case
// Result.SanitizedRequest carries the request to actually execute
// (identical to the input unless sanitize mode rewrote the path).
//
// # Usage
//
//	v := security.NewValidator(security.DefaultConfig())
//	res := v.Validate(ctx, req)
//	if !res.IsValid {
//	    return res.Err() // classified, never retried
//	}
//	doDownload(res.SanitizedRequest)
package security
