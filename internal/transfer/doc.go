// Package transfer implements the resilient download engine: one
// retry loop per requested file, wrapped around resume, error
// classification, and per-host circuit breaking.
//
// # Attempt loop
//
// Download runs up to MaxRetries+1 attempts. Before each attempt the
// host's circuit breaker is consulted; an open breaker fails the
// download immediately without a network call and without consuming a
// retry. After a failed attempt the error is classified and only
// retryable kinds (timeouts, unreachable hosts, DNS failures, refused
// connections, and the retryable HTTP statuses) schedule another
// attempt, after an exponential backoff sleep with jitter.
//
// # Partial files and resume
//
// Bytes stream into a ".part" sidecar next to the destination; the
// sidecar is renamed to the final name only after the transfer
// completed and, when a checksum was requested, verified. A sidecar
// left by an interrupted run is resumed with a Range request from its
// size, guarded by an If-Range validator when one is known. A server
// that answers 200 to a ranged request gets the sidecar truncated and
// the transfer restarts from zero.
//
// A destination that already exists is never overwritten: the engine
// appends ".1", ".2", and so on until a free name is found.
//
// # Circuit breaker
//
// Each host gets a breaker holding a window of failure timestamps.
// Reaching the failure threshold within the monitor window opens the
// breaker; after the reset timeout the next request probes the host in
// half-open state, and one success closes it again.
package transfer
