package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorKindString tests the machine codes returned by String.
func TestErrorKindString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind     ErrorKind
		expected string
	}{
		{ErrorKindNone, "NONE"},
		{ErrorKindNetworkTimeout, "NETWORK_TIMEOUT"},
		{ErrorKindNetworkUnreachable, "NETWORK_UNREACHABLE"},
		{ErrorKindDNSResolutionFailed, "DNS_RESOLUTION_FAILED"},
		{ErrorKindConnectionRefused, "CONNECTION_REFUSED"},
		{ErrorKindHTTPStatus, "HTTP_STATUS"},
		{ErrorKindCircuitBreakerOpen, "CIRCUIT_BREAKER_OPEN"},
		{ErrorKindRateLimitExceeded, "RATE_LIMIT_EXCEEDED"},
		{ErrorKindPathTraversal, "PATH_TRAVERSAL"},
		{ErrorKindInvalidURL, "INVALID_URL"},
		{ErrorKindUnsupportedProtocol, "UNSUPPORTED_PROTOCOL"},
		{ErrorKindFileTooLarge, "FILE_TOO_LARGE"},
		{ErrorKindChecksumMismatch, "CHECKSUM_MISMATCH"},
		{ErrorKindFilesystem, "FILESYSTEM_ERROR"},
		{ErrorKindRobotsDisallowed, "ROBOTS_DISALLOWED"},
		{ErrorKindUnknown, "UNKNOWN"},
		{ErrorKind(999), "UNKNOWN"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.kind.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.kind.String(), tc.expected)
			}
		})
	}
}

// TestClassifiedErrorError tests the message format of ClassifiedError.
func TestClassifiedErrorError(t *testing.T) {
	t.Parallel()

	t.Run("plain kind with cause", func(t *testing.T) {
		t.Parallel()

		err := Classify(ErrorKindNetworkTimeout, errors.New("dial tcp: i/o timeout"))
		msg := err.Error()
		if !strings.Contains(msg, "NETWORK_TIMEOUT") {
			t.Errorf("expected machine code in message, got %q", msg)
		}
		if !strings.Contains(msg, "i/o timeout") {
			t.Errorf("expected cause in message, got %q", msg)
		}
	})

	t.Run("http status includes code", func(t *testing.T) {
		t.Parallel()

		err := ClassifyHTTP(503, errors.New("service unavailable"))
		if !strings.Contains(err.Error(), "503") {
			t.Errorf("expected status code in message, got %q", err.Error())
		}
	})

	t.Run("filesystem includes operation", func(t *testing.T) {
		t.Parallel()

		err := ClassifyFilesystem("rename", errors.New("permission denied"))
		if !strings.Contains(err.Error(), "rename") {
			t.Errorf("expected operation in message, got %q", err.Error())
		}
	})

	t.Run("nil cause produces bare code", func(t *testing.T) {
		t.Parallel()

		err := &ClassifiedError{Kind: ErrorKindCircuitBreakerOpen}
		if err.Error() != "CIRCUIT_BREAKER_OPEN" {
			t.Errorf("expected bare machine code, got %q", err.Error())
		}
	})
}

// TestClassifiedErrorUnwrap tests that errors.Is sees through the wrapper.
func TestClassifiedErrorUnwrap(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("root cause")
	wrapped := fmt.Errorf("attempt 3: %w", Classify(ErrorKindConnectionRefused, sentinel))

	if !errors.Is(wrapped, sentinel) {
		t.Error("expected errors.Is to find the root cause through the chain")
	}
}

// TestKindOf tests kind extraction from error chains.
func TestKindOf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil error", nil, ErrorKindNone},
		{"unclassified error", errors.New("something"), ErrorKindUnknown},
		{"direct classified", Classify(ErrorKindDNSResolutionFailed, errors.New("no such host")), ErrorKindDNSResolutionFailed},
		{"wrapped classified", fmt.Errorf("outer: %w", Classify(ErrorKindFileTooLarge, errors.New("11 GiB"))), ErrorKindFileTooLarge},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.expected {
				t.Errorf("KindOf() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

// TestStatusCodeOf tests HTTP status extraction from error chains.
func TestStatusCodeOf(t *testing.T) {
	t.Parallel()

	if got := StatusCodeOf(ClassifyHTTP(429, errors.New("too many requests"))); got != 429 {
		t.Errorf("expected 429, got %d", got)
	}
	if got := StatusCodeOf(errors.New("plain")); got != 0 {
		t.Errorf("expected 0 for unclassified error, got %d", got)
	}
	if got := StatusCodeOf(fmt.Errorf("wrap: %w", ClassifyHTTP(502, errors.New("bad gateway")))); got != 502 {
		t.Errorf("expected 502 through wrapping, got %d", got)
	}
}

// TestErrorKindMarshalJSON tests that kinds serialize as machine codes.
func TestErrorKindMarshalJSON(t *testing.T) {
	t.Parallel()

	data, err := ErrorKindChecksumMismatch.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `"CHECKSUM_MISMATCH"` {
		t.Errorf("got %s, expected quoted machine code", data)
	}
}
