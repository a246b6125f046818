package security

import "errors"

// Validation errors. Each check failure wraps one of these sentinels so
// callers can test the cause with errors.Is while the Result carries the
// full list of failures.
var (
	// ErrMalformedURL is returned when the URL cannot be parsed or has
	// no hostname.
	ErrMalformedURL = errors.New("malformed URL")

	// ErrURLTooLong is returned when the URL exceeds the configured
	// maximum length.
	ErrURLTooLong = errors.New("URL exceeds maximum length")

	// ErrControlCharacters is returned when the URL contains control
	// characters or NUL bytes.
	ErrControlCharacters = errors.New("URL contains control characters")

	// ErrDangerousScheme is returned for javascript:, data:, and
	// vbscript: URLs regardless of the configured allow-list.
	ErrDangerousScheme = errors.New("dangerous URL scheme")

	// ErrSchemeNotAllowed is returned when the URL scheme is outside the
	// configured allow-list.
	ErrSchemeNotAllowed = errors.New("URL scheme not in allow-list")

	// ErrHostBlocked is returned when the hostname matches the block
	// list (exact or suffix match).
	ErrHostBlocked = errors.New("hostname is blocked")

	// ErrHostNotAllowed is returned when a host allow-list is configured
	// and the hostname matches no entry.
	ErrHostNotAllowed = errors.New("hostname not in allow-list")

	// ErrLocalhostBlocked is returned when the hostname is or resolves
	// to a loopback address and localhost blocking is enabled.
	ErrLocalhostBlocked = errors.New("localhost target blocked")

	// ErrPrivateAddress is returned when the hostname is or resolves to
	// a private, link-local, or otherwise non-public address and
	// private-network blocking is enabled.
	ErrPrivateAddress = errors.New("private network target blocked")

	// ErrURLTraversal is returned when the URL contains a literal or
	// percent-encoded ".." traversal sequence.
	ErrURLTraversal = errors.New("URL contains traversal sequence")

	// ErrPathTooLong is returned when the destination path exceeds the
	// configured maximum length.
	ErrPathTooLong = errors.New("destination path exceeds maximum length")

	// ErrPathTraversal is returned when the destination path contains a
	// ".." segment, literal or percent-encoded.
	ErrPathTraversal = errors.New("destination path contains traversal sequence")

	// ErrPathEscapesRoot is returned when the destination path resolves
	// outside the working root.
	ErrPathEscapesRoot = errors.New("destination path escapes working root")

	// ErrHomeReference is returned when the destination path references
	// the home directory with a leading tilde.
	ErrHomeReference = errors.New("destination path references home directory")

	// ErrReservedPath is returned when the destination path points into
	// a reserved system directory such as /etc or /proc.
	ErrReservedPath = errors.New("destination path targets reserved system directory")

	// ErrNulByte is returned when the destination path contains a NUL
	// byte.
	ErrNulByte = errors.New("destination path contains NUL byte")

	// ErrShellSubstitution is returned when the destination path
	// contains shell substitution syntax (${...} or backticks).
	ErrShellSubstitution = errors.New("destination path contains shell substitution")

	// ErrHeaderInjection is returned when a header key or value contains
	// CR or LF characters.
	ErrHeaderInjection = errors.New("header contains CR/LF characters")

	// ErrHeaderValueTooLong is returned when a header value exceeds the
	// configured maximum length.
	ErrHeaderValueTooLong = errors.New("header value exceeds maximum length")

	// ErrRateLimited is returned when the sliding-window rate limiter
	// rejects the request.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrFileTooLarge is returned by ValidateFileSize when the reported
	// content length exceeds the configured cap.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)
