package security

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nao1215/webget/internal/model"
)

const (
	// DefaultMaxURLLength is the default maximum accepted URL length.
	DefaultMaxURLLength = 2048
	// DefaultMaxPathLength is the default maximum destination path
	// length, matching the most restrictive common filesystem limit.
	DefaultMaxPathLength = 260
	// DefaultMaxFileSize is the default per-file size cap (10GiB).
	DefaultMaxFileSize = 10 * 1024 * 1024 * 1024
	// DefaultMaxHeaderValueLength is the default maximum length of a
	// single header value.
	DefaultMaxHeaderValueLength = 8 * 1024
	// DefaultRateLimitPerMinute is the default number of requests
	// allowed per host within the rate limit window.
	DefaultRateLimitPerMinute = 60
)

// dangerousSchemes are rejected regardless of the configured
// allow-list. They execute content rather than address it.
var dangerousSchemes = map[string]bool{
	"javascript": true,
	"data":       true,
	"vbscript":   true,
}

// reservedPathPrefixes are system directories a download must never
// target, even when the configured working root would permit them.
var reservedPathPrefixes = []string{"/etc", "/proc", "/sys", "/dev"}

// Config holds the validation policy. The zero value is not usable;
// start from DefaultConfig and override fields as needed.
type Config struct {
	// === URL policy ===

	// MaxURLLength is the maximum accepted URL length in bytes.
	MaxURLLength int

	// AllowedSchemes lists the URL schemes that may be fetched.
	AllowedSchemes []string

	// BlockedHosts rejects matching hostnames. An entry matches the
	// exact hostname or any subdomain of it.
	BlockedHosts []string

	// AllowedHosts, when non-empty, restricts fetches to matching
	// hostnames. An entry matches the exact hostname or any subdomain.
	AllowedHosts []string

	// BlockLocalhost rejects URLs whose host is or resolves to a
	// loopback or unspecified address.
	BlockLocalhost bool

	// BlockPrivateNetworks rejects URLs whose host is or resolves to a
	// private, link-local, or documentation-range address.
	BlockPrivateNetworks bool

	// === Path policy ===

	// MaxPathLength is the maximum accepted destination path length.
	MaxPathLength int

	// WorkRoot is the directory downloads must stay under. Empty means
	// the current working directory.
	WorkRoot string

	// SanitizePaths rewrites destination paths to a conservative
	// character set instead of only checking them.
	SanitizePaths bool

	// === Header policy ===

	// MaxHeaderValueLength is the maximum accepted header value length.
	MaxHeaderValueLength int

	// === Transfer policy ===

	// MaxFileSize caps the size of a single download in bytes.
	// Zero or negative disables the cap.
	MaxFileSize int64

	// RateLimitPerMinute caps requests per host within the rate limit
	// window. Zero or negative disables rate limiting.
	RateLimitPerMinute int
}

// DefaultConfig returns the validation policy used when the caller does
// not override anything: http/https/sftp only, localhost and private
// networks blocked, sanitization off.
func DefaultConfig() Config {
	return Config{
		MaxURLLength:         DefaultMaxURLLength,
		AllowedSchemes:       []string{"http", "https", "sftp"},
		BlockLocalhost:       true,
		BlockPrivateNetworks: true,
		MaxPathLength:        DefaultMaxPathLength,
		MaxHeaderValueLength: DefaultMaxHeaderValueLength,
		MaxFileSize:          DefaultMaxFileSize,
		RateLimitPerMinute:   DefaultRateLimitPerMinute,
	}
}

// ValidationError records a single failed check.
type ValidationError struct {
	// Field names what failed: "url", "path", "header:<name>", or
	// "rate_limit".
	Field string

	// Err wraps one of the package sentinel errors.
	Err error
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause so errors.Is reaches the
// sentinel.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// ValidationWarning records a finding that does not block the request
// but deserves operator attention.
type ValidationWarning struct {
	// Field names the part of the request the warning is about.
	Field string

	// Message describes the finding.
	Message string
}

// Result is the outcome of validating one request. All checks run even
// after the first failure, so Errors lists every problem at once.
type Result struct {
	// IsValid is true when no check failed.
	IsValid bool

	// Errors lists every failed check.
	Errors []ValidationError

	// Warnings lists non-fatal findings.
	Warnings []ValidationWarning

	// SanitizedRequest is a copy of the validated request with the
	// destination path rewritten when sanitization is enabled. Nil when
	// validation failed or when Validate was not given a full request.
	SanitizedRequest *model.DownloadRequest
}

func (r *Result) addError(field string, err error) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Err: err})
}

func (r *Result) addWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message})
}

// Err converts a failed Result into a classified error for the
// transfer result. The first failure decides the error kind. Returns
// nil when the result is valid.
func (r *Result) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	first := r.Errors[0]

	kind := model.ErrorKindInvalidURL
	switch {
	case errors.Is(first.Err, ErrURLTraversal),
		errors.Is(first.Err, ErrPathTraversal),
		errors.Is(first.Err, ErrPathEscapesRoot),
		errors.Is(first.Err, ErrHomeReference),
		errors.Is(first.Err, ErrReservedPath),
		errors.Is(first.Err, ErrNulByte),
		errors.Is(first.Err, ErrShellSubstitution):
		kind = model.ErrorKindPathTraversal
	case errors.Is(first.Err, ErrDangerousScheme),
		errors.Is(first.Err, ErrSchemeNotAllowed):
		kind = model.ErrorKindUnsupportedProtocol
	case errors.Is(first.Err, ErrRateLimited):
		kind = model.ErrorKindRateLimitExceeded
	case errors.Is(first.Err, ErrFileTooLarge):
		kind = model.ErrorKindFileTooLarge
	}
	return model.Classify(kind, first)
}

// Validator applies the configured security policy to URLs, destination
// paths, and request headers. Safe for concurrent use.
type Validator struct {
	cfg     Config
	limiter *RateLimiter
}

// NewValidator returns a Validator enforcing the given policy.
func NewValidator(cfg Config) *Validator {
	return &Validator{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimitPerMinute, RateLimitWindow),
	}
}

// Validate checks a complete download request: URL, destination path,
// and headers. When everything passes, the request is counted against
// the per-host rate limit and a sanitized copy is attached to the
// result. Requests that fail validation never consume rate budget.
func (v *Validator) Validate(ctx context.Context, req *model.DownloadRequest) *Result {
	res := &Result{IsValid: true}

	parsed := v.checkURL(ctx, req.URL, res)
	destPath := v.checkPath(req.DestinationPath, res)
	v.checkHeaders(req.Headers, res)

	if res.IsValid && parsed != nil {
		if !v.limiter.Allow(parsed.Hostname()) {
			res.addError("rate_limit", fmt.Errorf("%w: host %s", ErrRateLimited, parsed.Hostname()))
		}
	}

	if res.IsValid {
		sanitized := *req
		sanitized.DestinationPath = destPath
		res.SanitizedRequest = &sanitized
	}
	return res
}

// ValidateURL checks a URL alone, without path, header, or rate limit
// checks. The crawl engine uses this for every discovered link before
// queueing it.
func (v *Validator) ValidateURL(ctx context.Context, rawURL string) *Result {
	res := &Result{IsValid: true}
	v.checkURL(ctx, rawURL, res)
	return res
}

// FileSizeLimit returns the configured per-file cap in bytes, zero or
// negative when disabled. The transfer engine uses it to stop a stream
// whose server never reported a length.
func (v *Validator) FileSizeLimit() int64 {
	return v.cfg.MaxFileSize
}

// ValidateFileSize checks a size reported by the server against the
// configured cap. A negative size means the server did not report one
// and passes; the transfer engine enforces the cap on observed bytes
// instead.
func (v *Validator) ValidateFileSize(size int64) error {
	if size < 0 || v.cfg.MaxFileSize <= 0 {
		return nil
	}
	if size > v.cfg.MaxFileSize {
		return model.Classify(model.ErrorKindFileTooLarge,
			fmt.Errorf("%w: %d bytes, cap %d", ErrFileTooLarge, size, v.cfg.MaxFileSize))
	}
	return nil
}

// checkURL runs every URL check and records failures on res. Returns
// the parsed URL, or nil when parsing itself failed.
func (v *Validator) checkURL(ctx context.Context, rawURL string, res *Result) *url.URL {
	if v.cfg.MaxURLLength > 0 && len(rawURL) > v.cfg.MaxURLLength {
		res.addError("url", fmt.Errorf("%w: %d bytes, limit %d", ErrURLTooLong, len(rawURL), v.cfg.MaxURLLength))
	}
	if strings.ContainsFunc(rawURL, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		res.addError("url", ErrControlCharacters)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		res.addError("url", fmt.Errorf("%w: %v", ErrMalformedURL, err))
		return nil
	}

	scheme := strings.ToLower(parsed.Scheme)
	if dangerousSchemes[scheme] {
		res.addError("url", fmt.Errorf("%w: %s", ErrDangerousScheme, scheme))
		return parsed
	}
	if !schemeAllowed(scheme, v.cfg.AllowedSchemes) {
		res.addError("url", fmt.Errorf("%w: %s", ErrSchemeNotAllowed, scheme))
	}

	host := parsed.Hostname()
	if host == "" {
		res.addError("url", fmt.Errorf("%w: missing host", ErrMalformedURL))
		return parsed
	}

	if hasTraversal(parsed.Path) || strings.Contains(strings.ToLower(rawURL), "%2e%2e") {
		res.addError("url", ErrURLTraversal)
	}

	if parsed.User != nil {
		res.addWarning("url", "URL embeds userinfo credentials")
	}
	if scheme == "http" {
		res.addWarning("url", "plaintext HTTP transfer is not encrypted")
	}

	if hostMatches(host, v.cfg.BlockedHosts) {
		res.addError("url", fmt.Errorf("%w: %s", ErrHostBlocked, host))
	}
	if len(v.cfg.AllowedHosts) > 0 && !hostMatches(host, v.cfg.AllowedHosts) {
		res.addError("url", fmt.Errorf("%w: %s", ErrHostNotAllowed, host))
	}

	if v.cfg.BlockLocalhost && isLocalhostName(host) {
		res.addError("url", fmt.Errorf("%w: %s", ErrLocalhostBlocked, host))
		return parsed
	}
	if v.cfg.BlockLocalhost || v.cfg.BlockPrivateNetworks {
		for _, addr := range hostAddrs(ctx, host) {
			if v.cfg.BlockLocalhost && isLoopbackAddr(addr) {
				res.addError("url", fmt.Errorf("%w: %s resolves to %s", ErrLocalhostBlocked, host, addr))
				break
			}
			if v.cfg.BlockPrivateNetworks && isPrivateAddr(addr) {
				res.addError("url", fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, addr))
				break
			}
		}
	}
	return parsed
}

// checkPath runs every destination path check and records failures on
// res. Returns the path to use, sanitized when that mode is enabled.
func (v *Validator) checkPath(path string, res *Result) string {
	if path == "" {
		return path
	}

	if strings.ContainsRune(path, 0) {
		res.addError("path", ErrNulByte)
	}
	if v.cfg.MaxPathLength > 0 && len(path) > v.cfg.MaxPathLength {
		res.addError("path", fmt.Errorf("%w: %d bytes, limit %d", ErrPathTooLong, len(path), v.cfg.MaxPathLength))
	}
	if strings.HasPrefix(path, "~") {
		res.addError("path", ErrHomeReference)
	}
	if strings.Contains(path, "${") || strings.Contains(path, "`") {
		res.addError("path", ErrShellSubstitution)
	}
	if hasTraversal(filepath.ToSlash(path)) || strings.Contains(strings.ToLower(path), "%2e%2e") {
		res.addError("path", ErrPathTraversal)
	}

	root := v.workRoot()
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	if rel, err := filepath.Rel(root, abs); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		res.addError("path", fmt.Errorf("%w: %s resolves outside %s", ErrPathEscapesRoot, path, root))
	}
	slashAbs := filepath.ToSlash(abs)
	for _, p := range reservedPathPrefixes {
		if slashAbs == p || strings.HasPrefix(slashAbs, p+"/") {
			res.addError("path", fmt.Errorf("%w: %s", ErrReservedPath, p))
			break
		}
	}

	if v.cfg.SanitizePaths && res.IsValid {
		return sanitizePath(path)
	}
	return path
}

// checkHeaders runs every header check and records failures on res.
// Keys are visited in sorted order so repeated runs produce the same
// error order.
func (v *Validator) checkHeaders(headers map[string]string, res *Result) {
	if len(headers) == 0 {
		return
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := headers[k]
		field := "header:" + k
		if strings.ContainsAny(k, "\r\n") || strings.ContainsAny(val, "\r\n") {
			res.addError(field, ErrHeaderInjection)
		}
		if v.cfg.MaxHeaderValueLength > 0 && len(val) > v.cfg.MaxHeaderValueLength {
			res.addError(field, fmt.Errorf("%w: %d bytes, limit %d", ErrHeaderValueTooLong, len(val), v.cfg.MaxHeaderValueLength))
		}
		if riskyHeaders[strings.ToLower(k)] {
			res.addWarning(field, "header carries credentials or overrides request routing")
		}
	}
}

// riskyHeaders trigger a warning when set explicitly: they carry
// credentials or change how intermediaries route the request.
var riskyHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-forwarded-for":     true,
	"host":                true,
}

// workRoot returns the directory downloads must stay under, absolute.
func (v *Validator) workRoot() string {
	root := v.cfg.WorkRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		root = wd
	}
	if !filepath.IsAbs(root) {
		if a, err := filepath.Abs(root); err == nil {
			root = a
		}
	}
	return root
}

// hasTraversal reports whether a slash-separated path contains a ".."
// segment.
func hasTraversal(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// schemeAllowed reports whether the scheme appears in the allow-list.
func schemeAllowed(scheme string, allowed []string) bool {
	for _, s := range allowed {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

// hostMatches reports whether host equals an entry or is a subdomain
// of one. Matching is case-insensitive.
func hostMatches(host string, entries []string) bool {
	h := strings.ToLower(host)
	for _, e := range entries {
		entry := strings.ToLower(strings.TrimPrefix(e, "."))
		if entry == "" {
			continue
		}
		if h == entry || strings.HasSuffix(h, "."+entry) {
			return true
		}
	}
	return false
}

// sanitizePath rewrites a relative path to a conservative character
// set: every segment keeps only letters, digits, dot, underscore, and
// hyphen, and segments left empty or consisting only of dots are
// dropped. A path with nothing left becomes "download".
func sanitizePath(path string) string {
	segs := strings.Split(filepath.ToSlash(path), "/")
	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		var b strings.Builder
		for _, r := range seg {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			case r == '.' || r == '_' || r == '-':
				b.WriteRune(r)
			}
		}
		s := b.String()
		if strings.Trim(s, ".") == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "download"
	}
	return filepath.Join(out...)
}
