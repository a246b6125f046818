package config

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Network defaults lean conservative:
// webget talks to servers it does not own, so politeness and bounded
// resource use win over raw throughput.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "webget"

	// DefaultMaxDepth is the maximum recursion depth for crawling.
	// Seeds sit at depth 0 and pages at the limit are never fetched;
	// 5 levels reaches most content on typical sites without wandering
	// into infinite calendar-style link farms. Override with --level.
	DefaultMaxDepth = 5

	// DefaultMaxConcurrent is the number of simultaneous transfers and
	// page fetches within a batch. Five connections is enough to keep a
	// fast link busy while staying polite to a single origin server.
	DefaultMaxConcurrent = 5

	// DefaultBatchDelay is the pause between work batches. It spreads
	// load so a run never hammers a server in sustained bursts.
	DefaultBatchDelay = 500 * time.Millisecond

	// DefaultCrawlDelay is the politeness delay between page fetches
	// against the same host during discovery.
	DefaultCrawlDelay = 500 * time.Millisecond

	// DefaultRequestTimeout bounds each page or file request. Thirty
	// seconds tolerates slow servers without letting a dead one stall a
	// worker for minutes.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRobotsTimeout bounds robots.txt fetches. Robots files are
	// small; a server that cannot produce one in ten seconds is treated
	// as having none (crawling proceeds).
	DefaultRobotsTimeout = 10 * time.Second

	// DefaultUserAgent identifies webget in HTTP requests. A descriptive
	// User-Agent lets operators identify and, if needed, rate-limit this
	// client in their logs.
	DefaultUserAgent = "webget/1.0 (+https://github.com/nao1215/webget)"

	// DefaultMaxPageBodySize limits how much of an HTML page is read for
	// link extraction. 5MB covers real-world pages; larger responses are
	// truncated to keep memory bounded.
	DefaultMaxPageBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxRetries is the number of retry attempts after a failed
	// transfer. Three retries with exponential backoff rides out most
	// transient network problems.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the backoff delay before the first retry.
	DefaultRetryBaseDelay = 1000 * time.Millisecond

	// DefaultRetryMaxDelay caps the backoff delay regardless of attempt
	// count.
	DefaultRetryMaxDelay = 30000 * time.Millisecond

	// DefaultRetryExponentialBase is the backoff multiplier between
	// attempts: delay = base * exponentialBase^(attempt-1).
	DefaultRetryExponentialBase = 2.0

	// DefaultBreakerFailureThreshold is the number of failures within
	// the monitor window that opens a host's circuit breaker.
	DefaultBreakerFailureThreshold = 5

	// DefaultBreakerMonitorWindow is how far back failures count toward
	// the threshold.
	DefaultBreakerMonitorWindow = 60 * time.Second

	// DefaultBreakerResetTimeout is how long an open breaker blocks a
	// host before allowing a half-open trial request.
	DefaultBreakerResetTimeout = 30 * time.Second

	// DefaultMaxURLLength is the longest URL accepted by validation.
	// 2048 matches the practical limit of common servers and browsers.
	DefaultMaxURLLength = 2048

	// DefaultMaxPathLength is the longest destination path accepted by
	// validation. 260 keeps paths portable to Windows-constrained
	// filesystems.
	DefaultMaxPathLength = 260

	// DefaultMaxFileSize caps a single transfer at 10 GiB. The check
	// runs as soon as Content-Length is known so oversized transfers
	// fail before wasting bandwidth.
	DefaultMaxFileSize = 10 * 1024 * 1024 * 1024 // 10 GiB

	// DefaultMaxHeaderValueLength is the longest accepted header value.
	DefaultMaxHeaderValueLength = 8 * 1024 // 8 KiB

	// DefaultRateLimitPerMinute is the per-host request budget enforced
	// by the security validator's sliding window.
	DefaultRateLimitPerMinute = 60
)

// DefaultAllowedSchemes lists the URL schemes accepted by default.
// Everything else (javascript:, data:, file:, ftp:) is rejected.
func DefaultAllowedSchemes() []string {
	return []string{"http", "https", "sftp"}
}

// Config holds all configuration options for webget. A single flat
// struct keeps flag wiring and YAML merging simple; component packages
// receive only the values they need, copied out by the CLI layer.
type Config struct {
	// Seeds is the list of URLs to start from. At least one is required
	// for a download run.
	Seeds []string

	// Destination is the base directory downloaded files are written
	// under. Defaults to the current directory.
	Destination string

	// MaxDepth is the maximum recursion depth for crawling. Pages at
	// this depth are never fetched: 1 fetches only the seed pages, 0
	// fetches nothing.
	MaxDepth int

	// MaxConcurrent is the number of concurrent workers per batch, for
	// both page fetches during discovery and file transfers.
	MaxConcurrent int

	// BatchDelay is the pause between consecutive work batches.
	BatchDelay time.Duration

	// CrawlDelay is the politeness delay between page fetches against
	// the same host during discovery.
	CrawlDelay time.Duration

	// RequestTimeout bounds each individual page or file request.
	RequestTimeout time.Duration

	// RobotsTimeout bounds robots.txt fetches.
	RobotsTimeout time.Duration

	// IgnoreRobots disables robots.txt compliance when true.
	// Compliance is on by default.
	IgnoreRobots bool

	// NoParent restricts crawling to URLs at or below the directory of
	// the page that discovered them, like wget's --no-parent.
	NoParent bool

	// FollowExternalLinks allows crawling pages on hosts other than the
	// discovering page's host. Off by default; downloads themselves are
	// not restricted by this rule, only page recursion.
	FollowExternalLinks bool

	// AcceptPatterns are glob patterns a downloadable URL must match
	// (at least one) to be kept. Empty means accept everything not
	// rejected.
	AcceptPatterns []string

	// RejectPatterns are glob patterns that exclude downloadable URLs.
	// Checked before AcceptPatterns and short-circuit to exclusion.
	RejectPatterns []string

	// FlattenPaths disables the hostname/path directory structure and
	// writes every file directly into Destination by its base name.
	FlattenPaths bool

	// Resume enables continuing partial downloads from their current
	// byte offset via HTTP Range requests. On by default.
	Resume bool

	// MaxRetries is the number of retry attempts after a failed
	// transfer attempt. Zero disables retries.
	MaxRetries int

	// RetryBaseDelay is the backoff delay before the first retry.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the computed backoff delay.
	RetryMaxDelay time.Duration

	// RetryExponentialBase is the backoff multiplier between attempts.
	RetryExponentialBase float64

	// RetryJitter adds randomized jitter to backoff delays so parallel
	// clients retrying the same server spread out. On by default.
	RetryJitter bool

	// BreakerFailureThreshold is the failure count within the monitor
	// window that opens a host's circuit breaker.
	BreakerFailureThreshold int

	// BreakerMonitorWindow is how far back failures count toward the
	// threshold.
	BreakerMonitorWindow time.Duration

	// BreakerResetTimeout is how long an open breaker blocks a host
	// before allowing a half-open trial request.
	BreakerResetTimeout time.Duration

	// MaxURLLength is the longest URL accepted by validation.
	MaxURLLength int

	// MaxPathLength is the longest destination path accepted by
	// validation.
	MaxPathLength int

	// MaxFileSize caps a single transfer, enforced when Content-Length
	// becomes known and again while streaming the body.
	MaxFileSize int64

	// AllowedSchemes is the URL scheme allow-list.
	AllowedSchemes []string

	// BlockedHosts rejects URLs whose hostname matches an entry exactly
	// or as a suffix ("example.com" blocks "cdn.example.com").
	BlockedHosts []string

	// AllowedHosts, when non-empty, restricts URLs to matching hosts
	// (exact or suffix match).
	AllowedHosts []string

	// BlockLocalhost rejects URLs that resolve to loopback addresses.
	// On by default; disable for intentional local testing.
	BlockLocalhost bool

	// BlockPrivateNetworks rejects URLs that resolve to RFC1918,
	// link-local, and IPv6 unique-local ranges. On by default; this is
	// the SSRF guard.
	BlockPrivateNetworks bool

	// SanitizePaths rewrites unsafe destination paths into safe ones
	// instead of rejecting the request. Off by default (reject mode).
	SanitizePaths bool

	// RateLimitPerMinute is the per-host request budget for the
	// sliding-window rate limiter. Zero disables local rate limiting.
	RateLimitPerMinute int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxPageBodySize limits how much of an HTML page is read during
	// discovery.
	MaxPageBodySize int64

	// Headers are extra HTTP headers added to every request.
	Headers map[string]string

	// ProxyURL routes all HTTP traffic through a SOCKS5 proxy when set,
	// in "socks5://host:port" form.
	ProxyURL string

	// Checksum is an optional expected digest for single-file runs, in
	// "sha256:<hex>" or "blake3:<hex>" form.
	Checksum string

	// SSHUser is the login name for sftp:// transfers.
	SSHUser string

	// SSHPassword is the password for sftp:// transfers. Prefer
	// SSHPrivateKeyPath; passwords on the command line leak into shell
	// history.
	SSHPassword string

	// SSHPrivateKeyPath points to a PEM private key for sftp://
	// transfers.
	SSHPrivateKeyPath string

	// SSHKnownHostsPath points to an OpenSSH known_hosts file used to
	// verify sftp:// server identities.
	SSHKnownHostsPath string

	// SSHInsecureIgnoreHostKey disables host key verification for
	// sftp:// transfers. Explicit opt-in only.
	SSHInsecureIgnoreHostKey bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. If empty,
	// the tool searches for .webget.yml in the current directory and
	// then in the user's home directory.
	ConfigFilePath string

	// HostConfigs holds per-host overrides loaded from the config file.
	HostConfigs *File

	// JSONReport enables JSON report output instead of the plain text
	// summary. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of the
	// plain text summary. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the session report to this path instead of
	// stdout. Parent directories are created as needed.
	ReportFile string

	// DBDir is the directory holding the history database. Defaults to
	// the XDG data directory. Empty after explicit --no-history.
	DBDir string

	// SaveHistory controls whether the session is recorded in the
	// history database. On by default.
	SaveHistory bool
}

// NewConfig creates a new Config with default values. All fields are set
// to safe, sensible defaults; callers override specific values from the
// config file and flags afterwards.
func NewConfig() *Config {
	return &Config{
		Destination:             ".",
		MaxDepth:                DefaultMaxDepth,
		MaxConcurrent:           DefaultMaxConcurrent,
		BatchDelay:              DefaultBatchDelay,
		CrawlDelay:              DefaultCrawlDelay,
		RequestTimeout:          DefaultRequestTimeout,
		RobotsTimeout:           DefaultRobotsTimeout,
		Resume:                  true,
		MaxRetries:              DefaultMaxRetries,
		RetryBaseDelay:          DefaultRetryBaseDelay,
		RetryMaxDelay:           DefaultRetryMaxDelay,
		RetryExponentialBase:    DefaultRetryExponentialBase,
		RetryJitter:             true,
		BreakerFailureThreshold: DefaultBreakerFailureThreshold,
		BreakerMonitorWindow:    DefaultBreakerMonitorWindow,
		BreakerResetTimeout:     DefaultBreakerResetTimeout,
		MaxURLLength:            DefaultMaxURLLength,
		MaxPathLength:           DefaultMaxPathLength,
		MaxFileSize:             DefaultMaxFileSize,
		AllowedSchemes:          DefaultAllowedSchemes(),
		BlockLocalhost:          true,
		BlockPrivateNetworks:    true,
		RateLimitPerMinute:      DefaultRateLimitPerMinute,
		UserAgent:               DefaultUserAgent,
		MaxPageBodySize:         DefaultMaxPageBodySize,
		DBDir:                   XDGDataDir(),
		SaveHistory:             true,
	}
}

// XDGDataDir returns the XDG data directory for webget.
// On Linux: ~/.local/share/webget
// On macOS: ~/Library/Application Support/webget
// On Windows: %LOCALAPPDATA%\webget
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webget.
// On Linux: ~/.config/webget
// On macOS: ~/Library/Application Support/webget
// On Windows: %APPDATA%\webget
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for webget.
// On Linux: ~/.cache/webget
// On macOS: ~/Library/Caches/webget
// On Windows: %LOCALAPPDATA%\webget\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid. It returns a specific
// sentinel error describing the first problem found; fixing one error
// often makes later ones irrelevant, so errors are not collected.
// Called once after CLI parsing, before any network activity.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}

	if c.RequestTimeout <= 0 || c.RobotsTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxConcurrent <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}

	if c.CrawlDelay < 0 || c.BatchDelay < 0 {
		return ErrInvalidDelay
	}

	if c.MaxRetries < 0 {
		return ErrInvalidRetryCount
	}

	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return ErrInvalidRetryDelay
	}

	// A base below 1 would shrink delays on every attempt.
	if c.RetryExponentialBase < 1 {
		return ErrInvalidExponentialBase
	}

	if c.BreakerFailureThreshold <= 0 || c.BreakerMonitorWindow <= 0 || c.BreakerResetTimeout <= 0 {
		return ErrInvalidBreakerConfig
	}

	if c.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}

	if c.MaxPageBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	if c.RateLimitPerMinute < 0 {
		return ErrInvalidRateLimit
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.Checksum != "" {
		if err := validateChecksumSpec(c.Checksum); err != nil {
			return err
		}
	}

	return nil
}

// validateChecksumSpec checks the "algo:hex" digest form.
// Supported algorithms are sha256 and blake3, both with 32-byte digests.
func validateChecksumSpec(spec string) error {
	algo, hexDigest, ok := strings.Cut(spec, ":")
	if !ok {
		return ErrInvalidChecksum
	}
	if algo != "sha256" && algo != "blake3" {
		return ErrInvalidChecksum
	}
	digest, err := hex.DecodeString(hexDigest)
	if err != nil || len(digest) != 32 {
		return ErrInvalidChecksum
	}
	return nil
}
