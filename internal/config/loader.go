package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".webget.yml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Duration wraps time.Duration so YAML values can be written as duration
// strings ("500ms", "2s", "1m30s").
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// File represents the structure of the .webget.yml configuration file.
// Optional scalar settings use pointers so an absent key can be told
// apart from an explicit zero or false; flags still override anything
// set here.
type File struct {
	// Destination is the base download directory.
	Destination string `yaml:"destination,omitempty"`

	// MaxDepth overrides the crawl depth limit.
	MaxDepth *int `yaml:"max_depth,omitempty"`

	// MaxConcurrent overrides the per-batch concurrency ceiling.
	MaxConcurrent *int `yaml:"max_concurrent,omitempty"`

	// CrawlDelay overrides the politeness delay between page fetches.
	CrawlDelay *Duration `yaml:"crawl_delay,omitempty"`

	// BatchDelay overrides the pause between work batches.
	BatchDelay *Duration `yaml:"batch_delay,omitempty"`

	// NoParent restricts crawling to the seed's directory subtree.
	NoParent *bool `yaml:"no_parent,omitempty"`

	// FollowExternalLinks allows page recursion across hosts.
	FollowExternalLinks *bool `yaml:"follow_external_links,omitempty"`

	// IgnoreRobots disables robots.txt compliance.
	IgnoreRobots *bool `yaml:"ignore_robots,omitempty"`

	// Accept lists glob patterns a downloadable URL must match.
	Accept []string `yaml:"accept,omitempty"`

	// Reject lists glob patterns that exclude downloadable URLs.
	Reject []string `yaml:"reject,omitempty"`

	// FlattenPaths writes all files directly into Destination.
	FlattenPaths *bool `yaml:"flatten_paths,omitempty"`

	// Resume toggles partial-file resume.
	Resume *bool `yaml:"resume,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"user_agent,omitempty"`

	// ProxyURL routes HTTP traffic through a SOCKS5 proxy.
	ProxyURL string `yaml:"proxy_url,omitempty"`

	// Headers are extra HTTP headers added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Retry overrides the retry policy.
	Retry *FileRetry `yaml:"retry,omitempty"`

	// CircuitBreaker overrides the per-host circuit breaker policy.
	CircuitBreaker *FileBreaker `yaml:"circuit_breaker,omitempty"`

	// Security overrides the security validator policy.
	Security *FileSecurity `yaml:"security,omitempty"`

	// Hosts maps hostnames to per-host overrides.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// FileRetry is the retry section of the configuration file.
type FileRetry struct {
	// MaxRetries is the number of retry attempts after a failure.
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// BaseDelay is the backoff delay before the first retry.
	BaseDelay *Duration `yaml:"base_delay,omitempty"`

	// MaxDelay caps the computed backoff delay.
	MaxDelay *Duration `yaml:"max_delay,omitempty"`

	// ExponentialBase is the backoff multiplier between attempts.
	ExponentialBase *float64 `yaml:"exponential_base,omitempty"`

	// Jitter toggles randomized jitter on backoff delays.
	Jitter *bool `yaml:"jitter,omitempty"`
}

// FileBreaker is the circuit breaker section of the configuration file.
type FileBreaker struct {
	// FailureThreshold is the failure count that opens a breaker.
	FailureThreshold *int `yaml:"failure_threshold,omitempty"`

	// MonitorWindow is how far back failures count toward the threshold.
	MonitorWindow *Duration `yaml:"monitor_window,omitempty"`

	// ResetTimeout is the open-state cool-down before a trial request.
	ResetTimeout *Duration `yaml:"reset_timeout,omitempty"`
}

// FileSecurity is the security section of the configuration file.
type FileSecurity struct {
	// AllowedSchemes is the URL scheme allow-list.
	AllowedSchemes []string `yaml:"allowed_schemes,omitempty"`

	// BlockedHosts rejects matching hostnames (exact or suffix).
	BlockedHosts []string `yaml:"blocked_hosts,omitempty"`

	// AllowedHosts restricts requests to matching hostnames when set.
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`

	// BlockLocalhost toggles loopback address rejection.
	BlockLocalhost *bool `yaml:"block_localhost,omitempty"`

	// BlockPrivateNetworks toggles private address range rejection.
	BlockPrivateNetworks *bool `yaml:"block_private_networks,omitempty"`

	// SanitizePaths rewrites unsafe destination paths instead of
	// rejecting them.
	SanitizePaths *bool `yaml:"sanitize_paths,omitempty"`

	// MaxFileSize caps a single transfer in bytes.
	MaxFileSize *int64 `yaml:"max_file_size,omitempty"`

	// MaxURLLength is the longest accepted URL.
	MaxURLLength *int `yaml:"max_url_length,omitempty"`

	// MaxPathLength is the longest accepted destination path.
	MaxPathLength *int `yaml:"max_path_length,omitempty"`

	// RateLimitPerMinute is the per-host request budget.
	RateLimitPerMinute *int `yaml:"rate_limit_per_minute,omitempty"`
}

// HostConfig holds per-host overrides for sites that need credentials or
// a gentler request rate.
type HostConfig struct {
	// Cookie is an HTTP cookie sent with requests to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers for requests to this host. They
	// override global headers on key collision.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Delay overrides the politeness delay for this host.
	Delay *Duration `yaml:"delay,omitempty"`
}

// LoadConfigFile loads settings from a YAML file. If the file does not
// exist it returns ErrConfigNotFound; callers decide whether that is an
// error based on whether the path was explicitly given by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	if cf.Hosts == nil {
		cf.Hosts = make(map[string]HostConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following
// order:
//  1. If configPath is specified, use it directly
//  2. .webget.yml in the current directory
//  3. .webget.yml in the user's home directory
//  4. config.yml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string
// if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), "config.yml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}

// ApplyTo merges file settings into cfg. Only keys present in the file
// change cfg; flags applied afterwards override both.
func (cf *File) ApplyTo(cfg *Config) {
	if cf.Destination != "" {
		cfg.Destination = cf.Destination
	}
	if cf.MaxDepth != nil {
		cfg.MaxDepth = *cf.MaxDepth
	}
	if cf.MaxConcurrent != nil {
		cfg.MaxConcurrent = *cf.MaxConcurrent
	}
	if cf.CrawlDelay != nil {
		cfg.CrawlDelay = cf.CrawlDelay.Std()
	}
	if cf.BatchDelay != nil {
		cfg.BatchDelay = cf.BatchDelay.Std()
	}
	if cf.NoParent != nil {
		cfg.NoParent = *cf.NoParent
	}
	if cf.FollowExternalLinks != nil {
		cfg.FollowExternalLinks = *cf.FollowExternalLinks
	}
	if cf.IgnoreRobots != nil {
		cfg.IgnoreRobots = *cf.IgnoreRobots
	}
	if len(cf.Accept) > 0 {
		cfg.AcceptPatterns = cf.Accept
	}
	if len(cf.Reject) > 0 {
		cfg.RejectPatterns = cf.Reject
	}
	if cf.FlattenPaths != nil {
		cfg.FlattenPaths = *cf.FlattenPaths
	}
	if cf.Resume != nil {
		cfg.Resume = *cf.Resume
	}
	if cf.UserAgent != "" {
		cfg.UserAgent = cf.UserAgent
	}
	if cf.ProxyURL != "" {
		cfg.ProxyURL = cf.ProxyURL
	}
	if len(cf.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(cf.Headers))
		}
		for k, v := range cf.Headers {
			cfg.Headers[k] = v
		}
	}

	if cf.Retry != nil {
		if cf.Retry.MaxRetries != nil {
			cfg.MaxRetries = *cf.Retry.MaxRetries
		}
		if cf.Retry.BaseDelay != nil {
			cfg.RetryBaseDelay = cf.Retry.BaseDelay.Std()
		}
		if cf.Retry.MaxDelay != nil {
			cfg.RetryMaxDelay = cf.Retry.MaxDelay.Std()
		}
		if cf.Retry.ExponentialBase != nil {
			cfg.RetryExponentialBase = *cf.Retry.ExponentialBase
		}
		if cf.Retry.Jitter != nil {
			cfg.RetryJitter = *cf.Retry.Jitter
		}
	}

	if cf.CircuitBreaker != nil {
		if cf.CircuitBreaker.FailureThreshold != nil {
			cfg.BreakerFailureThreshold = *cf.CircuitBreaker.FailureThreshold
		}
		if cf.CircuitBreaker.MonitorWindow != nil {
			cfg.BreakerMonitorWindow = cf.CircuitBreaker.MonitorWindow.Std()
		}
		if cf.CircuitBreaker.ResetTimeout != nil {
			cfg.BreakerResetTimeout = cf.CircuitBreaker.ResetTimeout.Std()
		}
	}

	if cf.Security != nil {
		if len(cf.Security.AllowedSchemes) > 0 {
			cfg.AllowedSchemes = cf.Security.AllowedSchemes
		}
		if len(cf.Security.BlockedHosts) > 0 {
			cfg.BlockedHosts = cf.Security.BlockedHosts
		}
		if len(cf.Security.AllowedHosts) > 0 {
			cfg.AllowedHosts = cf.Security.AllowedHosts
		}
		if cf.Security.BlockLocalhost != nil {
			cfg.BlockLocalhost = *cf.Security.BlockLocalhost
		}
		if cf.Security.BlockPrivateNetworks != nil {
			cfg.BlockPrivateNetworks = *cf.Security.BlockPrivateNetworks
		}
		if cf.Security.SanitizePaths != nil {
			cfg.SanitizePaths = *cf.Security.SanitizePaths
		}
		if cf.Security.MaxFileSize != nil {
			cfg.MaxFileSize = *cf.Security.MaxFileSize
		}
		if cf.Security.MaxURLLength != nil {
			cfg.MaxURLLength = *cf.Security.MaxURLLength
		}
		if cf.Security.MaxPathLength != nil {
			cfg.MaxPathLength = *cf.Security.MaxPathLength
		}
		if cf.Security.RateLimitPerMinute != nil {
			cfg.RateLimitPerMinute = *cf.Security.RateLimitPerMinute
		}
	}

	cfg.HostConfigs = cf
}

// GetHostConfig returns the per-host overrides for a hostname.
// Returns a zero HostConfig when the host has no entry.
func (cf *File) GetHostConfig(host string) HostConfig {
	if cf == nil || cf.Hosts == nil {
		return HostConfig{}
	}
	return cf.Hosts[host]
}
