package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/nao1215/webget/internal/config"
	"github.com/nao1215/webget/internal/fetch"
	"github.com/nao1215/webget/internal/history"
	"github.com/nao1215/webget/internal/log"
	"github.com/nao1215/webget/internal/model"
	"github.com/nao1215/webget/internal/pipeline"
	"github.com/nao1215/webget/internal/report"
	"github.com/nao1215/webget/internal/security"
	"github.com/nao1215/webget/internal/transfer"
	"github.com/spf13/cobra"
)

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [url...]",
		Short: "Download files linked from the given URLs",
		Long: `Get crawls each seed URL, collects links to downloadable files, and
transfers them to the destination directory.

Pages are crawled breadth-first up to --level links away from the
seed. File links found on the way are downloaded in parallel batches
with resume, retry, and per-host circuit breaking. A seed that points
directly at a file is downloaded as-is.

Examples:
  # Download a single file
  webget get https://example.com/report.pdf

  # Download the PDFs referenced by a page
  webget get -A "*.pdf" https://example.com/docs/

  # Crawl two levels deep, five downloads at a time
  webget get -l 2 -b 5 -P ./downloads https://example.com/releases/

  # Stay inside the seed directory and below
  webget get --no-parent https://example.com/pub/files/

  # Download over SFTP with a private key
  webget get --ssh-user deploy --ssh-key ~/.ssh/id_ed25519 sftp://files.example.com/builds/app.tar.gz

Configuration file (.webget.yml) example:
  max_depth: 3
  accept:
    - "*.pdf"
  hosts:
    downloads.example.com:
      cookie: "session=abc123"`,
		Args: cobra.ArbitraryArgs,
		RunE: runGetCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("level", "l", config.DefaultMaxDepth,
		"Maximum number of link levels to follow from each seed")
	cmd.Flags().Bool("no-parent", false,
		"Never ascend above the seed URL's directory")
	cmd.Flags().BoolP("span-hosts", "H", false,
		"Follow links that leave the seed's host")
	cmd.Flags().StringSliceP("accept", "A", nil,
		"Download only files matching these globs (comma separated)")
	cmd.Flags().StringSliceP("reject", "R", nil,
		"Skip files matching these globs (comma separated)")
	cmd.Flags().Bool("ignore-robots", false,
		"Ignore robots.txt rules")

	// Transfer behavior flags
	cmd.Flags().StringP("dir", "P", ".",
		"Directory to save downloaded files into")
	cmd.Flags().Bool("flatten", false,
		"Save all files directly into the destination directory")
	cmd.Flags().Bool("no-resume", false,
		"Restart partial downloads from scratch")
	cmd.Flags().IntP("tries", "t", config.DefaultMaxRetries,
		"Number of retries after a failed download attempt")
	cmd.Flags().Int64("max-file-size", config.DefaultMaxFileSize,
		"Per-file size cap in bytes (0 disables the cap)")
	cmd.Flags().String("checksum", "",
		"Expected checksum of the downloaded file as <algorithm>:<hex>")

	// Politeness flags
	cmd.Flags().IntP("concurrent", "b", config.DefaultMaxConcurrent,
		"Number of parallel downloads per batch")
	cmd.Flags().DurationP("wait", "w", config.DefaultCrawlDelay,
		"Delay between page fetches")
	cmd.Flags().Duration("batch-delay", config.DefaultBatchDelay,
		"Pause between download batches")
	cmd.Flags().Int("rate-limit", config.DefaultRateLimitPerMinute,
		"Maximum requests per host per minute (0 disables)")

	// HTTP flags
	cmd.Flags().DurationP("timeout", "T", config.DefaultRequestTimeout,
		"Timeout for each page request")
	cmd.Flags().StringP("user-agent", "U", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().StringArray("header", nil,
		`Extra header as "Name: Value" (repeatable)`)
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for all traffic (socks5://host:port)")

	// Security policy flags
	cmd.Flags().Bool("allow-localhost", false,
		"Allow URLs resolving to loopback addresses")
	cmd.Flags().Bool("allow-private", false,
		"Allow URLs resolving to private network addresses")
	cmd.Flags().StringSlice("allow-host", nil,
		"Restrict downloads to these hosts and their subdomains")
	cmd.Flags().StringSlice("block-host", nil,
		"Refuse downloads from these hosts and their subdomains")

	// SFTP flags
	cmd.Flags().String("ssh-user", "", "SSH login name for sftp:// URLs")
	cmd.Flags().String("ssh-password", "", "SSH password for sftp:// URLs")
	cmd.Flags().String("ssh-key", "", "Path to a PEM private key for sftp:// URLs")
	cmd.Flags().String("ssh-known-hosts", "", "Path to a known_hosts file for SSH host verification")
	cmd.Flags().Bool("ssh-insecure", false, "Skip SSH host key verification")

	// Report flags
	cmd.Flags().StringP("output", "o", "simple",
		"Session report format: json, markdown, or simple")
	cmd.Flags().String("report-file", "",
		"Write the session report to this file instead of stdout")
	cmd.Flags().Bool("no-history", false,
		"Do not record this session in the history database")

	return cmd
}

// runGetCmd executes the get command.
func runGetCmd(cmd *cobra.Command, args []string) error {
	// Build config from the config file and flags
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runGet(ctx, cfg, logger, cmd.OutOrStdout())
}

// setupLogger creates a structured logger based on verbosity setting.
// Credentials carried in URLs and headers are redacted before output.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the config file path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// buildConfig creates a Config from the config file and command flags.
// Precedence is defaults, then config file values, then explicitly set
// flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.ConfigFilePath = getConfigFlag(cmd)
	cfg.Verbose = getVerboseFlag(cmd)

	// Load the config file before applying flags so that flags win.
	// If the user explicitly named a config file, a missing file is an
	// error. The default search finding nothing is not.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cf.ApplyTo(cfg)
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyTransferFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyClientFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	// Get positional arguments (seed URLs)
	cfg.Seeds = args

	return cfg, nil
}

// applyCrawlFlags overrides crawl settings from explicitly set flags.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("level") {
		if cfg.MaxDepth, err = flags.GetInt("level"); err != nil {
			return err
		}
	}
	if flags.Changed("no-parent") {
		if cfg.NoParent, err = flags.GetBool("no-parent"); err != nil {
			return err
		}
	}
	if flags.Changed("span-hosts") {
		if cfg.FollowExternalLinks, err = flags.GetBool("span-hosts"); err != nil {
			return err
		}
	}
	if flags.Changed("accept") {
		if cfg.AcceptPatterns, err = flags.GetStringSlice("accept"); err != nil {
			return err
		}
	}
	if flags.Changed("reject") {
		if cfg.RejectPatterns, err = flags.GetStringSlice("reject"); err != nil {
			return err
		}
	}
	if flags.Changed("ignore-robots") {
		if cfg.IgnoreRobots, err = flags.GetBool("ignore-robots"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrent") {
		if cfg.MaxConcurrent, err = flags.GetInt("concurrent"); err != nil {
			return err
		}
	}
	if flags.Changed("wait") {
		if cfg.CrawlDelay, err = flags.GetDuration("wait"); err != nil {
			return err
		}
	}
	if flags.Changed("batch-delay") {
		if cfg.BatchDelay, err = flags.GetDuration("batch-delay"); err != nil {
			return err
		}
	}

	return nil
}

// applyTransferFlags overrides transfer settings from explicitly set flags.
func applyTransferFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("dir") {
		if cfg.Destination, err = flags.GetString("dir"); err != nil {
			return err
		}
	}
	if flags.Changed("flatten") {
		if cfg.FlattenPaths, err = flags.GetBool("flatten"); err != nil {
			return err
		}
	}
	if flags.Changed("no-resume") {
		noResume, err := flags.GetBool("no-resume")
		if err != nil {
			return err
		}
		cfg.Resume = !noResume
	}
	if flags.Changed("tries") {
		if cfg.MaxRetries, err = flags.GetInt("tries"); err != nil {
			return err
		}
	}
	if flags.Changed("max-file-size") {
		if cfg.MaxFileSize, err = flags.GetInt64("max-file-size"); err != nil {
			return err
		}
	}
	if flags.Changed("checksum") {
		if cfg.Checksum, err = flags.GetString("checksum"); err != nil {
			return err
		}
	}
	if flags.Changed("ssh-user") {
		if cfg.SSHUser, err = flags.GetString("ssh-user"); err != nil {
			return err
		}
	}
	if flags.Changed("ssh-password") {
		if cfg.SSHPassword, err = flags.GetString("ssh-password"); err != nil {
			return err
		}
	}
	if flags.Changed("ssh-key") {
		if cfg.SSHPrivateKeyPath, err = flags.GetString("ssh-key"); err != nil {
			return err
		}
	}
	if flags.Changed("ssh-known-hosts") {
		if cfg.SSHKnownHostsPath, err = flags.GetString("ssh-known-hosts"); err != nil {
			return err
		}
	}
	if flags.Changed("ssh-insecure") {
		if cfg.SSHInsecureIgnoreHostKey, err = flags.GetBool("ssh-insecure"); err != nil {
			return err
		}
	}

	return nil
}

// applyClientFlags overrides HTTP and security settings from explicitly
// set flags.
func applyClientFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("timeout") {
		if cfg.RequestTimeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	if flags.Changed("header") {
		raw, err := flags.GetStringArray("header")
		if err != nil {
			return err
		}
		headers, err := parseHeaderFlags(raw)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for name, value := range headers {
			cfg.Headers[name] = value
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("rate-limit") {
		if cfg.RateLimitPerMinute, err = flags.GetInt("rate-limit"); err != nil {
			return err
		}
	}
	if flags.Changed("allow-localhost") {
		allow, err := flags.GetBool("allow-localhost")
		if err != nil {
			return err
		}
		cfg.BlockLocalhost = !allow
	}
	if flags.Changed("allow-private") {
		allow, err := flags.GetBool("allow-private")
		if err != nil {
			return err
		}
		cfg.BlockPrivateNetworks = !allow
	}
	if flags.Changed("allow-host") {
		if cfg.AllowedHosts, err = flags.GetStringSlice("allow-host"); err != nil {
			return err
		}
	}
	if flags.Changed("block-host") {
		if cfg.BlockedHosts, err = flags.GetStringSlice("block-host"); err != nil {
			return err
		}
	}

	return nil
}

// applyReportFlags overrides report settings from explicitly set flags.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("output") {
		format, err := flags.GetString("output")
		if err != nil {
			return err
		}
		switch format {
		case "json":
			cfg.JSONReport = true
			cfg.MarkdownReport = false
		case "markdown":
			cfg.MarkdownReport = true
			cfg.JSONReport = false
		case "simple":
			cfg.JSONReport = false
			cfg.MarkdownReport = false
		default:
			return fmt.Errorf("invalid output format %q (expected json, markdown, or simple)", format)
		}
	}
	if flags.Changed("report-file") {
		if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
			return err
		}
	}
	if flags.Changed("no-history") {
		noHistory, err := flags.GetBool("no-history")
		if err != nil {
			return err
		}
		cfg.SaveHistory = !noHistory
	}

	return nil
}

// parseHeaderFlags parses repeated "Name: Value" header flags.
func parseHeaderFlags(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (expected \"Name: Value\")", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// runGet executes the download session.
func runGet(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	logger.Info("starting download session",
		"seeds", cfg.Seeds,
		"destination", cfg.Destination,
		"maxDepth", cfg.MaxDepth,
		"concurrent", cfg.MaxConcurrent,
	)

	// Open the history database if saving is enabled. History must
	// never block a download run, so failures only log.
	var hist *history.DB
	if cfg.SaveHistory {
		db, err := history.Open(cfg.DBDir, history.DefaultOptions())
		if err != nil {
			logger.Warn("history database unavailable, continuing without history",
				"dir", cfg.DBDir,
				"error", err,
			)
		} else {
			hist = db
			defer hist.Close()
			logger.Debug("history database opened", "dir", cfg.DBDir)
		}
	}

	cookie := applyHostOverrides(cfg)

	client, validator, downloader, err := buildEngine(cfg, cookie, logger)
	if err != nil {
		return err
	}

	session := model.NewSession(uuid.NewString(), cfg.Seeds, cfg.Destination)

	fmt.Fprintf(out, "Downloading from %d seed(s) into %s...\n\n", len(cfg.Seeds), cfg.Destination)
	startTime := time.Now()

	p := buildPipeline(cfg, client, validator, downloader, logger, out)
	execErr := p.Execute(ctx, session)
	session.Finish(execErr)

	if execErr == nil {
		fmt.Fprintf(out, "\nSession completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))
	}

	// Generate and output the session report
	if err := outputReport(cfg, session, out); err != nil {
		logger.Error("report output failed", "session", session.ID, "error", err)
	}

	// Save to the history database if enabled
	if err := saveSessionHistory(ctx, hist, session, logger); err != nil {
		logger.Error("failed to save session history", "session", session.ID, "error", err)
	}

	if execErr != nil {
		return execErr
	}
	if summary := session.Summarize(); summary.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", summary.Failed, summary.Requested)
	}
	return nil
}

// applyHostOverrides folds per-host config file settings into the run
// when every seed URL targets the same host. Multi-host runs keep the
// global settings, since a host-scoped cookie must not leak to other
// hosts through a standing header. Returns the cookie to send, if any.
func applyHostOverrides(cfg *config.Config) string {
	if cfg.HostConfigs == nil || len(cfg.Seeds) == 0 {
		return ""
	}

	host := ""
	for _, seed := range cfg.Seeds {
		u, err := url.Parse(seed)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		if host == "" {
			host = u.Hostname()
		} else if !strings.EqualFold(u.Hostname(), host) {
			return ""
		}
	}

	hostCfg := cfg.HostConfigs.GetHostConfig(host)
	if len(hostCfg.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(hostCfg.Headers))
		}
		for name, value := range hostCfg.Headers {
			cfg.Headers[name] = value
		}
	}
	if hostCfg.Delay != nil {
		cfg.CrawlDelay = hostCfg.Delay.Std()
	}
	return hostCfg.Cookie
}

// buildEngine wires the HTTP client, security validator, and transfer
// engine from the resolved configuration.
func buildEngine(cfg *config.Config, cookie string, logger *slog.Logger) (*fetch.Client, *security.Validator, *transfer.Downloader, error) {
	var socksAddr string
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, nil, nil, fmt.Errorf("invalid proxy URL %q (expected socks5://host:port)", cfg.ProxyURL)
		}
		socksAddr = u.Host
	}

	client, err := fetch.NewClient(fetch.Options{
		UserAgent:    cfg.UserAgent,
		Headers:      cfg.Headers,
		Cookie:       cookie,
		Timeout:      cfg.RequestTimeout,
		MaxBodyBytes: cfg.MaxPageBodySize,
		SOCKS5Proxy:  socksAddr,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	validator := security.NewValidator(security.Config{
		MaxURLLength:         cfg.MaxURLLength,
		AllowedSchemes:       cfg.AllowedSchemes,
		BlockedHosts:         cfg.BlockedHosts,
		AllowedHosts:         cfg.AllowedHosts,
		BlockLocalhost:       cfg.BlockLocalhost,
		BlockPrivateNetworks: cfg.BlockPrivateNetworks,
		MaxPathLength:        cfg.MaxPathLength,
		WorkRoot:             cfg.Destination,
		SanitizePaths:        cfg.SanitizePaths,
		MaxHeaderValueLength: config.DefaultMaxHeaderValueLength,
		MaxFileSize:          cfg.MaxFileSize,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
	})

	downloader := transfer.NewDownloader(transfer.Config{
		MaxRetries:           cfg.MaxRetries,
		RetryBaseDelay:       cfg.RetryBaseDelay,
		RetryMaxDelay:        cfg.RetryMaxDelay,
		RetryExponentialBase: cfg.RetryExponentialBase,
		Jitter:               cfg.RetryJitter,
		Resume:               cfg.Resume,
		DialTimeout:          cfg.RequestTimeout,
		FailureThreshold:     cfg.BreakerFailureThreshold,
		MonitorWindow:        cfg.BreakerMonitorWindow,
		ResetTimeout:         cfg.BreakerResetTimeout,
	}, client, validator, logger)

	return client, validator, downloader, nil
}

// buildPipeline assembles the discover and transfer steps with
// progress output streamed per finished download.
func buildPipeline(cfg *config.Config, client *fetch.Client, validator *security.Validator, downloader *transfer.Downloader, logger *slog.Logger, out io.Writer) *pipeline.Pipeline {
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
	}

	var mu sync.Mutex
	progress := func(result model.DownloadResult, _ int) {
		mu.Lock()
		defer mu.Unlock()

		if result.Success {
			note := humanize.Bytes(uint64(result.Size))
			if result.Resumed {
				note += ", resumed"
			}
			fmt.Fprintf(out, "  [ok] %s (%s)\n", result.FilePath, note)
		} else {
			fmt.Fprintf(out, "  [!!] %s: %s\n", result.URL, result.ErrorMessage)
		}
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineMaxDepth(cfg.MaxDepth),
		pipeline.WithPipelineConcurrency(cfg.MaxConcurrent),
		pipeline.WithPipelineCrawlDelay(cfg.CrawlDelay),
		pipeline.WithPipelineBatchDelay(cfg.BatchDelay),
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
		pipeline.WithPipelineResultCallback(progress),
		pipeline.WithPipelineLogger(logger),
	}
	if cfg.NoParent {
		configOpts = append(configOpts, pipeline.WithPipelineNoParent(true))
	}
	if cfg.FollowExternalLinks {
		configOpts = append(configOpts, pipeline.WithPipelineFollowExternalLinks(true))
	}
	if cfg.IgnoreRobots {
		configOpts = append(configOpts, pipeline.WithPipelineIgnoreRobots(true))
	}
	if cfg.FlattenPaths {
		configOpts = append(configOpts, pipeline.WithPipelineFlattenPaths(true))
	}
	if len(cfg.AcceptPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineAcceptPatterns(cfg.AcceptPatterns))
	}
	if len(cfg.RejectPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineRejectPatterns(cfg.RejectPatterns))
	}
	if cfg.Checksum != "" {
		configOpts = append(configOpts, pipeline.WithPipelineChecksum(cfg.Checksum))
	}
	if ssh := sshOptions(cfg); ssh != nil {
		configOpts = append(configOpts, pipeline.WithPipelineSSHOptions(ssh))
	}

	return pipeline.DefaultPipeline(client, validator, downloader, pipelineOpts, configOpts...)
}

// sshOptions builds SFTP credentials from the configuration. Returns
// nil when no SSH setting is present.
func sshOptions(cfg *config.Config) *model.SSHOptions {
	if cfg.SSHUser == "" && cfg.SSHPassword == "" && cfg.SSHPrivateKeyPath == "" &&
		cfg.SSHKnownHostsPath == "" && !cfg.SSHInsecureIgnoreHostKey {
		return nil
	}
	return &model.SSHOptions{
		User:                  cfg.SSHUser,
		Password:              cfg.SSHPassword,
		PrivateKeyPath:        cfg.SSHPrivateKeyPath,
		KnownHostsPath:        cfg.SSHKnownHostsPath,
		InsecureIgnoreHostKey: cfg.SSHInsecureIgnoreHostKey,
	}
}

// outputReport writes the session report in the requested format.
func outputReport(cfg *config.Config, session *model.Session, out io.Writer) error {
	// Determine output destination
	var output io.Writer = out
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}

		// Reports can carry URLs with credentials, so keep them
		// readable by the owner only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output)
	}

	_, err := writer.Write(session)
	return err
}

// saveSessionHistory records the finished session. A nil db is a no-op.
func saveSessionHistory(ctx context.Context, db *history.DB, session *model.Session, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	// Record the session even when the run was interrupted.
	if err := db.SaveSession(context.WithoutCancel(ctx), session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	logger.Info("session saved to history", "session", session.ID)
	return nil
}
