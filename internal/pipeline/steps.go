package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/webget/internal/config"
	"github.com/nao1215/webget/internal/crawler"
	"github.com/nao1215/webget/internal/fetch"
	"github.com/nao1215/webget/internal/model"
	"github.com/nao1215/webget/internal/security"
	"github.com/nao1215/webget/internal/transfer"
)

// DiscoverStep crawls the session's seed URLs and records the
// downloadable targets it finds. It runs the spider with the step's
// crawl settings and stores both the targets and the crawl statistics
// on the session, so a cancelled run still reports what it saw.
type DiscoverStep struct {
	// client performs the page fetches.
	client *fetch.Client

	// validator screens crawlable children before they are queued.
	// Nil admits everything.
	validator *security.Validator

	// robots enforces robots.txt on page fetches. Nil disables the
	// checks.
	robots *crawler.RobotsCache

	// maxDepth limits crawl recursion.
	maxDepth int

	// maxPages caps pages fetched in one run. Zero means no cap.
	maxPages int

	// concurrency is how many pages are fetched in parallel.
	concurrency int

	// crawlDelay spaces page fetches against the same host.
	crawlDelay time.Duration

	// noParent keeps crawlable children under the discovering page's
	// directory.
	noParent bool

	// followExternal allows crawlable children on other hosts.
	followExternal bool

	// acceptPatterns keep only matching downloadable URLs.
	acceptPatterns []string

	// rejectPatterns drop matching downloadable URLs.
	rejectPatterns []string

	// logger for structured logging.
	logger *slog.Logger
}

// DiscoverStepOption configures a DiscoverStep.
type DiscoverStepOption func(*DiscoverStep)

// WithDiscoverValidator sets the security validator that screens
// crawlable children.
func WithDiscoverValidator(v *security.Validator) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.validator = v
	}
}

// WithDiscoverRobots sets the robots.txt cache consulted before page
// fetches. Nil disables robots.txt compliance.
func WithDiscoverRobots(r *crawler.RobotsCache) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.robots = r
	}
}

// WithDiscoverMaxDepth sets the maximum crawl depth.
func WithDiscoverMaxDepth(depth int) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.maxDepth = depth
	}
}

// WithDiscoverMaxPages caps the number of pages fetched in one run.
func WithDiscoverMaxPages(n int) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.maxPages = n
	}
}

// WithDiscoverConcurrency sets how many pages are fetched in parallel.
func WithDiscoverConcurrency(n int) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.concurrency = n
	}
}

// WithDiscoverCrawlDelay sets the politeness delay between page
// fetches against the same host.
func WithDiscoverCrawlDelay(d time.Duration) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.crawlDelay = d
	}
}

// WithDiscoverNoParent restricts crawlable children to the directory
// of the page that discovered them.
func WithDiscoverNoParent(enabled bool) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.noParent = enabled
	}
}

// WithDiscoverFollowExternalLinks allows crawling pages on hosts other
// than the discovering page's host.
func WithDiscoverFollowExternalLinks(enabled bool) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.followExternal = enabled
	}
}

// WithDiscoverAcceptPatterns sets glob patterns a downloadable URL
// must match to be kept.
func WithDiscoverAcceptPatterns(patterns []string) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.acceptPatterns = patterns
	}
}

// WithDiscoverRejectPatterns sets glob patterns that exclude
// downloadable URLs.
func WithDiscoverRejectPatterns(patterns []string) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.rejectPatterns = patterns
	}
}

// WithDiscoverLogger sets a custom logger for the discover step.
func WithDiscoverLogger(logger *slog.Logger) DiscoverStepOption {
	return func(s *DiscoverStep) {
		s.logger = logger
	}
}

// NewDiscoverStep creates the discovery step around a fetch client.
func NewDiscoverStep(client *fetch.Client, opts ...DiscoverStepOption) *DiscoverStep {
	s := &DiscoverStep{
		client:      client,
		maxDepth:    config.DefaultMaxDepth,
		concurrency: config.DefaultMaxConcurrent,
		crawlDelay:  config.DefaultCrawlDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return "discover"
}

// Do crawls from the session seeds and fills in the session's targets
// and crawl statistics. Partial results are recorded even when the
// crawl is cut short.
func (s *DiscoverStep) Do(ctx context.Context, session *model.Session) error {
	spider := crawler.NewSpider(s.client,
		crawler.WithMaxDepth(s.maxDepth),
		crawler.WithMaxPages(s.maxPages),
		crawler.WithMaxConcurrent(s.concurrency),
		crawler.WithCrawlDelay(s.crawlDelay),
		crawler.WithNoParent(s.noParent),
		crawler.WithFollowExternalLinks(s.followExternal),
		crawler.WithAcceptPatterns(s.acceptPatterns),
		crawler.WithRejectPatterns(s.rejectPatterns),
		crawler.WithValidator(s.validator),
		crawler.WithRobots(s.robots),
		crawler.WithLogger(s.logger),
	)

	result, err := spider.Crawl(ctx, session.Seeds...)
	if result != nil {
		session.Targets = result.Targets
		session.CrawlStats = result.Stats
	}
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	s.logger.Info("discovery completed",
		"pages_visited", result.Stats.PagesVisited,
		"files_discovered", result.Stats.FilesDiscovered,
		"errors", result.Stats.Errors,
		"robots_blocked", result.Stats.RobotsBlocked,
	)

	return nil
}

// TransferStep downloads the targets collected on the session and
// stores one result per target back on it. Targets become download
// requests with local paths derived from their URLs, then run through
// the batch processor.
type TransferStep struct {
	// downloader executes individual transfers.
	downloader *transfer.Downloader

	// flatten writes every file directly under the destination by its
	// base name instead of mirroring the URL structure.
	flatten bool

	// headers are extra HTTP headers sent with each download.
	headers map[string]string

	// checksum is an optional expected digest applied to every
	// downloaded file, in "algo:hex" form.
	checksum string

	// ssh carries credentials for sftp:// targets. Nil for HTTP runs.
	ssh *model.SSHOptions

	// concurrency is the transfer batch size.
	concurrency int

	// batchDelay is the pause between transfer batches.
	batchDelay time.Duration

	// onResult, when set, receives each result as it completes.
	onResult func(result model.DownloadResult, index int)

	// logger for structured logging.
	logger *slog.Logger
}

// TransferStepOption configures a TransferStep.
type TransferStepOption func(*TransferStep)

// WithTransferFlattenPaths writes every file directly under the
// destination directory instead of mirroring the URL structure.
func WithTransferFlattenPaths(enabled bool) TransferStepOption {
	return func(s *TransferStep) {
		s.flatten = enabled
	}
}

// WithTransferHeaders sets extra HTTP headers for every download.
func WithTransferHeaders(headers map[string]string) TransferStepOption {
	return func(s *TransferStep) {
		s.headers = headers
	}
}

// WithTransferChecksum sets an expected digest verified against every
// completed download.
func WithTransferChecksum(checksum string) TransferStepOption {
	return func(s *TransferStep) {
		s.checksum = checksum
	}
}

// WithTransferSSHOptions sets the credentials used for sftp://
// downloads.
func WithTransferSSHOptions(ssh *model.SSHOptions) TransferStepOption {
	return func(s *TransferStep) {
		s.ssh = ssh
	}
}

// WithTransferConcurrency sets the transfer batch size.
func WithTransferConcurrency(n int) TransferStepOption {
	return func(s *TransferStep) {
		s.concurrency = n
	}
}

// WithTransferBatchDelay sets the pause between transfer batches.
func WithTransferBatchDelay(d time.Duration) TransferStepOption {
	return func(s *TransferStep) {
		s.batchDelay = d
	}
}

// WithTransferResultCallback registers a function called once per
// completed transfer. The callback runs on the worker goroutine that
// finished the transfer, so it must be safe for concurrent use.
func WithTransferResultCallback(fn func(result model.DownloadResult, index int)) TransferStepOption {
	return func(s *TransferStep) {
		s.onResult = fn
	}
}

// WithTransferLogger sets a custom logger for the transfer step.
func WithTransferLogger(logger *slog.Logger) TransferStepOption {
	return func(s *TransferStep) {
		s.logger = logger
	}
}

// NewTransferStep creates the transfer step around a downloader.
func NewTransferStep(downloader *transfer.Downloader, opts ...TransferStepOption) *TransferStep {
	s := &TransferStep{
		downloader:  downloader,
		concurrency: config.DefaultMaxConcurrent,
		batchDelay:  config.DefaultBatchDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *TransferStep) Name() string {
	return "transfer"
}

// Do downloads every target on the session and records the results.
// Cancellation mid-run keeps the results collected so far.
func (s *TransferStep) Do(ctx context.Context, session *model.Session) error {
	if len(session.Targets) == 0 {
		s.logger.Debug("skipping transfer, nothing discovered")
		return nil
	}

	requests := make([]*model.DownloadRequest, 0, len(session.Targets))
	for _, target := range session.Targets {
		requests = append(requests, &model.DownloadRequest{
			URL:             target.URL,
			DestinationPath: crawler.GenerateLocalPath(target.URL, session.Destination, !s.flatten),
			Headers:         s.headers,
			Checksum:        s.checksum,
			SSHOptions:      s.ssh,
		})
	}

	processorOpts := []BatchOption{
		WithConcurrency(s.concurrency),
		WithBatchDelay(s.batchDelay),
		WithBatchLogger(s.logger),
	}
	if s.onResult != nil {
		processorOpts = append(processorOpts, WithResultCallback(s.onResult))
	}

	processor := NewBatchProcessor(s.downloader.Download, processorOpts...)
	results, err := processor.ProcessBatch(ctx, requests)
	session.Results = results
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	return nil
}

// DefaultPipelineConfig holds the crawl and transfer settings for the
// default pipeline.
type DefaultPipelineConfig struct {
	// MaxDepth is the maximum recursion depth for discovery.
	MaxDepth int

	// MaxPages caps pages fetched during discovery. Zero means no cap.
	MaxPages int

	// Concurrency is the batch size for both page fetches and
	// transfers.
	Concurrency int

	// CrawlDelay is the politeness delay between page fetches against
	// the same host.
	CrawlDelay time.Duration

	// BatchDelay is the pause between transfer batches.
	BatchDelay time.Duration

	// NoParent restricts crawling to the seed directories.
	NoParent bool

	// FollowExternalLinks allows crawling pages on other hosts.
	FollowExternalLinks bool

	// AcceptPatterns keep only matching downloadable URLs.
	AcceptPatterns []string

	// RejectPatterns drop matching downloadable URLs.
	RejectPatterns []string

	// IgnoreRobots disables robots.txt compliance.
	IgnoreRobots bool

	// UserAgent is the agent name matched against robots.txt groups.
	UserAgent string

	// FlattenPaths writes every file directly under the destination.
	FlattenPaths bool

	// Headers are extra HTTP headers sent with each download.
	Headers map[string]string

	// Checksum is an optional expected digest in "algo:hex" form.
	Checksum string

	// SSHOptions carries credentials for sftp:// targets.
	SSHOptions *model.SSHOptions

	// OnResult, when set, receives each transfer result as it
	// completes.
	OnResult func(result model.DownloadResult, index int)

	// Logger, when set, is handed to both steps and the robots cache.
	// The steps otherwise log through slog.Default().
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxDepth sets the discovery depth limit.
func WithPipelineMaxDepth(depth int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxDepth = depth
	}
}

// WithPipelineMaxPages caps pages fetched during discovery.
func WithPipelineMaxPages(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxPages = n
	}
}

// WithPipelineConcurrency sets the batch size for page fetches and
// transfers.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineCrawlDelay sets the politeness delay between page
// fetches against the same host.
func WithPipelineCrawlDelay(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlDelay = d
	}
}

// WithPipelineBatchDelay sets the pause between transfer batches.
func WithPipelineBatchDelay(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.BatchDelay = d
	}
}

// WithPipelineNoParent restricts crawling to the seed directories.
func WithPipelineNoParent(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.NoParent = enabled
	}
}

// WithPipelineFollowExternalLinks allows crawling pages on hosts other
// than the seeds'.
func WithPipelineFollowExternalLinks(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowExternalLinks = enabled
	}
}

// WithPipelineAcceptPatterns sets glob patterns a downloadable URL
// must match to be kept.
func WithPipelineAcceptPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.AcceptPatterns = patterns
	}
}

// WithPipelineRejectPatterns sets glob patterns that exclude
// downloadable URLs.
func WithPipelineRejectPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RejectPatterns = patterns
	}
}

// WithPipelineIgnoreRobots disables robots.txt compliance during
// discovery.
func WithPipelineIgnoreRobots(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnoreRobots = enabled
	}
}

// WithPipelineUserAgent sets the agent name matched against robots.txt
// groups.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineFlattenPaths writes every file directly under the
// destination directory.
func WithPipelineFlattenPaths(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FlattenPaths = enabled
	}
}

// WithPipelineHeaders sets extra HTTP headers for every download.
func WithPipelineHeaders(headers map[string]string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Headers = headers
	}
}

// WithPipelineChecksum sets an expected digest verified against every
// completed download.
func WithPipelineChecksum(checksum string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Checksum = checksum
	}
}

// WithPipelineSSHOptions sets the credentials used for sftp://
// downloads.
func WithPipelineSSHOptions(ssh *model.SSHOptions) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.SSHOptions = ssh
	}
}

// WithPipelineResultCallback registers a function called once per
// completed transfer.
func WithPipelineResultCallback(fn func(result model.DownloadResult, index int)) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OnResult = fn
	}
}

// WithPipelineLogger hands a logger to both steps and the robots
// cache.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the standard discover-then-transfer pipeline.
// This is what a normal webget run executes.
//
// The first variadic parameter accepts pipeline options (WithLogger,
// etc). The second accepts config options (WithPipelineMaxDepth, etc).
func DefaultPipeline(client *fetch.Client, validator *security.Validator, downloader *transfer.Downloader, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		MaxDepth:    config.DefaultMaxDepth,
		Concurrency: config.DefaultMaxConcurrent,
		CrawlDelay:  config.DefaultCrawlDelay,
		BatchDelay:  config.DefaultBatchDelay,
		UserAgent:   config.DefaultUserAgent,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	discoverOpts := []DiscoverStepOption{
		WithDiscoverValidator(validator),
		WithDiscoverMaxDepth(cfg.MaxDepth),
		WithDiscoverMaxPages(cfg.MaxPages),
		WithDiscoverConcurrency(cfg.Concurrency),
		WithDiscoverCrawlDelay(cfg.CrawlDelay),
		WithDiscoverNoParent(cfg.NoParent),
		WithDiscoverFollowExternalLinks(cfg.FollowExternalLinks),
		WithDiscoverAcceptPatterns(cfg.AcceptPatterns),
		WithDiscoverRejectPatterns(cfg.RejectPatterns),
		WithDiscoverLogger(logger),
	}
	if !cfg.IgnoreRobots {
		robots := crawler.NewRobotsCache(client, cfg.UserAgent, logger)
		discoverOpts = append(discoverOpts, WithDiscoverRobots(robots))
	}

	transferOpts := []TransferStepOption{
		WithTransferConcurrency(cfg.Concurrency),
		WithTransferBatchDelay(cfg.BatchDelay),
		WithTransferFlattenPaths(cfg.FlattenPaths),
		WithTransferHeaders(cfg.Headers),
		WithTransferChecksum(cfg.Checksum),
		WithTransferSSHOptions(cfg.SSHOptions),
		WithTransferLogger(logger),
	}
	if cfg.OnResult != nil {
		transferOpts = append(transferOpts, WithTransferResultCallback(cfg.OnResult))
	}

	p.AddSteps(
		NewDiscoverStep(client, discoverOpts...),
		NewTransferStep(downloader, transferOpts...),
	)

	return p
}
