package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/webget/internal/fetch"
	"github.com/nao1215/webget/internal/model"
	"github.com/nao1215/webget/internal/security"
)

const (
	// defaultMaxDepth is how many link levels are followed from a seed.
	defaultMaxDepth = 5

	// defaultMaxConcurrent is how many pages are fetched in parallel.
	defaultMaxConcurrent = 5

	// defaultCrawlDelay spaces consecutive page fetches per host.
	defaultCrawlDelay = 500 * time.Millisecond
)

// htmlContentTypes are the media types parsed for links.
var htmlContentTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"text/xml":              true,
	"application/xml":       true,
}

// Spider discovers downloadable files by breadth-first traversal from
// seed URLs. Pages are fetched level by level: all pages at one depth
// finish before any page at the next depth starts, so discovery order
// is stable for a given site. A Spider holds per-run state; run one
// Crawl at a time and Reset between runs.
type Spider struct {
	client    *fetch.Client
	validator *security.Validator
	robots    *RobotsCache
	logger    *slog.Logger
	limiter   *hostLimiter

	maxDepth       int
	maxPages       int
	maxConcurrent  int
	crawlDelay     time.Duration
	noParent       bool
	followExternal bool
	acceptPatterns []string
	rejectPatterns []string

	visited    *model.VisitedSet
	discovered *model.DiscoveryRecord

	pagesVisited  atomic.Int64
	errorCount    atomic.Int64
	robotsBlocked atomic.Int64
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets how many link levels are followed. Pages at the
// limit are never fetched, so a depth of zero fetches nothing and a
// depth of one fetches only the seeds. Files are collected at any
// depth once their page has been parsed.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		if depth >= 0 {
			s.maxDepth = depth
		}
	}
}

// WithMaxPages caps the number of pages fetched in one run. Zero means
// no cap.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		if n >= 0 {
			s.maxPages = n
		}
	}
}

// WithMaxConcurrent sets how many pages are fetched in parallel.
func WithMaxConcurrent(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithCrawlDelay sets the minimum spacing between page fetches against
// the same host. Zero disables the spacing.
func WithCrawlDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d >= 0 {
			s.crawlDelay = d
		}
	}
}

// WithNoParent keeps crawlable children inside the directory of the
// page that discovered them, the same scoping wget applies with its
// no-parent flag. Files are not restricted.
func WithNoParent(enabled bool) SpiderOption {
	return func(s *Spider) { s.noParent = enabled }
}

// WithFollowExternalLinks allows crawlable children on hosts other
// than the discovering page's host. Off by default; file downloads are
// never host-restricted.
func WithFollowExternalLinks(enabled bool) SpiderOption {
	return func(s *Spider) { s.followExternal = enabled }
}

// WithAcceptPatterns keeps only downloadable URLs whose path matches
// at least one of the glob patterns. An empty list accepts everything.
func WithAcceptPatterns(patterns []string) SpiderOption {
	return func(s *Spider) { s.acceptPatterns = patterns }
}

// WithRejectPatterns drops downloadable URLs whose path matches any of
// the glob patterns. Reject wins over accept.
func WithRejectPatterns(patterns []string) SpiderOption {
	return func(s *Spider) { s.rejectPatterns = patterns }
}

// WithValidator admits crawlable children through the security policy
// before they are queued. Nil admits everything; downloads are
// validated again by the transfer engine either way.
func WithValidator(v *security.Validator) SpiderOption {
	return func(s *Spider) { s.validator = v }
}

// WithRobots enables robots.txt checks on page fetches. Nil skips the
// checks entirely.
func WithRobots(r *RobotsCache) SpiderOption {
	return func(s *Spider) { s.robots = r }
}

// WithLogger sets the crawl logger. Nil discards output.
func WithLogger(l *slog.Logger) SpiderOption {
	return func(s *Spider) { s.logger = l }
}

// NewSpider builds a crawl engine around the given fetch client.
func NewSpider(client *fetch.Client, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:        client,
		maxDepth:      defaultMaxDepth,
		maxConcurrent: defaultMaxConcurrent,
		crawlDelay:    defaultCrawlDelay,
		visited:       model.NewVisitedSet(),
		discovered:    model.NewDiscoveryRecord(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.limiter = newHostLimiter(s.crawlDelay)
	return s
}

// Result is the outcome of one crawl run.
type Result struct {
	// Targets are the downloadable files found, in discovery order.
	Targets []model.CrawlTarget

	// Stats summarizes the run.
	Stats model.CrawlStats
}

// Crawl walks the site graph from the seeds and returns the
// downloadable targets it found. Seeds without a scheme get "http://"
// prepended. Per-page failures are counted and skipped, never fatal;
// the only errors returned are no usable seeds and context
// cancellation, and a cancelled crawl still returns the targets
// collected so far.
func (s *Spider) Crawl(ctx context.Context, seeds ...string) (*Result, error) {
	level := make([]model.CrawlTarget, 0, len(seeds))
	for _, seed := range seeds {
		target, err := s.seedTarget(seed)
		if err != nil {
			s.logger.Warn("skipping seed", "url", seed, "error", err)
			s.errorCount.Add(1)
			continue
		}
		s.discovered.Record(target.URL, model.Discovery{Depth: 0, Kind: model.KindCrawlable})
		level = append(level, target)
	}
	if len(level) == 0 {
		return nil, fmt.Errorf("no usable seed URLs")
	}

	var targets []model.CrawlTarget
	for len(level) > 0 {
		var next []model.CrawlTarget
		for start := 0; start < len(level); start += s.maxConcurrent {
			end := min(start+s.maxConcurrent, len(level))
			batch := level[start:end]

			queued := make([][]model.CrawlTarget, len(batch))
			found := make([][]model.CrawlTarget, len(batch))

			g := new(errgroup.Group)
			g.SetLimit(s.maxConcurrent)
			for i, item := range batch {
				i, item := i, item
				g.Go(func() error {
					queued[i], found[i] = s.process(ctx, item)
					return nil
				})
			}
			// Workers never return errors; per-page failures are
			// counted and skipped.
			_ = g.Wait()

			for i := range batch {
				next = append(next, queued[i]...)
				targets = append(targets, found[i]...)
			}
			if err := ctx.Err(); err != nil {
				return s.result(targets), err
			}
		}
		level = next
	}
	return s.result(targets), nil
}

// Reset clears the visited set, discovery record, and counters so the
// spider can run another crawl.
func (s *Spider) Reset() {
	s.visited = model.NewVisitedSet()
	s.discovered = model.NewDiscoveryRecord()
	s.pagesVisited.Store(0)
	s.errorCount.Store(0)
	s.robotsBlocked.Store(0)
}

// Visited exposes the URLs claimed during the current run.
func (s *Spider) Visited() *model.VisitedSet {
	return s.visited
}

// Discovered exposes every URL seen during the current run with its
// first-sighting depth, parent, and kind.
func (s *Spider) Discovered() *model.DiscoveryRecord {
	return s.discovered
}

// process handles one queue item. Downloadable items move straight to
// the result set without a fetch; crawlable items are fetched, parsed,
// and expanded into the next level's queue. The returned slices belong
// to this item alone so workers share no state.
func (s *Spider) process(ctx context.Context, item model.CrawlTarget) (queued, found []model.CrawlTarget) {
	if item.Kind == model.KindDownloadable {
		if s.visited.MarkVisited(item.URL) {
			found = append(found, item)
		}
		return queued, found
	}

	// Pages at the depth limit are never fetched.
	if item.Depth >= s.maxDepth {
		return queued, found
	}
	if !s.visited.MarkVisited(item.URL) {
		return queued, found
	}
	if s.maxPages > 0 && s.pagesVisited.Load() >= int64(s.maxPages) {
		return queued, found
	}

	parsed, err := url.Parse(item.URL)
	if err != nil {
		s.errorCount.Add(1)
		return queued, found
	}
	if s.robots != nil && !s.robots.Allowed(ctx, parsed) {
		s.robotsBlocked.Add(1)
		s.logger.Debug("robots.txt disallows", "url", item.URL)
		return queued, found
	}
	if err := s.limiter.wait(ctx, parsed.Hostname()); err != nil {
		return queued, found
	}

	page, err := s.client.GetPage(ctx, item.URL)
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Warn("page fetch failed", "url", item.URL, "error", err)
		return queued, found
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		s.errorCount.Add(1)
		s.logger.Debug("page fetch returned error status", "url", item.URL, "status", page.StatusCode)
		return queued, found
	}

	if !isHTMLContent(page.ContentType) {
		// The page turned out to be a file. Reclassify it in place.
		found = append(found, model.CrawlTarget{
			URL:       item.URL,
			Depth:     item.Depth,
			ParentURL: item.ParentURL,
			Kind:      model.KindDownloadable,
		})
		return queued, found
	}

	base := page.FinalURL
	if base == "" {
		base = item.URL
	}
	links, err := ExtractLinks(page.Body, base)
	if err != nil {
		s.errorCount.Add(1)
		s.logger.Warn("page parse failed", "url", item.URL, "error", err)
		return queued, found
	}
	s.pagesVisited.Add(1)
	s.logger.Debug("page parsed", "url", item.URL, "depth", item.Depth, "links", len(links))

	baseParsed, err := url.Parse(base)
	if err != nil {
		baseParsed = parsed
	}
	return s.admitChildren(ctx, item, baseParsed, links), found
}

// admitChildren records every extracted link and decides which become
// next-level queue entries. Crawlable children pass the depth, host
// scope, parent scope, and security gates; downloadable children pass
// the accept and reject patterns and are queued at any depth.
func (s *Spider) admitChildren(ctx context.Context, item model.CrawlTarget, base *url.URL, links []string) []model.CrawlTarget {
	childDepth := item.Depth + 1
	baseDir := parentDir(base.Path)

	var queued []model.CrawlTarget
	for _, link := range links {
		normalized := normalizeURL(link)
		kind := Classify(normalized)
		s.discovered.Record(normalized, model.Discovery{Depth: childDepth, Parent: item.URL, Kind: kind})

		switch kind {
		case model.KindCrawlable:
			if childDepth >= s.maxDepth {
				continue
			}
			child, err := url.Parse(normalized)
			if err != nil {
				continue
			}
			if !s.followExternal && !strings.EqualFold(child.Hostname(), base.Hostname()) {
				continue
			}
			if s.noParent && !strings.HasPrefix(child.Path, baseDir) {
				continue
			}
			if s.validator != nil && !s.validator.ValidateURL(ctx, normalized).IsValid {
				continue
			}
		case model.KindDownloadable:
			child, err := url.Parse(normalized)
			if err != nil {
				continue
			}
			if !s.allowedByPatterns(child.Path) {
				continue
			}
		}
		if s.visited.Contains(normalized) {
			continue
		}
		queued = append(queued, model.CrawlTarget{
			URL:       normalized,
			Depth:     childDepth,
			ParentURL: item.URL,
			Kind:      kind,
		})
	}
	return queued
}

// allowedByPatterns applies the reject patterns first, then the accept
// patterns, to a URL path.
func (s *Spider) allowedByPatterns(urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}
	for _, pattern := range s.rejectPatterns {
		if matchPattern(pattern, urlPath) {
			return false
		}
	}
	if len(s.acceptPatterns) == 0 {
		return true
	}
	for _, pattern := range s.acceptPatterns {
		if matchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}

// seedTarget validates one seed URL and shapes it as a depth-zero
// crawlable target. A seed without a scheme gets "http://" prepended.
func (s *Spider) seedTarget(seed string) (model.CrawlTarget, error) {
	raw := strings.TrimSpace(seed)
	if raw == "" {
		return model.CrawlTarget{}, fmt.Errorf("empty seed URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return model.CrawlTarget{}, fmt.Errorf("parse seed URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return model.CrawlTarget{}, fmt.Errorf("parse seed URL: %w", err)
		}
	}
	if u.Host == "" {
		return model.CrawlTarget{}, fmt.Errorf("seed URL %q has no host", seed)
	}
	return model.CrawlTarget{URL: normalizeURL(u.String()), Kind: model.KindCrawlable}, nil
}

// result assembles the run outcome from the collected targets and the
// per-run counters.
func (s *Spider) result(targets []model.CrawlTarget) *Result {
	return &Result{
		Targets: targets,
		Stats: model.CrawlStats{
			PagesVisited:    int(s.pagesVisited.Load()),
			FilesDiscovered: len(targets),
			Errors:          int(s.errorCount.Load()),
			RobotsBlocked:   int(s.robotsBlocked.Load()),
			VisitedURLs:     s.visited.URLs(),
			DiscoveredURLs:  s.discovered.URLs(),
		},
	}
}

// hostLimiter spaces page fetches against the same host by a fixed
// delay.
type hostLimiter struct {
	delay    time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiter(delay time.Duration) *hostLimiter {
	return &hostLimiter{delay: delay, limiters: make(map[string]*rate.Limiter)}
}

// wait blocks until the host's next fetch slot opens or ctx is done.
func (l *hostLimiter) wait(ctx context.Context, host string) error {
	if l.delay <= 0 {
		return nil
	}
	host = strings.ToLower(host)

	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// normalizeURL canonicalizes a URL for deduplication: the fragment is
// dropped, scheme and host are lowercased, and an empty path becomes
// "/".
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// isHTMLContent reports whether a Content-Type names a parseable page.
// Anything else, including a missing Content-Type, is treated as a
// file.
func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return htmlContentTypes[strings.ToLower(mediaType)]
}

// parentDir returns the directory of a URL path with a trailing slash,
// the prefix crawlable children must stay under when no-parent scoping
// is on.
func parentDir(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "/"
	}
	return p[:i+1]
}

// matchPattern reports whether a URL path matches one glob pattern.
// "/downloads/*" matches everything under /downloads, "*.pdf" matches
// by extension anywhere, and other patterns are tried against both the
// full path and the base name.
func matchPattern(pattern, urlPath string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(urlPath, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}
	if ok, err := path.Match(pattern, urlPath); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(urlPath)); err == nil && ok {
			return true
		}
	}
	return false
}
