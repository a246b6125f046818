package crawler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/webget/internal/fetch"
)

const (
	// robotsTimeout bounds one robots.txt fetch so a slow endpoint
	// cannot stall the crawl.
	robotsTimeout = 10 * time.Second

	// robotsMaxBytes caps a robots.txt body read.
	robotsMaxBytes = 512 * 1024
)

// RobotsCache answers robots.txt queries with one fetch per origin per
// run. Every failure mode permits crawling: a missing, unreachable, or
// malformed robots.txt never blocks a page fetch. Safe for concurrent
// use.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsCache builds a cache that fetches robots.txt through the
// given client and evaluates rules for userAgent. A nil logger
// discards the fetch diagnostics.
func NewRobotsCache(client *fetch.Client, userAgent string, logger *slog.Logger) *RobotsCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RobotsCache{
		client:    client.HTTPClient(),
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether the crawl may fetch u. The first query for
// an origin fetches and caches its robots.txt; later queries reuse the
// cached rules for the rest of the run.
func (r *RobotsCache) Allowed(ctx context.Context, u *url.URL) bool {
	if u == nil {
		return true
	}
	data := r.data(ctx, u)
	if data == nil {
		return true
	}

	group := data.FindGroup(r.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return group.Test(p)
}

// data returns the cached rules for u's origin, fetching on first use.
// Nil means the origin has no usable robots.txt and is unrestricted.
func (r *RobotsCache) data(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := strings.ToLower(u.Scheme + "://" + u.Host)

	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data
	}

	data = r.fetch(ctx, origin)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[origin]; ok {
		return cached
	}
	r.cache[origin] = data
	return data
}

// fetch retrieves an origin's robots.txt. Any failure is logged and
// reported as nil, which callers read as "allow".
func (r *RobotsCache) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	ctx, cancel := context.WithTimeout(ctx, robotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		r.logger.Debug("robots.txt request build failed", "origin", origin, "error", err)
		return nil
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed", "origin", origin, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		r.logger.Debug("robots.txt read failed", "origin", origin, "error", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		r.logger.Debug("robots.txt parse failed", "origin", origin, "error", err)
		return nil
	}
	return data
}
