package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout bounds a page request from start to finish and a
	// transfer request up to the response header.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps the size of a fetched page body.
	DefaultMaxBodyBytes = 5 * 1024 * 1024

	// redirectLimit is the maximum number of redirects followed before
	// the last response is returned as-is.
	redirectLimit = 10
)

// Options controls how the client issues requests.
type Options struct {
	// UserAgent is sent on every request when non-empty.
	UserAgent string

	// Headers are standing headers injected into every request.
	Headers map[string]string

	// Cookie is a raw cookie string appended to every request.
	Cookie string

	// Timeout bounds page requests end to end. Transfer requests use it
	// for the response header only, since a large file can legitimately
	// stream for longer.
	Timeout time.Duration

	// MaxBodyBytes caps page bodies. Transfers are not capped here; the
	// transfer engine enforces the file size policy on observed bytes.
	MaxBodyBytes int64

	// SOCKS5Proxy routes all connections through the given "host:port"
	// SOCKS5 proxy when non-empty.
	SOCKS5Proxy string
}

// Page is one fetched HTML or text resource.
type Page struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body is the decoded response body.
	Body []byte

	// Header holds the full response headers.
	Header http.Header

	// FetchedAt is when the response arrived.
	FetchedAt time.Time

	// Latency is the time from request to response headers.
	Latency time.Duration
}

// Request describes one transfer request issued through Do.
type Request struct {
	// URL is the resource to fetch.
	URL string

	// RangeStart, when positive, asks for bytes from this offset via a
	// Range header.
	RangeStart int64

	// Validator is the If-Range value sent with a ranged request, an
	// ETag or an HTTP date. Without it a ranged request could splice
	// bytes from a changed resource.
	Validator string

	// Headers are extra headers for this request only.
	Headers map[string]string
}

// Client issues HTTP requests with the standing policy applied.
// Safe for concurrent use.
type Client struct {
	page         *http.Client
	stream       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewClient builds a client from the options. The page client carries
// an end-to-end timeout; the stream client bounds only the response
// header and leaves transfer lifetime to the caller's context.
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if addr := strings.TrimSpace(opts.SOCKS5Proxy); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidProxy, addr)
		}
		dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = contextDial(dialer)
	}

	var rt http.RoundTripper = transport
	if opts.Cookie != "" || len(opts.Headers) > 0 {
		rt = &injectingTransport{base: transport, cookie: opts.Cookie, headers: opts.Headers}
	}

	// cookiejar.New with nil options cannot fail.
	jar, _ := cookiejar.New(nil)

	checkRedirect := func(_ *http.Request, via []*http.Request) error {
		if len(via) >= redirectLimit {
			return http.ErrUseLastResponse
		}
		return nil
	}

	return &Client{
		page: &http.Client{
			Transport:     rt,
			Timeout:       opts.Timeout,
			Jar:           jar,
			CheckRedirect: checkRedirect,
		},
		stream: &http.Client{
			Transport:     rt,
			Jar:           jar,
			CheckRedirect: checkRedirect,
		},
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// contextDial adapts a proxy.Dialer to the transport's DialContext.
// The SOCKS5 dialer from golang.org/x/net implements ContextDialer;
// the goroutine fallback covers any dialer that does not.
func contextDial(d proxy.Dialer) func(context.Context, string, string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- dialResult{conn, err}
		}()
		select {
		case res := <-ch:
			return res.conn, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetPage fetches one page for the crawl engine. Compressed encodings
// are negotiated and decoded, and the body is capped at MaxBodyBytes.
// Non-2xx responses are returned as pages, not errors; the caller
// decides how to treat them.
func (c *Client) GetPage(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := c.page.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Header:      resp.Header.Clone(),
		FetchedAt:   time.Now(),
		Latency:     time.Since(start),
	}, nil
}

// Do issues one transfer request and returns the raw response for
// streaming. Identity encoding is requested so Range offsets always
// count wire bytes. The caller owns resp.Body.
func (c *Client) Do(ctx context.Context, treq Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, treq.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Encoding", "identity")
	for k, v := range treq.Headers {
		req.Header.Set(k, v)
	}
	if treq.RangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", treq.RangeStart))
		if treq.Validator != "" {
			req.Header.Set("If-Range", treq.Validator)
		}
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", treq.URL, err)
	}
	return resp, nil
}

// HTTPClient returns the page client for collaborators that issue
// their own small requests, such as the robots.txt cache.
func (c *Client) HTTPClient() *http.Client {
	return c.page
}

// readBody decodes the response body according to Content-Encoding and
// enforces the page size cap.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.maxBodyBytes)
	}
	return body, nil
}

// injectingTransport adds the standing cookie and headers to every
// request, including redirects.
type injectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *injectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}

// HostPort returns the "host:port" for a URL, filling in the scheme
// default when the URL has no explicit port.
func HostPort(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "sftp":
			port = "22"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}
