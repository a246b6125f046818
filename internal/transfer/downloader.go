package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/webget/internal/fetch"
	"github.com/nao1215/webget/internal/model"
	"github.com/nao1215/webget/internal/security"
)

const (
	// DefaultMaxRetries is the number of retries after the first
	// attempt.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the backoff before the second attempt.
	DefaultRetryBaseDelay = 1000 * time.Millisecond

	// DefaultRetryMaxDelay caps the backoff growth.
	DefaultRetryMaxDelay = 30000 * time.Millisecond

	// DefaultRetryExponentialBase is the backoff growth factor.
	DefaultRetryExponentialBase = 2.0

	// partSuffix marks a file still being written. The sidecar becomes
	// the destination only after the transfer completed and verified.
	partSuffix = ".part"

	// corruptSuffix marks a completed file whose checksum did not
	// match. The bytes are kept for inspection, never resumed.
	corruptSuffix = ".corrupt"
)

// Config holds the transfer engine policy.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so
	// the engine makes at most MaxRetries+1 attempts.
	MaxRetries int

	// RetryBaseDelay is the backoff before the second attempt.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff growth.
	RetryMaxDelay time.Duration

	// RetryExponentialBase is the backoff growth factor.
	RetryExponentialBase float64

	// Jitter adds a random fraction to each backoff sleep.
	Jitter bool

	// Resume continues interrupted transfers from their partial files.
	Resume bool

	// DialTimeout bounds SFTP connection establishment.
	DialTimeout time.Duration

	// RetryableKinds overrides the default retryable error kinds when
	// non-empty.
	RetryableKinds []model.ErrorKind

	// RetryableStatuses overrides the default retryable HTTP statuses
	// when non-empty.
	RetryableStatuses []int

	// FailureThreshold opens a host's breaker at this many failures
	// within MonitorWindow.
	FailureThreshold int

	// MonitorWindow is how far back failures count toward the
	// threshold.
	MonitorWindow time.Duration

	// ResetTimeout is the cool-down before an open breaker allows a
	// half-open probe.
	ResetTimeout time.Duration
}

// DefaultConfig returns the transfer policy used when the caller does
// not override anything.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           DefaultMaxRetries,
		RetryBaseDelay:       DefaultRetryBaseDelay,
		RetryMaxDelay:        DefaultRetryMaxDelay,
		RetryExponentialBase: DefaultRetryExponentialBase,
		Jitter:               true,
		Resume:               true,
		DialTimeout:          fetch.DefaultTimeout,
		FailureThreshold:     DefaultFailureThreshold,
		MonitorWindow:        DefaultMonitorWindow,
		ResetTimeout:         DefaultResetTimeout,
	}
}

// Downloader executes downloads with validation, retry, resume, and
// per-host circuit breaking. Safe for concurrent use; retries of one
// URL are strictly sequential while distinct URLs proceed in parallel.
type Downloader struct {
	cfg       Config
	client    *fetch.Client
	validator *security.Validator
	breakers  *BreakerSet
	backoff   Backoff
	policy    retryPolicy
	logger    *slog.Logger
}

// NewDownloader wires the engine. The validator admits every request
// before the first attempt; the client performs the wire transfers.
func NewDownloader(cfg Config, client *fetch.Client, validator *security.Validator, logger *slog.Logger) *Downloader {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if cfg.RetryExponentialBase <= 1 {
		cfg.RetryExponentialBase = DefaultRetryExponentialBase
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = fetch.DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Downloader{
		cfg:       cfg,
		client:    client,
		validator: validator,
		breakers:  NewBreakerSet(cfg.FailureThreshold, cfg.MonitorWindow, cfg.ResetTimeout),
		backoff: Backoff{
			Base:   cfg.RetryBaseDelay,
			Max:    cfg.RetryMaxDelay,
			Factor: cfg.RetryExponentialBase,
			Jitter: cfg.Jitter,
		},
		policy: newRetryPolicy(cfg.RetryableKinds, cfg.RetryableStatuses),
		logger: logger,
	}
}

// Breakers exposes the per-host breaker registry for status reporting
// and manual resets.
func (d *Downloader) Breakers() *BreakerSet {
	return d.breakers
}

// destPlan is the per-download file state: where the final bytes go,
// where the in-progress sidecar lives, and the validator guarding
// ranged requests across attempts.
type destPlan struct {
	dest      string
	part      string
	validator string
}

// Download retrieves one file. The returned result is terminal: it
// carries either the final path and byte count or the classified error
// that ended the attempt loop.
func (d *Downloader) Download(ctx context.Context, req *model.DownloadRequest) model.DownloadResult {
	start := time.Now()

	vres := d.validator.Validate(ctx, req)
	for _, w := range vres.Warnings {
		d.logger.Warn("request warning", "url", req.URL, "field", w.Field, "detail", w.Message)
	}
	if verr := vres.Err(); verr != nil {
		return model.FinishResult(model.DownloadResult{
			URL:       req.URL,
			Err:       verr,
			ErrorKind: model.KindOf(verr),
			Duration:  time.Since(start),
		})
	}
	req = vres.SanitizedRequest

	u, err := url.Parse(req.URL)
	if err != nil {
		classified := model.Classify(model.ErrorKindInvalidURL, err)
		return model.FinishResult(model.DownloadResult{
			URL:       req.URL,
			Err:       classified,
			ErrorKind: classified.Kind,
			Duration:  time.Since(start),
		})
	}
	host := u.Hostname()
	breaker := d.breakers.For(host)

	plan, err := d.planDestination(req.DestinationPath)
	if err != nil {
		classified := classify(err)
		return model.FinishResult(model.DownloadResult{
			URL:          req.URL,
			Err:          classified,
			ErrorKind:    classified.Kind,
			Duration:     time.Since(start),
			CircuitState: breaker.State(),
		})
	}

	var (
		causes       []error
		totalWritten int64
	)
	maxAttempts := d.cfg.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow() {
			// Fails the download without a network call and without
			// consuming the attempt.
			classified := model.Classify(model.ErrorKindCircuitBreakerOpen,
				fmt.Errorf("host %s is cooling down", host))
			return d.failed(req.URL, start, attempt-1, breaker, classified)
		}

		d.logger.Debug("transfer attempt", "url", req.URL, "attempt", attempt, "destination", plan.dest)

		written, offset, werr := d.attempt(ctx, u, req, plan)
		totalWritten += written

		if werr == nil {
			breaker.RecordSuccess()
			if ferr := d.finalize(plan, req.Checksum); ferr != nil {
				classified := classify(ferr)
				return d.failed(req.URL, start, attempt, breaker, classified)
			}
			return model.FinishResult(model.DownloadResult{
				URL:            req.URL,
				Success:        true,
				FilePath:       plan.dest,
				Size:           totalWritten,
				Duration:       time.Since(start),
				Resumed:        offset > 0,
				ResumeFromByte: offset,
				Attempts:       attempt,
				CircuitState:   breaker.State(),
			})
		}

		breaker.RecordFailure()
		classified := classify(werr)
		causes = append(causes, classified)
		d.logger.Warn("transfer attempt failed",
			"url", req.URL, "attempt", attempt, "kind", classified.Kind.String(), "error", werr)

		if !d.policy.retryable(classified) {
			return d.failed(req.URL, start, attempt, breaker, classified)
		}
		if attempt == maxAttempts {
			return d.failed(req.URL, start, attempt, breaker, &RetryError{
				URL:      req.URL,
				Attempts: attempt,
				Causes:   causes,
			})
		}

		delay := d.backoff.Delay(attempt)
		d.logger.Debug("backing off", "url", req.URL, "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return d.failed(req.URL, start, attempt, breaker, classify(ctx.Err()))
		}
	}

	// The loop always returns; this guards against a zero-attempt
	// configuration slipping through.
	return d.failed(req.URL, start, 0, breaker, model.Classify(model.ErrorKindUnknown, nil))
}

// failed builds a terminal failure result.
func (d *Downloader) failed(rawURL string, start time.Time, attempts int, breaker *Breaker, err error) model.DownloadResult {
	return model.FinishResult(model.DownloadResult{
		URL:          rawURL,
		Err:          err,
		ErrorKind:    model.KindOf(err),
		Duration:     time.Since(start),
		Attempts:     attempts,
		CircuitState: breaker.State(),
	})
}

// planDestination creates the parent directory and picks the final and
// sidecar names. An existing destination is never overwritten; a
// numeric suffix is appended until a free name is found.
func (d *Downloader) planDestination(dest string) (*destPlan, error) {
	if dir := filepath.Dir(dest); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.ClassifyFilesystem("mkdir", err)
		}
	}
	if _, err := os.Stat(dest); err == nil {
		dest = nextFreeName(dest)
	}
	return &destPlan{dest: dest, part: dest + partSuffix}, nil
}

// nextFreeName appends ".1", ".2", ... until no file with that name
// exists.
func nextFreeName(dest string) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", dest, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// attempt performs one transfer attempt. It returns the bytes written
// by this attempt and the offset it started from.
func (d *Downloader) attempt(ctx context.Context, u *url.URL, req *model.DownloadRequest, plan *destPlan) (int64, int64, error) {
	var offset int64
	if d.cfg.Resume {
		if fi, err := os.Stat(plan.part); err == nil && fi.Size() > 0 {
			offset = fi.Size()
		}
	}

	if strings.EqualFold(u.Scheme, "sftp") {
		return d.attemptSFTP(ctx, u, req, plan, offset)
	}
	return d.attemptHTTP(ctx, req, plan, offset)
}

// attemptHTTP performs one HTTP attempt: a ranged request when a
// partial file exists, guarded by If-Range when a validator is known.
func (d *Downloader) attemptHTTP(ctx context.Context, req *model.DownloadRequest, plan *destPlan, offset int64) (int64, int64, error) {
	resp, err := d.client.Do(ctx, fetch.Request{
		URL:        req.URL,
		RangeStart: offset,
		Validator:  plan.validator,
		Headers:    req.Headers,
	})
	if err != nil {
		return 0, offset, err
	}
	defer resp.Body.Close()

	// Remember the strongest validator for later ranged requests.
	if et := resp.Header.Get("ETag"); et != "" {
		plan.validator = et
	} else if lm := resp.Header.Get("Last-Modified"); lm != "" {
		plan.validator = lm
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if offset > 0 {
			// The server ignored the range or If-Range detected a
			// change. The partial bytes are stale.
			if err := os.Truncate(plan.part, 0); err != nil {
				return 0, 0, model.ClassifyFilesystem("truncate", err)
			}
			offset = 0
		}
	case http.StatusPartialContent:
		// Resuming at the requested offset.
	case http.StatusRequestedRangeNotSatisfiable:
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok && total == offset {
			// The partial file already holds the complete resource.
			return 0, offset, nil
		}
		return 0, offset, model.ClassifyHTTP(resp.StatusCode, fmt.Errorf("GET %s", req.URL))
	default:
		return 0, offset, model.ClassifyHTTP(resp.StatusCode, fmt.Errorf("GET %s", req.URL))
	}

	expected := resp.ContentLength
	if expected >= 0 {
		if err := d.validator.ValidateFileSize(offset + expected); err != nil {
			return 0, offset, err
		}
	}

	written, err := d.writeBody(plan.part, resp.Body, offset)
	return written, offset, err
}

// attemptSFTP performs one SFTP attempt.
func (d *Downloader) attemptSFTP(ctx context.Context, u *url.URL, req *model.DownloadRequest, plan *destPlan, offset int64) (int64, int64, error) {
	sess, err := fetch.DialSFTP(ctx, u, req.SSHOptions, d.cfg.DialTimeout)
	if err != nil {
		return 0, offset, err
	}
	defer sess.Close()

	remote, size, err := sess.Open(u.Path)
	if err != nil {
		return 0, offset, err
	}
	defer remote.Close()

	if offset > size {
		// The remote file shrank since the partial was written; the
		// partial bytes cannot belong to it.
		if err := os.Truncate(plan.part, 0); err != nil {
			return 0, 0, model.ClassifyFilesystem("truncate", err)
		}
		offset = 0
	}
	if offset == size && size > 0 {
		return 0, offset, nil
	}
	if err := d.validator.ValidateFileSize(size); err != nil {
		return 0, offset, err
	}
	if offset > 0 {
		if _, err := remote.Seek(offset, io.SeekStart); err != nil {
			return 0, offset, fmt.Errorf("seek %s to %d: %w", u.Path, offset, err)
		}
	}

	written, err := d.writeBody(plan.part, remote, offset)
	return written, offset, err
}

// writeBody streams into the sidecar, appending at a resume offset or
// truncating for a fresh start, and stops early when the observed
// bytes exceed the file size cap.
func (d *Downloader) writeBody(part string, body io.Reader, offset int64) (int64, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return 0, model.ClassifyFilesystem("create", err)
	}

	reader := body
	limit := d.validator.FileSizeLimit()
	if limit > 0 {
		reader = io.LimitReader(body, limit-offset+1)
	}

	written, copyErr := io.Copy(f, reader)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		return written, copyErr
	case closeErr != nil:
		return written, model.ClassifyFilesystem("close", closeErr)
	case limit > 0 && offset+written > limit:
		return written, model.Classify(model.ErrorKindFileTooLarge,
			fmt.Errorf("%d bytes on disk exceeds cap %d", offset+written, limit))
	}
	return written, nil
}

// finalize verifies the checksum when one was requested and moves the
// sidecar to its final name. A mismatching file is kept under a
// ".corrupt" name for inspection.
func (d *Downloader) finalize(plan *destPlan, checksum string) error {
	if err := verifyFileChecksum(plan.part, checksum); err != nil {
		if model.KindOf(err) == model.ErrorKindChecksumMismatch {
			_ = os.Rename(plan.part, plan.dest+corruptSuffix)
			d.logger.Warn("checksum mismatch, keeping bytes for inspection",
				"destination", plan.dest+corruptSuffix, "error", err)
		}
		return err
	}
	if err := os.Rename(plan.part, plan.dest); err != nil {
		return model.ClassifyFilesystem("rename", err)
	}
	return nil
}

// contentRangeTotal parses the total size from a "bytes */N"
// Content-Range header.
func contentRangeTotal(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	_, totalStr, ok := strings.Cut(rest, "/")
	if !ok || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}
