package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/nao1215/webget/internal/model"
)

// classify maps a raw attempt error to its kind. Classification reads
// the typed causes still present in the chain (net.Error, DNS errors,
// syscall errnos, path errors); it never inspects message text. An
// error that already carries a classification passes through.
func classify(err error) *model.ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *model.ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.Classify(model.ErrorKindNetworkTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.Classify(model.ErrorKindDNSResolutionFailed, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Classify(model.ErrorKindNetworkTimeout, err)
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		// Resets, broken pipes, and truncated bodies share the refused
		// bucket: the peer dropped us and a fresh attempt may succeed.
		return model.Classify(model.ErrorKindConnectionRefused, err)
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return model.Classify(model.ErrorKindNetworkUnreachable, err)
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return model.ClassifyFilesystem(pathErr.Op, err)
	}

	return model.Classify(model.ErrorKindUnknown, err)
}

// defaultRetryableKinds are the failure kinds retried out of the box.
var defaultRetryableKinds = []model.ErrorKind{
	model.ErrorKindNetworkTimeout,
	model.ErrorKindNetworkUnreachable,
	model.ErrorKindDNSResolutionFailed,
	model.ErrorKindConnectionRefused,
}

// defaultRetryableStatuses are the HTTP statuses retried out of the
// box: the transient server errors and 429.
var defaultRetryableStatuses = []int{429, 500, 502, 503, 504}

// retryPolicy decides which classified failures schedule another
// attempt.
type retryPolicy struct {
	kinds    map[model.ErrorKind]bool
	statuses map[int]bool
}

// newRetryPolicy builds a policy from overrides, falling back to the
// defaults when a list is empty.
func newRetryPolicy(kinds []model.ErrorKind, statuses []int) retryPolicy {
	if len(kinds) == 0 {
		kinds = defaultRetryableKinds
	}
	if len(statuses) == 0 {
		statuses = defaultRetryableStatuses
	}
	p := retryPolicy{
		kinds:    make(map[model.ErrorKind]bool, len(kinds)),
		statuses: make(map[int]bool, len(statuses)),
	}
	for _, k := range kinds {
		p.kinds[k] = true
	}
	for _, s := range statuses {
		p.statuses[s] = true
	}
	return p
}

// retryable reports whether another attempt may follow this failure.
func (p retryPolicy) retryable(ce *model.ClassifiedError) bool {
	if ce == nil {
		return false
	}
	if ce.Kind == model.ErrorKindHTTPStatus {
		return p.statuses[ce.StatusCode]
	}
	return p.kinds[ce.Kind]
}

// RetryError is the terminal error for a download whose retry budget
// ran out. It keeps the per-attempt causes so reports can show the
// full history.
type RetryError struct {
	// URL is the resource that failed.
	URL string

	// Attempts is the number of attempts made.
	Attempts int

	// Causes holds one classified error per failed attempt, in order.
	Causes []error
}

// Error summarizes the failure with its final cause.
func (e *RetryError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("download of %s failed after %d attempts", e.URL, e.Attempts)
	}
	return fmt.Sprintf("download of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Causes[len(e.Causes)-1])
}

// Unwrap returns the final cause, so KindOf reports the kind that
// exhausted the budget.
func (e *RetryError) Unwrap() error {
	if len(e.Causes) == 0 {
		return nil
	}
	return e.Causes[len(e.Causes)-1]
}
