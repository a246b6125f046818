package report

import (
	"io"

	"github.com/nao1215/webget/internal/model"
)

// Writer renders a completed download session in some output format.
type Writer interface {
	// Write outputs the full session report to the configured
	// destination. Returns the number of bytes written and any error
	// encountered.
	Write(session *model.Session) (int, error)

	// WriteSummary outputs only the aggregate transfer totals.
	// This is useful for quick status lines without per-file details.
	WriteSummary(summary model.Summary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously, for example
// to both the terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the session report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(session *model.Session) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(session)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
