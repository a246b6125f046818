package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/webget/internal/model"
)

// SimpleWriter outputs human-readable text reports. This format is
// designed for terminal display and pipes cleanly to files or other
// tools because it carries no ANSI escapes.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no content are shown.
	showEmpty bool

	// verbose enables per-file attempt and timing detail.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full session report in human-readable format.
func (w *SimpleWriter) Write(session *model.Session) (int, error) {
	var sb strings.Builder
	summary := session.Summarize()

	w.writeHeader(&sb, session, summary)
	w.writeTotals(&sb, summary)
	w.writeDiscovery(&sb, session)
	w.writeFiles(&sb, session)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs only the transfer totals.
func (w *SimpleWriter) WriteSummary(summary model.Summary) (int, error) {
	var sb strings.Builder
	w.writeTotals(&sb, summary)
	return w.output.Write([]byte(sb.String()))
}

// writeBanner writes a section divider with a title.
func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, session *model.Session, summary model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        WEBGET SESSION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Session:     %s\n", session.ID))
	for i, seed := range session.Seeds {
		if i == 0 {
			sb.WriteString(fmt.Sprintf("Seeds:       %s\n", seed))
		} else {
			sb.WriteString(fmt.Sprintf("             %s\n", seed))
		}
	}
	sb.WriteString(fmt.Sprintf("Destination: %s\n", session.Destination))
	sb.WriteString(fmt.Sprintf("Started:     %s\n", session.StartedAt.Format("2006-01-02 15:04:05 MST")))
	if summary.Elapsed > 0 {
		sb.WriteString(fmt.Sprintf("Elapsed:     %s\n", summary.Elapsed.Round(time.Millisecond)))
	}

	if session.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Status:      ERROR - %s\n", session.ErrorMessage))
	} else {
		sb.WriteString("Status:      Complete\n")
	}

	sb.WriteString("\n")
}

// writeTotals writes the transfer summary section.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary model.Summary) {
	writeBanner(sb, "TRANSFER SUMMARY")

	sb.WriteString(fmt.Sprintf("  REQUESTED: %d\n", summary.Requested))
	sb.WriteString(fmt.Sprintf("  SUCCEEDED: %d\n", summary.Succeeded))
	sb.WriteString(fmt.Sprintf("  FAILED:    %d\n", summary.Failed))
	sb.WriteString(fmt.Sprintf("  RESUMED:   %d\n", summary.Resumed))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  TOTAL:     %s transferred\n", humanize.Bytes(uint64(summary.TotalBytes))))
	sb.WriteString("\n")
}

// writeDiscovery writes the crawl statistics section. Direct downloads
// never visit pages, so the section is hidden unless showEmpty is set.
func (w *SimpleWriter) writeDiscovery(sb *strings.Builder, session *model.Session) {
	stats := session.CrawlStats
	if stats.PagesVisited == 0 && stats.FilesDiscovered == 0 && !w.showEmpty {
		return
	}

	writeBanner(sb, "DISCOVERY")

	sb.WriteString(fmt.Sprintf("  Pages visited:    %d\n", stats.PagesVisited))
	sb.WriteString(fmt.Sprintf("  Files discovered: %d\n", stats.FilesDiscovered))
	sb.WriteString(fmt.Sprintf("  Crawl errors:     %d\n", stats.Errors))
	sb.WriteString(fmt.Sprintf("  Robots blocked:   %d\n", stats.RobotsBlocked))
	sb.WriteString("\n")
}

// writeFiles writes one line per transfer result.
func (w *SimpleWriter) writeFiles(sb *strings.Builder, session *model.Session) {
	if len(session.Results) == 0 && !w.showEmpty {
		return
	}

	writeBanner(sb, "FILES")

	if len(session.Results) == 0 {
		sb.WriteString("  No files transferred\n")
	}

	for _, result := range session.Results {
		if result.Success {
			sb.WriteString(fmt.Sprintf("  [ok] %s (%s", result.FilePath, humanize.Bytes(uint64(result.Size))))
			if result.Resumed {
				sb.WriteString(", resumed")
			}
			sb.WriteString(")\n")
		} else {
			sb.WriteString(fmt.Sprintf("  [!!] %s\n", result.URL))
			sb.WriteString(fmt.Sprintf("       %s: %s\n", result.ErrorKind, result.ErrorMessage))
		}

		if w.verbose {
			sb.WriteString(fmt.Sprintf("       Attempts: %d, Duration: %dms\n", result.Attempts, result.DurationMillis))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webget\n")
	sb.WriteString("https://github.com/nao1215/webget\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
