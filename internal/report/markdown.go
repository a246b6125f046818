package report

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/webget/internal/model"
)

// MarkdownWriter outputs session reports in Markdown format, suitable
// for committing next to the downloaded files or pasting into an
// issue.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full session report in Markdown format.
func (w *MarkdownWriter) Write(session *model.Session) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := session.Summarize()

	w.writeHeader(md, session, summary)
	w.writeSeeds(md, session)
	w.writeSummary(md, summary)
	w.writeDiscovery(md, session)
	w.writeFiles(md, session)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs only the transfer totals in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeSummary(md, summary)
	return len(md.String()), md.Build()
}

// writeHeader writes the report header with session information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, session *model.Session, summary model.Summary) {
	md.H1("webget Session Report")
	md.PlainText("")

	elapsed := "-"
	if summary.Elapsed > 0 {
		elapsed = summary.Elapsed.String()
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Session", "`" + session.ID + "`"},
			{"Started", session.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", elapsed},
			{"Destination", "`" + session.Destination + "`"},
			{"Status", w.getStatusText(session)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on session state.
func (w *MarkdownWriter) getStatusText(session *model.Session) string {
	if session.ErrorMessage != "" {
		return "❌ Error - " + session.ErrorMessage
	}
	return "✅ Complete"
}

// writeSeeds writes the seed URL list.
func (w *MarkdownWriter) writeSeeds(md *markdown.Markdown, session *model.Session) {
	md.H2("Seeds")
	md.PlainText("")
	md.BulletList(session.Seeds...)
	md.PlainText("")
}

// writeSummary writes the transfer totals section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary model.Summary) {
	md.H2("Transfer Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Requested", strconv.Itoa(summary.Requested)},
			{"Succeeded", strconv.Itoa(summary.Succeeded)},
			{"Failed", strconv.Itoa(summary.Failed)},
			{"Resumed", strconv.Itoa(summary.Resumed)},
			{"**Transferred**", "**" + humanize.Bytes(uint64(summary.TotalBytes)) + "**"},
		},
	})
	md.PlainText("")

	if summary.Requested > 0 {
		w.writePieChart(md, summary)
	}

	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of transfer outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Transfer Outcomes"),
		piechart.WithShowData(true),
	)

	if summary.Succeeded > 0 {
		chart.LabelAndIntValue("Succeeded", uint64(summary.Succeeded))
	}
	if summary.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(summary.Failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the outcome counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary model.Summary) {
	switch {
	case summary.Failed > 0:
		md.Warningf(
			"%d of %d transfer(s) failed. See the Files section for details.",
			summary.Failed, summary.Requested,
		)
	case summary.Requested == 0:
		md.Note("No downloadable files were found.")
	default:
		md.Tip("All transfers completed successfully.")
	}
	md.PlainText("")
}

// writeDiscovery writes the crawl statistics section. Direct downloads
// never visit pages, so the section is omitted for them.
func (w *MarkdownWriter) writeDiscovery(md *markdown.Markdown, session *model.Session) {
	stats := session.CrawlStats
	if stats.PagesVisited == 0 && stats.FilesDiscovered == 0 {
		return
	}

	md.H2("Discovery")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages visited", strconv.Itoa(stats.PagesVisited)},
			{"Files discovered", strconv.Itoa(stats.FilesDiscovered)},
			{"Crawl errors", strconv.Itoa(stats.Errors)},
			{"Robots blocked", strconv.Itoa(stats.RobotsBlocked)},
		},
	})
	md.PlainText("")
}

// writeFiles writes the per-file result table.
func (w *MarkdownWriter) writeFiles(md *markdown.Markdown, session *model.Session) {
	md.H2("Files")
	md.PlainText("")

	if len(session.Results) == 0 {
		md.PlainText("No files were transferred.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(session.Results))
	for i, result := range session.Results {
		name := result.FilePath
		if name == "" {
			name = result.URL
		}

		size := "-"
		status := "❌"
		if result.Success {
			size = humanize.Bytes(uint64(result.Size))
			status = "✅"
		}

		errText := "-"
		if result.ErrorMessage != "" {
			errText = truncateString(result.ErrorKind.String()+": "+result.ErrorMessage, 60)
		}

		rows[i] = []string{
			"`" + truncateString(name, 60) + "`",
			size,
			status,
			strconv.Itoa(result.Attempts),
			errText,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"File", "Size", "Status", "Attempts", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	// Full error text for failures, collapsed by default
	for _, result := range session.Results {
		if !result.Success && result.ErrorMessage != "" {
			md.Details(result.URL, result.ErrorMessage)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webget](https://github.com/nao1215/webget)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
