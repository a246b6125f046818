package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/webget/internal/model"
)

// JSONWriter outputs session reports in JSON format.
// This format is designed for tool integration and programmatic
// processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter:   newBaseWriter(output),
		indent:       false,
		indentPrefix: "",
		indentString: "",
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the session with its computed totals in JSON format.
func (w *JSONWriter) Write(session *model.Session) (int, error) {
	return w.writeJSON(NewJSONReport(session, ""))
}

// WriteSummary outputs only the aggregate totals in JSON format.
func (w *JSONWriter) WriteSummary(summary model.Summary) (int, error) {
	return w.writeJSON(summary)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport pairs a session with its computed totals, optionally
// tagged with the webget version that produced it. The summary is not
// stored on the session itself, so JSON output wraps both.
type JSONReport struct {
	// Version is the webget version that generated this report.
	Version string `json:"version,omitempty"`

	// Session is the full session including per-file results.
	Session *model.Session `json:"session"`

	// Summary holds the aggregate transfer totals.
	Summary model.Summary `json:"summary"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(session *model.Session, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Session: session,
		Summary: session.Summarize(),
	}
}

// FullJSONWriter outputs complete reports tagged with the program
// version.
type FullJSONWriter struct {
	*JSONWriter

	// version is the webget version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with version
// metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the session report tagged with the version.
func (w *FullJSONWriter) Write(session *model.Session) (int, error) {
	return w.writeJSON(NewJSONReport(session, w.version))
}
