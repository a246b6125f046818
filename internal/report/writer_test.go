package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webget/internal/model"
)

// createTestSession creates a finished session with one successful and
// one failed transfer.
func createTestSession() *model.Session {
	session := model.NewSession("b2c9d1e4", []string{"http://example.com/docs/"}, "downloads")
	session.StartedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session.FinishedAt = session.StartedAt.Add(42 * time.Second)
	session.CrawlStats = model.CrawlStats{
		PagesVisited:    4,
		FilesDiscovered: 2,
		RobotsBlocked:   1,
	}
	session.Results = []model.DownloadResult{
		{
			URL:            "http://example.com/docs/a.pdf",
			Success:        true,
			FilePath:       "downloads/example.com/docs/a.pdf",
			Size:           2048,
			DurationMillis: 120,
			Resumed:        true,
			Attempts:       2,
		},
		{
			URL:          "http://example.com/docs/b.pdf",
			Success:      false,
			Attempts:     3,
			ErrorKind:    model.ErrorKindHTTPStatus,
			ErrorMessage: "unexpected status 404",
		},
	}
	return session
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes session header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "WEBGET SESSION REPORT") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "b2c9d1e4") {
			t.Error("expected output to contain session ID")
		}
		if !strings.Contains(output, "http://example.com/docs/") {
			t.Error("expected output to contain seed URL")
		}
	})

	t.Run("writes transfer summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "TRANSFER SUMMARY") {
			t.Error("expected output to contain summary section")
		}
		if !strings.Contains(output, "REQUESTED: 2") {
			t.Error("expected output to contain requested count")
		}
		if !strings.Contains(output, "SUCCEEDED: 1") {
			t.Error("expected output to contain succeeded count")
		}
		if !strings.Contains(output, "2.0 kB transferred") {
			t.Error("expected output to contain humanized byte total")
		}
	})

	t.Run("lists transferred files", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[ok] downloads/example.com/docs/a.pdf") {
			t.Error("expected output to contain successful file line")
		}
		if !strings.Contains(output, "resumed") {
			t.Error("expected output to mark resumed transfers")
		}
		if !strings.Contains(output, "[!!] http://example.com/docs/b.pdf") {
			t.Error("expected output to contain failed file line")
		}
		if !strings.Contains(output, "HTTP_STATUS: unexpected status 404") {
			t.Error("expected output to contain error kind and message")
		}
	})

	t.Run("verbose mode includes attempts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true))

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "Attempts: 2") {
			t.Error("expected verbose output to contain attempt counts")
		}
	})

	t.Run("reports a fatal error in the status line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)
		session := createTestSession()
		session.ErrorMessage = "discover: no usable seed URLs"

		_, err := w.Write(session)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "ERROR - discover: no usable seed URLs") {
			t.Error("expected status line to carry the fatal error")
		}
	})

	t.Run("hides discovery for direct downloads", func(t *testing.T) {
		t.Parallel()

		session := createTestSession()
		session.CrawlStats = model.CrawlStats{}

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "DISCOVERY") {
			t.Error("expected discovery section to be hidden without crawl stats")
		}

		var verbose bytes.Buffer
		if _, err := NewSimpleWriter(&verbose, WithShowEmpty(true)).Write(session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(verbose.String(), "DISCOVERY") {
			t.Error("expected discovery section with WithShowEmpty")
		}
	})

	t.Run("summary only output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.WriteSummary(createTestSession().Summarize())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "TRANSFER SUMMARY") {
			t.Error("expected summary section")
		}
		if strings.Contains(output, "WEBGET SESSION REPORT") {
			t.Error("expected summary output to omit the full header")
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "# webget Session Report") {
			t.Error("expected output to contain H1 header")
		}
		if !strings.Contains(output, "b2c9d1e4") {
			t.Error("expected output to contain session ID")
		}
	})

	t.Run("writes transfer summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Transfer Summary") {
			t.Error("expected output to contain summary header")
		}
		if !strings.Contains(output, "Requested") {
			t.Error("expected output to contain requested metric")
		}
	})

	t.Run("warns when transfers fail", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "[!WARNING]") {
			t.Error("expected WARNING alert when transfers failed")
		}
	})

	t.Run("includes TIP alert when everything succeeded", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		session := createTestSession()
		session.Results = session.Results[:1]

		_, err := w.Write(session)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Error("expected TIP alert for fully successful session")
		}
	})

	t.Run("notes sessions without transfers", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		session := createTestSession()
		session.Results = nil

		_, err := w.Write(session)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[!NOTE]") {
			t.Error("expected NOTE alert for empty session")
		}
		if !strings.Contains(output, "No files were transferred.") {
			t.Error("expected empty files section text")
		}
	})

	t.Run("includes pie chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "mermaid") {
			t.Error("expected output to contain mermaid code block")
		}
		if !strings.Contains(output, "pie") {
			t.Error("expected output to contain pie chart")
		}
	})

	t.Run("writes files table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Files") {
			t.Error("expected output to contain files header")
		}
		if !strings.Contains(output, "a.pdf") {
			t.Error("expected output to contain file name")
		}
		if !strings.Contains(output, "unexpected status 404") {
			t.Error("expected output to contain error detail")
		}
	})

	t.Run("writes discovery stats", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "## Discovery") {
			t.Error("expected output to contain discovery header")
		}
		if !strings.Contains(output, "Pages visited") {
			t.Error("expected output to contain crawl stats")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("produces valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}

		session, ok := decoded["session"].(map[string]any)
		if !ok {
			t.Fatal("expected session object in output")
		}
		if session["id"] != "b2c9d1e4" {
			t.Errorf("session id = %v, expected b2c9d1e4", session["id"])
		}

		summary, ok := decoded["summary"].(map[string]any)
		if !ok {
			t.Fatal("expected summary object in output")
		}
		if summary["requested"] != float64(2) {
			t.Errorf("requested = %v, expected 2", summary["requested"])
		}
	})

	t.Run("omits version when not set", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if _, ok := decoded["version"]; ok {
			t.Error("expected no version field without FullJSONWriter")
		}
	})

	t.Run("pretty print indents output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint())

		_, err := w.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "\n  ") {
			t.Error("expected indented output with WithPrettyPrint")
		}
	})

	t.Run("summary only output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		_, err := w.WriteSummary(createTestSession().Summarize())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["requested"] != float64(2) {
			t.Errorf("requested = %v, expected 2", decoded["requested"])
		}
		if _, ok := decoded["session"]; ok {
			t.Error("expected summary output to omit the session")
		}
	})
}

// TestFullJSONWriter tests the version-tagged JSON writer.
func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewFullJSONWriter(&buf, "1.0.0")

	_, err := w.Write(createTestSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["version"] != "1.0.0" {
		t.Errorf("version = %v, expected 1.0.0", decoded["version"])
	}
}

// failWriter always fails, for MultiWriter error propagation tests.
type failWriter struct{}

func (failWriter) Write(_ *model.Session) (int, error) {
	return 0, errors.New("sink failed")
}

func (failWriter) WriteSummary(_ model.Summary) (int, error) {
	return 0, errors.New("sink failed")
}

// TestMultiWriter tests fan-out to multiple writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var first, second bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&first), NewSimpleWriter(&second))

		total, err := mw.Write(createTestSession())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if first.Len() == 0 || second.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
		if first.String() != second.String() {
			t.Error("expected identical output in both writers")
		}
		if total != first.Len()+second.Len() {
			t.Errorf("total = %d, expected %d", total, first.Len()+second.Len())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		mw := NewMultiWriter(failWriter{}, NewSimpleWriter(&buf))

		_, err := mw.Write(createTestSession())
		if err == nil {
			t.Fatal("expected error from failing writer")
		}
		if buf.Len() != 0 {
			t.Error("expected later writers to be skipped after an error")
		}
	})
}

// TestTruncateString tests table cell truncation.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string unchanged", input: "abc", maxLen: 10, want: "abc"},
		{name: "long string truncated", input: "abcdefghij", maxLen: 8, want: "abcde..."},
		{name: "tiny limit has no ellipsis", input: "abcdef", maxLen: 2, want: "ab"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, expected %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
