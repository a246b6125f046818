package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/webget/internal/config"
	"github.com/nao1215/webget/internal/history"
	"github.com/nao1215/webget/internal/log"
	"github.com/nao1215/webget/internal/model"
)

// TestNewGetCmd tests the get command creation.
func TestNewGetCmd(t *testing.T) {
	t.Parallel()

	cmd := NewGetCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "get [url...]" {
			t.Errorf("expected use 'get [url...]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("has crawl flags", func(t *testing.T) {
		t.Parallel()
		shorthands := map[string]string{
			"level":      "l",
			"span-hosts": "H",
			"accept":     "A",
			"reject":     "R",
			"concurrent": "b",
			"wait":       "w",
		}
		for name, shorthand := range shorthands {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Fatalf("expected %s flag", name)
			}
			if flag.Shorthand != shorthand {
				t.Errorf("expected %s shorthand %q, got %q", name, shorthand, flag.Shorthand)
			}
		}
	})

	t.Run("has transfer flags", func(t *testing.T) {
		t.Parallel()
		shorthands := map[string]string{
			"dir":        "P",
			"tries":      "t",
			"timeout":    "T",
			"user-agent": "U",
		}
		for name, shorthand := range shorthands {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Fatalf("expected %s flag", name)
			}
			if flag.Shorthand != shorthand {
				t.Errorf("expected %s shorthand %q, got %q", name, shorthand, flag.Shorthand)
			}
		}
		for _, name := range []string{"no-parent", "no-resume", "flatten", "checksum", "max-file-size"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})

	t.Run("has output flag with simple default", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
		if flag.DefValue != "simple" {
			t.Errorf("expected default 'simple', got %q", flag.DefValue)
		}
	})

	t.Run("has report and history flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"report-file", "no-history"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})

	t.Run("has ssh flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"ssh-user", "ssh-password", "ssh-key", "ssh-known-hosts", "ssh-insecure"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})

	t.Run("does not have db-dir flag (uses XDG)", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("db-dir") != nil {
			t.Error("db-dir flag should not exist (always uses XDG data directory)")
		}
	})
}

// TestSetupLogger tests the logger setup.
func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("creates logger for verbose mode", func(t *testing.T) {
		t.Parallel()
		if setupLogger(true) == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("creates logger for non-verbose mode", func(t *testing.T) {
		t.Parallel()
		if setupLogger(false) == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestGetVerboseFlag tests the verbose flag retrieval.
func TestGetVerboseFlag(t *testing.T) {
	t.Run("returns false when flag not set", func(t *testing.T) {
		cmd := NewGetCmd()
		if getVerboseFlag(cmd) {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		root := NewRootCmd()
		_ = root.PersistentFlags().Set("verbose", "true")

		getCmd, _, err := root.Find([]string{"get"})
		if err != nil {
			t.Fatalf("failed to find get command: %v", err)
		}

		if !getVerboseFlag(getCmd) {
			t.Error("expected true from parent verbose flag")
		}
	})
}

// TestParseHeaderFlags tests header flag parsing.
func TestParseHeaderFlags(t *testing.T) {
	t.Parallel()

	t.Run("parses headers", func(t *testing.T) {
		t.Parallel()
		headers, err := parseHeaderFlags([]string{
			"Authorization: Bearer token",
			"X-Schedule: 10:30",
			"X-Empty:",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if headers["Authorization"] != "Bearer token" {
			t.Errorf("Authorization = %q, expected %q", headers["Authorization"], "Bearer token")
		}
		if headers["X-Schedule"] != "10:30" {
			t.Errorf("X-Schedule = %q, expected %q", headers["X-Schedule"], "10:30")
		}
		if value, ok := headers["X-Empty"]; !ok || value != "" {
			t.Errorf("X-Empty = %q (present %v), expected empty value", value, ok)
		}
	})

	t.Run("rejects header without colon", func(t *testing.T) {
		t.Parallel()
		if _, err := parseHeaderFlags([]string{"NoColon"}); err == nil {
			t.Error("expected error for header without colon")
		}
	})

	t.Run("rejects header without name", func(t *testing.T) {
		t.Parallel()
		if _, err := parseHeaderFlags([]string{": value"}); err == nil {
			t.Error("expected error for header without name")
		}
	})
}

// writeConfigFile writes a config file into a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webget.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// findGetCmd builds the command tree and returns the get subcommand with
// the root --config flag pointed at the given path.
func findGetCmd(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	root := NewRootCmd()
	if configPath != "" {
		if err := root.PersistentFlags().Set("config", configPath); err != nil {
			t.Fatalf("failed to set config flag: %v", err)
		}
	}
	getCmd, _, err := root.Find([]string{"get"})
	if err != nil {
		t.Fatalf("failed to find get command: %v", err)
	}
	return getCmd
}

// TestBuildConfig tests configuration building from flags and files.
func TestBuildConfig(t *testing.T) {
	t.Run("builds config with default values", func(t *testing.T) {
		configPath := writeConfigFile(t, "")

		cfg, err := buildConfig(findGetCmd(t, configPath), []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Seeds) != 1 || cfg.Seeds[0] != "http://example.com/" {
			t.Errorf("Seeds = %v, expected [http://example.com/]", cfg.Seeds)
		}
		if cfg.MaxDepth != config.DefaultMaxDepth {
			t.Errorf("MaxDepth = %d, expected %d", cfg.MaxDepth, config.DefaultMaxDepth)
		}
		if cfg.Destination != "." {
			t.Errorf("Destination = %q, expected %q", cfg.Destination, ".")
		}
		if !cfg.Resume {
			t.Error("expected Resume to default to true")
		}
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to default to true")
		}
		if !cfg.BlockLocalhost {
			t.Error("expected BlockLocalhost to default to true")
		}
	})

	t.Run("config file values override defaults", func(t *testing.T) {
		configPath := writeConfigFile(t, "max_depth: 9\nmax_concurrent: 3\n")

		cfg, err := buildConfig(findGetCmd(t, configPath), []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxDepth != 9 {
			t.Errorf("MaxDepth = %d, expected 9", cfg.MaxDepth)
		}
		if cfg.MaxConcurrent != 3 {
			t.Errorf("MaxConcurrent = %d, expected 3", cfg.MaxConcurrent)
		}
	})

	t.Run("explicit flags override config file values", func(t *testing.T) {
		configPath := writeConfigFile(t, "max_depth: 9\nmax_concurrent: 3\n")

		getCmd := findGetCmd(t, configPath)
		if err := getCmd.Flags().Set("level", "4"); err != nil {
			t.Fatalf("failed to set level flag: %v", err)
		}

		cfg, err := buildConfig(getCmd, []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxDepth != 4 {
			t.Errorf("MaxDepth = %d, expected flag value 4", cfg.MaxDepth)
		}
		if cfg.MaxConcurrent != 3 {
			t.Errorf("MaxConcurrent = %d, expected config file value 3", cfg.MaxConcurrent)
		}
	})

	t.Run("returns error for missing explicit config file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.yml")

		_, err := buildConfig(findGetCmd(t, missing), []string{"http://example.com/"})
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' in error, got %q", err.Error())
		}
	})

	t.Run("returns error for invalid config file", func(t *testing.T) {
		configPath := writeConfigFile(t, "{invalid yaml")

		_, err := buildConfig(findGetCmd(t, configPath), []string{"http://example.com/"})
		if err == nil {
			t.Fatal("expected error for invalid config file")
		}
	})

	t.Run("builds config with transfer flags", func(t *testing.T) {
		destination := t.TempDir()

		cmd := NewGetCmd()
		for flag, value := range map[string]string{
			"dir":       destination,
			"no-resume": "true",
			"tries":     "7",
			"flatten":   "true",
			"checksum":  "sha256:aabbcc",
		} {
			if err := cmd.Flags().Set(flag, value); err != nil {
				t.Fatalf("failed to set %s flag: %v", flag, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"http://example.com/file.bin"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Destination != destination {
			t.Errorf("Destination = %q, expected %q", cfg.Destination, destination)
		}
		if cfg.Resume {
			t.Error("expected Resume false after --no-resume")
		}
		if cfg.MaxRetries != 7 {
			t.Errorf("MaxRetries = %d, expected 7", cfg.MaxRetries)
		}
		if !cfg.FlattenPaths {
			t.Error("expected FlattenPaths true")
		}
		if cfg.Checksum != "sha256:aabbcc" {
			t.Errorf("Checksum = %q, expected %q", cfg.Checksum, "sha256:aabbcc")
		}
	})

	t.Run("builds config with security flags", func(t *testing.T) {
		cmd := NewGetCmd()
		for flag, value := range map[string]string{
			"allow-localhost": "true",
			"allow-private":   "true",
			"block-host":      "evil.example.com",
			"rate-limit":      "0",
		} {
			if err := cmd.Flags().Set(flag, value); err != nil {
				t.Fatalf("failed to set %s flag: %v", flag, err)
			}
		}

		cfg, err := buildConfig(cmd, []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.BlockLocalhost {
			t.Error("expected BlockLocalhost false after --allow-localhost")
		}
		if cfg.BlockPrivateNetworks {
			t.Error("expected BlockPrivateNetworks false after --allow-private")
		}
		if len(cfg.BlockedHosts) != 1 || cfg.BlockedHosts[0] != "evil.example.com" {
			t.Errorf("BlockedHosts = %v, expected [evil.example.com]", cfg.BlockedHosts)
		}
		if cfg.RateLimitPerMinute != 0 {
			t.Errorf("RateLimitPerMinute = %d, expected 0", cfg.RateLimitPerMinute)
		}
	})

	t.Run("builds config with output format", func(t *testing.T) {
		cmd := NewGetCmd()
		if err := cmd.Flags().Set("output", "json"); err != nil {
			t.Fatalf("failed to set output flag: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.JSONReport {
			t.Error("expected JSONReport true")
		}
		if cfg.MarkdownReport {
			t.Error("expected MarkdownReport false")
		}
	})

	t.Run("returns error for invalid output format", func(t *testing.T) {
		cmd := NewGetCmd()
		if err := cmd.Flags().Set("output", "xml"); err != nil {
			t.Fatalf("failed to set output flag: %v", err)
		}

		_, err := buildConfig(cmd, []string{"http://example.com/"})
		if err == nil {
			t.Fatal("expected error for invalid output format")
		}
		if !strings.Contains(err.Error(), "invalid output format") {
			t.Errorf("expected 'invalid output format' in error, got %q", err.Error())
		}
	})

	t.Run("merges header flags", func(t *testing.T) {
		cmd := NewGetCmd()
		if err := cmd.Flags().Set("header", "Authorization: Bearer token"); err != nil {
			t.Fatalf("failed to set header flag: %v", err)
		}
		if err := cmd.Flags().Set("header", "X-Custom: yes"); err != nil {
			t.Fatalf("failed to set header flag: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Headers["Authorization"] != "Bearer token" {
			t.Errorf("Authorization header = %q, expected %q", cfg.Headers["Authorization"], "Bearer token")
		}
		if cfg.Headers["X-Custom"] != "yes" {
			t.Errorf("X-Custom header = %q, expected %q", cfg.Headers["X-Custom"], "yes")
		}
	})

	t.Run("disables history with no-history", func(t *testing.T) {
		cmd := NewGetCmd()
		if err := cmd.Flags().Set("no-history", "true"); err != nil {
			t.Fatalf("failed to set no-history flag: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"http://example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SaveHistory {
			t.Error("expected SaveHistory false after --no-history")
		}
	})

	t.Run("collects multiple seeds", func(t *testing.T) {
		cmd := NewGetCmd()
		cfg, err := buildConfig(cmd, []string{"http://a.example.com/", "http://b.example.com/", "http://c.example.com/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Seeds) != 3 {
			t.Errorf("len(Seeds) = %d, expected 3", len(cfg.Seeds))
		}
	})
}

// TestSSHOptions tests SFTP credential assembly.
func TestSSHOptions(t *testing.T) {
	t.Parallel()

	t.Run("returns nil without ssh settings", func(t *testing.T) {
		t.Parallel()
		if opts := sshOptions(config.NewConfig()); opts != nil {
			t.Errorf("expected nil, got %+v", opts)
		}
	})

	t.Run("builds options from config", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.SSHUser = "deploy"
		cfg.SSHPrivateKeyPath = "/home/deploy/.ssh/id_ed25519"
		cfg.SSHKnownHostsPath = "/home/deploy/.ssh/known_hosts"

		opts := sshOptions(cfg)
		if opts == nil {
			t.Fatal("expected non-nil options")
		}
		if opts.User != "deploy" {
			t.Errorf("User = %q, expected %q", opts.User, "deploy")
		}
		if opts.PrivateKeyPath != "/home/deploy/.ssh/id_ed25519" {
			t.Errorf("PrivateKeyPath = %q, expected key path", opts.PrivateKeyPath)
		}
		if opts.InsecureIgnoreHostKey {
			t.Error("expected InsecureIgnoreHostKey false")
		}
	})
}

// TestApplyHostOverrides tests per-host config folding.
func TestApplyHostOverrides(t *testing.T) {
	t.Parallel()

	t.Run("no-op without host configs", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Seeds = []string{"http://files.example.com/a"}
		if cookie := applyHostOverrides(cfg); cookie != "" {
			t.Errorf("cookie = %q, expected empty", cookie)
		}
	})

	t.Run("applies single-host overrides", func(t *testing.T) {
		t.Parallel()
		delay := config.Duration(2 * time.Second)
		cfg := config.NewConfig()
		cfg.Seeds = []string{"http://files.example.com/a", "http://files.example.com/b"}
		cfg.HostConfigs = &config.File{
			Hosts: map[string]config.HostConfig{
				"files.example.com": {
					Cookie:  "session=abc123",
					Headers: map[string]string{"Authorization": "Bearer token"},
					Delay:   &delay,
				},
			},
		}

		cookie := applyHostOverrides(cfg)
		if cookie != "session=abc123" {
			t.Errorf("cookie = %q, expected %q", cookie, "session=abc123")
		}
		if cfg.Headers["Authorization"] != "Bearer token" {
			t.Errorf("Authorization = %q, expected %q", cfg.Headers["Authorization"], "Bearer token")
		}
		if cfg.CrawlDelay != 2*time.Second {
			t.Errorf("CrawlDelay = %v, expected 2s", cfg.CrawlDelay)
		}
	})

	t.Run("skips overrides for multi-host seeds", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Seeds = []string{"http://a.example.com/", "http://b.example.com/"}
		cfg.HostConfigs = &config.File{
			Hosts: map[string]config.HostConfig{
				"a.example.com": {Cookie: "session=abc123"},
			},
		}

		if cookie := applyHostOverrides(cfg); cookie != "" {
			t.Errorf("cookie = %q, expected empty for multi-host seeds", cookie)
		}
		if cfg.Headers != nil {
			t.Errorf("Headers = %v, expected nil", cfg.Headers)
		}
	})
}

// makeReportSession builds a finished session for report output tests.
func makeReportSession() *model.Session {
	session := model.NewSession("0faf51b2-58cc-4372-a567-0e02b2c3d479",
		[]string{"http://example.com/docs/"}, "/tmp/downloads")
	session.Results = []model.DownloadResult{
		{
			URL:      "http://example.com/docs/a.pdf",
			Success:  true,
			FilePath: "a.pdf",
			Size:     2048,
			Attempts: 1,
		},
	}
	session.CrawlStats = model.CrawlStats{PagesVisited: 1, FilesDiscovered: 1}
	session.Finish(nil)
	return session
}

// TestOutputReport tests report format selection and file output.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	t.Run("writes simple report by default", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		cfg := config.NewConfig()

		if err := outputReport(cfg, makeReportSession(), buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "WEBGET SESSION REPORT") {
			t.Error("expected simple report header")
		}
	})

	t.Run("writes json report", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		cfg := config.NewConfig()
		cfg.JSONReport = true

		if err := outputReport(cfg, makeReportSession(), buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("failed to decode JSON report: %v", err)
		}
		if _, ok := decoded["session"]; !ok {
			t.Error("expected session key in JSON report")
		}
		if _, ok := decoded["version"]; !ok {
			t.Error("expected version key in JSON report")
		}
	})

	t.Run("writes markdown report", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		cfg := config.NewConfig()
		cfg.MarkdownReport = true

		if err := outputReport(cfg, makeReportSession(), buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "# webget Session Report") {
			t.Error("expected markdown report header")
		}
	})

	t.Run("writes report to file with directories", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "session.md")

		if err := outputReport(cfg, makeReportSession(), buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report file: %v", err)
		}
		if !strings.Contains(string(content), "# webget Session Report") {
			t.Error("expected markdown header in report file")
		}
		if buf.Len() != 0 {
			t.Errorf("expected no stdout output when writing to file, got %q", buf.String())
		}
	})
}

// newDownloadTestServer serves one HTML page linking a downloadable file.
func newDownloadTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><body><a href="/files/data.txt">data</a></body></html>`)
		case "/files/data.txt":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "hello webget")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// newRunConfig builds a config pointed at a local test server.
func newRunConfig(t *testing.T, seed string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Seeds = []string{seed}
	cfg.Destination = t.TempDir()
	cfg.DBDir = t.TempDir()
	cfg.BlockLocalhost = false
	cfg.BlockPrivateNetworks = false
	cfg.CrawlDelay = 0
	cfg.BatchDelay = 0
	cfg.RateLimitPerMinute = 0
	return cfg
}

// findDownloadedFile walks root and returns the path of the first file
// with the given name, or empty when absent.
func findDownloadedFile(t *testing.T, root, name string) string {
	t.Helper()
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && d.Name() == name {
			found = path
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	return found
}

// TestRunGet tests the full download run against a local server.
func TestRunGet(t *testing.T) {
	t.Parallel()

	logger := log.NewSecureLogger(io.Discard, false)

	t.Run("downloads linked files and records history", func(t *testing.T) {
		t.Parallel()
		server := newDownloadTestServer(t)
		cfg := newRunConfig(t, server.URL+"/")
		out := &bytes.Buffer{}

		if err := runGet(context.Background(), cfg, logger, out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := findDownloadedFile(t, cfg.Destination, "data.txt")
		if path == "" {
			t.Fatal("expected data.txt to be downloaded")
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read downloaded file: %v", err)
		}
		if string(content) != "hello webget" {
			t.Errorf("content = %q, expected %q", string(content), "hello webget")
		}

		if !strings.Contains(out.String(), "[ok]") {
			t.Error("expected progress output for the download")
		}
		if !strings.Contains(out.String(), "WEBGET SESSION REPORT") {
			t.Error("expected session report on stdout")
		}

		db, err := history.Open(cfg.DBDir, history.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history database: %v", err)
		}
		defer db.Close()

		sessions, err := db.ListSessions(context.Background(), 0)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) != 1 {
			t.Fatalf("len(sessions) = %d, expected 1", len(sessions))
		}
		if sessions[0].Succeeded != 1 {
			t.Errorf("Succeeded = %d, expected 1", sessions[0].Succeeded)
		}
	})

	t.Run("downloads a direct file seed", func(t *testing.T) {
		t.Parallel()
		server := newDownloadTestServer(t)
		cfg := newRunConfig(t, server.URL+"/files/data.txt")
		cfg.SaveHistory = false
		out := &bytes.Buffer{}

		if err := runGet(context.Background(), cfg, logger, out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if findDownloadedFile(t, cfg.Destination, "data.txt") == "" {
			t.Fatal("expected data.txt to be downloaded")
		}
	})

	t.Run("returns error when downloads fail", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				fmt.Fprint(w, `<html><body><a href="/files/missing.txt">gone</a></body></html>`)
				return
			}
			http.NotFound(w, r)
		}))
		t.Cleanup(server.Close)

		cfg := newRunConfig(t, server.URL+"/")
		cfg.SaveHistory = false
		cfg.MaxRetries = 0
		out := &bytes.Buffer{}

		err := runGet(context.Background(), cfg, logger, out)
		if err == nil {
			t.Fatal("expected error when a download fails")
		}
		if !strings.Contains(err.Error(), "downloads failed") {
			t.Errorf("expected 'downloads failed' in error, got %q", err.Error())
		}
		if !strings.Contains(out.String(), "[!!]") {
			t.Error("expected failure marker in progress output")
		}
	})
}
