package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webget/internal/model"
)

// setupTestDB creates a temporary history database for testing.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tmpDir := t.TempDir()

	db, err := Open(tmpDir, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// sampleSession builds a finished session with one successful and one
// failed download.
func sampleSession(id string, started time.Time) *model.Session {
	session := model.NewSession(id, []string{"http://example.com/docs/"}, "downloads")
	session.StartedAt = started
	session.FinishedAt = started.Add(3 * time.Second)
	session.CrawlStats = model.CrawlStats{
		PagesVisited:    3,
		FilesDiscovered: 2,
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
			Attempts:     1,
			ErrorKind:    model.ErrorKindHTTPStatus,
			ErrorMessage: "unexpected status 404",
		},
	}
	return session
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, "history.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")

		opts := Options{
			CreateIfNotExists: false,
			EnableWAL:         true,
		}

		_, err := Open(dbDir, opts)
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("error = %q, expected it to contain %q", err.Error(), "database not found")
		}

		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := context.Background()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}

		session := sampleSession("persisted", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
		if err := db1.SaveSession(ctx, session); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		retrieved, err := db2.GetSession(ctx, "persisted")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if retrieved == nil {
			t.Error("expected session to persist across reopens")
		}
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()

	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

// TestSaveSession tests session persistence and upsert behavior.
func TestSaveSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stores session and download rows", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		session := sampleSession("run-1", started)

		if err := db.SaveSession(ctx, session); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		rec, err := db.GetSession(ctx, "run-1")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if rec == nil {
			t.Fatal("expected session record, got nil")
		}

		if rec.ID != "run-1" {
			t.Errorf("ID = %q, expected %q", rec.ID, "run-1")
		}
		if !rec.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, expected %v", rec.StartedAt, started)
		}
		if !rec.FinishedAt.Equal(started.Add(3 * time.Second)) {
			t.Errorf("FinishedAt = %v, expected %v", rec.FinishedAt, started.Add(3*time.Second))
		}
		if !reflect.DeepEqual(rec.Seeds, []string{"http://example.com/docs/"}) {
			t.Errorf("Seeds = %v, expected %v", rec.Seeds, []string{"http://example.com/docs/"})
		}
		if rec.Destination != "downloads" {
			t.Errorf("Destination = %q, expected %q", rec.Destination, "downloads")
		}
		if rec.Requested != 2 || rec.Succeeded != 1 || rec.Failed != 1 || rec.Resumed != 1 {
			t.Errorf("totals = %d/%d/%d/%d, expected 2/1/1/1",
				rec.Requested, rec.Succeeded, rec.Failed, rec.Resumed)
		}
		if rec.TotalBytes != 2048 {
			t.Errorf("TotalBytes = %d, expected 2048", rec.TotalBytes)
		}
		if rec.PagesVisited != 3 || rec.FilesDiscovered != 2 {
			t.Errorf("crawl stats = %d/%d, expected 3/2", rec.PagesVisited, rec.FilesDiscovered)
		}
		if rec.ErrorMessage != "" {
			t.Errorf("ErrorMessage = %q, expected empty", rec.ErrorMessage)
		}

		downloads, err := db.ListDownloads(ctx, "run-1")
		if err != nil {
			t.Fatalf("failed to list downloads: %v", err)
		}
		if len(downloads) != 2 {
			t.Fatalf("len(downloads) = %d, expected 2", len(downloads))
		}

		first := downloads[0]
		if first.URL != "http://example.com/docs/a.pdf" {
			t.Errorf("URL = %q, expected a.pdf row first", first.URL)
		}
		if !first.Success {
			t.Error("expected first download to be recorded as successful")
		}
		if first.FilePath != "downloads/example.com/docs/a.pdf" {
			t.Errorf("FilePath = %q, expected the written path", first.FilePath)
		}
		if first.Size != 2048 || first.DurationMillis != 120 || first.Attempts != 2 {
			t.Errorf("first row = size %d, duration %d, attempts %d, expected 2048/120/2",
				first.Size, first.DurationMillis, first.Attempts)
		}
		if !first.Resumed {
			t.Error("expected first download to be recorded as resumed")
		}
		if first.ErrorKind != "NONE" {
			t.Errorf("ErrorKind = %q, expected %q", first.ErrorKind, "NONE")
		}

		second := downloads[1]
		if second.Success {
			t.Error("expected second download to be recorded as failed")
		}
		if second.ErrorKind != "HTTP_STATUS" {
			t.Errorf("ErrorKind = %q, expected %q", second.ErrorKind, "HTTP_STATUS")
		}
		if second.ErrorMessage != "unexpected status 404" {
			t.Errorf("ErrorMessage = %q, expected %q", second.ErrorMessage, "unexpected status 404")
		}
	})

	t.Run("re-save updates totals without duplicating rows", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		started := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
		session := sampleSession("run-2", started)

		if err := db.SaveSession(ctx, session); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		// The failed download succeeds on a later run of the same session.
		session.Results[1] = model.DownloadResult{
			URL:      "http://example.com/docs/b.pdf",
			Success:  true,
			FilePath: "downloads/example.com/docs/b.pdf",
			Size:     1024,
			Attempts: 3,
		}
		if err := db.SaveSession(ctx, session); err != nil {
			t.Fatalf("failed to re-save session: %v", err)
		}

		rec, err := db.GetSession(ctx, "run-2")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if rec.Succeeded != 2 || rec.Failed != 0 {
			t.Errorf("totals after re-save = %d succeeded, %d failed, expected 2/0",
				rec.Succeeded, rec.Failed)
		}
		if rec.TotalBytes != 3072 {
			t.Errorf("TotalBytes = %d, expected 3072", rec.TotalBytes)
		}

		downloads, err := db.ListDownloads(ctx, "run-2")
		if err != nil {
			t.Fatalf("failed to list downloads: %v", err)
		}
		if len(downloads) != 2 {
			t.Fatalf("len(downloads) = %d, expected 2 (upsert must not duplicate)", len(downloads))
		}
		if !downloads[1].Success || downloads[1].ErrorKind != "NONE" {
			t.Errorf("second row after re-save = success %v, kind %q, expected true/NONE",
				downloads[1].Success, downloads[1].ErrorKind)
		}
	})

	t.Run("records the fatal error message", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		session := model.NewSession("run-3", []string{"http://example.com/"}, "downloads")
		session.Finish(errors.New("discover: no usable seed URLs"))

		if err := db.SaveSession(ctx, session); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		rec, err := db.GetSession(ctx, "run-3")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if rec.ErrorMessage != "discover: no usable seed URLs" {
			t.Errorf("ErrorMessage = %q, expected the fatal error", rec.ErrorMessage)
		}
	})

	t.Run("rejects nil session", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		if err := db.SaveSession(ctx, nil); err == nil {
			t.Error("expected error for nil session")
		}
	})
}

// TestGetSession tests lookup misses.
func TestGetSession(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()

	rec, err := db.GetSession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, expected nil for unknown ID", rec)
	}
}

// TestListSessions tests ordering and limits.
func TestListSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns sessions newest first", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		for i, id := range []string{"oldest", "middle", "newest"} {
			session := sampleSession(id, base.Add(time.Duration(i)*time.Minute))
			if err := db.SaveSession(ctx, session); err != nil {
				t.Fatalf("failed to save session %s: %v", id, err)
			}
		}

		records, err := db.ListSessions(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("len(records) = %d, expected 3", len(records))
		}
		if records[0].ID != "newest" || records[2].ID != "oldest" {
			t.Errorf("order = [%s %s %s], expected newest first",
				records[0].ID, records[1].ID, records[2].ID)
		}
	})

	t.Run("applies the limit", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			session := sampleSession(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
			if err := db.SaveSession(ctx, session); err != nil {
				t.Fatalf("failed to save session: %v", err)
			}
		}

		records, err := db.ListSessions(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len(records) = %d, expected 2", len(records))
		}
		if records[0].ID != "c" || records[1].ID != "b" {
			t.Errorf("limited order = [%s %s], expected [c b]", records[0].ID, records[1].ID)
		}
	})

	t.Run("empty database returns no records", func(t *testing.T) {
		t.Parallel()

		db, cleanup := setupTestDB(t)
		defer cleanup()

		records, err := db.ListSessions(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("len(records) = %d, expected 0", len(records))
		}
	})
}

// TestListDownloads tests lookups for sessions without rows.
func TestListDownloads(t *testing.T) {
	t.Parallel()

	db, cleanup := setupTestDB(t)
	defer cleanup()

	records, err := db.ListDownloads(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("failed to list downloads: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, expected 0", len(records))
	}
}
