package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webget/internal/model"
)

// DB stores download sessions in a SQLite database. One connection is
// kept open for the lifetime of the DB; SQLite only supports a single
// writer anyway.
type DB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// read performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, "history.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection strings: mode=rw refuses to create
	// a new file, mode=rwc creates one when missing.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	hdb := &DB{
		db:     conn,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *DB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *DB) createTables() error {
	schema := `
	-- Sessions store one row per webget run
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		seeds TEXT NOT NULL,
		destination TEXT NOT NULL,
		requested INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		resumed INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		files_discovered INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	-- Downloads store one row per attempted transfer
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		resumed INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_session_id ON downloads(session_id);
	`

	if _, err := hdb.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SessionRecord is a stored session row.
type SessionRecord struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Seeds           []string
	Destination     string
	Requested       int
	Succeeded       int
	Failed          int
	Resumed         int
	TotalBytes      int64
	PagesVisited    int
	FilesDiscovered int
	ErrorMessage    string
}

// DownloadRecord is a stored download row.
type DownloadRecord struct {
	ID             int64
	SessionID      string
	URL            string
	FilePath       string
	Size           int64
	DurationMillis int64
	Resumed        bool
	Attempts       int
	Success        bool
	ErrorKind      string
	ErrorMessage   string
}

// SaveSession stores a session and its download results.
// Saving the same session ID again updates the stored totals, and a
// re-downloaded URL replaces its earlier row. All rows are written in
// one transaction.
func (hdb *DB) SaveSession(ctx context.Context, session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	seedsJSON, err := json.Marshal(session.Seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	summary := session.Summarize()

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sessionQuery := `
	INSERT INTO sessions (id, started_at, finished_at, seeds, destination,
		requested, succeeded, failed, resumed, total_bytes,
		pages_visited, files_discovered, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		requested = excluded.requested,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		resumed = excluded.resumed,
		total_bytes = excluded.total_bytes,
		pages_visited = excluded.pages_visited,
		files_discovered = excluded.files_discovered,
		error = excluded.error
	`

	_, err = tx.ExecContext(ctx, sessionQuery,
		session.ID,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		session.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(seedsJSON),
		session.Destination,
		summary.Requested,
		summary.Succeeded,
		summary.Failed,
		summary.Resumed,
		summary.TotalBytes,
		session.CrawlStats.PagesVisited,
		session.CrawlStats.FilesDiscovered,
		session.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	downloadQuery := `
	INSERT INTO downloads (session_id, url, file_path, size, duration_ms,
		resumed, attempts, success, error_kind, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, url) DO UPDATE SET
		file_path = excluded.file_path,
		size = excluded.size,
		duration_ms = excluded.duration_ms,
		resumed = excluded.resumed,
		attempts = excluded.attempts,
		success = excluded.success,
		error_kind = excluded.error_kind,
		error = excluded.error
	`

	for i := range session.Results {
		result := &session.Results[i]
		_, err = tx.ExecContext(ctx, downloadQuery,
			session.ID,
			result.URL,
			result.FilePath,
			result.Size,
			result.DurationMillis,
			result.Resumed,
			result.Attempts,
			result.Success,
			result.ErrorKind.String(),
			result.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to save download record for %s: %w", result.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// sessionColumns is the column list every session query selects, in the
// order scanSession expects.
const sessionColumns = `id, started_at, finished_at, seeds, destination,
	requested, succeeded, failed, resumed, total_bytes,
	pages_visited, files_discovered, error`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession reads one session row into a SessionRecord.
func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var startedAt, finishedAt, seedsJSON string

	err := row.Scan(
		&rec.ID,
		&startedAt,
		&finishedAt,
		&seedsJSON,
		&rec.Destination,
		&rec.Requested,
		&rec.Succeeded,
		&rec.Failed,
		&rec.Resumed,
		&rec.TotalBytes,
		&rec.PagesVisited,
		&rec.FilesDiscovered,
		&rec.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	rec.StartedAt = parseTimestamp(startedAt)
	rec.FinishedAt = parseTimestamp(finishedAt)

	if seedsJSON != "" {
		if err := json.Unmarshal([]byte(seedsJSON), &rec.Seeds); err != nil {
			return nil, fmt.Errorf("failed to deserialize seeds: %w", err)
		}
	}

	return &rec, nil
}

// GetSession retrieves a stored session by ID.
// Returns nil without error if the session is not found.
func (hdb *DB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	rec, err := scanSession(hdb.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return rec, nil
}

// ListSessions retrieves stored sessions, newest first.
// A limit of zero or less returns all sessions.
func (hdb *DB) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return records, nil
}

// ListDownloads retrieves the download rows of a session in the order
// the transfers were recorded.
func (hdb *DB) ListDownloads(ctx context.Context, sessionID string) ([]DownloadRecord, error) {
	query := `
	SELECT id, session_id, url, file_path, size, duration_ms,
		resumed, attempts, success, error_kind, error
	FROM downloads
	WHERE session_id = ?
	ORDER BY id
	`

	rows, err := hdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		var rec DownloadRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.URL,
			&rec.FilePath,
			&rec.Size,
			&rec.DurationMillis,
			&rec.Resumed,
			&rec.Attempts,
			&rec.Success,
			&rec.ErrorKind,
			&rec.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate downloads: %w", err)
	}

	return records, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // How SaveSession writes timestamps
	time.RFC3339,              // Without fractional seconds
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
