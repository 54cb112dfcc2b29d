package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webcrawler/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "webcrawler.db"

// ReportDB provides SQLite-based storage for crawl reports.
type ReportDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ReportDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ReportDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ReportDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

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

	// mode=rw refuses to create a missing file.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ReportDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *ReportDB) Close() error {
	return rdb.db.Close()
}

// Path returns the path of the database file.
func (rdb *ReportDB) Path() string {
	return rdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ReportDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		downloaded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		interrupted INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reports_root ON crawl_reports(root_url);
	CREATE INDEX IF NOT EXISTS idx_reports_started ON crawl_reports(started_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport archives report and returns its ID.
func (rdb *ReportDB) SaveReport(ctx context.Context, report *model.CrawlReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO crawl_reports (root_url, started_at, finished_at, max_depth, downloaded, failed, interrupted, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := rdb.db.ExecContext(ctx, query,
		report.RootURL,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.MaxDepth,
		len(report.Downloaded),
		len(report.Failures),
		report.Interrupted,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save crawl report: %w", err)
	}

	return result.LastInsertId()
}

// LatestReport retrieves the most recent report for rootURL.
// It returns nil without an error when none is archived.
func (rdb *ReportDB) LatestReport(ctx context.Context, rootURL string) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE root_url = ?
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`

	return rdb.queryReport(ctx, query, rootURL)
}

// ReportByID retrieves a report by its database ID.
// It returns nil without an error when no such report exists.
func (rdb *ReportDB) ReportByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE id = ?
	`

	return rdb.queryReport(ctx, query, id)
}

func (rdb *ReportDB) queryReport(ctx context.Context, query string, args ...any) (*model.CrawlReport, error) {
	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListRoots returns every root URL with at least one archived report.
func (rdb *ReportDB) ListRoots(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT root_url FROM crawl_reports
	ORDER BY root_url
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list root URLs: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root URL: %w", err)
		}
		roots = append(roots, root)
	}

	return roots, rows.Err()
}

// ReportHistory retrieves all reports for rootURL, newest first.
func (rdb *ReportDB) ReportHistory(ctx context.Context, rootURL string) ([]*model.CrawlReport, error) {
	query := `
	SELECT report_json FROM crawl_reports
	WHERE root_url = ?
	ORDER BY started_at DESC, id DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get report history: %w", err)
	}
	defer rows.Close()

	var reports []*model.CrawlReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.CrawlReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// ReportMetadata contains summary information about an archived report.
// This is used for displaying history without loading the full report.
type ReportMetadata struct {
	// ID is the unique identifier of the report in the database.
	ID int64

	// RootURL is the URL the crawl started from.
	RootURL string

	// StartedAt is when the crawl started.
	StartedAt time.Time

	// Duration is the wall-clock time of the crawl.
	Duration time.Duration

	// MaxDepth is the depth limit of the crawl.
	MaxDepth int

	// Downloaded and Failed count the report's URLs.
	Downloaded int
	Failed     int

	// Interrupted is true when the crawl did not finish.
	Interrupted bool

	// SavedAt is when the report was archived.
	SavedAt time.Time
}

// ReportHistoryWithMetadata retrieves report metadata for rootURL, newest
// first. This is cheaper than ReportHistory when only metadata is needed.
func (rdb *ReportDB) ReportHistoryWithMetadata(ctx context.Context, rootURL string) ([]ReportMetadata, error) {
	query := `
	SELECT id, root_url, started_at, finished_at, max_depth, downloaded, failed, interrupted, saved_at
	FROM crawl_reports
	WHERE root_url = ?
	ORDER BY started_at DESC, id DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get report history: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var meta ReportMetadata
		var started, finished, savedAt string

		if err := rows.Scan(
			&meta.ID,
			&meta.RootURL,
			&started,
			&finished,
			&meta.MaxDepth,
			&meta.Downloaded,
			&meta.Failed,
			&meta.Interrupted,
			&savedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.StartedAt = parseTimestamp(started)
		meta.Duration = parseTimestamp(finished).Sub(meta.StartedAt)
		meta.SavedAt = parseTimestamp(savedAt)

		results = append(results, meta)
	}

	return results, rows.Err()
}

// DeleteReportsBefore removes reports of crawls started before t and
// returns the number of rows removed.
func (rdb *ReportDB) DeleteReportsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := rdb.db.ExecContext(ctx,
		`DELETE FROM crawl_reports WHERE started_at < ?`,
		formatTimestamp(t),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	return result.RowsAffected()
}

// storedTimestampFormat sorts lexically in time order.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimestampFormat,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
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
