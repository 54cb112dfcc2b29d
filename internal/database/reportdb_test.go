package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webcrawler/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *ReportDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// newReport builds a report for root started at the given time.
func newReport(root string, started time.Time, downloaded []string, failed ...string) *model.CrawlReport {
	r := &model.CrawlReport{
		RootURL:    root,
		MaxDepth:   2,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Downloaded: downloaded,
	}
	for _, u := range failed {
		r.Failures = append(r.Failures, model.Failure{URL: u, Kind: model.FailureTransport, Message: "timeout"})
	}
	return r
}

var (
	day1 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
	day3 = day2.Add(24 * time.Hour)
)

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

		dbPath := filepath.Join(dbDir, FileName)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")

		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected informative error, got %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := t.Context()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if _, err := db1.SaveReport(ctx, newReport("http://a.test/", day1, []string{"http://a.test/"})); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database with CreateIfNotExists=false: %v", err)
		}
		defer db2.Close()

		got, err := db2.LatestReport(ctx, "http://a.test/")
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if got == nil {
			t.Error("expected report to persist")
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		t.Parallel()

		db, err := Open(t.TempDir(), Options{CreateIfNotExists: true})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		_ = db.Close()
	})
}

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

func TestSaveAndLatestReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	t.Run("returns nil for unknown root", func(t *testing.T) {
		got, err := db.LatestReport(ctx, "http://unknown.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	older := newReport("http://a.test/", day1, []string{"http://a.test/"}, "http://a.test/x")
	newer := newReport("http://a.test/", day2, []string{"http://a.test/", "http://a.test/x"})
	newer.Interrupted = true
	newer.Digests = map[string]string{"http://a.test/": "abc123"}

	// Saved out of order: latest is decided by start time.
	if _, err := db.SaveReport(ctx, newer); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if _, err := db.SaveReport(ctx, older); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := db.LatestReport(ctx, "http://a.test/")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if got == nil {
		t.Fatal("expected a report")
	}
	if !got.StartedAt.Equal(day2) || len(got.Downloaded) != 2 || !got.Interrupted {
		t.Errorf("LatestReport = %+v", got)
	}
	if got.Digests["http://a.test/"] != "abc123" {
		t.Errorf("Digests = %v, want archived with the report", got.Digests)
	}
}

func TestReportByID(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	report := newReport("http://a.test/", day1, []string{"http://a.test/"}, "http://a.test/broken")
	id, err := db.SaveReport(ctx, report)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := db.ReportByID(ctx, id)
	if err != nil {
		t.Fatalf("ReportByID: %v", err)
	}
	if got == nil || got.RootURL != report.RootURL {
		t.Fatalf("ReportByID = %+v", got)
	}
	if len(got.Failures) != 1 || got.Failures[0].URL != "http://a.test/broken" || got.Failures[0].Kind != model.FailureTransport {
		t.Errorf("Failures = %+v", got.Failures)
	}

	missing, err := db.ReportByID(ctx, id+100)
	if err != nil {
		t.Fatalf("ReportByID(missing): %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown ID")
	}
}

func TestListRoots(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	roots, err := db.ListRoots(ctx)
	if err != nil {
		t.Fatalf("ListRoots: %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("expected no roots, got %v", roots)
	}

	for _, r := range []*model.CrawlReport{
		newReport("http://b.test/", day1, nil),
		newReport("http://a.test/", day1, nil),
		newReport("http://b.test/", day2, nil),
	} {
		if _, err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	roots, err = db.ListRoots(ctx)
	if err != nil {
		t.Fatalf("ListRoots: %v", err)
	}
	if len(roots) != 2 || roots[0] != "http://a.test/" || roots[1] != "http://b.test/" {
		t.Errorf("ListRoots = %v", roots)
	}
}

func TestReportHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	for _, r := range []*model.CrawlReport{
		newReport("http://a.test/", day2, []string{"2"}),
		newReport("http://a.test/", day1, []string{"1"}),
		newReport("http://a.test/", day3, []string{"3"}),
		newReport("http://other.test/", day3, []string{"other"}),
	} {
		if _, err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	history, err := db.ReportHistory(ctx, "http://a.test/")
	if err != nil {
		t.Fatalf("ReportHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(history))
	}
	for i, want := range []string{"3", "2", "1"} {
		if history[i].Downloaded[0] != want {
			t.Errorf("history[%d] = %v, want newest first", i, history[i].Downloaded)
		}
	}
}

func TestReportHistoryWithMetadata(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	first := newReport("http://a.test/", day1, []string{"http://a.test/", "http://a.test/1"}, "http://a.test/x")
	second := newReport("http://a.test/", day2, []string{"http://a.test/"})
	second.Interrupted = true

	firstID, err := db.SaveReport(ctx, first)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	secondID, err := db.SaveReport(ctx, second)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	metas, err := db.ReportHistoryWithMetadata(ctx, "http://a.test/")
	if err != nil {
		t.Fatalf("ReportHistoryWithMetadata: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(metas))
	}

	latest, oldest := metas[0], metas[1]
	if latest.ID != secondID || oldest.ID != firstID {
		t.Errorf("IDs = %d, %d; want %d, %d", latest.ID, oldest.ID, secondID, firstID)
	}
	if !latest.Interrupted || oldest.Interrupted {
		t.Error("interrupted flag not preserved")
	}
	if oldest.Downloaded != 2 || oldest.Failed != 1 || oldest.MaxDepth != 2 {
		t.Errorf("oldest = %+v", oldest)
	}
	if !oldest.StartedAt.Equal(day1) {
		t.Errorf("StartedAt = %v, want %v", oldest.StartedAt, day1)
	}
	if oldest.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", oldest.Duration)
	}
	if oldest.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}
}

func TestDeleteReportsBefore(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	for _, started := range []time.Time{day1, day2, day3} {
		if _, err := db.SaveReport(ctx, newReport("http://a.test/", started, nil)); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}

	n, err := db.DeleteReportsBefore(ctx, day3)
	if err != nil {
		t.Fatalf("DeleteReportsBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	history, err := db.ReportHistory(ctx, "http://a.test/")
	if err != nil {
		t.Fatalf("ReportHistory: %v", err)
	}
	if len(history) != 1 || !history[0].StartedAt.Equal(day3) {
		t.Errorf("remaining = %+v", history)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2025-04-01T09:00:00.000000000Z", day1},
		{"2025-04-01 09:00:00", day1},
		{"2025-04-01T09:00:00Z", day1},
		{"not a time", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
