package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/model"
)

const compareRoot = "https://example.com/"

// seedReports archives reports in a fresh database directory and returns
// the directory together with the assigned IDs.
func seedReports(t *testing.T, reports ...*model.CrawlReport) (string, []int64) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ids := make([]int64, 0, len(reports))
	for _, r := range reports {
		id, err := db.SaveReport(t.Context(), r)
		if err != nil {
			t.Fatalf("SaveReport() error = %v", err)
		}
		ids = append(ids, id)
	}
	return dir, ids
}

func crawlReport(root string, startedAt time.Time, downloaded []string, failures ...model.Failure) *model.CrawlReport {
	digests := make(map[string]string, len(downloaded))
	for _, u := range downloaded {
		digests[u] = "v1:" + u
	}
	return &model.CrawlReport{
		RootURL:    root,
		MaxDepth:   3,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
		Downloaded: downloaded,
		Digests:    digests,
		Failures:   failures,
	}
}

func runCompare(t *testing.T, dbDir string, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"compare", "--db-dir", dbDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func historyFixture(t *testing.T) (string, []int64) {
	t.Helper()

	first := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	latest := crawlReport(compareRoot, first.Add(48*time.Hour),
		[]string{compareRoot, compareRoot + "fixed", compareRoot + "new"},
		model.Failure{URL: compareRoot + "broken", Kind: model.FailureTransport, Status: 404, Message: "status 404"},
	)
	latest.Digests[compareRoot] = "v2:" + compareRoot
	return seedReports(t,
		crawlReport(compareRoot, first,
			[]string{compareRoot, compareRoot + "old"},
			model.Failure{URL: compareRoot + "fixed", Kind: model.FailureTransport, Status: 500, Message: "status 500"},
		),
		crawlReport(compareRoot, first.Add(24*time.Hour),
			[]string{compareRoot, compareRoot + "old", compareRoot + "fixed"},
		),
		latest,
		crawlReport("https://example.org/", first, []string{"https://example.org/"}),
	)
}

func TestNewCompareCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCompareCmd()
	for _, name := range []string{"list", "list-roots", "prune-before", "with-report-id", "since", "json", "markdown", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if flag := cmd.Flags().Lookup("db-dir"); flag != nil && !flag.Hidden {
		t.Error("expected db-dir to be hidden")
	}
}

func TestRunCompareCmd(t *testing.T) {
	t.Parallel()

	t.Run("requires a root URL", func(t *testing.T) {
		t.Parallel()
		_, err := runCompare(t, t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "root URL is required") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("compares the latest two crawls", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"Crawl Comparison: " + compareRoot,
			"WORSENED",
			"[+] " + compareRoot + "new",
			"[-] " + compareRoot + "old",
			"[~] " + compareRoot,
			"[+] " + compareRoot + "broken",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, "--json", compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c model.Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if c.Trend != model.TrendWorsened {
			t.Errorf("Trend = %q, want %q", c.Trend, model.TrendWorsened)
		}
		if len(c.NewPages) != 1 || c.NewPages[0] != compareRoot+"new" {
			t.Errorf("NewPages = %v", c.NewPages)
		}
		if len(c.ChangedPages) != 1 || c.ChangedPages[0] != compareRoot {
			t.Errorf("ChangedPages = %v", c.ChangedPages)
		}
	})

	t.Run("markdown output", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, "--markdown", compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"# Crawl Comparison", "## New Pages (1)", "## Changed Pages (1)", "## New Failures (1)"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("json and markdown conflict", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		if _, err := runCompare(t, dir, "--json", "--markdown", compareRoot); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("with report id", func(t *testing.T) {
		t.Parallel()
		dir, ids := historyFixture(t)

		out, err := runCompare(t, dir, "--json", "--with-report-id", itoa(ids[0]), compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c model.Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(c.ResolvedFailures) != 1 || c.ResolvedFailures[0].URL != compareRoot+"fixed" {
			t.Errorf("ResolvedFailures = %+v", c.ResolvedFailures)
		}
		if c.Trend != model.TrendUnchanged {
			t.Errorf("Trend = %q, want %q", c.Trend, model.TrendUnchanged)
		}
	})

	t.Run("report id of another root", func(t *testing.T) {
		t.Parallel()
		dir, ids := historyFixture(t)

		_, err := runCompare(t, dir, "--with-report-id", itoa(ids[3]), compareRoot)
		if err == nil || !strings.Contains(err.Error(), "belongs to") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("unknown report id", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		_, err := runCompare(t, dir, "--with-report-id", "999", compareRoot)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("since date", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, "--json", "--since", "2026-01-11", compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c model.Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if want := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC); !c.Previous.StartedAt.Equal(want) {
			t.Errorf("Previous.StartedAt = %v, want %v", c.Previous.StartedAt, want)
		}
	})

	t.Run("since date with a single crawl", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		_, err := runCompare(t, dir, "--since", "2026-01-12", compareRoot)
		if err == nil || !strings.Contains(err.Error(), "only one crawl") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("invalid since date", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		if _, err := runCompare(t, dir, "--since", "yesterday", compareRoot); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("needs two crawls", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		_, err := runCompare(t, dir, "https://example.org/")
		if err == nil || !strings.Contains(err.Error(), "at least 2 crawls") {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("unknown root", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		_, err := runCompare(t, dir, "https://unknown.example/")
		if err == nil || !strings.Contains(err.Error(), "no crawl history") {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestCompareHistory(t *testing.T) {
	t.Parallel()

	t.Run("list roots", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, "--list-roots")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Crawled roots (2)") || !strings.Contains(out, "https://example.org/") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("list roots of an empty database", func(t *testing.T) {
		t.Parallel()

		out, err := runCompare(t, t.TempDir(), "--list-roots")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No crawled roots") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("list history", func(t *testing.T) {
		t.Parallel()
		dir, ids := historyFixture(t)

		out, err := runCompare(t, dir, "--list", compareRoot)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "(3 crawls)") {
			t.Errorf("unexpected output:\n%s", out)
		}
		// Newest first.
		newest := strings.Index(out, "\n  "+itoa(ids[2])+" ")
		oldest := strings.Index(out, "\n  "+itoa(ids[0])+" ")
		if newest < 0 || oldest < 0 || newest > oldest {
			t.Errorf("expected newest crawl first:\n%s", out)
		}
	})

	t.Run("prune before", func(t *testing.T) {
		t.Parallel()
		dir, _ := historyFixture(t)

		out, err := runCompare(t, dir, "--prune-before", "2026-01-11")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Deleted 2 report(s)") {
			t.Errorf("unexpected output:\n%s", out)
		}

		out, err = runCompare(t, dir, "--list-roots")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(out, "https://example.org/") {
			t.Errorf("expected example.org to be pruned:\n%s", out)
		}
	})

	t.Run("invalid prune date", func(t *testing.T) {
		t.Parallel()

		if _, err := runCompare(t, t.TempDir(), "--prune-before", "01/11/2026"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{3, "+3"},
		{0, "0"},
		{-2, "-2"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
