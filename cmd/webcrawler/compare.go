package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/webcrawler/internal/config"
	"github.com/nao1215/webcrawler/internal/database"
	"github.com/nao1215/webcrawler/internal/model"
)

const dateLayout = "2006-01-02"

// NewCompareCmd creates the compare command.
// This command compares crawl reports stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [url]",
		Short: "Compare crawl results with historical data",
		Long: `Compare displays differences between the latest and an earlier crawl of
the same root URL.

This command retrieves archived crawl reports from the database and shows:
- Pages that were downloaded only in the latest crawl
- Pages that are no longer reachable
- New and resolved failures

Use 'webcrawler crawl' to crawl a site and archive the result.

Examples:
  # Compare the latest two crawls of a site
  webcrawler compare https://example.com/

  # List the crawl history of a site
  webcrawler compare --list https://example.com/

  # Compare with a specific archived crawl by ID
  webcrawler compare --with-report-id 5 https://example.com/

  # Compare with the first crawl since a date
  webcrawler compare --since 2026-01-01 https://example.com/

  # List every root URL in the database
  webcrawler compare --list-roots

  # Delete reports of crawls started before a date
  webcrawler compare --prune-before 2026-01-01`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History flags
	cmd.Flags().BoolP("list", "l", false,
		"List crawl history for the specified root URL")
	cmd.Flags().BoolP("list-roots", "L", false,
		"List all root URLs in the database")
	cmd.Flags().String("prune-before", "",
		"Delete reports of crawls started before this date (format: YYYY-MM-DD)")

	// Comparison target flags
	cmd.Flags().Int64P("with-report-id", "i", 0,
		"Compare with a specific report by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first crawl at or after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")
	_ = cmd.Flags().MarkHidden("db-dir") //nolint:errcheck

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	out := cmd.OutOrStdout()

	listRoots, err := flags.GetBool("list-roots")
	if err != nil {
		return err
	}
	pruneBefore, err := flags.GetString("prune-before")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var cutoff time.Time
	if pruneBefore != "" {
		cutoff, err = time.Parse(dateLayout, pruneBefore)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
	}
	if !listRoots && pruneBefore == "" && len(args) == 0 {
		return errors.New("root URL is required (use --list-roots to see available roots)")
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	switch {
	case pruneBefore != "":
		return pruneReports(ctx, db, cutoff, out)
	case listRoots:
		return listCrawledRoots(ctx, db, out)
	}

	rootURL := args[0]

	listHistory, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listReportHistory(ctx, db, rootURL, out)
	}

	withReportID, err := flags.GetInt64("with-report-id")
	if err != nil {
		return err
	}
	sinceDate, err := flags.GetString("since")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	comparison, err := compareWith(ctx, db, rootURL, withReportID, sinceDate)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return outputComparisonJSON(out, comparison)
	case markdownOutput:
		return outputComparisonMarkdown(out, comparison)
	default:
		return outputComparisonText(out, comparison)
	}
}

// pruneReports deletes the reports of crawls started before cutoff.
func pruneReports(ctx context.Context, db *database.ReportDB, cutoff time.Time, out io.Writer) error {
	n, err := db.DeleteReportsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete reports: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d report(s) of crawls started before %s.\n", n, cutoff.Format(dateLayout))
	return nil
}

// listCrawledRoots lists every root URL that has reports in the database.
func listCrawledRoots(ctx context.Context, db *database.ReportDB, out io.Writer) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list roots: %w", err)
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No crawled roots found in the database.")
		fmt.Fprintln(out, "\nUse 'webcrawler crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled roots (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'webcrawler compare --list <url>' to see the crawl history of a root.")
	return nil
}

// listReportHistory lists every archived crawl of rootURL.
func listReportHistory(ctx context.Context, db *database.ReportDB, rootURL string, out io.Writer) error {
	history, err := db.ReportHistoryWithMetadata(ctx, rootURL)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", rootURL)
		fmt.Fprintln(out, "\nUse 'webcrawler crawl' to crawl this site.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d crawls):\n\n", rootURL, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-5s  %-10s  %-6s  %-10s  %s\n",
		"ID", "Date", "Depth", "Downloaded", "Failed", "Duration", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))

	for _, meta := range history {
		status := "complete"
		if meta.Interrupted {
			status = "interrupted"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-5d  %-10d  %-6d  %-10s  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			meta.MaxDepth,
			meta.Downloaded,
			meta.Failed,
			meta.Duration.Round(time.Millisecond).String(),
			status,
		)
	}

	fmt.Fprintln(out, "\nUse 'webcrawler compare <url>' to compare the latest two crawls.")
	fmt.Fprintln(out, "Use 'webcrawler compare --with-report-id <id> <url>' to compare with a specific crawl.")
	return nil
}

// compareWith compares the latest report of rootURL with the one selected
// by withReportID or sinceDate, or with the one before it.
func compareWith(ctx context.Context, db *database.ReportDB, rootURL string, withReportID int64, sinceDate string) (*model.Comparison, error) {
	reports, err := db.ReportHistory(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no crawl history found for %s", rootURL)
	}
	if len(reports) < 2 && withReportID == 0 && sinceDate == "" {
		return nil, fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(reports))
	}

	// History is newest first.
	current := reports[0]
	var previous *model.CrawlReport

	switch {
	case withReportID > 0:
		previous, err = db.ReportByID(ctx, withReportID)
		if err != nil {
			return nil, fmt.Errorf("failed to get report with ID %d: %w", withReportID, err)
		}
		if previous == nil {
			return nil, fmt.Errorf("report with ID %d not found", withReportID)
		}
		if previous.RootURL != rootURL {
			return nil, fmt.Errorf("report ID %d belongs to %s, not %s", withReportID, previous.RootURL, rootURL)
		}
	case sinceDate != "":
		since, err := time.Parse(dateLayout, sinceDate)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// Walk from the oldest to find the first crawl at or after since.
		for i := len(reports) - 1; i >= 0; i-- {
			if !reports[i].StartedAt.Before(since) {
				previous = reports[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("no crawls found since %s", sinceDate)
		}
		if previous == current {
			return nil, fmt.Errorf("only one crawl found since %s; at least 2 crawls are required for comparison", sinceDate)
		}
	default:
		previous = reports[1]
	}

	return model.Compare(previous, current), nil
}

// outputComparisonJSON writes the comparison as indented JSON.
func outputComparisonJSON(out io.Writer, c *model.Comparison) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// outputComparisonMarkdown writes the comparison as a Markdown document.
func outputComparisonMarkdown(out io.Writer, c *model.Comparison) error {
	md := markdown.NewMarkdown(out)
	md.H1("Crawl Comparison: " + c.RootURL)
	md.PlainText("")
	md.PlainTextf("**Trend:** %s", formatTrend(c.Trend))
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Date", c.Previous.StartedAt.Format("2006-01-02 15:04"), c.Current.StartedAt.Format("2006-01-02 15:04"), "-"},
			{"Downloaded", strconv.Itoa(c.Previous.Downloaded), strconv.Itoa(c.Current.Downloaded), formatDelta(c.Current.Downloaded - c.Previous.Downloaded)},
			{"Failed", strconv.Itoa(c.Previous.Failed), strconv.Itoa(c.Current.Failed), formatDelta(c.Current.Failed - c.Previous.Failed)},
		},
	})
	md.PlainText("")

	if len(c.NewPages) > 0 {
		md.H2(fmt.Sprintf("New Pages (%d)", len(c.NewPages)))
		md.BulletList(c.NewPages...)
		md.PlainText("")
	}
	if len(c.MissingPages) > 0 {
		md.H2(fmt.Sprintf("Missing Pages (%d)", len(c.MissingPages)))
		md.BulletList(c.MissingPages...)
		md.PlainText("")
	}
	if len(c.ChangedPages) > 0 {
		md.H2(fmt.Sprintf("Changed Pages (%d)", len(c.ChangedPages)))
		md.BulletList(c.ChangedPages...)
		md.PlainText("")
	}
	if len(c.NewFailures) > 0 {
		md.H2(fmt.Sprintf("New Failures (%d)", len(c.NewFailures)))
		md.BulletList(failureLines(c.NewFailures)...)
		md.PlainText("")
	}
	if len(c.ResolvedFailures) > 0 {
		md.H2(fmt.Sprintf("Resolved Failures (%d)", len(c.ResolvedFailures)))
		md.BulletList(failureLines(c.ResolvedFailures)...)
		md.PlainText("")
	}
	if !c.HasChanges() {
		md.PlainText("*No pages or failures changed.*")
	}

	return md.Build()
}

// outputComparisonText writes the comparison in human-readable form.
func outputComparisonText(out io.Writer, c *model.Comparison) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Crawl Comparison: %s\n", c.RootURL)
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "\nTrend: %s\n", formatTrend(c.Trend))

	fmt.Fprintf(&sb, "\nPrevious crawl: %s\n", c.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Current crawl:  %s\n", c.Current.StartedAt.Local().Format("2006-01-02 15:04:05"))

	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "  %-12s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 47) + "\n")
	fmt.Fprintf(&sb, "  %-12s  %-10d  %-10d  %-10s\n", "Downloaded",
		c.Previous.Downloaded, c.Current.Downloaded, formatDelta(c.Current.Downloaded-c.Previous.Downloaded))
	fmt.Fprintf(&sb, "  %-12s  %-10d  %-10d  %-10s\n", "Failed",
		c.Previous.Failed, c.Current.Failed, formatDelta(c.Current.Failed-c.Previous.Failed))

	writeList := func(title, marker string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n%s (%d):\n", title, len(items))
		for _, item := range items {
			fmt.Fprintf(&sb, "  [%s] %s\n", marker, item)
		}
	}
	writeList("New Pages", "+", c.NewPages)
	writeList("Missing Pages", "-", c.MissingPages)
	writeList("Changed Pages", "~", c.ChangedPages)
	writeList("New Failures", "+", failureLines(c.NewFailures))
	writeList("Resolved Failures", "-", failureLines(c.ResolvedFailures))

	if !c.HasChanges() {
		sb.WriteString("\nNo pages or failures changed.\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func failureLines(failures []model.Failure) []string {
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = fmt.Sprintf("%s (%s: %s)", f.URL, f.Kind, f.Message)
	}
	return lines
}

// formatTrend formats the comparison trend for display.
func formatTrend(trend string) string {
	switch trend {
	case model.TrendImproved:
		return "IMPROVED (fewer failures)"
	case model.TrendWorsened:
		return "WORSENED (more failures)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
