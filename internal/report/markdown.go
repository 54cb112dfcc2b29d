package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/webcrawler/internal/model"
)

// maxListedURLs caps the downloaded URL list of a markdown report.
const maxListedURLs = 200

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Report")
	md.PlainText("")
	w.writeReport(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch outputs all reports in one document, one section per root.
func (w *MarkdownWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Report")
	md.PlainText("")
	w.writeTotals(md, reports)
	for _, r := range reports {
		md.H2(r.RootURL)
		md.PlainText("")
		w.writeReport(md, r)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeReport(md *markdown.Markdown, report *model.CrawlReport) {
	w.writeHeader(md, report)
	w.writeAlert(md, report)
	w.writePieChart(md, report)
	w.writeHosts(md, report)
	w.writeFailures(md, report)
	w.writeDownloaded(md, report)
}

// writeHeader writes the crawl information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root URL", "`" + report.RootURL + "`"},
			{"Max Depth", strconv.Itoa(report.MaxDepth)},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Downloaded", strconv.Itoa(len(report.Downloaded))},
			{"Failed", strconv.Itoa(len(report.Failures))},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	switch {
	case report.Error != "":
		return "❌ " + statusText(report)
	case report.Interrupted:
		return "⚠️ " + statusText(report)
	default:
		return "✅ " + statusText(report)
	}
}

// writeAlert writes an alert that matches how the crawl ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Error != "":
		md.Cautionf("The crawl could not be run: %s", report.Error)
	case report.Interrupted:
		md.Warning("The crawl was interrupted. The lists below are partial.")
	case len(report.Failures) > 0:
		md.Importantf("%d URL(s) could not be crawled.", len(report.Failures))
	default:
		md.Tip("Every discovered URL was downloaded.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of downloads against failures.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Downloaded)+len(report.Failures) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Crawl Outcome"),
		piechart.WithShowData(true),
	)

	if n := len(report.Downloaded); n > 0 {
		chart.LabelAndIntValue("Downloaded", uint64(n))
	}
	if n := report.FailureCount(model.FailureTransport); n > 0 {
		chart.LabelAndIntValue("Download failed", uint64(n))
	}
	if n := report.FailureCount(model.FailureExtraction); n > 0 {
		chart.LabelAndIntValue("Extraction failed", uint64(n))
	}
	if n := report.FailureCount(model.FailureOther); n > 0 {
		chart.LabelAndIntValue("Other", uint64(n))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeHosts writes the per-host table.
func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, report *model.CrawlReport) {
	hosts := report.Hosts()
	if len(hosts) == 0 {
		return
	}

	md.H3("Hosts")
	md.PlainText("")

	rows := make([][]string, len(hosts))
	for i, h := range hosts {
		rows[i] = []string{"`" + h.Host + "`", strconv.Itoa(h.Downloaded), strconv.Itoa(h.Failed)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Downloaded", "Failed"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes the failure table.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.CrawlReport) {
	md.H3("Failures")
	md.PlainText("")

	if len(report.Failures) == 0 {
		md.PlainText("No failures.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Failures))
	for i, f := range report.Failures {
		status := "-"
		if f.Status != 0 {
			status = strconv.Itoa(f.Status)
		}
		rows[i] = []string{
			truncateString(f.URL, 80),
			string(f.Kind),
			status,
			truncateString(f.Message, 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Kind", "Status", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDownloaded lists the downloaded URLs inside a collapsible block.
func (w *MarkdownWriter) writeDownloaded(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Downloaded) == 0 {
		return
	}

	urls := report.Downloaded
	summary := "Downloaded URLs (" + strconv.Itoa(len(urls)) + ")"
	if len(urls) > maxListedURLs {
		urls = urls[:maxListedURLs]
		summary += ", first " + strconv.Itoa(maxListedURLs) + " shown"
	}

	items := make([]string, len(urls))
	for i, u := range urls {
		items[i] = "- " + u
	}
	md.Details(summary, strings.Join(items, "\n"))
	md.PlainText("")
}

// writeTotals writes the summary table of a batch.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, reports []*model.CrawlReport) {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			"`" + r.RootURL + "`",
			strconv.Itoa(len(r.Downloaded)),
			strconv.Itoa(len(r.Failures)),
			statusText(r),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Root URL", "Downloaded", "Failed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [webcrawler](https://github.com/nao1215/webcrawler)*")
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
