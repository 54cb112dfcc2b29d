package report

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/webcrawler/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports.
// Counts are grouped by thousands for readability.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose lists every downloaded URL.
	verbose bool

	printer *message.Printer
	title   cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
		title:      cases.Title(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, report)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch outputs every report followed by the totals of the batch.
func (w *SimpleWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	var sb strings.Builder
	for _, r := range reports {
		w.writeReport(&sb, r)
	}
	w.writeTotals(&sb, reports)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, report *model.CrawlReport) {
	w.writeHeader(sb, report)
	w.writeHosts(sb, report)
	w.writeFailures(sb, report)
	if w.verbose {
		w.writeDownloaded(sb, report)
	}
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                          WEBCRAWLER REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	sb.WriteString(w.printer.Sprintf("Root URL:    %s\n", report.RootURL))
	sb.WriteString(w.printer.Sprintf("Max Depth:   %d\n", report.MaxDepth))
	sb.WriteString(w.printer.Sprintf("Started:     %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(w.printer.Sprintf("Duration:    %s\n", report.Duration().Round(time.Millisecond).String()))
	sb.WriteString(w.printer.Sprintf("Downloaded:  %d\n", len(report.Downloaded)))
	sb.WriteString(w.printer.Sprintf("Failed:      %d\n", len(report.Failures)))
	sb.WriteString(w.printer.Sprintf("Status:      %s\n", statusText(report)))
	sb.WriteString("\n")
}

// writeHosts writes the per-host breakdown.
func (w *SimpleWriter) writeHosts(sb *strings.Builder, report *model.CrawlReport) {
	hosts := report.Hosts()
	if len(hosts) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "HOSTS")
	if len(hosts) == 0 {
		sb.WriteString("  No hosts visited\n\n")
		return
	}
	sb.WriteString(w.printer.Sprintf("  %-40s %10s %8s\n", "Host", "Downloaded", "Failed"))
	for _, h := range hosts {
		sb.WriteString(w.printer.Sprintf("  %-40s %10d %8d\n", truncateString(h.Host, 40), h.Downloaded, h.Failed))
	}
	sb.WriteString("\n")
}

// writeFailures writes failures grouped by kind.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Failures) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "FAILURES")
	if len(report.Failures) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}

	for _, kind := range []model.FailureKind{model.FailureTransport, model.FailureExtraction, model.FailureOther} {
		n := report.FailureCount(kind)
		if n == 0 {
			continue
		}
		sb.WriteString(w.printer.Sprintf("[%s] %d\n", w.title.String(string(kind)), n))
		for _, f := range report.Failures {
			if f.Kind != kind {
				continue
			}
			sb.WriteString(w.printer.Sprintf("  * %s\n", f.URL))
			sb.WriteString(w.printer.Sprintf("    %s\n", f.Message))
		}
		sb.WriteString("\n")
	}
}

// writeDownloaded lists the downloaded URLs in crawl order.
func (w *SimpleWriter) writeDownloaded(sb *strings.Builder, report *model.CrawlReport) {
	writeSection(sb, "DOWNLOADED")
	for i, u := range report.Downloaded {
		sb.WriteString(w.printer.Sprintf("  %4d. %s\n", i+1, u))
	}
	sb.WriteString("\n")
}

// writeTotals writes the sums over a batch of reports.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, reports []*model.CrawlReport) {
	var downloaded, failed, interrupted int
	for _, r := range reports {
		downloaded += len(r.Downloaded)
		failed += len(r.Failures)
		if !r.Succeeded() {
			interrupted++
		}
	}

	writeSection(sb, "TOTAL")
	sb.WriteString(w.printer.Sprintf("  Roots:       %d\n", len(reports)))
	sb.WriteString(w.printer.Sprintf("  Downloaded:  %d\n", downloaded))
	sb.WriteString(w.printer.Sprintf("  Failed:      %d\n", failed))
	sb.WriteString(w.printer.Sprintf("  Incomplete:  %d\n", interrupted))
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webcrawler\n")
	sb.WriteString("https://github.com/nao1215/webcrawler\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}
