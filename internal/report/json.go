package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/webcrawler/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indentPrefix and indentString are passed to json.MarshalIndent when
	// indent is set.
	indent       bool
	indentPrefix string
	indentString string

	// version is recorded in every document written.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the program version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the document written for a single crawl.
type JSONReport struct {
	// Version is the webcrawler version that generated this report.
	Version string `json:"version,omitempty"`

	// Report is the crawl report.
	Report *model.CrawlReport `json:"report"`

	// DurationMS is the crawl's wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Hosts summarizes the report per host.
	Hosts []model.HostSummary `json:"hosts"`
}

// JSONBatch is the document written for a multi-root crawl.
type JSONBatch struct {
	Version string        `json:"version,omitempty"`
	Reports []*JSONReport `json:"reports"`
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(w.newJSONReport(report))
}

// WriteBatch outputs all reports as one JSON document.
func (w *JSONWriter) WriteBatch(reports []*model.CrawlReport) (int, error) {
	batch := &JSONBatch{
		Version: w.version,
		Reports: make([]*JSONReport, 0, len(reports)),
	}
	for _, r := range reports {
		jr := w.newJSONReport(r)
		jr.Version = ""
		batch.Reports = append(batch.Reports, jr)
	}
	return w.writeJSON(batch)
}

func (w *JSONWriter) newJSONReport(report *model.CrawlReport) *JSONReport {
	return &JSONReport{
		Version:    w.version,
		Report:     report,
		DurationMS: report.Duration().Milliseconds(),
		Hosts:      report.Hosts(),
	}
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
