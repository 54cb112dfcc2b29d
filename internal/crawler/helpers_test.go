package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWeb is an in-memory link graph usable as both Fetcher and
// LinkExtractor. A page's body is its outlinks, one per line.
type fakeWeb struct {
	mu           sync.Mutex
	pages        map[string][]string
	fetchErrs    map[string]error
	extractErrs  map[string]error
	delays       map[string]time.Duration
	fetchCalls   map[string]int
	extractCalls map[string]int

	// hooks run inside Fetch before the page is returned.
	hooks map[string]func(ctx context.Context) error
}

func newFakeWeb(pages map[string][]string) *fakeWeb {
	return &fakeWeb{
		pages:        pages,
		fetchErrs:    make(map[string]error),
		extractErrs:  make(map[string]error),
		delays:       make(map[string]time.Duration),
		fetchCalls:   make(map[string]int),
		extractCalls: make(map[string]int),
		hooks:        make(map[string]func(ctx context.Context) error),
	}
}

func (w *fakeWeb) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	w.mu.Lock()
	w.fetchCalls[rawURL]++
	delay := w.delays[rawURL]
	hook := w.hooks[rawURL]
	fetchErr := w.fetchErrs[rawURL]
	links, ok := w.pages[rawURL]
	w.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &Document{
		URL:        rawURL,
		StatusCode: 200,
		Body:       []byte(strings.Join(links, "\n")),
		Digest:     "digest:" + rawURL,
		FetchedAt:  time.Now(),
	}, nil
}

func (w *fakeWeb) Extract(_ context.Context, doc *Document) ([]string, error) {
	w.mu.Lock()
	w.extractCalls[doc.URL]++
	err := w.extractErrs[doc.URL]
	w.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(doc.Body) == 0 {
		return nil, nil
	}
	return strings.Split(string(doc.Body), "\n"), nil
}

func (w *fakeWeb) fetches(rawURL string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fetchCalls[rawURL]
}

func (w *fakeWeb) extractions(rawURL string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extractCalls[rawURL]
}

func newTestCrawler(t *testing.T, web *fakeWeb, opts ...Option) *Crawler {
	t.Helper()

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c, err := New(web, web, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
