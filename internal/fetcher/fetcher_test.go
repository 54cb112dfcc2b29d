package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPFetcherFetch(t *testing.T) {
	t.Parallel()

	t.Run("returns the page as a document", func(t *testing.T) {
		t.Parallel()

		gotUA := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA <- r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<a href="/next">next</a>`))
		}))
		defer server.Close()

		f := New(WithClient(server.Client()), WithUserAgent("test-agent"), WithLogger(quietLogger()))
		doc, err := f.Fetch(context.Background(), server.URL+"/start")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		if ua := <-gotUA; ua != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", ua)
		}
		if doc.URL != server.URL+"/start" || doc.FinalURL != "" {
			t.Errorf("URL = %q, FinalURL = %q", doc.URL, doc.FinalURL)
		}
		if doc.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d", doc.StatusCode)
		}
		if string(doc.Body) != `<a href="/next">next</a>` {
			t.Errorf("Body = %q", doc.Body)
		}
		if len(doc.Digest) != 64 {
			t.Errorf("Digest = %q, want 64 hex characters", doc.Digest)
		}
		if doc.FetchedAt.IsZero() {
			t.Error("FetchedAt not set")
		}
	})

	t.Run("non-2xx responses are status errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer server.Close()

		f := New(WithClient(server.Client()), WithLogger(quietLogger()))
		_, err := f.Fetch(context.Background(), server.URL)

		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("error = %v, want *StatusError", err)
		}
		if se.Code != http.StatusNotFound {
			t.Errorf("Code = %d, want 404", se.Code)
		}
		if !strings.Contains(se.Error(), "404 Not Found") {
			t.Errorf("Error() = %q", se.Error())
		}
	})

	t.Run("body is truncated to the limit", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
		}))
		defer server.Close()

		f := New(WithClient(server.Client()), WithMaxBodySize(100), WithLogger(quietLogger()))
		doc, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(doc.Body) != 100 {
			t.Errorf("len(Body) = %d, want 100", len(doc.Body))
		}
	})

	t.Run("declared charset is converted to UTF-8", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("caf\xe9"))
		}))
		defer server.Close()

		f := New(WithClient(server.Client()), WithLogger(quietLogger()))
		doc, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(doc.Body) != "café" {
			t.Errorf("Body = %q, want café", doc.Body)
		}
	})

	t.Run("per-host headers and user agents are applied", func(t *testing.T) {
		t.Parallel()

		got := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got <- r.Header.Clone()
		}))
		defer server.Close()

		f := New(
			WithClient(server.Client()),
			WithHeaders(map[string]string{"X-Token": "default", "X-Team": "crawl"}),
			WithHostHeaders(map[string]map[string]string{"127.0.0.1": {"X-Token": "abc"}}),
			WithHostUserAgents(map[string]string{"127.0.0.1": "local-agent"}),
			WithLogger(quietLogger()),
		)
		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		header := <-got
		if v := header.Get("X-Token"); v != "abc" {
			t.Errorf("X-Token = %q, want abc", v)
		}
		if v := header.Get("X-Team"); v != "crawl" {
			t.Errorf("X-Team = %q, want crawl", v)
		}
		if v := header.Get("User-Agent"); v != "local-agent" {
			t.Errorf("User-Agent = %q, want local-agent", v)
		}
	})

	t.Run("redirect target becomes the final URL", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("moved"))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		f := New(WithClient(server.Client()), WithLogger(quietLogger()))
		doc, err := f.Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if doc.FinalURL != server.URL+"/new/" {
			t.Errorf("FinalURL = %q", doc.FinalURL)
		}
		if doc.BaseURL() != server.URL+"/new/" {
			t.Errorf("BaseURL() = %q", doc.BaseURL())
		}
	})

	t.Run("cancelled context fails the request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		f := New(WithClient(server.Client()), WithLogger(quietLogger()))
		if _, err := f.Fetch(ctx, server.URL); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want context.DeadlineExceeded", err)
		}
	})

	t.Run("invalid URL is rejected", func(t *testing.T) {
		t.Parallel()

		f := New(WithLogger(quietLogger()))
		if _, err := f.Fetch(context.Background(), "http://[::1"); err == nil {
			t.Error("expected error for malformed URL")
		}
	})
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects malformed proxy addresses", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{"localhost", ":9050", "localhost:0", "localhost:70000", "localhost:abc"} {
			if _, err := NewClient(time.Second, addr); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("NewClient(%q) error = %v, want ErrInvalidProxyAddress", addr, err)
			}
		}
	})

	t.Run("builds a proxied client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(5*time.Second, "127.0.0.1:9050")
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		transport, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("Transport = %T", client.Transport)
		}
		if transport.DialContext == nil {
			t.Error("proxied transport has no dialer")
		}
		if client.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v", client.Timeout)
		}
		if client.Jar == nil {
			t.Error("cookie jar not set")
		}
	})

	t.Run("builds a direct client", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(time.Second, "")
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if client.CheckRedirect == nil {
			t.Error("redirect policy not set")
		}
	})
}
