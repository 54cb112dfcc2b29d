package extractor

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/nao1215/webcrawler/internal/crawler"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func htmlDoc(rawURL, body string) *crawler.Document {
	return &crawler.Document{
		URL:         rawURL,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}

func equalLinks(a, b []string) bool {
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

func TestParse(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("http://example.com/dir/page.html")

	t.Run("resolves links in order and ignores the title", func(t *testing.T) {
		t.Parallel()

		links, err := Parse(base, strings.NewReader(`<html><head><title> Test Page </title></head><body>
			<a href="/root">root</a>
			<a href="sibling.html#top">sibling</a>
			<a href="http://other.example/x">other</a>
			<a href="/root">again</a>
		</body></html>`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		want := []string{
			"http://example.com/root",
			"http://example.com/dir/sibling.html",
			"http://other.example/x",
			"http://example.com/root",
		}
		if !equalLinks(links, want) {
			t.Errorf("Links = %v, want %v", links, want)
		}
	})

	t.Run("skips non-navigable links", func(t *testing.T) {
		t.Parallel()

		links, err := Parse(base, strings.NewReader(`
			<a href="javascript:void(0)">js</a>
			<a href="mailto:a@example.com">mail</a>
			<a href="tel:+123">tel</a>
			<a href="data:text/plain,hi">data</a>
			<a href="#">top</a>
			<a href="#section">section</a>
			<a href="ftp://example.com/file">ftp</a>
			<a>no href</a>
			<a href="  ">blank</a>
			<a href="ok">ok</a>`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if !equalLinks(links, []string{"http://example.com/dir/ok"}) {
			t.Errorf("Links = %v", links)
		}
	})

	t.Run("base element changes resolution", func(t *testing.T) {
		t.Parallel()

		links, err := Parse(base, strings.NewReader(`<html><head><base href="https://cdn.example/assets/"></head>
			<body><a href="img.html">img</a></body></html>`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if !equalLinks(links, []string{"https://cdn.example/assets/img.html"}) {
			t.Errorf("Links = %v", links)
		}
	})
}

func TestHTMLExtractor(t *testing.T) {
	t.Parallel()

	t.Run("uses the final URL as base", func(t *testing.T) {
		t.Parallel()

		doc := htmlDoc("http://example.com/old", `<a href="next">next</a>`)
		doc.FinalURL = "http://example.com/new/"

		links, err := New(WithLogger(quietLogger())).Extract(context.Background(), doc)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !equalLinks(links, []string{"http://example.com/new/next"}) {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("non-HTML documents have no links", func(t *testing.T) {
		t.Parallel()

		doc := &crawler.Document{URL: "http://example.com/a.png", ContentType: "image/png", Body: []byte(`<a href="/x">`)}
		links, err := New(WithLogger(quietLogger())).Extract(context.Background(), doc)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if len(links) != 0 {
			t.Errorf("links = %v, want none", links)
		}
	})

	t.Run("same-host filter drops external links", func(t *testing.T) {
		t.Parallel()

		doc := htmlDoc("http://example.com/", `
			<a href="/a">a</a>
			<a href="http://EXAMPLE.com/b">b</a>
			<a href="http://other.example/c">c</a>`)

		links, err := New(WithSameHost(true), WithLogger(quietLogger())).Extract(context.Background(), doc)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !equalLinks(links, []string{"http://example.com/a", "http://EXAMPLE.com/b"}) {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("ignore and follow patterns filter paths", func(t *testing.T) {
		t.Parallel()

		doc := htmlDoc("http://example.com/", `
			<a href="/docs/intro">intro</a>
			<a href="/docs/manual.pdf">pdf</a>
			<a href="/admin/users">admin</a>
			<a href="/blog/post">blog</a>`)

		ex := New(
			WithIgnorePatterns([]string{"*.pdf", "/admin/*"}),
			WithFollowPatterns([]string{"/docs/*"}),
			WithLogger(quietLogger()),
		)
		links, err := ex.Extract(context.Background(), doc)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !equalLinks(links, []string{"http://example.com/docs/intro"}) {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("host rules replace the global patterns", func(t *testing.T) {
		t.Parallel()

		doc := htmlDoc("http://example.com/", `
			<a href="/private/a">a</a>
			<a href="http://docs.example/private/b">b</a>
			<a href="http://docs.example/guide/c">c</a>`)

		ex := New(
			WithIgnorePatterns([]string{"/private/*"}),
			WithHostRules(map[string]Rules{"Docs.Example": {Follow: []string{"/private/*"}}}),
			WithLogger(quietLogger()),
		)
		links, err := ex.Extract(context.Background(), doc)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !equalLinks(links, []string{"http://docs.example/private/b"}) {
			t.Errorf("links = %v", links)
		}
	})

	t.Run("invalid base URL is an error", func(t *testing.T) {
		t.Parallel()

		doc := htmlDoc("http://[::1", `<a href="x">x</a>`)
		if _, err := New(WithLogger(quietLogger())).Extract(context.Background(), doc); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cancelled context is returned", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := New().Extract(ctx, htmlDoc("http://example.com/", "")); err == nil {
			t.Error("expected context error")
		}
	})
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/admin/*", "/admin", true},
		{"/admin/*", "/admin/users/1", true},
		{"/admin/*", "/administrator", false},
		{"*.pdf", "/docs/file.pdf", true},
		{"*.pdf", "/docs/file.pdf.html", false},
		{"/api/v?", "/api/v2", true},
		{"/api/v?", "/api/v10", false},
		{"logout*", "/account/logout-now", true},
		{"[", "/x", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
