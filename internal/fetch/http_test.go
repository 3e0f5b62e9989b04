package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hello</body></html>")) //nolint:errcheck
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("compressed gzip body")) //nolint:errcheck
		gz.Close()                               //nolint:errcheck
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		br := brotli.NewWriter(&buf)
		br.Write([]byte("compressed brotli body")) //nolint:errcheck
		br.Close()                                 //nolint:errcheck
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("Cookie") + "|" + r.Header.Get("X-Test"))) //nolint:errcheck
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("a", 1000))) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	t.Run("fetches page with status and content type", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client())
		page, err := f.Fetch(context.Background(), server.URL+"/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", page.StatusCode)
		}
		if !page.IsHTML() {
			t.Errorf("expected HTML content type, got %q", page.ContentType)
		}
		if !strings.Contains(string(page.Body), "hello") {
			t.Errorf("unexpected body: %q", page.Body)
		}
	})

	t.Run("error status is a successful fetch", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client())
		page, err := f.Fetch(context.Background(), server.URL+"/missing")
		if err != nil {
			t.Fatalf("expected no error for 404, got %v", err)
		}
		if page.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", page.StatusCode)
		}
	})

	t.Run("decodes gzip and brotli", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client())
		for path, want := range map[string]string{
			"/gzip": "compressed gzip body",
			"/br":   "compressed brotli body",
		} {
			text, err := f.FetchText(context.Background(), server.URL+path)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", path, err)
			}
			if text != want {
				t.Errorf("%s: expected %q, got %q", path, want, text)
			}
		}
	})

	t.Run("sends user agent, cookie and headers", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client(),
			WithUserAgent("scopecrawl-test"),
			WithCookie("session=abc"),
			WithHeaders(map[string]string{"X-Test": "yes"}),
		)
		text, err := f.FetchText(context.Background(), server.URL+"/echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "scopecrawl-test|session=abc|yes" {
			t.Errorf("unexpected echo: %q", text)
		}
	})

	t.Run("per-host override replaces cookie and adds headers", func(t *testing.T) {
		t.Parallel()

		host := strings.TrimPrefix(server.URL, "http://")
		f := NewHTTPFetcher(server.Client(),
			WithCookie("session=global"),
			WithHostOverrides(map[string]HostOverride{
				host: {Cookie: "session=host", Headers: map[string]string{"X-Test": "host"}},
			}),
		)
		text, err := f.FetchText(context.Background(), server.URL+"/echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(text, "|session=host|host") {
			t.Errorf("unexpected echo: %q", text)
		}
	})

	t.Run("records final URL after redirect", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client())
		page, err := f.Fetch(context.Background(), server.URL+"/redirect")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.FinalURL != server.URL+"/page" {
			t.Errorf("expected final URL %q, got %q", server.URL+"/page", page.FinalURL)
		}
		if page.Base() != page.FinalURL {
			t.Error("expected Base to prefer the final URL")
		}
	})

	t.Run("truncates large bodies", func(t *testing.T) {
		t.Parallel()

		f := NewHTTPFetcher(server.Client(), WithMaxBodySize(100))
		page, err := f.Fetch(context.Background(), server.URL+"/large")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Body) != 100 {
			t.Errorf("expected 100 bytes, got %d", len(page.Body))
		}
	})
}

func TestHTTPFetcherTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	f := NewHTTPFetcher(NewHTTPClient(ClientOptions{Timeout: 2 * time.Second}))
	_, err := f.Fetch(context.Background(), addr+"/")
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if !IsTransportError(err) {
		t.Errorf("expected *TransportError, got %T", err)
	}
}

func TestHostLimiter(t *testing.T) {
	t.Parallel()

	t.Run("nil limiter never waits", func(t *testing.T) {
		t.Parallel()

		var l *HostLimiter
		if err := l.Wait(context.Background(), "x.test"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if NewHostLimiter(0, 1) != nil {
			t.Error("expected nil limiter for zero rate")
		}
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(0.001, 1)
		ctx, cancel := context.WithCancel(context.Background())
		if err := l.Wait(ctx, "x.test"); err != nil {
			t.Fatalf("first request should pass: %v", err)
		}
		cancel()
		if err := l.Wait(ctx, "x.test"); err == nil {
			t.Error("expected error after cancel")
		}
	})

	t.Run("hosts have separate buckets", func(t *testing.T) {
		t.Parallel()

		l := NewHostLimiter(0.001, 1)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.Wait(ctx, "a.test"); err != nil {
			t.Fatal(err)
		}
		if err := l.Wait(ctx, "B.test"); err != nil {
			t.Errorf("expected separate bucket for b.test: %v", err)
		}
	})
}
