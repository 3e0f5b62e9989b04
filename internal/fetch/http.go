package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/scopecrawl/internal/model"
)

// HTTPFetcher fetches pages and scripts with a plain HTTP client.
// It is safe for concurrent use.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	cookie      string
	hosts       map[string]HostOverride
	maxBodySize int64
	limiter     *HostLimiter
	logger      *slog.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithCookie sends a raw Cookie header ("a=1; b=2") with every request.
func WithCookie(cookie string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// HostOverride replaces request decorations for one host.
type HostOverride struct {
	// Cookie replaces the global cookie when non-empty.
	Cookie string
	// Headers are set after the global headers.
	Headers map[string]string
}

// WithHostOverrides sets per-host cookies and headers, keyed by lowercase
// host or host:port.
func WithHostOverrides(hosts map[string]HostOverride) HTTPOption {
	return func(f *HTTPFetcher) {
		f.hosts = hosts
	}
}

// WithMaxBodySize limits how many body bytes are read; the rest is discarded.
func WithMaxBodySize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLimiter applies a per-host rate limit before each request.
func WithLimiter(l *HostLimiter) HTTPOption {
	return func(f *HTTPFetcher) {
		f.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher creates a fetcher around client. A nil client gets the
// NewHTTPClient defaults.
func NewHTTPFetcher(client *http.Client, opts ...HTTPOption) *HTTPFetcher {
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	f := &HTTPFetcher{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch requests rawURL and returns the page. Any response, whatever its
// status, is a successful fetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	resp, body, err := f.do(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header.Clone(),
		Body:        body,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if final := resp.Request.URL.String(); final != rawURL {
			page.FinalURL = final
		}
	}

	f.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)
	return page, nil
}

// FetchText requests rawURL and returns its body as text.
func (f *HTTPFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	_, body, err := f.do(ctx, rawURL, "*/*")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL, accept string) (*http.Response, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}
	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	cookie := f.cookie
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if o, ok := f.override(u); ok {
		if o.Cookie != "" {
			cookie = o.Cookie
		}
		for k, v := range o.Headers {
			req.Header.Set(k, v)
		}
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := f.readBody(resp)
	if err != nil {
		return nil, nil, &TransportError{URL: rawURL, Err: err}
	}
	return resp, body, nil
}

func (f *HTTPFetcher) override(u *url.URL) (HostOverride, bool) {
	if len(f.hosts) == 0 {
		return HostOverride{}, false
	}
	if o, ok := f.hosts[strings.ToLower(u.Host)]; ok {
		return o, true
	}
	o, ok := f.hosts[strings.ToLower(u.Hostname())]
	return o, ok
}

// readBody decodes the Content-Encoding and reads at most maxBodySize bytes.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
