package fetch

import (
	"context"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Fetcher retrieves a page. Implementations return a *TransportError when no
// response was obtained; any HTTP status counts as a successful fetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// TextFetcher retrieves the body of a resource as text (used for scripts).
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Default values shared by the fetch backends.
const (
	// DefaultUserAgent mimics a desktop browser; some applications serve
	// different markup to unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultMaxBodySize is the number of body bytes read per response.
	// Larger bodies are truncated.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// maxRedirects bounds redirect chains.
	maxRedirects = 10
)
