package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/scopecrawl/internal/model"
)

// BrowserOptions configures a BrowserFetcher.
type BrowserOptions struct {
	// UserAgent overrides the browser's User-Agent.
	UserAgent string

	// Timeout bounds one navigation including the settle delay.
	Timeout time.Duration

	// SettleDelay is how long to wait after load for scripts to build the DOM.
	SettleDelay time.Duration

	// Tabs bounds concurrently open tabs.
	Tabs int

	// ProxyServer routes the browser through a proxy ("socks5://127.0.0.1:9050").
	ProxyServer string

	// MaxBodySize truncates the captured DOM.
	MaxBodySize int64

	// Headful shows the browser window.
	Headful bool

	// Logger receives navigation logs; nil uses slog.Default().
	Logger *slog.Logger
}

// BrowserFetcher fetches pages with a headless Chrome so that scripts run before
// links are extracted. One browser process is shared by all tabs.
type BrowserFetcher struct {
	opts       BrowserOptions
	tabs       chan struct{}
	browserCtx context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewBrowserFetcher starts a browser process. Close must be called to stop it.
func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	if opts.Tabs <= 0 {
		opts.Tabs = 1
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", !opts.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ProxyServer != "" {
		execOpts = append(execOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions launches the browser so startup errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &BrowserFetcher{
		opts:       opts,
		tabs:       make(chan struct{}, opts.Tabs),
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		logger: logger,
	}, nil
}

// Fetch navigates a new tab to rawURL, waits for the page to settle and returns
// the rendered DOM. A failed navigation is a *TransportError.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	if b.closed.Load() {
		return nil, &TransportError{URL: rawURL, Err: ErrBrowserClosed}
	}

	select {
	case b.tabs <- struct{}{}:
		defer func() { <-b.tabs }()
	case <-ctx.Done():
		return nil, &TransportError{URL: rawURL, Err: ctx.Err()}
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	var (
		html     string
		finalURL string
	)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			err = ctx.Err()
		}
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if int64(len(html)) > b.opts.MaxBodySize {
		html = html[:b.opts.MaxBodySize]
	}

	code := int(status.Load())
	if code == 0 {
		code = http.StatusOK
	}

	page := &model.Page{
		URL:         rawURL,
		StatusCode:  code,
		ContentType: "text/html",
		Body:        []byte(html),
	}
	if finalURL != "" && finalURL != rawURL {
		page.FinalURL = finalURL
	}

	b.logger.Debug("rendered page", "url", rawURL, "status", code, "bytes", len(html))
	return page, nil
}

// Close stops the browser process. It is safe to call more than once.
func (b *BrowserFetcher) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.cancel()
	})
	return nil
}
