package crawler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/scopecrawl/internal/fetch"
	"github.com/nao1215/scopecrawl/internal/frontier"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/scope"
)

// Default engine settings.
const (
	DefaultWorkers        = 5
	DefaultScanAllScripts = true
)

var (
	// ErrNoSeeds is returned by Crawl when no valid seed address was given.
	ErrNoSeeds = errors.New("no valid seed address")

	// ErrCrawlRunning is returned by Crawl when the engine is already crawling.
	ErrCrawlRunning = errors.New("crawl already running")
)

// Engine wires scope, frontier, extractor and scheduler together.
// One Engine runs one crawl at a time; every Crawl starts from an empty frontier.
type Engine struct {
	scope          *scope.Scope
	fetcher        fetch.Fetcher
	scripts        *ScriptScanner
	extractor      *Extractor
	workers        int
	maxRetries     int
	scanAllScripts bool
	logger         *slog.Logger

	mu        sync.Mutex
	scheduler *Scheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaxRetries sets how many consecutive failures drop an address.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithScanAllScripts controls whether out-of-scope scripts are scanned for
// endpoints. When false only in-scope scripts are fetched.
func WithScanAllScripts(all bool) Option {
	return func(e *Engine) {
		e.scanAllScripts = all
	}
}

// WithScriptFetcher sets where script bodies come from. Without it scripts are
// not scanned.
func WithScriptFetcher(f fetch.TextFetcher) Option {
	return func(e *Engine) {
		e.scripts = NewScriptScanner(f, e.logger)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		if e.scripts != nil {
			e.scripts.logger = logger
		}
	}
}

// NewEngine creates an engine that fetches pages with fetcher and admits
// candidates through sc.
func NewEngine(sc *scope.Scope, fetcher fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		scope:          sc,
		fetcher:        fetcher,
		extractor:      NewExtractor(),
		workers:        DefaultWorkers,
		maxRetries:     frontier.DefaultMaxRetries,
		scanAllScripts: DefaultScanAllScripts,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Crawl fetches the seeds and everything in scope reachable from them, calling
// observer once per newly discovered address. It returns when the frontier is
// quiescent, or after Stop or ctx cancellation once in-flight work is done.
// The returned inventory then has Stopped set.
func (e *Engine) Crawl(ctx context.Context, seeds []model.Address, observer Observer) (*model.Inventory, error) {
	valid := make([]model.Address, 0, len(seeds))
	for _, s := range seeds {
		if !s.IsZero() {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoSeeds
	}

	fr := frontier.New(e.maxRetries)
	fr.Seed(valid...)

	sched := NewScheduler(fr, e.workers, func(ctx context.Context, addr model.Address, notify func(model.Address)) {
		e.visit(ctx, fr, addr, notify)
	}, e.logger)

	e.mu.Lock()
	if e.scheduler != nil {
		e.mu.Unlock()
		return nil, ErrCrawlRunning
	}
	e.scheduler = sched
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.scheduler = nil
		e.mu.Unlock()
	}()

	inv := &model.Inventory{
		Seeds:     make([]string, 0, len(valid)),
		StartedAt: time.Now(),
	}
	for _, s := range valid {
		inv.Seeds = append(inv.Seeds, s.String())
	}

	e.logger.Info("crawl started", "seeds", len(valid), "workers", e.workers, "max_retries", e.maxRetries)
	sched.Run(ctx, observer)

	inv.FinishedAt = time.Now()
	inv.Stopped = sched.Stopped()
	inv.Records = fr.Snapshot()
	inv.Sort()

	stats := fr.Stats()
	e.logger.Info("crawl finished",
		"fetched", stats.Fetched,
		"pending", stats.Pending,
		"dropped", stats.Dropped,
		"stopped", inv.Stopped,
		"elapsed", inv.Duration().Round(time.Millisecond),
	)
	return inv, nil
}

// Stop asks the running crawl to finish after its in-flight work.
// It is a no-op when no crawl is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
}

// visit is the per-worker task: fetch, record, extract and publish.
func (e *Engine) visit(ctx context.Context, fr *frontier.Frontier, addr model.Address, notify func(model.Address)) {
	target := addr.URL()

	page, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		requeued := fr.RecordFailure(addr)
		e.logger.Warn("fetch failed", "url", target, "requeued", requeued, "error", err)
		return
	}

	if !fr.RecordSuccess(addr, page.Fingerprint()) {
		e.logger.Debug("duplicate content, links not published", "url", target, "fingerprint", page.Fingerprint().String())
		return
	}

	if isScript(page.ContentType) {
		e.publishRaw(ExtractEndpoints(string(page.Body)), fr, notify)
		return
	}
	if !page.IsHTML() {
		return
	}

	found, err := e.extractor.Extract(page)
	if err != nil {
		e.logger.Debug("extraction failed", "url", target, "error", err)
		return
	}

	for _, link := range found.Links {
		e.publish(link, fr, notify)
	}

	if e.scripts == nil {
		return
	}
	for _, src := range found.Scripts {
		if !e.scanAllScripts && !e.scope.InScope(src.URL()) {
			continue
		}
		e.publishRaw(e.scripts.Candidates(ctx, src.URL()), fr, notify)
	}
}

// publish offers an in-scope candidate and reports it if it is new.
// Out-of-scope candidates never touch the frontier.
func (e *Engine) publish(cand model.Address, fr *frontier.Frontier, notify func(model.Address)) {
	if cand.IsZero() || !e.scope.InScope(cand.URL()) {
		return
	}
	if fr.Offer(cand) {
		notify(cand)
	}
}

func (e *Engine) publishRaw(raws []string, fr *frontier.Frontier, notify func(model.Address)) {
	for _, raw := range raws {
		e.publish(model.Parse(raw), fr, notify)
	}
}

func isScript(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "javascript") || strings.Contains(ct, "ecmascript")
}
