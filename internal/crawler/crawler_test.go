package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/scopecrawl/internal/fetch"
	"github.com/nao1215/scopecrawl/internal/frontier"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/scope"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pures(addrs []model.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Pure())
	}
	return out
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	extract := func(t *testing.T, pageURL, body string) *Extraction {
		t.Helper()
		got, err := NewExtractor().Extract(&model.Page{URL: pageURL, StatusCode: 200, Body: []byte(body)})
		if err != nil {
			t.Fatalf("failed to extract: %v", err)
		}
		return got
	}

	t.Run("resolves link forms", func(t *testing.T) {
		t.Parallel()

		body := `<html><body>
			<a href="https://other.test/abs">abs</a>
			<a href="/root">root</a>
			<a href="#frag">frag</a>
			<a href="rel/child">rel</a>
			<a href="//cdn.test/lib">proto</a>
			<a href="../up">up</a>
		</body></html>`
		got := extract(t, "https://x.test/dir/page?q=1#old", body)

		want := []string{
			"https://other.test/abs",
			"https://x.test/root",
			"https://x.test/dir/page",
			"https://x.test/dir/rel/child",
			"https://cdn.test/lib",
			"https://x.test/up",
		}
		if diff := pures(got.Links); !slices.Equal(diff, want) {
			t.Errorf("expected %v, got %v", want, diff)
		}
		if anchors := got.Links[2].Anchors(); len(anchors) != 1 || anchors[0] != "frag" {
			t.Errorf("expected fragment link to carry anchor 'frag', got %v", anchors)
		}
	})

	t.Run("discards non-navigable schemes", func(t *testing.T) {
		t.Parallel()

		body := `<a href="mailto:a@x.test">m</a>
			<a href="tel:+100">t</a>
			<a href="JavaScript:void(0)">j</a>
			<a href="data:text/plain,hi">d</a>
			<a href="">empty</a>
			<a href="/ok">ok</a>`
		got := extract(t, "https://x.test/", body)
		if p := pures(got.Links); !slices.Equal(p, []string{"https://x.test/ok"}) {
			t.Errorf("expected only /ok, got %v", p)
		}
	})

	t.Run("deduplicates and separates scripts", func(t *testing.T) {
		t.Parallel()

		body := `<head><script src="/app.js"></script><script src="/app.js"></script>
			<script>var inline = 1;</script></head>
			<body><a href="/a">1</a><a href="/a">2</a></body>`
		got := extract(t, "https://x.test/", body)
		if len(got.Links) != 1 {
			t.Errorf("expected 1 link, got %d", len(got.Links))
		}
		if p := pures(got.Scripts); !slices.Equal(p, []string{"https://x.test/app.js"}) {
			t.Errorf("expected [https://x.test/app.js], got %v", p)
		}
	})

	t.Run("resolves against final URL after redirect", func(t *testing.T) {
		t.Parallel()

		page := &model.Page{
			URL:        "https://x.test/old/",
			FinalURL:   "https://x.test/new/",
			StatusCode: 200,
			Body:       []byte(`<a href="child">c</a>`),
		}
		got, err := NewExtractor().Extract(page)
		if err != nil {
			t.Fatalf("failed to extract: %v", err)
		}
		if p := pures(got.Links); !slices.Equal(p, []string{"https://x.test/new/child"}) {
			t.Errorf("unexpected links: %v", p)
		}
	})
}

func TestExtractEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "string literals",
			source: `fetch("https://api.x.test/v1/users"); const u = 'http://x.test/login';`,
			want:   []string{"https://api.x.test/v1/users", "http://x.test/login"},
		},
		{
			name:   "duplicates collapse",
			source: `a("https://x.test/a"); b("https://x.test/a");`,
			want:   []string{"https://x.test/a"},
		},
		{
			name:   "trailing punctuation trimmed",
			source: "load(`https://x.test/tpl`); go(https://x.test/p);",
			want:   []string{"https://x.test/tpl", "https://x.test/p"},
		},
		{
			name:   "relative paths ignored",
			source: `fetch("/api/v1"); fetch("api/v2");`,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractEndpoints(tt.source); !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// tree returns a task that "fetches" a node and offers its children.
func tree(f *frontier.Frontier, children map[string][]string, visits *sync.Map) Task {
	return func(_ context.Context, addr model.Address, notify func(model.Address)) {
		n, _ := visits.LoadOrStore(addr.Pure(), new(int))
		*(n.(*int))++
		f.RecordSuccess(addr, model.NewFingerprint(200, []byte(addr.Pure())))
		for _, c := range children[addr.Pure()] {
			cand := model.Parse(c)
			if f.Offer(cand) {
				notify(cand)
			}
		}
	}
}

func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	t.Run("drains to quiescence with exactly-once notification", func(t *testing.T) {
		t.Parallel()

		children := make(map[string][]string)
		// Every node links to the next ten and back to the root.
		for i := range 200 {
			node := fmt.Sprintf("https://x.test/%d", i)
			for j := i + 1; j <= i+10 && j < 200; j++ {
				children[node] = append(children[node], fmt.Sprintf("https://x.test/%d?from=%d", j, i))
			}
			children[node] = append(children[node], "https://x.test/0")
		}

		f := frontier.New(3)
		f.Seed(model.Parse("https://x.test/0"))

		var visits sync.Map
		var notified []string
		s := NewScheduler(f, 8, tree(f, children, &visits), discardLogger())
		s.Run(context.Background(), func(a model.Address) {
			notified = append(notified, a.Pure())
		})

		if len(notified) != 199 {
			t.Errorf("expected 199 notifications, got %d", len(notified))
		}
		sorted := slices.Clone(notified)
		sort.Strings(sorted)
		if len(slices.Compact(sorted)) != len(notified) {
			t.Error("an address was notified more than once")
		}

		count := 0
		visits.Range(func(_, v any) bool {
			count++
			if *(v.(*int)) != 1 {
				t.Errorf("expected one visit per identity, got %d", *(v.(*int)))
			}
			return true
		})
		if count != 200 {
			t.Errorf("expected 200 visited identities, got %d", count)
		}
		if !f.IsQuiescent(0) {
			t.Error("frontier should be quiescent")
		}
	})

	t.Run("stop lets in-flight work finish", func(t *testing.T) {
		t.Parallel()

		f := frontier.New(3)
		for i := range 50 {
			f.Seed(model.Parse(fmt.Sprintf("https://x.test/%d", i)))
		}

		var s *Scheduler
		var mu sync.Mutex
		finished := 0
		s = NewScheduler(f, 2, func(_ context.Context, addr model.Address, _ func(model.Address)) {
			s.Stop()
			time.Sleep(10 * time.Millisecond)
			f.RecordSuccess(addr, model.NewFingerprint(200, nil))
			mu.Lock()
			finished++
			mu.Unlock()
		}, discardLogger())

		s.Run(context.Background(), nil)

		if !s.Stopped() {
			t.Error("expected scheduler to report stopped")
		}
		if finished == 0 || finished > 2 {
			t.Errorf("expected 1 or 2 finished tasks, got %d", finished)
		}
		stats := f.Stats()
		if stats.Fetched != finished {
			t.Errorf("expected %d fetched, got %d", finished, stats.Fetched)
		}
		if stats.Pending != 50-finished {
			t.Errorf("expected %d pending, got %d", 50-finished, stats.Pending)
		}
	})

	t.Run("context cancellation stops dispatch", func(t *testing.T) {
		t.Parallel()

		f := frontier.New(3)
		for i := range 20 {
			f.Seed(model.Parse(fmt.Sprintf("https://x.test/%d", i)))
		}

		ctx, cancel := context.WithCancel(context.Background())
		s := NewScheduler(f, 1, func(ctx context.Context, addr model.Address, _ func(model.Address)) {
			cancel()
			if ctx.Err() != nil {
				t.Error("worker context must not be cancelled")
			}
			f.RecordSuccess(addr, model.NewFingerprint(200, nil))
		}, discardLogger())

		done := make(chan struct{})
		go func() {
			s.Run(ctx, nil)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop after cancellation")
		}
		if !s.Stopped() {
			t.Error("expected scheduler to report stopped")
		}
		if got := f.Stats().Fetched; got >= 20 {
			t.Errorf("expected dispatch to stop early, fetched %d", got)
		}
	})

	t.Run("empty frontier returns immediately", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler(frontier.New(3), 4, func(context.Context, model.Address, func(model.Address)) {
			t.Error("task must not run")
		}, nil)
		s.Run(context.Background(), nil)
	})
}

// fakeSite serves canned responses keyed by URL without a network.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]fakePage
	failures map[string]int // remaining transport failures; negative fails forever
	hits     map[string]int // by pure form
}

type fakePage struct {
	contentType string
	body        string
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{
		pages:    pages,
		failures: make(map[string]int),
		hits:     make(map[string]int),
	}
}

func (s *fakeSite) lookup(rawURL string) (fakePage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pure := model.Parse(rawURL).Pure()
	s.hits[pure]++
	if n := s.failures[pure]; n != 0 {
		if n > 0 {
			s.failures[pure] = n - 1
		}
		return fakePage{}, false, &fetch.TransportError{URL: rawURL, Err: errors.New("connection refused")}
	}
	p, ok := s.pages[pure]
	return p, ok, nil
}

func (s *fakeSite) Fetch(_ context.Context, rawURL string) (*model.Page, error) {
	p, ok, err := s.lookup(rawURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &model.Page{URL: rawURL, StatusCode: 404, ContentType: "text/html", Body: []byte("not found")}, nil
	}
	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &model.Page{URL: rawURL, StatusCode: 200, ContentType: ct, Body: []byte(p.body)}, nil
}

func (s *fakeSite) FetchText(ctx context.Context, rawURL string) (string, error) {
	p, err := s.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return string(p.Body), nil
}

func (s *fakeSite) hitCount(pure string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pure]
}

func appSite() *fakeSite {
	return newFakeSite(map[string]fakePage{
		"https://app.test/": {body: `<html><head>
			<script src="/static/app.js"></script>
			<script src="https://cdn.other.test/lib.js"></script>
			</head><body>
			<a href="/a">a</a>
			<a href="/a?x=1#top">a with query</a>
			<a href="https://other.test/x">other host</a>
			<a href="mailto:ops@app.test">mail</a>
			<a href="/flaky">flaky</a>
			<a href="/broken">broken</a>
			<a href="/private/admin">excluded</a>
			</body></html>`},
		"https://app.test/a":                 {body: `<a href="/">home</a><a href="/b">b</a>`},
		"https://app.test/b":                 {body: `<p>leaf</p>`},
		"https://app.test/flaky":             {body: `<a href="/after-flaky">next</a>`},
		"https://app.test/after-flaky":       {body: `ok`},
		"https://app.test/static/app.js":     {contentType: "application/javascript", body: `fetch("https://app.test/api/v1/users")`},
		"https://cdn.other.test/lib.js":      {contentType: "text/javascript", body: `var base = "https://app.test/from-cdn";`},
		"https://app.test/api/v1/users":      {contentType: "application/json", body: `[]`},
		"https://app.test/from-cdn":          {body: `cdn`},
		"https://app.test/private/admin":     {body: `secret`},
		"https://other.test/x":               {body: `other`},
	})
}

func appScope(t *testing.T) *scope.Scope {
	t.Helper()
	sc, err := scope.New(scope.Document{
		Include: []string{`https://app\.test/`},
		Exclude: []string{`https://app\.test/private/`},
	})
	if err != nil {
		t.Fatalf("failed to compile scope: %v", err)
	}
	return sc
}

func recordByPure(inv *model.Inventory, pure string) (model.Record, bool) {
	for _, r := range inv.Records {
		if r.Address.Pure() == pure {
			return r, true
		}
	}
	return model.Record{}, false
}

func TestEngineCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls scope once per identity", func(t *testing.T) {
		t.Parallel()

		site := appSite()
		site.failures["https://app.test/flaky"] = 2
		site.failures["https://app.test/broken"] = -1

		engine := NewEngine(appScope(t), site,
			WithWorkers(4),
			WithScriptFetcher(site),
			WithLogger(discardLogger()),
		)

		var mu sync.Mutex
		var discovered []string
		inv, err := engine.Crawl(context.Background(), []model.Address{model.Parse("https://app.test/")}, func(a model.Address) {
			mu.Lock()
			discovered = append(discovered, a.Pure())
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("failed to crawl: %v", err)
		}
		if inv.Stopped {
			t.Error("crawl should have drained, not stopped")
		}

		if got := site.hitCount("https://app.test/a"); got != 1 {
			t.Errorf("expected /a fetched once, got %d", got)
		}
		if got := site.hitCount("https://other.test/x"); got != 0 {
			t.Errorf("out-of-scope host must not be fetched, got %d", got)
		}
		if got := site.hitCount("https://app.test/private/admin"); got != 0 {
			t.Errorf("excluded path must not be fetched, got %d", got)
		}
		if got := site.hitCount("https://app.test/flaky"); got != 3 {
			t.Errorf("expected 3 attempts for flaky, got %d", got)
		}
		if got := site.hitCount("https://app.test/broken"); got != 3 {
			t.Errorf("expected 3 attempts before dropping, got %d", got)
		}

		want := []string{
			"https://app.test/a",
			"https://app.test/after-flaky",
			"https://app.test/api/v1/users",
			"https://app.test/b",
			"https://app.test/broken",
			"https://app.test/flaky",
			"https://app.test/from-cdn",
		}
		sort.Strings(discovered)
		if !slices.Equal(discovered, want) {
			t.Errorf("expected discoveries %v, got %v", want, discovered)
		}

		a, ok := recordByPure(inv, "https://app.test/a")
		if !ok || a.Status != model.StatusFetched {
			t.Fatalf("expected /a fetched, got %+v", a)
		}
		if anchors := a.Address.Anchors(); !slices.Contains(anchors, "top") {
			t.Errorf("expected /a to keep anchor 'top', got %v", anchors)
		}
		if sets := a.Address.ParamSets(); len(sets) != 1 || sets[0].Encode() != "x=1" {
			t.Errorf("expected /a to record exactly the x=1 parameter set, got %v", sets)
		}

		if r, ok := recordByPure(inv, "https://app.test/broken"); !ok || r.Status != model.StatusDropped || r.Errors != 3 {
			t.Errorf("expected /broken dropped with 3 errors, got %+v", r)
		}
		if r, ok := recordByPure(inv, "https://app.test/flaky"); !ok || r.Status != model.StatusFetched {
			t.Errorf("expected /flaky fetched, got %+v", r)
		}
		if inv.Count(model.StatusPending) != 0 {
			t.Errorf("expected nothing pending, got %d", inv.Count(model.StatusPending))
		}
	})

	t.Run("only in-scope scripts when scan-all is off", func(t *testing.T) {
		t.Parallel()

		site := appSite()
		engine := NewEngine(appScope(t), site,
			WithScanAllScripts(false),
			WithScriptFetcher(site),
			WithLogger(discardLogger()),
		)
		inv, err := engine.Crawl(context.Background(), []model.Address{model.Parse("https://app.test/")}, nil)
		if err != nil {
			t.Fatalf("failed to crawl: %v", err)
		}

		if got := site.hitCount("https://cdn.other.test/lib.js"); got != 0 {
			t.Errorf("out-of-scope script must not be fetched, got %d", got)
		}
		if _, ok := recordByPure(inv, "https://app.test/from-cdn"); ok {
			t.Error("endpoint from out-of-scope script must not be discovered")
		}
		if _, ok := recordByPure(inv, "https://app.test/api/v1/users"); !ok {
			t.Error("endpoint from in-scope script should be discovered")
		}
	})

	t.Run("scripts are ignored without a script fetcher", func(t *testing.T) {
		t.Parallel()

		site := appSite()
		engine := NewEngine(appScope(t), site, WithLogger(discardLogger()))
		if _, err := engine.Crawl(context.Background(), []model.Address{model.Parse("https://app.test/")}, nil); err != nil {
			t.Fatalf("failed to crawl: %v", err)
		}
		if got := site.hitCount("https://app.test/static/app.js"); got != 0 {
			t.Errorf("expected no script fetches, got %d", got)
		}
	})

	t.Run("script seed is scanned for endpoints", func(t *testing.T) {
		t.Parallel()

		site := appSite()
		engine := NewEngine(appScope(t), site, WithLogger(discardLogger()))
		inv, err := engine.Crawl(context.Background(), []model.Address{model.Parse("https://app.test/static/app.js")}, nil)
		if err != nil {
			t.Fatalf("failed to crawl: %v", err)
		}
		if _, ok := recordByPure(inv, "https://app.test/api/v1/users"); !ok {
			t.Error("expected endpoint from fetched script to be crawled")
		}
	})

	t.Run("no seeds", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(appScope(t), appSite(), WithLogger(discardLogger()))
		_, err := engine.Crawl(context.Background(), []model.Address{model.Parse("  ")}, nil)
		if !errors.Is(err, ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("cancelled context yields stopped partial inventory", func(t *testing.T) {
		t.Parallel()

		site := appSite()
		engine := NewEngine(appScope(t), site, WithWorkers(1), WithLogger(discardLogger()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		inv, err := engine.Crawl(ctx, []model.Address{model.Parse("https://app.test/")}, nil)
		if err != nil {
			t.Fatalf("cancellation must not be an error: %v", err)
		}
		if !inv.Stopped {
			t.Error("expected Stopped to be set")
		}
		if got := site.hitCount("https://app.test/"); got > 1 {
			t.Errorf("expected at most one fetch, got %d", got)
		}
	})

	t.Run("stop without a running crawl is a no-op", func(t *testing.T) {
		t.Parallel()

		NewEngine(appScope(t), appSite()).Stop()
	})
}

func TestIsScript(t *testing.T) {
	t.Parallel()

	for ct, want := range map[string]bool{
		"application/javascript":   true,
		"text/javascript; charset": true,
		"application/ecmascript":   true,
		"text/html":                false,
		"":                         false,
	} {
		if got := isScript(ct); got != want {
			t.Errorf("isScript(%q) = %v, want %v", ct, got, want)
		}
	}
}
