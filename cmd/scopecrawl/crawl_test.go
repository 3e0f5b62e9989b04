package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/report"
)

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     []string
		want    map[string]string
		wantErr bool
	}{
		{name: "trims spaces", raw: []string{"X-Test:  yes "}, want: map[string]string{"X-Test": "yes"}},
		{name: "value with colon", raw: []string{"Authorization: Basic a:b"}, want: map[string]string{"Authorization": "Basic a:b"}},
		{name: "empty value", raw: []string{"X-Empty:"}, want: map[string]string{"X-Empty": ""}},
		{name: "missing colon", raw: []string{"X-Test"}, wantErr: true},
		{name: "missing name", raw: []string{": value"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseHeaders(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("flags override the config file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		cfgPath := filepath.Join(dir, "engagement.yaml")
		content := `
scope:
  include: ['https://app\.test/']
workers: 9
maxRetries: 7
defaults:
  cookie: "session=file"
  headers:
    X-From-File: "1"
hosts:
  API.app.test:
    cookie: "session=api"
`
		if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", cfgPath, "-w", "3", "-H", "X-From-Flag: 2", "-x", `https://app\.test/logout`}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://app.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Workers != 3 {
			t.Errorf("expected flag workers 3, got %d", cfg.Workers)
		}
		if cfg.MaxRetries != 7 {
			t.Errorf("expected file retries 7, got %d", cfg.MaxRetries)
		}
		if cfg.Cookie != "session=file" {
			t.Errorf("expected file cookie, got %q", cfg.Cookie)
		}
		if cfg.Headers["X-From-File"] != "1" || cfg.Headers["X-From-Flag"] != "2" {
			t.Errorf("expected file and flag headers merged, got %v", cfg.Headers)
		}
		if len(cfg.Scope.Include) != 1 || len(cfg.Scope.Exclude) != 1 {
			t.Errorf("unexpected scope: %+v", cfg.Scope)
		}
		if overrides := hostOverrides(cfg.File); overrides["api.app.test"].Cookie != "session=api" {
			t.Errorf("expected host override for api.app.test, got %v", overrides)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected validation error: %v", err)
		}
	})

	t.Run("seeds from arguments, url flag and list", func(t *testing.T) {
		t.Parallel()

		list := filepath.Join(t.TempDir(), "seeds.txt")
		if err := os.WriteFile(list, []byte("# comment\nhttps://c.test/\n\nhttps://d.test/\n"), 0600); err != nil {
			t.Fatalf("failed to write list: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-u", "https://b.test/", "-L", list}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://a.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"https://a.test/", "https://b.test/", "https://c.test/", "https://d.test/"}
		if strings.Join(cfg.Seeds, " ") != strings.Join(want, " ") {
			t.Errorf("expected seeds %v, got %v", want, cfg.Seeds)
		}
	})

	t.Run("explicit missing config file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, nil); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}

func TestBuildScope(t *testing.T) {
	t.Parallel()

	scopeFile := filepath.Join(t.TempDir(), "scope.json")
	doc := `{"include": ["https://app\\.test/"], "exclude": ["https://app\\.test/admin"]}`
	if err := os.WriteFile(scopeFile, []byte(doc), 0600); err != nil {
		t.Fatalf("failed to write scope: %v", err)
	}

	cfg := config.NewConfig()
	cfg.ScopeFile = scopeFile
	cfg.Scope.Include = []string{`https://api\.app\.test/`}
	cfg.Scope.Exclude = []string{`https://app\.test/logout`}

	sc, err := buildScope(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if include, exclude := sc.Len(); include != 2 || exclude != 2 {
		t.Errorf("expected 2 include and 2 exclude patterns, got %d and %d", include, exclude)
	}

	tests := map[string]bool{
		"https://app.test/home":       true,
		"https://api.app.test/v1":     true,
		"https://app.test/admin/x":    false,
		"https://app.test/logout":     false,
		"https://other.test/app.test": false,
	}
	for u, want := range tests {
		if got := sc.InScope(u); got != want {
			t.Errorf("InScope(%q) = %v, want %v", u, got, want)
		}
	}

	if _, err := buildScope(config.NewConfig()); err == nil {
		t.Error("expected error for empty scope")
	}
}

// newTestSite serves a small application:
//
//	/  -> /a, /b?x=1, /private/secret, https://elsewhere.test/
//	/a -> /, /b?x=2
//	/b
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<a href="/a">a</a><a href="/b?x=1">b</a><a href="/private/secret">p</a><a href="https://elsewhere.test/">x</a>`)
		case "/a":
			fmt.Fprint(w, `<a href="/">home</a><a href="b?x=2">b</a>`)
		case "/b":
			fmt.Fprint(w, `<p>b</p>`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	t.Run("prints each in-scope discovery once", func(t *testing.T) {
		t.Parallel()

		server := newTestSite(t)
		include := regexp.QuoteMeta(server.URL + "/")
		exclude := regexp.QuoteMeta(server.URL + "/private")

		stdout, stderr, err := executeRoot(t, "crawl", "-i", include, "-x", exclude, "-w", "2", server.URL+"/")
		if err != nil {
			t.Fatalf("crawl failed: %v (stderr: %s)", err, stderr)
		}

		lines := strings.Fields(stdout)
		sort.Strings(lines)
		if len(lines) != 2 {
			t.Fatalf("expected 2 discoveries, got %v", lines)
		}
		if lines[0] != server.URL+"/a" {
			t.Errorf("expected %s/a, got %s", server.URL, lines[0])
		}
		// Either parameter set may be the first sighting of /b.
		if !strings.HasPrefix(lines[1], server.URL+"/b?x=") {
			t.Errorf("expected /b with its first parameter set, got %s", lines[1])
		}
	})

	t.Run("json report replaces discovery output", func(t *testing.T) {
		t.Parallel()

		server := newTestSite(t)
		include := regexp.QuoteMeta(server.URL + "/")

		stdout, stderr, err := executeRoot(t, "crawl", "-j", "-i", include, "-x", regexp.QuoteMeta(server.URL+"/private"), server.URL+"/")
		if err != nil {
			t.Fatalf("crawl failed: %v (stderr: %s)", err, stderr)
		}

		var doc report.JSONReport
		if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
			t.Fatalf("failed to parse JSON report: %v\n%s", err, stdout)
		}
		if doc.Summary.Fetched != 3 || doc.Summary.Total != 3 {
			t.Errorf("expected 3 fetched identities, got %+v", doc.Summary)
		}
		for _, r := range doc.Inventory.Records {
			if r.Address.Pure() == server.URL+"/b" && len(r.Address.ParamSets()) != 2 {
				t.Errorf("expected both parameter sets of /b, got %v", r.Address.ParamSets())
			}
		}
	})

	t.Run("writes report file and saves history", func(t *testing.T) {
		t.Parallel()

		server := newTestSite(t)
		dir := t.TempDir()
		reportPath := filepath.Join(dir, "out", "inventory.md")
		dbDir := filepath.Join(dir, "db")

		_, stderr, err := executeRoot(t, "crawl", "-q", "-m", "-o", reportPath, "--save", "--db", dbDir,
			"-i", regexp.QuoteMeta(server.URL+"/"), server.URL+"/")
		if err != nil {
			t.Fatalf("crawl failed: %v (stderr: %s)", err, stderr)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# scopecrawl Inventory") {
			t.Error("expected Markdown inventory in report file")
		}

		list, _, err := executeRoot(t, "history", "list", "--db", dbDir)
		if err != nil {
			t.Fatalf("history list failed: %v", err)
		}
		if !strings.Contains(list, "complete") || !strings.Contains(list, server.URL) {
			t.Errorf("expected saved run in list, got %q", list)
		}

		show, _, err := executeRoot(t, "history", "show", "1", "-j", "--db", dbDir)
		if err != nil {
			t.Fatalf("history show failed: %v", err)
		}
		var doc report.JSONReport
		if err := json.Unmarshal([]byte(show), &doc); err != nil {
			t.Fatalf("failed to parse stored run: %v", err)
		}
		// /private is in scope here.
		if doc.Inventory.Count(model.StatusFetched) != 4 {
			t.Errorf("expected 4 fetched identities, got %d", doc.Inventory.Count(model.StatusFetched))
		}

		diff, _, err := executeRoot(t, "history", "diff", "1", "1", "--db", dbDir)
		if err != nil {
			t.Fatalf("history diff failed: %v", err)
		}
		if !strings.Contains(diff, "0 added, 0 removed, 4 unchanged") {
			t.Errorf("unexpected diff output: %q", diff)
		}
	})

	t.Run("validation errors", func(t *testing.T) {
		t.Parallel()

		tests := [][]string{
			{"crawl", "-i", "x"},
			{"crawl", "https://app.test/"},
			{"crawl", "-i", "x", "-j", "-m", "https://app.test/"},
			{"crawl", "-i", "x", "-w", "0", "https://app.test/"},
			{"crawl", "-i", "x", "--renderer", "netscape", "https://app.test/"},
			{"crawl", "-i", "x", "not-a-url"},
			{"crawl", "-i", "(", "https://app.test/"},
		}
		for _, args := range tests {
			if _, _, err := executeRoot(t, args...); err == nil {
				t.Errorf("expected error for %v", args)
			}
		}
	})
}

func TestHistoryErrors(t *testing.T) {
	t.Parallel()

	dbDir := filepath.Join(t.TempDir(), "none")
	for _, args := range [][]string{
		{"history", "list", "--db", dbDir},
		{"history", "show", "abc", "--db", dbDir},
		{"history", "diff", "1", "--db", dbDir},
	} {
		if _, _, err := executeRoot(t, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}
