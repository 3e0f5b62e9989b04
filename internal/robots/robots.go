// Package robots turns a site's robots.txt into extra crawl seeds.
//
// Paths listed under Allow and Disallow are often the most interesting parts
// of an application, so they are fed to the crawl instead of being obeyed.
package robots

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/scopecrawl/internal/fetch"
	"github.com/nao1215/scopecrawl/internal/model"
)

// Discoverer reads robots.txt files through a fetcher.
type Discoverer struct {
	fetcher fetch.Fetcher
	logger  *slog.Logger
}

// NewDiscoverer creates a Discoverer. A nil logger uses slog.Default().
func NewDiscoverer(f fetch.Fetcher, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{fetcher: f, logger: logger}
}

// Root returns "<scheme>://<host>" for rawURL.
func Root(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Seeds fetches <root>/robots.txt for seed and returns an address for every
// Allow and Disallow path without a wildcard, plus every Sitemap URL. Any
// failure yields an empty list; robots.txt is a hint, not a requirement.
func (d *Discoverer) Seeds(ctx context.Context, seed string) []model.Address {
	root, err := Root(seed)
	if err != nil {
		d.logger.Debug("robots: skipping seed", "seed", seed, "error", err)
		return nil
	}

	robotsURL := root + "/robots.txt"
	page, err := d.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		d.logger.Debug("robots: fetch failed", "url", robotsURL, "error", err)
		return nil
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		d.logger.Debug("robots: no file", "url", robotsURL, "status", page.StatusCode)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		d.logger.Debug("robots: parse failed", "url", robotsURL, "error", err)
		return nil
	}

	seen := make(map[string]struct{})
	var out []model.Address
	add := func(raw string) {
		addr := model.Parse(raw)
		if addr.IsZero() {
			return
		}
		if _, dup := seen[addr.Pure()]; dup {
			return
		}
		seen[addr.Pure()] = struct{}{}
		out = append(out, addr)
	}

	for _, path := range RulePaths(page.Body) {
		add(join(root, path))
	}
	for _, sitemap := range data.Sitemaps {
		add(sitemap)
	}

	d.logger.Info("robots: discovered paths", "url", robotsURL, "count", len(out))
	return out
}

// RulePaths returns the values of Allow and Disallow lines that contain no
// wildcard, in file order. Empty values ("Disallow:") are skipped.
func RulePaths(body []byte) []string {
	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "allow", "disallow":
		default:
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || strings.Contains(value, "*") {
			continue
		}
		paths = append(paths, value)
	}
	return paths
}

func join(root, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// "$" anchors a rule to the end of the path; it is not part of the URL.
	return root + strings.TrimSuffix(path, "$")
}
