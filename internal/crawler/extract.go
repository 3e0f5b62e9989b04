package crawler

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/scopecrawl/internal/model"
)

// endpointPattern matches absolute-URL-shaped substrings in script source:
// scheme, dotted host with a short TLD, then anything up to whitespace or a quote.
// It is best effort; dynamically built URLs are missed and URL-like string
// literals that are not endpoints are included.
var endpointPattern = regexp.MustCompile(`https?://([\w\-]+\.)+[a-z]{2,5}[^\s"']*`)

// discardedSchemes never produce crawlable candidates.
var discardedSchemes = []string{"mailto:", "tel:", "javascript:", "data:"}

// Extraction holds the candidates found on one page.
type Extraction struct {
	// Links are resolved anchor targets.
	Links []model.Address
	// Scripts are resolved <script src> addresses.
	Scripts []model.Address
}

// Extractor turns fetched pages into candidate addresses. It is stateless and
// safe for concurrent use.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses page as HTML and returns its anchor and script candidates in
// document order, without duplicates. Candidates that cannot be resolved are
// dropped.
func (e *Extractor) Extract(page *model.Page) (*Extraction, error) {
	root, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, err
	}

	r, err := newResolver(page.Base())
	if err != nil {
		return nil, err
	}

	doc := goquery.NewDocumentFromNode(root)
	result := &Extraction{
		Links:   collect(doc.Find("a[href], area[href]"), "href", r),
		Scripts: collect(doc.Find("script[src]"), "src", r),
	}
	return result, nil
}

func collect(sel *goquery.Selection, attr string, r *resolver) []model.Address {
	seen := make(map[string]struct{})
	out := make([]model.Address, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		raw, _ := s.Attr(attr)
		resolved, ok := r.resolve(raw)
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		if addr := model.Parse(resolved); !addr.IsZero() {
			out = append(out, addr)
		}
	})
	return out
}

// ExtractEndpoints returns the distinct absolute URLs found in script source,
// in order of first appearance.
func ExtractEndpoints(source string) []string {
	matches := endpointPattern.FindAllString(source, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ")];,`\\")
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// resolver turns href/src values into absolute URLs relative to one page.
type resolver struct {
	origin    *url.URL
	originRaw string
}

func newResolver(pageURL string) (*resolver, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	raw, _, _ := strings.Cut(pageURL, "#")
	return &resolver{origin: u, originRaw: raw}, nil
}

// resolve applies the link resolution rules:
//   - absolute URLs pass through unchanged
//   - "/path" gets the page's scheme and host
//   - "#frag" gets the full page URL
//   - anything else is joined relative to the page URL
//
// mailto:, tel:, javascript: and data: targets are discarded.
func (r *resolver) resolve(raw string) (string, bool) {
	href := strings.TrimSpace(raw)
	if href == "" {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range discardedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	switch {
	case strings.HasPrefix(href, "//"):
		return r.origin.Scheme + ":" + href, true
	case strings.HasPrefix(href, "/"):
		return r.origin.Scheme + "://" + r.origin.Host + href, true
	case strings.HasPrefix(href, "#"):
		return r.originRaw + href, true
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return href, true
	}
	return r.origin.ResolveReference(ref).String(), true
}
