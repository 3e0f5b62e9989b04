package model

import "strings"

// Page is a fetched document handed from a fetch backend to the extractor.
type Page struct {
	// URL is the requested address.
	URL string `json:"url"`

	// FinalURL is the address after redirects. Relative links resolve against it.
	// Empty means the same as URL.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP response status code. Any status is a successful
	// fetch; only transport failures are errors.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type header value.
	ContentType string `json:"content_type,omitempty"`

	// Headers contains the response headers.
	Headers map[string][]string `json:"headers,omitempty"`

	// Body is the (decoded, size-limited) response body.
	Body []byte `json:"-"`
}

// Base returns the address relative links on the page resolve against.
func (p *Page) Base() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Fingerprint summarizes the page content.
func (p *Page) Fingerprint() Fingerprint {
	return NewFingerprint(p.StatusCode, p.Body)
}

// IsHTML reports whether the page should be parsed as markup. A missing
// Content-Type is treated as HTML since browsers sniff it the same way.
func (p *Page) IsHTML() bool {
	if p.ContentType == "" {
		return true
	}
	ct := strings.ToLower(p.ContentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
