package crawler

import (
	"context"
	"log/slog"

	"github.com/nao1215/scopecrawl/internal/fetch"
)

// ScriptScanner fetches script bodies and extracts endpoint candidates.
type ScriptScanner struct {
	fetcher fetch.TextFetcher
	logger  *slog.Logger
}

// NewScriptScanner creates a scanner. A nil logger uses slog.Default().
func NewScriptScanner(f fetch.TextFetcher, logger *slog.Logger) *ScriptScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptScanner{fetcher: f, logger: logger}
}

// Candidates returns the absolute URLs found in the script at rawURL. A script
// that cannot be fetched yields no candidates; the failure is not retried and
// not counted against any error budget.
func (s *ScriptScanner) Candidates(ctx context.Context, rawURL string) []string {
	if s == nil || s.fetcher == nil {
		return nil
	}
	body, err := s.fetcher.FetchText(ctx, rawURL)
	if err != nil {
		s.logger.Debug("script fetch failed", "url", rawURL, "error", err)
		return nil
	}
	found := ExtractEndpoints(body)
	s.logger.Debug("scanned script", "url", rawURL, "candidates", len(found))
	return found
}
