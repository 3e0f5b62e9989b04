package report

import (
	"io"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Writer renders a crawl inventory.
type Writer interface {
	// Write outputs inv and returns the number of bytes written.
	Write(inv *model.Inventory) (int, error)
}

// MultiWriter writes the same inventory to several Writers, for example the
// terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs inv to every Writer in order and stops at the first error.
func (m *MultiWriter) Write(inv *model.Inventory) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(inv)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// summary is the per-status tally shared by the writers.
type summary struct {
	Total   int `json:"total"`
	Fetched int `json:"fetched"`
	Pending int `json:"pending"`
	Dropped int `json:"dropped"`
}

func summarize(inv *model.Inventory) summary {
	return summary{
		Total:   len(inv.Records),
		Fetched: inv.Count(model.StatusFetched),
		Pending: inv.Count(model.StatusPending),
		Dropped: inv.Count(model.StatusDropped),
	}
}

// statusText describes how the crawl ended.
func statusText(inv *model.Inventory) string {
	if inv.Stopped {
		return "Stopped (partial results)"
	}
	return "Complete"
}

// truncateString shortens s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
