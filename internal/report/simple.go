package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nao1215/scopecrawl/internal/model"
)

// SimpleWriter prints a plain-text inventory for the terminal: a summary,
// per-host counts and one line per identity.
type SimpleWriter struct {
	baseWriter

	// verbose adds every recorded variant and fingerprint under each address.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists variants and fingerprints for each address.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(inv *model.Inventory) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, inv)
	w.writeHosts(&sb, inv)
	w.writeAddresses(&sb, inv)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, inv *model.Inventory) {
	s := summarize(inv)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       SCOPECRAWL INVENTORY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seeds:     %s\n", strings.Join(inv.Seeds, ", "))
	fmt.Fprintf(sb, "Started:   %s\n", inv.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", inv.Duration().Round(1e6))
	fmt.Fprintf(sb, "Status:    %s\n", statusText(inv))
	fmt.Fprintf(sb, "Addresses: %d (fetched %d, pending %d, dropped %d)\n\n", s.Total, s.Fetched, s.Pending, s.Dropped)
}

func (w *SimpleWriter) writeHosts(sb *strings.Builder, inv *model.Inventory) {
	counts := inv.HostCounts()
	if len(counts) == 0 {
		return
	}
	section(sb, "HOSTS")

	hosts := make([]string, 0, len(counts))
	for h := range counts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		fmt.Fprintf(sb, "  %-50s %6d\n", h, counts[h])
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAddresses(sb *strings.Builder, inv *model.Inventory) {
	section(sb, "ADDRESSES")

	if len(inv.Records) == 0 {
		sb.WriteString("  No addresses\n\n")
		return
	}

	for _, r := range inv.Records {
		fmt.Fprintf(sb, "  [%s] %s", statusIndicator(r.Status), r.Address.Pure())
		if r.Errors > 0 {
			fmt.Fprintf(sb, "  (%d errors)", r.Errors)
		}
		sb.WriteString("\n")

		if !w.verbose {
			continue
		}
		for _, set := range r.Address.ParamSets() {
			fmt.Fprintf(sb, "        ?%s\n", set.Encode())
		}
		for _, anchor := range r.Address.Anchors() {
			fmt.Fprintf(sb, "        #%s\n", anchor)
		}
		for _, fp := range r.Fingerprints {
			fmt.Fprintf(sb, "        = %s\n", fp)
		}
	}
	sb.WriteString("\n")
}

func statusIndicator(s model.RecordStatus) string {
	switch s {
	case model.StatusFetched:
		return "+"
	case model.StatusPending:
		return "?"
	case model.StatusDropped:
		return "x"
	default:
		return " "
	}
}
