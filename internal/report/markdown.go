package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/scopecrawl/internal/model"
)

// maxPieSlices bounds the host chart; smaller hosts are folded into "other".
const maxPieSlices = 8

// MarkdownWriter outputs the inventory as GitHub-flavored Markdown with
// mermaid charts, for pasting into an engagement report.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(inv *model.Inventory) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, inv)
	w.writeSummary(md, inv)
	w.writeHosts(md, inv)
	w.writeAddresses(md, inv)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Inventory generated by [scopecrawl](https://github.com/nao1215/scopecrawl)*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, inv *model.Inventory) {
	md.H1("scopecrawl Inventory")
	md.PlainText("")

	seeds := make([]string, len(inv.Seeds))
	for i, s := range inv.Seeds {
		seeds[i] = "`" + s + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seeds", strings.Join(seeds, "<br>")},
			{"Started", inv.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", inv.Duration().Round(1e6).String()},
			{"Status", statusText(inv)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, inv *model.Inventory) {
	s := summarize(inv)

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"Fetched", strconv.Itoa(s.Fetched)},
			{"Pending", strconv.Itoa(s.Pending)},
			{"Dropped", strconv.Itoa(s.Dropped)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		chart := piechart.NewPieChart(io.Discard,
			piechart.WithTitle("Address Status"),
			piechart.WithShowData(true),
		)
		for _, slice := range []struct {
			label string
			n     int
		}{{"Fetched", s.Fetched}, {"Pending", s.Pending}, {"Dropped", s.Dropped}} {
			if slice.n > 0 {
				chart.LabelAndIntValue(slice.label, uint64(slice.n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case inv.Stopped:
		md.Warningf("The crawl was stopped before the frontier drained. %d address(es) were never fetched.", s.Pending)
	case s.Dropped > 0:
		md.Importantf("%d address(es) were dropped after repeated transport failures.", s.Dropped)
	case s.Total == 0:
		md.Note("No addresses were recorded.")
	default:
		md.Tip("Every in-scope address reachable from the seeds was fetched.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, inv *model.Inventory) {
	counts := inv.HostCounts()
	if len(counts) == 0 {
		return
	}

	type hostCount struct {
		host string
		n    int
	}
	hosts := make([]hostCount, 0, len(counts))
	for h, n := range counts {
		hosts = append(hosts, hostCount{h, n})
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].n != hosts[j].n {
			return hosts[i].n > hosts[j].n
		}
		return hosts[i].host < hosts[j].host
	})

	md.H2("Hosts")
	md.PlainText("")

	rows := make([][]string, len(hosts))
	for i, h := range hosts {
		rows[i] = []string{"`" + h.host + "`", strconv.Itoa(h.n)}
	}
	md.Table(markdown.TableSet{Header: []string{"Host", "Addresses"}, Rows: rows})
	md.PlainText("")

	if len(hosts) < 2 {
		return
	}
	chart := piechart.NewPieChart(io.Discard,
		piechart.WithTitle("Addresses per Host"),
		piechart.WithShowData(true),
	)
	other := 0
	for i, h := range hosts {
		if i >= maxPieSlices-1 && len(hosts) > maxPieSlices {
			other += h.n
			continue
		}
		chart.LabelAndIntValue(h.host, uint64(h.n))
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAddresses(md *markdown.Markdown, inv *model.Inventory) {
	md.H2("Addresses")
	md.PlainText("")

	if len(inv.Records) == 0 {
		md.PlainText("No addresses recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(inv.Records))
	for i, r := range inv.Records {
		rows[i] = []string{
			"`" + truncateString(r.Address.Pure(), 100) + "`",
			string(r.Status),
			strconv.Itoa(len(r.Address.ParamSets())),
			strconv.Itoa(len(r.Address.Anchors())),
			strconv.Itoa(len(r.Fingerprints)),
			strconv.Itoa(r.Errors),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Status", "Param sets", "Anchors", "Fingerprints", "Errors"},
		Rows:   rows,
	})
	md.PlainText("")
}
