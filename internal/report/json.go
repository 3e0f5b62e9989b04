package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/scopecrawl/internal/model"
)

// JSONWriter outputs the inventory as JSON for other tools.
//
// Design decision: The inventory is written whole inside a small envelope
// (version, summary, inventory) rather than as a stream of records because:
//  1. Consumers such as jq get the counts without walking every record
//  2. The same document shape is reprinted by "history show --json"
//  3. Record order is already fixed by Inventory.Sort, so diffs stay stable
//
// Parameter sets and anchors are part of each address, so the output lists
// every variant seen for an identity.
type JSONWriter struct {
	baseWriter

	// indent enables indented output. When false, output is compact.
	indent bool

	// indentPrefix is prepended to every line of indented output.
	indentPrefix string

	// indentString is one level of indentation, usually two spaces.
	indentString string

	// version is the scopecrawl version recorded in the envelope.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the generating version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter. Version is omitted when
// the writer was built without WithVersion.
type JSONReport struct {
	Version   string           `json:"version,omitempty"`
	Summary   summary          `json:"summary"`
	Inventory *model.Inventory `json:"inventory"`
}

// Write implements Writer.
func (w *JSONWriter) Write(inv *model.Inventory) (int, error) {
	doc := JSONReport{
		Version:   w.version,
		Summary:   summarize(inv),
		Inventory: inv,
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
