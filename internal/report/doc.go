// Package report renders a crawl inventory.
//
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: a JSON document for other tools
//   - MarkdownWriter: Markdown tables with mermaid pie charts
//
// All writers implement Writer and can be combined with MultiWriter.
package report
