package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/report"
)

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect inventories saved with crawl --save",
		Long: `History reads the inventories stored by 'scopecrawl crawl --save'.

Examples:
  # List the ten most recent runs
  scopecrawl history list -n 10

  # Print the addresses of run 4 as Markdown
  scopecrawl history show 4 -m

  # Show which addresses appeared or disappeared between two runs
  scopecrawl history diff 3 4`,
	}

	cmd.PersistentFlags().String("db", config.XDGDataDir(), "Directory holding the history database")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

// openHistory opens the database named by --db. It never creates one.
func openHistory(cmd *cobra.Command) (*database.InventoryDB, error) {
	dir, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func parseRunID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run ID %q", raw)
	}
	return id, nil
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeRunList(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of runs (0 lists all)")
	return cmd
}

func writeRunList(w io.Writer, runs []database.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No saved runs.")
		fmt.Fprintln(w, "\nUse 'scopecrawl crawl --save' to store an inventory.")
		return
	}

	fmt.Fprintf(w, "  %-6s  %-20s  %-9s  %7s  %7s  %7s  %s\n", "ID", "Started", "Status", "Fetched", "Pending", "Dropped", "Seeds")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 90))
	for _, r := range runs {
		status := "complete"
		if r.Stopped {
			status = "stopped"
		}
		fmt.Fprintf(w, "  %-6d  %-20s  %-9s  %7d  %7d  %7d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			status,
			r.Fetched, r.Pending, r.Dropped,
			strings.Join(r.Seeds, ", "),
		)
	}
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the inventory of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			asMarkdown, err := cmd.Flags().GetBool("markdown")
			if err != nil {
				return err
			}
			if asJSON && asMarkdown {
				return config.ErrConflictingReportFormats
			}
			details, err := cmd.Flags().GetBool("details")
			if err != nil {
				return err
			}

			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			inv, err := db.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}

			var w report.Writer
			switch {
			case asJSON:
				w = report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint(), report.WithVersion(getVersion()))
			case asMarkdown:
				w = report.NewMarkdownWriter(cmd.OutOrStdout())
			default:
				w = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(details))
			}
			_, err = w.Write(inv)
			return err
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output as Markdown")
	cmd.Flags().BoolP("details", "d", false, "List variants and fingerprints of each address")
	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from-run-id> <to-run-id>",
		Short: "Show addresses added and removed between two saved runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			to, err := parseRunID(args[1])
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			asMarkdown, err := cmd.Flags().GetBool("markdown")
			if err != nil {
				return err
			}
			if asJSON && asMarkdown {
				return config.ErrConflictingReportFormats
			}

			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			diff, err := db.DiffRuns(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return writeDiffJSON(out, diff)
			case asMarkdown:
				return writeDiffMarkdown(out, diff)
			default:
				writeDiffText(out, diff)
				return nil
			}
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output as Markdown")
	return cmd
}

type diffJSON struct {
	From    int64    `json:"from"`
	To      int64    `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Common  int      `json:"common"`
}

func writeDiffJSON(w io.Writer, d *database.RunDiff) error {
	doc := diffJSON{From: d.From, To: d.To, Added: d.Added, Removed: d.Removed, Common: d.Common}
	if doc.Added == nil {
		doc.Added = []string{}
	}
	if doc.Removed == nil {
		doc.Removed = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeDiffText(w io.Writer, d *database.RunDiff) {
	fmt.Fprintf(w, "Run %d -> run %d: %d added, %d removed, %d unchanged\n",
		d.From, d.To, len(d.Added), len(d.Removed), d.Common)
	for _, a := range d.Added {
		fmt.Fprintf(w, "  + %s\n", a)
	}
	for _, r := range d.Removed {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func writeDiffMarkdown(w io.Writer, d *database.RunDiff) error {
	md := markdown.NewMarkdown(w)
	md.H1f("Inventory Diff: run %d to run %d", d.From, d.To)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Change", "Addresses"},
		Rows: [][]string{
			{"Added", strconv.Itoa(len(d.Added))},
			{"Removed", strconv.Itoa(len(d.Removed))},
			{"Unchanged", strconv.Itoa(d.Common)},
		},
	})
	md.PlainText("")

	if len(d.Added) > 0 {
		md.H2f("Added (%d)", len(d.Added))
		md.PlainText("")
		md.BulletList(codeSpans(d.Added)...)
		md.PlainText("")
	}
	if len(d.Removed) > 0 {
		md.H2f("Removed (%d)", len(d.Removed))
		md.PlainText("")
		md.BulletList(codeSpans(d.Removed)...)
		md.PlainText("")
	}
	if len(d.Added) == 0 && len(d.Removed) == 0 {
		md.Note("Both runs found the same addresses.")
	}
	return md.Build()
}

func codeSpans(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return out
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
			return nil
		},
	}
}
