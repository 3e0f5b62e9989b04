package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/log"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopecrawl",
		Short: "Scope-aware web crawler with JavaScript endpoint discovery",
		Long: `scopecrawl maps the attack surface of a web application.

Starting from one or more seed URLs it follows links and absolute URLs found
in referenced scripts, but only ever requests addresses that match the
include patterns and none of the exclude patterns of a scope.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v warning, -vv info, -vvv debug)")
	cmd.PersistentFlags().String("verbosity", "",
		"Log level: debug, info, warning, error or critical (overrides -v)")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// verbosityFlag resolves --verbosity and -v. It returns ok=false when neither
// was given so that the config file value is kept.
func verbosityFlag(cmd *cobra.Command) (config.Verbosity, bool, error) {
	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		raw, err := flags.GetString("verbosity")
		if err != nil {
			return "", false, err
		}
		v, err := config.ParseVerbosity(raw)
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	if flags.Changed("verbose") {
		n, err := flags.GetCount("verbose")
		if err != nil {
			return "", false, err
		}
		return config.VerbosityFromCount(n), true, nil
	}
	return "", false, nil
}

// newLogger builds the redacting logger used by every command.
func newLogger(cmd *cobra.Command, v config.Verbosity) *slog.Logger {
	asJSON, err := cmd.Flags().GetBool("log-json")
	if err == nil && asJSON {
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), v.Level())
	}
	return log.NewSecureLogger(cmd.ErrOrStderr(), v.Level())
}
