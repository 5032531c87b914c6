package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// errReported marks a failure whose message has already been printed.
var errReported = errors.New("error already reported")

const (
	defaultRecipients = "emails.csv"
	defaultConfig     = "config.json"
)

type rootOptions struct {
	logLevel string
	yes      bool
	insecure bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mailer [recipients] [config]",
		Short: "Send a templated email to every address in a recipient file",
		Long: `mailer reads email addresses from a CSV or plain text file, drops invalid
and duplicate entries, and sends the configured message to each remaining
address through an authenticated STARTTLS relay, pausing between sends.

Every outcome is appended to the run log and echoed to the console.

Example:
  mailer                              # emails.csv with config.json
  mailer list.csv settings.yaml       # explicit files
  mailer list.csv --yes               # skip the confirmation prompt`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogger(cmd.ErrOrStderr(), opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "diagnostic log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "send without asking for confirmation")
	cmd.Flags().BoolVar(&opts.insecure, "insecure-skip-verify", false, "do not verify the relay certificate (local sink rehearsals only)")

	cmd.AddCommand(newSinkCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogger installs a charm logger as the slog default.
func setupLogger(w io.Writer, level string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "mailer",
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// argOr returns args[i] or fallback when it is absent.
func argOr(args []string, i int, fallback string) string {
	if len(args) > i && args[i] != "" {
		return args[i]
	}
	return fallback
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
