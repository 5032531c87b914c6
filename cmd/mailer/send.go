package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/mailer"
	"github.com/shineum/smtp-mailer-lite/internal/runlog"
)

func runSend(cmd *cobra.Command, args []string, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	csvFile := argOr(args, 0, defaultRecipients)
	configFile := argOr(args, 1, defaultConfig)

	fmt.Fprintln(out, "Email Sender Application")
	fmt.Fprintln(out, strings.Repeat("-", 40))

	if !fileExists(csvFile) {
		fmt.Fprintf(out, "Error: CSV file '%s' not found!\n", csvFile)
		fmt.Fprintln(out, "Please create a CSV file with email addresses or specify correct path.")
		return errReported
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return critical(out, err, config.DefaultLogFile)
	}

	printConfig(out, csvFile, configFile, cfg)

	if !opts.yes && !confirm(cmd.InOrStdin(), out) {
		fmt.Fprintln(out, "Operation cancelled by user.")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, err := newProvider(ctx, cfg, out, opts.insecure)
	if err != nil {
		return critical(out, err, cfg.LogFile)
	}

	runLog := runlog.OpenOrConsole(cfg.LogFile, out)

	_, err = mailer.New(mailer.Options{
		Config:   cfg,
		Provider: prov,
		Log:      runLog,
	}).Run(ctx, csvFile)

	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "\n\nOperation interrupted by user (Ctrl+C)")
		fmt.Fprintf(out, "Check %s for partial results.\n", cfg.LogFile)
		return nil
	case err != nil:
		return critical(out, err, cfg.LogFile)
	}
	return nil
}

func printConfig(w io.Writer, csvFile, configFile string, cfg *config.Config) {
	fmt.Fprintln(w, "\nConfiguration:")
	fmt.Fprintf(w, "- CSV file: %s\n", csvFile)
	fmt.Fprintf(w, "- Config file: %s\n", configFile)
	fmt.Fprintf(w, "- SMTP Host: %s:%d\n", cfg.SMTPHost, cfg.SMTPPort)
	fmt.Fprintf(w, "- Sender: %s\n", cfg.Username)
	fmt.Fprintf(w, "- Subject: %s\n", cfg.Subject)
	fmt.Fprintf(w, "- Delay: %d seconds between emails\n", cfg.DelaySeconds)
	if cfg.Transport != config.TransportSMTP {
		fmt.Fprintf(w, "- Transport: %s\n", cfg.Transport)
	}
	fmt.Fprintf(w, "- Log file: %s\n", cfg.LogFile)
}

// confirm asks for confirmation and reports whether the answer was y or
// yes. A closed input counts as no.
func confirm(r io.Reader, w io.Writer) bool {
	fmt.Fprint(w, "\nDo you want to proceed? (y/n): ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(w)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func critical(w io.Writer, err error, logFile string) error {
	fmt.Fprintf(w, "\nCritical error: %v\n", err)
	fmt.Fprintf(w, "Check %s for detailed error information.\n", logFile)
	return errReported
}
