package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/smtp-mailer-lite/internal/provider/stdout"
	"github.com/shineum/smtp-mailer-lite/internal/sink"
)

type sinkOptions struct {
	listen     string
	hostname   string
	username   string
	password   string
	certFile   string
	keyFile    string
	requireTLS bool
	maxSize    int
}

func newSinkCmd() *cobra.Command {
	opts := &sinkOptions{}

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a local SMTP relay that prints every message it receives",
		Long: `sink starts a STARTTLS-capable SMTP relay on the local machine. Each
accepted message is printed instead of delivered, so a run can be
rehearsed end to end by pointing smtp_host and smtp_port at it.

Without --cert and --key a self-signed certificate is generated; run the
mailer with --insecure-skip-verify against it.

Example:
  mailer sink --username bot@example.com --password secret
  mailer list.csv local.json --insecure-skip-verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSink(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "127.0.0.1:2525", "address to listen on")
	cmd.Flags().StringVar(&opts.hostname, "hostname", "localhost", "name announced in the greeting")
	cmd.Flags().StringVar(&opts.username, "username", "", "AUTH username (empty with empty password disables AUTH)")
	cmd.Flags().StringVar(&opts.password, "password", "", "AUTH password")
	cmd.Flags().StringVar(&opts.certFile, "cert", "", "PEM certificate file")
	cmd.Flags().StringVar(&opts.keyFile, "key", "", "PEM private key file")
	cmd.Flags().BoolVar(&opts.requireTLS, "require-tls", true, "refuse AUTH before STARTTLS")
	cmd.Flags().IntVar(&opts.maxSize, "max-size", sink.DefaultMaxMessageSize, "maximum message size in bytes")

	return cmd
}

func runSink(cmd *cobra.Command, opts *sinkOptions) error {
	tlsConfig, err := sink.LoadOrGenerateTLS(opts.certFile, opts.keyFile)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	tlsMode := "self-signed"
	if opts.certFile != "" {
		tlsMode = "file"
	}

	srv := sink.New(sink.ServerConfig{
		ListenAddr:     opts.listen,
		Hostname:       opts.hostname,
		Provider:       stdout.NewWithWriter(cmd.OutOrStdout()),
		TLSConfig:      tlsConfig,
		RequireTLS:     opts.requireTLS,
		Username:       opts.username,
		Password:       opts.password,
		MaxMessageSize: opts.maxSize,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting mail sink", "listen", opts.listen, "tls_mode", tlsMode)

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	slog.Info("mail sink stopped")
	return nil
}
