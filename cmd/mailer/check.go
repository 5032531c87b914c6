package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shineum/smtp-mailer-lite/internal/config"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [config]",
		Short: "Validate a configuration and print the resolved settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(argOr(args, 0, defaultConfig))
			if err != nil {
				return err
			}
			printResolved(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printResolved(w io.Writer, cfg *config.Config) {
	source := cfg.Source
	if source == "" {
		source = "environment"
	}
	fmt.Fprintf(w, "source:        %s\n", source)
	fmt.Fprintf(w, "transport:     %s\n", cfg.Transport)
	fmt.Fprintf(w, "smtp:          %s\n", cfg.Addr())
	fmt.Fprintf(w, "username:      %s\n", cfg.Username)
	fmt.Fprintf(w, "password:      %s\n", mask(cfg.Password))
	fmt.Fprintf(w, "sender name:   %s\n", cfg.SenderName)
	fmt.Fprintf(w, "subject:       %s\n", cfg.Subject)
	fmt.Fprintf(w, "delay:         %s\n", cfg.Delay())
	fmt.Fprintf(w, "log file:      %s\n", cfg.LogFile)

	switch cfg.Transport {
	case config.TransportSES:
		fmt.Fprintf(w, "ses region:    %s\n", cfg.SES.Region)
		fmt.Fprintf(w, "ses key id:    %s\n", mask(cfg.SES.AccessKeyID))
	case config.TransportGraph:
		fmt.Fprintf(w, "graph tenant:  %s\n", cfg.Graph.TenantID)
		fmt.Fprintf(w, "graph client:  %s\n", cfg.Graph.ClientID)
		fmt.Fprintf(w, "graph secret:  %s\n", mask(cfg.Graph.ClientSecret))
	}
	fmt.Fprintln(w, "configuration OK")
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return strings.Repeat("*", 8)
}
