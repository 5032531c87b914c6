package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
	"github.com/shineum/smtp-mailer-lite/internal/provider/graph"
	"github.com/shineum/smtp-mailer-lite/internal/provider/ses"
	"github.com/shineum/smtp-mailer-lite/internal/provider/smtp"
	"github.com/shineum/smtp-mailer-lite/internal/provider/stdout"
)

// newProvider builds the delivery backend named by cfg.Transport. The
// stdout transport prints to out.
func newProvider(ctx context.Context, cfg *config.Config, out io.Writer, insecure bool) (provider.Provider, error) {
	switch cfg.Transport {
	case config.TransportSMTP, "":
		slog.Info("using SMTP relay", "addr", cfg.Addr(), "insecure_skip_verify", insecure)
		pc := smtp.ProviderConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Username,
			Password: cfg.Password,
		}
		if insecure {
			pc.TLSConfig = &tls.Config{
				ServerName:         cfg.SMTPHost,
				InsecureSkipVerify: true, //nolint:gosec // opt-in for local rehearsals
				MinVersion:         tls.VersionTLS12,
			}
		}
		return smtp.New(pc), nil

	case config.TransportSES:
		slog.Info("using AWS SES provider", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.ProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.TransportGraph:
		slog.Info("using Microsoft Graph provider", "tenant_id", cfg.Graph.TenantID)
		return graph.New(graph.ProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
		}), nil

	case config.TransportStdout:
		slog.Info("using stdout provider")
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
