// Package smtp implements a Provider that submits messages to an
// authenticated SMTP relay over STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

// ProviderConfig holds the relay settings.
type ProviderConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLSConfig is used for the STARTTLS upgrade. When nil, the system
	// roots are trusted and Host is the expected server name.
	TLSConfig *tls.Config
}

// Provider opens one relay connection per message: connect, STARTTLS,
// AUTH PLAIN, MAIL/RCPT/DATA, QUIT. There are no retries and no timeouts
// beyond the platform defaults.
type Provider struct {
	cfg ProviderConfig
}

// New creates an SMTP Provider.
func New(cfg ProviderConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Addr returns the relay address.
func (p *Provider) Addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

// Send delivers msg with msg.From as the envelope sender and msg.To as the
// envelope recipients.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := email.Render(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		return provider.ConnectError(err)
	}

	// NewClientStartTLS reads the greeting, sends EHLO and upgrades; a
	// relay without STARTTLS is refused.
	c, err := gosmtp.NewClientStartTLS(conn, p.tlsConfig())
	if err != nil {
		conn.Close()
		return provider.Protocol(err)
	}
	defer c.Close()

	if ok, _ := c.Extension("AUTH"); !ok {
		return provider.Protocol(errors.New("SMTP AUTH extension not supported by server"))
	}
	if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
		return classifyAuth(err)
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return provider.Protocol(err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return provider.Protocol(err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return provider.Protocol(err)
	}
	if _, err := w.Write(raw); err != nil {
		return provider.Protocol(fmt.Errorf("failed to write message data: %w", err))
	}
	if err := w.Close(); err != nil {
		return provider.Protocol(err)
	}

	if err := c.Quit(); err != nil {
		return provider.Protocol(err)
	}
	return nil
}

func (p *Provider) tlsConfig() *tls.Config {
	if p.cfg.TLSConfig != nil {
		return p.cfg.TLSConfig
	}
	return &tls.Config{
		ServerName: p.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}

// classifyAuth treats any reply the server gives to AUTH as a credential
// rejection; I/O failures stay protocol errors.
func classifyAuth(err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return provider.AuthError(err)
	}
	return provider.Protocol(err)
}
