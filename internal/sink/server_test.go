package sink

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg ServerConfig) (*Server, context.CancelFunc) {
	t.Helper()

	cfg.ListenAddr = "127.0.0.1:0"
	srv := New(cfg)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv, cancel
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	cert, pool, err := SelfSigned()
	require.NoError(t, err)

	rec := &recorder{}
	srv, _ := startServer(t, ServerConfig{
		Provider:   rec,
		TLSConfig:  &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		RequireTLS: true,
		Username:   "bot@example.com",
		Password:   "secret",
	})
	require.NotEmpty(t, srv.Addr())

	c, err := gosmtp.DialStartTLS(srv.Addr(), &tls.Config{RootCAs: pool, ServerName: "localhost"})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Auth(sasl.NewPlainClient("", "bot@example.com", "secret")))

	body := "From: Bot <bot@example.com>\r\nTo: alice@test.com\r\nSubject: Hi\r\n\r\nHello Alice\r\n"
	require.NoError(t, c.SendMail("bot@example.com", []string{"alice@test.com"}, strings.NewReader(body)))
	require.NoError(t, c.Quit())

	msgs := rec.received()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bot", msgs[0].FromName)
	assert.Equal(t, []string{"alice@test.com"}, msgs[0].To)
	assert.Equal(t, "Hello Alice\r\n", msgs[0].TextBody)
}

func TestServer_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv, _ := startServer(t, ServerConfig{
		Provider: &recorder{},
		Username: "bot@example.com",
		Password: "secret",
	})

	c, err := gosmtp.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	err = c.Auth(sasl.NewPlainClient("", "bot@example.com", "wrong"))
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 535, smtpErr.Code)
}

func TestServer_Defaults(t *testing.T) {
	t.Parallel()

	srv := New(ServerConfig{})
	assert.Equal(t, "localhost", srv.config.Hostname)
	assert.Equal(t, DefaultMaxMessageSize, srv.config.MaxMessageSize)
	assert.Empty(t, srv.Addr())
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServer_ListenError(t *testing.T) {
	t.Parallel()

	srv := New(ServerConfig{ListenAddr: "256.0.0.1:bad", Provider: &recorder{}})
	assert.Error(t, srv.ListenAndServe(context.Background()))
}
