package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/sink"
)

// The commands install a global slog default, so these tests do not run
// in parallel.

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeConfig(t *testing.T, dir string, overrides map[string]any) string {
	t.Helper()
	cfg := map[string]any{
		"smtp_host":     "localhost",
		"smtp_port":     2525,
		"username":      "bot@example.com",
		"password":      "secret",
		"sender_name":   "Automated Mailer",
		"subject":       "Quarterly update",
		"body":          "Hello from the mailer.",
		"delay_seconds": 0,
		"transport":     "stdout",
		"log_file":      filepath.Join(dir, "mail_log.txt"),
	}
	for k, v := range overrides {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	return writeFile(t, dir, "config.json", string(data))
}

func TestSend_DryRun(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "email\nalice@test.com\nbad-address\nbob@test.com,Bob\nalice@test.com\n")
	cfgPath := writeConfig(t, dir, nil)

	out, err := execute(t, "", csv, cfgPath, "--yes")
	require.NoError(t, err)

	assert.Contains(t, out, "Email Sender Application\n"+strings.Repeat("-", 40)+"\n")
	assert.Contains(t, out, "- SMTP Host: localhost:2525\n")
	assert.Contains(t, out, "- Sender: bot@example.com\n")
	assert.Contains(t, out, "- Delay: 0 seconds between emails\n")
	assert.Contains(t, out, "- Transport: stdout\n")
	assert.Contains(t, out, "Subject: Quarterly update\n")
	assert.Contains(t, out, "alice@test.com | SENT")
	assert.Contains(t, out, "bob@test.com | SENT")
	assert.Contains(t, out, "bad-address | INVALID EMAIL")
	assert.Contains(t, out, "alice@test.com | DUPLICATE")
	assert.Contains(t, out, "Successfully sent: 2\n")
	assert.NotContains(t, out, "Do you want to proceed?")

	logData, err := os.ReadFile(filepath.Join(dir, "mail_log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "INFO | === Email Sending Process Started ===")
	assert.Contains(t, string(logData), "INFO | Duplicate emails: 1")
}

func TestSend_ConfirmationDeclined(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\n")
	cfgPath := writeConfig(t, dir, nil)

	out, err := execute(t, "n\n", csv, cfgPath)
	require.NoError(t, err)

	assert.Contains(t, out, "\nDo you want to proceed? (y/n): ")
	assert.True(t, strings.HasSuffix(out, "Operation cancelled by user.\n"))
	assert.NoFileExists(t, filepath.Join(dir, "mail_log.txt"))
}

func TestSend_ConfirmationAccepted(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\n")
	cfgPath := writeConfig(t, dir, nil)

	out, err := execute(t, " YES \n", csv, cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "alice@test.com | SENT")
}

func TestSend_MissingRecipientFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope.csv")

	out, err := execute(t, "", missing)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "Error: CSV file '"+missing+"' not found!\n")
	assert.Contains(t, out, "Please create a CSV file with email addresses or specify correct path.\n")
}

func TestSend_BadConfig(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\n")
	cfgPath := writeFile(t, dir, "config.json", `{"smtp_host": "localhost"}`)

	out, err := execute(t, "", csv, cfgPath, "--yes")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "\nCritical error: ")
	assert.Contains(t, out, `"smtp_port"`)
	assert.Contains(t, out, "Check mail_log.txt for detailed error information.\n")
}

func TestSend_UnopenableLogFileFallsBackToConsole(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\n")
	logPath := filepath.Join(dir, "missing", "mail_log.txt")
	cfgPath := writeConfig(t, dir, map[string]any{"log_file": logPath})

	out, err := execute(t, "", csv, cfgPath, "--yes")
	require.NoError(t, err)

	assert.Contains(t, out, "Warning: Could not setup logging: ")
	assert.Contains(t, out, "alice@test.com | SENT")
	assert.Contains(t, out, "Successfully sent: 1\n")
	assert.NotContains(t, out, "Critical error")
	assert.NoFileExists(t, logPath)
}

func TestSend_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "", "--log-level", "loud", "version")
	assert.Error(t, err)
}

type captured struct {
	mu   sync.Mutex
	msgs []*email.Email
}

func (c *captured) Send(_ context.Context, msg *email.Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captured) Name() string { return "captured" }

func TestSend_ThroughLocalSink(t *testing.T) {
	cert, _, err := sink.SelfSigned()
	require.NoError(t, err)

	rec := &captured{}
	srv := sink.New(sink.ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Provider:   rec,
		TLSConfig:  &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		RequireTLS: true,
		Username:   "bot@example.com",
		Password:   "secret",
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\nbob@test.com\n")
	cfgPath := writeConfig(t, dir, map[string]any{
		"smtp_host": host,
		"smtp_port": port,
		"transport": "smtp",
	})

	out, err := execute(t, "", csv, cfgPath, "--yes", "--insecure-skip-verify")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@test.com | SENT")
	assert.Contains(t, out, "bob@test.com | SENT")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, "Quarterly update", rec.msgs[0].Subject)
	assert.Equal(t, []string{"bob@test.com"}, rec.msgs[1].To)
}

func TestSend_WrongRelayPasswordIsRecordedNotFatal(t *testing.T) {
	cert, _, err := sink.SelfSigned()
	require.NoError(t, err)

	srv := sink.New(sink.ServerConfig{
		ListenAddr: "127.0.0.1:0",
		Provider:   &captured{},
		TLSConfig:  &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		Username:   "bot@example.com",
		Password:   "other",
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	dir := t.TempDir()
	csv := writeFile(t, dir, "emails.csv", "alice@test.com\n")
	cfgPath := writeConfig(t, dir, map[string]any{
		"smtp_host": host,
		"smtp_port": port,
		"transport": "smtp",
	})

	out, err := execute(t, "", csv, cfgPath, "--yes", "--insecure-skip-verify")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@test.com | FAILED | Authentication Failed - Check credentials")
	assert.Contains(t, out, "Failed sends: 1\n")
}
