package sink

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/shineum/smtp-mailer-lite/internal/parser"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

type state int

const (
	stateConnected state = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

const (
	idleTimeout = 60 * time.Second

	// DefaultMaxMessageSize is used when ServerConfig.MaxMessageSize is zero.
	DefaultMaxMessageSize = 10 * 1024 * 1024
)

type sessionConfig struct {
	hostname   string
	auth       *Authenticator
	provider   provider.Provider
	tlsConfig  *tls.Config
	requireTLS bool
	maxSize    int
}

// session drives the SMTP state machine for one client connection.
type session struct {
	cfg    sessionConfig
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	state  state
	tls    bool
	log    *slog.Logger

	mailFrom string
	rcptTo   []string
}

func newSession(conn net.Conn, cfg sessionConfig) *session {
	return &session{
		cfg:    cfg,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  stateConnected,
		log:    slog.With("remote", conn.RemoteAddr().String()),
	}
}

// authAvailable reports whether AUTH may be offered in the current state.
func (s *session) authAvailable() bool {
	if !s.cfg.auth.Enabled() {
		return false
	}
	return s.tls || !s.cfg.requireTLS
}

func (s *session) handle(ctx context.Context) {
	defer s.conn.Close()

	// Unblock a pending read on shutdown.
	raw := s.conn
	stop := context.AfterFunc(ctx, func() {
		raw.SetDeadline(time.Now())
	})
	defer stop()

	s.reply("220 %s ESMTP mail sink ready", s.cfg.hostname)

	for {
		if err := raw.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			s.log.Error("failed to set connection deadline", "error", err)
			return
		}
		if ctx.Err() != nil {
			s.reply("421 Service shutting down")
			return
		}

		line, err := s.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection read error", "error", err)
			}
			return
		}
		if line == "" {
			continue
		}

		verb, arg := parseCommand(line)
		if s.dispatch(ctx, verb, arg) {
			return
		}
	}
}

// dispatch runs one command and reports whether the session is over.
func (s *session) dispatch(ctx context.Context, verb, arg string) bool {
	switch verb {
	case "EHLO", "HELO":
		s.hello(verb, arg)
	case "STARTTLS":
		return s.startTLS()
	case "AUTH":
		s.authenticate(arg)
	case "MAIL":
		s.mail(arg)
	case "RCPT":
		s.rcpt(arg)
	case "DATA":
		return s.data(ctx)
	case "RSET":
		s.resetTransaction()
		s.reply("250 OK")
	case "NOOP":
		s.reply("250 OK")
	case "QUIT":
		s.reply("221 Bye")
		return true
	default:
		s.reply("500 Unrecognized command")
	}
	return false
}

func (s *session) hello(verb, arg string) {
	if arg == "" {
		s.reply("501 Syntax: %s hostname", verb)
		return
	}

	s.resetTransaction()
	if s.state < stateGreeted {
		s.state = stateGreeted
	}

	if verb == "HELO" {
		s.reply("250 %s Hello %s", s.cfg.hostname, arg)
		return
	}

	lines := []string{fmt.Sprintf("%s Hello %s", s.cfg.hostname, arg)}
	if s.cfg.tlsConfig != nil && !s.tls {
		lines = append(lines, "STARTTLS")
	}
	if s.authAvailable() {
		lines = append(lines, "AUTH PLAIN LOGIN")
	}
	lines = append(lines, fmt.Sprintf("SIZE %d", s.cfg.maxSize), "8BITMIME")
	s.multiline(250, lines)
}

// startTLS upgrades the connection. A failed handshake ends the session.
func (s *session) startTLS() bool {
	switch {
	case s.cfg.tlsConfig == nil:
		s.reply("454 TLS not available")
		return false
	case s.tls:
		s.reply("503 TLS already active")
		return false
	}

	s.reply("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.cfg.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		s.log.Warn("TLS handshake failed", "error", err)
		return true
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tls = true
	s.resetTransaction()
	s.state = stateConnected
	return false
}

func (s *session) authenticate(arg string) {
	switch {
	case s.state < stateGreeted:
		s.reply("503 Send EHLO/HELO first")
		return
	case s.state >= stateAuthOK:
		s.reply("503 Already authenticated")
		return
	case s.cfg.auth.Enabled() && !s.authAvailable():
		s.reply("538 Encryption required for requested authentication mechanism")
		return
	case !s.cfg.auth.Enabled():
		s.reply("503 AUTH not available")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")

	var err error
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		err = s.authPlain(initial)
	case "LOGIN":
		err = s.authLogin()
	default:
		s.reply("504 Unrecognized authentication type")
		return
	}

	switch {
	case errors.Is(err, errAuthCancelled):
		s.reply("501 Authentication cancelled")
	case err != nil:
		s.log.Info("authentication rejected", "mechanism", mechanism)
		s.reply("535 5.7.8 Authentication credentials invalid")
	default:
		s.state = stateAuthOK
		s.reply("235 2.7.0 Authentication successful")
	}
}

var errAuthCancelled = errors.New("authentication cancelled")

func (s *session) authPlain(initial string) error {
	encoded := initial
	if encoded == "" {
		var err error
		if encoded, err = s.challenge(""); err != nil {
			return err
		}
	}
	return s.cfg.auth.VerifyPlain(encoded)
}

func (s *session) authLogin() error {
	// base64 "Username:" and "Password:"
	user, err := s.challenge("VXNlcm5hbWU6")
	if err != nil {
		return err
	}
	pass, err := s.challenge("UGFzc3dvcmQ6")
	if err != nil {
		return err
	}
	return s.cfg.auth.VerifyLogin(user, pass)
}

func (s *session) challenge(prompt string) (string, error) {
	if prompt == "" {
		s.reply("334 ")
	} else {
		s.reply("334 %s", prompt)
	}
	line, err := s.readLine()
	if err != nil {
		return "", err
	}
	if line == "*" {
		return "", errAuthCancelled
	}
	return line, nil
}

func (s *session) mail(arg string) {
	switch {
	case s.state < stateGreeted:
		s.reply("503 Send EHLO/HELO first")
		return
	case s.cfg.auth.Enabled() && s.state < stateAuthOK:
		s.reply("530 5.7.0 Authentication required")
		return
	case s.state >= stateMailFrom:
		s.reply("503 Nested MAIL command")
		return
	}

	addr, ok := pathArg(arg, "FROM:")
	if !ok {
		s.reply("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.reply("250 OK")
}

func (s *session) rcpt(arg string) {
	if s.state < stateMailFrom {
		s.reply("503 Send MAIL FROM first")
		return
	}

	addr, ok := pathArg(arg, "TO:")
	if !ok || addr == "" {
		s.reply("501 Syntax: RCPT TO:<address>")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.reply("250 OK")
}

// data reads the message up to the lone dot, undoing dot-stuffing. An
// oversized message is drained and rejected with 552.
func (s *session) data(ctx context.Context) bool {
	if s.state < stateRcptTo {
		s.reply("503 Send RCPT TO first")
		return false
	}

	s.reply("354 Start mail input; end with <CRLF>.<CRLF>")

	var (
		buf      strings.Builder
		oversize bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.log.Warn("error reading DATA", "error", err)
			return true
		}
		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		if oversize {
			continue
		}
		if buf.Len()+len(line) > s.cfg.maxSize {
			oversize = true
			buf.Reset()
			continue
		}
		buf.WriteString(line)
	}
	defer s.resetTransaction()

	if oversize {
		s.reply("552 5.3.4 Message size exceeds fixed limit")
		return false
	}

	msg, err := parser.Parse([]byte(buf.String()))
	if err != nil {
		s.log.Warn("failed to parse message", "error", err)
		s.reply("550 Failed to process message")
		return false
	}
	if msg.From == "" {
		msg.From = s.mailFrom
	}
	if len(msg.To) == 0 {
		msg.To = s.rcptTo
	}

	if err := s.cfg.provider.Send(ctx, msg); err != nil {
		s.log.Error("provider send failed",
			"provider", s.cfg.provider.Name(),
			"error", err,
		)
		s.reply("451 Temporary failure, please try again later")
		return false
	}

	s.log.Info("message accepted",
		"from", s.mailFrom,
		"rcpt", strings.Join(s.rcptTo, ","),
		"size", buf.Len(),
	)
	s.reply("250 OK message accepted")
	return false
}

// resetTransaction drops the envelope but keeps greeting and auth state.
func (s *session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil
	if s.state > stateAuthOK {
		if s.cfg.auth.Enabled() {
			s.state = stateAuthOK
		} else {
			s.state = stateGreeted
		}
	}
}

func (s *session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *session) reply(format string, args ...any) {
	s.write(fmt.Sprintf(format, args...))
}

func (s *session) multiline(code int, lines []string) {
	for i, l := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		s.writer.WriteString(fmt.Sprintf("%d%s%s\r\n", code, sep, l))
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Debug("failed to flush to client", "error", err)
	}
}

func (s *session) write(line string) {
	if _, err := s.writer.WriteString(line + "\r\n"); err != nil {
		s.log.Debug("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Debug("failed to flush to client", "error", err)
	}
}

func parseCommand(line string) (string, string) {
	verb, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(verb), strings.TrimSpace(arg)
}

// pathArg extracts the address from "FROM:<addr> PARAMS" style arguments.
// The null reverse path "<>" yields an empty address.
func pathArg(arg, prefix string) (string, bool) {
	if len(arg) < len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", false
	}
	rest := strings.TrimSpace(arg[len(prefix):])
	if strings.HasPrefix(rest, "<") {
		end := strings.Index(rest, ">")
		if end < 0 {
			return "", false
		}
		return rest[1:end], true
	}
	addr, _, _ := strings.Cut(rest, " ")
	return addr, addr != ""
}
