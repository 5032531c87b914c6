package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

// shutdownTimeout bounds the wait for in-flight sessions on shutdown.
const shutdownTimeout = 30 * time.Second

// ServerConfig holds the configuration for a sink relay.
type ServerConfig struct {
	// ListenAddr is the address to listen on, e.g. "127.0.0.1:2525".
	ListenAddr string

	// Hostname is announced in the greeting and EHLO reply.
	Hostname string

	// Provider receives every accepted message.
	Provider provider.Provider

	// TLSConfig enables STARTTLS. When nil, STARTTLS is not advertised.
	TLSConfig *tls.Config

	// RequireTLS hides AUTH until the connection is encrypted.
	RequireTLS bool

	// Username and Password configure AUTH. Both empty disables it.
	Username string
	Password string

	// MaxMessageSize limits DATA in bytes. Zero means DefaultMaxMessageSize.
	MaxMessageSize int
}

// Server accepts SMTP connections and hands received messages to the
// configured Provider.
type Server struct {
	config ServerConfig
	auth   *Authenticator

	mu       sync.Mutex
	listener net.Listener

	wg sync.WaitGroup
}

// New creates a Server.
func New(cfg ServerConfig) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.Username, cfg.Password),
	}
}

// Listen binds the listening socket without serving. It lets callers learn
// the chosen port before Serve runs.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled, then waits up to 30
// seconds for in-flight sessions. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("sink: Serve called before Listen")
	}

	slog.Info("mail sink listening",
		"addr", ln.Addr().String(),
		"provider", s.config.Provider.Name(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.config.TLSConfig != nil,
		"require_tls", s.config.RequireTLS,
	)

	stop := context.AfterFunc(ctx, func() {
		slog.Info("shutting down mail sink")
		ln.Close()
	})
	defer stop()

	cfg := sessionConfig{
		hostname:   s.config.Hostname,
		auth:       s.auth,
		provider:   s.config.Provider,
		tlsConfig:  s.config.TLSConfig,
		requireTLS: s.config.RequireTLS,
		maxSize:    s.config.MaxMessageSize,
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.waitForSessions()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Error("accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, cfg).handle(ctx)
		}()
	}
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) waitForSessions() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all sessions completed")
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown timeout reached, forcing close")
	}
}

// Addr returns the listener address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
