// Package provider defines the interface for email delivery backends and
// the error classes every backend reports failures with.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// One Send call performs the complete submission of one message: connect,
// secure, authenticate, submit and disconnect.
type Provider interface {
	// Send delivers an email message through this provider.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}

var (
	// ErrAuthFailed is returned when the remote service rejects the
	// configured credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConnection is returned when no connection to the remote service
	// could be established.
	ErrConnection = errors.New("connection failed")
)

// ProtocolError wraps any other transport or protocol level failure
// reported by the remote service.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return e.Err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AuthError marks err as a credential rejection.
func AuthError(err error) error {
	return fmt.Errorf("%w: %w", ErrAuthFailed, err)
}

// ConnectError marks err as a connection establishment failure.
func ConnectError(err error) error {
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// Protocol marks err as a transport or protocol failure.
func Protocol(err error) error {
	return &ProtocolError{Err: err}
}
