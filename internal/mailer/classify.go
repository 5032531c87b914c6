package mailer

import (
	"errors"

	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

// Failure reasons recorded in the run log.
const (
	ReasonAuth       = "Authentication Failed - Check credentials"
	ReasonConnection = "Connection Error"
	protocolPrefix   = "SMTP Error: "
)

// Classify maps a send error to the reason logged with a FAILED status.
func Classify(err error) string {
	var protoErr *provider.ProtocolError
	switch {
	case errors.Is(err, provider.ErrAuthFailed):
		return ReasonAuth
	case errors.Is(err, provider.ErrConnection):
		return ReasonConnection
	case errors.As(err, &protoErr):
		return protocolPrefix + protoErr.Error()
	default:
		return err.Error()
	}
}
