// Package sink implements a small SMTP relay that accepts STARTTLS and
// AUTH the way a real submission relay does and hands every received
// message to a provider. It is used for dry runs of the mailer and as the
// peer in transport tests.
package sink

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/emersion/go-sasl"
)

var errBadCredentials = errors.New("invalid credentials")

// Authenticator checks AUTH credentials against a single configured account.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator. With an empty username and
// password authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled reports whether credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" || a.password != ""
}

// Check compares user and pass in constant time.
func (a *Authenticator) Check(user, pass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password))
	if userOK&passOK != 1 {
		return errBadCredentials
	}
	return nil
}

// VerifyPlain verifies a base64 AUTH PLAIN response
// (authzid NUL authcid NUL password).
func (a *Authenticator) VerifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.New("invalid base64 encoding")
	}

	server := sasl.NewPlainServer(func(_, username, password string) error {
		return a.Check(username, password)
	})
	_, _, err = server.Next(decoded)
	return err
}

// VerifyLogin verifies the two base64 answers of an AUTH LOGIN exchange.
func (a *Authenticator) VerifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return errors.New("invalid base64 username")
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return errors.New("invalid base64 password")
	}
	return a.Check(string(user), string(pass))
}
