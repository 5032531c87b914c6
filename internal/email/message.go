// Package email defines the message model shared by the builder, the
// delivery providers and the capture relay.
package email

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrEncoding reports message content that cannot be represented in a
// mail header or body.
var ErrEncoding = errors.New("message encoding error")

// Email represents one message with all its components.
type Email struct {
	// FromName is the display name of the From header.
	FromName string
	// From is the From header address, also used as the envelope sender.
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
	// Date is stamped at render time when zero.
	Date time.Time
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FromHeader returns the From header value, "Name <address>" when a
// display name is set.
func (e *Email) FromHeader() string {
	if e.FromName == "" {
		return e.From
	}
	return fmt.Sprintf("%s <%s>", e.FromName, e.From)
}

// Validate checks that every header and body field can be encoded.
func (e *Email) Validate() error {
	fields := []struct {
		name   string
		value  string
		header bool
	}{
		{name: "sender name", value: e.FromName, header: true},
		{name: "sender address", value: e.From, header: true},
		{name: "subject", value: e.Subject, header: true},
		{name: "body", value: e.TextBody},
		{name: "html body", value: e.HtmlBody},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s is not valid UTF-8", ErrEncoding, f.name)
		}
		if f.header && strings.ContainsAny(f.value, "\r\n\x00") {
			return fmt.Errorf("%w: %s contains a line break", ErrEncoding, f.name)
		}
	}
	for _, rcpt := range e.To {
		if strings.ContainsAny(rcpt, "\r\n\x00") || !utf8.ValidString(rcpt) {
			return fmt.Errorf("%w: recipient %q", ErrEncoding, rcpt)
		}
	}
	return nil
}
