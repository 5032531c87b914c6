// Package parser turns raw RFC 5322 messages received by the capture relay
// back into the email model.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/shineum/smtp-mailer-lite/internal/email"
)

// Parse parses a raw message. Transfer encodings and common charsets are
// decoded; nested multiparts are flattened. The first text/plain and
// text/html parts become the bodies, everything carrying a filename becomes
// an attachment and the rest is skipped with a warning.
func Parse(raw []byte) (*email.Email, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		slog.Warn("unknown charset in message header", "error", err)
	}
	defer mr.Close()

	h := mr.Header
	result := &email.Email{
		RawHeaders: make(map[string][]string),
	}

	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		result.RawHeaders[key] = append(result.RawHeaders[key], fields.Value())
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		result.FromName = from[0].Name
		result.From = from[0].Address
	} else {
		result.From = h.Get("From")
	}
	result.To = addressList(h, "To")
	result.Cc = addressList(h, "Cc")
	result.Bcc = addressList(h, "Bcc")

	if subject, err := h.Subject(); err == nil {
		result.Subject = subject
	} else {
		result.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil {
		result.MessageID = id
	}
	if date, err := h.Date(); err == nil {
		result.Date = date
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}
		if err != nil {
			slog.Warn("unknown charset in message part", "error", err)
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			slog.Warn("failed to read part content", "error", err)
			continue
		}

		switch ph := part.Header.(type) {
		case *gomail.AttachmentHeader:
			ct, _, _ := ph.ContentType()
			filename, _ := ph.Filename()
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    fallbackFilename(filename, ct),
				ContentType: ct,
				Content:     content,
			})
		case *gomail.InlineHeader:
			ct, params, err := ph.ContentType()
			if err != nil || ct == "" {
				ct = "text/plain"
			}
			switch {
			case ct == "text/plain":
				if result.TextBody == "" {
					result.TextBody = string(content)
				}
			case ct == "text/html":
				if result.HtmlBody == "" {
					result.HtmlBody = string(content)
				}
			case params["name"] != "":
				result.Attachments = append(result.Attachments, email.Attachment{
					Filename:    params["name"],
					ContentType: ct,
					Content:     content,
				})
			default:
				slog.Warn("unrecognized MIME part, skipping", "content_type", ct)
			}
		}
	}

	return result, nil
}

func addressList(h gomail.Header, key string) []string {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}

	addrs, err := h.AddressList(key)
	if err != nil {
		// Fall back to a plain comma split for headers net/mail rejects.
		var result []string
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		result = append(result, a.Address)
	}
	return result
}

// fallbackFilename derives a name from the media type when the part has
// none, e.g. "attachment.pdf".
func fallbackFilename(name, contentType string) string {
	if name != "" {
		return name
	}
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}
