package email

import (
	"bytes"
	"fmt"
	"io"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/shineum/smtp-mailer-lite/internal/config"
)

// Build renders the fixed template of cfg into a message for one
// recipient. The body is used verbatim; nothing is substituted per
// recipient.
func Build(rcpt string, cfg *config.Config) *Email {
	return &Email{
		FromName: cfg.SenderName,
		From:     cfg.Username,
		To:       []string{rcpt},
		Subject:  cfg.Subject,
		TextBody: cfg.Body,
	}
}

// Render produces the RFC 5322 representation of a single-part plain-text
// message. HTML bodies and attachments are not rendered. Body line breaks
// are written as CRLF.
func Render(msg *Email) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var h gomail.Header
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*gomail.Address{{Name: msg.FromName, Address: msg.From}})

	to := make([]*gomail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &gomail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	if len(msg.Cc) > 0 {
		cc := make([]*gomail.Address, 0, len(msg.Cc))
		for _, addr := range msg.Cc {
			cc = append(cc, &gomail.Address{Address: addr})
		}
		h.SetAddressList("Cc", cc)
	}

	h.SetSubject(msg.Subject)
	if msg.MessageID != "" {
		h.SetMessageID(msg.MessageID)
	} else if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if _, err := io.WriteString(w, msg.TextBody); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	return buf.Bytes(), nil
}
