package graph

import (
	"github.com/shineum/smtp-mailer-lite/internal/email"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject      string      `json:"subject"`
	Body         messageBody `json:"body"`
	From         *recipient  `json:"from,omitempty"`
	ToRecipients []recipient `json:"toRecipients"`
	CcRecipients []recipient `json:"ccRecipients,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func recipients(addrs []string) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: addr}})
	}
	return out
}

// buildSendMailRequest converts msg into a sendMail body. The mailer only
// sends plain text, so HTML is used only when there is no text body.
func buildSendMailRequest(msg *email.Email) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: msg.TextBody}
	if msg.TextBody == "" && msg.HtmlBody != "" {
		body = messageBody{ContentType: "html", Content: msg.HtmlBody}
	}

	req := &sendMailRequest{
		Message: sendMailMessage{
			Subject:      msg.Subject,
			Body:         body,
			ToRecipients: recipients(msg.To),
			CcRecipients: recipients(msg.Cc),
		},
	}
	if msg.From != "" {
		req.Message.From = &recipient{EmailAddress: emailAddress{Name: msg.FromName, Address: msg.From}}
	}
	if req.Message.ToRecipients == nil {
		req.Message.ToRecipients = []recipient{}
	}
	return req
}
