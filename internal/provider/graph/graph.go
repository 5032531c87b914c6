// Package graph implements a Provider that sends messages through the
// Microsoft Graph sendMail endpoint with OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	graphScope      = "https://graph.microsoft.com/.default"
)

// ProviderConfig holds the Azure AD application settings.
type ProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Provider posts one sendMail request per message on behalf of msg.From.
// Tokens are cached and refreshed by the oauth2 token source.
type Provider struct {
	graphURL   string
	httpClient *http.Client
}

// New creates a Provider for the given tenant.
func New(cfg ProviderConfig) *Provider {
	return newWithOverrides(cfg, defaultGraphURL, microsoft.AzureADEndpoint(cfg.TenantID).TokenURL,
		&http.Client{Timeout: 30 * time.Second})
}

func newWithOverrides(cfg ProviderConfig, graphURL, tokenURL string, base *http.Client) *Provider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
	client.Timeout = base.Timeout

	return &Provider{
		graphURL:   strings.TrimRight(graphURL, "/"),
		httpClient: client,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "msgraph"
}

// Send delivers msg. There are no retries: 401 and 403 replies and token
// endpoint rejections are credential failures, transport errors are
// connection failures and any other non-2xx reply is a protocol failure.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", p.graphURL, url.PathEscape(msg.From))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	sendErr := &sendError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(respBody))}
	var graphErrResp graphErrorResponse
	if json.Unmarshal(respBody, &graphErrResp) == nil && graphErrResp.Error.Message != "" {
		sendErr.code = graphErrResp.Error.Code
		sendErr.message = graphErrResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.AuthError(sendErr)
	default:
		return provider.Protocol(sendErr)
	}
}

// classifyTransport sorts errors raised before any Graph reply arrived.
func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return provider.AuthError(err)
		}
		return provider.Protocol(err)
	}
	return provider.ConnectError(err)
}

// sendError is a non-2xx reply from the sendMail endpoint.
type sendError struct {
	statusCode int
	code       string
	message    string
}

func (e *sendError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d %s): %s", e.statusCode, e.code, e.message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}
