// Package ses implements a Provider that sends messages through the AWS
// SES v2 API.
package ses

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
)

// ProviderConfig holds the SES settings.
type ProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Provider submits each message as a raw MIME document in one API call.
type Provider struct {
	client SendEmailAPI
}

// New creates a Provider. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain applies. The SDK retryer
// is disabled: one Send is one attempt.
func New(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient creates a Provider around an existing client.
func NewWithClient(client SendEmailAPI) *Provider {
	return &Provider{client: client}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

// Send renders msg and submits it. The envelope sender is msg.From.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := email.Render(msg)
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return classify(err)
	}
	return nil
}

// authCodes are the API error codes that mean the credentials were refused.
var authCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"IncompleteSignature":         true,
	"InvalidClientTokenId":        true,
	"MissingAuthenticationToken":  true,
	"NotAuthorized":               true,
	"SignatureDoesNotMatch":       true,
	"UnrecognizedClientException": true,
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if authCodes[apiErr.ErrorCode()] {
			return provider.AuthError(err)
		}
		return provider.Protocol(err)
	}

	var sendErr *smithyhttp.RequestSendError
	var netErr net.Error
	if errors.As(err, &sendErr) || errors.As(err, &netErr) {
		return provider.ConnectError(err)
	}
	return provider.Protocol(err)
}
