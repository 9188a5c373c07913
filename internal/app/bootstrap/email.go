package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/voice-agent-scheduling/internal/config"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// LoadAWSConfig loads SDK config with optional static credentials, used for
// LocalStack and for deployments without an instance role.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewSESClient builds an SES v2 client, honouring AWS_ENDPOINT_OVERRIDE.
func NewSESClient(awsCfg aws.Config, endpoint string) *sesv2.Client {
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// BuildEmailSender selects the outbound email provider. "auto" prefers
// SendGrid, then SES, then the logging stub. The provider name is returned
// for startup logs.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	sendgridReady := cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != ""
	sesReady := cfg.SESFromEmail != ""

	provider := cfg.EmailProvider
	if provider == "" || provider == "auto" {
		switch {
		case sendgridReady:
			provider = "sendgrid"
		case sesReady:
			provider = "ses"
		default:
			provider = "stub"
		}
	}

	switch provider {
	case "sendgrid":
		if !sendgridReady {
			return nil, provider, fmt.Errorf("bootstrap: sendgrid requires SENDGRID_API_KEY and SENDGRID_FROM_EMAIL")
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger), provider, nil
	case "ses":
		if !sesReady {
			return nil, provider, fmt.Errorf("bootstrap: ses requires SES_FROM_EMAIL")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, provider, err
		}
		return notify.NewSESSender(NewSESClient(awsCfg, cfg.AWSEndpointOverride), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger), provider, nil
	case "stub":
		logger.Warn("bootstrap: email provider not configured; emails will only be logged")
		return notify.NewStubEmailSender(logger), provider, nil
	default:
		return nil, provider, fmt.Errorf("bootstrap: unknown email provider %q", provider)
	}
}
