package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/subscriptions/internal/config"
)

// sesAPI is the subset of *sesv2.Client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClient sends email through AWS SES v2.
type SESClient struct {
	api     sesAPI
	sender  string
	timeout time.Duration
}

// NewSESClient loads AWS configuration for cfg.Region. Static credentials are
// used when both keys are set; otherwise the default credential chain applies.
func NewSESClient(ctx context.Context, cfg config.SESConfig, sender string, timeout time.Duration) (*SESClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESClient(sesv2.NewFromConfig(awsCfg), sender, timeout), nil
}

func newSESClient(api sesAPI, sender string, timeout time.Duration) *SESClient {
	return &SESClient{api: api, sender: sender, timeout: timeout}
}

// Send delivers msg as a simple plain-text message.
func (s *SESClient) Send(ctx context.Context, msg Message) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if _, err := s.api.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("%w: ses: %w", ErrDelivery, err)
	}
	return nil
}
