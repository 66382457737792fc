package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/mailflow/internal/domain"
)

// SESTransport delivers mail through AWS SES using the SDK v2.
type SESTransport struct {
	providerID string
	fromName   string
	fromEmail  string
	client     *sesv2.Client
}

// NewSESTransport builds an SES transport from a provider config. Expects
// credentials keys access_key, secret_key, region, from_name, from_email.
func NewSESTransport(cfg domain.ProviderConfig) (*SESTransport, error) {
	accessKey := cfg.Credentials["access_key"]
	secretKey := cfg.Credentials["secret_key"]
	region := cfg.Credentials["region"]
	if region == "" {
		region = "us-east-1"
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("provider %s: SES credentials not configured", cfg.ID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("provider %s: aws config: %w", cfg.ID, err)
	}

	return &SESTransport{
		providerID: cfg.ID,
		fromName:   cfg.Credentials["from_name"],
		fromEmail:  cfg.Credentials["from_email"],
		client:     sesv2.NewFromConfig(awsCfg),
	}, nil
}

// Send delivers a single email through SES. Throttling and server-side
// failures come back wrapped as transient so the dispatcher retries them.
func (t *SESTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", t.fromName, t.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	tags := make([]types.MessageTag, 0, len(msg.Metadata))
	for k, v := range msg.Metadata {
		tags = append(tags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}
	input.EmailTags = tags

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return &SendResult{
			Success:    false,
			ProviderID: t.providerID,
			Err:        classifySESError(err),
		}, nil
	}

	return &SendResult{
		Success:    true,
		ProviderID: t.providerID,
		MessageID:  aws.ToString(out.MessageId),
		SentAt:     time.Now(),
	}, nil
}

// classifySESError maps SES API errors onto the transient/permanent split.
func classifySESError(err error) error {
	var tooMany *types.TooManyRequestsException
	var limit *types.LimitExceededException
	var sendingPaused *types.SendingPausedException
	if errors.As(err, &tooMany) || errors.As(err, &limit) || errors.As(err, &sendingPaused) {
		return Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	return err
}
