package transport

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// sesMaxRawBytes is the SES v2 ceiling for a raw message.
const sesMaxRawBytes = 40 << 20

// SESAPI is the subset of the SES v2 client used by SESTransport.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport sends raw MIME through AWS SES v2. AWS signs its own
// requests, so the credential argument is ignored.
type SESTransport struct {
	client           SESAPI
	configurationSet string
}

// NewSESTransport builds an SES client from config. Static keys are used
// when configured, otherwise the default credential chain.
func NewSESTransport(ctx context.Context, cfg config.SESConfig) (*SESTransport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSESTransportWithClient(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

// NewSESTransportWithClient wraps an existing client.
func NewSESTransportWithClient(client SESAPI, configurationSet string) *SESTransport {
	return &SESTransport{client: client, configurationSet: configurationSet}
}

// Send delivers msg and returns the SES message ID.
func (s *SESTransport) Send(ctx context.Context, _ string, msg *Message) (string, error) {
	raw, err := msg.Raw()
	if err != nil {
		return "", NewError(KindUnknown, 0, "building message", err)
	}
	if len(raw) > sesMaxRawBytes {
		return "", NewError(KindSizeLimit, 0, fmt.Sprintf("message is %d bytes, SES limit is %d", len(raw), sesMaxRawBytes), nil)
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if msg.From != "" {
		input.FromEmailAddress = aws.String(msg.From)
	}
	if msg.CampaignID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(err)
	}

	messageID := aws.ToString(result.MessageId)
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)
	return messageID, nil
}

func classifySESError(err error) *Error {
	var (
		rejected  *types.MessageRejected
		limit     *types.LimitExceededException
		paused    *types.SendingPausedException
		suspended *types.AccountSuspendedException
		throttled *types.TooManyRequestsException
		internal  *types.InternalServiceErrorException
	)
	switch {
	case errors.As(err, &rejected):
		return NewError(KindInvalidRecipient, 400, "", err)
	case errors.As(err, &limit), errors.As(err, &paused), errors.As(err, &suspended):
		return NewError(KindQuotaExceeded, 0, "", err)
	case errors.As(err, &throttled), errors.As(err, &internal):
		return NewError(KindNetwork, 0, "", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ExpiredToken", "ExpiredTokenException", "InvalidClientTokenId", "UnrecognizedClientException":
			return NewError(KindAuthExpired, 0, apiErr.ErrorMessage(), err)
		case "Throttling", "ThrottlingException", "RequestTimeout":
			return NewError(KindNetwork, 0, apiErr.ErrorMessage(), err)
		}
		return NewError(KindUnknown, 0, apiErr.ErrorMessage(), err)
	}

	return NewError(KindOf(err), 0, "", err)
}
