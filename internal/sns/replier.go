// Package sns texts the ack back to the phone that raised the alert.
package sns

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// ErrInvalidPhoneNumber is returned for recipients that are not E.164.
var ErrInvalidPhoneNumber = errors.New("phone number must be in E.164 format")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Config holds SNS settings.
type Config struct {
	Region   string
	Endpoint string // optional, for LocalStack
	SenderID string // optional alphanumeric sender id
}

// publishAPI is the part of the SNS client the replier uses.
type publishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Replier sends acks as transactional SMS.
type Replier struct {
	client   publishAPI
	senderID string
	logger   *zap.Logger
}

// NewReplier loads AWS configuration and creates a replier.
func NewReplier(ctx context.Context, cfg Config, logger *zap.Logger) (*Replier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("sns replier initialized", zap.String("region", cfg.Region))

	return &Replier{client: client, senderID: cfg.SenderID, logger: logger}, nil
}

// Reply sends ack to the given phone number.
func (r *Replier) Reply(ctx context.Context, to, ack string) error {
	if !e164.MatchString(to) {
		return fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, to)
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if r.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(r.senderID),
		}
	}

	result, err := r.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(ack),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	r.logger.Info("ack sent via SMS",
		zap.String("phone_number", to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
