// Package sqs publishes resolved alerts to an SQS queue so downstream
// consumers get a durable copy of what the live fan-out delivered.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/fanout"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
	Endpoint string // optional, for LocalStack
}

// Message is the body sent to SQS.
type Message struct {
	Event       fanout.Event `json:"event"`
	PublishedAt int64        `json:"published_at"`
}

// sendAPI is the part of the SQS client the producer uses.
type sendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Producer sends resolved alerts to SQS.
type Producer struct {
	client   sendAPI
	queueURL string
	fifo     bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return newProducer(client, cfg.QueueURL, logger), nil
}

func newProducer(client sendAPI, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends one resolved event. FIFO queues are grouped by device so a
// device's alerts stay ordered.
func (p *Producer) Publish(ctx context.Context, ev fanout.Event) error {
	body, err := json.Marshal(Message{Event: ev, PublishedAt: p.now().UnixNano()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"device_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.DeviceID),
			},
			"emergency": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Emergency),
			},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(ev.DeviceID)
		input.MessageDeduplicationId = aws.String(uuid.NewString())
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("device_id", ev.DeviceID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("resolved alert published",
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.String("device_id", ev.DeviceID),
	)
	return nil
}
