package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

type mockPublisher struct {
	input *sns.PublishInput
	calls int
	err   error
}

func (m *mockPublisher) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

const ack = "ACK|SAFEBASE=BASE_SHOLI|DIST=0.00KM|CAPACITY=AVAILABLE"

func TestReplier_SendsTransactionalSMS(t *testing.T) {
	mock := &mockPublisher{}
	r := &Replier{client: mock, senderID: "BEACON", logger: zap.NewNop()}

	if err := r.Reply(context.Background(), "+919876543210", ack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(mock.input.PhoneNumber) != "+919876543210" {
		t.Errorf("unexpected phone number %q", aws.ToString(mock.input.PhoneNumber))
	}
	if aws.ToString(mock.input.Message) != ack {
		t.Errorf("expected ack as message body, got %q", aws.ToString(mock.input.Message))
	}
	if got := aws.ToString(mock.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue); got != "Transactional" {
		t.Errorf("expected Transactional SMS type, got %q", got)
	}
	if got := aws.ToString(mock.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue); got != "BEACON" {
		t.Errorf("expected sender id, got %q", got)
	}
}

func TestReplier_RejectsInvalidNumbers(t *testing.T) {
	tests := []string{"", "12345", "9876543210", "+0123456789", "+91 98765 43210"}

	for _, to := range tests {
		mock := &mockPublisher{}
		r := &Replier{client: mock, logger: zap.NewNop()}

		err := r.Reply(context.Background(), to, ack)
		if !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("%q: expected ErrInvalidPhoneNumber, got %v", to, err)
		}
		if mock.calls != 0 {
			t.Errorf("%q: publish must not be called", to)
		}
	}
}

func TestReplier_PublishError(t *testing.T) {
	mock := &mockPublisher{err: errors.New("throttled")}
	r := &Replier{client: mock, logger: zap.NewNop()}

	if err := r.Reply(context.Background(), "+15550001234", ack); err == nil {
		t.Fatal("expected publish error")
	}
}
