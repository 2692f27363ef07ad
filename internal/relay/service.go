// Package relay accepts alerts from the edge, forwards them to the command
// service, and queues whatever cannot be delivered for ordered redelivery.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
)

// Replier sends the ack back to the originating sender. Optional.
type Replier interface {
	Reply(ctx context.Context, to, ack string) error
}

// SubmitResult is the outcome of Submit: either an ack or a queued acceptance.
type SubmitResult struct {
	MessageID int64
	Ack       string
	Queued    bool
}

// Service is the relay ingress.
type Service struct {
	store   Store
	fwd     Forwarder
	proc    *Processor
	replier Replier
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
}

// NewService wires the ingress to a store, forwarder and queue processor.
func NewService(store Store, fwd Forwarder, cfg ProcessorConfig, logger *zap.Logger) *Service {
	s := &Service{
		store:   store,
		fwd:     fwd,
		proc:    NewProcessor(store, fwd, cfg, logger.Named("processor")),
		logger:  logger,
		now:     time.Now,
		baseCtx: context.Background(),
	}
	s.proc.onForwarded = s.replyQueued
	return s
}

// WithReplier enables SMS replies for submissions that carry a sender.
func (s *Service) WithReplier(r Replier) *Service {
	s.replier = r
	return s
}

// Processor exposes the queue processor.
func (s *Service) Processor() *Processor {
	return s.proc
}

// Start binds the processor to ctx and resumes draining when the store
// already holds queued items from a previous run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	n, err := s.store.QueueLen(ctx)
	if err != nil {
		return fmt.Errorf("read queue length: %w", err)
	}
	metrics.SetRetryQueueDepth(n)
	if n > 0 {
		s.logger.Info("resuming retry queue", zap.Int("queue_size", n))
		s.proc.Trigger(ctx)
	}
	return nil
}

// Submit records the payload, tries one forward, and queues it on failure.
// Forward failures are never returned to the caller.
func (s *Service) Submit(ctx context.Context, payload, from string) (*SubmitResult, error) {
	if payload == "" {
		metrics.RecordRelaySubmission("rejected")
		return nil, ErrEmptyPayload
	}

	rec, err := s.store.CreateMessage(ctx, payload, from, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create message record: %w", err)
	}

	ack, fwdErr := s.fwd.Forward(ctx, payload)
	metrics.RecordForwardAttempt(metrics.SourceIngress, fwdErr)

	if fwdErr == nil {
		if err := s.store.MarkForwarded(ctx, rec.ID, ack, 0, s.now().UTC()); err != nil {
			return nil, fmt.Errorf("mark forwarded: %w", err)
		}
		metrics.RecordRelaySubmission("forwarded")
		s.logger.Info("alert forwarded",
			zap.Int64("message_id", rec.ID),
			zap.String("ack", ack),
		)
		s.reply(ctx, from, ack)
		return &SubmitResult{MessageID: rec.ID, Ack: ack}, nil
	}

	if !errors.Is(fwdErr, ErrUpstreamUnavailable) {
		fwdErr = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, fwdErr)
	}

	if err := s.store.MarkQueued(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("mark queued: %w", err)
	}
	item := QueueItem{MessageID: rec.ID, Payload: payload, LastError: fwdErr.Error()}
	if err := s.store.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}

	if n, err := s.store.QueueLen(ctx); err == nil {
		metrics.SetRetryQueueDepth(n)
	}
	metrics.RecordRelaySubmission("queued")
	s.logger.Warn("forward failed, message queued",
		zap.Int64("message_id", rec.ID),
		zap.Error(fwdErr),
	)

	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()
	s.proc.Trigger(base)

	return &SubmitResult{MessageID: rec.ID, Queued: true}, nil
}

// Messages returns every record and the current queue length.
func (s *Service) Messages(ctx context.Context) ([]*MessageRecord, int, error) {
	msgs, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	n, err := s.store.QueueLen(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read queue length: %w", err)
	}
	return msgs, n, nil
}

func (s *Service) replyQueued(ctx context.Context, rec *MessageRecord) {
	if rec.Ack != nil {
		s.reply(ctx, rec.From, *rec.Ack)
	}
}

func (s *Service) reply(ctx context.Context, to, ack string) {
	if s.replier == nil || to == "" {
		return
	}
	if err := s.replier.Reply(ctx, to, ack); err != nil {
		s.logger.Warn("ack reply failed", zap.String("to", to), zap.Error(err))
	}
}
