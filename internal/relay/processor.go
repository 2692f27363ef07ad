package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/metrics"
)

// ProcessorConfig controls retry pacing.
type ProcessorConfig struct {
	BaseDelay time.Duration // defaults to 1s
	MaxDelay  time.Duration // defaults to 60s
}

// Processor drains the retry queue one item at a time. The head item is
// retried in place until it succeeds; nothing behind it moves in the meantime.
type Processor struct {
	store  Store
	fwd    Forwarder
	config ProcessorConfig
	logger *zap.Logger

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	// onForwarded is called after a queued message is delivered.
	onForwarded func(ctx context.Context, rec *MessageRecord)

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewProcessor creates a processor. It does nothing until Trigger is called.
func NewProcessor(store Store, fwd Forwarder, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 60 * time.Second
	}

	return &Processor{
		store:  store,
		fwd:    fwd,
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Backoff returns the wait after the given number of failed queue attempts:
// min(MaxDelay, BaseDelay * 2^attempts).
func (p *Processor) Backoff(attempts int) time.Duration {
	d := p.config.BaseDelay
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.config.MaxDelay {
			return p.config.MaxDelay
		}
	}
	if d > p.config.MaxDelay {
		return p.config.MaxDelay
	}
	return d
}

// Running reports whether a drain loop is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger starts a drain loop unless one is already running. It returns true
// if this call started the loop.
func (p *Processor) Trigger(ctx context.Context) bool {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return false
	}
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.drain(ctx)
	}()
	return true
}

// Wait blocks until the current drain loop, if any, has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) drain(ctx context.Context) {
	released := false
	defer func() {
		if released {
			return
		}
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.Info("retry queue processor started")

	for {
		if ctx.Err() != nil {
			p.logger.Info("retry queue processor stopping", zap.Error(ctx.Err()))
			return
		}

		head, err := p.store.Head(ctx)
		if err != nil {
			p.logger.Error("failed to read queue head", zap.Error(err))
			if p.sleep(ctx, p.config.BaseDelay) != nil {
				return
			}
			continue
		}
		if head == nil {
			// Recheck under the lock: an item enqueued after the empty read
			// would otherwise wait for the next Trigger.
			p.mu.Lock()
			n, lenErr := p.store.QueueLen(ctx)
			if lenErr == nil && n == 0 {
				p.running = false
				released = true
				p.mu.Unlock()
				metrics.SetRetryQueueDepth(0)
				p.logger.Info("retry queue drained")
				return
			}
			p.mu.Unlock()
			continue
		}

		if !p.attempt(ctx, head) {
			if p.sleep(ctx, p.Backoff(head.Attempts+1)) != nil {
				p.logger.Info("retry queue processor stopping with items pending",
					zap.Int64("head_message_id", head.MessageID),
				)
				return
			}
		}
	}
}

// attempt forwards the head once and records the outcome. It returns true
// when the head was delivered and removed.
func (p *Processor) attempt(ctx context.Context, head *QueueItem) bool {
	ack, err := p.fwd.Forward(ctx, head.Payload)
	metrics.RecordForwardAttempt(metrics.SourceQueue, err)

	if err != nil {
		attempts := head.Attempts + 1
		if ctx.Err() != nil {
			// Shutdown interrupted the attempt; it does not count.
			return false
		}
		if uerr := p.store.UpdateHead(ctx, attempts, err.Error()); uerr != nil {
			p.logger.Error("failed to update queue head", zap.Error(uerr))
		}
		p.logger.Warn("queued forward failed",
			zap.Int64("message_id", head.MessageID),
			zap.Int("attempts", attempts),
			zap.Duration("backoff", p.Backoff(attempts)),
			zap.Error(err),
		)
		return false
	}

	// The head stays queued until its record is marked forwarded.
	if !p.retryStore(ctx, "mark message forwarded", head.MessageID, func() error {
		err := p.store.MarkForwarded(ctx, head.MessageID, ack, head.Attempts, p.now().UTC())
		if errors.Is(err, ErrNotFound) {
			p.logger.Warn("queued message has no record", zap.Int64("message_id", head.MessageID))
			return nil
		}
		return err
	}) {
		return false
	}
	if !p.retryStore(ctx, "pop queue head", head.MessageID, func() error {
		if err := p.store.PopHead(ctx); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}) {
		return false
	}

	if n, err := p.store.QueueLen(ctx); err == nil {
		metrics.SetRetryQueueDepth(n)
	}

	p.logger.Info("queued message forwarded",
		zap.Int64("message_id", head.MessageID),
		zap.Int("attempts", head.Attempts),
		zap.String("ack", ack),
	)

	if p.onForwarded != nil {
		if rec, err := p.store.GetMessage(ctx, head.MessageID); err == nil {
			p.onForwarded(ctx, rec)
		}
	}
	return true
}

// retryStore runs op until it succeeds, pausing BaseDelay between tries. It
// returns false when ctx ends first.
func (p *Processor) retryStore(ctx context.Context, what string, messageID int64, op func() error) bool {
	for {
		err := op()
		if err == nil {
			return true
		}
		p.logger.Error("failed to "+what,
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
		if p.sleep(ctx, p.config.BaseDelay) != nil {
			return false
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
