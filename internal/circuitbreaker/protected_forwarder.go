package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/relay"
)

// ProtectedForwarder wraps a relay.Forwarder with a CircuitBreaker. A
// rejected call is reported as an ordinary upstream failure, so the relay
// queues or keeps retrying exactly as it would for a refused connection.
type ProtectedForwarder struct {
	fwd     relay.Forwarder
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedForwarder wraps fwd with breaker.
func NewProtectedForwarder(fwd relay.Forwarder, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedForwarder {
	return &ProtectedForwarder{
		fwd:     fwd,
		breaker: breaker,
		logger:  logger,
	}
}

// Forward implements relay.Forwarder.
func (p *ProtectedForwarder) Forward(ctx context.Context, payload string) (string, error) {
	if !p.breaker.Allow() {
		p.logger.Debug("circuit breaker rejected forward",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("state", p.breaker.GetState().String()),
		)
		return "", fmt.Errorf("%w: %w", relay.ErrUpstreamUnavailable, ErrCircuitOpen)
	}

	ack, err := p.fwd.Forward(ctx, payload)
	if err != nil {
		p.breaker.RecordFailure()
		return "", err
	}

	p.breaker.RecordSuccess()
	return ack, nil
}

// Breaker returns the underlying circuit breaker.
func (p *ProtectedForwarder) Breaker() *CircuitBreaker {
	return p.breaker
}
