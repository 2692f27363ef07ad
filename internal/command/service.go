// Package command resolves incoming alerts: it logs the raw payload, parses
// it, records the event, picks the nearest safe base and fans the result out.
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/alert"
	"github.com/lalithlochan/beacon/internal/db"
	"github.com/lalithlochan/beacon/internal/fanout"
	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/resolver"
)

var (
	// ErrMissingRaw rejects a request without a payload. Nothing is stored.
	ErrMissingRaw = errors.New("raw is required")

	// ErrInternal wraps failures after the alert log write. The log entry
	// stays; no event or ack is produced.
	ErrInternal = errors.New("internal error")
)

// Repository is the storage the command service needs.
type Repository interface {
	AppendAlert(ctx context.Context, raw string, receivedAt time.Time) (*db.AlertLogEntry, error)
	CreateSosEvent(ctx context.Context, ev *db.SosEvent) error
	ListRecentEvents(ctx context.Context, limit int) ([]*db.SosEvent, error)
	ListSafeBases(ctx context.Context) ([]*db.SafeBase, error)
	UpsertSafeBase(ctx context.Context, b *db.SafeBase) error
}

// Broadcaster delivers resolved events to live observers.
type Broadcaster interface {
	Broadcast(ev fanout.Event) int
}

// Sink receives every resolved event for durable downstream processing.
type Sink interface {
	Publish(ctx context.Context, ev fanout.Event) error
}

// Result is what Ingest produced for one alert.
type Result struct {
	Ack       resolver.Ack
	Emergency alert.Emergency
	Event     *db.SosEvent
}

// Service implements alert ingestion.
type Service struct {
	repo   Repository
	hub    Broadcaster
	sink   Sink
	logger *zap.Logger
	now    func() time.Time

	sinkTimeout time.Duration
	sinkWG      sync.WaitGroup
}

// DefaultSinkTimeout bounds one background sink publish.
const DefaultSinkTimeout = 3 * time.Second

// NewService creates the ingestion service. hub may be nil.
func NewService(repo Repository, hub Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		hub:    hub,
		logger: logger,
		now:    time.Now,

		sinkTimeout: DefaultSinkTimeout,
	}
}

// WithSink adds a durable sink for resolved events.
func (s *Service) WithSink(sink Sink) *Service {
	s.sink = sink
	return s
}

// Ingest processes one raw alert and returns its ack.
func (s *Service) Ingest(ctx context.Context, raw string) (*Result, error) {
	if raw == "" {
		return nil, ErrMissingRaw
	}

	receivedAt := s.now().UTC()
	entry, err := s.repo.AppendAlert(ctx, raw, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: append alert log: %v", ErrInternal, err)
	}

	em := alert.Parse(raw, receivedAt)
	metrics.RecordAlertIngested(em.Degraded)
	if em.Degraded {
		s.logger.Warn("alert parsed with defaults",
			zap.Int64("alert_log_id", entry.ID),
			zap.String("device_id", em.DeviceID),
			zap.Strings("flags", em.Flags),
		)
	}

	bases, err := s.repo.ListSafeBases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list safe bases: %v", ErrInternal, err)
	}

	ev := &db.SosEvent{
		DeviceID: em.DeviceID,
		Lat:      em.Lat,
		Lon:      em.Lon,
		Type:     em.Type,
		Time:     em.Time,
		Status:   db.EventStatusReceived,
	}
	if err := s.repo.CreateSosEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("%w: create sos event: %v", ErrInternal, err)
	}

	ack := resolver.Resolve(toResolverBases(bases), em.Lat, em.Lon)
	metrics.RecordAck(string(ack.CapacityStatus))

	s.logger.Info("alert resolved",
		zap.Int64("alert_log_id", entry.ID),
		zap.Int64("event_id", ev.ID),
		zap.String("device_id", em.DeviceID),
		zap.String("type", em.Type),
		zap.String("safe_base", ack.SafeBaseID),
		zap.Float64("distance_km", ack.DistanceKm),
		zap.String("capacity", string(ack.CapacityStatus)),
	)

	out := fanout.Event{
		Type:      fanout.EventTypeSOS,
		DeviceID:  em.DeviceID,
		Lat:       em.Lat,
		Lon:       em.Lon,
		Emergency: em.Type,
		Time:      em.Time,
		Ack:       ack.String(),
		Degraded:  em.Degraded,
	}
	if s.hub != nil {
		n := s.hub.Broadcast(out)
		s.logger.Debug("alert broadcast", zap.Int("subscribers", n))
	}
	if s.sink != nil {
		s.publish(ctx, out)
	}

	return &Result{Ack: ack, Emergency: em, Event: ev}, nil
}

// publish hands ev to the sink in the background, detached from the request.
// Each publish gets at most sinkTimeout.
func (s *Service) publish(ctx context.Context, ev fanout.Event) {
	s.sinkWG.Add(1)
	go func() {
		defer s.sinkWG.Done()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
		defer cancel()

		if err := s.sink.Publish(pctx, ev); err != nil {
			s.logger.Warn("failed to publish resolved alert",
				zap.String("device_id", ev.DeviceID),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for in-flight sink publishes.
func (s *Service) Drain() {
	s.sinkWG.Wait()
}

// SafeBases returns the resource directory.
func (s *Service) SafeBases(ctx context.Context) ([]*db.SafeBase, error) {
	return s.repo.ListSafeBases(ctx)
}

// RecentEvents returns the latest events, most recent first.
func (s *Service) RecentEvents(ctx context.Context) ([]*db.SosEvent, error) {
	return s.repo.ListRecentEvents(ctx, db.RecentEventsLimit)
}

// UpsertSafeBase creates or replaces a safe base.
func (s *Service) UpsertSafeBase(ctx context.Context, b *db.SafeBase) error {
	if err := s.repo.UpsertSafeBase(ctx, b); err != nil {
		return err
	}
	s.logger.Info("safe base updated",
		zap.String("id", b.ID),
		zap.Int("capacity", b.Capacity),
		zap.Int("filled", b.Filled),
	)
	return nil
}

func toResolverBases(bases []*db.SafeBase) []resolver.Base {
	out := make([]resolver.Base, len(bases))
	for i, b := range bases {
		out[i] = resolver.Base{
			ID:       b.ID,
			Lat:      b.Lat,
			Lon:      b.Lon,
			Capacity: b.Capacity,
			Filled:   b.Filled,
		}
	}
	return out
}
