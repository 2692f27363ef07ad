package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository is the Postgres-backed store for the command service: the
// alert log, resolved SOS events and the safe-base directory.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new Postgres repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AppendAlert records a raw payload in the alert log.
func (r *Repository) AppendAlert(ctx context.Context, raw string, receivedAt time.Time) (*AlertLogEntry, error) {
	query := `
		INSERT INTO alert_log (raw_message, received_at)
		VALUES ($1, $2)
		RETURNING id
	`

	entry := &AlertLogEntry{RawMessage: raw, ReceivedAt: receivedAt}
	if err := r.db.Pool().QueryRow(ctx, query, raw, receivedAt).Scan(&entry.ID); err != nil {
		r.logger.Error("failed to append alert log", zap.Error(err))
		return nil, fmt.Errorf("insert alert log: %w", err)
	}

	return entry, nil
}

// CreateSosEvent inserts ev and fills in its generated id.
func (r *Repository) CreateSosEvent(ctx context.Context, ev *SosEvent) error {
	query := `
		INSERT INTO sos_events (device_id, lat, lon, type, time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		ev.DeviceID,
		ev.Lat,
		ev.Lon,
		ev.Type,
		ev.Time,
		ev.Status,
	).Scan(&ev.ID)
	if err != nil {
		r.logger.Error("failed to create sos event",
			zap.Error(err),
			zap.String("device_id", ev.DeviceID),
		)
		return fmt.Errorf("insert sos event: %w", err)
	}

	return nil
}

// ListRecentEvents returns up to limit events, most recent first.
func (r *Repository) ListRecentEvents(ctx context.Context, limit int) ([]*SosEvent, error) {
	query := `
		SELECT id, device_id, lat, lon, type, time, status
		FROM sos_events
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sos events: %w", err)
	}
	defer rows.Close()

	events := make([]*SosEvent, 0, limit)
	for rows.Next() {
		var ev SosEvent
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.Lat, &ev.Lon, &ev.Type, &ev.Time, &ev.Status); err != nil {
			return nil, fmt.Errorf("scan sos event: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}

// ListSafeBases returns the full directory ordered by id.
func (r *Repository) ListSafeBases(ctx context.Context) ([]*SafeBase, error) {
	query := `
		SELECT id, name, lat, lon, capacity, filled
		FROM safe_bases
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query safe bases: %w", err)
	}

	bases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*SafeBase, error) {
		var b SafeBase
		err := row.Scan(&b.ID, &b.Name, &b.Lat, &b.Lon, &b.Capacity, &b.Filled)
		return &b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan safe bases: %w", err)
	}

	return bases, nil
}

// UpsertSafeBase creates or replaces a safe base by id.
func (r *Repository) UpsertSafeBase(ctx context.Context, b *SafeBase) error {
	query := `
		INSERT INTO safe_bases (id, name, lat, lon, capacity, filled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, lat = EXCLUDED.lat, lon = EXCLUDED.lon,
		    capacity = EXCLUDED.capacity, filled = EXCLUDED.filled
	`

	if _, err := r.db.Pool().Exec(ctx, query, b.ID, b.Name, b.Lat, b.Lon, b.Capacity, b.Filled); err != nil {
		r.logger.Error("failed to upsert safe base",
			zap.Error(err),
			zap.String("safe_base_id", b.ID),
		)
		return fmt.Errorf("upsert safe base: %w", err)
	}

	r.logger.Info("safe base upserted",
		zap.String("safe_base_id", b.ID),
		zap.Int("capacity", b.Capacity),
		zap.Int("filled", b.Filled),
	)

	return nil
}
