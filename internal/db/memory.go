package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process implementation of the command store.
// It backs the service when no database is configured and is used in tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	alerts    []*AlertLogEntry
	events    []*SosEvent
	bases     map[string]*SafeBase
	nextAlert int64
	nextEvent int64
}

// NewMemoryRepository returns an empty repository seeded with bases.
func NewMemoryRepository(bases ...*SafeBase) *MemoryRepository {
	m := &MemoryRepository{bases: make(map[string]*SafeBase, len(bases))}
	for _, b := range bases {
		cp := *b
		m.bases[b.ID] = &cp
	}
	return m
}

func (m *MemoryRepository) AppendAlert(_ context.Context, raw string, receivedAt time.Time) (*AlertLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAlert++
	entry := &AlertLogEntry{ID: m.nextAlert, RawMessage: raw, ReceivedAt: receivedAt}
	m.alerts = append(m.alerts, entry)

	cp := *entry
	return &cp, nil
}

func (m *MemoryRepository) CreateSosEvent(_ context.Context, ev *SosEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEvent++
	ev.ID = m.nextEvent
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryRepository) ListRecentEvents(_ context.Context, limit int) ([]*SosEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SosEvent, 0, min(limit, len(m.events)))
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepository) ListSafeBases(_ context.Context) ([]*SafeBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SafeBase, 0, len(m.bases))
	for _, b := range m.bases {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) UpsertSafeBase(_ context.Context, b *SafeBase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.bases[b.ID] = &cp
	return nil
}

// Alerts returns a copy of the alert log, oldest first.
func (m *MemoryRepository) Alerts() []AlertLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AlertLogEntry, len(m.alerts))
	for i, a := range m.alerts {
		out[i] = *a
	}
	return out
}
