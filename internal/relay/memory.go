package relay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records and the queue in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	messages []*MessageRecord
	byID     map[int64]*MessageRecord
	queue    []QueueItem
	nextID   int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]*MessageRecord)}
}

func (s *MemoryStore) CreateMessage(_ context.Context, raw, from string, receivedAt time.Time) (*MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec := &MessageRecord{
		ID:         s.nextID,
		Raw:        raw,
		From:       from,
		ReceivedAt: receivedAt,
		Status:     StatusReceived,
	}
	s.messages = append(s.messages, rec)
	s.byID[rec.ID] = rec

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id int64) (*MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListMessages(_ context.Context) ([]*MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*MessageRecord, len(s.messages))
	for i, rec := range s.messages {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) MarkForwarded(_ context.Context, id int64, ack string, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusForwarded
	rec.Ack = &ack
	rec.Attempts = attempts
	rec.ForwardedAt = &at
	return nil
}

func (s *MemoryStore) MarkQueued(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusQueued
	return nil
}

func (s *MemoryStore) Enqueue(_ context.Context, item QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, item)
	return nil
}

func (s *MemoryStore) Head(_ context.Context) (*QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, nil
	}
	head := s.queue[0]
	return &head, nil
}

func (s *MemoryStore) UpdateHead(_ context.Context, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return ErrNotFound
	}
	s.queue[0].Attempts = attempts
	s.queue[0].LastError = lastError
	return nil
}

func (s *MemoryStore) PopHead(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return ErrNotFound
	}
	s.queue[0] = QueueItem{}
	s.queue = s.queue[1:]
	return nil
}

func (s *MemoryStore) QueueLen(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), nil
}
