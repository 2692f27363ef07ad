package relay

import (
	"context"
	"errors"
	"time"
)

// Message status constants. A record moves received -> forwarded, or
// received -> queued -> forwarded. There is no failed state.
const (
	StatusReceived  = "received"
	StatusForwarded = "forwarded"
	StatusQueued    = "queued"
)

var (
	// ErrEmptyPayload rejects a submission before any record is created.
	ErrEmptyPayload = errors.New("payload is required")

	// ErrUpstreamUnavailable wraps every failed forward: transport errors,
	// timeouts and non-2xx responses alike.
	ErrUpstreamUnavailable = errors.New("command service unavailable")

	// ErrNotFound is returned by stores for unknown message ids.
	ErrNotFound = errors.New("message not found")
)

// MessageRecord is the relay's record of one inbound payload.
type MessageRecord struct {
	ID          int64      `json:"id"`
	Raw         string     `json:"raw"`
	From        string     `json:"from,omitempty"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	Status      string     `json:"status"`
	Ack         *string    `json:"ack"`
	Attempts    int        `json:"attempts"`
	ForwardedAt *time.Time `json:"forwardedAt,omitempty"`
}

// QueueItem is a pending redelivery. Items are retried in FIFO order and the
// head is retried in place until it succeeds.
type QueueItem struct {
	MessageID int64  `json:"messageId"`
	Payload   string `json:"payload"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// Store persists message records and the retry queue. Implementations must
// be safe for concurrent use.
type Store interface {
	CreateMessage(ctx context.Context, raw, from string, receivedAt time.Time) (*MessageRecord, error)
	GetMessage(ctx context.Context, id int64) (*MessageRecord, error)
	ListMessages(ctx context.Context) ([]*MessageRecord, error)
	MarkForwarded(ctx context.Context, id int64, ack string, attempts int, at time.Time) error
	MarkQueued(ctx context.Context, id int64) error

	Enqueue(ctx context.Context, item QueueItem) error
	// Head returns the oldest queued item, or nil when the queue is empty.
	Head(ctx context.Context) (*QueueItem, error)
	// UpdateHead rewrites attempts and lastError of the head item in place.
	UpdateHead(ctx context.Context, attempts int, lastError string) error
	// PopHead removes the head item.
	PopHead(ctx context.Context) error
	QueueLen(ctx context.Context) (int, error)
}
