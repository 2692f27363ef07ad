package db

import (
	"time"
)

// AlertLogEntry is one raw payload as received by the command service.
// Rows are append-only.
type AlertLogEntry struct {
	ID         int64     `json:"id"`
	RawMessage string    `json:"raw_message"`
	ReceivedAt time.Time `json:"received_at"`
}

// SosEvent is a parsed and persisted alert.
type SosEvent struct {
	ID       int64   `json:"id"`
	DeviceID string  `json:"device_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Type     string  `json:"type"`
	Time     string  `json:"time"`
	Status   string  `json:"status"`
}

// SafeBase is a physical shelter alerts are routed toward. Capacity and
// Filled are maintained outside the resolution path; Filled may exceed
// Capacity.
type SafeBase struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Lat      float64 `json:"lat" yaml:"lat"`
	Lon      float64 `json:"lon" yaml:"lon"`
	Capacity int     `json:"capacity" yaml:"capacity"`
	Filled   int     `json:"filled" yaml:"filled"`
}

// Event status constants
const (
	EventStatusReceived = "received"
)

// RecentEventsLimit is how many events GET /events returns.
const RecentEventsLimit = 100
