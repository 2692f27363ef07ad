// Package fanout broadcasts resolved alerts to connected WebSocket observers.
//
// Delivery is best effort and at most once: a subscriber whose send buffer is
// full misses the event, and nothing is replayed to late joiners.
package fanout

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is the frame sent for every resolved alert.
type Event struct {
	Type      string  `json:"type"`
	DeviceID  string  `json:"deviceId"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Emergency string  `json:"emergency"`
	Time      string  `json:"time"`
	Ack       string  `json:"ack"`
	Degraded  bool    `json:"degraded,omitempty"`
}

// EventTypeSOS is the Type of resolved-alert events.
const EventTypeSOS = "sos"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks open connections and fans events out to them.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*subscriber
	bufferSize int
	logger     *zap.Logger
	onChange   func(n int)
}

// NewHub creates a hub. bufferSize bounds the per-subscriber queue.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		subs:       make(map[uuid.UUID]*subscriber),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// OnSubscribersChanged registers a callback invoked with the subscriber count
// whenever a connection joins or leaves.
func (h *Hub) OnSubscribersChanged(fn func(n int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast encodes ev once and queues it on every subscriber. It never
// blocks on a slow subscriber. It returns how many subscribers it was queued
// for.
func (h *Hub) Broadcast(ev Event) int {
	if ev.Type == "" {
		ev.Type = EventTypeSOS
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode fan-out event", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, s := range h.subs {
		select {
		case s.send <- frame:
			delivered++
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				zap.String("subscriber_id", s.id.String()),
				zap.String("device_id", ev.DeviceID),
			)
		}
	}
	return delivered
}

// ServeWS upgrades the request and keeps the subscriber registered until the
// connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.bufferSize),
	}
	h.add(s)

	h.logger.Info("fan-out subscriber connected",
		zap.String("subscriber_id", s.id.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go h.writePump(s)
	h.readPump(s)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	n, fn := len(h.subs), h.onChange
	h.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s.id)
	close(s.send)
	n, fn := len(h.subs), h.onChange
	h.mu.Unlock()

	if fn != nil {
		fn(n)
	}

	h.logger.Info("fan-out subscriber disconnected", zap.String("subscriber_id", s.id.String()))
}

// readPump drains client frames so control messages are processed; observers
// are not expected to send anything meaningful.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Warn("ws write failed",
					zap.String("subscriber_id", s.id.String()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		_ = s.conn.Close()
	}
}
