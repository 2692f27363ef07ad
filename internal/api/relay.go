package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/relay"
)

// RelayService is what the relay handler needs from relay.Service.
type RelayService interface {
	Submit(ctx context.Context, payload, from string) (*relay.SubmitResult, error)
	Messages(ctx context.Context) ([]*relay.MessageRecord, int, error)
}

// SMSRequest is the body of POST /sms-receiver. From is the sender's number
// when the gateway provides one.
type SMSRequest struct {
	Payload string `json:"payload"`
	From    string `json:"from,omitempty"`
}

// QueuedResponse is returned when the forward failed and the payload was
// queued for redelivery.
type QueuedResponse struct {
	Queued bool `json:"queued"`
}

// MessagesResponse is the body of GET /messages.
type MessagesResponse struct {
	Messages  []*relay.MessageRecord `json:"messages"`
	QueueSize int                    `json:"queueSize"`
}

// RelayHandler serves the relay routes.
type RelayHandler struct {
	logger *zap.Logger
	svc    RelayService
}

// NewRelayHandler creates a new relay handler
func NewRelayHandler(logger *zap.Logger, svc RelayService) *RelayHandler {
	return &RelayHandler{logger: logger, svc: svc}
}

// Routes registers the relay endpoints. limit, when set, wraps the ingress
// route only.
func (h *RelayHandler) Routes(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit != nil {
		r.With(limit).Post("/sms-receiver", h.ReceiveSMS)
	} else {
		r.Post("/sms-receiver", h.ReceiveSMS)
	}
	r.Get("/messages", h.ListMessages)
	r.Get("/health", Health)
}

// ReceiveSMS handles POST /sms-receiver
func (h *RelayHandler) ReceiveSMS(w http.ResponseWriter, r *http.Request) {
	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	res, err := h.svc.Submit(r.Context(), req.Payload, req.From)
	switch {
	case errors.Is(err, relay.ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing payload", "payload is required")
		return
	case err != nil:
		h.logger.Error("failed to accept message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to accept message", "")
		return
	}

	if res.Queued {
		writeJSON(w, http.StatusAccepted, QueuedResponse{Queued: true})
		return
	}
	writeJSON(w, http.StatusOK, AckResponse{Ack: res.Ack})
}

// ListMessages handles GET /messages
func (h *RelayHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, n, err := h.svc.Messages(r.Context())
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_error", "Failed to list messages", "")
		return
	}
	if msgs == nil {
		msgs = []*relay.MessageRecord{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: msgs, QueueSize: n})
}
