package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/command"
	"github.com/lalithlochan/beacon/internal/db"
)

// CommandService is what the command handler needs from command.Service.
type CommandService interface {
	Ingest(ctx context.Context, raw string) (*command.Result, error)
	SafeBases(ctx context.Context) ([]*db.SafeBase, error)
	RecentEvents(ctx context.Context) ([]*db.SosEvent, error)
	UpsertSafeBase(ctx context.Context, b *db.SafeBase) error
}

// SOSRequest is the body of POST /sos.
type SOSRequest struct {
	Raw string `json:"raw"`
}

// AckResponse carries the formatted ack on both services.
type AckResponse struct {
	Ack string `json:"ack"`
}

// SafeBaseRequest is the body of PUT /safe_bases/{id}.
type SafeBaseRequest struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Capacity int     `json:"capacity"`
	Filled   int     `json:"filled"`
}

// CommandHandler serves the command service routes.
type CommandHandler struct {
	logger *zap.Logger
	svc    CommandService
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(logger *zap.Logger, svc CommandService) *CommandHandler {
	return &CommandHandler{logger: logger, svc: svc}
}

// Routes registers the command endpoints. The fan-out socket is mounted by
// the caller because it must bypass request timeouts.
func (h *CommandHandler) Routes(r chi.Router) {
	r.Post("/sos", h.IngestSOS)
	r.Get("/safe_bases", h.ListSafeBases)
	r.Put("/safe_bases/{id}", h.PutSafeBase)
	r.Get("/events", h.ListEvents)
	r.Get("/health", Health)
}

// IngestSOS handles POST /sos
func (h *CommandHandler) IngestSOS(w http.ResponseWriter, r *http.Request) {
	var req SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	res, err := h.svc.Ingest(r.Context(), req.Raw)
	switch {
	case errors.Is(err, command.ErrMissingRaw):
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing raw", "raw is required")
		return
	case err != nil:
		h.logger.Error("failed to ingest alert", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process alert", "")
		return
	}

	writeJSON(w, http.StatusOK, AckResponse{Ack: res.Ack.String()})
}

// ListSafeBases handles GET /safe_bases
func (h *CommandHandler) ListSafeBases(w http.ResponseWriter, r *http.Request) {
	bases, err := h.svc.SafeBases(r.Context())
	if err != nil {
		h.logger.Error("failed to list safe bases", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database_error", "Failed to list safe bases", "")
		return
	}
	if bases == nil {
		bases = []*db.SafeBase{}
	}
	writeJSON(w, http.StatusOK, bases)
}

// PutSafeBase handles PUT /safe_bases/{id}
func (h *CommandHandler) PutSafeBase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing safe base id", "")
		return
	}

	var req SafeBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if math.Abs(req.Lat) > 90 || math.Abs(req.Lon) > 180 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid coordinates",
			"lat must be within [-90, 90] and lon within [-180, 180]")
		return
	}
	if req.Capacity < 0 || req.Filled < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid occupancy",
			"capacity and filled must be >= 0")
		return
	}

	base := &db.SafeBase{
		ID:       id,
		Name:     req.Name,
		Lat:      req.Lat,
		Lon:      req.Lon,
		Capacity: req.Capacity,
		Filled:   req.Filled,
	}
	if err := h.svc.UpsertSafeBase(r.Context(), base); err != nil {
		h.logger.Error("failed to upsert safe base", zap.Error(err), zap.String("id", id))
		writeError(w, http.StatusInternalServerError, "database_error", "Failed to update safe base", "")
		return
	}

	writeJSON(w, http.StatusOK, base)
}

// ListEvents handles GET /events
func (h *CommandHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.RecentEvents(r.Context())
	if err != nil {
		h.logger.Error("failed to list events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database_error", "Failed to list events", "")
		return
	}
	if events == nil {
		events = []*db.SosEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
