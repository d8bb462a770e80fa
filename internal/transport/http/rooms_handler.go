package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

var errMissingUser = errors.New("missing userId")

// RoomReader answers room summary lookups.
type RoomReader interface {
	RoomInfo(ctx context.Context, name string) (domain.RoomInfo, error)
}

// RoomsHandler serves read-only room summaries.
type RoomsHandler struct {
	rooms  RoomReader
	logger *zap.Logger
}

func NewRoomsHandler(rooms RoomReader, logger *zap.Logger) *RoomsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomsHandler{rooms: rooms, logger: logger}
}

// ServeRoom handles GET /rooms/{name}.
func (h *RoomsHandler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.RoomInfo(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	payload := domain.ErrorEvent(err).Payload.(domain.ErrorPayload)
	writeJSON(w, statusFor(payload.Kind), payload)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthMismatch:
		return http.StatusUnauthorized
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
