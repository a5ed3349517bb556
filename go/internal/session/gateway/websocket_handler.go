package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/auth"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for session connections
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleSessionConnection serves /ws/sessions/{sessionID}. Access is checked
// before the upgrade so a refused client gets a plain HTTP status.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.hub.config.RequestTimeout)
	_, err = h.hub.sessions.Snapshot(ctx, sessionID, userID)
	cancel()
	if err != nil {
		kind := coordinator.KindOf(err)
		if kind == coordinator.KindInternal {
			log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to load session for connection")
		}
		http.Error(w, kind.String(), kind.HTTPStatus())
		return
	}

	// a failed upgrade has already written its response
	if err := h.hub.Attach(w, r, sessionID, userID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("user_id", userID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes mounts the socket endpoint behind authn and the stats endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.With(authn).Get("/ws/sessions/{sessionID}", h.HandleSessionConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
}
