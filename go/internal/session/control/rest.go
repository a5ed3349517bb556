package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/auth"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/rs/zerolog/log"
)

// RESTHandler serves the control API as plain JSON for browser UIs.
type RESTHandler struct {
	sessions Sessions
}

func NewRESTHandler(sessions Sessions) *RESTHandler {
	return &RESTHandler{sessions: sessions}
}

// RegisterRoutes mounts the session routes behind authn.
func (h *RESTHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(authn)
		r.Post("/", h.HandleCreate)
		r.Post("/{sessionID}/control", h.HandleControl)
		r.Get("/{sessionID}/state", h.HandleState)
		r.Get("/{sessionID}/rounds", h.HandleRounds)
		r.Get("/{sessionID}/ideas", h.HandleIdeas)
		r.Get("/{sessionID}/log", h.HandleLog)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *RESTHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())

	var req coordinator.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, coordinator.KindValidation, "invalid request body")
		return
	}

	session, err := h.sessions.Create(r.Context(), actor, req)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// HandleControl applies {action} and responds with the new {status}.
func (h *RESTHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	actor, _ := auth.UserID(r.Context())

	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, coordinator.KindValidation, "invalid request body")
		return
	}
	action, err := coordinator.ParseAction(body.Action)
	if err != nil {
		writeKindError(w, err)
		return
	}

	status, err := h.sessions.Control(r.Context(), sessionID, actor, action)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ControlSessionResponse{Status: status})
}

func (h *RESTHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	viewer, _ := auth.UserID(r.Context())

	snap, err := h.sessions.Snapshot(r.Context(), sessionID, viewer)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RESTHandler) HandleRounds(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	viewer, _ := auth.UserID(r.Context())

	rounds, err := h.sessions.Rounds(r.Context(), sessionID, viewer)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListRoundsResponse{Rounds: rounds})
}

func (h *RESTHandler) HandleIdeas(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	viewer, _ := auth.UserID(r.Context())

	ideas, err := h.sessions.Ideas(r.Context(), sessionID, viewer)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionIdeasResponse{Rounds: ideas})
}

func (h *RESTHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	viewer, _ := auth.UserID(r.Context())

	entries, err := h.sessions.Log(r.Context(), sessionID, viewer)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionLogResponse{Entries: entries})
}

func sessionParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, coordinator.KindValidation, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func writeKindError(w http.ResponseWriter, err error) {
	kind := coordinator.KindOf(err)
	msg := err.Error()
	if kind == coordinator.KindInternal {
		log.Error().Err(err).Msg("session request failed")
		msg = "internal error"
	}
	writeError(w, kind.HTTPStatus(), kind, msg)
}

func writeError(w http.ResponseWriter, status int, kind coordinator.Kind, msg string) {
	writeJSON(w, status, errorResponse{Code: kind.String(), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
