package control

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/brainstorm/go/internal/auth"
	"github.com/mcdev12/brainstorm/go/internal/models"
	"github.com/mcdev12/brainstorm/go/internal/session/coordinator"
	"github.com/rs/zerolog/log"
)

const ServiceName = "brainstorm.v1.SessionService"

const (
	CreateSessionProcedure   = "/" + ServiceName + "/CreateSession"
	ControlSessionProcedure  = "/" + ServiceName + "/ControlSession"
	GetSessionStateProcedure = "/" + ServiceName + "/GetSessionState"
	ListRoundsProcedure      = "/" + ServiceName + "/ListRounds"
	GetSessionIdeasProcedure = "/" + ServiceName + "/GetSessionIdeas"
	GetSessionLogProcedure   = "/" + ServiceName + "/GetSessionLog"
)

// Sessions defines what the control API needs from the session registry
type Sessions interface {
	Create(ctx context.Context, actor uuid.UUID, req coordinator.CreateRequest) (models.Session, error)
	Control(ctx context.Context, sessionID, actor uuid.UUID, action coordinator.Action) (models.SessionStatus, error)
	Snapshot(ctx context.Context, sessionID, viewer uuid.UUID) (coordinator.Snapshot, error)
	Rounds(ctx context.Context, sessionID, viewer uuid.UUID) ([]models.Round, error)
	Ideas(ctx context.Context, sessionID, viewer uuid.UUID) ([]coordinator.RoundIdeas, error)
	Log(ctx context.Context, sessionID, viewer uuid.UUID) ([]models.SessionLog, error)
}

// Service implements the SessionService connect API
type Service struct {
	sessions Sessions
}

func NewService(sessions Sessions) *Service {
	return &Service{sessions: sessions}
}

// Handler mounts every procedure of the service. opts are appended to the
// JSON codec, typically with the auth interceptor.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, s.CreateSession, opts...))
	mux.Handle(ControlSessionProcedure, connect.NewUnaryHandler(ControlSessionProcedure, s.ControlSession, opts...))
	mux.Handle(GetSessionStateProcedure, connect.NewUnaryHandler(GetSessionStateProcedure, s.GetSessionState, opts...))
	mux.Handle(ListRoundsProcedure, connect.NewUnaryHandler(ListRoundsProcedure, s.ListRounds, opts...))
	mux.Handle(GetSessionIdeasProcedure, connect.NewUnaryHandler(GetSessionIdeasProcedure, s.GetSessionIdeas, opts...))
	mux.Handle(GetSessionLogProcedure, connect.NewUnaryHandler(GetSessionLogProcedure, s.GetSessionLog, opts...))
	return "/" + ServiceName + "/", mux
}

// CreateSession creates a PENDING session for a team
func (s *Service) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, actor, coordinator.CreateRequest{
		TeamID:           req.Msg.TeamID,
		TopicID:          req.Msg.TopicID,
		RoundCount:       req.Msg.RoundCount,
		RoundDurationSec: req.Msg.RoundDurationSec,
	})
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&CreateSessionResponse{Session: session}), nil
}

// ControlSession applies start, pause, resume or end and returns the new status
func (s *Service) ControlSession(ctx context.Context, req *connect.Request[ControlSessionRequest]) (*connect.Response[ControlSessionResponse], error) {
	actor, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	action, err := coordinator.ParseAction(req.Msg.Action)
	if err != nil {
		return nil, connectError(err)
	}

	status, err := s.sessions.Control(ctx, req.Msg.SessionID, actor, action)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&ControlSessionResponse{Status: status}), nil
}

func (s *Service) GetSessionState(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionStateResponse], error) {
	viewer, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := s.sessions.Snapshot(ctx, req.Msg.SessionID, viewer)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&SessionStateResponse{State: snap}), nil
}

func (s *Service) ListRounds(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[ListRoundsResponse], error) {
	viewer, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	rounds, err := s.sessions.Rounds(ctx, req.Msg.SessionID, viewer)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&ListRoundsResponse{Rounds: rounds}), nil
}

func (s *Service) GetSessionIdeas(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionIdeasResponse], error) {
	viewer, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	ideas, err := s.sessions.Ideas(ctx, req.Msg.SessionID, viewer)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&SessionIdeasResponse{Rounds: ideas}), nil
}

func (s *Service) GetSessionLog(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionLogResponse], error) {
	viewer, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.sessions.Log(ctx, req.Msg.SessionID, viewer)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&SessionLogResponse{Entries: entries}), nil
}

func caller(ctx context.Context) (uuid.UUID, error) {
	id, ok := auth.UserID(ctx)
	if !ok {
		return uuid.Nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrUnauthenticated)
	}
	return id, nil
}

// connectError maps the session error taxonomy onto connect codes. Internal
// errors are logged and hidden from the caller.
func connectError(err error) error {
	var code connect.Code
	switch coordinator.KindOf(err) {
	case coordinator.KindValidation:
		code = connect.CodeInvalidArgument
	case coordinator.KindStateConflict:
		code = connect.CodeFailedPrecondition
	case coordinator.KindForbidden:
		code = connect.CodePermissionDenied
	case coordinator.KindNotFound:
		code = connect.CodeNotFound
	default:
		log.Error().Err(err).Msg("session control request failed")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	return connect.NewError(code, err)
}
