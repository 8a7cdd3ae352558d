package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/rediseg/internal/app/playback"
	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

const (
	// PlayerServiceName is the fully-qualified name of the read-only service.
	PlayerServiceName = "rediseg.player.v1.PlayerService"
	// ControlServiceName is the fully-qualified name of the command service.
	ControlServiceName = "rediseg.player.v1.ControlService"
)

// Procedure paths.
const (
	GetScreenProcedure     = "/" + PlayerServiceName + "/GetScreen"
	GetStatusProcedure     = "/" + PlayerServiceName + "/GetStatus"
	ToggleProcedure        = "/" + ControlServiceName + "/Toggle"
	SeekToProcedure        = "/" + ControlServiceName + "/SeekTo"
	SeekByProcedure        = "/" + ControlServiceName + "/SeekBy"
	ReloadProcedure        = "/" + ControlServiceName + "/Reload"
	DismissNoticeProcedure = "/" + ControlServiceName + "/DismissNotice"
)

// Session defines the session operations exposed over Connect.
type Session interface {
	Status() session.Status
	Screen() presenter.Screen
	TogglePlayback() error
	SeekTo(position time.Duration) error
	SeekBy(delta time.Duration) error
	Reload() error
	DismissNotice() error
}

// PlayerService implements the read procedures.
type PlayerService struct {
	session Session
}

// NewPlayerServiceHandler builds the PlayerService handler and returns the
// path to mount it on.
func NewPlayerServiceHandler(s Session, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := &PlayerService{session: s}
	opts = append(opts, connect.WithIdempotency(connect.IdempotencyNoSideEffects))

	mux := http.NewServeMux()
	mux.Handle(GetScreenProcedure, connect.NewUnaryHandler(GetScreenProcedure, svc.GetScreen, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// GetScreen returns the current screen.
func (s *PlayerService) GetScreen(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return structResponse(s.session.Screen())
}

// GetStatus returns the session status.
func (s *PlayerService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return structResponse(s.session.Status())
}

// ControlService implements the command procedures. Every command replies
// with the screen after the command.
type ControlService struct {
	session Session
}

// NewControlServiceHandler builds the ControlService handler and returns the
// path to mount it on.
func NewControlServiceHandler(s Session, opts ...connect.HandlerOption) (string, http.Handler) {
	svc := &ControlService{session: s}

	mux := http.NewServeMux()
	mux.Handle(ToggleProcedure, connect.NewUnaryHandler(ToggleProcedure, svc.Toggle, opts...))
	mux.Handle(SeekToProcedure, connect.NewUnaryHandler(SeekToProcedure, svc.SeekTo, opts...))
	mux.Handle(SeekByProcedure, connect.NewUnaryHandler(SeekByProcedure, svc.SeekBy, opts...))
	mux.Handle(ReloadProcedure, connect.NewUnaryHandler(ReloadProcedure, svc.Reload, opts...))
	mux.Handle(DismissNoticeProcedure, connect.NewUnaryHandler(DismissNoticeProcedure, svc.DismissNotice, opts...))
	return "/" + ControlServiceName + "/", mux
}

// Toggle presses the playback control button.
func (s *ControlService) Toggle(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.respond("toggle", s.session.TogglePlayback())
}

// SeekTo jumps to the position in milliseconds.
func (s *ControlService) SeekTo(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	ms := req.Msg.GetValue()
	if ms < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	position, err := DurationFromMillis(ms)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.respond("seek", s.session.SeekTo(position))
}

// SeekBy jumps by the delta in milliseconds.
func (s *ControlService) SeekBy(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	delta, err := DurationFromMillis(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.respond("seek", s.session.SeekBy(delta))
}

// Reload reloads the media.
func (s *ControlService) Reload(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.respond("reload", s.session.Reload())
}

// DismissNotice clears the error notice.
func (s *ControlService) DismissNotice(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.respond("dismiss", s.session.DismissNotice())
}

func (s *ControlService) respond(op string, err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		code := CodeOf(err)
		if code == connect.CodeUnavailable {
			zlog.Error().Err(err).Msgf("rpc: %s failed", op)
		} else {
			zlog.Debug().Err(err).Msgf("rpc: %s rejected", op)
		}
		return nil, connect.NewError(code, err)
	}
	return structResponse(s.session.Screen())
}

// CodeOf maps a session error to a Connect code.
func CodeOf(err error) connect.Code {
	switch {
	case errors.Is(err, session.ErrSessionNotRunning),
		errors.Is(err, playback.ErrNotPrepared),
		errors.Is(err, playback.ErrClosed):
		return connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrInvalidWidth),
		errors.Is(err, presenter.ErrUnknownScrubPhase),
		errors.Is(err, ErrOutOfRange):
		return connect.CodeInvalidArgument
	default:
		// Engine command failures
		return connect.CodeUnavailable
	}
}

func structResponse(v any) (*connect.Response[structpb.Struct], error) {
	msg, err := toStruct(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
