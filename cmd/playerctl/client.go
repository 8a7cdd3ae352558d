package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apiconnect "github.com/osa030/rediseg/internal/api/connect"
	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

// client calls the player Connect services.
type client struct {
	token string

	getScreen *connect.Client[emptypb.Empty, structpb.Struct]
	getStatus *connect.Client[emptypb.Empty, structpb.Struct]
	toggle    *connect.Client[emptypb.Empty, structpb.Struct]
	reload    *connect.Client[emptypb.Empty, structpb.Struct]
	dismiss   *connect.Client[emptypb.Empty, structpb.Struct]
	seekTo    *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	seekBy    *connect.Client[wrapperspb.Int64Value, structpb.Struct]
}

func newClient(base, token string, timeout time.Duration) *client {
	httpClient := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")

	empty := func(procedure string) *connect.Client[emptypb.Empty, structpb.Struct] {
		return connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, base+procedure)
	}
	millis := func(procedure string) *connect.Client[wrapperspb.Int64Value, structpb.Struct] {
		return connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, base+procedure)
	}

	return &client{
		token:     token,
		getScreen: empty(apiconnect.GetScreenProcedure),
		getStatus: empty(apiconnect.GetStatusProcedure),
		toggle:    empty(apiconnect.ToggleProcedure),
		reload:    empty(apiconnect.ReloadProcedure),
		dismiss:   empty(apiconnect.DismissNoticeProcedure),
		seekTo:    millis(apiconnect.SeekToProcedure),
		seekBy:    millis(apiconnect.SeekByProcedure),
	}
}

func (c *client) Status(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := call(ctx, c.getStatus, &emptypb.Empty{}, "", &st)
	return st, err
}

func (c *client) Screen(ctx context.Context) (presenter.Screen, error) {
	var s presenter.Screen
	err := call(ctx, c.getScreen, &emptypb.Empty{}, "", &s)
	return s, err
}

func (c *client) Toggle(ctx context.Context) (presenter.Screen, error) {
	return command(ctx, c, c.toggle, &emptypb.Empty{})
}

func (c *client) SeekTo(ctx context.Context, position time.Duration) (presenter.Screen, error) {
	return command(ctx, c, c.seekTo, wrapperspb.Int64(position.Milliseconds()))
}

func (c *client) SeekBy(ctx context.Context, delta time.Duration) (presenter.Screen, error) {
	return command(ctx, c, c.seekBy, wrapperspb.Int64(delta.Milliseconds()))
}

func (c *client) Reload(ctx context.Context) (presenter.Screen, error) {
	return command(ctx, c, c.reload, &emptypb.Empty{})
}

func (c *client) Dismiss(ctx context.Context) (presenter.Screen, error) {
	return command(ctx, c, c.dismiss, &emptypb.Empty{})
}

func command[Req any](ctx context.Context, c *client, rpc *connect.Client[Req, structpb.Struct], msg *Req) (presenter.Screen, error) {
	var s presenter.Screen
	err := call(ctx, rpc, msg, c.token, &s)
	return s, err
}

func call[Req any](ctx context.Context, rpc *connect.Client[Req, structpb.Struct], msg *Req, token string, out any) error {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set(apiconnect.ControlTokenHeader, token)
	}

	resp, err := rpc.CallUnary(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s failed", req.Spec().Procedure)
	}
	return apiconnect.Decode(resp.Msg, out)
}
