package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

type fakeSession struct {
	calls  []string
	seekTo time.Duration
	seekBy time.Duration
	err    error
}

func (f *fakeSession) Status() session.Status {
	return session.Status{SessionID: "s1", State: "playing", CurrentTime: 3600000, Observers: []string{"presenter"}}
}

func (f *fakeSession) Screen() presenter.Screen {
	return presenter.Screen{SessionID: "s1", State: "playing", ControlIcon: presenter.IconPause, SeekBarWidth: 320}
}

func (f *fakeSession) TogglePlayback() error {
	f.calls = append(f.calls, "toggle")
	return f.err
}

func (f *fakeSession) SeekTo(p time.Duration) error {
	f.calls = append(f.calls, "seek_to")
	f.seekTo = p
	return f.err
}

func (f *fakeSession) SeekBy(d time.Duration) error {
	f.calls = append(f.calls, "seek_by")
	f.seekBy = d
	return f.err
}

func (f *fakeSession) Reload() error {
	f.calls = append(f.calls, "reload")
	return f.err
}

func (f *fakeSession) DismissNotice() error {
	f.calls = append(f.calls, "dismiss")
	return f.err
}

func newServer(t *testing.T, s Session, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewPlayerServiceHandler(s))
	mux.Handle(NewControlServiceHandler(s, connect.WithInterceptors(NewControlAuthInterceptor(token))))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func emptyCall(t *testing.T, srv *httptest.Server, procedure, token string) (*structpb.Struct, error) {
	t.Helper()
	client := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+procedure)
	req := connect.NewRequest(&emptypb.Empty{})
	if token != "" {
		req.Header().Set(ControlTokenHeader, token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func millisCall(t *testing.T, srv *httptest.Server, procedure string, ms int64) (*structpb.Struct, error) {
	t.Helper()
	client := connect.NewClient[wrapperspb.Int64Value, structpb.Struct](srv.Client(), srv.URL+procedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.Int64(ms)))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestPlayerService_Reads(t *testing.T) {
	srv := newServer(t, &fakeSession{}, "secret")

	msg, err := emptyCall(t, srv, GetScreenProcedure, "")
	require.NoError(t, err)
	var screen presenter.Screen
	require.NoError(t, Decode(msg, &screen))
	assert.Equal(t, presenter.IconPause, screen.ControlIcon)
	assert.Equal(t, 320.0, screen.SeekBarWidth)

	msg, err = emptyCall(t, srv, GetStatusProcedure, "")
	require.NoError(t, err)
	var status session.Status
	require.NoError(t, Decode(msg, &status))
	assert.Equal(t, "s1", status.SessionID)
	assert.Equal(t, int64(3600000), status.CurrentTime)
	assert.Equal(t, []string{"presenter"}, status.Observers)
}

func TestControlService_Commands(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		wantCall  string
	}{
		{name: "toggle", procedure: ToggleProcedure, wantCall: "toggle"},
		{name: "reload", procedure: ReloadProcedure, wantCall: "reload"},
		{name: "dismiss", procedure: DismissNoticeProcedure, wantCall: "dismiss"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			srv := newServer(t, s, "")

			msg, err := emptyCall(t, srv, tt.procedure, "")
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantCall}, s.calls)

			var screen presenter.Screen
			require.NoError(t, Decode(msg, &screen))
			assert.Equal(t, "s1", screen.SessionID)
		})
	}
}

func TestControlService_Seek(t *testing.T) {
	s := &fakeSession{}
	srv := newServer(t, s, "")

	_, err := millisCall(t, srv, SeekToProcedure, 30000)
	require.NoError(t, err)
	_, err = millisCall(t, srv, SeekByProcedure, -1500)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, s.seekTo)
	assert.Equal(t, -1500*time.Millisecond, s.seekBy)
}

func TestControlService_SeekValidation(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		ms        int64
	}{
		{name: "negative position", procedure: SeekToProcedure, ms: -1},
		{name: "position overflow", procedure: SeekToProcedure, ms: maxMillis + 1},
		{name: "delta overflow", procedure: SeekByProcedure, ms: -maxMillis - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			_, err := millisCall(t, newServer(t, s, ""), tt.procedure, tt.ms)
			require.Error(t, err)
			assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
			assert.Empty(t, s.calls)
		})
	}
}

func TestControlService_Token(t *testing.T) {
	s := &fakeSession{}
	srv := newServer(t, s, "secret")

	_, err := emptyCall(t, srv, ToggleProcedure, "")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = emptyCall(t, srv, ToggleProcedure, "wrong")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.Empty(t, s.calls)

	_, err = emptyCall(t, srv, ToggleProcedure, "secret")
	require.NoError(t, err)
	assert.Equal(t, []string{"toggle"}, s.calls)
}

func TestControlService_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{name: "not running", err: session.ErrSessionNotRunning, want: connect.CodeFailedPrecondition},
		{name: "engine failure", err: errors.Wrap(errors.New("socket closed"), "engine play failed"), want: connect.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := emptyCall(t, newServer(t, &fakeSession{err: tt.err}, ""), ReloadProcedure, "")
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}
}

func TestDurationFromMillis(t *testing.T) {
	tests := []struct {
		name    string
		ms      int64
		want    time.Duration
		wantErr bool
	}{
		{name: "zero", ms: 0, want: 0},
		{name: "negative", ms: -2500, want: -2500 * time.Millisecond},
		{name: "largest", ms: maxMillis, want: time.Duration(maxMillis) * time.Millisecond},
		{name: "too large", ms: maxMillis + 1, wantErr: true},
		{name: "too small", ms: -maxMillis - 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DurationFromMillis(tt.ms)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
