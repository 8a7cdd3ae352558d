package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/rediseg/internal/api/connect"
	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
	"github.com/osa030/rediseg/internal/infra/metrics"
)

type fakeSession struct {
	calls  []string
	seekTo time.Duration
	seekBy time.Duration
	phase  presenter.ScrubPhase
	x      float64
	width  float64
	err    error
}

func (f *fakeSession) Status() session.Status {
	return session.Status{SessionID: "s1", State: "playing"}
}

func (f *fakeSession) Screen() presenter.Screen {
	return presenter.Screen{SessionID: "s1", State: "playing", ControlIcon: presenter.IconPause}
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

func (f *fakeSession) Scrub(phase presenter.ScrubPhase, x float64) error {
	f.calls = append(f.calls, "scrub")
	f.phase = phase
	f.x = x
	return f.err
}

func (f *fakeSession) Resize(width float64) error {
	f.calls = append(f.calls, "resize")
	if width <= 0 {
		return session.ErrInvalidWidth
	}
	f.width = width
	return f.err
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Reads(t *testing.T) {
	h := NewRouter(&fakeSession{}, Options{Token: "secret"})

	rec := do(t, h, http.MethodGet, "/v1/screen", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var screen presenter.Screen
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &screen))
	assert.Equal(t, presenter.IconPause, screen.ControlIcon)

	rec = do(t, h, http.MethodGet, "/v1/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "s1", status.SessionID)

	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Commands(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCall string
	}{
		{name: "toggle", path: "/v1/playback/toggle", wantCall: "toggle"},
		{name: "reload", path: "/v1/playback/reload", wantCall: "reload"},
		{name: "dismiss", path: "/v1/notice/dismiss", wantCall: "dismiss"},
		{name: "seek to", path: "/v1/playback/seek", body: `{"position_ms":30000}`, wantCall: "seek_to"},
		{name: "seek by", path: "/v1/playback/seek", body: `{"delta_ms":-10000}`, wantCall: "seek_by"},
		{name: "scrub", path: "/v1/scrubber", body: `{"phase":"moved","x":120}`, wantCall: "scrub"},
		{name: "resize", path: "/v1/screen/resize", body: `{"width":640}`, wantCall: "resize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			h := NewRouter(s, Options{})

			rec := do(t, h, http.MethodPost, tt.path, tt.body, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.wantCall}, s.calls)
		})
	}
}

func TestRouter_SeekValues(t *testing.T) {
	s := &fakeSession{}
	h := NewRouter(s, Options{})

	do(t, h, http.MethodPost, "/v1/playback/seek", `{"position_ms":30000}`, nil)
	do(t, h, http.MethodPost, "/v1/playback/seek", `{"delta_ms":-1500}`, nil)

	assert.Equal(t, 30*time.Second, s.seekTo)
	assert.Equal(t, -1500*time.Millisecond, s.seekBy)
}

func TestRouter_SeekValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"position_ms":`},
		{name: "empty", body: `{}`},
		{name: "both", body: `{"position_ms":1,"delta_ms":1}`},
		{name: "negative position", body: `{"position_ms":-1}`},
		{name: "position overflow", body: `{"position_ms":9223372036855}`},
		{name: "delta overflow", body: `{"delta_ms":-9223372036855}`},
		{name: "delta max int64", body: `{"delta_ms":9223372036854775807}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			rec := do(t, NewRouter(s, Options{}), http.MethodPost, "/v1/playback/seek", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, s.calls)
		})
	}
}

func TestRouter_SeekLimits(t *testing.T) {
	s := &fakeSession{}
	h := NewRouter(s, Options{})

	rec := do(t, h, http.MethodPost, "/v1/playback/seek", `{"delta_ms":9223372036854}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9223372036854*time.Millisecond, s.seekBy)
}

func TestRouter_Scrub(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantPhase presenter.ScrubPhase
		wantX     float64
	}{
		{name: "began without x", body: `{"phase":"began"}`, wantCode: http.StatusOK, wantPhase: presenter.ScrubBegan},
		{name: "ended", body: `{"phase":"ended","x":80.5}`, wantCode: http.StatusOK, wantPhase: presenter.ScrubEnded, wantX: 80.5},
		{name: "moved without x", body: `{"phase":"moved"}`, wantCode: http.StatusBadRequest},
		{name: "unknown phase", body: `{"phase":"flick","x":1}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"phase":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{}
			rec := do(t, NewRouter(s, Options{}), http.MethodPost, "/v1/scrubber", tt.body, nil)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Empty(t, s.calls)
				return
			}
			assert.Equal(t, tt.wantPhase, s.phase)
			assert.Equal(t, tt.wantX, s.x)
		})
	}
}

func TestRouter_ResizeRejectsWidth(t *testing.T) {
	s := &fakeSession{}
	rec := do(t, NewRouter(s, Options{}), http.MethodPost, "/v1/screen/resize", `{"width":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.width)
}

func TestRouter_Token(t *testing.T) {
	s := &fakeSession{}
	h := NewRouter(s, Options{Token: "secret"})

	rec := do(t, h, http.MethodPost, "/v1/playback/toggle", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/playback/toggle", "", map[string]string{ControlTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.calls)

	rec = do(t, h, http.MethodPost, "/v1/playback/toggle", "", map[string]string{ControlTokenHeader: "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"toggle"}, s.calls)
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not running", err: session.ErrSessionNotRunning, want: http.StatusConflict},
		{name: "engine failure", err: errors.Wrap(errors.New("socket closed"), "engine play failed"), want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, NewRouter(&fakeSession{err: tt.err}, Options{}), http.MethodPost, "/v1/playback/reload", "", nil)
			assert.Equal(t, tt.want, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	m := metrics.New()
	h := NewRouter(&fakeSession{}, Options{Metrics: m})

	do(t, h, http.MethodGet, "/v1/screen", "", nil)
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `player_api_requests_total{code="200",method="GET"}`)
}

func TestRouter_RateLimit(t *testing.T) {
	s := &fakeSession{}
	h := NewRouter(s, Options{CommandsPerMinute: 2})

	for range 2 {
		rec := do(t, h, http.MethodPost, "/v1/playback/toggle", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/v1/playback/toggle", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Len(t, s.calls, 2)

	// Reads are not limited
	rec = do(t, h, http.MethodGet, "/v1/screen", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ConnectServices(t *testing.T) {
	s := &fakeSession{}
	srv := httptest.NewServer(NewRouter(s, Options{Token: "secret", CommandsPerMinute: 1}))
	t.Cleanup(srv.Close)

	call := func(procedure, token string) (*structpb.Struct, error) {
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

	// Reads need no token and are not limited
	for range 3 {
		msg, err := call(apiconnect.GetScreenProcedure, "")
		require.NoError(t, err)
		var screen presenter.Screen
		require.NoError(t, apiconnect.Decode(msg, &screen))
		assert.Equal(t, presenter.IconPause, screen.ControlIcon)
	}

	_, err := call(apiconnect.ToggleProcedure, "secret")
	require.NoError(t, err)
	assert.Equal(t, []string{"toggle"}, s.calls)

	_, err = call(apiconnect.ToggleProcedure, "secret")
	require.Error(t, err)
	assert.Len(t, s.calls, 1)
}

func TestRouter_ConnectToken(t *testing.T) {
	s := &fakeSession{}
	srv := httptest.NewServer(NewRouter(s, Options{Token: "secret"}))
	t.Cleanup(srv.Close)

	client := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+apiconnect.ReloadProcedure)
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.Empty(t, s.calls)
}
