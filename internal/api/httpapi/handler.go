// Package httpapi provides the control API for a running session: JSON routes
// under /v1 and the Connect RPC services.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/rediseg/internal/api/connect"
	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
	"github.com/osa030/rediseg/internal/infra/metrics"
)

const (
	// ControlTokenHeader is the header name for the control token.
	ControlTokenHeader = apiconnect.ControlTokenHeader
)

// Session defines the session operations exposed over HTTP.
type Session interface {
	Status() session.Status
	Screen() presenter.Screen
	TogglePlayback() error
	SeekTo(position time.Duration) error
	SeekBy(delta time.Duration) error
	Reload() error
	DismissNotice() error
	Scrub(phase presenter.ScrubPhase, x float64) error
	Resize(width float64) error
}

// SeekRequest is the body of POST /v1/playback/seek.
// Exactly one of PositionMs and DeltaMs must be set.
type SeekRequest struct {
	PositionMs *int64 `json:"position_ms,omitempty"`
	DeltaMs    *int64 `json:"delta_ms,omitempty"`
}

// ScrubRequest is the body of POST /v1/scrubber.
type ScrubRequest struct {
	Phase string   `json:"phase"`
	X     *float64 `json:"x,omitempty"`
}

// ResizeRequest is the body of POST /v1/screen/resize.
type ResizeRequest struct {
	Width float64 `json:"width"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Options configures the router.
type Options struct {
	// Token guards the command routes. Empty disables authentication.
	Token string
	// Metrics enables request counting and /metrics when set.
	Metrics *metrics.Metrics
	// CommandsPerMinute limits command requests per client IP. Zero disables the limit.
	CommandsPerMinute int
}

// Handler serves the control API.
type Handler struct {
	session Session
}

// NewRouter builds the control API router.
func NewRouter(s Session, opts Options) http.Handler {
	h := &Handler{session: s}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if opts.Metrics != nil {
		r.Use(metrics.RequestMiddleware(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// Connect RPC services
	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(s)
	r.Mount(playerPath, playerHandler)
	r.Group(func(r chi.Router) {
		if opts.CommandsPerMinute > 0 {
			r.Use(RateLimit(opts.CommandsPerMinute, time.Minute))
		}
		controlPath, controlHandler := apiconnect.NewControlServiceHandler(s,
			connect.WithInterceptors(apiconnect.NewControlAuthInterceptor(opts.Token)))
		r.Mount(controlPath, controlHandler)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/screen", h.GetScreen)
		r.Get("/session", h.GetSession)

		r.Group(func(r chi.Router) {
			if opts.CommandsPerMinute > 0 {
				r.Use(RateLimit(opts.CommandsPerMinute, time.Minute))
			}
			r.Use(TokenMiddleware(opts.Token))
			r.Post("/playback/toggle", h.Toggle)
			r.Post("/playback/seek", h.Seek)
			r.Post("/playback/reload", h.Reload)
			r.Post("/notice/dismiss", h.DismissNotice)
			r.Post("/scrubber", h.Scrub)
			r.Post("/screen/resize", h.Resize)
		})
	})

	return r
}

// TokenMiddleware rejects requests without the control token.
// An empty token lets every request through.
func TokenMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(ControlTokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid control token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits requests per client IP within a sliding window.
func RateLimit(limit int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
		}),
	)
}

// GetScreen handles GET /v1/screen.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Screen())
}

// GetSession handles GET /v1/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Toggle handles POST /v1/playback/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "toggle", h.session.TogglePlayback())
}

// Seek handles POST /v1/playback/seek.
// Body: {"position_ms": 30000} or {"delta_ms": -10000}.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid seek body"})
		return
	}

	switch {
	case req.PositionMs != nil && req.DeltaMs != nil, req.PositionMs == nil && req.DeltaMs == nil:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "exactly one of position_ms and delta_ms is required"})
	case req.PositionMs != nil:
		if *req.PositionMs < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "position_ms must not be negative"})
			return
		}
		position, err := apiconnect.DurationFromMillis(*req.PositionMs)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "position_ms out of range"})
			return
		}
		h.respond(w, "seek", h.session.SeekTo(position))
	default:
		delta, err := apiconnect.DurationFromMillis(*req.DeltaMs)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "delta_ms out of range"})
			return
		}
		h.respond(w, "seek", h.session.SeekBy(delta))
	}
}

// Scrub handles POST /v1/scrubber.
// Body: {"phase": "began"}, {"phase": "moved", "x": 120} or {"phase": "ended", "x": 120}.
func (h *Handler) Scrub(w http.ResponseWriter, r *http.Request) {
	var req ScrubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid scrub body"})
		return
	}
	phase, err := presenter.ParseScrubPhase(req.Phase)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var x float64
	if phase != presenter.ScrubBegan {
		if req.X == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "x is required"})
			return
		}
		x = *req.X
	}
	h.respond(w, "scrub", h.session.Scrub(phase, x))
}

// Resize handles POST /v1/screen/resize.
// Body: {"width": 640}.
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid resize body"})
		return
	}
	h.respond(w, "resize", h.session.Resize(req.Width))
}

// Reload handles POST /v1/playback/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "reload", h.session.Reload())
}

// DismissNotice handles POST /v1/notice/dismiss.
func (h *Handler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "dismiss", h.session.DismissNotice())
}

// respond writes the screen after a successful command or maps the error to a status.
func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, h.session.Screen())
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zlog.Error().Err(err).Msgf("api: %s failed", op)
	} else {
		zlog.Debug().Err(err).Msgf("api: %s rejected", op)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch apiconnect.CodeOf(err) {
	case connect.CodeFailedPrecondition:
		return http.StatusConflict
	case connect.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		// Engine command failures
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("api: failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("api: %s %s status=%d duration=%v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
