// Package metrics exposes playback metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/rediseg/internal/app/playback"
)

var allStates = []playback.State{
	playback.StateWaiting,
	playback.StateRestarting,
	playback.StateReloading,
	playback.StateBuffering,
	playback.StatePlaying,
	playback.StatePaused,
	playback.StateStopped,
	playback.StateEnded,
	playback.StateError,
	playback.StatePausedToSeek,
}

// Metrics holds Prometheus collectors for the player.
type Metrics struct {
	registry *prometheus.Registry

	stateTransitions *prometheus.CounterVec
	playbackErrors   *prometheus.CounterVec
	mediaEnded       prometheus.Counter
	reloads          prometheus.Counter
	sessions         prometheus.Counter
	currentState     *prometheus.GaugeVec
	position         prometheus.Gauge
	duration         prometheus.Gauge
	requests         *prometheus.CounterVec
}

// New creates and registers the player metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "player_state_transitions_total",
			Help: "Total number of playback state transitions",
		}, []string{"from", "to"}),
		playbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "player_errors_total",
			Help: "Total number of playback failures by reason",
		}, []string{"reason"}),
		mediaEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_media_ended_total",
			Help: "Total number of on-demand media played through to the end",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_reloads_total",
			Help: "Total number of reloads",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "player_sessions_total",
			Help: "Total number of prepared media sessions",
		}),
		currentState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "player_state",
			Help: "Current playback state (1 for the active state)",
		}, []string{"state"}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "player_position_seconds",
			Help: "Current playback position",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "player_duration_seconds",
			Help: "Duration of the current media (0 for live streams)",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "player_api_requests_total",
			Help: "Total number of control API requests",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		m.stateTransitions,
		m.playbackErrors,
		m.mediaEnded,
		m.reloads,
		m.sessions,
		m.currentState,
		m.position,
		m.duration,
		m.requests,
	)
	m.setState(playback.StateWaiting)
	return m
}

// OnPlaybackEvent implements playback.Observer.
func (m *Metrics) OnPlaybackEvent(e playback.Event) {
	switch e.Type {
	case playback.EventStateChanged:
		m.stateChanged(e)
	case playback.EventTimeChanged:
		m.position.Set(e.CurrentTime.Seconds())
	case playback.EventDurationAcquired:
		m.duration.Set(e.Duration.Seconds())
	}
}

func (m *Metrics) stateChanged(e playback.Event) {
	// Only Prepare moves the controller into waiting
	if e.State == playback.StateWaiting {
		m.sessions.Inc()
		m.position.Set(0)
		m.duration.Set(0)
	}
	if e.State != e.Previous {
		m.stateTransitions.WithLabelValues(e.Previous.String(), e.State.String()).Inc()
	}
	m.setState(e.State)

	switch e.State {
	case playback.StateEnded:
		m.mediaEnded.Inc()
	case playback.StateRestarting:
		m.reloads.Inc()
	case playback.StateError:
		reason := "unknown"
		var perr *playback.PlaybackError
		if errors.As(e.Err, &perr) {
			reason = perr.Reason.String()
		}
		m.playbackErrors.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) setState(current playback.State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.currentState.WithLabelValues(s.String()).Set(v)
	}
}

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestMiddleware returns chi middleware that counts requests by method and status.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		})
	}
}
