// Package session provides the session manager that wires the playback
// controller, the screen presenter and metrics around one media URL.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/playback"
	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session/registry"
	"github.com/osa030/rediseg/internal/app/session/state"
	"github.com/osa030/rediseg/internal/infra/config"
	"github.com/osa030/rediseg/internal/infra/metrics"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrSessionStarted    = errors.New("session already started")
	ErrInvalidWidth      = errors.New("seek bar width must be positive")
)

// Observer names
const (
	observerPresenter = "presenter"
	observerMetrics   = "metrics"
	observerSession   = "session"
)

// Manager manages the playback session.
type Manager struct {
	mu sync.Mutex

	// Configuration
	config *config.Config

	// Components
	engine     Engine
	controller *playback.Controller
	presenter  *presenter.Presenter
	metrics    *metrics.Metrics
	stateMgr   *state.Manager
	observers  *registry.ObserverRegistry

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// Status is a snapshot of the session.
type Status struct {
	SessionID   string   `json:"session_id"`
	URL         string   `json:"url"`
	Phase       string   `json:"phase"`
	State       string   `json:"state"`
	IsLive      bool     `json:"is_live"`
	CurrentTime int64    `json:"current_time_ms"`
	Duration    int64    `json:"duration_ms"`
	PlayedCount int      `json:"played_count"`
	AutoReloads int      `json:"auto_reloads"`
	Observers   []string `json:"observers"`
	Error       string   `json:"error,omitempty"`
}

// NewManager creates a new session manager around an engine.
// The manager owns the engine and closes it on Stop.
func NewManager(cfg *config.Config, engine Engine) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	controller := playback.NewController(engine, playback.Config{
		LiveSuffixes: cfg.Player.LiveSuffixes,
		EndTolerance: cfg.EndTolerance(),
	})

	m := &Manager{
		config:     cfg,
		engine:     engine,
		controller: controller,
		presenter: presenter.New(controller, presenter.Config{
			Layout: presenter.Layout{
				SeekBarWidth:       cfg.Screen.SeekBarWidth,
				ScrubberWidth:      cfg.Screen.ScrubberWidth,
				ScrubberInnerWidth: cfg.Screen.ScrubberInnerWidth,
			},
			Labels: presenter.Labels{
				Live:         cfg.Screen.LiveLabel,
				ErrorTitle:   cfg.Screen.ErrorTitle,
				ErrorMessage: cfg.Screen.ErrorMessage,
			},
		}),
		metrics:   metrics.New(),
		stateMgr:  state.New(),
		observers: registry.NewObserverRegistry(controller),

		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Presenter first so the screen is current when later observers run
	for _, o := range []struct {
		name     string
		observer playback.Observer
	}{
		{observerPresenter, m.presenter},
		{observerMetrics, m.metrics},
		{observerSession, playback.ObserverFunc(m.handlePlaybackEvent)},
	} {
		if err := m.observers.Add(o.name, o.observer); err != nil {
			cancel()
			controller.Close()
			return nil, errors.Wrap(err, "failed to register observer")
		}
	}

	return m, nil
}

// Start prepares the configured media and, if enabled, starts playback.
// The session stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stateMgr.GetPhase() != state.PhaseWaiting {
		m.mu.Unlock()
		return ErrSessionStarted
	}
	m.stateMgr.Activate(time.Now())
	m.mu.Unlock()

	url := m.config.Player.URL
	if err := m.controller.Prepare(url); err != nil {
		_ = m.Stop()
		return errors.Wrap(err, "failed to prepare media")
	}

	if m.config.AutoStartEnabled() {
		if err := m.controller.Start(); err != nil {
			_ = m.Stop()
			return errors.Wrap(err, "failed to start playback")
		}
	}

	session, _ := m.controller.Session()
	zlog.Info().Msgf("session started: session_id=%s url=%s live=%v auto_start=%v auto_reload=%v observers=%d",
		session.ID, url, session.IsLive(), m.config.AutoStartEnabled(), m.config.AutoReloadEnabled(), m.observers.Count())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			zlog.Info().Msg("session context cancelled, stopping")
			go func() { _ = m.Stop() }()
		case <-m.ctx.Done():
		}
	}()

	return nil
}

// Stop ends the session and releases the engine. It is safe to call more than once.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.stateMgr.Terminate() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	for _, name := range m.observers.Names() {
		if err := m.observers.Remove(name); err != nil {
			zlog.Warn().Err(err).Msgf("failed to remove observer: name=%s", name)
		}
	}
	m.controller.Close()
	err := m.engine.Close()

	zlog.Info().Msg("session terminated")
	close(m.done)

	if err != nil {
		return errors.Wrap(err, "failed to close engine")
	}
	return nil
}

// Done returns a channel closed when the session terminates.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	lifecycle := m.stateMgr.Snapshot()
	st := Status{
		Phase:       lifecycle.Phase.String(),
		State:       m.controller.State().String(),
		AutoReloads: lifecycle.AutoReloads,
		Observers:   m.observers.Names(),
	}

	if s, ok := m.controller.Session(); ok {
		st.SessionID = s.ID
		st.URL = s.URL
		st.IsLive = s.IsLive()
		st.CurrentTime = s.CurrentTime.Milliseconds()
		st.Duration = s.Duration.Milliseconds()
		st.PlayedCount = s.PlayedCount
	}
	if err := m.controller.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Screen returns the current screen model.
func (m *Manager) Screen() presenter.Screen {
	return m.presenter.Screen()
}

// Controller returns the playback controller.
func (m *Manager) Controller() *playback.Controller {
	return m.controller
}

// Metrics returns the session metrics.
func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

// TogglePlayback presses the playback control button.
func (m *Manager) TogglePlayback() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.presenter.PressControl()
}

// SeekTo jumps to an absolute position, pausing and resuming around the jump
// the way a scrubber drag does.
func (m *Manager) SeekTo(position time.Duration) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.presenter.SeekTo(position)
}

// SeekBy jumps relative to the current position.
func (m *Manager) SeekBy(delta time.Duration) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.presenter.SeekBy(delta)
}

// Scrub applies one step of a scrubber drag at x points along the seek bar.
func (m *Manager) Scrub(phase presenter.ScrubPhase, x float64) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.presenter.Scrub(phase, x)
}

// Resize changes the seek bar width in points.
func (m *Manager) Resize(width float64) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if width <= 0 {
		return errors.Wrapf(ErrInvalidWidth, "width=%v", width)
	}
	m.presenter.Resize(width)
	return nil
}

// Reload reloads the media.
func (m *Manager) Reload() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.controller.Reload()
}

// DismissNotice clears the error notice.
func (m *Manager) DismissNotice() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	m.presenter.DismissNotice()
	return nil
}

// Tap toggles the media controls.
func (m *Manager) Tap() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	m.presenter.Tap()
	return nil
}

func (m *Manager) checkRunning() error {
	if !m.stateMgr.CanAcceptCommands() {
		return ErrSessionNotRunning
	}
	return nil
}

// handlePlaybackEvent logs state changes and reloads ended media.
func (m *Manager) handlePlaybackEvent(e playback.Event) {
	if e.Type != playback.EventStateChanged {
		return
	}
	zlog.Info().Msgf("playback event: state=%s previous=%s session_id=%s", e.State, e.Previous, e.SessionID)

	switch e.State {
	case playback.StateEnded:
		if !m.config.AutoReloadEnabled() || !m.stateMgr.CanAcceptCommands() {
			return
		}
		n := m.stateMgr.IncrementAutoReloads()
		zlog.Info().Msgf("media ended, reloading: session_id=%s auto_reloads=%d", e.SessionID, n)
		if err := m.controller.Reload(); err != nil {
			zlog.Error().Err(err).Msg("auto reload failed")
		}

	case playback.StateError:
		zlog.Warn().Msgf("playback failed: session_id=%s err=%v", e.SessionID, e.Err)
	}
}
