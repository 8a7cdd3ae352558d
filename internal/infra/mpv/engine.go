// Package mpv provides a media engine backed by mpv's JSON IPC interface.
package mpv

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/dexterlb/mpvipc"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/playback"
)

// Errors
var (
	ErrNotConnected = errors.New("mpv not connected")
	ErrClosed       = errors.New("mpv engine closed")
)

// Config represents mpv engine settings.
type Config struct {
	Binary string `yaml:"binary" mapstructure:"binary" default:"mpv" validate:"required"`
	// SocketPath attaches to an mpv already listening there instead of starting one.
	SocketPath       string   `yaml:"socket_path" mapstructure:"socket_path"`
	ExtraArgs        []string `yaml:"extra_args" mapstructure:"extra_args"`
	StartTimeoutMs   int      `yaml:"start_timeout_ms" mapstructure:"start_timeout_ms" default:"5000" validate:"gte=100"`
	RequestTimeoutMs int      `yaml:"request_timeout_ms" mapstructure:"request_timeout_ms" default:"2000" validate:"gte=10"`
}

// ParseSettings decodes free-form engine settings into a Config.
func ParseSettings(settings map[string]any) (Config, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, errors.Wrap(err, "validation failed")
	}
	return cfg, nil
}

// Engine drives mpv through an mpvipc connection.
// Callbacks are delivered on a dedicated goroutine, never while an engine lock is held.
type Engine struct {
	config Config

	// Process (nil when attached to an external mpv)
	cmd    *exec.Cmd
	tmpDir string

	// Connection state and cached properties
	mu         sync.Mutex
	conn       *mpvipc.Connection
	closed     bool
	timePos    time.Duration
	duration   time.Duration
	paused     bool
	restarted  bool // playback-restart seen for the current file
	loaded     bool // a file is loaded
	suppressed int  // end-file events caused by our own loadfile

	// Callback delivery
	handlerMu sync.RWMutex
	handler   playback.EngineHandler
	notesMu   sync.Mutex
	notes     []func(playback.EngineHandler)
	wake      chan struct{}
	stop      chan struct{}

	wg sync.WaitGroup
}

// New creates a new, unconnected engine.
func New(config Config) *Engine {
	return &Engine{
		config: config,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches mpv in idle mode and connects to its IPC socket.
func (e *Engine) Start(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "rediseg-mpv")
	if err != nil {
		return errors.Wrap(err, "failed to create socket directory")
	}
	e.tmpDir = dir
	socket := filepath.Join(dir, "ipc.sock")

	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--keep-open=no",
		"--input-ipc-server=" + socket,
	}
	args = append(args, e.config.ExtraArgs...)

	e.cmd = exec.CommandContext(ctx, e.config.Binary, args...)
	if err := e.cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", e.config.Binary)
	}
	zlog.Info().Msgf("mpv: process started: pid=%d socket=%s", e.cmd.Process.Pid, socket)

	startCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.StartTimeoutMs)*time.Millisecond)
	defer cancel()

	// mpv creates the socket asynchronously
	for {
		conn, err := open(socket)
		if err == nil {
			if err := e.attach(conn); err != nil {
				e.killProcess()
				return err
			}
			zlog.Debug().Msgf("mpv: connected: socket=%s", socket)
			return nil
		}
		select {
		case <-startCtx.Done():
			e.killProcess()
			return errors.Wrapf(err, "mpv socket not ready: %s", socket)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Connect attaches to an mpv instance already listening on socket.
func (e *Engine) Connect(ctx context.Context, socket string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "connect cancelled")
	}
	conn, err := open(socket)
	if err != nil {
		return err
	}
	if err := e.attach(conn); err != nil {
		return err
	}
	zlog.Info().Msgf("mpv: attached: socket=%s", socket)
	return nil
}

func open(socket string) (*mpvipc.Connection, error) {
	conn := mpvipc.NewConnection(socket)
	if err := conn.Open(); err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", socket)
	}
	return conn, nil
}

// attach starts the event, watch and dispatch goroutines on conn and
// subscribes to the observed properties.
func (e *Engine) attach(conn *mpvipc.Connection) error {
	events, stopListening := conn.NewEventListener()

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	e.wg.Add(3)
	go e.eventLoop(events)
	go e.watch(conn, stopListening)
	go e.dispatchLoop()

	for id := propTimePos; id <= propPausedForCache; id++ {
		name := observedProperties[id]
		if _, err := e.call("observe_property", id, name); err != nil {
			_ = conn.Close()
			return errors.Wrapf(err, "failed to observe %s", name)
		}
	}
	return nil
}

// SetHandler implements playback.Engine.
func (e *Engine) SetHandler(h playback.EngineHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.handler = h
}

// Load implements playback.Engine. The media is loaded paused.
func (e *Engine) Load(url string) error {
	if _, err := e.call("set_property", "pause", true); err != nil {
		return err
	}

	e.mu.Lock()
	if e.loaded {
		e.suppressed++
	}
	e.mu.Unlock()

	if _, err := e.call("loadfile", url, "replace"); err != nil {
		e.mu.Lock()
		if e.suppressed > 0 {
			e.suppressed--
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

// Play implements playback.Engine.
func (e *Engine) Play() error {
	_, err := e.call("set_property", "pause", false)
	return err
}

// Pause implements playback.Engine.
func (e *Engine) Pause() error {
	_, err := e.call("set_property", "pause", true)
	return err
}

// Stop implements playback.Engine.
func (e *Engine) Stop() error {
	_, err := e.call("stop")
	return err
}

// Seek implements playback.Engine.
func (e *Engine) Seek(deltaSeconds int) error {
	_, err := e.call("seek", deltaSeconds, "relative")
	return err
}

// CurrentTime implements playback.Engine.
func (e *Engine) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timePos
}

// Duration implements playback.Engine.
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Close disconnects from mpv and terminates the process if the engine started it.
// It must not be called from an engine callback.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn := e.conn
	e.mu.Unlock()

	if e.cmd != nil {
		// Best effort; the process is killed below anyway
		_, _ = e.call("quit")
	}
	if conn != nil {
		_ = conn.Close()
	}

	close(e.stop)
	e.wg.Wait()

	e.killProcess()
	if e.tmpDir != "" {
		_ = os.RemoveAll(e.tmpDir)
	}
	zlog.Debug().Msg("mpv: closed")
	return nil
}

type callResult struct {
	data any
	err  error
}

// call runs an IPC command and waits for its reply up to the request timeout.
func (e *Engine) call(args ...any) (any, error) {
	e.mu.Lock()
	if e.closed && args[0] != "quit" {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	conn := e.conn
	e.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	done := make(chan callResult, 1)
	go func() {
		data, err := conn.Call(args...)
		done <- callResult{data: data, err: err}
	}()

	timer := time.NewTimer(time.Duration(e.config.RequestTimeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "mpv %v", args[0])
		}
		return r.data, nil
	case <-timer.C:
		return nil, errors.Newf("mpv %v: timed out", args[0])
	}
}

// watch waits for the connection to close, then stops the event listener.
func (e *Engine) watch(conn *mpvipc.Connection, stopListening chan struct{}) {
	defer e.wg.Done()

	conn.WaitUntilClosed()
	close(stopListening)

	e.mu.Lock()
	closed := e.closed
	if e.conn == conn {
		e.conn = nil
	}
	e.mu.Unlock()

	if !closed {
		zlog.Warn().Msg("mpv: connection lost")
		e.notifyState(playback.EngineError)
	}
}

// eventLoop feeds mpv events to handleEvent until the listener is stopped.
func (e *Engine) eventLoop(events chan *mpvipc.Event) {
	defer e.wg.Done()
	for ev := range events {
		e.handleEvent(ev)
	}
}

// handleEvent maps an mpv event to engine callbacks.
func (e *Engine) handleEvent(ev *mpvipc.Event) {
	switch ev.Name {
	case "start-file":
		e.mu.Lock()
		e.loaded = true
		e.restarted = false
		e.timePos = 0
		e.duration = 0
		e.mu.Unlock()
		e.notifyState(playback.EngineBuffering)

	case "playback-restart":
		e.mu.Lock()
		e.restarted = true
		paused := e.paused
		e.mu.Unlock()
		if !paused {
			e.notifyPlaying()
		}

	case "end-file":
		e.mu.Lock()
		e.loaded = false
		e.restarted = false
		suppress := false
		if ev.Reason == "stop" && e.suppressed > 0 {
			e.suppressed--
			suppress = true
		}
		e.mu.Unlock()

		switch {
		case suppress, ev.Reason == "redirect":
			zlog.Debug().Msgf("mpv: end-file ignored: reason=%s", ev.Reason)
		case ev.Reason == "error":
			e.notifyState(playback.EngineError)
		default:
			e.notifyState(playback.EngineStopped)
		}

	case "property-change":
		e.handleProperty(int(ev.ID), ev.Data)

	default:
		zlog.Debug().Msgf("mpv: event: %s", ev.Name)
	}
}

func (e *Engine) handleProperty(id int, data any) {
	switch id {
	case propTimePos:
		v, ok := float(data)
		if !ok {
			return
		}
		t := seconds(v)
		e.mu.Lock()
		e.timePos = t
		e.mu.Unlock()
		e.notify(func(h playback.EngineHandler) { h.OnEngineTimeChanged(t) })

	case propDuration:
		v, ok := float(data)
		if !ok {
			return
		}
		e.mu.Lock()
		e.duration = seconds(v)
		e.mu.Unlock()

	case propPause:
		paused, ok := boolean(data)
		if !ok {
			return
		}
		e.mu.Lock()
		changed := e.paused != paused
		e.paused = paused
		restarted := e.restarted
		e.mu.Unlock()

		switch {
		case !changed || !restarted:
		case paused:
			e.notifyState(playback.EnginePaused)
		default:
			e.notifyPlaying()
		}

	case propPausedForCache:
		waiting, ok := boolean(data)
		if !ok {
			return
		}
		e.mu.Lock()
		active := e.restarted && !e.paused
		e.mu.Unlock()

		switch {
		case !active:
		case waiting:
			e.notifyState(playback.EngineBuffering)
		default:
			e.notifyPlaying()
		}
	}
}

func (e *Engine) notifyState(s playback.EngineState) {
	e.notify(func(h playback.EngineHandler) { h.OnEngineStateChanged(s) })
}

// notifyPlaying refreshes the duration before reporting playback so the
// handler can read it from the playing callback.
func (e *Engine) notifyPlaying() {
	e.notify(func(h playback.EngineHandler) {
		e.refreshDuration()
		h.OnEngineStateChanged(playback.EnginePlaying)
	})
}

func (e *Engine) refreshDuration() {
	if e.Duration() != 0 {
		return
	}
	data, err := e.call("get_property", "duration")
	if err != nil {
		// Live streams have no duration
		zlog.Debug().Err(err).Msg("mpv: duration unavailable")
		return
	}
	if v, ok := float(data); ok {
		e.mu.Lock()
		e.duration = seconds(v)
		e.mu.Unlock()
	}
}

// notify queues a callback for the dispatch goroutine.
func (e *Engine) notify(fn func(playback.EngineHandler)) {
	e.notesMu.Lock()
	e.notes = append(e.notes, fn)
	e.notesMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop delivers queued callbacks in order.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stop:
			return
		case <-e.wake:
		}

		for {
			e.notesMu.Lock()
			if len(e.notes) == 0 {
				e.notesMu.Unlock()
				break
			}
			fn := e.notes[0]
			e.notes = e.notes[1:]
			e.notesMu.Unlock()

			select {
			case <-e.stop:
				return
			default:
			}

			e.handlerMu.RLock()
			h := e.handler
			e.handlerMu.RUnlock()
			if h != nil {
				fn(h)
			}
		}
	}
}

func (e *Engine) killProcess() {
	if e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_ = e.cmd.Wait()
	e.cmd = nil
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
