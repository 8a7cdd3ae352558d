// Package simengine provides a deterministic simulated media engine for demos and tests.
package simengine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/notification"
	"github.com/osa030/rediseg/internal/app/playback"
)

// Errors
var (
	ErrClosed    = errors.New("simulated engine closed")
	ErrNotLoaded = errors.New("no media loaded")
	ErrLoad      = errors.New("simulated load failure")
)

// Config represents simulated engine settings.
type Config struct {
	LengthMs    int     `yaml:"length_ms" mapstructure:"length_ms" default:"60000" validate:"gte=1"`
	Endless     bool    `yaml:"endless" mapstructure:"endless"` // live stream without a length
	BufferingMs int     `yaml:"buffering_ms" mapstructure:"buffering_ms" default:"300" validate:"gte=0"`
	TickMs      int     `yaml:"tick_ms" mapstructure:"tick_ms" default:"250" validate:"gte=1"`
	Speed       float64 `yaml:"speed" mapstructure:"speed" default:"1" validate:"gt=0"`
	FailAfterMs int     `yaml:"fail_after_ms" mapstructure:"fail_after_ms" validate:"gte=0"` // 0 never fails
	FailLoad    bool    `yaml:"fail_load" mapstructure:"fail_load"`
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

// note is a queued engine callback.
type note struct {
	state  playback.EngineState
	time   time.Duration
	isTime bool
}

// Engine simulates buffering, playback progress, end of media and failures.
type Engine struct {
	mu sync.Mutex

	config  Config
	handler playback.EngineHandler

	url      string
	loaded   bool
	playing  bool
	position time.Duration
	cancel   context.CancelFunc // stops the running playback goroutine
	closed   bool

	notifier *notification.Manager[note]
	wg       sync.WaitGroup
}

// New creates a new simulated engine.
func New(config Config) *Engine {
	e := &Engine{
		config:   config,
		notifier: notification.NewManager[note](),
	}
	e.notifier.Subscribe(notification.SinkFunc[note](e.deliver))
	return e
}

// SetHandler implements playback.Engine.
func (e *Engine) SetHandler(h playback.EngineHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Load implements playback.Engine. The media is loaded paused at position zero.
func (e *Engine) Load(url string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.config.FailLoad {
		e.mu.Unlock()
		return errors.Wrapf(ErrLoad, "load %s", url)
	}

	e.haltLocked()
	if e.loaded {
		e.notifier.Enqueue(note{state: playback.EngineStopped})
	}
	e.url = url
	e.loaded = true
	e.position = 0
	e.notifier.Enqueue(note{state: playback.EngineOpening})
	e.notifier.Enqueue(note{state: playback.EngineBuffering})
	zlog.Debug().Msgf("simengine: loaded: url=%s length=%v", url, e.length())
	e.mu.Unlock()

	e.notifier.Flush()
	return nil
}

// Play implements playback.Engine. Playback begins after the buffering delay.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	if e.playing {
		return nil
	}
	if e.atEndLocked() {
		e.position = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.playing = true
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

// Pause implements playback.Engine.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.playing {
		e.haltLocked()
		e.notifier.Enqueue(note{state: playback.EnginePaused})
	}
	e.mu.Unlock()

	e.notifier.Flush()
	return nil
}

// Stop implements playback.Engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.haltLocked()
	e.notifier.Enqueue(note{state: playback.EngineStopped})
	zlog.Debug().Msgf("simengine: stopped: url=%s position=%v", e.url, e.position)
	e.mu.Unlock()

	e.notifier.Flush()
	return nil
}

// Seek implements playback.Engine.
func (e *Engine) Seek(deltaSeconds int) error {
	e.mu.Lock()
	if err := e.checkLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	pos := e.position + time.Duration(deltaSeconds)*time.Second
	if pos < 0 {
		pos = 0
	}
	if length := e.length(); length > 0 && pos > length {
		pos = length
	}
	e.position = pos
	e.notifier.Enqueue(note{time: pos, isTime: true})
	e.mu.Unlock()

	e.notifier.Flush()
	return nil
}

// CurrentTime implements playback.Engine.
func (e *Engine) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Duration implements playback.Engine. Endless streams report zero.
func (e *Engine) Duration() time.Duration {
	return e.length()
}

// Close stops playback and waits for the playback goroutine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.haltLocked()
	e.mu.Unlock()

	e.wg.Wait()
	e.notifier.Close()
	return nil
}

// run buffers, then advances the position until the media ends, fails or is halted.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(e.config.BufferingMs) * time.Millisecond):
	}

	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.notifier.Enqueue(note{state: playback.EnginePlaying})
	e.mu.Unlock()
	e.notifier.Flush()

	tick := time.Duration(e.config.TickMs) * time.Millisecond
	step := time.Duration(float64(tick) * e.config.Speed)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if ctx.Err() != nil {
			e.mu.Unlock()
			return
		}
		done := e.advanceLocked(step)
		e.mu.Unlock()
		e.notifier.Flush()

		if done {
			return
		}
	}
}

// advanceLocked moves the position forward and reports whether playback finished.
// Must be called with lock held.
func (e *Engine) advanceLocked(step time.Duration) bool {
	e.position += step

	if fail := time.Duration(e.config.FailAfterMs) * time.Millisecond; fail > 0 && e.position >= fail {
		zlog.Debug().Msgf("simengine: simulated failure: position=%v", e.position)
		e.haltLocked()
		e.notifier.Enqueue(note{state: playback.EngineError})
		return true
	}

	if e.atEndLocked() {
		e.position = e.length()
		e.notifier.Enqueue(note{time: e.position, isTime: true})
		e.haltLocked()
		e.notifier.Enqueue(note{state: playback.EngineStopped})
		return true
	}

	e.notifier.Enqueue(note{time: e.position, isTime: true})
	return false
}

// haltLocked stops the playback goroutine.
// Must be called with lock held.
func (e *Engine) haltLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.playing = false
}

// Must be called with lock held.
func (e *Engine) atEndLocked() bool {
	length := e.length()
	return length > 0 && e.position >= length
}

// Must be called with lock held.
func (e *Engine) checkLocked() error {
	if e.closed {
		return ErrClosed
	}
	if !e.loaded {
		return ErrNotLoaded
	}
	return nil
}

func (e *Engine) length() time.Duration {
	if e.config.Endless {
		return 0
	}
	return time.Duration(e.config.LengthMs) * time.Millisecond
}

func (e *Engine) deliver(n note) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()

	if h == nil {
		return
	}
	if n.isTime {
		h.OnEngineTimeChanged(n.time)
		return
	}
	h.OnEngineStateChanged(n.state)
}
