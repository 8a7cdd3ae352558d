package playback

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/notification"
	"github.com/osa030/rediseg/internal/domain/media"
)

// DefaultEndTolerance is the maximum distance between position and duration
// at which a stopped on-demand stream counts as played through.
const DefaultEndTolerance = time.Second

// Config holds controller configuration.
type Config struct {
	LiveSuffixes []string      // URL suffixes that mark a live stream (nil for defaults)
	EndTolerance time.Duration // End-of-stream tolerance (zero for DefaultEndTolerance)
}

// Controller is the playback state machine.
// It receives user commands and engine callbacks and emits Events.
type Controller struct {
	mu sync.RWMutex

	engine Engine
	config Config

	// Current session state
	session *media.Session
	state   State
	err     error
	seq     uint64
	closed  bool

	// Events
	notifier *notification.Manager[Event]
}

// engineCall is an engine operation run after the state lock is released.
type engineCall struct {
	name string
	fn   func() error
}

// NewController creates a new playback controller for the given engine.
func NewController(engine Engine, config Config) *Controller {
	if config.EndTolerance <= 0 {
		config.EndTolerance = DefaultEndTolerance
	}
	return &Controller{
		engine:   engine,
		config:   config,
		state:    StateWaiting,
		notifier: notification.NewManager[Event](),
	}
}

// Subscribe registers an observer and returns its subscription ID.
func (c *Controller) Subscribe(o Observer) string {
	return c.notifier.Subscribe(notification.SinkFunc[Event](o.OnPlaybackEvent))
}

// Unsubscribe removes an observer.
func (c *Controller) Unsubscribe(id string) {
	c.notifier.Unsubscribe(id)
}

// Prepare classifies the URL, loads it into the engine and registers the
// controller as the engine's callback handler. It starts a new session.
func (c *Controller) Prepare(url string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.session = media.NewSession(uuid.New().String(), url, c.config.LiveSuffixes)
	c.err = nil
	prev := c.state
	c.state = StateWaiting
	e := c.newEventLocked(EventStateChanged)
	e.Previous = prev
	c.notifier.Enqueue(e)

	zlog.Info().Msgf("playback: media prepared: session=%s url=%s live=%v",
		c.session.ID, url, c.session.IsLive())
	c.mu.Unlock()

	c.notifier.Flush()

	c.engine.SetHandler(c)
	if err := c.engine.Load(url); err != nil {
		return errors.Wrapf(err, "failed to load media %s", url)
	}
	return nil
}

// Start asks the engine to begin playback.
// The state follows the engine's callbacks from here.
func (c *Controller) Start() error {
	c.mu.RLock()
	err := c.checkLocked()
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	return c.finish(engineCall{name: "play", fn: c.engine.Play})
}

// PlaybackControlPressed toggles between playing and stopped (live) or paused (on-demand).
// It does nothing in any other state.
func (c *Controller) PlaybackControlPressed() error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	var calls []engineCall
	switch c.state {
	case StatePlaying:
		if c.session.IsLive() {
			c.changeStateLocked(StateStopped)
			calls = append(calls, engineCall{name: "stop", fn: c.engine.Stop})
		} else {
			c.changeStateLocked(StatePaused)
			calls = append(calls, engineCall{name: "pause", fn: c.engine.Pause})
		}
	case StatePaused, StateStopped:
		c.changeStateLocked(StatePlaying)
		calls = append(calls, engineCall{name: "play", fn: c.engine.Play})
	default:
		zlog.Debug().Msgf("playback: control pressed ignored: state=%s", c.state)
	}
	c.mu.Unlock()

	return c.finish(calls...)
}

// SeekBegin pauses playback while the user drags the scrubber.
// Only on-demand media that is playing can be paused to seek.
func (c *Controller) SeekBegin() error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	var calls []engineCall
	if c.state == StatePlaying && !c.session.IsLive() {
		c.changeStateLocked(StatePausedToSeek)
		calls = append(calls, engineCall{name: "pause", fn: c.engine.Pause})
	}
	c.mu.Unlock()

	return c.finish(calls...)
}

// SeekTo jumps to the target position.
// The engine receives a relative jump in whole seconds from the current position.
func (c *Controller) SeekTo(target time.Duration) error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	if target < 0 {
		target = 0
	}
	if c.session.DurationKnown() && c.session.Duration > 0 && target > c.session.Duration {
		target = c.session.Duration
	}

	delta := target - c.session.CurrentTime
	seconds := int(delta / time.Second)
	c.changeTimeLocked(target)

	zlog.Debug().Msgf("playback: seek: session=%s target=%v delta=%ds live=%v",
		c.session.ID, target, seconds, c.session.IsLive())
	c.mu.Unlock()

	return c.finish(engineCall{name: "seek", fn: func() error {
		return c.engine.Seek(seconds)
	}})
}

// SeekBy jumps relative to the current position.
func (c *Controller) SeekBy(delta time.Duration) error {
	c.mu.RLock()
	if err := c.checkLocked(); err != nil {
		c.mu.RUnlock()
		return err
	}
	target := c.session.CurrentTime + delta
	c.mu.RUnlock()

	return c.SeekTo(target)
}

// SeekEnd resumes playback if it was paused to seek.
func (c *Controller) SeekEnd() error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	var calls []engineCall
	if c.state == StatePausedToSeek {
		c.changeStateLocked(StatePlaying)
		calls = append(calls, engineCall{name: "play", fn: c.engine.Play})
	}
	c.mu.Unlock()

	return c.finish(calls...)
}

// Reload reloads the current URL and restarts playback.
// Playback settles in StatePaused at position zero once the engine has buffered.
func (c *Controller) Reload() error {
	c.mu.Lock()
	if err := c.checkLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	url := c.session.URL
	c.err = nil
	c.changeStateLocked(StateRestarting)
	zlog.Info().Msgf("playback: reloading: session=%s url=%s", c.session.ID, url)
	c.mu.Unlock()

	return c.finish(
		engineCall{name: "load", fn: func() error { return c.engine.Load(url) }},
		engineCall{name: "play", fn: c.engine.Play},
	)
}

// OnEngineStateChanged handles a raw engine state callback.
func (c *Controller) OnEngineStateChanged(raw EngineState) {
	c.mu.Lock()
	if c.closed || c.session == nil {
		c.mu.Unlock()
		return
	}

	zlog.Debug().Msgf("playback: engine state: raw=%s state=%s", raw, c.state)

	var calls []engineCall
	switch raw {
	case EngineStopped:
		c.checkStoppedCauseLocked()
	case EngineBuffering:
		calls = c.checkBufferingCauseLocked()
	case EngineError:
		c.failLocked(ReasonEngineError)
	case EnginePlaying:
		calls = c.checkPlayingCauseLocked()
	default:
		// Opening, ended and paused carry no information the state machine needs
	}
	c.mu.Unlock()

	_ = c.finish(calls...)
}

// OnEngineTimeChanged handles an engine position callback.
func (c *Controller) OnEngineTimeChanged(t time.Duration) {
	c.mu.Lock()
	if c.closed || c.session == nil {
		c.mu.Unlock()
		return
	}
	c.changeTimeLocked(t)
	c.mu.Unlock()

	c.notifier.Flush()
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() (media.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return media.Session{}, false
	}
	return *c.session, true
}

// Err returns the error that moved the controller into StateError, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close releases all observers. Commands return ErrClosed afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.engine.SetHandler(nil)
	c.notifier.Close()
}

// checkStoppedCauseLocked decides whether a stop is an end of media, a user stop or a failure.
// Must be called with lock held.
func (c *Controller) checkStoppedCauseLocked() {
	switch c.state {
	case StateEnded, StateError:
		return
	case StateRestarting:
		// The engine stops the previous media while loading the new one
		return
	}

	if c.session.IsLive() {
		if c.state != StateStopped {
			c.failLocked(ReasonLiveStopped)
		}
		return
	}

	if c.session.ReachedEnd(c.config.EndTolerance) {
		c.changeStateLocked(StateEnded)
		c.session.IncrementPlayed()
		zlog.Info().Msgf("playback: media ended: session=%s played=%d", c.session.ID, c.session.PlayedCount)
		return
	}
	c.failLocked(ReasonStoppedBeforeEnd)
}

// checkBufferingCauseLocked handles an engine buffering callback.
// Must be called with lock held.
func (c *Controller) checkBufferingCauseLocked() []engineCall {
	switch c.state {
	case StateWaiting:
		c.changeStateLocked(StateBuffering)
	case StateRestarting:
		c.changeStateLocked(StateReloading)
	case StateReloading:
		return c.pauseAfterReloadLocked()
	case StateBuffering:
		c.changeStateLocked(StatePlaying)
		c.acquireDurationLocked()
	}
	return nil
}

// checkPlayingCauseLocked handles an engine playing callback.
// Must be called with lock held.
func (c *Controller) checkPlayingCauseLocked() []engineCall {
	switch c.state {
	case StateReloading, StateRestarting:
		return c.pauseAfterReloadLocked()
	default:
		c.changeStateLocked(StatePlaying)
		c.acquireDurationLocked()
	}
	return nil
}

// pauseAfterReloadLocked parks a reloaded media at position zero.
// Must be called with lock held.
func (c *Controller) pauseAfterReloadLocked() []engineCall {
	c.changeStateLocked(StatePaused)
	c.changeTimeLocked(0)
	return []engineCall{{name: "pause", fn: c.engine.Pause}}
}

// acquireDurationLocked captures the media duration once per session.
// Must be called with lock held.
func (c *Controller) acquireDurationLocked() {
	if !c.session.SetDuration(c.engine.Duration()) {
		return
	}
	zlog.Debug().Msgf("playback: duration acquired: session=%s duration=%v", c.session.ID, c.session.Duration)
	c.notifier.Enqueue(c.newEventLocked(EventDurationAcquired))
}

// failLocked moves the controller into StateError.
// Must be called with lock held.
func (c *Controller) failLocked(reason FailureReason) {
	c.err = &PlaybackError{Reason: reason, URL: c.session.URL}
	zlog.Warn().Msgf("playback: %v: session=%s state=%s", c.err, c.session.ID, c.state)
	c.changeStateLocked(StateError)
}

// changeStateLocked sets the state and queues a state event.
// Must be called with lock held.
func (c *Controller) changeStateLocked(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s

	zlog.Debug().Msgf("playback: state changed: %s -> %s", prev, s)

	e := c.newEventLocked(EventStateChanged)
	e.Previous = prev
	c.notifier.Enqueue(e)
}

// changeTimeLocked sets the position and queues a time event.
// Must be called with lock held.
func (c *Controller) changeTimeLocked(t time.Duration) {
	c.session.CurrentTime = t
	c.notifier.Enqueue(c.newEventLocked(EventTimeChanged))
}

// newEventLocked builds an event from the current state.
// Must be called with lock held.
func (c *Controller) newEventLocked(t EventType) Event {
	c.seq++
	e := Event{
		Type:       t,
		SequenceNo: c.seq,
		State:      c.state,
		Previous:   c.state,
	}
	if c.session != nil {
		e.SessionID = c.session.ID
		e.CurrentTime = c.session.CurrentTime
		e.Duration = c.session.Duration
		e.IsLive = c.session.IsLive()
	}
	if c.state == StateError {
		e.Err = c.err
	}
	return e
}

// checkLocked validates that commands can run.
// Must be called with lock held.
func (c *Controller) checkLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.session == nil {
		return ErrNotPrepared
	}
	return nil
}

// finish delivers queued events, then runs the engine calls in order.
// The first failing call stops the sequence.
func (c *Controller) finish(calls ...engineCall) error {
	c.notifier.Flush()

	for _, call := range calls {
		if err := call.fn(); err != nil {
			zlog.Error().Err(err).Msgf("playback: engine %s failed", call.name)
			return errors.Wrapf(err, "engine %s failed", call.name)
		}
	}
	return nil
}
