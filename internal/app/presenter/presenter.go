// Package presenter projects playback state into a screen model and forwards
// user gestures to the playback controller.
package presenter

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/playback"
)

// Icon is the image shown on the playback control button.
type Icon string

const (
	IconPlay  Icon = "play"
	IconPause Icon = "pause"
	IconStop  Icon = "stop"
)

// Notice is a blocking, dismissible message.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Screen is the projected state of the playback screen.
type Screen struct {
	SessionID        string  `json:"session_id"`
	State            string  `json:"state"`
	IsLive           bool    `json:"is_live"`
	ControlIcon      Icon    `json:"control_icon"`
	SeekEnabled      bool    `json:"seek_enabled"`
	Loading          bool    `json:"loading"`
	ControlsVisible  bool    `json:"controls_visible"`
	SeekBarWidth     float64 `json:"seek_bar_width"`
	ScrubberX        float64 `json:"scrubber_x"`
	ProgressWidth    float64 `json:"progress_width"`
	CurrentTimeLabel string  `json:"current_time_label"`
	DurationLabel    string  `json:"duration_label"`
	Notice           *Notice `json:"notice,omitempty"`
}

// Layout holds the seek bar geometry in points.
type Layout struct {
	SeekBarWidth       float64
	ScrubberWidth      float64 // Outer circle of the scrubber
	ScrubberInnerWidth float64 // Inner circle of the scrubber
}

// Labels holds user-facing texts.
type Labels struct {
	Live         string
	ErrorTitle   string
	ErrorMessage string
}

// Config holds presenter configuration.
type Config struct {
	Layout Layout
	Labels Labels
}

// Commands defines the controller operations the presenter forwards gestures to.
type Commands interface {
	PlaybackControlPressed() error
	SeekBegin() error
	SeekTo(target time.Duration) error
	SeekBy(delta time.Duration) error
	SeekEnd() error
}

// ScrubPhase is a step of a scrubber drag gesture.
type ScrubPhase string

const (
	ScrubBegan ScrubPhase = "began"
	ScrubMoved ScrubPhase = "moved"
	ScrubEnded ScrubPhase = "ended"
)

var ErrUnknownScrubPhase = errors.New("unknown scrub phase")

// ParseScrubPhase validates a scrub phase name.
func ParseScrubPhase(s string) (ScrubPhase, error) {
	switch p := ScrubPhase(s); p {
	case ScrubBegan, ScrubMoved, ScrubEnded:
		return p, nil
	default:
		return "", errors.Wrapf(ErrUnknownScrubPhase, "%q", s)
	}
}

// Presenter renders playback events into a Screen.
type Presenter struct {
	mu sync.RWMutex

	commands Commands
	config   Config

	screen      Screen
	scale       float64 // Points per second of media
	duration    time.Duration
	currentTime time.Duration
	dragging    bool
}

// New creates a new presenter forwarding gestures to the given commands.
func New(commands Commands, config Config) *Presenter {
	p := &Presenter{
		commands: commands,
		config:   config,
	}
	p.resetLocked("", false)
	return p
}

// Screen returns a copy of the current screen.
func (p *Presenter) Screen() Screen {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.screen
	if s.Notice != nil {
		n := *s.Notice
		s.Notice = &n
	}
	return s
}

// OnPlaybackEvent implements playback.Observer.
func (p *Presenter) OnPlaybackEvent(e playback.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case playback.EventStateChanged:
		p.stateChangedLocked(e)
	case playback.EventTimeChanged:
		p.currentTime = e.CurrentTime
		if !p.dragging {
			p.updateScrubberFromTimeLocked(e.CurrentTime)
		}
	case playback.EventDurationAcquired:
		p.durationAcquiredLocked(e)
	}
}

// PressControl forwards a press of the playback control button.
func (p *Presenter) PressControl() error {
	return p.commands.PlaybackControlPressed()
}

// Tap toggles the visibility of the media controls.
func (p *Presenter) Tap() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screen.ControlsVisible = !p.screen.ControlsVisible
}

// DismissNotice clears the current notice.
func (p *Presenter) DismissNotice() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screen.Notice = nil
}

// SeekTo jumps to target, pausing and resuming around the jump like a drag.
func (p *Presenter) SeekTo(target time.Duration) error {
	return p.seek(func() error { return p.commands.SeekTo(target) })
}

// SeekBy jumps relative to the current position.
func (p *Presenter) SeekBy(delta time.Duration) error {
	return p.seek(func() error { return p.commands.SeekBy(delta) })
}

func (p *Presenter) seek(jump func() error) error {
	if err := p.commands.SeekBegin(); err != nil {
		return err
	}
	if err := jump(); err != nil {
		return err
	}
	return p.commands.SeekEnd()
}

// Scrub applies one step of a scrubber drag at x.
func (p *Presenter) Scrub(phase ScrubPhase, x float64) error {
	switch phase {
	case ScrubBegan:
		return p.DragBegan()
	case ScrubMoved:
		p.DragMoved(x)
		return nil
	case ScrubEnded:
		return p.DragEnded(x)
	default:
		return errors.Wrapf(ErrUnknownScrubPhase, "%q", phase)
	}
}

// DragBegan starts a scrubber drag. Ignored for live streams.
func (p *Presenter) DragBegan() error {
	p.mu.Lock()
	if !p.screen.SeekEnabled {
		p.mu.Unlock()
		return nil
	}
	p.dragging = true
	p.mu.Unlock()

	return p.commands.SeekBegin()
}

// DragMoved moves the scrubber to x without seeking.
func (p *Presenter) DragMoved(x float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.screen.SeekEnabled {
		return
	}
	p.updateScrubberFromPositionLocked(p.clampLocked(x))
}

// DragEnded drops the scrubber at x, seeks there and resumes playback.
func (p *Presenter) DragEnded(x float64) error {
	p.mu.Lock()
	if !p.screen.SeekEnabled {
		p.mu.Unlock()
		return nil
	}
	x = p.clampLocked(x)
	p.updateScrubberFromPositionLocked(x)
	p.dragging = false

	var target time.Duration
	canSeek := p.scale > 0
	if canSeek {
		target = time.Duration(x / p.scale * float64(time.Second))
	}
	p.mu.Unlock()

	if canSeek {
		if err := p.commands.SeekTo(target); err != nil {
			return err
		}
	}
	return p.commands.SeekEnd()
}

// Resize changes the seek bar width and re-projects the current position.
func (p *Presenter) Resize(width float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.config.Layout.SeekBarWidth = width
	p.screen.SeekBarWidth = width

	if p.screen.IsLive {
		p.screen.ProgressWidth = width
		p.screen.ScrubberX = width - p.config.Layout.ScrubberWidth/2
		return
	}
	if p.duration != 0 {
		p.scale = width / p.duration.Seconds()
		p.updateScrubberFromTimeLocked(p.currentTime)
	}
}

// stateChangedLocked updates the control icon and notice.
// Must be called with lock held.
func (p *Presenter) stateChangedLocked(e playback.Event) {
	if e.SessionID != p.screen.SessionID {
		p.resetLocked(e.SessionID, e.IsLive)
	}
	p.screen.State = e.State.String()

	switch e.State {
	case playback.StateWaiting:
		p.screen.ControlIcon = initialIcon(p.screen.IsLive)
	case playback.StatePaused, playback.StateStopped:
		p.screen.ControlIcon = IconPlay
	default:
		if p.screen.IsLive {
			p.screen.ControlIcon = IconStop
		} else {
			p.screen.ControlIcon = IconPause
		}
	}

	if e.State == playback.StateError {
		p.screen.Notice = &Notice{
			Title:   p.config.Labels.ErrorTitle,
			Message: p.config.Labels.ErrorMessage,
		}
		zlog.Debug().Msgf("presenter: showing error notice: session=%s err=%v", e.SessionID, e.Err)
	}
}

// durationAcquiredLocked sets up the progress bar and labels.
// Must be called with lock held.
func (p *Presenter) durationAcquiredLocked(e playback.Event) {
	layout := p.config.Layout

	p.duration = e.Duration
	if e.Duration > 0 {
		p.scale = layout.SeekBarWidth / e.Duration.Seconds()
	}
	p.screen.Loading = false

	if p.screen.IsLive {
		p.screen.ProgressWidth = layout.SeekBarWidth - layout.ScrubberInnerWidth
		p.screen.ScrubberX = layout.SeekBarWidth - layout.ScrubberWidth/2
		p.screen.DurationLabel = p.config.Labels.Live
		p.screen.CurrentTimeLabel = ""
	} else {
		p.screen.DurationLabel = FormatClock(e.Duration)
	}

	// Controls fade out once playback is under way
	p.screen.ControlsVisible = false
}

// updateScrubberFromTimeLocked places the scrubber for a media position.
// Must be called with lock held.
func (p *Presenter) updateScrubberFromTimeLocked(t time.Duration) {
	if p.screen.IsLive {
		return
	}
	x := p.scale * t.Seconds()
	p.screen.ScrubberX = x - p.config.Layout.ScrubberWidth/2
	p.screen.ProgressWidth = x - p.config.Layout.ScrubberInnerWidth/3
	p.screen.CurrentTimeLabel = FormatClock(t)
}

// updateScrubberFromPositionLocked centres the scrubber on x.
// Must be called with lock held.
func (p *Presenter) updateScrubberFromPositionLocked(x float64) {
	p.screen.ScrubberX = x - p.config.Layout.ScrubberWidth/2
	p.screen.ProgressWidth = x - p.config.Layout.ScrubberInnerWidth/3
	if p.scale > 0 {
		p.screen.CurrentTimeLabel = FormatClock(time.Duration(x / p.scale * float64(time.Second)))
	}
}

// clampLocked limits x to the seek bar.
// Must be called with lock held.
func (p *Presenter) clampLocked(x float64) float64 {
	if x < 0 {
		return 0
	}
	if w := p.config.Layout.SeekBarWidth; x > w {
		return w
	}
	return x
}

// resetLocked starts a fresh screen for a new session.
// Must be called with lock held.
func (p *Presenter) resetLocked(sessionID string, isLive bool) {
	p.scale = 0
	p.duration = 0
	p.currentTime = 0
	p.dragging = false
	p.screen = Screen{
		SessionID:        sessionID,
		State:            playback.StateWaiting.String(),
		IsLive:           isLive,
		ControlIcon:      initialIcon(isLive),
		SeekEnabled:      sessionID != "" && !isLive,
		Loading:          true,
		ControlsVisible:  true,
		SeekBarWidth:     p.config.Layout.SeekBarWidth,
		ScrubberX:        -p.config.Layout.ScrubberWidth / 2,
		CurrentTimeLabel: FormatClock(0),
		DurationLabel:    FormatClock(0),
	}
}

func initialIcon(isLive bool) Icon {
	if isLive {
		return IconStop
	}
	return IconPlay
}

// FormatClock formats a duration as mm:ss. Minutes are not wrapped into hours.
func FormatClock(d time.Duration) string {
	ms := d.Milliseconds()
	minutes := ms / 1000 / 60
	seconds := ms/1000 - minutes*60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
