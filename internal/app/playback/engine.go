package playback

import "time"

// Engine defines the media engine operations needed by the controller.
type Engine interface {
	// Load replaces the current media with the given URL.
	Load(url string) error
	Play() error
	Pause() error
	Stop() error
	// Seek jumps relative to the current position. Negative values jump backward.
	Seek(deltaSeconds int) error
	CurrentTime() time.Duration
	// Duration returns the media length, or zero when unknown.
	Duration() time.Duration
	// SetHandler registers the receiver of engine callbacks.
	SetHandler(h EngineHandler)
}

// EngineHandler receives engine callbacks.
type EngineHandler interface {
	OnEngineStateChanged(state EngineState)
	OnEngineTimeChanged(t time.Duration)
}
