// Package playback provides the playback state machine that reconciles
// engine callbacks with user intent.
package playback

// State represents the playback state.
type State int

const (
	StateWaiting      State = iota // Media loaded, waiting for the engine to buffer
	StateRestarting                // Reload requested, engine restarting
	StateReloading                 // Reload in progress, engine buffering
	StateBuffering                 // First buffering after load
	StatePlaying                   // Media is playing
	StatePaused                    // On-demand media paused by the user (or after reload)
	StateStopped                   // Live stream stopped by the user
	StateEnded                     // On-demand media played through to the end
	StateError                     // Playback failed
	StatePausedToSeek              // Paused while the user drags the scrubber
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRestarting:
		return "restarting"
	case StateReloading:
		return "reloading"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	case StatePausedToSeek:
		return "paused_to_seek"
	default:
		return "unknown"
	}
}

// EngineState represents a raw state reported by the media engine.
type EngineState int

const (
	EngineStopped   EngineState = iota // Playback stopped (end of media, user stop or failure)
	EngineOpening                      // Media is being opened
	EngineBuffering                    // Engine is filling its buffer
	EngineEnded                        // Engine reached end of media
	EngineError                        // Engine failed
	EnginePlaying                      // Engine is rendering media
	EnginePaused                       // Engine is paused
)

// String returns the string representation of the engine state.
func (s EngineState) String() string {
	switch s {
	case EngineStopped:
		return "stopped"
	case EngineOpening:
		return "opening"
	case EngineBuffering:
		return "buffering"
	case EngineEnded:
		return "ended"
	case EngineError:
		return "error"
	case EnginePlaying:
		return "playing"
	case EnginePaused:
		return "paused"
	default:
		return "unknown"
	}
}
