package playback

import "time"

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged     EventType = iota // Playback state changed
	EventTimeChanged                       // Playback position changed
	EventDurationAcquired                  // Media duration became known (once per session)
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventTimeChanged:
		return "time_changed"
	case EventDurationAcquired:
		return "duration_acquired"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type        EventType
	SequenceNo  uint64
	SessionID   string
	State       State         // State after the event
	Previous    State         // State before the event (EventStateChanged only)
	CurrentTime time.Duration // Position after the event
	Duration    time.Duration // Media duration (zero until acquired)
	IsLive      bool
	Err         error // Set when State is StateError
}

// Observer receives playback events.
type Observer interface {
	OnPlaybackEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnPlaybackEvent calls f(e).
func (f ObserverFunc) OnPlaybackEvent(e Event) {
	f(e)
}
