package playback

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrPlayback    = errors.New("playback failed")
	ErrNotPrepared = errors.New("media not prepared")
	ErrClosed      = errors.New("controller closed")
)

// FailureReason describes why playback failed.
type FailureReason int

const (
	ReasonEngineError      FailureReason = iota // Engine reported an error
	ReasonLiveStopped                           // Live stream stopped without user intent
	ReasonStoppedBeforeEnd                      // On-demand media stopped short of its duration
)

// String returns the string representation of the failure reason.
func (r FailureReason) String() string {
	switch r {
	case ReasonEngineError:
		return "engine_error"
	case ReasonLiveStopped:
		return "live_stopped"
	case ReasonStoppedBeforeEnd:
		return "stopped_before_end"
	default:
		return "unknown"
	}
}

// PlaybackError is raised when the controller enters StateError.
type PlaybackError struct {
	Reason FailureReason
	URL    string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed: %s (url=%s)", e.Reason, e.URL)
}

// Is reports whether target is ErrPlayback.
func (e *PlaybackError) Is(target error) bool {
	return target == ErrPlayback
}
