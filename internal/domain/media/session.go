// Package media provides the playback Session domain entity.
package media

import (
	"strings"
	"time"
)

// DefaultLiveSuffixes are the URL suffixes that mark a live stream.
var DefaultLiveSuffixes = []string{"m3u8", "ts"}

// Session represents one video load on the playback screen.
type Session struct {
	ID          string        // UUID
	URL         string        // Media URL
	CurrentTime time.Duration // Last known playback position
	Duration    time.Duration // Media length (valid once DurationKnown)
	PlayedCount int           // Times the media played through to the end
	CreatedAt   time.Time     // Load time

	isLive        bool
	durationKnown bool
}

// NewSession creates a new session for the given URL.
// Liveness is computed once here and never changes afterwards.
func NewSession(id, url string, liveSuffixes []string) *Session {
	return &Session{
		ID:        id,
		URL:       url,
		CreatedAt: time.Now(),
		isLive:    IsLiveURL(url, liveSuffixes),
	}
}

// IsLive reports whether the session plays a live stream.
func (s *Session) IsLive() bool {
	return s.isLive
}

// DurationKnown reports whether the duration has been captured from the engine.
func (s *Session) DurationKnown() bool {
	return s.durationKnown
}

// SetDuration records the media length. Only the first call takes effect.
// Returns false if the duration was already known.
func (s *Session) SetDuration(d time.Duration) bool {
	if s.durationKnown {
		return false
	}
	s.Duration = d
	s.durationKnown = true
	return true
}

// IncrementPlayed increments the played-through count.
func (s *Session) IncrementPlayed() {
	s.PlayedCount++
}

// ReachedEnd checks if the current position is within tolerance of the duration.
// Returns false while the duration is unknown.
func (s *Session) ReachedEnd(tolerance time.Duration) bool {
	if !s.durationKnown {
		return false
	}
	diff := s.Duration - s.CurrentTime
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}

// IsLiveURL classifies a URL by the text after its last dot.
// A nil suffix list falls back to DefaultLiveSuffixes.
func IsLiveURL(url string, liveSuffixes []string) bool {
	if liveSuffixes == nil {
		liveSuffixes = DefaultLiveSuffixes
	}
	idx := strings.LastIndex(url, ".")
	if idx < 0 {
		return false
	}
	ext := url[idx+1:]
	for _, s := range liveSuffixes {
		if ext == s {
			return true
		}
	}
	return false
}
