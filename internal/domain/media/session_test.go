package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsLiveURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		suffixes []string
		expected bool
	}{
		{
			name:     "hls playlist",
			url:      "http://example.com/live/stream.m3u8",
			expected: true,
		},
		{
			name:     "transport stream",
			url:      "http://example.com/live/channel.ts",
			expected: true,
		},
		{
			name:     "mp4 file",
			url:      "http://clips.vorwaerts-gmbh.de/VfE_html5.mp4",
			expected: false,
		},
		{
			name:     "query string after suffix",
			url:      "http://example.com/stream.m3u8?token=abc",
			expected: false,
		},
		{
			name:     "upper case suffix",
			url:      "http://example.com/stream.M3U8",
			expected: false,
		},
		{
			name:     "no dot at all",
			url:      "rtmp-stream",
			expected: false,
		},
		{
			name:     "empty url",
			url:      "",
			expected: false,
		},
		{
			name:     "suffix only as path segment",
			url:      "http://example.com/m3u8/video.mp4",
			expected: false,
		},
		{
			name:     "custom suffix list",
			url:      "http://example.com/manifest.mpd",
			suffixes: []string{"mpd"},
			expected: true,
		},
		{
			name:     "custom suffix list excludes default",
			url:      "http://example.com/stream.m3u8",
			suffixes: []string{"mpd"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLiveURL(tt.url, tt.suffixes))
		})
	}
}

func TestNewSession(t *testing.T) {
	s := NewSession("session-1", "http://example.com/a.m3u8", nil)

	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, "http://example.com/a.m3u8", s.URL)
	assert.True(t, s.IsLive())
	assert.False(t, s.DurationKnown())
	assert.Equal(t, time.Duration(0), s.CurrentTime)
	assert.Equal(t, 0, s.PlayedCount)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSession_SetDuration(t *testing.T) {
	s := NewSession("session-1", "http://example.com/a.mp4", nil)

	assert.True(t, s.SetDuration(10*time.Second))
	assert.True(t, s.DurationKnown())
	assert.Equal(t, 10*time.Second, s.Duration)

	// Second capture is ignored
	assert.False(t, s.SetDuration(20*time.Second))
	assert.Equal(t, 10*time.Second, s.Duration)
}

func TestSession_ReachedEnd(t *testing.T) {
	tests := []struct {
		name        string
		duration    time.Duration
		known       bool
		currentTime time.Duration
		expected    bool
	}{
		{
			name:        "exact match",
			duration:    10 * time.Second,
			known:       true,
			currentTime: 10 * time.Second,
			expected:    true,
		},
		{
			name:        "slightly before end",
			duration:    10 * time.Second,
			known:       true,
			currentTime: 9500 * time.Millisecond,
			expected:    true,
		},
		{
			name:        "slightly past end",
			duration:    10 * time.Second,
			known:       true,
			currentTime: 10999 * time.Millisecond,
			expected:    true,
		},
		{
			name:        "exactly one second short",
			duration:    10 * time.Second,
			known:       true,
			currentTime: 9 * time.Second,
			expected:    false,
		},
		{
			name:        "stopped midway",
			duration:    10 * time.Second,
			known:       true,
			currentTime: 4 * time.Second,
			expected:    false,
		},
		{
			name:        "duration unknown",
			known:       false,
			currentTime: 0,
			expected:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("id", "http://example.com/a.mp4", nil)
			if tt.known {
				s.SetDuration(tt.duration)
			}
			s.CurrentTime = tt.currentTime

			assert.Equal(t, tt.expected, s.ReachedEnd(time.Second))
		})
	}
}

func TestSession_IncrementPlayed(t *testing.T) {
	s := NewSession("id", "http://example.com/a.mp4", nil)
	s.IncrementPlayed()
	s.IncrementPlayed()
	assert.Equal(t, 2, s.PlayedCount)
}
