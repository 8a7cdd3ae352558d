package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "", want: command{kind: cmdToggle}},
		{line: "p", want: command{kind: cmdToggle}},
		{line: "  Toggle ", want: command{kind: cmdToggle}},
		{line: "r", want: command{kind: cmdReload}},
		{line: "dismiss", want: command{kind: cmdDismiss}},
		{line: "t", want: command{kind: cmdTap}},
		{line: "status", want: command{kind: cmdStatus}},
		{line: "?", want: command{kind: cmdHelp}},
		{line: "q", want: command{kind: cmdQuit}},
		{line: "seek 10", want: command{kind: cmdSeekBy, arg: 10 * time.Second}},
		{line: "seek -2.5", want: command{kind: cmdSeekBy, arg: -2500 * time.Millisecond}},
		{line: "goto 90", want: command{kind: cmdSeekTo, arg: 90 * time.Second}},
		{line: "scrub 120.5", want: command{kind: cmdScrub, points: 120.5}},
		{line: "scrub -10", want: command{kind: cmdScrub, points: -10}},
		{line: "resize 640", want: command{kind: cmdResize, points: 640}},
		{line: "resize 0", wantErr: true},
		{line: "resize wide", wantErr: true},
		{line: "scrub", wantErr: true},
		{line: "scrub NaN", wantErr: true},
		{line: "goto -1", wantErr: true},
		{line: "seek", wantErr: true},
		{line: "seek ten", wantErr: true},
		{line: "rewind", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderScreen(t *testing.T) {
	tests := []struct {
		name   string
		screen presenter.Screen
		want   []string
	}{
		{
			name: "playing",
			screen: presenter.Screen{
				State: "playing", ControlIcon: presenter.IconPause, SeekEnabled: true, ControlsVisible: true,
				SeekBarWidth: 100, ProgressWidth: 50, CurrentTimeLabel: "00:30", DurationLabel: "01:00",
			},
			want: []string{"[pause] 00:30 [", "=o-", "] 01:00 playing"},
		},
		{
			name: "live error",
			screen: presenter.Screen{
				State: "error", ControlIcon: presenter.IconPlay, ControlsVisible: true,
				SeekBarWidth: 100, CurrentTimeLabel: "00:00", DurationLabel: "LIVE",
				Notice: &presenter.Notice{Title: "Error", Message: "The video may be offline"},
			},
			want: []string{"!! Error: The video may be offline", "LIVE error"},
		},
		{
			name:   "hidden",
			screen: presenter.Screen{State: "paused"},
			want:   []string{"(controls hidden) paused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderScreen(&buf, tt.screen)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestSeekBar_Bounds(t *testing.T) {
	s := presenter.Screen{SeekEnabled: true, SeekBarWidth: 100}

	s.ProgressWidth = 0
	assert.True(t, strings.HasPrefix(seekBar(s), "[o-"))

	s.ProgressWidth = 250
	assert.True(t, strings.HasSuffix(seekBar(s), "=o]"))
	assert.Len(t, seekBar(s), barCells+2)
}

type fakeControls struct {
	calls []string
}

func (f *fakeControls) Status() session.Status   { return session.Status{SessionID: "s1"} }
func (f *fakeControls) Screen() presenter.Screen { return presenter.Screen{State: "playing"} }

func (f *fakeControls) TogglePlayback() error {
	f.calls = append(f.calls, "toggle")
	return nil
}

func (f *fakeControls) SeekTo(time.Duration) error {
	f.calls = append(f.calls, "goto")
	return nil
}

func (f *fakeControls) SeekBy(time.Duration) error {
	f.calls = append(f.calls, "seek")
	return nil
}

func (f *fakeControls) Reload() error {
	f.calls = append(f.calls, "reload")
	return nil
}

func (f *fakeControls) DismissNotice() error {
	f.calls = append(f.calls, "dismiss")
	return nil
}

func (f *fakeControls) Tap() error {
	f.calls = append(f.calls, "tap")
	return nil
}

func (f *fakeControls) Scrub(phase presenter.ScrubPhase, x float64) error {
	f.calls = append(f.calls, fmt.Sprintf("scrub %s %v", phase, x))
	return nil
}

func (f *fakeControls) Resize(width float64) error {
	f.calls = append(f.calls, fmt.Sprintf("resize %v", width))
	return nil
}

func TestRunConsole(t *testing.T) {
	c := &fakeControls{}
	var out bytes.Buffer
	in := strings.NewReader("p\nseek 5\ngoto 1\nbogus\nr\nd\nt\nscrub 80\nresize 640\ns\nq\np\n")

	quit := runConsole(context.Background(), c, in, &out)

	assert.True(t, quit)
	assert.Equal(t, []string{
		"toggle", "seek", "goto", "reload", "dismiss", "tap",
		"scrub began 0", "scrub moved 80", "scrub ended 80",
		"resize 640",
	}, c.calls)
	assert.Contains(t, out.String(), "unknown command")
	assert.Contains(t, out.String(), "session=s1")
}

func TestRunConsole_EOF(t *testing.T) {
	c := &fakeControls{}
	quit := runConsole(context.Background(), c, strings.NewReader("r\n"), &bytes.Buffer{})

	assert.False(t, quit)
	assert.Equal(t, []string{"reload"}, c.calls)
}
