package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

// commandKind identifies a console command.
type commandKind int

const (
	cmdToggle commandKind = iota
	cmdSeekBy
	cmdSeekTo
	cmdReload
	cmdDismiss
	cmdTap
	cmdScrub
	cmdResize
	cmdStatus
	cmdHelp
	cmdQuit
)

type command struct {
	kind   commandKind
	arg    time.Duration
	points float64 // Scrubber x or seek bar width
}

// controls is the part of the session the console drives.
type controls interface {
	Status() session.Status
	Screen() presenter.Screen
	TogglePlayback() error
	SeekTo(position time.Duration) error
	SeekBy(delta time.Duration) error
	Reload() error
	DismissNotice() error
	Tap() error
	Scrub(phase presenter.ScrubPhase, x float64) error
	Resize(width float64) error
}

const barCells = 40

const helpText = `commands:
  p, toggle      play or pause
  seek <+-sec>   jump relative to the current position
  goto <sec>     jump to a position
  r, reload      reload the media
  d, dismiss     dismiss the error notice
  t, tap         show or hide the controls
  scrub <x>      drag the scrubber to x points and release
  resize <w>     set the seek bar width in points
  s, status      print the session status
  q, quit        stop the player
`

var errUnknownCommand = errors.New("unknown command")

// parseCommand parses one console input line.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{kind: cmdToggle}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "p", "toggle":
		return command{kind: cmdToggle}, nil
	case "r", "reload":
		return command{kind: cmdReload}, nil
	case "d", "dismiss":
		return command{kind: cmdDismiss}, nil
	case "t", "tap":
		return command{kind: cmdTap}, nil
	case "s", "status":
		return command{kind: cmdStatus}, nil
	case "h", "help", "?":
		return command{kind: cmdHelp}, nil
	case "q", "quit", "exit":
		return command{kind: cmdQuit}, nil
	case "seek", "goto":
		if len(fields) != 2 {
			return command{}, errors.Newf("%s needs one argument in seconds", fields[0])
		}
		secs, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return command{}, errors.Wrapf(err, "invalid seconds %q", fields[1])
		}
		d := time.Duration(secs * float64(time.Second))
		if fields[0] == "seek" {
			return command{kind: cmdSeekBy, arg: d}, nil
		}
		if d < 0 {
			return command{}, errors.New("goto needs a non-negative position")
		}
		return command{kind: cmdSeekTo, arg: d}, nil
	case "scrub", "resize":
		if len(fields) != 2 {
			return command{}, errors.Newf("%s needs one argument in points", fields[0])
		}
		points, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || math.IsNaN(points) || math.IsInf(points, 0) {
			return command{}, errors.Newf("invalid points %q", fields[1])
		}
		if fields[0] == "scrub" {
			return command{kind: cmdScrub, points: points}, nil
		}
		if points <= 0 {
			return command{}, errors.New("resize needs a positive width")
		}
		return command{kind: cmdResize, points: points}, nil
	default:
		return command{}, errors.Wrapf(errUnknownCommand, "%q", fields[0])
	}
}

// runConsole reads commands from in until quit, EOF or ctx is done.
// It returns true when the user asked to quit.
func runConsole(ctx context.Context, c controls, in io.Reader, out io.Writer) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprint(out, helpText)
	renderScreen(out, c.Screen())

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if cmd.kind == cmdQuit {
				return true
			}
			if err := execute(c, cmd, out); err != nil {
				zlog.Debug().Err(err).Msg("console: command failed")
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			renderScreen(out, c.Screen())
		}
	}
}

func execute(c controls, cmd command, out io.Writer) error {
	switch cmd.kind {
	case cmdToggle:
		return c.TogglePlayback()
	case cmdSeekBy:
		return c.SeekBy(cmd.arg)
	case cmdSeekTo:
		return c.SeekTo(cmd.arg)
	case cmdReload:
		return c.Reload()
	case cmdDismiss:
		return c.DismissNotice()
	case cmdTap:
		return c.Tap()
	case cmdScrub:
		return scrub(c, cmd.points)
	case cmdResize:
		return c.Resize(cmd.points)
	case cmdStatus:
		printStatus(out, c.Status())
	case cmdHelp:
		fmt.Fprint(out, helpText)
	}
	return nil
}

// scrub performs a whole drag gesture ending at x.
func scrub(c controls, x float64) error {
	if err := c.Scrub(presenter.ScrubBegan, 0); err != nil {
		return err
	}
	if err := c.Scrub(presenter.ScrubMoved, x); err != nil {
		return err
	}
	return c.Scrub(presenter.ScrubEnded, x)
}

// renderScreen writes the screen as text.
//
//	[pause] 00:12 [=========o--------------] 01:00 playing
func renderScreen(w io.Writer, s presenter.Screen) {
	if s.Notice != nil {
		fmt.Fprintf(w, "!! %s: %s\n", s.Notice.Title, s.Notice.Message)
	}
	if !s.ControlsVisible {
		fmt.Fprintf(w, "(controls hidden) %s\n", s.State)
		return
	}

	icon := string(s.ControlIcon)
	if s.Loading {
		icon = "loading"
	}
	fmt.Fprintf(w, "[%s] %s %s %s %s\n", icon, s.CurrentTimeLabel, seekBar(s), s.DurationLabel, s.State)
}

// seekBar draws the progress bar scaled to barCells.
func seekBar(s presenter.Screen) string {
	if !s.SeekEnabled || s.SeekBarWidth <= 0 {
		return "[" + strings.Repeat("-", barCells) + "]"
	}

	pos := int(s.ProgressWidth / s.SeekBarWidth * float64(barCells-1))
	pos = max(0, min(pos, barCells-1))

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", pos))
	b.WriteByte('o')
	b.WriteString(strings.Repeat("-", barCells-1-pos))
	b.WriteByte(']')
	return b.String()
}

func printStatus(w io.Writer, st session.Status) {
	kind := "vod"
	if st.IsLive {
		kind = "live"
	}
	fmt.Fprintf(w, "session=%s phase=%s state=%s kind=%s position=%s duration=%s played=%d reloads=%d\n",
		st.SessionID, st.Phase, st.State, kind,
		presenter.FormatClock(time.Duration(st.CurrentTime)*time.Millisecond),
		presenter.FormatClock(time.Duration(st.Duration)*time.Millisecond),
		st.PlayedCount, st.AutoReloads)
	fmt.Fprintf(w, "url=%s\n", st.URL)
	if st.Error != "" {
		fmt.Fprintf(w, "error=%s\n", st.Error)
	}
}
