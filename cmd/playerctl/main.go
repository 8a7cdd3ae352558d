// Package main provides the control client for a running player.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/rediseg/internal/app/presenter"
	"github.com/osa030/rediseg/internal/app/session"
)

var (
	app     = kingpin.New("playerctl", "Control client for the player")
	server  = app.Flag("server", "Player control API address").Default("http://localhost:8090").Envar("PLAYERCTL_SERVER").String()
	token   = app.Flag("token", "Control token").Envar("PLAYER_CONTROL_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("5s").Duration()

	statusCmd  = app.Command("status", "Show the session status")
	screenCmd  = app.Command("screen", "Show the screen model")
	toggleCmd  = app.Command("toggle", "Play or pause")
	reloadCmd  = app.Command("reload", "Reload the media")
	dismissCmd = app.Command("dismiss", "Dismiss the error notice")

	seekCmd   = app.Command("seek", "Jump relative to the current position")
	seekDelta = seekCmd.Arg("delta", "Offset such as 10s or -1m30s").Required().String()

	gotoCmd      = app.Command("goto", "Jump to a position")
	gotoPosition = gotoCmd.Arg("position", "Position such as 90s or 1m30s").Required().Duration()

	watchCmd      = app.Command("watch", "Poll the screen until interrupted")
	watchInterval = watchCmd.Flag("interval", "Poll interval").Default("1s").Duration()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := newClient(*server, *token, *timeout)
	ctx := context.Background()

	var (
		screen presenter.Screen
		err    error
	)
	switch command {
	case statusCmd.FullCommand():
		var st session.Status
		st, err = c.Status(ctx)
		if err == nil {
			printStatus(st)
			return
		}
	case screenCmd.FullCommand():
		screen, err = c.Screen(ctx)
	case toggleCmd.FullCommand():
		screen, err = c.Toggle(ctx)
	case reloadCmd.FullCommand():
		screen, err = c.Reload(ctx)
	case dismissCmd.FullCommand():
		screen, err = c.Dismiss(ctx)
	case seekCmd.FullCommand():
		var delta time.Duration
		delta, err = parseDelta(*seekDelta)
		if err == nil {
			screen, err = c.SeekBy(ctx, delta)
		}
	case gotoCmd.FullCommand():
		screen, err = c.SeekTo(ctx, *gotoPosition)
	case watchCmd.FullCommand():
		err = watch(ctx, c, *watchInterval)
		if err == nil {
			return
		}
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printScreen(screen)
}

// parseDelta accepts a signed Go duration ("-10s") or plain seconds ("+5").
func parseDelta(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Newf("invalid offset %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func watch(ctx context.Context, c *client, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := c.Screen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		printScreen(s)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printStatus(st session.Status) {
	fmt.Printf("Session ID:   %s\n", st.SessionID)
	fmt.Printf("URL:          %s\n", st.URL)
	fmt.Printf("Phase:        %s\n", st.Phase)
	fmt.Printf("State:        %s\n", st.State)
	fmt.Printf("Live:         %v\n", st.IsLive)
	fmt.Printf("Position:     %s\n", presenter.FormatClock(time.Duration(st.CurrentTime)*time.Millisecond))
	fmt.Printf("Duration:     %s\n", presenter.FormatClock(time.Duration(st.Duration)*time.Millisecond))
	fmt.Printf("Played:       %d\n", st.PlayedCount)
	fmt.Printf("Auto reloads: %d\n", st.AutoReloads)
	if st.Error != "" {
		fmt.Printf("Error:        %s\n", st.Error)
	}
}

func printScreen(s presenter.Screen) {
	icon := string(s.ControlIcon)
	if s.Loading {
		icon = "loading"
	}
	fmt.Printf("[%s] %s / %s  %s", icon, s.CurrentTimeLabel, s.DurationLabel, s.State)
	if !s.SeekEnabled {
		fmt.Print("  (seek disabled)")
	}
	fmt.Println()
	if s.Notice != nil {
		fmt.Printf("  %s: %s\n", s.Notice.Title, s.Notice.Message)
	}
}
