// Package main provides the player entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/rediseg/internal/api/httpapi"
	"github.com/osa030/rediseg/internal/app/session"
	"github.com/osa030/rediseg/internal/domain/media"
	"github.com/osa030/rediseg/internal/infra/config"
	"github.com/osa030/rediseg/internal/infra/logger"
)

var (
	app        = kingpin.New("player", "Video player with live and on-demand playback")
	configPath = app.Flag("config", "Path to config file (optional)").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	noColor    = app.Flag("no-color", "Disable colored log output").Bool()

	// play command (default)
	playCmd    = app.Command("play", "Play a media URL (default)").Default()
	playURL    = playCmd.Flag("url", "Media URL (overrides config)").Short('u').String()
	playEngine = playCmd.Flag("engine", "Engine type: mpv or sim (overrides config)").Short('e').String()
	headless   = playCmd.Flag("headless", "Do not read commands from stdin").Bool()
	playArgURL = playCmd.Arg("media", "Media URL (same as --url)").String()

	// classify command
	classifyCmd = app.Command("classify", "Print whether a URL is played as live or on-demand")
	classifyURL = classifyCmd.Arg("url", "Media URL").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output:  "stderr",
		Level:   "info",
		NoColor: *noColor,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if command == classifyCmd.FullCommand() {
		classify(*classifyURL)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		zlog.Error().Msgf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when it exists and applies the flags.
func loadConfig() (*config.Config, error) {
	url := *playURL
	if url == "" {
		url = *playArgURL
	}
	opts := []config.Option{config.WithURL(url), config.WithEngine(*playEngine)}

	if _, err := os.Stat(*configPath); err == nil {
		zlog.Info().Msgf("Loading config from %s", *configPath)
		return config.Load(*configPath, opts...)
	}
	zlog.Debug().Msgf("Config file %s not found, using defaults", *configPath)
	return config.Default(opts...)
}

// classify prints how a URL is played.
func classify(url string) {
	cfg, err := config.Default(config.WithURL(url))
	suffixes := media.DefaultLiveSuffixes
	if err == nil {
		suffixes = cfg.Player.LiveSuffixes
	}
	if media.IsLiveURL(url, suffixes) {
		fmt.Println("live")
		return
	}
	fmt.Println("on-demand")
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := session.NewEngineFromConfig(ctx, cfg.Engine)
	if err != nil {
		return err
	}

	sessionMgr, err := session.NewManager(cfg, engine)
	if err != nil {
		_ = engine.Close()
		return errors.Wrap(err, "failed to create session manager")
	}
	defer func() {
		if err := sessionMgr.Stop(); err != nil {
			zlog.Error().Msgf("Failed to stop session: %v", err)
		}
	}()

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	var server *http.Server
	serverErrCh := make(chan error, 1)
	if cfg.API.Addr != "" {
		opts := httpapi.Options{
			Token:             cfg.API.Token,
			CommandsPerMinute: cfg.API.CommandsPerMinute,
		}
		if cfg.MetricsEnabled() {
			opts.Metrics = sessionMgr.Metrics()
		}
		handler := httpapi.NewRouter(sessionMgr, opts)

		server = &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			zlog.Info().Msgf("Control API listening on %s", cfg.API.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()
		if cfg.API.Token == "" {
			zlog.Warn().Msg("Control API token is not set, commands are not authenticated")
		}
	}

	executeHooks(cfg.Hooks.OnStarted, "on_started")

	quitCh := make(chan struct{})
	if !*headless {
		go func() {
			if runConsole(ctx, sessionMgr, os.Stdin, os.Stdout) {
				close(quitCh)
			}
		}()
	}

	// Wait for shutdown signal, quit, session end or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-quitCh:
		zlog.Info().Msg("Quit requested...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	cancel()
	if err := sessionMgr.Stop(); err != nil {
		zlog.Error().Msgf("Failed to stop session: %v", err)
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Server shutdown error: %v", err)
		}
		zlog.Info().Msg("Server stopped")
	}

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")

	return runErr
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
