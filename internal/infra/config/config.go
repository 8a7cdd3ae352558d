// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Player PlayerConfig `yaml:"player"`
	Engine EngineConfig `yaml:"engine"`
	Screen ScreenConfig `yaml:"screen"`
	API    APIConfig    `yaml:"api"`
	Hooks  HooksConfig  `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
// Each entry is run with sh -c.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started" validate:"dive,required"`
	OnStopped []string `yaml:"on_stopped" validate:"dive,required"`
}

// PlayerConfig represents playback configuration.
type PlayerConfig struct {
	URL            string   `yaml:"url" validate:"required"`
	LiveSuffixes   []string `yaml:"live_suffixes" default:"[\"m3u8\",\"ts\"]" validate:"min=1,dive,required"`
	EndToleranceMs int      `yaml:"end_tolerance_ms" default:"1000" validate:"gte=1,lte=60000"`
	AutoReload     *bool    `yaml:"auto_reload" default:"true"`
	AutoStart      *bool    `yaml:"auto_start" default:"true"`
}

// EngineConfig represents the media engine configuration.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"mpv" validate:"oneof=mpv sim"`
	Settings map[string]any `yaml:"settings"`
}

// ScreenConfig represents the screen geometry and texts.
type ScreenConfig struct {
	SeekBarWidth       float64 `yaml:"seek_bar_width" default:"320" validate:"gt=0"`
	ScrubberWidth      float64 `yaml:"scrubber_width" default:"12" validate:"gte=0"`
	ScrubberInnerWidth float64 `yaml:"scrubber_inner_width" default:"6" validate:"gte=0"`
	LiveLabel          string  `yaml:"live_label" default:"LIVE"`
	ErrorTitle         string  `yaml:"error_title" default:"Error"`
	ErrorMessage       string  `yaml:"error_message" default:"The video may be offline"`
}

// APIConfig represents the control API configuration.
// An empty Addr disables the API.
type APIConfig struct {
	Addr    string `yaml:"addr"`
	Token   string `yaml:"token"`
	Metrics *bool  `yaml:"metrics" default:"true"`
	// Command requests allowed per client IP and minute
	CommandsPerMinute int `yaml:"commands_per_minute" default:"120" validate:"gte=1"`
}

// Option modifies the configuration after environment overrides are applied.
type Option func(*Config)

// WithURL overrides the media URL.
func WithURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.Player.URL = url
		}
	}
}

// WithEngine overrides the engine type.
func WithEngine(engineType string) Option {
	return func(c *Config) {
		if engineType != "" {
			c.Engine.Type = engineType
		}
	}
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values, options over both.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return finish(&cfg, opts)
}

// Default returns a configuration built from defaults, environment variables and options only.
func Default(opts ...Option) (*Config, error) {
	return finish(&Config{}, opts)
}

func finish(cfg *Config, opts []Option) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()
	for _, opt := range opts {
		opt(cfg)
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PLAYER_URL"); v != "" {
		c.Player.URL = v
	}
	if v := os.Getenv("PLAYER_ENGINE"); v != "" {
		c.Engine.Type = v
	}
	if v := os.Getenv("PLAYER_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("PLAYER_CONTROL_TOKEN"); v != "" {
		c.API.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Screen.ScrubberInnerWidth > c.Screen.ScrubberWidth {
		return errors.Newf("scrubber_inner_width (%v) must not exceed scrubber_width (%v)",
			c.Screen.ScrubberInnerWidth, c.Screen.ScrubberWidth)
	}
	if c.Screen.ScrubberWidth > c.Screen.SeekBarWidth {
		return errors.Newf("scrubber_width (%v) must not exceed seek_bar_width (%v)",
			c.Screen.ScrubberWidth, c.Screen.SeekBarWidth)
	}

	return nil
}

// EndTolerance returns the end-of-stream tolerance.
func (c *Config) EndTolerance() time.Duration {
	return time.Duration(c.Player.EndToleranceMs) * time.Millisecond
}

// AutoReloadEnabled reports whether ended media is reloaded automatically.
func (c *Config) AutoReloadEnabled() bool {
	return c.Player.AutoReload == nil || *c.Player.AutoReload
}

// AutoStartEnabled reports whether playback starts right after the media is prepared.
func (c *Config) AutoStartEnabled() bool {
	return c.Player.AutoStart == nil || *c.Player.AutoStart
}

// MetricsEnabled reports whether the control API serves /metrics.
func (c *Config) MetricsEnabled() bool {
	return c.API.Metrics == nil || *c.API.Metrics
}
