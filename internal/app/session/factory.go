package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rediseg/internal/app/playback"
	"github.com/osa030/rediseg/internal/infra/config"
	"github.com/osa030/rediseg/internal/infra/mpv"
	"github.com/osa030/rediseg/internal/infra/simengine"
)

// Engine is a playback engine owned by the session.
type Engine interface {
	playback.Engine
	Close() error
}

// NewEngineFromConfig creates and starts the engine named by the configuration.
func NewEngineFromConfig(ctx context.Context, cfg config.EngineConfig) (Engine, error) {
	zlog.Debug().Msgf("creating engine: type=%s settings=%+v", cfg.Type, cfg.Settings)

	switch cfg.Type {
	case "mpv":
		mcfg, err := mpv.ParseSettings(cfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create engine (type %s)", cfg.Type)
		}
		e := mpv.New(mcfg)
		if mcfg.SocketPath != "" {
			if err := e.Connect(ctx, mcfg.SocketPath); err != nil {
				_ = e.Close()
				return nil, errors.Wrap(err, "failed to attach to mpv")
			}
			zlog.Info().Msgf("engine ready: type=mpv socket=%s", mcfg.SocketPath)
			return e, nil
		}
		if err := e.Start(ctx); err != nil {
			_ = e.Close()
			return nil, errors.Wrap(err, "failed to start mpv")
		}
		zlog.Info().Msgf("engine ready: type=mpv binary=%s", mcfg.Binary)
		return e, nil

	case "sim":
		scfg, err := simengine.ParseSettings(cfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create engine (type %s)", cfg.Type)
		}
		zlog.Info().Msgf("engine ready: type=sim length=%dms endless=%v", scfg.LengthMs, scfg.Endless)
		return simengine.New(scfg), nil

	default:
		return nil, errors.Newf("unsupported engine type: %s", cfg.Type)
	}
}
