package logger

import (
	"context"
	"os"

	"github.com/smallbiznis/gatehouse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewFromConfig creates the application logger; the level comes from
// LOG_LEVEL, identity and environment from the loaded config.
func NewFromConfig(cfg config.Config) (*zap.Logger, error) {
	return New(cfg.AppName, cfg.Environment, os.Getenv("LOG_LEVEL"))
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			_ = log.Sync()
			return nil
		},
	})
}

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(
		NewFromConfig,
	),
	fx.Invoke(registerHooks),
)
