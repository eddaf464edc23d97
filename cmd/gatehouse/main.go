package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/config"
	"github.com/smallbiznis/gatehouse/internal/logger"
	"github.com/smallbiznis/gatehouse/internal/migration"
	"github.com/smallbiznis/gatehouse/internal/observability"
	"github.com/smallbiznis/gatehouse/internal/server"
	"github.com/smallbiznis/gatehouse/internal/snapshot"
	"github.com/smallbiznis/gatehouse/pkg/db"
	"github.com/smallbiznis/gatehouse/pkg/redisconn"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	options := []fx.Option{
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and all functional domains
		server.Module,
	}

	// Cross-replica snapshot invalidation rides on redis when configured;
	// a single replica runs fine without it.
	if cfg.RedisAddr != "" {
		options = append(options,
			redisconn.Module,
			snapshot.BroadcastModule,
		)
	}

	fx.New(options...).Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
