package snapshot

import (
	"context"

	"github.com/smallbiznis/gatehouse/internal/snapshot/repository"
	"github.com/smallbiznis/gatehouse/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// BroadcastModule wires cross-replica invalidation over redis. Include it
// only when a redis address is configured.
var BroadcastModule = fx.Module("snapshot.broadcast",
	fx.Provide(service.NewBroadcaster),
	fx.Invoke(func(lc fx.Lifecycle, b *service.Broadcaster) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				b.Start()
				return nil
			},
			OnStop: func(context.Context) error {
				b.Stop()
				return nil
			},
		})
	}),
)
