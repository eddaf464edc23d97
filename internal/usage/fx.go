package usage

import (
	"github.com/smallbiznis/gatehouse/internal/usage/repository"
	"github.com/smallbiznis/gatehouse/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.checker",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewService),
)
