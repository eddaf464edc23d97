package featureflag

import (
	"github.com/smallbiznis/gatehouse/internal/featureflag/repository"
	"github.com/smallbiznis/gatehouse/internal/featureflag/service"
	"go.uber.org/fx"
)

var Module = fx.Module("featureflag.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
