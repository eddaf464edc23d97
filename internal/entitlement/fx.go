package entitlement

import (
	"github.com/smallbiznis/gatehouse/internal/entitlement/repository"
	"github.com/smallbiznis/gatehouse/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
