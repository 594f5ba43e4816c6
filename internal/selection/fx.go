package selection

import (
	"github.com/smallbiznis/fleetrent/internal/selection/repository"
	"github.com/smallbiznis/fleetrent/internal/selection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("selection.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
