package packaging

import (
	"github.com/greenyard/packhouse/internal/packaging/repository"
	"github.com/greenyard/packhouse/internal/packaging/service"
	"go.uber.org/fx"
)

var Module = fx.Module("packaging.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
