package batch

import (
	"github.com/greenyard/packhouse/internal/batch/repository"
	"github.com/greenyard/packhouse/internal/batch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batch.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
