package inventory

import (
	"github.com/greenyard/packhouse/internal/inventory/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory",
	fx.Provide(repository.Provide),
)
