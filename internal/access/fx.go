package access

import (
	"github.com/inkwellhq/inkwell/internal/access/repository"
	"github.com/inkwellhq/inkwell/internal/access/service"
	"go.uber.org/fx"
)

var Module = fx.Module("access.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
