package moderation

import (
	"github.com/inkwellhq/inkwell/internal/moderation/repository"
	"github.com/inkwellhq/inkwell/internal/moderation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("moderation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
