package messaging

import (
	"github.com/inkwellhq/inkwell/internal/messaging/repository"
	"github.com/inkwellhq/inkwell/internal/messaging/service"
	"go.uber.org/fx"
)

var Module = fx.Module("messaging.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
