package workflow

import (
	"github.com/inkwellhq/inkwell/internal/workflow/repository"
	"github.com/inkwellhq/inkwell/internal/workflow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workflow.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
