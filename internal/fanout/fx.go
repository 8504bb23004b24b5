package fanout

import "go.uber.org/fx"

var Module = fx.Module("fanout.hub",
	fx.Provide(NewHub),
)
