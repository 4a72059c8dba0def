package subscription

import "go.uber.org/fx"

// Module exposes the subscription service via Fx and wires its event
// handlers into the webhook dispatcher at startup.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(RegisterEventHandlers),
)
