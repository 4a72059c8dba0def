package reconciler

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the reconciler and ties its lifecycle to the Fx app.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start(s.DefaultConfig())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
