package venues

import (
	"context"

	"go.uber.org/fx"

	"zone_bot/internal/execution"
	"zone_bot/internal/modules/config"
	health "zone_bot/internal/modules/health/service"
	"zone_bot/internal/modules/venues/service"
	"zone_bot/internal/notify"
)

// Module поднимает обе площадки и координатор ордеров.
func Module() fx.Option {
	return fx.Module("venues",
		fx.Provide(
			func(cfg *config.Config) *service.Alpaca { return service.NewAlpaca(cfg.Alpaca) },
			func(cfg *config.Config) *service.Gateway { return service.NewGateway(cfg.Gateway) },
			func(a *service.Alpaca, g *service.Gateway) execution.Venues {
				return execution.Venues{Long: a, Short: g}
			},
			func(v execution.Venues, cfg *config.Config, n notify.Notifier) *execution.Coordinator {
				return execution.NewCoordinator(v, cfg.Execution, n)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, g *service.Gateway, state *health.State, ctx context.Context) {
			g.SetConnHook(state.SetWSConnected)
			streamCtx, cancel := context.WithCancel(ctx)
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go g.Start(streamCtx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
