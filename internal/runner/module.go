package runner

import (
	"context"

	"go.uber.org/fx"

	"zone_bot/internal/execution"
	"zone_bot/internal/modules/config"
	health "zone_bot/internal/modules/health/service"
	mdservice "zone_bot/internal/modules/marketdata/service"
	"zone_bot/internal/notify"
	"zone_bot/internal/store"
	"zone_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(
				cfg *config.Config,
				feed *mdservice.AlphaVantage,
				coord *execution.Coordinator,
				st store.Store,
				n notify.Notifier,
				state *health.State,
			) *Runner {
				return New(cfg, feed, coord, st, n, state)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			n notify.Notifier,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					if tg, ok := n.(*notify.Telegram); ok {
						tg.Start(ctx, r)
					}
					r.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					logger.Info("[RUNNER] stopping")
					r.Stop()
					return nil
				},
			})
		}),
	)
}
