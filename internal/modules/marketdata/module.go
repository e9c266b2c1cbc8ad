package marketdata

import (
	"go.uber.org/fx"

	"zone_bot/internal/modules/config"
	"zone_bot/internal/modules/marketdata/service"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			func(cfg *config.Config) *service.AlphaVantage {
				return service.NewAlphaVantage(cfg.MarketData)
			},
		),
	)
}
