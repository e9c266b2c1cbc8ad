package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"zone_bot/internal/modules/config"
	"zone_bot/internal/modules/health"
	"zone_bot/internal/modules/marketdata"
	"zone_bot/internal/modules/postgres"
	"zone_bot/internal/modules/venues"
	"zone_bot/internal/notify"
	"zone_bot/internal/runner"
	"zone_bot/pkg/logger"
	"zone_bot/pkg/tracing"
)

const serviceName = "zone_bot"

func main() {
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			// Notifier: если TELEGRAM_* нет — используем stdout
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
					tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
					if err == nil {
						return tg
					}
					logger.Error("[NOTIFY] telegram init: %v, fallback to stdout", err)
				}
				return notify.NewStdout()
			},
		),
		config.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if err := logger.Init(cfg.LogLevel); err != nil {
				return err
			}
			_, closeTracer, err := tracing.InitTracer(cfg.Tracing)
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					logger.Sync()
					return nil
				},
			})
			return nil
		}),
		postgres.Module(),
		marketdata.Module(),
		health.Module(),
		venues.Module(),
		runner.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
