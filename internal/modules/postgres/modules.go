package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"zone_bot/internal/modules/config"
	"zone_bot/internal/store"
	"zone_bot/pkg/db"
	"zone_bot/pkg/logger"
)

// Module отдаёт store.Store: Postgres при заданном db_dsn, иначе память процесса.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config) (store.Store, error) {
				if cfg.DB == "" {
					logger.Warn("[STORE] db_dsn is empty, state lives in memory only")
					return store.NewMemory(), nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: 4,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				txm := db.NewPgTxManager(poolMaster)
				pg := store.NewPostgres(txm)
				if err := pg.EnsureSchema(ctx); err != nil {
					txm.Close()
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						txm.Close()
						return nil
					},
				})
				return pg, nil
			},
		),
	)
}
