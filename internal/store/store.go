package store

import (
	"context"

	"zone_bot/internal/models"
)

// Store — сохранённое состояние инструментов: окно, ноги, последний RSI.
type Store interface {
	Get(ctx context.Context, symbol string) (*models.InstrumentState, bool, error)
	Save(ctx context.Context, st *models.InstrumentState) error
	All(ctx context.Context) ([]*models.InstrumentState, error)
}
