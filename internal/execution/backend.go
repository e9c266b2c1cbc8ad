package execution

import (
	"context"
	"time"

	"zone_bot/internal/models"
)

// Backend — торговая площадка. Два варианта: с поллингом статуса (Alpaca)
// и с событиями по websocket (шлюз). Координатору разница не видна.
type Backend interface {
	Name() string
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderHandle, error)
	// MonitorOrder блокируется до терминального статуса или отмены ctx.
	MonitorOrder(ctx context.Context, h models.OrderHandle, poll time.Duration) (models.OrderResult, error)
	CancelOrder(ctx context.Context, h models.OrderHandle) error
}

// Venues — лонги живут на одной площадке, шорты на другой.
type Venues struct {
	Long  Backend
	Short Backend
}

func (v Venues) For(book models.PosSide) Backend {
	if book == models.PosShort {
		return v.Short
	}
	return v.Long
}
