package execution

import (
	"errors"
	"fmt"
	"time"

	"zone_bot/internal/models"
)

var ErrInvalidTransition = errors.New("invalid order state transition")

// Order — жизненный цикл одного ордера:
// PENDING_SUBMIT → SUBMITTED → FILLED | REJECTED | CANCELED.
// Из PENDING_SUBMIT можно сразу в REJECTED (площадка не приняла submit).
type Order struct {
	Request models.OrderRequest
	Venue   string
	Book    models.PosSide
	Handle  models.OrderHandle
	Status  models.OrderStatus
	Result  models.OrderResult

	CreatedAt   time.Time
	SubmittedAt time.Time
	DoneAt      time.Time
}

func NewOrder(req models.OrderRequest, venue string, book models.PosSide) *Order {
	return &Order{
		Request:   req,
		Venue:     venue,
		Book:      book,
		Status:    models.OrderPendingSubmit,
		CreatedAt: time.Now(),
	}
}

func (o *Order) MarkSubmitted(h models.OrderHandle) error {
	if o.Status != models.OrderPendingSubmit {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, models.OrderSubmitted)
	}
	o.Handle = h
	o.Status = models.OrderSubmitted
	o.SubmittedAt = time.Now()
	return nil
}

// Complete переводит ордер в терминальный статус res.Status.
func (o *Order) Complete(res models.OrderResult) error {
	if !res.Status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, res.Status)
	}
	switch o.Status {
	case models.OrderSubmitted:
	case models.OrderPendingSubmit:
		if res.Status != models.OrderRejected {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, res.Status)
		}
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, res.Status)
	}
	o.Status = res.Status
	o.Result = res
	o.DoneAt = time.Now()
	return nil
}

func (o *Order) Done() bool { return o.Status.Terminal() }

// Fill — фактические цена и объём исполнения. Если площадка их не прислала,
// берём из заявки.
func (o *Order) Fill() (price, qty float64) {
	price, qty = o.Result.AvgFillPrice, o.Result.FilledQty
	if price <= 0 {
		price = o.Request.Price
	}
	if qty <= 0 {
		qty = o.Request.Qty
	}
	return price, qty
}
