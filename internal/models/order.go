package models

import "time"

type OrderStatus string

const (
	OrderPendingSubmit OrderStatus = "PENDING_SUBMIT"
	OrderSubmitted     OrderStatus = "SUBMITTED"
	OrderFilled        OrderStatus = "FILLED"
	OrderRejected      OrderStatus = "REJECTED"
	OrderCanceled      OrderStatus = "CANCELED"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderRejected, OrderCanceled:
		return true
	default:
		return false
	}
}

// OrderRequest — что уходит на площадку. Price игнорируется при Market=true.
type OrderRequest struct {
	ClientID string
	Symbol   string
	Side     Side
	Qty      float64
	Price    float64
	Market   bool
}

// OrderHandle — то, что площадка вернула на submit.
type OrderHandle struct {
	ID       string
	ClientID string
	Venue    string
	Symbol   string
	Side     Side
	Qty      float64
	PlacedAt time.Time
}

// OrderResult — терминальный (или последний увиденный) статус ордера.
type OrderResult struct {
	Status       OrderStatus
	FilledQty    float64
	AvgFillPrice float64
	Reason       string
}
