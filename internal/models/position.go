package models

// PositionLeg — одна открытая нога: цена входа и объём (qty > 0).
type PositionLeg struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

func (l PositionLeg) Notional() float64 { return l.Price * l.Qty }
