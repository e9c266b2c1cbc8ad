package models

import "time"

// PricePoint — одно наблюдение цены из фида.
type PricePoint struct {
	Time   time.Time
	Price  float64
	Volume float64
}
