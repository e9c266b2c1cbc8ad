package models

import "time"

// InstrumentState — логическая форма сохраняемого состояния по инструменту.
type InstrumentState struct {
	Symbol     string        `json:"symbol"`
	Prices     []float64     `json:"prices"`
	Timestamps []time.Time   `json:"timestamps"`
	Volumes    []float64     `json:"volumes"`
	Long       []PositionLeg `json:"long"`
	Short      []PositionLeg `json:"short"`
	PrevRSI    *float64      `json:"previous_rsi,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
