package strategy

import (
	"fmt"
	"sync"

	"zone_bot/internal/models"
)

// Ledger — открытые ноги инструмента по двум книгам и последний RSI.
// Пишет в него только горутина инструмента, мьютекс нужен для снимков со стороны.
type Ledger struct {
	mu      sync.RWMutex
	long    []models.PositionLeg
	short   []models.PositionLeg
	prevRSI float64
	hasPrev bool
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// AddLeg записывает исполненную ногу. Цена и объём — фактические с площадки.
func (l *Ledger) AddLeg(side models.PosSide, price, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("add leg: qty must be positive, got %v", qty)
	}
	if price <= 0 {
		return fmt.Errorf("add leg: price must be positive, got %v", price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	leg := models.PositionLeg{Price: price, Qty: qty}
	switch side {
	case models.PosLong:
		l.long = append(l.long, leg)
	case models.PosShort:
		l.short = append(l.short, leg)
	default:
		return fmt.Errorf("add leg: unknown side %q", side)
	}
	return nil
}

func (l *Ledger) Legs(side models.PosSide) []models.PositionLeg {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var src []models.PositionLeg
	if side == models.PosShort {
		src = l.short
	} else {
		src = l.long
	}
	out := make([]models.PositionLeg, len(src))
	copy(out, src)
	return out
}

func (l *Ledger) TradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.long) + len(l.short)
}

// PercentageProfit — нереализованный PnL обеих книг в % от суммарного notional входа.
func (l *Ledger) PercentageProfit(current float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return profitPct(l.long, l.short, current)
}

// SideLoss — убыток одной книги в % от её notional. Положительное число = минус.
func (l *Ledger) SideLoss(side models.PosSide, current float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if side == models.PosShort {
		return -profitPct(nil, l.short, current)
	}
	return -profitPct(l.long, nil, current)
}

// CloseAll фиксирует результат и очищает обе книги.
// Возвращает реализованный % и закрытые ноги, чтобы вызывающий мог их ликвидировать.
func (l *Ledger) CloseAll(current float64) (realized float64, long, short []models.PositionLeg) {
	l.mu.Lock()
	defer l.mu.Unlock()

	realized = profitPct(l.long, l.short, current)
	long, short = l.long, l.short
	l.long, l.short = nil, nil
	l.prevRSI, l.hasPrev = 0, false
	return realized, long, short
}

func (l *Ledger) PrevRSI() (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prevRSI, l.hasPrev
}

func (l *Ledger) SetPrevRSI(v float64) {
	l.mu.Lock()
	l.prevRSI, l.hasPrev = v, true
	l.mu.Unlock()
}

// Restore подменяет содержимое целиком (подъём из хранилища).
func (l *Ledger) Restore(long, short []models.PositionLeg, prev *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.long = append([]models.PositionLeg(nil), long...)
	l.short = append([]models.PositionLeg(nil), short...)
	l.prevRSI, l.hasPrev = 0, false
	if prev != nil {
		l.prevRSI, l.hasPrev = *prev, true
	}
}

func profitPct(long, short []models.PositionLeg, current float64) float64 {
	var pnl, notional float64
	for _, leg := range long {
		pnl += (current - leg.Price) * leg.Qty
		notional += leg.Notional()
	}
	for _, leg := range short {
		pnl += (leg.Price - current) * leg.Qty
		notional += leg.Notional()
	}
	if notional == 0 {
		return 0
	}
	return pnl / notional * 100
}
