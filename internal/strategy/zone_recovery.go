package strategy

import (
	"errors"

	"zone_bot/internal/models"
)

// Indicator — значение RSI с признаком валидности (Valid=false, когда окна не хватило).
type Indicator struct {
	Value float64
	Valid bool
}

func NoIndicator() Indicator { return Indicator{} }
func IndicatorOf(v float64) Indicator { return Indicator{Value: v, Valid: true} }

// Evaluate — решение zone recovery. Первое сработавшее правило побеждает:
// выход по цели/лимиту ног, затем хедж проигрывающей книги, затем вход по RSI.
// Леджер не меняет.
func Evaluate(l *Ledger, rsi, prev Indicator, current float64, p models.ZoneSettings) models.Decision {
	trades := l.TradeCount()
	profit := l.PercentageProfit(current)

	// 1. выход
	if trades > 0 && profit >= p.ProfitTargetPct {
		return models.Decision{Kind: models.DecisionCloseAll, Price: current, ProfitPct: profit, RSI: rsi.Value, Reason: models.ReasonExitProfit}
	}
	if p.MaxTrades > 0 && trades >= p.MaxTrades {
		return models.Decision{Kind: models.DecisionCloseAll, Price: current, ProfitPct: profit, RSI: rsi.Value, Reason: models.ReasonExitMaxTrades}
	}

	// 2. хедж
	longLoss := l.SideLoss(models.PosLong, current)
	shortLoss := l.SideLoss(models.PosShort, current)
	if longLoss > p.LossThresholdPct || shortLoss > p.LossThresholdPct {
		if longLoss >= shortLoss {
			return models.Decision{Kind: models.DecisionSell, Price: current, RSI: rsi.Value, Reason: models.ReasonHedgeLong}
		}
		return models.Decision{Kind: models.DecisionBuy, Price: current, RSI: rsi.Value, Reason: models.ReasonHedgeShort}
	}

	if !rsi.Valid {
		return models.Hold(models.ReasonInsufficientData)
	}

	// 3/4. вход
	switch p.Mode {
	case models.StrategyReversal:
		if !prev.Valid {
			break
		}
		if rsi.Value < p.EntryLow && prev.Value < rsi.Value {
			return models.Decision{Kind: models.DecisionBuy, Price: current, RSI: rsi.Value, Reason: models.ReasonReversal}
		}
		if rsi.Value > p.EntryHigh && prev.Value > rsi.Value {
			return models.Decision{Kind: models.DecisionSell, Price: current, RSI: rsi.Value, Reason: models.ReasonReversal}
		}
	default:
		if rsi.Value < p.EntryLow {
			return models.Decision{Kind: models.DecisionBuy, Price: current, RSI: rsi.Value, Reason: models.ReasonEntry}
		}
		if rsi.Value > p.EntryHigh {
			return models.Decision{Kind: models.DecisionSell, Price: current, RSI: rsi.Value, Reason: models.ReasonEntry}
		}
	}

	d := models.Hold(models.ReasonNone)
	d.RSI = rsi.Value
	return d
}

// Outcome — итог одного шага инструмента.
type Outcome struct {
	Decision models.Decision
	// Appended=false — тик-дубликат, решение не принималось.
	Appended bool
	// Ноги, снятые с леджера при CLOSE_ALL. Их надо ликвидировать на площадках.
	ClosedLong  []models.PositionLeg
	ClosedShort []models.PositionLeg
}

// Instrument — окно + леджер одного символа. Принадлежит одной горутине раннера.
type Instrument struct {
	Symbol   string
	Settings models.ZoneSettings
	Window   *Window
	Ledger   *Ledger
}

func NewInstrument(symbol string, zs models.ZoneSettings) *Instrument {
	return &Instrument{
		Symbol:   symbol,
		Settings: zs,
		Window:   NewWindow(zs.RSIPeriod),
		Ledger:   NewLedger(),
	}
}

// NeedsWarmup — окна не хватает на RSI, нужен исторический прогрев.
func (in *Instrument) NeedsWarmup() bool {
	return !in.Window.Full()
}

// Seed заливает исторические бары без принятия решений. Возвращает число принятых точек.
func (in *Instrument) Seed(points []models.PricePoint) int {
	n := 0
	for _, p := range points {
		if in.Window.Push(p) {
			n++
		}
	}
	return n
}

// Step — push → RSI → Evaluate. CLOSE_ALL применяется сразу: книги чистятся,
// окно сбрасывается под новый прогрев.
func (in *Instrument) Step(p models.PricePoint) (Outcome, error) {
	if !in.Window.Push(p) {
		return Outcome{Decision: models.Hold(models.ReasonNone)}, nil
	}

	rsi := NoIndicator()
	v, err := RSI(in.Window.Prices(), in.Settings.RSIPeriod)
	switch {
	case err == nil:
		rsi = IndicatorOf(v)
	case !errors.Is(err, ErrInsufficientData):
		return Outcome{Appended: true}, err
	}

	prev := NoIndicator()
	if pv, ok := in.Ledger.PrevRSI(); ok {
		prev = IndicatorOf(pv)
	}

	d := Evaluate(in.Ledger, rsi, prev, p.Price, in.Settings)
	out := Outcome{Decision: d, Appended: true}

	if d.Kind == models.DecisionCloseAll {
		realized, long, short := in.Ledger.CloseAll(p.Price)
		out.Decision.ProfitPct = realized
		out.ClosedLong, out.ClosedShort = long, short
		in.Window.Reset()
		return out, nil
	}

	if rsi.Valid {
		in.Ledger.SetPrevRSI(rsi.Value)
	}
	return out, nil
}

// Snapshot — состояние для хранилища.
func (in *Instrument) Snapshot() models.InstrumentState {
	prices, times, volumes := in.Window.Snapshot()
	st := models.InstrumentState{
		Symbol:     in.Symbol,
		Prices:     prices,
		Timestamps: times,
		Volumes:    volumes,
		Long:       in.Ledger.Legs(models.PosLong),
		Short:      in.Ledger.Legs(models.PosShort),
	}
	if v, ok := in.Ledger.PrevRSI(); ok {
		st.PrevRSI = &v
	}
	return st
}

func (in *Instrument) Restore(st models.InstrumentState) {
	in.Window.Restore(st.Prices, st.Timestamps, st.Volumes)
	in.Ledger.Restore(st.Long, st.Short, st.PrevRSI)
}
