package models

type StrategyMode string

const (
	// StrategyThreshold — вход по простому пересечению порогов RSI.
	StrategyThreshold StrategyMode = "threshold"
	// StrategyReversal — вход только когда RSI разворачивается из экстремума к нейтрали.
	StrategyReversal StrategyMode = "reversal"
)

// Side как у брокеров: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite возвращает закрывающую сторону.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// PosSide — книга, в которую попадает нога: "long"/"short".
type PosSide string

const (
	PosLong  PosSide = "long"
	PosShort PosSide = "short"
)

// OpenSide — какой стороной ордера открывается нога в этой книге.
func (p PosSide) OpenSide() Side {
	if p == PosShort {
		return SideSell
	}
	return SideBuy
}

// BookFor: BUY открывает лонг, SELL открывает шорт.
func BookFor(s Side) PosSide {
	if s == SideSell {
		return PosShort
	}
	return PosLong
}

type DecisionKind string

const (
	DecisionHold     DecisionKind = "HOLD"
	DecisionBuy      DecisionKind = "BUY"
	DecisionSell     DecisionKind = "SELL"
	DecisionCloseAll DecisionKind = "CLOSE_ALL"
)

// Причины решений — для логов и метрик.
const (
	ReasonNone             = "none"
	ReasonInsufficientData = "insufficient_data"
	ReasonExitProfit       = "exit_profit"
	ReasonExitMaxTrades    = "exit_max_trades"
	ReasonHedgeLong        = "hedge_long"
	ReasonHedgeShort       = "hedge_short"
	ReasonEntry            = "entry"
	ReasonReversal         = "reversal"
)

// Decision — ответ движка зон. ProfitPct заполнен только для CLOSE_ALL.
type Decision struct {
	Kind      DecisionKind
	Price     float64
	ProfitPct float64
	RSI       float64
	Reason    string
}

func Hold(reason string) Decision {
	return Decision{Kind: DecisionHold, Reason: reason}
}

// Side — сторона ордера для BUY/SELL, SideNone для остальных.
func (d Decision) Side() Side {
	switch d.Kind {
	case DecisionBuy:
		return SideBuy
	case DecisionSell:
		return SideSell
	default:
		return SideNone
	}
}

// ZoneSettings — параметры стратегии zone recovery.
// Все *Pct в процентах: 5 => 5%.
type ZoneSettings struct {
	RSIPeriod        int          `yaml:"rsi_period"`
	EntryLow         float64      `yaml:"entry_rsi_low"`
	EntryHigh        float64      `yaml:"entry_rsi_high"`
	ProfitTargetPct  float64      `yaml:"profit_target_pct"`
	LossThresholdPct float64      `yaml:"loss_threshold_pct"`
	MaxTrades        int          `yaml:"max_trades"`
	Mode             StrategyMode `yaml:"strategy_mode"`
}
