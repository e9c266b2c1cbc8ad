package models

type Preset struct {
	Name        string
	Description string
	Apply       func(zs *ZoneSettings)
}

var Presets = map[string]Preset{
	"safe": {
		Name:        "🟢 Консервативный",
		Description: "Ранний выход, хедж только на глубокой просадке",
		Apply: func(zs *ZoneSettings) {
			zs.ProfitTargetPct = 2.0
			zs.LossThresholdPct = 3.0
			zs.MaxTrades = 3
		},
	},
	"mid": {
		Name:        "🟡 Средний",
		Description: "Баланс между частотой хеджа и целевой прибылью",
		Apply: func(zs *ZoneSettings) {
			zs.ProfitTargetPct = 5.0
			zs.LossThresholdPct = 2.0
			zs.MaxTrades = 5
		},
	},
	"aggr": {
		Name:        "🔴 Агрессивный",
		Description: "Много ног, поздний выход",
		Apply: func(zs *ZoneSettings) {
			zs.ProfitTargetPct = 8.0
			zs.LossThresholdPct = 1.0
			zs.MaxTrades = 9
		},
	},
}
