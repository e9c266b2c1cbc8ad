package helper

import (
	"math"
	"strings"
)

// NormTF приводит интервал к виду Alpha Vantage: 1min/5min/15min/30min/60min/daily.
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "1m", "1min":
		return "1min"
	case "5m", "5min":
		return "5min"
	case "15m", "15min":
		return "15min"
	case "30m", "30min":
		return "30min"
	case "60m", "1h", "60min":
		return "60min"
	case "1d", "d", "day", "1day", "daily":
		return "daily"
	default:
		return s
	}
}

func IsDaily(tf string) bool { return NormTF(tf) == "daily" }

func NormSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// MarketableLimit — лимитка по текущей цене, округлённая в сторону исполнения:
// покупка вверх, продажа вниз.
func MarketableLimit(px, tick float64, buy bool) float64 {
	if buy {
		return RoundUpToTick(px, tick)
	}
	return RoundDownToTick(px, tick)
}
