package service

import (
	"context"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	perrors "github.com/pkg/errors"

	"zone_bot/internal/helper"
	"zone_bot/pkg/logger"
)

type mover struct {
	Ticker string `json:"ticker"`
	Price  string `json:"price"`
}

// TopMovers — тикеры из топа растущих/падающих/самых торгуемых дешевле priceLimit.
// Без дублей, не больше limit (0 — без ограничения).
func (a *AlphaVantage) TopMovers(ctx context.Context, priceLimit float64, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("function", "TOP_GAINERS_LOSERS")

	raw, err := a.query(ctx, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, cat := range []string{"top_gainers", "top_losers", "most_actively_traded"} {
		body, ok := raw[cat]
		if !ok {
			continue
		}
		var movers []mover
		if err := sonic.Unmarshal(body, &movers); err != nil {
			return nil, perrors.Wrapf(err, "alphavantage decode %s", cat)
		}
		for _, m := range movers {
			px, err := strconv.ParseFloat(m.Price, 64)
			if err != nil || px <= 0 || (priceLimit > 0 && px > priceLimit) {
				continue
			}
			sym := helper.NormSymbol(m.Ticker)
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
			logger.Debug("[WATCHLIST] %s from %s at %.4f", sym, cat, px)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
