package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	perrors "github.com/pkg/errors"

	"zone_bot/internal/helper"
	"zone_bot/internal/models"
	"zone_bot/pkg/logger"
)

var ErrMarketDataUnavailable = errors.New("market data unavailable")

type Config struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Entitlement string        `yaml:"entitlement"` // realtime | delayed | пусто
	Timeout     time.Duration `yaml:"timeout"`
}

// AlphaVantage — фид цен (TIME_SERIES_DAILY / TIME_SERIES_INTRADAY).
type AlphaVantage struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	entitlement string
}

func NewAlphaVantage(cfg Config) *AlphaVantage {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AlphaVantage{
		http:        &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		entitlement: cfg.Entitlement,
	}
}

// FetchInitialData — последние bars баров по возрастанию времени.
func (a *AlphaVantage) FetchInitialData(ctx context.Context, symbol, interval string, bars int) ([]models.PricePoint, error) {
	size := "compact"
	if bars > 100 {
		size = "full"
	}
	pts, err := a.series(ctx, symbol, interval, size)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s %s", ErrMarketDataUnavailable, symbol, interval)
	}
	if bars > 0 && len(pts) > bars {
		pts = pts[len(pts)-bars:]
	}
	return pts, nil
}

// FetchLatestPrice — самая свежая точка. ok=false, если ряд пустой.
func (a *AlphaVantage) FetchLatestPrice(ctx context.Context, symbol, interval string) (models.PricePoint, bool, error) {
	pts, err := a.series(ctx, symbol, interval, "compact")
	if err != nil {
		return models.PricePoint{}, false, err
	}
	if len(pts) == 0 {
		logger.Warn("[FEED] no latest price for %s", symbol)
		return models.PricePoint{}, false, nil
	}
	last := pts[len(pts)-1]
	logger.Debug("[FEED] %s latest %.4f at %s", symbol, last.Price, last.Time.Format(time.RFC3339))
	return last, true, nil
}

func (a *AlphaVantage) series(ctx context.Context, symbol, interval, outputSize string) ([]models.PricePoint, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("outputsize", outputSize)
	if helper.IsDaily(interval) {
		q.Set("function", "TIME_SERIES_DAILY")
	} else {
		q.Set("function", "TIME_SERIES_INTRADAY")
		q.Set("interval", helper.NormTF(interval))
	}
	if a.entitlement != "" {
		q.Set("entitlement", a.entitlement)
	}

	raw, err := a.query(ctx, q)
	if err != nil {
		return nil, err
	}

	for key, body := range raw {
		if !strings.HasPrefix(key, "Time Series") {
			continue
		}
		var rows map[string]map[string]string
		if err := sonic.Unmarshal(body, &rows); err != nil {
			return nil, perrors.Wrapf(err, "alphavantage decode %s", key)
		}
		return parseRows(rows), nil
	}
	return nil, nil
}

// query делает запрос и раскрывает ошибки, которые AV отдаёт со статусом 200.
func (a *AlphaVantage) query(ctx context.Context, q url.Values) (map[string]json.RawMessage, error) {
	q.Set("apikey", a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, perrors.Wrap(err, "alphavantage new request")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, perrors.Wrap(err, "alphavantage do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("alphavantage http %d: %s", resp.StatusCode, string(data))
	}

	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, perrors.Wrapf(err, "alphavantage decode body=%s", string(data))
	}
	for _, k := range []string{"Error Message", "Note", "Information"} {
		if msg, ok := raw[k]; ok {
			var s string
			_ = sonic.Unmarshal(msg, &s)
			return nil, fmt.Errorf("%w: alphavantage %s: %s", ErrMarketDataUnavailable, strings.ToLower(k), s)
		}
	}
	return raw, nil
}

func parseRows(rows map[string]map[string]string) []models.PricePoint {
	out := make([]models.PricePoint, 0, len(rows))
	for ts, row := range rows {
		t, ok := parseTime(ts)
		if !ok {
			continue
		}
		px, err := strconv.ParseFloat(row["4. close"], 64)
		if err != nil || px <= 0 {
			continue
		}
		vol, _ := strconv.ParseFloat(row["5. volume"], 64)
		out = append(out, models.PricePoint{Time: t, Price: px, Volume: vol})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
