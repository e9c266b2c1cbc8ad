package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"zone_bot/internal/models"
	"zone_bot/pkg/logger"
)

type AlpacaConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Alpaca — лонговая площадка. Статус ордера узнаём только поллингом.
type Alpaca struct {
	http    *http.Client
	baseURL string
	key     string
	secret  string
}

func NewAlpaca(cfg AlpacaConfig) *Alpaca {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alpaca{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
	}
}

func (a *Alpaca) Name() string { return "alpaca" }

type alpacaOrderReq struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type alpacaOrder struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Status         string  `json:"status"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	// заполнено у статуса replaced: id ордера-замены
	ReplacedBy     *string `json:"replaced_by"`
}

func (a *Alpaca) headers() map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     a.key,
		"APCA-API-SECRET-KEY": a.secret,
	}
}

func (a *Alpaca) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderHandle, error) {
	body := alpacaOrderReq{
		Symbol:        req.Symbol,
		Qty:           formatNum(req.Qty),
		Side:          strings.ToLower(string(req.Side)),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: req.ClientID,
	}
	if !req.Market {
		body.Type = "limit"
		body.TimeInForce = "gtc"
		body.LimitPrice = formatNum(req.Price)
	}

	var out alpacaOrder
	if err := doJSON(ctx, a.http, http.MethodPost, a.baseURL+"/v2/orders", a.headers(), body, &out); err != nil {
		return models.OrderHandle{}, errors.Wrap(err, "alpaca place order")
	}
	if out.ID == "" {
		return models.OrderHandle{}, fmt.Errorf("alpaca place order: empty order id")
	}

	return models.OrderHandle{
		ID:       out.ID,
		ClientID: out.ClientOrderID,
		Venue:    a.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		PlacedAt: time.Now(),
	}, nil
}

// Order — текущий статус ордера.
func (a *Alpaca) Order(ctx context.Context, id string) (models.OrderResult, error) {
	out, err := a.order(ctx, id)
	if err != nil {
		return models.OrderResult{}, err
	}
	return alpacaResult(out), nil
}

func (a *Alpaca) order(ctx context.Context, id string) (alpacaOrder, error) {
	var out alpacaOrder
	if err := doJSON(ctx, a.http, http.MethodGet, a.baseURL+"/v2/orders/"+id, a.headers(), nil, &out); err != nil {
		return alpacaOrder{}, errors.Wrap(err, "alpaca get order")
	}
	return out, nil
}

// MonitorOrder опрашивает ордер раз в poll до терминального статуса.
// Ошибки опроса не фатальны: логируем и ждём следующий тик.
// Заменённый ордер (replaced) отслеживается дальше по replaced_by.
func (a *Alpaca) MonitorOrder(ctx context.Context, h models.OrderHandle, poll time.Duration) (models.OrderResult, error) {
	if poll <= 0 {
		poll = time.Second
	}
	t := time.NewTicker(poll)
	defer t.Stop()

	id := h.ID
	for {
		out, err := a.order(ctx, id)
		switch {
		case err != nil:
			logger.Warn("[ALPACA] poll %s: %v", id, err)
		case replacedBy(out) != "":
			logger.Info("[ALPACA] order %s replaced by %s", id, *out.ReplacedBy)
			id = *out.ReplacedBy
			continue
		default:
			if res := alpacaResult(out); res.Status.Terminal() {
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			return models.OrderResult{}, ctx.Err()
		case <-t.C:
		}
	}
}

// CancelOrder снимает ордер, а если он был заменён — последний ордер цепочки.
func (a *Alpaca) CancelOrder(ctx context.Context, h models.OrderHandle) error {
	id := h.ID
	for range 10 {
		out, err := a.order(ctx, id)
		if err != nil || replacedBy(out) == "" {
			break
		}
		id = *out.ReplacedBy
	}
	err := doJSON(ctx, a.http, http.MethodDelete, a.baseURL+"/v2/orders/"+id, a.headers(), nil, nil)
	return errors.Wrap(err, "alpaca cancel order")
}

func replacedBy(o alpacaOrder) string {
	if o.Status != "replaced" || o.ReplacedBy == nil {
		return ""
	}
	return *o.ReplacedBy
}

func alpacaResult(o alpacaOrder) models.OrderResult {
	res := models.OrderResult{
		Status:    alpacaStatus(o.Status),
		FilledQty: parseNum(o.FilledQty),
		Reason:    o.Status,
	}
	if o.FilledAvgPrice != nil {
		res.AvgFillPrice = parseNum(*o.FilledAvgPrice)
	}
	return res
}

func alpacaStatus(s string) models.OrderStatus {
	switch s {
	case "filled":
		return models.OrderFilled
	case "rejected":
		return models.OrderRejected
	case "canceled", "expired", "done_for_day":
		return models.OrderCanceled
	default:
		return models.OrderSubmitted
	}
}
