package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"zone_bot/internal/models"
	"zone_bot/pkg/logger"
)

// события по ордерам, которые никто не ждёт, живут не дольше eventTTL
const eventTTL = 10 * time.Minute

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	WSURL   string        `yaml:"ws_url"`
	Account string        `yaml:"account"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Gateway — шортовая площадка (брокерский шлюз). Заявки уходят по REST,
// статусы приходят событиями по websocket, MonitorOrder просто ждёт событие.
type Gateway struct {
	http    *http.Client
	dialer  *websocket.Dialer
	baseURL string
	wsURL   string
	account string
	token   string

	onConn func(bool)

	mu      sync.Mutex
	last    map[string]orderEvent
	waiters map[string][]chan models.OrderResult
	sweptAt time.Time
}

type orderEvent struct {
	res models.OrderResult
	at  time.Time
}

func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		wsURL:   cfg.WSURL,
		account: cfg.Account,
		token:   cfg.Token,
		last:    make(map[string]orderEvent),
		waiters: make(map[string][]chan models.OrderResult),
	}
}

func (g *Gateway) Name() string { return "gateway" }

// SetConnHook — вызывается при подключении/обрыве websocket. Ставить до Start.
func (g *Gateway) SetConnHook(fn func(connected bool)) { g.onConn = fn }

func (g *Gateway) connState(v bool) {
	if g.onConn != nil {
		g.onConn(v)
	}
}

type gatewayOrderReq struct {
	Account    string  `json:"account,omitempty"`
	ClientID   string  `json:"client_id,omitempty"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	OrderType  string  `json:"order_type"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	TIF        string  `json:"tif"`
}

type gatewayOrder struct {
	OrderID      string  `json:"order_id"`
	Status       string  `json:"status"`
	Filled       float64 `json:"filled"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	Reason       string  `json:"reason"`
}

type gatewayFrame struct {
	Channel string       `json:"channel"`
	Data    gatewayOrder `json:"data"`
}

func (g *Gateway) headers() map[string]string {
	if g.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + g.token}
}

func (g *Gateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderHandle, error) {
	body := gatewayOrderReq{
		Account:   g.account,
		ClientID:  req.ClientID,
		Symbol:    req.Symbol,
		Action:    string(req.Side),
		OrderType: "MKT",
		Quantity:  req.Qty,
		TIF:       "DAY",
	}
	if !req.Market {
		body.OrderType = "LMT"
		body.LimitPrice = req.Price
		body.TIF = "GTC"
	}

	var out gatewayOrder
	if err := doJSON(ctx, g.http, http.MethodPost, g.baseURL+"/v1/orders", g.headers(), body, &out); err != nil {
		return models.OrderHandle{}, errors.Wrap(err, "gateway place order")
	}
	if out.OrderID == "" {
		return models.OrderHandle{}, fmt.Errorf("gateway place order: empty order id")
	}
	// шлюз может отказать сразу в ответе на submit
	g.dispatch(out)

	return models.OrderHandle{
		ID:       out.OrderID,
		ClientID: req.ClientID,
		Venue:    g.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		PlacedAt: time.Now(),
	}, nil
}

// MonitorOrder ждёт терминальное событие по ордеру. poll не используется.
func (g *Gateway) MonitorOrder(ctx context.Context, h models.OrderHandle, _ time.Duration) (models.OrderResult, error) {
	ch := make(chan models.OrderResult, 1)

	g.mu.Lock()
	if ev, ok := g.last[h.ID]; ok && ev.res.Status.Terminal() {
		delete(g.last, h.ID)
		g.mu.Unlock()
		return ev.res, nil
	}
	g.waiters[h.ID] = append(g.waiters[h.ID], ch)
	g.mu.Unlock()

	select {
	case res := <-ch:
		g.mu.Lock()
		delete(g.last, h.ID)
		g.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		g.dropWaiter(h.ID, ch)
		return models.OrderResult{}, ctx.Err()
	}
}

func (g *Gateway) CancelOrder(ctx context.Context, h models.OrderHandle) error {
	err := doJSON(ctx, g.http, http.MethodDelete, g.baseURL+"/v1/orders/"+h.ID, g.headers(), nil, nil)
	return errors.Wrap(err, "gateway cancel order")
}

// Order — статус ордера по REST. Нужен для досинхронизации после реконнекта.
func (g *Gateway) Order(ctx context.Context, id string) (models.OrderResult, error) {
	var out gatewayOrder
	if err := doJSON(ctx, g.http, http.MethodGet, g.baseURL+"/v1/orders/"+id, g.headers(), nil, &out); err != nil {
		return models.OrderResult{}, errors.Wrap(err, "gateway get order")
	}
	return gatewayResult(out), nil
}

// Start держит websocket со статусами ордеров, переподключается до отмены ctx.
func (g *Gateway) Start(ctx context.Context) {
	retry := 0
	for {
		conn, _, err := g.dialer.DialContext(ctx, g.wsURL, nil)
		if err != nil {
			retry++
			logger.Warn("[GATEWAY] dial %s: %v (retry %d)", g.wsURL, err, retry)
			if !sleepCtx(ctx, time.Duration(300*min(retry, 20))*time.Millisecond) {
				return
			}
			continue
		}

		sub := map[string]any{"op": "subscribe", "channel": "orders", "account": g.account}
		if err := conn.WriteJSON(sub); err != nil {
			retry++
			logger.Warn("[GATEWAY] subscribe: %v (retry %d)", err, retry)
			_ = conn.Close()
			if !sleepCtx(ctx, time.Duration(300*min(retry, 20))*time.Millisecond) {
				return
			}
			continue
		}
		retry = 0
		logger.Info("[GATEWAY] order events subscribed")
		g.connState(true)

		// события, пропущенные пока не было соединения
		go g.resync(ctx)

		g.readLoop(ctx, conn)
		g.connState(false)

		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("[GATEWAY] read: %v", err)
			}
			_ = conn.Close()
			return
		}
		var frame gatewayFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Channel != "orders" || frame.Data.OrderID == "" {
			continue
		}
		g.dispatch(frame.Data)
	}
}

func (g *Gateway) resync(ctx context.Context) {
	g.mu.Lock()
	ids := make([]string, 0, len(g.waiters))
	for id := range g.waiters {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		res, err := g.Order(ctx, id)
		if err != nil {
			logger.Warn("[GATEWAY] resync %s: %v", id, err)
			continue
		}
		g.dispatchResult(id, res)
	}
}

func (g *Gateway) dispatch(o gatewayOrder) {
	g.dispatchResult(o.OrderID, gatewayResult(o))
}

func (g *Gateway) dispatchResult(id string, res models.OrderResult) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep(now)

	// событие по websocket может обогнать ответ на submit
	if prev, ok := g.last[id]; ok && prev.res.Status.Terminal() {
		return
	}
	g.last[id] = orderEvent{res: res, at: now}
	if !res.Status.Terminal() {
		return
	}
	for _, ch := range g.waiters[id] {
		ch <- res
	}
	delete(g.waiters, id)
}

// sweep выкидывает старые события без ожидающих: чужие ордера аккаунта,
// отмены после таймаута. Вызывается под g.mu, не чаще раза в минуту.
func (g *Gateway) sweep(now time.Time) {
	if now.Sub(g.sweptAt) < time.Minute {
		return
	}
	g.sweptAt = now
	for id, ev := range g.last {
		if _, waiting := g.waiters[id]; waiting {
			continue
		}
		if now.Sub(ev.at) > eventTTL {
			delete(g.last, id)
		}
	}
}

func (g *Gateway) dropWaiter(id string, ch chan models.OrderResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ws := g.waiters[id]
	for i, w := range ws {
		if w == ch {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(g.waiters, id)
		delete(g.last, id)
		return
	}
	g.waiters[id] = ws
}

func gatewayResult(o gatewayOrder) models.OrderResult {
	return models.OrderResult{
		Status:       gatewayStatus(o.Status),
		FilledQty:    o.Filled,
		AvgFillPrice: o.AvgFillPrice,
		Reason:       strings.TrimSpace(o.Status + " " + o.Reason),
	}
}

func gatewayStatus(s string) models.OrderStatus {
	switch s {
	case "Filled":
		return models.OrderFilled
	case "Cancelled", "ApiCancelled":
		return models.OrderCanceled
	case "Inactive", "Rejected":
		return models.OrderRejected
	default:
		return models.OrderSubmitted
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
