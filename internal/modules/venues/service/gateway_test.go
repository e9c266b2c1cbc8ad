package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zone_bot/internal/models"
)

// fakeGateway — REST + websocket со статусами, как у брокерского шлюза.
type fakeGateway struct {
	t          *testing.T
	upgrader   websocket.Upgrader
	subscribed chan struct{}
	fillOnPost bool

	mu     sync.Mutex
	conn   *websocket.Conn
	orders []gatewayOrderReq
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	f := &fakeGateway{t: t, subscribed: make(chan struct{}, 1), fillOnPost: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.ws)
	mux.HandleFunc("POST /v1/orders", f.place)
	mux.HandleFunc("GET /v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"` + r.PathValue("id") + `","status":"Submitted"}`))
	})
	mux.HandleFunc("DELETE /v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGateway) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	var sub map[string]any
	if err := conn.ReadJSON(&sub); err != nil {
		_ = conn.Close()
		return
	}
	assert.Equal(f.t, "orders", sub["channel"])

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.subscribed <- struct{}{}

	// держим соединение, пока клиент не закроет
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeGateway) place(w http.ResponseWriter, r *http.Request) {
	var req gatewayOrderReq
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	f.orders = append(f.orders, req)
	id := "gw-" + req.ClientID
	conn := f.conn
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"order_id":"` + id + `","status":"PreSubmitted"}`))

	if f.fillOnPost && conn != nil {
		f.mu.Lock()
		_ = conn.WriteJSON(gatewayFrame{Channel: "orders", Data: gatewayOrder{
			OrderID: id, Status: "Filled", Filled: req.Quantity, AvgFillPrice: 99.5,
		}})
		f.mu.Unlock()
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestGateway_FillArrivesAsEvent(t *testing.T) {
	fake, srv := newFakeGateway(t)
	g := NewGateway(GatewayConfig{BaseURL: srv.URL, WSURL: wsURL(srv), Account: "DU123"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Start(ctx)

	select {
	case <-fake.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not subscribe")
	}

	h, err := g.PlaceOrder(ctx, models.OrderRequest{ClientID: "c1", Symbol: "AAPL", Side: models.SideSell, Qty: 3, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "gw-c1", h.ID)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	res, err := g.MonitorOrder(waitCtx, h, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Equal(t, 3.0, res.FilledQty)
	assert.Equal(t, 99.5, res.AvgFillPrice)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.orders, 1)
	assert.Equal(t, "SELL", fake.orders[0].Action)
	assert.Equal(t, "LMT", fake.orders[0].OrderType)
	assert.Equal(t, "DU123", fake.orders[0].Account)
}

func TestGateway_MonitorTimesOutWithoutEvent(t *testing.T) {
	fake, srv := newFakeGateway(t)
	fake.fillOnPost = false
	g := NewGateway(GatewayConfig{BaseURL: srv.URL, WSURL: wsURL(srv)})

	h, err := g.PlaceOrder(context.Background(), models.OrderRequest{ClientID: "c2", Symbol: "AAPL", Side: models.SideBuy, Qty: 1, Market: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = g.MonitorOrder(ctx, h, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	g.mu.Lock()
	assert.Empty(t, g.waiters)
	g.mu.Unlock()

	assert.NoError(t, g.CancelOrder(context.Background(), h))
}

func TestGateway_ImmediateRejectOnSubmit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"gw-9","status":"Inactive","reason":"no shortable shares"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL})
	h, err := g.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "GME", Side: models.SideSell, Qty: 1, Price: 20})
	require.NoError(t, err)

	res, err := g.MonitorOrder(context.Background(), h, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Status)
	assert.Contains(t, res.Reason, "no shortable shares")
}

func TestGateway_LateEventAfterTimeoutIsKept(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	h := models.OrderHandle{ID: "gw-7"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.MonitorOrder(ctx, h, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// fill пришёл уже после таймаута, повторное ожидание его видит
	g.dispatch(gatewayOrder{OrderID: "gw-7", Status: "Filled", Filled: 1, AvgFillPrice: 10})
	res, err := g.MonitorOrder(context.Background(), h, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Equal(t, 10.0, res.AvgFillPrice)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.NotContains(t, g.last, "gw-7")
}

func TestGateway_SweepsStaleEvents(t *testing.T) {
	g := NewGateway(GatewayConfig{})
	old := time.Now().Add(-time.Hour)
	g.last["foreign"] = orderEvent{res: models.OrderResult{Status: models.OrderFilled}, at: old}
	g.last["waited"] = orderEvent{res: models.OrderResult{Status: models.OrderSubmitted}, at: old}
	g.waiters["waited"] = []chan models.OrderResult{make(chan models.OrderResult, 1)}

	g.dispatchResult("gw-1", models.OrderResult{Status: models.OrderSubmitted})

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.NotContains(t, g.last, "foreign")
	assert.Contains(t, g.last, "waited")
	assert.Contains(t, g.last, "gw-1")
}

// resetAfterHandshake — соединение рвётся сразу после рукопожатия.
type resetAfterHandshake struct {
	net.Conn
	writes atomic.Int32
}

func (c *resetAfterHandshake) Write(p []byte) (int, error) {
	if c.writes.Add(1) > 1 {
		return 0, errors.New("connection reset by peer")
	}
	return c.Conn.Write(p)
}

func TestGateway_SubscribeFailureBacksOff(t *testing.T) {
	_, srv := newFakeGateway(t)
	g := NewGateway(GatewayConfig{BaseURL: srv.URL, WSURL: wsURL(srv)})

	var dials atomic.Int32
	g.dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dials.Add(1)
		var d net.Dialer
		c, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &resetAfterHandshake{Conn: c}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	g.Start(ctx)

	assert.GreaterOrEqual(t, dials.Load(), int32(1))
	assert.LessOrEqual(t, dials.Load(), int32(2))
}

func TestGatewayStatus(t *testing.T) {
	assert.Equal(t, models.OrderSubmitted, gatewayStatus("PreSubmitted"))
	assert.Equal(t, models.OrderCanceled, gatewayStatus("ApiCancelled"))
	assert.Equal(t, models.OrderRejected, gatewayStatus("Inactive"))
	assert.Equal(t, models.OrderFilled, gatewayStatus("Filled"))
}
