package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zone_bot/internal/models"
)

func TestAlpaca_PlaceAndPollUntilFilled(t *testing.T) {
	var polls atomic.Int32
	var placed alpacaOrderReq

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&placed))
		_, _ = w.Write([]byte(`{"id":"ord-1","client_order_id":"cid","status":"accepted","filled_qty":"0","filled_avg_price":null}`))
	})
	mux.HandleFunc("GET /v2/orders/ord-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"id":"ord-1","status":"new","filled_qty":"0","filled_avg_price":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"ord-1","status":"filled","filled_qty":"2","filled_avg_price":"101.5"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAlpaca(AlpacaConfig{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	h, err := a.PlaceOrder(context.Background(), models.OrderRequest{
		ClientID: "cid", Symbol: "AAPL", Side: models.SideBuy, Qty: 2, Price: 101.25,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", h.ID)
	assert.Equal(t, "alpaca", h.Venue)

	assert.Equal(t, "buy", placed.Side)
	assert.Equal(t, "limit", placed.Type)
	assert.Equal(t, "101.25", placed.LimitPrice)
	assert.Equal(t, "2", placed.Qty)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := a.MonitorOrder(ctx, h, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Equal(t, 101.5, res.AvgFillPrice)
	assert.Equal(t, 2.0, res.FilledQty)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestAlpaca_MarketOrderAndReject(t *testing.T) {
	var placed alpacaOrderReq
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&placed))
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAlpaca(AlpacaConfig{BaseURL: srv.URL})
	_, err := a.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "AAPL", Side: models.SideSell, Qty: 1, Market: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
	assert.Equal(t, "market", placed.Type)
	assert.Equal(t, "sell", placed.Side)
	assert.Empty(t, placed.LimitPrice)
}

func TestAlpaca_MonitorHonoursContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/orders/ord-2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ord-2","status":"partially_filled","filled_qty":"1"}`))
	})
	mux.HandleFunc("DELETE /v2/orders/ord-2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAlpaca(AlpacaConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.MonitorOrder(ctx, models.OrderHandle{ID: "ord-2"}, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, a.CancelOrder(context.Background(), models.OrderHandle{ID: "ord-2"}))
}

func TestAlpaca_ReplacedOrderIsFollowed(t *testing.T) {
	var deleted atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/orders/ord-3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ord-3","status":"replaced","filled_qty":"0","replaced_by":"ord-4"}`))
	})
	mux.HandleFunc("GET /v2/orders/ord-4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ord-4","status":"filled","filled_qty":"1","filled_avg_price":"42"}`))
	})
	mux.HandleFunc("DELETE /v2/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted.Store(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAlpaca(AlpacaConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := a.MonitorOrder(ctx, models.OrderHandle{ID: "ord-3"}, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, res.Status)
	assert.Equal(t, 42.0, res.AvgFillPrice)

	require.NoError(t, a.CancelOrder(ctx, models.OrderHandle{ID: "ord-3"}))
	assert.Equal(t, "ord-4", deleted.Load())
}

func TestAlpacaStatus(t *testing.T) {
	assert.Equal(t, models.OrderSubmitted, alpacaStatus("replaced"))
	assert.Equal(t, models.OrderFilled, alpacaStatus("filled"))
	assert.Equal(t, models.OrderRejected, alpacaStatus("rejected"))
	assert.Equal(t, models.OrderCanceled, alpacaStatus("expired"))
	assert.Equal(t, models.OrderSubmitted, alpacaStatus("pending_new"))
}
