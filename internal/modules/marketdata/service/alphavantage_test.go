package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyBody = `{
  "Meta Data": {"2. Symbol": "AAPL"},
  "Time Series (Daily)": {
    "2024-01-04": {"1. open": "1", "4. close": "103.0", "5. volume": "300"},
    "2024-01-02": {"1. open": "1", "4. close": "101.0", "5. volume": "100"},
    "2024-01-03": {"1. open": "1", "4. close": "102.0", "5. volume": "200"},
    "garbage":    {"4. close": "1"}
  }
}`

func newFeed(t *testing.T, handler http.HandlerFunc) *AlphaVantage {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAlphaVantage(Config{BaseURL: srv.URL, APIKey: "demo"})
}

func TestFetchInitialData_DailySortedAndTrimmed(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(dailyBody))
	})

	pts, err := feed.FetchInitialData(context.Background(), "AAPL", "1day", 2)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 102.0, pts[0].Price)
	assert.Equal(t, 103.0, pts[1].Price)
	assert.Equal(t, 300.0, pts[1].Volume)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), pts[1].Time)
}

func TestFetchLatestPrice_Intraday(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_INTRADAY", r.URL.Query().Get("function"))
		assert.Equal(t, "5min", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"Time Series (5min)": {
			"2024-01-02 15:55:00": {"4. close": "10.5", "5. volume": "7"},
			"2024-01-02 16:00:00": {"4. close": "10.75", "5. volume": "9"}
		}}`))
	})

	pt, ok, err := feed.FetchLatestPrice(context.Background(), "AAPL", "5m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.75, pt.Price)
	assert.Equal(t, 16, pt.Time.Hour())
}

func TestFetchLatestPrice_EmptySeries(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Meta Data": {}}`))
	})

	_, ok, err := feed.FetchLatestPrice(context.Background(), "AAPL", "daily")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = feed.FetchInitialData(context.Background(), "AAPL", "daily", 30)
	assert.ErrorIs(t, err, ErrMarketDataUnavailable)
}

func TestQuery_RateLimitNote(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})

	_, _, err := feed.FetchLatestPrice(context.Background(), "AAPL", "daily")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMarketDataUnavailable)
	assert.Contains(t, err.Error(), "call frequency")
}

func TestQuery_HTTPError(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := feed.FetchInitialData(context.Background(), "AAPL", "daily", 30)
	assert.Error(t, err)
}

func TestTopMovers(t *testing.T) {
	feed := newFeed(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TOP_GAINERS_LOSERS", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(`{
			"top_gainers": [{"ticker": "abc", "price": "5.10"}, {"ticker": "BIG", "price": "250"}],
			"top_losers": [{"ticker": "XYZ", "price": "1.2"}],
			"most_actively_traded": [{"ticker": "ABC", "price": "5.10"}, {"ticker": "QQQ", "price": "9.99"}]
		}`))
	})

	syms, err := feed.TopMovers(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "XYZ", "QQQ"}, syms)

	syms, err = feed.TopMovers(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "XYZ"}, syms)
}
