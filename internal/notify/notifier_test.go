package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zone_bot/internal/models"
)

type staticStatus struct {
	list    []InstrumentStatus
	session float64
}

func (s staticStatus) Status() []InstrumentStatus { return s.list }
func (s staticStatus) SessionProfit() float64     { return s.session }

func TestFormatStatus(t *testing.T) {
	out := FormatStatus(staticStatus{
		session: 11.1,
		list: []InstrumentStatus{
			{Symbol: "AAPL", LastPrice: 126, RSI: 100, HasRSI: true, Long: []models.PositionLeg{{Price: 126, Qty: 1}}},
			{Symbol: "MSFT", LastPrice: 400},
		},
	})
	assert.Contains(t, out, "+11.10%")
	assert.Contains(t, out, "AAPL @ 126.0000 RSI=100.0 long=1 short=0")
	assert.Contains(t, out, "MSFT @ 400.0000 RSI=—")

	assert.Contains(t, FormatStatus(staticStatus{}), "Инструментов нет")
	assert.Contains(t, FormatStatus(nil), "не запущен")
}

func TestStdout_ConfirmsAutomatically(t *testing.T) {
	var n Notifier = NewStdout()
	n.Sendf("hello %s", "world")
	assert.True(t, n.Confirm(context.Background(), "enter?", time.Millisecond))
}

func TestTelegram_NilIsSafe(t *testing.T) {
	var tg *Telegram
	tg.Send("x")
	assert.True(t, tg.Confirm(context.Background(), "x", time.Millisecond))
}
