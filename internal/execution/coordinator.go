package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"zone_bot/internal/helper"
	"zone_bot/internal/metrics"
	"zone_bot/internal/models"
	"zone_bot/pkg/logger"
	"zone_bot/pkg/tracing"
)

var (
	ErrExecutionRejected = errors.New("order rejected or canceled")
	ErrExecutionTimeout  = errors.New("order timed out")
)

const cancelTimeout = 10 * time.Second

type Config struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	OrderTimeout  time.Duration `yaml:"order_timeout"`
	// сколько ждать отмену и финальный статус после таймаута
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
	MarketOrders  bool          `yaml:"market_orders"`
	TickSize      float64       `yaml:"tick_size"`
}

// Alerter — куда слать алерты оператору.
type Alerter interface {
	Sendf(format string, args ...any)
}

// LegRecorder — леджер инструмента. Ногу пишем только по факту исполнения.
type LegRecorder interface {
	AddLeg(side models.PosSide, price, qty float64) error
}

// Coordinator маршрутизирует решения по площадкам и доводит ордера до терминального статуса.
type Coordinator struct {
	venues Venues
	cfg    Config
	alert  Alerter
}

func NewCoordinator(venues Venues, cfg Config, alert Alerter) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 2 * time.Minute
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = cancelTimeout
	}
	return &Coordinator{venues: venues, cfg: cfg, alert: alert}
}

// Open исполняет BUY/SELL (вход или хедж) и при fill пишет ногу в леджер.
// BUY уходит на лонговую площадку, SELL на шортовую.
func (c *Coordinator) Open(
	ctx context.Context,
	symbol string,
	side models.Side,
	qty, price float64,
	ledger LegRecorder,
) (*Order, error) {
	if side != models.SideBuy && side != models.SideSell {
		return nil, fmt.Errorf("open %s: unsupported side %q", symbol, side)
	}
	book := models.BookFor(side)

	o, err := c.execute(ctx, book, c.request(symbol, side, qty, price))
	if err != nil {
		return o, err
	}

	fillPx, fillQty := o.Fill()
	if err := ledger.AddLeg(book, fillPx, fillQty); err != nil {
		return o, fmt.Errorf("record %s leg for %s: %w", book, symbol, err)
	}
	logger.Info("[ORDER] %s %s %s filled %.4f @ %.4f (venue=%s id=%s)",
		symbol, side, book, fillQty, fillPx, o.Venue, o.Handle.ID)
	return o, nil
}

// Liquidate закрывает ноги встречными ордерами: лонги продаются на лонговой площадке,
// шорты откупаются на шортовой. Ошибки по ногам собираются, остальные ноги всё равно закрываются.
func (c *Coordinator) Liquidate(ctx context.Context, symbol string, long, short []models.PositionLeg, price float64) error {
	var errs error
	for _, leg := range long {
		errs = multierr.Append(errs, c.closeLeg(ctx, symbol, models.PosLong, leg, price))
	}
	for _, leg := range short {
		errs = multierr.Append(errs, c.closeLeg(ctx, symbol, models.PosShort, leg, price))
	}
	if errs != nil {
		c.alertf("❗️ %s: ликвидация прошла не полностью: %v", symbol, errs)
	}
	return errs
}

func (c *Coordinator) closeLeg(ctx context.Context, symbol string, book models.PosSide, leg models.PositionLeg, price float64) error {
	side := book.OpenSide().Opposite()
	o, err := c.execute(ctx, book, c.request(symbol, side, leg.Qty, price))
	if err != nil {
		return fmt.Errorf("close %s leg %.4f@%.4f: %w", book, leg.Qty, leg.Price, err)
	}
	fillPx, fillQty := o.Fill()
	logger.Info("[ORDER] %s closed %s leg %.4f @ %.4f (entry %.4f, venue=%s)",
		symbol, book, fillQty, fillPx, leg.Price, o.Venue)
	return nil
}

func (c *Coordinator) request(symbol string, side models.Side, qty, price float64) models.OrderRequest {
	req := models.OrderRequest{
		ClientID: uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		Price:    price,
		Market:   c.cfg.MarketOrders,
	}
	if !req.Market {
		req.Price = helper.MarketableLimit(price, c.cfg.TickSize, side == models.SideBuy)
	}
	return req
}

func (c *Coordinator) execute(ctx context.Context, book models.PosSide, req models.OrderRequest) (*Order, error) {
	venue := c.venues.For(book)
	if venue == nil {
		return nil, fmt.Errorf("no venue for %s book", book)
	}

	span, ctx := tracing.StartSpan(ctx, "order.execute", map[string]any{
		"symbol": req.Symbol,
		"side":   string(req.Side),
		"book":   string(book),
		"venue":  venue.Name(),
		"qty":    req.Qty,
	})

	o, err := c.Submit(ctx, venue, book, req)
	if err == nil {
		_, err = c.AwaitTerminal(ctx, venue, o)
	}
	tracing.Finish(span, err)
	return o, err
}

// Submit отправляет заявку. Отказ площадки на submit — REJECTED без ретрая.
func (c *Coordinator) Submit(ctx context.Context, venue Backend, book models.PosSide, req models.OrderRequest) (*Order, error) {
	o := NewOrder(req, venue.Name(), book)

	h, err := venue.PlaceOrder(ctx, req)
	if err != nil {
		_ = o.Complete(models.OrderResult{Status: models.OrderRejected, Reason: err.Error()})
		c.failed(o)
		return o, fmt.Errorf("%w: place %s %s on %s: %w", ErrExecutionRejected, req.Side, req.Symbol, venue.Name(), err)
	}
	if err := o.MarkSubmitted(h); err != nil {
		return o, err
	}
	logger.Debug("[ORDER] %s %s %.4f submitted to %s id=%s", req.Symbol, req.Side, req.Qty, venue.Name(), h.ID)
	return o, nil
}

// AwaitTerminal ждёт терминальный статус не дольше OrderTimeout.
// По таймауту (или остановке) снимает ордер на площадке и перечитывает финальный статус:
// если ордер успел исполниться, это обычный fill. Иначе таймаут — ErrExecutionTimeout.
func (c *Coordinator) AwaitTerminal(ctx context.Context, venue Backend, o *Order) (models.OrderResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.OrderTimeout)
	defer cancel()

	res, err := venue.MonitorOrder(waitCtx, o.Handle, c.cfg.PollInterval)
	if err != nil {
		if waitCtx.Err() == nil {
			return models.OrderResult{}, fmt.Errorf("monitor %s on %s: %w", o.Handle.ID, venue.Name(), err)
		}
		timedOut := ctx.Err() == nil

		final, ok := c.settle(ctx, venue, o)
		if !ok || final.Status != models.OrderFilled {
			if !ok {
				final = models.OrderResult{Status: models.OrderCanceled, Reason: "timeout"}
				if !timedOut {
					final.Reason = "shutdown"
				}
			}
			_ = o.Complete(final)
			c.failed(o)
			if timedOut {
				return o.Result, fmt.Errorf("%w: %s on %s after %s", ErrExecutionTimeout, o.Handle.ID, venue.Name(), c.cfg.OrderTimeout)
			}
			return o.Result, fmt.Errorf("monitor %s on %s: %w", o.Handle.ID, venue.Name(), err)
		}
		logger.Warn("[ORDER] %s filled on %s while being canceled", o.Handle.ID, venue.Name())
		res = final
	}

	if err := o.Complete(res); err != nil {
		return res, err
	}
	metrics.OrderLatency.WithLabelValues(o.Venue).Observe(o.DoneAt.Sub(o.SubmittedAt).Seconds())

	if res.Status != models.OrderFilled {
		c.failed(o)
		return res, fmt.Errorf("%w: %s %s on %s: %s %s", ErrExecutionRejected, o.Request.Side, o.Request.Symbol, o.Venue, res.Status, res.Reason)
	}
	metrics.Orders.WithLabelValues(o.Venue, string(o.Request.Side), string(res.Status)).Inc()
	return res, nil
}

// settle снимает зависший ордер и ждёт его финальный статус. Контекст отвязан от родителя,
// чтобы отмена доходила до площадки и при остановке бота.
func (c *Coordinator) settle(ctx context.Context, venue Backend, o *Order) (models.OrderResult, bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CancelTimeout)
	defer cancel()

	if err := venue.CancelOrder(cctx, o.Handle); err != nil {
		logger.Warn("[ORDER] cancel %s on %s failed: %v", o.Handle.ID, venue.Name(), err)
	}
	res, err := venue.MonitorOrder(cctx, o.Handle, c.cfg.PollInterval)
	if err != nil {
		logger.Warn("[ORDER] final status of %s on %s unknown: %v", o.Handle.ID, venue.Name(), err)
		return models.OrderResult{}, false
	}
	return res, true
}

// failed — ордер не исполнился: лог, метрика, алерт. Леджер не трогаем, ретраев нет.
func (c *Coordinator) failed(o *Order) {
	metrics.Orders.WithLabelValues(o.Venue, string(o.Request.Side), string(o.Status)).Inc()
	logger.Error("[ORDER] %s %s %.4f on %s -> %s (%s)",
		o.Request.Symbol, o.Request.Side, o.Request.Qty, o.Venue, o.Status, o.Result.Reason)
	c.alertf("❗️ Ордер %s %s %.4f на %s: %s %s",
		o.Request.Side, o.Request.Symbol, o.Request.Qty, o.Venue, o.Status, o.Result.Reason)
}

func (c *Coordinator) alertf(format string, args ...any) {
	if c.alert == nil {
		return
	}
	c.alert.Sendf(format, args...)
}
