package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"zone_bot/internal/execution"
	"zone_bot/internal/helper"
	"zone_bot/internal/metrics"
	"zone_bot/internal/models"
	"zone_bot/internal/modules/config"
	health "zone_bot/internal/modules/health/service"
	mdservice "zone_bot/internal/modules/marketdata/service"
	"zone_bot/internal/notify"
	"zone_bot/internal/store"
	"zone_bot/internal/strategy"
	"zone_bot/pkg/logger"
)

type Feed interface {
	FetchInitialData(ctx context.Context, symbol, interval string, bars int) ([]models.PricePoint, error)
	FetchLatestPrice(ctx context.Context, symbol, interval string) (models.PricePoint, bool, error)
}

// Watchlist — опционально у фида: подбор тикеров на старте.
type Watchlist interface {
	TopMovers(ctx context.Context, priceLimit float64, limit int) ([]string, error)
}

type Executor interface {
	Open(ctx context.Context, symbol string, side models.Side, qty, price float64, ledger execution.LegRecorder) (*execution.Order, error)
	Liquidate(ctx context.Context, symbol string, long, short []models.PositionLeg, price float64) error
}

// instrument — запись инструмента. Окно и леджер трогает только его горутина,
// pending не даёт наложиться двум тикам (и двум ордерам) по одному символу.
type instrument struct {
	*strategy.Instrument
	pending atomic.Bool
}

// Runner — по горутине на инструмент, тик раз в PollInterval.
type Runner struct {
	cfg   *config.Config
	feed  Feed
	exec  Executor
	store store.Store
	n     notify.Notifier
	state *health.State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// ограничитель параллельного прогрева
	sem chan struct{}

	mu      sync.RWMutex
	status  map[string]notify.InstrumentStatus
	session float64
}

func New(
	cfg *config.Config,
	feed Feed,
	exec Executor,
	st store.Store,
	n notify.Notifier,
	state *health.State,
) *Runner {
	par := cfg.Runner.WarmupParallel
	if par <= 0 {
		par = 4
	}
	if n == nil {
		n = notify.NewStdout()
	}
	if state == nil {
		state = health.NewState()
	}
	return &Runner{
		cfg:    cfg,
		feed:   feed,
		exec:   exec,
		store:  st,
		n:      n,
		state:  state,
		sem:    make(chan struct{}, par),
		status: make(map[string]notify.InstrumentStatus),
	}
}

// Start не блокирует: подбор символов и циклы инструментов живут в горутинах
// до Stop или отмены parent.
func (r *Runner) Start(parent context.Context) {
	r.ctx, r.cancel = context.WithCancel(parent)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.launch(r.ctx)
	}()
}

func (r *Runner) launch(ctx context.Context) {
	symbols := r.symbols(ctx)
	if len(symbols) == 0 {
		logger.Error("[RUNNER] no symbols to trade")
		r.n.Send("❗️ Нет инструментов для торговли")
		return
	}

	logger.Info("[RUNNER] ▶️ start %d symbols: %v (poll %s, mode %s)",
		len(symbols), symbols, r.cfg.Runner.PollInterval, r.cfg.Strategy.Mode)
	r.n.Sendf("📈 Старт: %d инструментов (%s), RSI %d, цель %.2f%%, хедж %.2f%%, макс. ног %d",
		len(symbols), r.cfg.Strategy.Mode, r.cfg.Strategy.RSIPeriod,
		r.cfg.Strategy.ProfitTargetPct, r.cfg.Strategy.LossThresholdPct, r.cfg.Strategy.MaxTrades)

	r.state.SetInstruments(len(symbols))
	r.state.SetReady(true)

	for _, sym := range symbols {
		r.wg.Add(1)
		go r.loop(ctx, sym)
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.state.SetReady(false)
	logger.Info("[RUNNER] stopped, session %+.2f%%", r.SessionProfit())
}

func (r *Runner) symbols(ctx context.Context) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = helper.NormSymbol(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range r.cfg.Runner.Symbols {
		add(s)
	}

	// инструменты с открытыми ногами из прошлой сессии ведём до закрытия, даже если их нет в конфиге
	states, err := r.store.All(ctx)
	if err != nil {
		logger.Error("[STORE] load states: %v", err)
	}
	for _, st := range states {
		if len(st.Long)+len(st.Short) == 0 || seen[helper.NormSymbol(st.Symbol)] {
			continue
		}
		logger.Info("[STORE] %s has open legs (long %d, short %d), resuming", st.Symbol, len(st.Long), len(st.Short))
		add(st.Symbol)
	}

	if r.cfg.Runner.WatchlistMax > 0 {
		if wl, ok := r.feed.(Watchlist); ok {
			movers, err := wl.TopMovers(ctx, r.cfg.Runner.WatchlistPriceLimit, r.cfg.Runner.WatchlistMax)
			if err != nil {
				logger.Warn("[WATCHLIST] top movers: %v", err)
			}
			for _, s := range movers {
				add(s)
			}
		}
	}
	return out
}

func (r *Runner) loop(ctx context.Context, symbol string) {
	defer r.wg.Done()

	inst := r.load(ctx, symbol)
	t := time.NewTicker(r.cfg.Runner.PollInterval)
	defer t.Stop()

	for {
		r.safeTick(ctx, inst)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// load создаёт запись инструмента и поднимает сохранённое состояние.
func (r *Runner) load(ctx context.Context, symbol string) *instrument {
	inst := &instrument{Instrument: strategy.NewInstrument(symbol, r.cfg.Strategy)}

	st, ok, err := r.store.Get(ctx, symbol)
	switch {
	case err != nil:
		logger.Error("[STORE] load %s: %v", symbol, err)
	case ok:
		inst.Restore(*st)
		logger.Info("[STORE] %s restored: window %d, long %d, short %d",
			symbol, inst.Window.Len(), len(st.Long), len(st.Short))
	}

	r.publish(inst, 0)
	return inst
}

func (r *Runner) safeTick(ctx context.Context, inst *instrument) {
	defer func() {
		if p := recover(); p != nil {
			metrics.TickErrors.WithLabelValues(inst.Symbol, "panic").Inc()
			logger.Error("[RUNNER] %s tick panic: %v", inst.Symbol, p)
		}
	}()
	if err := r.Tick(ctx, inst); err != nil {
		logger.Warn("[RUNNER] %s tick: %v", inst.Symbol, err)
	}
}

// Tick — один проход по инструменту: прогрев при нехватке окна, последняя цена,
// решение, исполнение, сохранение.
func (r *Runner) Tick(ctx context.Context, inst *instrument) error {
	if !inst.pending.CompareAndSwap(false, true) {
		logger.Debug("[RUNNER] %s previous tick still running", inst.Symbol)
		return nil
	}
	defer inst.pending.Store(false)

	if inst.NeedsWarmup() {
		if err := r.warmup(ctx, inst); err != nil {
			metrics.TickErrors.WithLabelValues(inst.Symbol, "warmup").Inc()
			logger.Warn("[WARMUP] %v", err)
		}
	}

	pt, ok, err := r.feed.FetchLatestPrice(ctx, inst.Symbol, r.cfg.Runner.Interval)
	if err != nil {
		metrics.TickErrors.WithLabelValues(inst.Symbol, "feed").Inc()
		return fmt.Errorf("latest price: %w", err)
	}
	if !ok {
		metrics.TickErrors.WithLabelValues(inst.Symbol, "feed").Inc()
		return fmt.Errorf("latest price: %w", mdservice.ErrMarketDataUnavailable)
	}
	r.state.TouchTick(time.Now())

	out, err := inst.Step(pt)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if !out.Appended {
		logger.Debug("[TICK] %s %s already seen", inst.Symbol, pt.Time.Format(time.RFC3339))
		return nil
	}

	d := out.Decision
	metrics.Decisions.WithLabelValues(inst.Symbol, string(d.Kind), d.Reason).Inc()
	logger.Info("[SIGNAL] %s %s (%s) price=%.4f rsi=%.2f legs=%d",
		inst.Symbol, d.Kind, d.Reason, pt.Price, d.RSI, inst.Ledger.TradeCount())

	switch d.Kind {
	case models.DecisionCloseAll:
		r.closeAll(ctx, inst, out)
	case models.DecisionBuy, models.DecisionSell:
		r.open(ctx, inst, d)
	}

	r.publish(inst, pt.Price)
	r.persist(ctx, inst)
	return nil
}

func (r *Runner) open(ctx context.Context, inst *instrument, d models.Decision) {
	side := d.Side()
	entry := d.Reason == models.ReasonEntry || d.Reason == models.ReasonReversal

	if entry && r.cfg.Telegram.ConfirmEntries {
		prompt := fmt.Sprintf("🔔 [%s] %s @ %.4f\nRSI %.2f (%s). Войти?", inst.Symbol, side, d.Price, d.RSI, d.Reason)
		if !r.n.Confirm(ctx, prompt, r.cfg.Telegram.ConfirmTimeout) {
			logger.Info("[SIGNAL] %s %s skipped by operator", inst.Symbol, side)
			return
		}
	}

	o, err := r.exec.Open(ctx, inst.Symbol, side, r.cfg.Runner.OrderQty, d.Price, inst.Ledger)
	if err != nil {
		// алерт уже ушёл из координатора, леджер не тронут
		logger.Error("[ORDER] %s %s failed: %v", inst.Symbol, side, err)
		return
	}

	px, qty := o.Fill()
	r.n.Sendf("✅ [%s] %s %.4f @ %.4f (%s), ног: %d", inst.Symbol, side, qty, px, d.Reason, inst.Ledger.TradeCount())
}

// closeAll: леджер уже очищен шагом стратегии, здесь фиксируем результат сессии
// и ликвидируем снятые ноги на площадках.
func (r *Runner) closeAll(ctx context.Context, inst *instrument, out strategy.Outcome) {
	d := out.Decision

	r.mu.Lock()
	r.session += d.ProfitPct
	total := r.session
	r.mu.Unlock()

	metrics.SessionProfitPct.Set(total)
	r.state.SetSessionProfit(total)

	err := r.exec.Liquidate(ctx, inst.Symbol, out.ClosedLong, out.ClosedShort, d.Price)
	if err != nil {
		logger.Error("[ORDER] %s liquidation: %v", inst.Symbol, err)
	}

	logger.Info("[CLOSE] %s %s %+.2f%% (long %d, short %d), session %+.2f%%",
		inst.Symbol, d.Reason, d.ProfitPct, len(out.ClosedLong), len(out.ClosedShort), total)
	r.n.Sendf("💰 [%s] Закрыто всё (%s): %+.2f%%, сессия %+.2f%%", inst.Symbol, d.Reason, d.ProfitPct, total)
}

func (r *Runner) persist(ctx context.Context, inst *instrument) {
	st := inst.Snapshot()
	st.UpdatedAt = time.Now()
	if err := r.store.Save(ctx, &st); err != nil {
		metrics.TickErrors.WithLabelValues(inst.Symbol, "store").Inc()
		logger.Error("[STORE] save %s: %v", inst.Symbol, err)
	}
}

func (r *Runner) publish(inst *instrument, price float64) {
	long := inst.Ledger.Legs(models.PosLong)
	short := inst.Ledger.Legs(models.PosShort)
	rsi, hasRSI := inst.Ledger.PrevRSI()

	st := notify.InstrumentStatus{
		Symbol:    inst.Symbol,
		LastPrice: price,
		RSI:       rsi,
		HasRSI:    hasRSI,
		Long:      long,
		Short:     short,
	}
	if price > 0 {
		st.ProfitPct = inst.Ledger.PercentageProfit(price)
	}

	metrics.OpenLegs.WithLabelValues(inst.Symbol, string(models.PosLong)).Set(float64(len(long)))
	metrics.OpenLegs.WithLabelValues(inst.Symbol, string(models.PosShort)).Set(float64(len(short)))

	r.mu.Lock()
	if price == 0 {
		st.LastPrice = r.status[inst.Symbol].LastPrice
	}
	r.status[inst.Symbol] = st
	r.mu.Unlock()
}

// Status — снимок по всем инструментам (для /positions).
func (r *Runner) Status() []notify.InstrumentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]notify.InstrumentStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Runner) SessionProfit() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}
