package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"breakbot/internal/collector"
	"breakbot/internal/config"
	"breakbot/internal/gateway/bithumb"
	"breakbot/internal/gateway/notifier"
	"breakbot/internal/logger"
	"breakbot/internal/market"
	"breakbot/internal/portfolio"
	"breakbot/internal/scheduler"
	"breakbot/internal/store"
	"breakbot/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// Exchange is the Bithumb surface the live loop depends on.
type Exchange interface {
	FetchCandles(ctx context.Context, orderCurrency, paymentCurrency, interval string, count int) ([]market.Candle, error)
	Ticker(ctx context.Context, orderCurrency, paymentCurrency string) (float64, error)
	GetBalance(ctx context.Context, orderCurrency string) (bithumb.Balance, error)
	MarketBuy(ctx context.Context, orderCurrency, paymentCurrency string, units float64) (bithumb.OrderResult, error)
	MarketSell(ctx context.Context, orderCurrency, paymentCurrency string, units float64) (bithumb.OrderResult, error)
	GetOrderDetail(ctx context.Context, orderID, orderCurrency, paymentCurrency string) (bithumb.OrderDetail, error)
}

var _ Exchange = (*bithumb.Client)(nil)

// Engine drives live trading: a bar-close evaluation scheduled on interval
// boundaries, plus a price poller that fires armed intraday entries. All
// evaluations are serialized through evalMu; the command listener only flips
// the running flag and reads status.
type Engine struct {
	cfg      *config.Config
	variant  strategy.Variant
	exchange Exchange
	coll     *collector.Collector
	repo     store.CandleRepository
	pf       *portfolio.Manager
	notify   notifier.TextNotifier

	interval      time.Duration
	pollInterval  time.Duration
	fillPollDelay time.Duration

	// evalMu：同一时刻只允许一次K线评估。
	evalMu sync.Mutex

	mu      sync.RWMutex
	running bool
	watch   *strategy.Watch
	status  Status

	// 同类错误通知限频，避免连续失败刷屏。
	errMu         sync.Mutex
	lastErrNotify map[string]time.Time
}

func NewEngine(cfg *config.Config, v strategy.Variant, ex Exchange, coll *collector.Collector, repo store.CandleRepository, pf *portfolio.Manager, notify notifier.TextNotifier) *Engine {
	if notify == nil {
		notify = notifier.Noop{}
	}
	interval := cfg.Trading.IntervalDuration()
	return &Engine{
		cfg:           cfg,
		variant:       v,
		exchange:      ex,
		coll:          coll,
		repo:          repo,
		pf:            pf,
		notify:        notify,
		interval:      interval,
		pollInterval:  time.Minute,
		fillPollDelay: 2 * time.Second,
		running:       true,
		lastErrNotify: map[string]time.Time{},
	}
}

func (e *Engine) symbol() string {
	return e.cfg.Trading.OrderCurrency + "_" + e.cfg.Trading.PaymentCurrency
}

// Run blocks until ctx is cancelled. Pending timers die with the context.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.pf.Restore(ctx); err != nil {
		return err
	}
	if err := e.reconcileOnStart(ctx); err != nil {
		logger.Warnf("live: startup reconcile skipped: %v", err)
	}

	logger.Infof("live: starting %s interval=%s %s", e.symbol(), e.interval, e.variant)
	e.sendText(fmt.Sprintf("🚀 breakbot live started: %s %s", e.symbol(), e.cfg.Trading.Interval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched := scheduler.NewAligned(gctx, e.interval, scheduler.DefaultCloseGrace)
		sched.Start(func(closed time.Time) { e.onBarClose(gctx, closed) })
		return nil
	})
	g.Go(func() error {
		e.watchLoop(gctx)
		return nil
	})

	err := g.Wait()
	e.sendText("⏹ breakbot live stopped")
	return err
}

// reconcileOnStart adopts an exchange balance that has no tracked position
// behind it. Runs once, before the first evaluation.
func (e *Engine) reconcileOnStart(ctx context.Context) error {
	bal, err := e.exchange.GetBalance(ctx, e.cfg.Trading.OrderCurrency)
	if err != nil {
		return err
	}
	e.pf.UpdateBalance(bal.AvailableKRW, bal.AvailableCoin)
	if e.pf.HasPosition() || bal.AvailableCoin < e.cfg.Trading.MinOrderUnits {
		return nil
	}
	price, err := e.exchange.Ticker(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency)
	if err != nil {
		return err
	}
	latest, err := e.repo.LatestCandle(ctx, e.symbol(), e.cfg.Trading.Interval)
	if err != nil || latest == nil {
		return err
	}
	return e.pf.Reconcile(ctx, bal.AvailableCoin, price, latest.OpenTime)
}

// onBarClose is the single scheduled evaluation per closed bar.
func (e *Engine) onBarClose(ctx context.Context, closed time.Time) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	if !e.IsRunning() {
		logger.Infof("live: paused, skipping bar close %s", closed.Format(time.RFC3339))
		return
	}
	logger.Infof("live: bar close %s", closed.Format(time.RFC3339))

	degraded := false
	if _, err := e.coll.Update(ctx); err != nil {
		// bounded retries exhausted: fall back to the last known bars,
		// exit decisions only
		degraded = true
		logger.Errorf("live: candle update failed, degraded evaluation: %v", err)
		e.notifyError("candle_update", "⚠️ candle update failed, evaluating exit-only from last known data")
	}
	if _, err := e.coll.Prune(ctx, e.cfg.Storage.RetentionDays); err != nil {
		logger.Warnf("live: retention prune failed: %v", err)
	}

	candles, err := e.repo.LoadCandles(ctx, e.symbol(), e.cfg.Trading.Interval, 0, 0, 0)
	if err != nil {
		logger.Errorf("live: load candles failed: %v", err)
		return
	}
	if n := e.variant.TrailingWindow + 1; len(candles) > n+64 {
		candles = candles[len(candles)-n-64:]
	}
	if len(candles) < e.variant.TrailingWindow+1 {
		logger.Warnf("live: only %d candles stored, waiting for more data", len(candles))
		return
	}

	bal, err := e.exchange.GetBalance(ctx, e.cfg.Trading.OrderCurrency)
	if err != nil {
		logger.Errorf("live: balance refresh failed: %v", err)
	} else {
		e.pf.UpdateBalance(bal.AvailableKRW, bal.AvailableCoin)
	}

	if e.pf.HasPosition() {
		e.evaluateExit(ctx, candles, degraded)
	} else if !degraded {
		e.settleWatch(ctx, candles)
		if !e.pf.HasPosition() {
			e.armWatch(candles)
		}
	}
	e.refreshStatus(ctx, candles, closed)
}

func (e *Engine) evaluateExit(ctx context.Context, candles []market.Candle, degraded bool) {
	pos, ok := e.pf.Snapshot()
	if !ok {
		return
	}
	sig := e.variant.EvaluateExit(candles, &strategy.Position{
		EntryPrice:   pos.EntryPrice,
		Amount:       pos.Amount,
		EntryBarOpen: pos.EntryBarOpen,
	})
	if !sig.ShouldAct {
		logger.Infof("live: holding position, reasons=%v", sig.Reasons)
		return
	}
	price := sig.Price
	if degraded {
		// last known bars may be stale; execute against a fresh price read
		if fresh, err := e.exchange.Ticker(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency); err == nil && fresh > 0 {
			price = fresh
		}
	}
	e.executeSell(ctx, pos, price)
}

func (e *Engine) executeSell(ctx context.Context, pos portfolio.Position, price float64) {
	logger.Infof("live: 卖出 %.8f @ %.2f", pos.Amount, price)
	order, err := e.exchange.MarketSell(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency, pos.Amount)
	if err != nil {
		logger.Errorf("live: market sell failed: %v", err)
		e.notifyError("sell", fmt.Sprintf("❌ sell failed: %v", err))
		return
	}
	if detail, ok := e.pollFill(ctx, order.OrderID); ok && detail.AvgPrice > 0 {
		price = detail.AvgPrice
	}
	rec, err := e.pf.ClosePosition(ctx, price, false)
	if err != nil {
		logger.Errorf("live: close position bookkeeping failed: %v", err)
		return
	}
	e.sendMessage(notifier.StructuredMessage{
		Icon:  "📤",
		Title: "平仓 " + e.symbol(),
		Sections: []notifier.MessageSection{{
			Lines: []string{
				fmt.Sprintf("数量 %.8f", rec.Amount),
				fmt.Sprintf("入场 %.2f / 出场 %.2f", rec.EntryPrice, rec.ExitPrice),
				fmt.Sprintf("盈亏 %.0f (%.2f%%)", rec.Profit, rec.ProfitPercent),
				fmt.Sprintf("持仓 %s", rec.Duration.Truncate(time.Minute)),
			},
		}},
		Timestamp: time.Now().UTC(),
	})
}

// settleWatch resolves the previous watch against the bar that just closed:
// if that bar's high reached the line the ticker poller missed the move, so
// the entry still fills at exactly the line price; otherwise the watch
// expires.
func (e *Engine) settleWatch(ctx context.Context, candles []market.Candle) {
	e.mu.RLock()
	watch := e.watch
	e.mu.RUnlock()
	if watch == nil || len(candles) == 0 {
		return
	}
	last := candles[len(candles)-1]
	if last.OpenTime <= watch.BarOpenTime {
		return
	}
	if last.OpenTime == watch.BarOpenTime+e.interval.Milliseconds() && last.High >= watch.Line {
		logger.Infof("live: watch line %.2f reached during the closed bar, filling late", watch.Line)
		e.fireEntry(ctx, *watch)
		return
	}
	logger.Infof("live: watch expired without entry (line=%.2f high=%.2f)", watch.Line, last.High)
	e.mu.Lock()
	if e.watch == watch {
		e.watch = nil
	}
	e.mu.Unlock()
}

// armWatch computes the intraday breakout line from the just-closed bar.
func (e *Engine) armWatch(candles []market.Candle) {
	watch := e.variant.EvaluateWatch(candles)
	e.mu.Lock()
	if watch.Armed {
		e.watch = &watch
	} else {
		e.watch = nil
	}
	e.mu.Unlock()
	if watch.Armed {
		logger.Infof("live: watch armed line=%.2f avg=%.2f", watch.Line, watch.TrailingAverage)
	} else {
		logger.Infof("live: no watch, reasons=%v", watch.Reasons)
	}
}

// watchLoop polls the ticker while a watch is armed and fires the entry the
// moment the price reaches the line. A watch expires when a newer bar closes.
func (e *Engine) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.IsRunning() || e.pf.HasPosition() {
			continue
		}
		e.mu.RLock()
		watch := e.watch
		e.mu.RUnlock()
		if watch == nil {
			continue
		}
		if expired := time.Since(time.UnixMilli(watch.BarOpenTime)) > 2*e.interval; expired {
			e.mu.Lock()
			e.watch = nil
			e.mu.Unlock()
			continue
		}
		price, err := e.exchange.Ticker(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency)
		if err != nil {
			logger.Warnf("live: ticker poll failed: %v", err)
			continue
		}
		if price < watch.Line {
			continue
		}
		e.evalMu.Lock()
		e.fireEntry(ctx, *watch)
		e.evalMu.Unlock()
	}
}

// fireEntry buys at the armed line. Balance is refreshed right before sizing
// and the reported fill is the source of truth for the position.
func (e *Engine) fireEntry(ctx context.Context, watch strategy.Watch) {
	if e.pf.HasPosition() {
		return
	}
	bal, err := e.exchange.GetBalance(ctx, e.cfg.Trading.OrderCurrency)
	if err != nil {
		logger.Errorf("live: balance read before entry failed: %v", err)
		return
	}
	e.pf.UpdateBalance(bal.AvailableKRW, bal.AvailableCoin)

	amount, fee, err := e.pf.CalculateEntrySize(watch.Line, e.cfg.Trading.CapitalFraction)
	if err != nil {
		logger.Warnf("live: entry sizing rejected: %v", err)
		return
	}
	logger.Infof("live: 突破买入 line=%.2f amount=%.8f", watch.Line, amount)
	order, err := e.exchange.MarketBuy(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency, amount)
	if err != nil {
		logger.Errorf("live: market buy failed: %v", err)
		e.notifyError("buy", fmt.Sprintf("❌ buy failed: %v", err))
		return
	}

	entryPrice, entryAmount := watch.Line, amount
	if detail, ok := e.pollFill(ctx, order.OrderID); ok && detail.FilledUnits > 0 {
		entryAmount = detail.FilledUnits
		if detail.AvgPrice > 0 {
			entryPrice = detail.AvgPrice
		}
		if detail.FeeTotal > 0 {
			fee = detail.FeeTotal
		}
	}
	entryBar := watch.BarOpenTime + e.interval.Milliseconds()
	if err := e.pf.OpenPosition(ctx, entryAmount, entryPrice, fee, entryBar); err != nil {
		logger.Errorf("live: open position bookkeeping failed: %v", err)
		e.sendText(fmt.Sprintf("❌ position bookkeeping failed: %v", err))
		return
	}
	e.mu.Lock()
	e.watch = nil
	e.mu.Unlock()

	e.sendMessage(notifier.StructuredMessage{
		Icon:  "📥",
		Title: "开仓 " + e.symbol(),
		Sections: []notifier.MessageSection{{
			Lines: []string{
				fmt.Sprintf("数量 %.8f", entryAmount),
				fmt.Sprintf("价格 %.2f (突破线 %.2f)", entryPrice, watch.Line),
				fmt.Sprintf("手续费 %.0f", fee),
			},
		}},
		Footer:    "order_id=" + order.OrderID,
		Timestamp: time.Now().UTC(),
	})
}

// pollFill reads order fills with a short bounded poll.
func (e *Engine) pollFill(ctx context.Context, orderID string) (bithumb.OrderDetail, bool) {
	if orderID == "" {
		return bithumb.OrderDetail{}, false
	}
	for attempt := 0; attempt < 3; attempt++ {
		detail, err := e.exchange.GetOrderDetail(ctx, orderID, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency)
		if err == nil && detail.FilledUnits > 0 {
			return detail, true
		}
		if err != nil {
			logger.Warnf("live: order detail poll failed: %v", err)
		}
		timer := time.NewTimer(e.fillPollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return bithumb.OrderDetail{}, false
		case <-timer.C:
		}
	}
	logger.Warnf("live: order %s fills unavailable, falling back to computed estimate", orderID)
	return bithumb.OrderDetail{}, false
}

// Pause stops new evaluations; the open position, if any, is untouched.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	logger.Infof("live: paused")
}

func (e *Engine) Resume() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	logger.Infof("live: resumed")
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// notifyError sends at most one notification per key per ten minutes.
func (e *Engine) notifyError(key, text string) {
	e.errMu.Lock()
	last, ok := e.lastErrNotify[key]
	if ok && time.Since(last) < 10*time.Minute {
		e.errMu.Unlock()
		return
	}
	e.lastErrNotify[key] = time.Now()
	e.errMu.Unlock()
	e.sendText(text)
}

func (e *Engine) sendText(text string) {
	if err := e.notify.SendText(text); err != nil {
		logger.Warnf("live: notify failed: %v", err)
	}
}

func (e *Engine) sendMessage(m notifier.StructuredMessage) {
	e.sendText(m.RenderMarkdown())
}
