package live

import (
	"context"
	"fmt"
	"time"

	"breakbot/internal/gateway/notifier"
	"breakbot/internal/market"
)

// Status is a read-only snapshot of the live engine, served to Telegram
// commands and the HTTP endpoints.
type Status struct {
	Symbol       string  `json:"symbol"`
	Interval     string  `json:"interval"`
	Running      bool    `json:"running"`
	HasPosition  bool    `json:"has_position"`
	EntryPrice   float64 `json:"entry_price,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	CurrentPrice float64 `json:"current_price,omitempty"`
	PnL          float64 `json:"pnl,omitempty"`
	PnLPercent   float64 `json:"pnl_percent,omitempty"`
	WatchArmed   bool    `json:"watch_armed"`
	WatchLine    float64 `json:"watch_line,omitempty"`
	LastBarClose string  `json:"last_bar_close,omitempty"`
	OpenCount    int     `json:"open_count"`
}

// refreshStatus is called at the tail of every bar-close evaluation, while
// evalMu is held.
func (e *Engine) refreshStatus(ctx context.Context, candles []market.Candle, closed time.Time) {
	st := Status{
		Symbol:       e.symbol(),
		Interval:     e.cfg.Trading.Interval,
		Running:      e.IsRunning(),
		LastBarClose: closed.UTC().Format(time.RFC3339),
		OpenCount:    e.pf.OpenCount(),
	}
	price := 0.0
	if len(candles) > 0 {
		price = candles[len(candles)-1].Close
	}
	if fresh, err := e.exchange.Ticker(ctx, e.cfg.Trading.OrderCurrency, e.cfg.Trading.PaymentCurrency); err == nil && fresh > 0 {
		price = fresh
	}
	st.CurrentPrice = price

	if pos, ok := e.pf.Snapshot(); ok {
		st.HasPosition = true
		st.EntryPrice = pos.EntryPrice
		st.Amount = pos.Amount
		st.PnL, st.PnLPercent, _ = e.pf.UnrealizedPnL(price)
	}

	e.mu.Lock()
	if e.watch != nil {
		st.WatchArmed = true
		st.WatchLine = e.watch.Line
	}
	e.status = st
	e.mu.Unlock()
}

// Snapshot returns the last computed status.
func (e *Engine) Snapshot() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := e.status
	st.Running = e.running
	if st.Symbol == "" {
		st.Symbol = e.symbol()
		st.Interval = e.cfg.Trading.Interval
	}
	return st
}

// StatusText renders the snapshot for a Telegram reply.
func (e *Engine) StatusText() string {
	st := e.Snapshot()
	state := "▶️ 运行中"
	if !st.Running {
		state = "⏸ 已暂停"
	}
	out := fmt.Sprintf("%s %s %s\n", state, st.Symbol, st.Interval)
	if st.HasPosition {
		out += fmt.Sprintf("持仓 %.8f @ %.2f\n盈亏 %.0f (%.2f%%)\n", st.Amount, st.EntryPrice, st.PnL, st.PnLPercent)
	} else if st.WatchArmed {
		out += fmt.Sprintf("观察中，突破线 %.2f\n", st.WatchLine)
	} else {
		out += "空仓，无观察\n"
	}
	if st.CurrentPrice > 0 {
		out += fmt.Sprintf("现价 %.2f\n", st.CurrentPrice)
	}
	if st.LastBarClose != "" {
		out += "上次收盘 " + st.LastBarClose
	}
	return out
}

// BalanceText renders the cached balances for a Telegram reply.
func (e *Engine) BalanceText() string {
	cash, coin := e.pf.Balances()
	out := fmt.Sprintf("%s %.0f\n%s %.8f",
		e.cfg.Trading.PaymentCurrency, cash, e.cfg.Trading.OrderCurrency, coin)
	if st := e.Snapshot(); st.CurrentPrice > 0 {
		out += fmt.Sprintf("\n总值 %.0f", e.pf.TotalValue(st.CurrentPrice))
	}
	return out
}

// RegisterCommands binds the advisory command set. Handlers only flip the
// run/pause flag or answer read-only queries; they never touch the position.
func (e *Engine) RegisterCommands(l *notifier.CommandListener) {
	l.Register("/status", e.StatusText)
	l.Register("/balance", e.BalanceText)
	l.Register("/stop", func() string {
		e.Pause()
		return "已暂停，新的评估将被跳过；已持仓位不受影响"
	})
	l.Register("/start", func() string {
		e.Resume()
		return "已恢复"
	})
	l.Register("/help", l.HelpText)
}
