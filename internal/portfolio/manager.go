package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"breakbot/internal/logger"
	"breakbot/internal/pkg/trading"
	"breakbot/internal/store"
	"breakbot/internal/store/model"
)

var (
	ErrPositionOpen        = errors.New("position already open")
	ErrNoPosition          = errors.New("no open position")
	ErrOrderTooSmall       = errors.New("order below exchange minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Position 是当前唯一持仓。
type Position struct {
	Symbol       string
	Amount       float64
	EntryPrice   float64
	EntryFee     float64
	EntryTime    time.Time
	EntryBarOpen int64
}

// TradeRecord captures one completed position lifecycle.
type TradeRecord struct {
	EntryPrice    float64
	ExitPrice     float64
	Amount        float64
	Profit        float64
	ProfitPercent float64
	EntryTime     time.Time
	ExitTime      time.Time
	Duration      time.Duration
	ForcedClose   bool
}

// Manager owns the single live position and cached exchange balances.
// States are just FLAT (pos == nil) and LONG; opening while LONG and
// closing while FLAT are caller bugs and fail loudly.
type Manager struct {
	symbol        string
	feeRate       float64
	minOrderUnits float64
	minOrderKRW   float64
	repo          store.PositionRepository
	nowFn         func() time.Time

	mu        sync.Mutex
	cash      float64
	coin      float64
	pos       *Position
	openCount int
}

func NewManager(symbol string, feeRate, minOrderUnits, minOrderKRW float64, repo store.PositionRepository) *Manager {
	return &Manager{
		symbol:        symbol,
		feeRate:       feeRate,
		minOrderUnits: minOrderUnits,
		minOrderKRW:   minOrderKRW,
		repo:          repo,
		nowFn:         time.Now,
	}
}

// Restore loads a persisted position after a process restart.
func (m *Manager) Restore(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	saved, err := m.repo.LoadPosition(ctx)
	if err != nil {
		return fmt.Errorf("restore position failed: %w", err)
	}
	if saved == nil {
		return nil
	}
	m.mu.Lock()
	m.pos = &Position{
		Symbol:       saved.Symbol,
		Amount:       saved.Quantity,
		EntryPrice:   saved.EntryPrice,
		EntryFee:     saved.EntryFee,
		EntryTime:    time.Unix(saved.EntryTime, 0).UTC(),
		EntryBarOpen: saved.EntryBarOpen,
	}
	m.mu.Unlock()
	logger.Infof("portfolio: 持仓恢复 amount=%.8f entry=%.2f entered=%s",
		saved.Quantity, saved.EntryPrice, time.Unix(saved.EntryTime, 0).UTC().Format(time.RFC3339))
	return nil
}

// UpdateBalance refreshes the cached balances from an exchange read.
// Call it immediately before sizing an order; a stale cache sizes wrong.
func (m *Manager) UpdateBalance(cash, coin float64) {
	m.mu.Lock()
	m.cash = cash
	m.coin = coin
	m.mu.Unlock()
	logger.Debugf("portfolio: balance cash=%.2f coin=%.6f", cash, coin)
}

// Balances returns the cached cash and coin balances.
func (m *Manager) Balances() (cash, coin float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash, m.coin
}

// CalculateEntrySize converts the cash balance into a buy quantity at price,
// spending capitalFraction of it with the taker fee embedded in the budget.
func (m *Manager) CalculateEntrySize(price, capitalFraction float64) (amount, fee float64, err error) {
	if price <= 0 {
		return 0, 0, fmt.Errorf("entry price must be positive, got %v", price)
	}
	m.mu.Lock()
	gross := m.cash * capitalFraction
	m.mu.Unlock()

	if gross < m.minOrderKRW {
		return 0, 0, fmt.Errorf("%w: available %.0f < min %.0f", ErrInsufficientBalance, gross, m.minOrderKRW)
	}
	amount, fee = trading.EntryAmount(gross, price, m.feeRate)
	if amount < m.minOrderUnits {
		return 0, 0, fmt.Errorf("%w: amount %.8f < min %.8f", ErrOrderTooSmall, amount, m.minOrderUnits)
	}
	if amount*price < m.minOrderKRW {
		return 0, 0, fmt.Errorf("%w: notional %.0f < min %.0f", ErrOrderTooSmall, amount*price, m.minOrderKRW)
	}
	return amount, fee, nil
}

// OpenPosition transitions FLAT -> LONG. The position is persisted before the
// in-memory state flips, so a crash right after cannot lose the record.
func (m *Manager) OpenPosition(ctx context.Context, amount, price, fee float64, barOpen int64) error {
	if amount <= 0 || price <= 0 {
		return fmt.Errorf("invalid open: amount=%v price=%v", amount, price)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos != nil {
		return fmt.Errorf("%w: entered %.8f @ %.2f", ErrPositionOpen, m.pos.Amount, m.pos.EntryPrice)
	}
	pos := &Position{
		Symbol:       m.symbol,
		Amount:       amount,
		EntryPrice:   price,
		EntryFee:     fee,
		EntryTime:    m.nowFn().UTC(),
		EntryBarOpen: barOpen,
	}
	if m.repo != nil {
		err := m.repo.SavePosition(ctx, &model.PositionModel{
			Symbol:       pos.Symbol,
			EntryPrice:   pos.EntryPrice,
			Quantity:     pos.Amount,
			EntryFee:     pos.EntryFee,
			EntryTime:    pos.EntryTime.Unix(),
			EntryBarOpen: pos.EntryBarOpen,
		})
		if err != nil {
			return fmt.Errorf("persist position failed: %w", err)
		}
	}
	m.pos = pos
	m.openCount++
	logger.Infof("portfolio: 开仓 #%d amount=%.8f entry=%.2f fee=%.2f", m.openCount, amount, price, fee)
	return nil
}

// ClosePosition transitions LONG -> FLAT and realizes P&L at exitPrice.
func (m *Manager) ClosePosition(ctx context.Context, exitPrice float64, forced bool) (TradeRecord, error) {
	if exitPrice <= 0 {
		return TradeRecord{}, fmt.Errorf("invalid exit price: %v", exitPrice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return TradeRecord{}, ErrNoPosition
	}
	now := m.nowFn().UTC()
	profit := (exitPrice - m.pos.EntryPrice) * m.pos.Amount
	rec := TradeRecord{
		EntryPrice:    m.pos.EntryPrice,
		ExitPrice:     exitPrice,
		Amount:        m.pos.Amount,
		Profit:        profit,
		ProfitPercent: profit / (m.pos.EntryPrice * m.pos.Amount) * 100,
		EntryTime:     m.pos.EntryTime,
		ExitTime:      now,
		Duration:      now.Sub(m.pos.EntryTime),
		ForcedClose:   forced,
	}
	if m.repo != nil {
		if err := m.repo.DeletePosition(ctx); err != nil {
			return TradeRecord{}, fmt.Errorf("delete persisted position failed: %w", err)
		}
	}
	m.pos = nil
	logger.Infof("portfolio: 平仓 profit=%.0f (%.2f%%) exit=%.2f forced=%v",
		rec.Profit, rec.ProfitPercent, exitPrice, forced)
	return rec, nil
}

// UnrealizedPnL is pure; zeros when flat.
func (m *Manager) UnrealizedPnL(currentPrice float64) (pnl, pnlPercent, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return 0, 0, 0
	}
	pnl = (currentPrice - m.pos.EntryPrice) * m.pos.Amount
	pnlPercent = pnl / (m.pos.EntryPrice * m.pos.Amount) * 100
	value = currentPrice * m.pos.Amount
	return pnl, pnlPercent, value
}

// TotalValue 返回现金加上按当前价折算的币值。
func (m *Manager) TotalValue(currentPrice float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash + m.coin*currentPrice
}

func (m *Manager) HasPosition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos != nil
}

// Snapshot returns a copy of the open position, if any.
func (m *Manager) Snapshot() (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return Position{}, false
	}
	return *m.pos, true
}

// OpenCount 返回本进程内开仓次数。
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

// Reconcile compares the exchange coin balance against the tracked position
// on startup. A nonzero balance with no record means an earlier run lost its
// position; it is adopted at the given reference price so the exit path can
// manage it. This is a logged recovery step, never a silent mutation.
func (m *Manager) Reconcile(ctx context.Context, coinBalance, referencePrice float64, barOpen int64) error {
	m.mu.Lock()
	pos := m.pos
	m.mu.Unlock()

	if pos != nil {
		if coinBalance+1e-8 < pos.Amount {
			logger.Warnf("portfolio: reconcile mismatch, tracked amount=%.8f but exchange holds %.8f",
				pos.Amount, coinBalance)
		}
		return nil
	}
	if coinBalance < m.minOrderUnits || referencePrice <= 0 {
		return nil
	}
	logger.Warnf("portfolio: 发现未记录持仓 %.8f，按参考价 %.2f 接管", coinBalance, referencePrice)
	return m.OpenPosition(ctx, trading.TruncateAmount(coinBalance), referencePrice, 0, barOpen)
}
