package backtest

import (
	"time"
)

// Trade 是一次完整的开平仓记录。
type Trade struct {
	EntryPrice    float64       `json:"entry_price"`
	ExitPrice     float64       `json:"exit_price"`
	Amount        float64       `json:"amount"`
	Profit        float64       `json:"profit"`
	ProfitPercent float64       `json:"profit_percent"`
	EntryTime     time.Time     `json:"entry_time"`
	ExitTime      time.Time     `json:"exit_time"`
	Duration      time.Duration `json:"duration"`
	ForcedClose   bool          `json:"forced_close"`
}

// Result aggregates the replay: trade ledger, equity curve (one point per
// completed trade) and running drawdown bookkeeping.
type Result struct {
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	Trades         []Trade   `json:"trades"`
	EquityCurve    []float64 `json:"equity_curve"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalProfit   float64 `json:"total_profit"`
	TotalLoss     float64 `json:"total_loss"`
	MaxProfit     float64 `json:"max_profit"`
	MaxLoss       float64 `json:"max_loss"`
	// MaxDrawdown is a fraction of peak equity, not a percent.
	MaxDrawdown float64 `json:"max_drawdown"`

	peakEquity float64
}

func newResult(initialCapital float64) *Result {
	return &Result{
		InitialCapital: initialCapital,
		peakEquity:     initialCapital,
	}
}

// addTrade appends a completed trade and updates every aggregate counter.
// Forced liquidations go through the exact same path as normal exits.
func (r *Result) addTrade(t Trade, capitalAfter float64) {
	r.Trades = append(r.Trades, t)
	r.TotalTrades++
	if t.Profit > 0 {
		r.WinningTrades++
		r.TotalProfit += t.Profit
		if t.Profit > r.MaxProfit {
			r.MaxProfit = t.Profit
		}
	} else {
		r.LosingTrades++
		r.TotalLoss += t.Profit
		if t.Profit < r.MaxLoss {
			r.MaxLoss = t.Profit
		}
	}
	r.EquityCurve = append(r.EquityCurve, capitalAfter)

	// peak resets only on a new equity high; the recorded max never decreases
	if capitalAfter > r.peakEquity {
		r.peakEquity = capitalAfter
		return
	}
	if dd := (r.peakEquity - capitalAfter) / r.peakEquity; dd > r.MaxDrawdown {
		r.MaxDrawdown = dd
	}
}
