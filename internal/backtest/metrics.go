package backtest

import (
	"math"
	"time"

	"breakbot/internal/scheduler"
)

// Metrics 是在完整回放结束后一次性计算的绩效指标。
// 空账本时所有字段保持数值为零，绝不出现 NaN。
type Metrics struct {
	TotalReturn        float64 `json:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent"`
	AnnualizedReturn   float64 `json:"annualized_return"`
	WinRate            float64 `json:"win_rate"`
	// ProfitFactor is +Inf when there are wins and no losses; a sentinel,
	// not an error.
	ProfitFactor       float64 `json:"profit_factor"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	AvgProfit          float64 `json:"avg_profit"`
	AvgLoss            float64 `json:"avg_loss"`
	MaxProfit          float64 `json:"max_profit"`
	MaxLoss            float64 `json:"max_loss"`
}

// ComputeMetrics derives performance statistics from the finished replay.
// interval is the bar period, used to annualize the Sharpe ratio.
func (r *Result) ComputeMetrics(interval time.Duration) Metrics {
	m := Metrics{
		TotalTrades:        r.TotalTrades,
		WinningTrades:      r.WinningTrades,
		LosingTrades:       r.LosingTrades,
		MaxDrawdown:        r.MaxDrawdown,
		MaxDrawdownPercent: r.MaxDrawdown * 100,
		MaxProfit:          r.MaxProfit,
		MaxLoss:            r.MaxLoss,
	}
	if len(r.Trades) == 0 {
		return m
	}

	m.TotalReturn = r.FinalCapital - r.InitialCapital
	m.TotalReturnPercent = m.TotalReturn / r.InitialCapital * 100

	days := r.Trades[len(r.Trades)-1].ExitTime.Sub(r.Trades[0].EntryTime).Hours() / 24
	if days > 0 {
		m.AnnualizedReturn = (math.Pow(r.FinalCapital/r.InitialCapital, 365/days) - 1) * 100
	}

	m.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100

	if r.WinningTrades > 0 {
		m.AvgProfit = r.TotalProfit / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		m.AvgLoss = math.Abs(r.TotalLoss / float64(r.LosingTrades))
	}
	switch {
	case r.TotalLoss != 0:
		m.ProfitFactor = r.TotalProfit / math.Abs(r.TotalLoss)
	case r.TotalProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.SharpeRatio = sharpe(r.EquityCurve, scheduler.BarsPerYear(interval))
	return m
}

// sharpe annualizes the mean/stdev of per-trade equity step returns.
func sharpe(equity []float64, periodsPerYear float64) float64 {
	if len(equity) < 2 || periodsPerYear <= 0 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			return 0
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
