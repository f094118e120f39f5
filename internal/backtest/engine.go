package backtest

import (
	"fmt"

	"breakbot/internal/logger"
	"breakbot/internal/market"
	"breakbot/internal/strategy"
)

// Engine replays the breakout rules over a fixed bar sequence. It keeps its
// own capital/position state and touches neither network nor wall clock, so
// identical input always produces an identical Result.
type Engine struct {
	Variant        strategy.Variant
	InitialCapital float64
	FeeRate        float64
}

func NewEngine(v strategy.Variant, initialCapital, feeRate float64) *Engine {
	return &Engine{Variant: v, InitialCapital: initialCapital, FeeRate: feeRate}
}

type openPosition struct {
	entryPrice   float64
	amount       float64
	committed    float64
	entryBarOpen int64
}

// Run replays candles oldest to newest. A malformed or unordered sequence is
// test-data corruption and fails immediately rather than being skipped over.
func (e *Engine) Run(candles []market.Candle) (*Result, error) {
	if e.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", e.InitialCapital)
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
	}
	if !market.SortedAscending(candles) {
		return nil, fmt.Errorf("candles are not sorted by open time")
	}

	logger.Infof("backtest: start bars=%d capital=%.0f fee=%.4f %s",
		len(candles), e.InitialCapital, e.FeeRate, e.Variant)

	res := newResult(e.InitialCapital)
	capital := e.InitialCapital
	var pos *openPosition
	minBars := e.Variant.TrailingWindow + 1

	for i := range candles {
		if i < minBars {
			continue
		}
		window := candles[:i+1]

		if pos == nil {
			watch := e.Variant.EvaluateWatch(window)
			if !watch.Armed || i+1 >= len(candles) {
				continue
			}
			next := candles[i+1]
			if next.High < watch.Line {
				continue
			}
			// price-priority intraday fill at exactly the armed line,
			// dated to the bar whose high reached it
			fee := capital * e.FeeRate
			pos = &openPosition{
				entryPrice:   watch.Line,
				amount:       (capital - fee) / watch.Line,
				committed:    capital,
				entryBarOpen: next.OpenTime,
			}
			logger.Debugf("backtest: 买入 line=%.2f amount=%.6f capital=%.0f", watch.Line, pos.amount, capital)
			continue
		}

		sig := e.Variant.EvaluateExit(window, &strategy.Position{
			EntryPrice:   pos.entryPrice,
			Amount:       pos.amount,
			EntryBarOpen: pos.entryBarOpen,
		})
		if !sig.ShouldAct {
			continue
		}
		capital = e.closeOut(res, pos, sig.Price, candles[i], false, capital)
		pos = nil
	}

	if pos != nil {
		last := candles[len(candles)-1]
		capital = e.closeOut(res, pos, last.Close, last, true, capital)
		pos = nil
	}

	res.FinalCapital = capital
	logger.Infof("backtest: done trades=%d final=%.0f maxDD=%.2f%%",
		res.TotalTrades, capital, res.MaxDrawdown*100)
	return res, nil
}

func (e *Engine) closeOut(res *Result, pos *openPosition, price float64, exitBar market.Candle, forced bool, capital float64) float64 {
	gross := pos.amount * price
	proceeds := gross - gross*e.FeeRate
	profit := proceeds - pos.committed

	entryTime := market.Candle{OpenTime: pos.entryBarOpen}.OpenAt()
	exitTime := exitBar.OpenAt()
	res.addTrade(Trade{
		EntryPrice:    pos.entryPrice,
		ExitPrice:     price,
		Amount:        pos.amount,
		Profit:        profit,
		ProfitPercent: profit / pos.committed * 100,
		EntryTime:     entryTime,
		ExitTime:      exitTime,
		Duration:      exitTime.Sub(entryTime),
		ForcedClose:   forced,
	}, proceeds)
	return proceeds
}
