package backtest

import (
	"testing"
	"time"

	"breakbot/internal/market"
	"breakbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs = int64(3_600_000)

func bar(i int, o, h, l, c, v float64) market.Candle {
	return market.Candle{
		OpenTime: 1_700_000_000_000 + int64(i)*hourMs,
		Open:     o, High: h, Low: l, Close: c, Volume: v,
	}
}

// quiet bars, then bar 6 arms a watch at 105.5 and bar 7's high fills it.
func entryBars() []market.Candle {
	bars := make([]market.Candle, 0, 10)
	for i := 0; i < 6; i++ {
		bars = append(bars, bar(i, 100, 101, 99, 100, 100))
	}
	bars = append(bars, bar(6, 100, 104, 99, 103, 200)) // line = 103 + 5*0.5
	bars = append(bars, bar(7, 104, 107, 103, 106, 150))
	return bars
}

func roundTripBars() []market.Candle {
	bars := entryBars()
	bars = append(bars, bar(8, 106, 106, 60, 61, 100)) // collapse breaks the hold
	bars = append(bars, bar(9, 61, 62, 60, 61, 90))
	return bars
}

func holdToEndBars() []market.Candle {
	bars := entryBars()
	bars = append(bars, bar(8, 106, 110, 105, 109, 160))
	bars = append(bars, bar(9, 109, 112, 108, 111, 170))
	return bars
}

func newTestEngine() *Engine {
	return NewEngine(strategy.DefaultVariant(), 1_000_000, 0.0025)
}

func TestRun_IntradayFillAtArmedLine(t *testing.T) {
	res, err := newTestEngine().Run(roundTripBars())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, 105.5, tr.EntryPrice)
	assert.Equal(t, 61.0, tr.ExitPrice)
	assert.False(t, tr.ForcedClose)
	assert.Less(t, tr.Profit, 0.0)
	// entry is dated to the bar whose high reached the line
	assert.Equal(t, market.Candle{OpenTime: 1_700_000_000_000 + 7*hourMs}.OpenAt(), tr.EntryTime)

	// capital reflects the round trip: buy fee on the budget, sell fee on proceeds
	buyFee := 1_000_000 * 0.0025
	amount := (1_000_000 - buyFee) / 105.5
	gross := amount * 61.0
	expected := gross - gross*0.0025
	assert.InDelta(t, expected, res.FinalCapital, 1e-6)
	assert.Equal(t, []float64{res.FinalCapital}, res.EquityCurve)
}

func TestRun_ForcedLiquidationAtSeriesEnd(t *testing.T) {
	res, err := newTestEngine().Run(holdToEndBars())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.True(t, tr.ForcedClose)
	assert.Equal(t, 111.0, tr.ExitPrice)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)

	buyFee := 1_000_000 * 0.0025
	amount := (1_000_000 - buyFee) / 105.5
	gross := amount * 111.0
	assert.InDelta(t, gross-gross*0.0025, res.FinalCapital, 1e-6)
}

func TestRun_Deterministic(t *testing.T) {
	bars := roundTripBars()
	a, err := newTestEngine().Run(bars)
	require.NoError(t, err)
	b, err := newTestEngine().Run(bars)
	require.NoError(t, err)

	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.ComputeMetrics(time.Hour), b.ComputeMetrics(time.Hour))
}

func TestRun_TooFewBarsProducesNoTrades(t *testing.T) {
	res, err := newTestEngine().Run(entryBars()[:3])
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1_000_000.0, res.FinalCapital)
}

func TestRun_RejectsMalformedBars(t *testing.T) {
	bars := roundTripBars()
	bars[4].Low = bars[4].High + 1
	_, err := newTestEngine().Run(bars)
	assert.ErrorIs(t, err, market.ErrInvalidCandle)

	bars = roundTripBars()
	bars[2], bars[3] = bars[3], bars[2]
	_, err = newTestEngine().Run(bars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sorted")
}

func TestDrawdownNeverDecreases(t *testing.T) {
	res := newResult(1000)
	now := time.Now()
	equities := []float64{1100, 900, 1200, 800, 1500, 1400}

	maxSeen := 0.0
	prev := 1000.0
	for _, eq := range equities {
		res.addTrade(Trade{Profit: eq - prev, EntryTime: now, ExitTime: now}, eq)
		assert.GreaterOrEqual(t, res.MaxDrawdown, maxSeen)
		maxSeen = res.MaxDrawdown
		prev = eq
	}
	// worst point: 800 against the 1200 peak
	assert.InDelta(t, (1200.0-800.0)/1200.0, res.MaxDrawdown, 1e-9)
}
