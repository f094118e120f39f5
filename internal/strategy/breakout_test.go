package strategy

import (
	"testing"

	"breakbot/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(openTime int64, o, h, l, c, v float64) market.Candle {
	return market.Candle{OpenTime: openTime, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// Six bars where the last one breaks out: prior range 10, ratio 0.5,
// current open 100, so the line sits at 105 and the high of 112 clears it.
func breakoutBars() []market.Candle {
	return []market.Candle{
		bar(1000, 100, 104, 98, 101, 500),
		bar(2000, 101, 105, 99, 102, 520),
		bar(3000, 102, 106, 100, 103, 510),
		bar(4000, 103, 107, 101, 102, 530),
		bar(5000, 102, 105, 95, 102, 540), // prior: range = 10
		bar(6000, 100, 112, 99, 108, 600), // current
	}
}

func TestEvaluateEntry_Breakout(t *testing.T) {
	v := DefaultVariant()
	sig := v.EvaluateEntry(breakoutBars())

	assert.Equal(t, 105.0, sig.BreakthroughPrice)
	assert.Equal(t, 102.0, sig.TrailingAverage)
	assert.True(t, sig.Conditions[CondBreakout])
	assert.True(t, sig.Conditions[CondAboveAverage])
	assert.True(t, sig.Conditions[CondVolumeIncrease])
	assert.True(t, sig.ShouldAct)
	assert.Empty(t, sig.Reasons)
}

func TestEvaluateEntry_InsufficientData(t *testing.T) {
	v := DefaultVariant()
	bars := breakoutBars()[:3]

	for i := 0; i <= len(bars); i++ {
		sig := v.EvaluateEntry(bars[:i])
		assert.False(t, sig.ShouldAct)
		require.Len(t, sig.Reasons, 1)
		assert.Equal(t, "data insufficient", sig.Reasons[0])
	}
}

func TestEvaluateEntry_FailedConditionsListed(t *testing.T) {
	v := DefaultVariant()
	bars := breakoutBars()
	// cap the high below the line and shrink volume
	bars[5].High = 104
	bars[5].Volume = 400

	sig := v.EvaluateEntry(bars)
	assert.False(t, sig.ShouldAct)
	assert.False(t, sig.Conditions[CondBreakout])
	assert.True(t, sig.Conditions[CondAboveAverage])
	assert.False(t, sig.Conditions[CondVolumeIncrease])
	require.Len(t, sig.Reasons, 2)
	assert.Equal(t, "breakout line not reached", sig.Reasons[0])
	assert.Equal(t, "volume not increasing", sig.Reasons[1])
}

// Raising the high above the line can only flip condition A false -> true.
func TestEvaluateEntry_TriggerMonotonic(t *testing.T) {
	v := DefaultVariant()
	bars := breakoutBars()

	prev := false
	for h := 100.0; h <= 115; h += 0.5 {
		bars[5].High = h
		got := v.EvaluateEntry(bars).Conditions[CondBreakout]
		if prev {
			assert.True(t, got, "high=%v flipped breakout back to false", h)
		}
		prev = got
	}
	assert.True(t, prev)
}

func TestEvaluateEntry_CloseReferenceVariant(t *testing.T) {
	v := DefaultVariant()
	v.Reference = ReferenceClose
	v.Trigger = TriggerClose

	bars := breakoutBars()
	sig := v.EvaluateEntry(bars)
	// line = close 108 + own range 13 * 0.5 = 114.5; close never exceeds it
	assert.Equal(t, 114.5, sig.BreakthroughPrice)
	assert.False(t, sig.Conditions[CondBreakout])
}

func TestEvaluateWatch_ArmsCloseReferencedLine(t *testing.T) {
	v := DefaultVariant()
	w := v.EvaluateWatch(breakoutBars())

	// line = close 108 + range 13 * 0.5 = 114.5
	assert.True(t, w.Armed)
	assert.Equal(t, 114.5, w.Line)
	assert.Equal(t, int64(6000), w.BarOpenTime)
}

func TestEvaluateWatch_VolumeDownDisarms(t *testing.T) {
	v := DefaultVariant()
	bars := breakoutBars()
	bars[5].Volume = 100

	w := v.EvaluateWatch(bars)
	assert.False(t, w.Armed)
	assert.Contains(t, w.Reasons, "volume not increasing")
}

func TestEvaluateExit_TrailingHoldThenSell(t *testing.T) {
	v := DefaultVariant()
	pos := &Position{EntryPrice: 105, Amount: 10, EntryBarOpen: 6000}

	bars := append(breakoutBars(), bar(7000, 108, 120, 107, 118, 700))
	sig := v.EvaluateExit(bars, pos)
	// line = 118 + 13*0.5 = 124.5 stays above the trailing average: hold
	assert.False(t, sig.ShouldAct)
	assert.Contains(t, sig.Reasons[0], "hold")

	// a collapsing bar drags the line under the average
	bars = append(bars, bar(8000, 118, 118.5, 80, 81, 800))
	sig = v.EvaluateExit(bars, pos)
	assert.True(t, sig.ShouldAct)
	assert.Equal(t, 81.0, sig.Price)
}

func TestEvaluateExit_NotDueOnEntryBar(t *testing.T) {
	v := DefaultVariant()
	pos := &Position{EntryPrice: 105, Amount: 10, EntryBarOpen: 6000}

	sig := v.EvaluateExit(breakoutBars(), pos)
	assert.False(t, sig.ShouldAct)
	assert.Equal(t, "entry bar not closed yet", sig.Reasons[0])
}

func TestEvaluateExit_NextOpenPolicy(t *testing.T) {
	v := DefaultVariant()
	v.Exit = ExitNextOpen
	pos := &Position{EntryPrice: 105, Amount: 10, EntryBarOpen: 6000}

	bars := append(breakoutBars(), bar(7000, 109, 111, 104, 106, 650))
	sig := v.EvaluateExit(bars, pos)
	assert.True(t, sig.ShouldAct)
	assert.Equal(t, 109.0, sig.Price)
}

func TestEvaluateExit_NoPosition(t *testing.T) {
	v := DefaultVariant()
	sig := v.EvaluateExit(breakoutBars(), nil)
	assert.False(t, sig.ShouldAct)
	assert.Equal(t, "no open position", sig.Reasons[0])
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(0.6, 7, "close", "close", "next_open")
	require.NoError(t, err)
	assert.Equal(t, 0.6, v.Ratio)
	assert.Equal(t, 7, v.TrailingWindow)
	assert.Equal(t, ReferenceClose, v.Reference)
	assert.Equal(t, TriggerClose, v.Trigger)
	assert.Equal(t, ExitNextOpen, v.Exit)

	_, err = ParseVariant(0.5, 5, "median", "high", "trailing")
	assert.Error(t, err)

	v, err = ParseVariant(0, 0, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultVariant(), v)
}
