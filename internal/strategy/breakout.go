package strategy

import (
	"breakbot/internal/market"
)

// Condition names, in the fixed evaluation order.
const (
	CondBreakout       = "breakout"
	CondAboveAverage   = "above_avg"
	CondVolumeIncrease = "volume_increase"
)

const (
	reasonInsufficientData = "data insufficient"
	reasonNoBreakout       = "breakout line not reached"
	reasonBelowAverage     = "breakout line below trailing average"
	reasonVolumeDown       = "volume not increasing"
	reasonNoPosition       = "no open position"
	reasonEntryBarOpen     = "entry bar not closed yet"
	reasonConditionHolds   = "hold: breakout line above trailing average"
)

// Signal 是一次评估的完整结果，每次评估都会新建，不复用。
type Signal struct {
	ShouldAct         bool
	BreakthroughPrice float64
	TrailingAverage   float64
	// Price is the execution price an exit signal proposes. Zero for entries.
	Price      float64
	Conditions map[string]bool
	Reasons    []string
}

// Watch is an armed intraday breakout line, computed from a just-closed bar
// and monitored while the next bar forms.
type Watch struct {
	Armed           bool
	Line            float64
	TrailingAverage float64
	// BarOpenTime identifies the closed bar the watch was derived from.
	BarOpenTime int64
	Conditions  map[string]bool
	Reasons     []string
}

// Position is the minimal view the evaluators need of an open position.
type Position struct {
	EntryPrice   float64
	Amount       float64
	EntryBarOpen int64
}

// EvaluateEntry checks the three breakout conditions against the newest bar
// in the window. Pure: same bars in, same signal out.
//
// A: trigger field of the newest bar is above the breakout line.
// B: the breakout line is above the trailing close average.
// C: the prior bar's volume is below the newest bar's volume.
func (v Variant) EvaluateEntry(bars []market.Candle) Signal {
	if len(bars) < v.TrailingWindow+1 {
		return Signal{
			Conditions: map[string]bool{},
			Reasons:    []string{reasonInsufficientData},
		}
	}
	current := bars[len(bars)-1]
	prior := bars[len(bars)-2]
	window := bars[len(bars)-1-v.TrailingWindow : len(bars)-1]

	line := v.breakoutLine(prior, current)
	avg := market.MeanClose(window)

	conds := map[string]bool{}
	var reasons []string

	trigger := current.High
	if v.Trigger == TriggerClose {
		trigger = current.Close
	}
	conds[CondBreakout] = trigger > line
	if !conds[CondBreakout] {
		reasons = append(reasons, reasonNoBreakout)
	}
	conds[CondAboveAverage] = line > avg
	if !conds[CondAboveAverage] {
		reasons = append(reasons, reasonBelowAverage)
	}
	conds[CondVolumeIncrease] = prior.Volume < current.Volume
	if !conds[CondVolumeIncrease] {
		reasons = append(reasons, reasonVolumeDown)
	}

	return Signal{
		ShouldAct:         conds[CondBreakout] && conds[CondAboveAverage] && conds[CondVolumeIncrease],
		BreakthroughPrice: line,
		TrailingAverage:   avg,
		Conditions:        conds,
		Reasons:           reasons,
	}
}

// EvaluateWatch runs once per bar close: conditions B and C are checked
// against the just-closed bar, and on success a close-referenced breakout
// line is armed for the next bar. The caller fires an entry at exactly
// Line the moment the forming bar's high reaches it; if the next bar
// closes below the line the watch simply expires.
func (v Variant) EvaluateWatch(bars []market.Candle) Watch {
	if len(bars) < v.TrailingWindow+1 {
		return Watch{
			Conditions: map[string]bool{},
			Reasons:    []string{reasonInsufficientData},
		}
	}
	closed := bars[len(bars)-1]
	prior := bars[len(bars)-2]
	window := bars[len(bars)-1-v.TrailingWindow : len(bars)-1]

	// The next bar's open is unknown when the watch is armed, so the line
	// is always referenced off the just-closed bar's close and range.
	line := closed.Close + closed.Range()*v.Ratio
	avg := market.MeanClose(window)

	conds := map[string]bool{}
	var reasons []string
	conds[CondAboveAverage] = line > avg
	if !conds[CondAboveAverage] {
		reasons = append(reasons, reasonBelowAverage)
	}
	conds[CondVolumeIncrease] = prior.Volume < closed.Volume
	if !conds[CondVolumeIncrease] {
		reasons = append(reasons, reasonVolumeDown)
	}

	return Watch{
		Armed:           conds[CondAboveAverage] && conds[CondVolumeIncrease],
		Line:            line,
		TrailingAverage: avg,
		BarOpenTime:     closed.OpenTime,
		Conditions:      conds,
		Reasons:         reasons,
	}
}

// EvaluateExit decides whether an open position should be closed given the
// newest closed bar. Under ExitTrailing the position is held while the
// breakout line stays above the trailing average and sold at the current
// close once it breaks; under ExitNextOpen it is sold unconditionally at the
// open of the first bar after the entry bar.
func (v Variant) EvaluateExit(bars []market.Candle, pos *Position) Signal {
	if pos == nil || pos.Amount <= 0 {
		return Signal{Conditions: map[string]bool{}, Reasons: []string{reasonNoPosition}}
	}
	if len(bars) < 2 {
		return Signal{Conditions: map[string]bool{}, Reasons: []string{reasonInsufficientData}}
	}
	current := bars[len(bars)-1]
	if current.OpenTime <= pos.EntryBarOpen {
		return Signal{Conditions: map[string]bool{}, Reasons: []string{reasonEntryBarOpen}}
	}

	if v.Exit == ExitNextOpen {
		return Signal{
			ShouldAct:  true,
			Price:      current.Open,
			Conditions: map[string]bool{},
		}
	}

	if len(bars) < v.TrailingWindow+1 {
		return Signal{Conditions: map[string]bool{}, Reasons: []string{reasonInsufficientData}}
	}
	window := bars[len(bars)-1-v.TrailingWindow : len(bars)-1]
	line := current.Close + current.Range()*v.Ratio
	avg := market.MeanClose(window)

	holds := line > avg
	sig := Signal{
		BreakthroughPrice: line,
		TrailingAverage:   avg,
		Conditions:        map[string]bool{CondAboveAverage: holds},
	}
	if holds {
		sig.Reasons = []string{reasonConditionHolds}
		return sig
	}
	sig.ShouldAct = true
	sig.Price = current.Close
	return sig
}

func (v Variant) breakoutLine(prior, current market.Candle) float64 {
	if v.Reference == ReferenceClose {
		return current.Close + current.Range()*v.Ratio
	}
	return current.Open + prior.Range()*v.Ratio
}
