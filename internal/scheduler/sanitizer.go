package scheduler

import (
	"time"

	"breakbot/internal/market"
)

// DefaultCloseGrace absorbs exchange-side lag before a bar is trusted as closed.
const DefaultCloseGrace = 10 * time.Second

// DropForming removes trailing candles whose period has not fully elapsed.
// Exchanges return the currently forming bar as the last row; it must never
// be evaluated as closed.
func DropForming(candles []market.Candle, interval time.Duration) []market.Candle {
	return dropFormingAt(candles, interval, time.Now().UTC(), DefaultCloseGrace)
}

func dropFormingAt(candles []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if interval <= 0 {
		return candles
	}
	if grace < 0 {
		grace = 0
	}
	out := candles
	for len(out) > 0 {
		last := out[len(out)-1]
		if last.OpenTime <= 0 {
			break
		}
		closeMs := last.OpenTime + interval.Milliseconds() + grace.Milliseconds()
		if now.UnixMilli() >= closeMs {
			break
		}
		out = out[:len(out)-1]
	}
	return out
}
