package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCandle marks OHLCV rows that violate basic shape invariants.
// Such rows are rejected before they ever reach the store.
var ErrInvalidCandle = errors.New("invalid candle")

// Candle 表示一根固定周期的 K 线，OpenTime 为周期起点（毫秒）。
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

func (c Candle) OpenAt() time.Time { return time.UnixMilli(c.OpenTime).UTC() }

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Validate checks basic OHLCV shape: low <= open/close <= high,
// non-negative volume, positive timestamp.
func (c Candle) Validate() error {
	if c.OpenTime <= 0 {
		return fmt.Errorf("%w: open_time=%d", ErrInvalidCandle, c.OpenTime)
	}
	if c.Low > c.High {
		return fmt.Errorf("%w: low %.8f > high %.8f (t=%d)", ErrInvalidCandle, c.Low, c.High, c.OpenTime)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("%w: open %.8f outside [%.8f, %.8f] (t=%d)", ErrInvalidCandle, c.Open, c.Low, c.High, c.OpenTime)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: close %.8f outside [%.8f, %.8f] (t=%d)", ErrInvalidCandle, c.Close, c.Low, c.High, c.OpenTime)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume %.8f < 0 (t=%d)", ErrInvalidCandle, c.Volume, c.OpenTime)
	}
	return nil
}

// SortedAscending reports whether candles are strictly increasing in OpenTime.
func SortedAscending(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return false
		}
	}
	return true
}

// MeanClose 计算窗口内收盘价均值，空窗口返回 0。
func MeanClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Close
	}
	return sum / float64(len(candles))
}
