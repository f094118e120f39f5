package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validCandle() Candle {
	return Candle{OpenTime: 1_700_000_000_000, Open: 100, High: 110, Low: 95, Close: 105, Volume: 1000}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validCandle().Validate())

	broken := []func(*Candle){
		func(c *Candle) { c.OpenTime = 0 },
		func(c *Candle) { c.Low = 120 },
		func(c *Candle) { c.Open = 90 },
		func(c *Candle) { c.Close = 200 },
		func(c *Candle) { c.Volume = -1 },
	}
	for i, mutate := range broken {
		c := validCandle()
		mutate(&c)
		err := c.Validate()
		assert.ErrorIs(t, err, ErrInvalidCandle, "case %d", i)
	}
}

func TestRange(t *testing.T) {
	assert.InDelta(t, 15.0, validCandle().Range(), 1e-12)
	assert.Zero(t, Candle{High: 100, Low: 100}.Range())
}

func TestSortedAscending(t *testing.T) {
	a := Candle{OpenTime: 1000}
	b := Candle{OpenTime: 2000}
	assert.True(t, SortedAscending(nil))
	assert.True(t, SortedAscending([]Candle{a, b}))
	assert.False(t, SortedAscending([]Candle{b, a}))
	// 重复时间戳同样视为乱序
	assert.False(t, SortedAscending([]Candle{a, a}))
}

func TestMeanClose(t *testing.T) {
	assert.Zero(t, MeanClose(nil))
	candles := []Candle{{Close: 100}, {Close: 104}, {Close: 102}}
	assert.InDelta(t, 102.0, MeanClose(candles), 1e-12)
}
