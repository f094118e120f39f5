package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"breakbot/internal/market"
	"breakbot/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hourCandles(n int, startMs int64) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)
		out = append(out, market.Candle{
			OpenTime: startMs + int64(i)*3_600_000,
			Open:     base,
			High:     base + 2,
			Low:      base - 1,
			Close:    base + 1,
			Volume:   1000 + float64(i),
		})
	}
	return out
}

func TestSaveCandles_SkipsDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	candles := hourCandles(5, 1_700_000_000_000)

	inserted, err := s.SaveCandles(ctx, "XRP_KRW", "1h", candles)
	require.NoError(t, err)
	assert.Equal(t, 5, inserted)

	// overlapping backfill: 3 old + 2 new
	more := append(candles[2:], hourCandles(2, 1_700_000_000_000+5*3_600_000)...)
	inserted, err = s.SaveCandles(ctx, "XRP_KRW", "1h", more)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	n, err := s.CountCandles(ctx, "XRP_KRW", "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestLoadCandles_RangeAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := int64(1_700_000_000_000)
	_, err := s.SaveCandles(ctx, "XRP_KRW", "1h", hourCandles(10, start))
	require.NoError(t, err)

	got, err := s.LoadCandles(ctx, "XRP_KRW", "1h", start+2*3_600_000, start+6*3_600_000, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.True(t, market.SortedAscending(got))
	assert.Equal(t, start+2*3_600_000, got[0].OpenTime)

	// other symbol stays invisible
	got, err = s.LoadCandles(ctx, "BTC_KRW", "1h", 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandlesBefore_ReturnsTrailingWindowAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := int64(1_700_000_000_000)
	_, err := s.SaveCandles(ctx, "XRP_KRW", "1h", hourCandles(10, start))
	require.NoError(t, err)

	pivot := start + 7*3_600_000
	got, err := s.CandlesBefore(ctx, "XRP_KRW", "1h", pivot, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, market.SortedAscending(got))
	assert.Equal(t, start+6*3_600_000, got[2].OpenTime)
}

func TestTimestampRangeAndRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := int64(1_700_000_000_000)
	_, err := s.SaveCandles(ctx, "XRP_KRW", "1h", hourCandles(6, start))
	require.NoError(t, err)

	oldest, newest, err := s.TimestampRange(ctx, "XRP_KRW", "1h")
	require.NoError(t, err)
	assert.Equal(t, start, oldest)
	assert.Equal(t, start+5*3_600_000, newest)

	deleted, err := s.DeleteCandlesBefore(ctx, "XRP_KRW", "1h", start+3*3_600_000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	oldest, _, err = s.TimestampRange(ctx, "XRP_KRW", "1h")
	require.NoError(t, err)
	assert.Equal(t, start+3*3_600_000, oldest)
}

func TestPosition_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pos.db")
	s, err := NewSqliteStore(dbPath)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	pos := &model.PositionModel{
		Symbol:     "XRP_KRW",
		EntryPrice: 850.5,
		Quantity:   1172.3,
		EntryFee:   2493.2,
		EntryTime:  1_700_000_123,
	}
	require.NoError(t, s.SavePosition(ctx, pos))
	require.NoError(t, s.Close())

	// simulate a restart
	s2, err := NewSqliteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	got, err = s2.LoadPosition(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 850.5, got.EntryPrice)
	assert.Equal(t, 1172.3, got.Quantity)

	require.NoError(t, s2.DeletePosition(ctx))
	got, err = s2.LoadPosition(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSavePosition_SingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePosition(ctx, &model.PositionModel{Symbol: "XRP_KRW", EntryPrice: 800}))
	require.NoError(t, s.SavePosition(ctx, &model.PositionModel{Symbol: "XRP_KRW", EntryPrice: 900}))

	got, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 900.0, got.EntryPrice)
}
