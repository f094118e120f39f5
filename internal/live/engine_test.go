package live

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"breakbot/internal/collector"
	"breakbot/internal/config"
	"breakbot/internal/gateway/bithumb"
	"breakbot/internal/market"
	"breakbot/internal/portfolio"
	"breakbot/internal/store/sqlite"
	"breakbot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	candles   []market.Candle
	fetchErr  error
	ticker    float64
	tickerErr error
	balance   bithumb.Balance
	detail    bithumb.OrderDetail

	fetchCalls int
	buys       []float64
	sells      []float64
}

func (f *fakeExchange) FetchCandles(ctx context.Context, o, p, interval string, count int) ([]market.Candle, error) {
	f.fetchCalls++
	return f.candles, f.fetchErr
}

func (f *fakeExchange) Ticker(ctx context.Context, o, p string) (float64, error) {
	return f.ticker, f.tickerErr
}

func (f *fakeExchange) GetBalance(ctx context.Context, o string) (bithumb.Balance, error) {
	return f.balance, nil
}

func (f *fakeExchange) MarketBuy(ctx context.Context, o, p string, units float64) (bithumb.OrderResult, error) {
	f.buys = append(f.buys, units)
	return bithumb.OrderResult{OrderID: "B-1"}, nil
}

func (f *fakeExchange) MarketSell(ctx context.Context, o, p string, units float64) (bithumb.OrderResult, error) {
	f.sells = append(f.sells, units)
	return bithumb.OrderResult{OrderID: "S-1"}, nil
}

func (f *fakeExchange) GetOrderDetail(ctx context.Context, id, o, p string) (bithumb.OrderDetail, error) {
	return f.detail, nil
}

type captureNotifier struct {
	texts []string
}

func (c *captureNotifier) SendText(text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func liveConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			OrderCurrency: "XRP", PaymentCurrency: "KRW", Interval: "1h",
			CapitalFraction: 1.0, FeeRate: 0.0025,
			MinOrderUnits: 1.0, MinOrderKRW: 5000,
		},
		Storage: config.StorageConfig{RetentionDays: 365},
	}
}

// hourBars builds len(closes) hourly bars ending a couple of hours back.
func hourBars(closes, highs, volumes []float64) []market.Candle {
	base := time.Now().UTC().Add(-time.Duration(len(closes)+2) * time.Hour).Truncate(time.Hour)
	bars := make([]market.Candle, len(closes))
	for i := range closes {
		high := closes[i]
		if highs != nil {
			high = highs[i]
		}
		low := closes[i]
		if high < closes[i] {
			high = closes[i]
		}
		bars[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:     closes[i], High: high, Low: low, Close: closes[i],
			Volume: volumes[i],
		}
	}
	return bars
}

func newTestEngine(t *testing.T, ex *fakeExchange, bars []market.Candle) (*Engine, *portfolio.Manager, *captureNotifier) {
	t.Helper()
	s, err := sqlite.NewSqliteStore(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := liveConfig()
	if len(bars) > 0 {
		_, err = s.SaveCandles(context.Background(), "XRP_KRW", "1h", bars)
		require.NoError(t, err)
	}

	coll := collector.New(ex, s, cfg.Trading)
	coll.SettleWait = 0

	pf := portfolio.NewManager("XRP_KRW", cfg.Trading.FeeRate, cfg.Trading.MinOrderUnits, cfg.Trading.MinOrderKRW, s)
	notes := &captureNotifier{}
	e := NewEngine(cfg, strategy.DefaultVariant(), ex, coll, s, pf, notes)
	e.fillPollDelay = 0
	return e, pf, notes
}

// 最后一根：range 10，close 104 → 线 109，高于均值，放量。
func armingBars() []market.Candle {
	closes := []float64{100, 100, 100, 100, 100, 100, 104}
	highs := []float64{100, 100, 100, 100, 100, 100, 110}
	volumes := []float64{1000, 1000, 1000, 1000, 1000, 1000, 2000}
	bars := hourBars(closes, highs, volumes)
	bars[len(bars)-1].Low = 100
	bars[len(bars)-1].Open = 100
	return bars
}

func TestOnBarClose_ArmsWatchWhenFlat(t *testing.T) {
	ex := &fakeExchange{ticker: 104, balance: bithumb.Balance{AvailableKRW: 1_000_000}}
	e, _, _ := newTestEngine(t, ex, armingBars())

	e.onBarClose(context.Background(), time.Now().UTC().Truncate(time.Hour))

	e.mu.RLock()
	watch := e.watch
	e.mu.RUnlock()
	require.NotNil(t, watch)
	assert.InDelta(t, 109.0, watch.Line, 1e-9)

	st := e.Snapshot()
	assert.True(t, st.WatchArmed)
	assert.InDelta(t, 109.0, st.WatchLine, 1e-9)
	assert.False(t, st.HasPosition)
}

func TestFireEntry_UsesReportedFill(t *testing.T) {
	ex := &fakeExchange{
		ticker:  110,
		balance: bithumb.Balance{AvailableKRW: 1_000_000},
		detail:  bithumb.OrderDetail{Status: "done", FilledUnits: 9000, AvgPrice: 109.2, FeeTotal: 2450},
	}
	e, pf, notes := newTestEngine(t, ex, armingBars())

	watch := strategy.Watch{Armed: true, Line: 109, BarOpenTime: time.Now().UTC().Truncate(time.Hour).UnixMilli()}
	e.fireEntry(context.Background(), watch)

	require.Len(t, ex.buys, 1)
	pos, ok := pf.Snapshot()
	require.True(t, ok)
	assert.InDelta(t, 9000.0, pos.Amount, 1e-9)
	assert.InDelta(t, 109.2, pos.EntryPrice, 1e-9)

	e.mu.RLock()
	assert.Nil(t, e.watch)
	e.mu.RUnlock()

	require.NotEmpty(t, notes.texts)
	assert.Contains(t, notes.texts[len(notes.texts)-1], "开仓")
}

func TestFireEntry_SkipsWhenBalanceTooSmall(t *testing.T) {
	ex := &fakeExchange{balance: bithumb.Balance{AvailableKRW: 1000}}
	e, pf, _ := newTestEngine(t, ex, armingBars())

	e.fireEntry(context.Background(), strategy.Watch{Armed: true, Line: 109})

	assert.Empty(t, ex.buys)
	assert.False(t, pf.HasPosition())
}

// 趋势破位：最新收盘 100，低于前五根均值。
func collapseBars() []market.Candle {
	closes := []float64{110, 110, 110, 110, 110, 110, 100}
	volumes := []float64{1000, 1000, 1000, 1000, 1000, 1000, 1500}
	return hourBars(closes, nil, volumes)
}

func TestOnBarClose_ExitsOnTrailingBreak(t *testing.T) {
	bars := collapseBars()
	ex := &fakeExchange{ticker: 100, balance: bithumb.Balance{AvailableKRW: 0, AvailableCoin: 500}}
	e, pf, notes := newTestEngine(t, ex, bars)

	pf.UpdateBalance(0, 500)
	require.NoError(t, pf.OpenPosition(context.Background(), 500, 108, 1350, bars[0].OpenTime))

	e.onBarClose(context.Background(), time.Now().UTC().Truncate(time.Hour))

	require.Len(t, ex.sells, 1)
	assert.InDelta(t, 500.0, ex.sells[0], 1e-9)
	assert.False(t, pf.HasPosition())
	require.NotEmpty(t, notes.texts)
	assert.Contains(t, notes.texts[len(notes.texts)-1], "平仓")
}

func TestOnBarClose_DegradedExitUsesFreshTicker(t *testing.T) {
	bars := collapseBars()
	ex := &fakeExchange{
		fetchErr: errors.New("exchange down"),
		ticker:   99.5,
		balance:  bithumb.Balance{AvailableCoin: 500},
	}
	e, pf, notes := newTestEngine(t, ex, bars)

	pf.UpdateBalance(0, 500)
	require.NoError(t, pf.OpenPosition(context.Background(), 500, 108, 1350, bars[0].OpenTime))

	e.onBarClose(context.Background(), time.Now().UTC().Truncate(time.Hour))

	require.Len(t, ex.sells, 1)
	assert.False(t, pf.HasPosition())

	joined := strings.Join(notes.texts, "\n")
	assert.Contains(t, joined, "exit-only")
	assert.Contains(t, joined, "99.50")
}

func TestOnBarClose_DegradedNeverArmsWatch(t *testing.T) {
	ex := &fakeExchange{fetchErr: errors.New("exchange down"), ticker: 104}
	e, _, _ := newTestEngine(t, ex, armingBars())

	e.onBarClose(context.Background(), time.Now().UTC().Truncate(time.Hour))

	e.mu.RLock()
	assert.Nil(t, e.watch)
	e.mu.RUnlock()
}

func TestSettleWatch_LateFillAtLine(t *testing.T) {
	// 观察线 109，后一根K线最高价 112：收盘补单，按线价成交
	bars := armingBars()
	last := bars[len(bars)-1]
	next := market.Candle{
		OpenTime: last.OpenTime + time.Hour.Milliseconds(),
		Open:     104, High: 112, Low: 103, Close: 111, Volume: 2500,
	}
	bars = append(bars, next)

	ex := &fakeExchange{
		ticker:  111,
		balance: bithumb.Balance{AvailableKRW: 1_000_000},
		detail:  bithumb.OrderDetail{Status: "done", FilledUnits: 9100, AvgPrice: 109, FeeTotal: 2400},
	}
	e, pf, _ := newTestEngine(t, ex, bars)

	e.mu.Lock()
	e.watch = &strategy.Watch{Armed: true, Line: 109, BarOpenTime: last.OpenTime}
	e.mu.Unlock()

	e.onBarClose(context.Background(), time.UnixMilli(next.OpenTime).Add(time.Hour))

	require.Len(t, ex.buys, 1)
	pos, ok := pf.Snapshot()
	require.True(t, ok)
	assert.InDelta(t, 109.0, pos.EntryPrice, 1e-9)
}

func TestSettleWatch_ExpiresWithoutEntry(t *testing.T) {
	// 后一根K线最高价 106 < 线 109：观察作废，不买入
	bars := armingBars()
	last := bars[len(bars)-1]
	next := market.Candle{
		OpenTime: last.OpenTime + time.Hour.Milliseconds(),
		Open:     104, High: 106, Low: 100, Close: 101, Volume: 900,
	}
	bars = append(bars, next)

	ex := &fakeExchange{ticker: 101, balance: bithumb.Balance{AvailableKRW: 1_000_000}}
	e, pf, _ := newTestEngine(t, ex, bars)

	e.mu.Lock()
	e.watch = &strategy.Watch{Armed: true, Line: 109, BarOpenTime: last.OpenTime}
	e.mu.Unlock()

	e.onBarClose(context.Background(), time.UnixMilli(next.OpenTime).Add(time.Hour))

	assert.Empty(t, ex.buys)
	assert.False(t, pf.HasPosition())
}

func TestNotifyError_RateLimited(t *testing.T) {
	ex := &fakeExchange{}
	e, _, notes := newTestEngine(t, ex, nil)

	e.notifyError("candle_update", "boom")
	e.notifyError("candle_update", "boom again")
	e.notifyError("sell", "other key")

	assert.Len(t, notes.texts, 2)
}

func TestPause_SkipsEvaluation(t *testing.T) {
	ex := &fakeExchange{ticker: 104}
	e, _, _ := newTestEngine(t, ex, armingBars())

	e.Pause()
	e.onBarClose(context.Background(), time.Now().UTC().Truncate(time.Hour))
	assert.Zero(t, ex.fetchCalls)

	e.Resume()
	assert.True(t, e.IsRunning())
}

func TestStatusText(t *testing.T) {
	ex := &fakeExchange{ticker: 104}
	e, pf, _ := newTestEngine(t, ex, nil)

	out := e.StatusText()
	assert.Contains(t, out, "运行中")
	assert.Contains(t, out, "XRP_KRW")

	pf.UpdateBalance(0, 500)
	require.NoError(t, pf.OpenPosition(context.Background(), 500, 108, 1350, 0))
	e.refreshStatus(context.Background(), nil, time.Now().UTC())
	out = e.StatusText()
	assert.Contains(t, out, "持仓")

	e.Pause()
	assert.Contains(t, e.StatusText(), "已暂停")
}
