package collector

import (
	"context"
	"fmt"
	"time"

	"breakbot/internal/config"
	"breakbot/internal/gateway/bithumb"
	"breakbot/internal/logger"
	"breakbot/internal/market"
	"breakbot/internal/scheduler"
	"breakbot/internal/store"
)

// Fetcher is the exchange surface the collector needs.
type Fetcher interface {
	FetchCandles(ctx context.Context, orderCurrency, paymentCurrency, interval string, count int) ([]market.Candle, error)
}

var _ Fetcher = (*bithumb.Client)(nil)

// Collector keeps the candle store in sync with the exchange: initial
// backfill, per-close incremental updates, and retention pruning.
type Collector struct {
	fetcher  Fetcher
	repo     store.CandleRepository
	cfg      config.TradingConfig
	interval time.Duration

	// 新K线出现前的等待与重试节奏，交易所落盘通常滞后于收盘。
	SettleWait    time.Duration
	FetchAttempts int
	sleepFn       func(ctx context.Context, d time.Duration) bool
}

func New(fetcher Fetcher, repo store.CandleRepository, cfg config.TradingConfig) *Collector {
	interval, _ := scheduler.ParseIntervalDuration(cfg.Interval)
	return &Collector{
		fetcher:       fetcher,
		repo:          repo,
		cfg:           cfg,
		interval:      interval,
		SettleWait:    30 * time.Second,
		FetchAttempts: 3,
		sleepFn:       sleepCtx,
	}
}

func (c *Collector) symbol() string {
	return c.cfg.OrderCurrency + "_" + c.cfg.PaymentCurrency
}

// Backfill fetches roughly days worth of history and stores the closed bars.
func (c *Collector) Backfill(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = 365
	}
	perDay := int(24 * time.Hour / c.interval)
	count := days*perDay + 10

	logger.Infof("collector: backfill %s days=%d (count=%d)", c.symbol(), days, count)
	candles, err := c.fetcher.FetchCandles(ctx, c.cfg.OrderCurrency, c.cfg.PaymentCurrency, c.cfg.Interval, count)
	if err != nil {
		return 0, fmt.Errorf("backfill fetch failed: %w", err)
	}
	candles = scheduler.DropForming(candles, c.interval)
	candles = dropInvalid(candles)
	if len(candles) == 0 {
		logger.Warnf("collector: backfill returned no closed candles")
		return 0, nil
	}
	saved, err := c.repo.SaveCandles(ctx, c.symbol(), c.cfg.Interval, candles)
	if err != nil {
		return 0, err
	}
	if oldest, newest, err := c.repo.TimestampRange(ctx, c.symbol(), c.cfg.Interval); err == nil && oldest > 0 {
		logger.Infof("collector: 数据区间 %s ~ %s",
			time.UnixMilli(oldest).UTC().Format(time.RFC3339),
			time.UnixMilli(newest).UTC().Format(time.RFC3339))
	}
	logger.Infof("collector: backfill fetched=%d saved=%d", len(candles), saved)
	return saved, nil
}

// Update pulls candles newer than the stored head after a bar close. The
// exchange often publishes the closed bar late, so it waits once up front
// and then retries on a fixed cadence before giving up for this close.
func (c *Collector) Update(ctx context.Context) (int, error) {
	latest, err := c.repo.LatestCandle(ctx, c.symbol(), c.cfg.Interval)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return c.Backfill(ctx, 365)
	}

	logger.Infof("collector: waiting %s for the exchange to settle the closed bar", c.SettleWait)
	if !c.sleepFn(ctx, c.SettleWait) {
		return 0, ctx.Err()
	}

	for attempt := 1; attempt <= c.FetchAttempts; attempt++ {
		candles, err := c.fetcher.FetchCandles(ctx, c.cfg.OrderCurrency, c.cfg.PaymentCurrency, c.cfg.Interval, 10)
		if err != nil {
			logger.Warnf("collector: fetch failed (attempt %d/%d): %v", attempt, c.FetchAttempts, err)
			if attempt == c.FetchAttempts {
				return 0, err
			}
			if !c.sleepFn(ctx, c.SettleWait) {
				return 0, ctx.Err()
			}
			continue
		}

		fresh := make([]market.Candle, 0, len(candles))
		for _, candle := range candles {
			if candle.OpenTime > latest.OpenTime {
				fresh = append(fresh, candle)
			}
		}
		fresh = scheduler.DropForming(fresh, c.interval)
		fresh = dropInvalid(fresh)
		if len(fresh) > 0 {
			saved, err := c.repo.SaveCandles(ctx, c.symbol(), c.cfg.Interval, fresh)
			if err != nil {
				return 0, err
			}
			logger.Infof("collector: %d new candles, %d saved", len(fresh), saved)
			return saved, nil
		}

		if attempt < c.FetchAttempts {
			logger.Infof("collector: 暂无新K线，%s 后重试 (%d/%d)", c.SettleWait, attempt, c.FetchAttempts)
			if !c.sleepFn(ctx, c.SettleWait) {
				return 0, ctx.Err()
			}
		}
	}
	logger.Infof("collector: no new candles after %d attempts", c.FetchAttempts)
	return 0, nil
}

// Prune deletes candles older than the retention window. Zero retention
// keeps everything.
func (c *Collector) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()
	deleted, err := c.repo.DeleteCandlesBefore(ctx, c.symbol(), c.cfg.Interval, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logger.Infof("collector: pruned %d candles older than %d days", deleted, retentionDays)
	}
	return deleted, nil
}

// dropInvalid filters malformed rows instead of storing them.
func dropInvalid(candles []market.Candle) []market.Candle {
	out := candles[:0]
	for _, candle := range candles {
		if err := candle.Validate(); err != nil {
			logger.Warnf("collector: dropping invalid candle open_time=%d: %v", candle.OpenTime, err)
			continue
		}
		out = append(out, candle)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
