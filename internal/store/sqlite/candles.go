package sqlite

import (
	"context"
	"errors"
	"time"

	"breakbot/internal/market"
	"breakbot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveCandles inserts candles in one batch. Rows whose (symbol, interval,
// open_time) already exist are skipped, so backfill overlaps are harmless.
func (s *SqliteStore) SaveCandles(ctx context.Context, symbol, interval string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	now := time.Now().Unix()
	rows := make([]model.CandleModel, 0, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return 0, err
		}
		rows = append(rows, model.CandleModel{
			Symbol:        symbol,
			Interval:      interval,
			OpenTime:      c.OpenTime,
			Open:          c.Open,
			High:          c.High,
			Low:           c.Low,
			Close:         c.Close,
			Volume:        c.Volume,
			CreatedAtUnix: now,
		})
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *SqliteStore) LoadCandles(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error) {
	q := s.db.WithContext(ctx).Model(&model.CandleModel{}).
		Where("symbol = ? AND interval = ? AND open_time >= ?", symbol, interval, start)
	if end > 0 {
		q = q.Where("open_time <= ?", end)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.CandleModel
	if err := q.Order("open_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCandles(rows), nil
}

func (s *SqliteStore) CandlesBefore(ctx context.Context, symbol, interval string, openTime int64, limit int) ([]market.Candle, error) {
	var rows []model.CandleModel
	q := s.db.WithContext(ctx).Model(&model.CandleModel{}).
		Where("symbol = ? AND interval = ? AND open_time < ?", symbol, interval, openTime).
		Order("open_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	// flip back to ascending
	out := toCandles(rows)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SqliteStore) LatestCandle(ctx context.Context, symbol, interval string) (*market.Candle, error) {
	var row model.CandleModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Order("open_time DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := toCandle(row)
	return &c, nil
}

func (s *SqliteStore) CountCandles(ctx context.Context, symbol, interval string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.CandleModel{}).
		Where("symbol = ? AND interval = ?", symbol, interval).
		Count(&n).Error
	return n, err
}

func (s *SqliteStore) TimestampRange(ctx context.Context, symbol, interval string) (int64, int64, error) {
	type bounds struct {
		Oldest int64
		Newest int64
	}
	var b bounds
	err := s.db.WithContext(ctx).Model(&model.CandleModel{}).
		Select("COALESCE(MIN(open_time), 0) AS oldest, COALESCE(MAX(open_time), 0) AS newest").
		Where("symbol = ? AND interval = ?", symbol, interval).
		Scan(&b).Error
	if err != nil {
		return 0, 0, err
	}
	return b.Oldest, b.Newest, nil
}

func (s *SqliteStore) DeleteCandlesBefore(ctx context.Context, symbol, interval string, openTime int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND open_time < ?", symbol, interval, openTime).
		Delete(&model.CandleModel{})
	return res.RowsAffected, res.Error
}

func toCandles(rows []model.CandleModel) []market.Candle {
	out := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, toCandle(r))
	}
	return out
}

func toCandle(r model.CandleModel) market.Candle {
	return market.Candle{
		OpenTime: r.OpenTime,
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
	}
}
