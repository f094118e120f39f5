package store

import (
	"context"

	"breakbot/internal/market"
	"breakbot/internal/store/model"
)

// CandleRepository 负责K线的持久化与查询。
type CandleRepository interface {
	// SaveCandles inserts candles, silently skipping timestamps already stored.
	SaveCandles(ctx context.Context, symbol, interval string, candles []market.Candle) (int, error)
	// LoadCandles returns candles with open_time in [start, end], ascending.
	// A non-positive end means no upper bound; limit <= 0 means no limit.
	LoadCandles(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error)
	// CandlesBefore returns up to limit candles strictly before openTime, ascending.
	CandlesBefore(ctx context.Context, symbol, interval string, openTime int64, limit int) ([]market.Candle, error)
	LatestCandle(ctx context.Context, symbol, interval string) (*market.Candle, error)
	CountCandles(ctx context.Context, symbol, interval string) (int64, error)
	// TimestampRange returns the oldest and newest stored open_time, or (0, 0).
	TimestampRange(ctx context.Context, symbol, interval string) (int64, int64, error)
	DeleteCandlesBefore(ctx context.Context, symbol, interval string, openTime int64) (int64, error)
}

// PositionRepository 维护唯一的持仓记录。
type PositionRepository interface {
	SavePosition(ctx context.Context, p *model.PositionModel) error
	// LoadPosition returns nil when no position is stored.
	LoadPosition(ctx context.Context) (*model.PositionModel, error)
	DeletePosition(ctx context.Context) error
}

type RunRepository interface {
	SaveRun(ctx context.Context, run *model.BacktestRunModel) error
	ListRuns(ctx context.Context, limit int) ([]model.BacktestRunModel, error)
}

// Store 聚合全部仓库并管理底层连接。
type Store interface {
	CandleRepository
	PositionRepository
	RunRepository
	Close() error
}
