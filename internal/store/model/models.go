package model

import (
	"gorm.io/datatypes"
)

// CandleModel 按开盘毫秒时间戳去重存储K线。
type CandleModel struct {
	ID       int64   `gorm:"column:id;primaryKey"`
	Symbol   string  `gorm:"column:symbol;uniqueIndex:idx_candle,priority:1"`
	Interval string  `gorm:"column:interval;uniqueIndex:idx_candle,priority:2"`
	OpenTime int64   `gorm:"column:open_time;uniqueIndex:idx_candle,priority:3"`
	Open     float64 `gorm:"column:open"`
	High     float64 `gorm:"column:high"`
	Low      float64 `gorm:"column:low"`
	Close    float64 `gorm:"column:close"`
	Volume   float64 `gorm:"column:volume"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
}

func (CandleModel) TableName() string { return "candles" }

// PositionModel 是单仓位记录，表里最多一行（id 固定为 1）。
type PositionModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Symbol        string  `gorm:"column:symbol"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	Quantity      float64 `gorm:"column:quantity"`
	EntryFee      float64 `gorm:"column:entry_fee"`
	EntryTime     int64   `gorm:"column:entry_time"`
	EntryBarOpen  int64   `gorm:"column:entry_bar_open"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "position" }

// PositionSingletonID is the primary key of the one live position row.
const PositionSingletonID int64 = 1

type BacktestRunModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RunID         string         `gorm:"column:run_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol"`
	Interval      string         `gorm:"column:interval"`
	StartTime     int64          `gorm:"column:start_time"`
	EndTime       int64          `gorm:"column:end_time"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	MetricsJSON   datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	TradesJSON    datatypes.JSON `gorm:"column:trades_json;type:TEXT"`
	ReportPath    string         `gorm:"column:report_path"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }
