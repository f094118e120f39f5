package config

import "time"

// Config 是 breakbot 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Strategy StrategyConfig `toml:"strategy"`
	Storage  StorageConfig  `toml:"storage"`
	Backtest BacktestConfig `toml:"backtest"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// ExchangeConfig 描述 Bithumb REST 接入方式。
type ExchangeConfig struct {
	APIURL            string `toml:"api_url"`
	APIKey            string `toml:"api_key"`
	APISecret         string `toml:"api_secret"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExchangeConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelaySeconds) * time.Second
}

type TradingConfig struct {
	OrderCurrency   string  `toml:"order_currency"`   // e.g. XRP
	PaymentCurrency string  `toml:"payment_currency"` // e.g. KRW
	Interval        string  `toml:"interval"`         // candle period, e.g. 6h
	CapitalFraction float64 `toml:"capital_fraction"` // share of balance per entry, 0~1
	FeeRate         float64 `toml:"fee_rate"`
	MinOrderUnits   float64 `toml:"min_order_units"`
	MinOrderKRW     float64 `toml:"min_order_krw"`
}

// StrategyConfig selects the breakout variant. See strategy.Variant for the
// accepted values of reference/trigger/exit.
type StrategyConfig struct {
	Ratio          float64 `toml:"breakthrough_ratio"`
	TrailingWindow int     `toml:"trailing_window"`
	Reference      string  `toml:"reference"`
	Trigger        string  `toml:"trigger"`
	Exit           string  `toml:"exit"`
}

// IntervalDuration 返回解析后的K线周期；配置校验保证其有效。
func (t TradingConfig) IntervalDuration() time.Duration {
	d, _ := parseInterval(t.Interval)
	return d
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	RetentionDays int    `toml:"retention_days"`
}

type BacktestConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	FeeRate        float64 `toml:"fee_rate"`
	ReportDir      string  `toml:"report_dir"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled            bool   `toml:"enabled"`
	BotToken           string `toml:"bot_token"`
	ChatID             string `toml:"chat_id"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
}
