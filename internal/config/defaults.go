package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8086"
	}

	if c.Exchange.APIURL == "" {
		c.Exchange.APIURL = "https://api.bithumb.com"
	}
	if c.Exchange.TimeoutSeconds <= 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Exchange.MaxRetries <= 0 {
		c.Exchange.MaxRetries = 3
	}
	if c.Exchange.RetryDelaySeconds <= 0 {
		c.Exchange.RetryDelaySeconds = 2
	}

	if c.Trading.OrderCurrency == "" {
		c.Trading.OrderCurrency = "XRP"
	}
	if c.Trading.PaymentCurrency == "" {
		c.Trading.PaymentCurrency = "KRW"
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "6h"
	}
	if c.Trading.CapitalFraction <= 0 {
		c.Trading.CapitalFraction = 1.0
	}
	if c.Trading.FeeRate <= 0 {
		c.Trading.FeeRate = 0.0025
	}
	if c.Trading.MinOrderUnits <= 0 {
		c.Trading.MinOrderUnits = 1.0
	}
	if c.Trading.MinOrderKRW <= 0 {
		c.Trading.MinOrderKRW = 5000
	}

	if c.Strategy.Ratio <= 0 {
		c.Strategy.Ratio = 0.5
	}
	if c.Strategy.TrailingWindow <= 0 {
		c.Strategy.TrailingWindow = 5
	}
	if c.Strategy.Reference == "" {
		c.Strategy.Reference = "open"
	}
	if c.Strategy.Trigger == "" {
		c.Strategy.Trigger = "high"
	}
	if c.Strategy.Exit == "" {
		c.Strategy.Exit = "trailing"
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/breakbot.db"
	}

	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = 1_000_000
	}
	if c.Backtest.FeeRate <= 0 {
		c.Backtest.FeeRate = c.Trading.FeeRate
	}
	if c.Backtest.ReportDir == "" {
		c.Backtest.ReportDir = "reports"
	}

	if c.Notify.Telegram.PollTimeoutSeconds <= 0 {
		c.Notify.Telegram.PollTimeoutSeconds = 30
	}
}
