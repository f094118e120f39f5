package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func parseInterval(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func validate(c *Config) error {
	if _, ok := parseInterval(c.Trading.Interval); !ok {
		return fmt.Errorf("trading.interval invalid: %q (want e.g. 30m, 1h, 6h, 1d)", c.Trading.Interval)
	}
	if c.Trading.CapitalFraction <= 0 || c.Trading.CapitalFraction > 1 {
		return fmt.Errorf("trading.capital_fraction must be in (0, 1], got %v", c.Trading.CapitalFraction)
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("trading.fee_rate must be in [0, 1), got %v", c.Trading.FeeRate)
	}
	if c.Strategy.Ratio <= 0 || c.Strategy.Ratio > 1 {
		return fmt.Errorf("strategy.breakthrough_ratio must be in (0, 1], got %v", c.Strategy.Ratio)
	}
	if c.Strategy.TrailingWindow < 1 {
		return fmt.Errorf("strategy.trailing_window must be >= 1, got %d", c.Strategy.TrailingWindow)
	}
	switch strings.ToLower(c.Strategy.Reference) {
	case "open", "close":
	default:
		return fmt.Errorf("strategy.reference must be open or close, got %q", c.Strategy.Reference)
	}
	switch strings.ToLower(c.Strategy.Trigger) {
	case "high", "close":
	default:
		return fmt.Errorf("strategy.trigger must be high or close, got %q", c.Strategy.Trigger)
	}
	switch strings.ToLower(c.Strategy.Exit) {
	case "trailing", "next_open":
	default:
		return fmt.Errorf("strategy.exit must be trailing or next_open, got %q", c.Strategy.Exit)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0, got %v", c.Backtest.InitialCapital)
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id required when telegram is enabled")
		}
	}
	return nil
}
