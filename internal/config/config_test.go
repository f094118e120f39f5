package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
trading:
  order_currency: XRP
  payment_currency: KRW
`

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":8086", cfg.App.HTTPAddr)
	assert.Equal(t, "https://api.bithumb.com", cfg.Exchange.APIURL)
	assert.Equal(t, "6h", cfg.Trading.Interval)
	assert.InDelta(t, 0.0025, cfg.Trading.FeeRate, 1e-12)
	assert.InDelta(t, 0.5, cfg.Strategy.Ratio, 1e-12)
	assert.Equal(t, 5, cfg.Strategy.TrailingWindow)
	assert.Equal(t, "open", cfg.Strategy.Reference)
	assert.Equal(t, "trailing", cfg.Strategy.Exit)
	assert.InDelta(t, 1_000_000, cfg.Backtest.InitialCapital, 1e-9)
	// 回测费率缺省沿用交易费率
	assert.InDelta(t, cfg.Trading.FeeRate, cfg.Backtest.FeeRate, 1e-12)
	assert.Equal(t, 6*time.Hour, cfg.Trading.IntervalDuration())
}

func TestLoad_MergesIncludesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
trading:
  order_currency: BTC
  payment_currency: KRW
  interval: 1h
strategy:
  breakthrough_ratio: 0.3
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
trading:
  order_currency: XRP
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// 主文件覆盖 include，未覆盖的键保留
	assert.Equal(t, "XRP", cfg.Trading.OrderCurrency)
	assert.Equal(t, "1h", cfg.Trading.Interval)
	assert.InDelta(t, 0.3, cfg.Strategy.Ratio, 1e-12)
}

func TestLoad_RejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"bad interval": minimalConfig + "  interval: 7x\n",
		"bad fraction": minimalConfig + "  capital_fraction: 1.5\n",
		"bad exit":     minimalConfig + "strategy:\n  exit: immediately\n",
		"telegram on without token": minimalConfig + `notify:
  telegram:
    enabled: true
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
