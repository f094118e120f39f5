package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"breakbot/internal/backtest"
	"breakbot/internal/logger"
	"breakbot/internal/market"
	"breakbot/internal/store"
	"breakbot/internal/store/model"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	talib "github.com/markcheno/go-talib"
	"gorm.io/datatypes"
)

const (
	colorBull   = "#34d399"
	colorBear   = "#f87171"
	colorSMA    = "#fbbf24"
	colorEquity = "#3b82f6"
	colorDD     = "#f472b6"

	chartWidth  = "1400px"
	chartHeight = "520px"
)

// Input bundles everything one backtest run produced.
type Input struct {
	Symbol    string
	Interval  string
	Variant   string
	SMAWindow int
	Candles   []market.Candle
	Result    *backtest.Result
	Metrics   backtest.Metrics
}

// WriteHTML 生成回测报告页面：K线 + 均线 + 成交标记、资金曲线、回撤曲线。
// Returns the path of the written file.
func WriteHTML(dir string, in Input) (string, error) {
	if in.Result == nil {
		return "", fmt.Errorf("report: result is nil")
	}
	if len(in.Candles) == 0 {
		return "", fmt.Errorf("report: no candles to render")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("%s %s backtest", strings.ToUpper(in.Symbol), in.Interval)

	page.AddCharts(
		buildKlineChart(in),
		buildEquityChart(in.Result),
		buildDrawdownChart(in.Result),
	)

	name := fmt.Sprintf("backtest_%s_%s_%s.html",
		strings.ToLower(in.Symbol), in.Interval, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	logger.Infof("report: 报告已生成 %s", path)
	return path, nil
}

func buildKlineChart(in Input) components.Charter {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", strings.ToUpper(in.Symbol), in.Interval),
			Subtitle: in.Variant,
			Left:     "left",
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(in.Candles)
	data := make([]opts.KlineData, 0, len(in.Candles))
	for _, c := range in.Candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if sma := buildSMALine(in, xAxis); sma != nil {
		kline.Overlap(sma)
	}
	if markers := buildTradeMarkers(in, xAxis); markers != nil {
		kline.Overlap(markers)
	}
	return kline
}

func buildSMALine(in Input, xAxis []string) *charts.Line {
	window := in.SMAWindow
	if window <= 1 {
		window = 5
	}
	if len(in.Candles) < window {
		return nil
	}
	closes := make([]float64, len(in.Candles))
	for i, c := range in.Candles {
		closes[i] = c.Close
	}
	sma := talib.Sma(closes, window)

	line := charts.NewLine()
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(xAxis)
	line.AddSeries(fmt.Sprintf("SMA%d", window), toLineData(sma, len(in.Candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2}))
	return line
}

// buildTradeMarkers plots entries and exits as scatter points on the kline.
func buildTradeMarkers(in Input, xAxis []string) *charts.Scatter {
	if len(in.Result.Trades) == 0 {
		return nil
	}
	index := make(map[int64]int, len(in.Candles))
	for i, c := range in.Candles {
		index[c.OpenTime] = i
	}
	entries := make([]opts.ScatterData, len(xAxis))
	exits := make([]opts.ScatterData, len(xAxis))
	for _, t := range in.Result.Trades {
		if i, ok := index[t.EntryTime.UnixMilli()]; ok {
			entries[i] = opts.ScatterData{Value: t.EntryPrice, Symbol: "triangle", SymbolSize: 12}
		}
		if i, ok := index[t.ExitTime.UnixMilli()]; ok {
			exits[i] = opts.ScatterData{Value: t.ExitPrice, Symbol: "diamond", SymbolSize: 12}
		}
	}

	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("买入", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("卖出", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	return scatter
}

func buildEquityChart(result *backtest.Result) components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "资金曲线", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	curve := append([]float64{result.InitialCapital}, result.EquityCurve...)
	x := make([]string, len(curve))
	data := make([]opts.LineData, len(curve))
	for i, v := range curve {
		x[i] = fmt.Sprintf("%d", i)
		data[i] = opts.LineData{Value: round2(v)}
	}
	line.SetXAxis(x)
	line.AddSeries("Equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

// buildDrawdownChart recomputes the running drawdown from the equity curve.
func buildDrawdownChart(result *backtest.Result) components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: "320px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "回撤",
			Subtitle: fmt.Sprintf("最大回撤 %.2f%%", result.MaxDrawdown*100),
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	curve := append([]float64{result.InitialCapital}, result.EquityCurve...)
	peak := curve[0]
	x := make([]string, len(curve))
	data := make([]opts.LineData, len(curve))
	for i, v := range curve {
		if v > peak {
			peak = v
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - v) / peak * 100
		}
		x[i] = fmt.Sprintf("%d", i)
		data[i] = opts.LineData{Value: round2(dd)}
	}
	line.SetXAxis(x)
	line.AddSeries("Drawdown %", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDD, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

// RunParams is the parameter snapshot persisted with each backtest run.
type RunParams struct {
	Variant        string  `json:"variant"`
	InitialCapital float64 `json:"initial_capital"`
	FeeRate        float64 `json:"fee_rate"`
}

// SaveRun persists one backtest run with its parameters, metrics and ledger.
func SaveRun(ctx context.Context, runs store.RunRepository, in Input, params RunParams, reportPath string) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	metricsJSON, err := json.Marshal(in.Metrics)
	if err != nil {
		return "", err
	}
	tradesJSON, err := json.Marshal(in.Result.Trades)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	rec := &model.BacktestRunModel{
		RunID:       runID,
		Symbol:      in.Symbol,
		Interval:    in.Interval,
		StartTime:   in.Candles[0].OpenTime,
		EndTime:     in.Candles[len(in.Candles)-1].OpenTime,
		ParamsJSON:  datatypes.JSON(paramsJSON),
		MetricsJSON: datatypes.JSON(metricsJSON),
		TradesJSON:  datatypes.JSON(tradesJSON),
		ReportPath:  reportPath,
	}
	if err := runs.SaveRun(ctx, rec); err != nil {
		return "", err
	}
	return runID, nil
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return x
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		v := series[i]
		if math.IsNaN(v) || v == 0 {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round2(v)}
		}
	}
	return line
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
