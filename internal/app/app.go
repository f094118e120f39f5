package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"breakbot/internal/backtest"
	"breakbot/internal/collector"
	"breakbot/internal/config"
	"breakbot/internal/gateway/bithumb"
	"breakbot/internal/gateway/notifier"
	"breakbot/internal/live"
	"breakbot/internal/logger"
	"breakbot/internal/portfolio"
	"breakbot/internal/report"
	"breakbot/internal/store/sqlite"
	"breakbot/internal/strategy"
	httpserver "breakbot/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 把配置装配成可运行的采集/回测/实盘入口。
type App struct {
	cfg     *config.Config
	variant strategy.Variant
	store   *sqlite.SqliteStore
	client  *bithumb.Client
	coll    *collector.Collector
	pf      *portfolio.Manager

	telegram *notifier.Telegram // nil 表示未启用
	notify   notifier.TextNotifier
}

func NewApp(cfg *config.Config) (*App, error) {
	variant, err := strategy.ParseVariant(
		cfg.Strategy.Ratio, cfg.Strategy.TrailingWindow,
		cfg.Strategy.Reference, cfg.Strategy.Trigger, cfg.Strategy.Exit)
	if err != nil {
		return nil, err
	}
	st, err := sqlite.NewSqliteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	client, err := bithumb.NewClient(cfg.Exchange)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		variant: variant,
		store:   st,
		client:  client,
		coll:    collector.New(client, st, cfg.Trading),
		pf: portfolio.NewManager(
			cfg.Trading.OrderCurrency+"_"+cfg.Trading.PaymentCurrency,
			cfg.Trading.FeeRate, cfg.Trading.MinOrderUnits, cfg.Trading.MinOrderKRW, st),
		notify: notifier.Noop{},
	}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		a.telegram = notifier.NewTelegram(tg.BotToken, tg.ChatID)
		a.notify = a.telegram
	}
	return a, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// RunCollect 回填历史K线并按保留期清理。
func (a *App) RunCollect(ctx context.Context, days int) error {
	saved, err := a.coll.Backfill(ctx, days)
	if err != nil {
		return err
	}
	if _, err := a.coll.Prune(ctx, a.cfg.Storage.RetentionDays); err != nil {
		return err
	}
	logger.Infof("collect 完成: %d 根新K线", saved)
	return nil
}

// RunBacktest 在已存储的K线上回放策略并生成报告。
func (a *App) RunBacktest(ctx context.Context) error {
	symbol := a.cfg.Trading.OrderCurrency + "_" + a.cfg.Trading.PaymentCurrency
	candles, err := a.store.LoadCandles(ctx, symbol, a.cfg.Trading.Interval, 0, 0, 0)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles stored for %s %s, run collect first", symbol, a.cfg.Trading.Interval)
	}

	engine := backtest.NewEngine(a.variant, a.cfg.Backtest.InitialCapital, a.cfg.Backtest.FeeRate)
	result, err := engine.Run(candles)
	if err != nil {
		return err
	}
	metrics := result.ComputeMetrics(a.cfg.Trading.IntervalDuration())

	logger.Infof("回测完成: trades=%d return=%.2f%% win=%.1f%% mdd=%.2f%% sharpe=%.2f",
		metrics.TotalTrades, metrics.TotalReturnPercent, metrics.WinRate,
		metrics.MaxDrawdownPercent, metrics.SharpeRatio)

	in := report.Input{
		Symbol:    symbol,
		Interval:  a.cfg.Trading.Interval,
		Variant:   a.variant.String(),
		SMAWindow: a.variant.TrailingWindow,
		Candles:   candles,
		Result:    result,
		Metrics:   metrics,
	}
	path, err := report.WriteHTML(a.cfg.Backtest.ReportDir, in)
	if err != nil {
		return err
	}
	params := report.RunParams{
		Variant:        a.variant.String(),
		InitialCapital: a.cfg.Backtest.InitialCapital,
		FeeRate:        a.cfg.Backtest.FeeRate,
	}
	runID, err := report.SaveRun(ctx, a.store, in, params, path)
	if err != nil {
		return err
	}
	logger.Infof("回测记录已保存 run_id=%s report=%s", runID, path)

	a.sendBacktestSummary(symbol, metrics, path)
	return nil
}

func (a *App) sendBacktestSummary(symbol string, m backtest.Metrics, path string) {
	msg := notifier.StructuredMessage{
		Icon:  "📊",
		Title: "回测完成 " + symbol,
		Sections: []notifier.MessageSection{{
			Lines: []string{
				fmt.Sprintf("交易 %d (胜率 %.1f%%)", m.TotalTrades, m.WinRate),
				fmt.Sprintf("收益 %.2f%% (年化 %.2f%%)", m.TotalReturnPercent, m.AnnualizedReturn),
				fmt.Sprintf("最大回撤 %.2f%%", m.MaxDrawdownPercent),
				fmt.Sprintf("夏普 %.2f", m.SharpeRatio),
			},
		}},
		Footer:    path,
		Timestamp: time.Now().UTC(),
	}
	if err := a.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("backtest summary notify failed: %v", err)
	}
}

// RunLive 启动实盘：引擎 + Telegram 命令 + HTTP 状态服务。
// confirm 为 false 时要求交互式确认，防止误触实盘。
func (a *App) RunLive(ctx context.Context, confirm bool) error {
	if !confirm && !promptConfirm() {
		logger.Infof("live 已取消")
		return nil
	}

	engine := live.NewEngine(a.cfg, a.variant, a.client, a.coll, a.store, a.pf, a.notify)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })

	if a.telegram != nil {
		timeout := time.Duration(a.cfg.Notify.Telegram.PollTimeoutSeconds) * time.Second
		listener := notifier.NewCommandListener(a.telegram, timeout)
		engine.RegisterCommands(listener)
		g.Go(func() error {
			listener.Run(gctx)
			return nil
		})
	}

	srv, err := httpserver.NewServer(httpserver.ServerConfig{
		Addr:   a.cfg.App.HTTPAddr,
		Engine: engine,
		Runs:   a.store,
	})
	if err != nil {
		return err
	}
	g.Go(func() error { return srv.Start(gctx) })

	return g.Wait()
}

func promptConfirm() bool {
	fmt.Print("即将使用真实资金交易，输入 yes 继续: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}
