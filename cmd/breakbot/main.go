package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"breakbot/internal/app"
	"breakbot/internal/config"
	"breakbot/internal/logger"
)

func main() {
	defaultConfig := os.Getenv("BREAKBOT_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	var (
		cfgPath = flag.String("config", defaultConfig, "配置文件路径")
		mode    = flag.String("mode", "", "collect | backtest | live")
		days    = flag.Int("days", 365, "collect 模式回填的天数")
		confirm = flag.Bool("confirm", false, "live 模式跳过交互式确认")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintln(os.Stderr, "usage: breakbot -mode collect|backtest|live [-config path] [-days n] [-confirm]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	if cfg.App.LogPath != "" {
		logFile, err := logger.OpenLogFile(cfg.App.LogPath)
		if err != nil {
			log.Fatalf("初始化日志文件失败: %v", err)
		}
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，%s_%s %s）",
		cfg.App.Env, cfg.Trading.OrderCurrency, cfg.Trading.PaymentCurrency, cfg.Trading.Interval)

	if _, err := config.Watch(*cfgPath, cfg); err != nil {
		logger.Warnf("配置热加载不可用: %v", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "collect":
		err = a.RunCollect(ctx, *days)
	case "backtest":
		err = a.RunBacktest(ctx)
	case "live":
		err = a.RunLive(ctx, *confirm)
	default:
		log.Fatalf("未知模式: %s", *mode)
	}
	if err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}
