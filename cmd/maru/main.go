package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"maru/internal/app"
	mcfg "maru/internal/config"
	"maru/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "", "配置文件路径（默认 configs/config.yaml，可用 MARU_CONFIG 覆盖）")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("MARU_CONFIG")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := mcfg.Load(path)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := logger.SetFile(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，行情源=%s）", cfg.App.Env, cfg.Market.Source)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("已退出")
}
