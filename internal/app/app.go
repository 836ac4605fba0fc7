package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"maru/internal/backtest"
	mcfg "maru/internal/config"
	cfgloader "maru/internal/config/loader"
	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/optimize"
	"maru/internal/paper"
	"maru/internal/store"
	"maru/internal/strategy"
)

// App 负责应用级编排：加载配置→初始化依赖→启动回测服务、
// 批量寻优与模拟盘循环。
type App struct {
	cfg    *mcfg.Config
	source market.HistorySource
	runs   *backtest.RunStore
	store  *store.Store
	svc    *backtest.Service
	batch  *optimize.Batch
	http   *backtest.HTTPServer
	bounds map[string]strategy.ParamBounds
	paper  *paper.Runner
	params *cfgloader.ParamsLoader

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *mcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务、批量寻优（如配置了标的）与模拟盘循环，
// 任一组件出错则整体退出。ctx 取消视为正常停机。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if len(a.cfg.Optimizer.Codes) > 0 {
		group.Go(func() error {
			return a.runStartupOptimization(ctx)
		})
	}

	if a.paper != nil {
		group.Go(func() error {
			if err := a.paper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("paper loop error: %w", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runStartupOptimization 在启动时跑一轮批量寻优并写出参数快照。
// 寻优失败不拖垮常驻服务，只记日志。
func (a *App) runStartupOptimization(ctx context.Context) error {
	logger.Infof("启动批量寻优: strategies=%v codes=%v",
		a.cfg.Optimizer.Strategies, a.cfg.Optimizer.Codes)
	results, err := a.batch.Run(ctx, a.cfg.Optimizer.Strategies, a.cfg.Optimizer.Codes, a.bounds)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Errorf("批量寻优失败: %v", err)
		return nil
	}
	done, failed := 0, 0
	for _, r := range results {
		if r == nil {
			failed++
		} else {
			done++
		}
	}
	logger.Infof("✓ 批量寻优完成: 成功 %d 对，失败 %d 对", done, failed)
	return nil
}

// BacktestService 暴露回测服务实例，供测试与回放使用。
func (a *App) BacktestService() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

// Close 释放数据库与监听句柄。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.params != nil {
		_ = a.params.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.runs != nil {
		_ = a.runs.Close()
	}
}
