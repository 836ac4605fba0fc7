package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"maru/internal/backtest"
	mcfg "maru/internal/config"
	cfgloader "maru/internal/config/loader"
	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/optimize"
	"maru/internal/paper"
	"maru/internal/report"
	"maru/internal/store"
	"maru/internal/strategy"
)

// AppBuilder 把配置翻译成依赖图。各构造函数以字段形式暴露，
// 测试可以替换其中任意一环。
type AppBuilder struct {
	cfg *mcfg.Config

	sourceFn func(*mcfg.Config) (market.HistorySource, error)
	storeFn  func(string) (*store.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *mcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildHistorySource,
		storeFn:  store.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithHistorySource 替换行情来源，回放与测试用。
func WithHistorySource(src market.HistorySource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*mcfg.Config) (market.HistorySource, error) { return src, nil }
	}
}

// buildHistorySource 构造行情源并按配置叠加本地 SQLite 缓存。
func buildHistorySource(cfg *mcfg.Config) (market.HistorySource, error) {
	var inner market.HistorySource
	switch cfg.Market.Source {
	case "synthetic":
		inner = market.NewSyntheticSource()
	default:
		return nil, fmt.Errorf("不支持的行情源: %s", cfg.Market.Source)
	}
	if cfg.Market.CacheDir == "" {
		return inner, nil
	}
	cache, err := market.NewStore(cfg.Market.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
	}
	return market.NewCachedSource(cache, inner)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	source, err := b.sourceFn(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 行情源就绪: %s", source.Name())

	registry := strategy.DefaultRegistry()
	engine := backtest.NewEngine(cfg.Backtest.CommissionRate)

	runs, err := backtest.NewRunStore(cfg.Backtest.ResultDir)
	if err != nil {
		return nil, fmt.Errorf("初始化回测结果库失败: %w", err)
	}

	st, err := b.storeFn(cfg.Paper.StorePath)
	if err != nil {
		return nil, fmt.Errorf("初始化交易库失败: %w", err)
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Engine:         engine,
		Source:         source,
		Runs:           runs,
		Registry:       registry,
		InitialCapital: cfg.Backtest.InitialCapital,
		MaxConcurrent:  cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	optimizer, err := optimize.New(optimize.Config{
		Engine:         engine,
		Source:         source,
		Days:           cfg.Backtest.LookbackDays,
		InitialCapital: cfg.Backtest.InitialCapital,
		Iterations:     cfg.Optimizer.Iterations,
		WarmStart:      cfg.Optimizer.WarmStart,
		CandidatePool:  cfg.Optimizer.CandidatePool,
		Kappa:          cfg.Optimizer.Kappa,
		Seed:           cfg.Optimizer.Seed,
	})
	if err != nil {
		return nil, err
	}

	batch, err := optimize.NewBatch(optimize.BatchConfig{
		Optimizer:     optimizer,
		Registry:      registry,
		Store:         st,
		ParamsPath:    cfg.Optimizer.ParamsPath,
		Objective:     optimize.Objective(cfg.Optimizer.Objective),
		MaxConcurrent: cfg.Optimizer.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	boundsOverrides, err := loadBoundsOverrides(cfg.Strategies.BoundsFile)
	if err != nil {
		return nil, err
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:          cfg.App.HTTPAddr,
		Service:       svc,
		Optimizations: st,
		RenderReport:  renderRunReport,
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		source:  source,
		runs:    runs,
		store:   st,
		svc:     svc,
		batch:   batch,
		http:    httpSrv,
		bounds:  boundsOverrides,
		Summary: buildSummary(cfg, registry),
	}

	if cfg.Paper.Enabled {
		runner, params, err := buildPaperRunner(cfg, registry, st)
		if err != nil {
			return nil, err
		}
		app.paper = runner
		app.params = params
	}
	return app, nil
}

func buildPaperRunner(cfg *mcfg.Config, registry *strategy.Registry, st *store.Store) (*paper.Runner, *cfgloader.ParamsLoader, error) {
	var params *cfgloader.ParamsLoader
	if cfg.Optimizer.ParamsPath != "" {
		var err error
		params, err = cfgloader.NewParamsLoader(cfg.Optimizer.ParamsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("初始化参数热加载失败: %w", err)
		}
	}

	var provider paper.ParamsProvider
	if params != nil || len(cfg.Strategies.Params) > 0 {
		provider = &layeredParams{loader: params, static: cfg.Strategies.Params}
	}

	runner, err := paper.NewRunner(paper.Config{
		Interval:      time.Duration(cfg.Paper.IntervalSeconds) * time.Second,
		Strategies:    cfg.Paper.Strategies,
		Codes:         cfg.Paper.Codes,
		InitialCash:   cfg.Backtest.InitialCapital,
		SnapshotEvery: cfg.Paper.SnapshotEvery,
	}, registry, market.NewSyntheticQuotes(0), st, provider)
	if err != nil {
		if params != nil {
			_ = params.Close()
		}
		return nil, nil, err
	}
	return runner, params, nil
}

// layeredParams 把优化器快照叠在配置文件的静态超参之上：
// 快照里有就用快照，否则退回配置，再退回策略默认值。
type layeredParams struct {
	loader *cfgloader.ParamsLoader
	static map[string]map[string]float64
}

func (l *layeredParams) Params(name string) strategy.Params {
	if l.loader != nil {
		if p := l.loader.Params(name); p != nil {
			return p
		}
	}
	raw, ok := l.static[name]
	if !ok {
		return nil
	}
	out := make(strategy.Params, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

func (l *layeredParams) Subscribe(fn func(map[string]strategy.Params)) {
	if l.loader != nil {
		l.loader.Subscribe(fn)
	}
}

func loadBoundsOverrides(path string) (map[string]strategy.ParamBounds, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("搜索范围覆盖文件不存在，使用默认范围: %s", path)
			return nil, nil
		}
		return nil, fmt.Errorf("读取搜索范围覆盖失败: %w", err)
	}
	overrides, err := strategy.ParseBoundsOverrides(raw)
	if err != nil {
		return nil, fmt.Errorf("解析搜索范围覆盖失败: %w", err)
	}
	return overrides, nil
}

// renderRunReport 把落库的回测任务还原成结果对象后出图。
func renderRunReport(run backtest.Run, trades []backtest.TradeRecord, curve []backtest.EquityPoint) ([]byte, error) {
	wins, loses := 0, 0
	for _, t := range trades {
		if t.Type != "SELL" {
			continue
		}
		if t.Profit > 0 {
			wins++
		} else {
			loses++
		}
	}
	result := backtest.BacktestResult{
		StrategyName:   run.Strategy,
		Code:           run.Code,
		InitialCapital: run.InitialCapital,
		FinalEquity:    run.FinalEquity,
		TotalReturnPct: run.TotalReturnPct,
		TotalTrades:    run.TotalTrades,
		WinTrades:      wins,
		LoseTrades:     loses,
		WinRatePct:     run.WinRatePct,
		MaxDrawdownPct: run.MaxDrawdownPct,
		SharpeRatio:    run.SharpeRatio,
		Trades:         trades,
		EquityCurve:    curve,
	}
	return report.RenderBacktestHTML(result)
}
