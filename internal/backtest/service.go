package backtest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/strategy"
)

const (
	// DefaultLookbackDays 默认回看三个月日线。
	DefaultLookbackDays = 90
	maxLookbackDays     = 3650
)

// ServiceConfig 配置回测服务。
type ServiceConfig struct {
	Engine         *Engine
	Source         market.HistorySource
	Runs           *RunStore
	Registry       *strategy.Registry
	InitialCapital int64
	MaxConcurrent  int
}

// Service 负责管理回测任务：提交即返回，推演在后台进行。
type Service struct {
	engine         *Engine
	source         market.HistorySource
	runs           *RunStore
	registry       *strategy.Registry
	initialCapital int64

	sem     chan struct{}
	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine 不能为空")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("history source 不能为空")
	}
	if cfg.Runs == nil {
		return nil, fmt.Errorf("run store 不能为空")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("strategy registry 不能为空")
	}
	initialCapital := cfg.InitialCapital
	if initialCapital <= 0 {
		initialCapital = 10_000_000
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		engine:         cfg.Engine,
		source:         cfg.Source,
		runs:           cfg.Runs,
		registry:       cfg.Registry,
		initialCapital: initialCapital,
		sem:            make(chan struct{}, maxConcurrent),
		baseCtx:        context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Registry 暴露策略注册表，供 HTTP 层列举可用策略。
func (s *Service) Registry() *strategy.Registry { return s.registry }

// StartRun 校验请求、落库并异步执行回测。
func (s *Service) StartRun(req RunRequest) (Run, error) {
	if !market.ValidCode(req.Code) {
		return Run{}, fmt.Errorf("非法标的代码: %q", req.Code)
	}
	if _, ok := s.registry.Lookup(req.Strategy); !ok {
		return Run{}, fmt.Errorf("未知策略: %q", req.Strategy)
	}
	days := req.Days
	if days <= 0 {
		days = DefaultLookbackDays
	}
	if days > maxLookbackDays {
		return Run{}, fmt.Errorf("回看天数过大: %d", days)
	}
	initialCapital := req.InitialCapital
	if initialCapital <= 0 {
		initialCapital = s.initialCapital
	}

	run := Run{
		ID:             uuid.NewString(),
		Strategy:       req.Strategy,
		Code:           req.Code,
		Status:         RunStatusPending,
		Days:           days,
		InitialCapital: initialCapital,
		Params:         req.Params,
	}
	if err := s.runs.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run)
	return run, nil
}

func (s *Service) runLoop(run Run) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if err := s.runs.UpdateRunStatus(ctx, run.ID, RunStatusRunning, ""); err != nil {
		logger.Errorf("[backtest] run %s 标记 running 失败: %v", run.ID, err)
	}

	result, err := s.Execute(ctx, run.Strategy, run.Code, run.Days, run.InitialCapital, run.Params)
	if err != nil {
		logger.Errorf("[backtest] run %s 失败: %v", run.ID, err)
		_ = s.runs.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	if err := s.runs.CompleteRun(ctx, run.ID, result); err != nil {
		logger.Errorf("[backtest] run %s 落库失败: %v", run.ID, err)
		_ = s.runs.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
	}
}

// Execute 同步跑一次回测：拉历史、建策略、推演。优化器也走这条路径。
func (s *Service) Execute(ctx context.Context, strategyName, code string, days int, initialCapital int64, params strategy.Params) (BacktestResult, error) {
	strat, err := s.registry.New(strategyName, params)
	if err != nil {
		return BacktestResult{}, err
	}
	candles, err := s.source.History(ctx, market.HistoryRequest{Code: code, Days: days})
	if err != nil {
		return BacktestResult{}, fmt.Errorf("拉取 %s 历史数据失败: %w", code, err)
	}
	return s.engine.Run(strat, code, candles, initialCapital), nil
}

// RunDetail 返回 run 及其成交、资金曲线。
func (s *Service) RunDetail(ctx context.Context, id string) (Run, []TradeRecord, []EquityPoint, bool, error) {
	run, ok, err := s.runs.GetRun(ctx, id)
	if err != nil || !ok {
		return Run{}, nil, nil, ok, err
	}
	trades, err := s.runs.TradesByRun(ctx, id)
	if err != nil {
		return Run{}, nil, nil, false, err
	}
	curve, err := s.runs.EquityByRun(ctx, id)
	if err != nil {
		return Run{}, nil, nil, false, err
	}
	return run, trades, curve, true, nil
}

// Runs 返回最近的 run 列表。
func (s *Service) Runs(ctx context.Context, limit int) ([]Run, error) {
	return s.runs.ListRuns(ctx, limit)
}

// Run 按 ID 查询。
func (s *Service) Run(ctx context.Context, id string) (Run, bool, error) {
	return s.runs.GetRun(ctx, id)
}
