package optimize

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"maru/internal/backtest"
	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/strategy"
)

// Objective 选择寻优目标。
type Objective string

const (
	ObjectiveTotalReturn Objective = "total_return"
	ObjectiveSharpe      Objective = "sharpe_ratio"
	ObjectiveWinRate     Objective = "win_rate"
	// ObjectiveComposite 复合得分：0.4×收益率 + 3.0×夏普 + 0.3×胜率。
	ObjectiveComposite Objective = "composite"
)

const (
	// failedTrialScore 是评估抛错/崩溃时记入历史的保底得分，
	// 保持有限值以便 JSON 序列化。
	failedTrialScore = -1e9

	// 惩罚整形：交易过少样本不足 ×0.5，回撤超过 -30% 尾部风险过大 ×0.7。
	minTradesForFullScore = 5
	thinTradesPenalty     = 0.5
	maxDrawdownThreshold  = -30.0
	deepDrawdownPenalty   = 0.7
)

// Config 配置寻优器。
type Config struct {
	Engine         *backtest.Engine
	Source         market.HistorySource
	Days           int
	InitialCapital int64
	// Iterations 是模型引导阶段的评估次数，WarmStart 是前置随机探索次数。
	Iterations int
	WarmStart  int
	// CandidatePool 每步引导采样的候选点数。
	CandidatePool int
	// Kappa 控制探索权重：候选点离历史越远加分越多。
	Kappa float64
	Seed  int64
}

// Optimizer 是顺序黑盒寻优器：每个新候选点都由拟合到全部
// 历史 (params, score) 上的代理模型选出，因此单次寻优内的迭代
// 天然串行；相互独立的 (策略, 标的) 寻优之间没有共享状态，可并发。
type Optimizer struct {
	engine         *backtest.Engine
	source         market.HistorySource
	days           int
	initialCapital int64
	iterations     int
	warmStart      int
	candidatePool  int
	kappa          float64
	seed           int64
}

func New(cfg Config) (*Optimizer, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("optimize: engine 不能为空")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("optimize: history source 不能为空")
	}
	o := &Optimizer{
		engine:         cfg.Engine,
		source:         cfg.Source,
		days:           cfg.Days,
		initialCapital: cfg.InitialCapital,
		iterations:     cfg.Iterations,
		warmStart:      cfg.WarmStart,
		candidatePool:  cfg.CandidatePool,
		kappa:          cfg.Kappa,
		seed:           cfg.Seed,
	}
	if o.days <= 0 {
		o.days = backtest.DefaultLookbackDays
	}
	if o.initialCapital <= 0 {
		o.initialCapital = 10_000_000
	}
	if o.iterations <= 0 {
		o.iterations = 50
	}
	if o.warmStart <= 0 {
		o.warmStart = 10
	}
	if o.candidatePool <= 0 {
		o.candidatePool = 64
	}
	if o.kappa <= 0 {
		o.kappa = 2.0
	}
	if o.seed == 0 {
		o.seed = 42
	}
	return o, nil
}

// pairSeed 把基础种子和 (策略, 标的) 稳定地揉成每次寻优的随机种子，
// 批量并发时各对之间互不干扰且可复现。
func (o *Optimizer) pairSeed(strategyName, code string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strategyName))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return o.seed ^ int64(h.Sum64())
}

// Optimize 在给定范围内寻找最大化目标的超参。
// 行情只拉取一次，整个搜索期间复用同一序列，保证确定性。
func (o *Optimizer) Optimize(ctx context.Context, factory strategy.Factory, strategyName, code string, bounds strategy.ParamBounds, objective Objective) (OptimizationResult, error) {
	if factory == nil {
		return OptimizationResult{}, fmt.Errorf("optimize: factory 不能为空")
	}
	if len(bounds) == 0 {
		return OptimizationResult{}, fmt.Errorf("optimize: %s 缺少参数范围", strategyName)
	}
	for name, b := range bounds {
		if b.Min > b.Max {
			return OptimizationResult{}, fmt.Errorf("optimize: %s.%s 范围非法: min=%v > max=%v", strategyName, name, b.Min, b.Max)
		}
	}

	candles, err := o.source.History(ctx, market.HistoryRequest{Code: code, Days: o.days})
	if err != nil {
		return OptimizationResult{}, fmt.Errorf("optimize: 拉取 %s 历史数据失败: %w", code, err)
	}

	names := bounds.Names()
	rng := rand.New(rand.NewSource(o.pairSeed(strategyName, code)))

	logger.Infof("[optimize] %s/%s 开始寻优: 目标=%s 迭代=%d 预热=%d",
		strategyName, code, objective, o.iterations, o.warmStart)

	history := make([]Trial, 0, o.warmStart+o.iterations)
	evaluate := func(point strategy.Params) Trial {
		resolved := resolveParams(point)
		score := o.scoreTrial(factory, resolved, code, candles, objective)
		trial := Trial{Params: resolved, Score: score}
		history = append(history, trial)
		return trial
	}

	// 预热：纯随机探索
	for i := 0; i < o.warmStart; i++ {
		evaluate(samplePoint(rng, names, bounds))
	}
	// 引导：代理模型在候选池上取 argmax
	for i := 0; i < o.iterations; i++ {
		evaluate(o.nextCandidate(rng, names, bounds, history))
	}

	best := history[0]
	for _, trial := range history[1:] {
		if trial.Score > best.Score {
			best = trial
		}
	}

	// 用最优参数重新回测一遍作为报告结果
	final := o.runBacktest(factory, best.Params, code, candles)

	logger.Infof("[optimize] %s/%s 完成: best_score=%.4f params=%v",
		strategyName, code, best.Score, best.Params)
	return OptimizationResult{
		StrategyName: strategyName,
		Code:         code,
		Objective:    string(objective),
		BestParams:   best.Params,
		BestScore:    best.Score,
		Final:        final,
		History:      history,
	}, nil
}

// nextCandidate 采一池候选点，按代理模型打分取最高者。
// 代理 = 反距离加权的历史得分均值 + kappa×最近历史距离（探索加成）。
func (o *Optimizer) nextCandidate(rng *rand.Rand, names []string, bounds strategy.ParamBounds, history []Trial) strategy.Params {
	var best strategy.Params
	bestScore := math.Inf(-1)
	for i := 0; i < o.candidatePool; i++ {
		cand := samplePoint(rng, names, bounds)
		score := o.acquisition(cand, names, bounds, history)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

func (o *Optimizer) acquisition(cand strategy.Params, names []string, bounds strategy.ParamBounds, history []Trial) float64 {
	const eps = 1e-6
	var weightSum, weighted float64
	minDist := math.Inf(1)
	for _, trial := range history {
		d := normalizedDistance(cand, trial.Params, names, bounds)
		if d < minDist {
			minDist = d
		}
		w := 1.0 / (d*d + eps)
		weightSum += w
		weighted += w * trial.Score
	}
	if weightSum == 0 {
		return 0
	}
	predicted := weighted / weightSum
	return predicted + o.kappa*minDist
}

// scoreTrial 评估一个已解析候选：建策略、跑回测、按目标计分、应用惩罚。
// 单个候选崩溃或报错只记保底分，绝不中断整次寻优。
func (o *Optimizer) scoreTrial(factory strategy.Factory, resolved strategy.Params, code string, candles []market.Candle, objective Objective) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[optimize] 候选评估崩溃 params=%v: %v", resolved, r)
			score = failedTrialScore
		}
	}()

	strat, err := factory(resolved)
	if err != nil {
		logger.Warnf("[optimize] 病态参数组合 params=%v: %v", resolved, err)
		return failedTrialScore
	}
	result := o.engine.Run(strat, code, candles, o.initialCapital)

	switch objective {
	case ObjectiveTotalReturn:
		score = result.TotalReturnPct
	case ObjectiveSharpe:
		score = result.SharpeRatio
	case ObjectiveWinRate:
		score = result.WinRatePct
	default:
		score = result.TotalReturnPct*0.4 + result.SharpeRatio*3.0 + result.WinRatePct*0.3
	}

	if result.TotalTrades < minTradesForFullScore {
		score *= thinTradesPenalty
	}
	if result.MaxDrawdownPct < maxDrawdownThreshold {
		score *= deepDrawdownPenalty
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = failedTrialScore
	}
	return score
}

func (o *Optimizer) runBacktest(factory strategy.Factory, params strategy.Params, code string, candles []market.Candle) backtest.BacktestResult {
	strat, err := factory(params)
	if err != nil {
		logger.Errorf("[optimize] 最优参数复测构造策略失败: %v", err)
		return backtest.EmptyResult("", code)
	}
	return o.engine.Run(strat, code, candles, o.initialCapital)
}
