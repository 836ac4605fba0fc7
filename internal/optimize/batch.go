package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"maru/internal/logger"
	"maru/internal/store"
	"maru/internal/strategy"
)

// PairKey 标识一个 (策略, 标的) 寻优对。
type PairKey struct {
	Strategy string `json:"strategy"`
	Code     string `json:"code"`
}

func (k PairKey) String() string { return k.Strategy + "/" + k.Code }

// BatchConfig 配置批量寻优。
type BatchConfig struct {
	Optimizer *Optimizer
	Registry  *strategy.Registry
	// Store 可选：非空时把每对结果落库。
	Store *store.Store
	// ParamsPath 可选：非空时把每个策略的最优参数写成 JSON 快照，
	// 供模拟盘热加载。
	ParamsPath    string
	Objective     Objective
	MaxConcurrent int
}

// Batch 把寻优扇出到策略 × 标的的笛卡尔积上。
// 每对相互独立：单对失败只记日志并在结果里留 nil，绝不波及兄弟对。
type Batch struct {
	optimizer  *Optimizer
	registry   *strategy.Registry
	store      *store.Store
	paramsPath string
	objective  Objective
	limit      int
}

func NewBatch(cfg BatchConfig) (*Batch, error) {
	if cfg.Optimizer == nil {
		return nil, fmt.Errorf("optimize: batch 缺少 optimizer")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("optimize: batch 缺少 strategy registry")
	}
	objective := cfg.Objective
	if objective == "" {
		objective = ObjectiveComposite
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 4
	}
	return &Batch{
		optimizer:  cfg.Optimizer,
		registry:   cfg.Registry,
		store:      cfg.Store,
		paramsPath: cfg.ParamsPath,
		objective:  objective,
		limit:      limit,
	}, nil
}

// Run 对给定策略和标的列表跑一轮批量寻优。
// boundsOverrides 按策略名覆盖默认搜索范围，可为 nil。
// 返回的 map 对每个请求过的对都有键；失败的对值为 nil。
func (b *Batch) Run(ctx context.Context, strategies, codes []string, boundsOverrides map[string]strategy.ParamBounds) (map[PairKey]*OptimizationResult, error) {
	if len(strategies) == 0 {
		strategies = b.registry.Names()
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("optimize: 标的列表不能为空")
	}

	batchID := uuid.NewString()
	results := make(map[PairKey]*OptimizationResult, len(strategies)*len(codes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)

	for _, name := range strategies {
		reg, ok := b.registry.Lookup(name)
		if !ok {
			logger.Warnf("[optimize] 跳过未知策略 %q", name)
			continue
		}
		bounds := reg.DefaultBounds
		if override, ok := boundsOverrides[reg.Name]; ok {
			bounds = override
		}
		for _, code := range codes {
			key := PairKey{Strategy: reg.Name, Code: code}
			factory := reg.Factory
			pairBounds := bounds.Clone()
			g.Go(func() error {
				result := b.runPair(gctx, batchID, key, factory, pairBounds)
				mu.Lock()
				results[key] = result
				mu.Unlock()
				// 单对失败不作为 group 错误传播
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if b.paramsPath != "" {
		if err := b.writeParamsSnapshot(ctx); err != nil {
			logger.Errorf("[optimize] 写最优参数快照失败: %v", err)
		}
	}
	return results, nil
}

// runPair 跑单个 (策略, 标的) 对，吞掉一切失败并落库。
func (b *Batch) runPair(ctx context.Context, batchID string, key PairKey, factory strategy.Factory, bounds strategy.ParamBounds) *OptimizationResult {
	result, err := b.optimizer.Optimize(ctx, factory, key.Strategy, key.Code, bounds, b.objective)
	if err != nil {
		logger.Errorf("[optimize] %s 寻优失败: %v", key, err)
		b.persistFailure(ctx, batchID, key, err)
		return nil
	}
	b.persist(ctx, batchID, key, result)
	return &result
}

func (b *Batch) persist(ctx context.Context, batchID string, key PairKey, result OptimizationResult) {
	if b.store == nil {
		return
	}
	bestParams, _ := json.Marshal(result.BestParams)
	finalJSON, _ := json.Marshal(result.Final)
	historyJSON, _ := json.Marshal(result.History)
	err := b.store.UpsertOptimization(ctx, &store.OptimizationModel{
		BatchID:     batchID,
		Strategy:    key.Strategy,
		Code:        key.Code,
		Status:      store.OptimizationStatusDone,
		Objective:   result.Objective,
		BestScore:   result.BestScore,
		BestParams:  datatypes.JSON(bestParams),
		ResultJSON:  datatypes.JSON(finalJSON),
		HistoryJSON: datatypes.JSON(historyJSON),
	})
	if err != nil {
		logger.Errorf("[optimize] %s 结果落库失败: %v", key, err)
	}
}

func (b *Batch) persistFailure(ctx context.Context, batchID string, key PairKey, cause error) {
	if b.store == nil {
		return
	}
	err := b.store.UpsertOptimization(ctx, &store.OptimizationModel{
		BatchID:  batchID,
		Strategy: key.Strategy,
		Code:     key.Code,
		Status:   store.OptimizationStatusFailed,
		Message:  cause.Error(),
	})
	if err != nil {
		logger.Errorf("[optimize] %s 失败记录落库失败: %v", key, err)
	}
}

// writeParamsSnapshot 把每个策略得分最高的参数写成 JSON 文件，
// 模拟盘的参数加载器会监听该文件并热加载。
func (b *Batch) writeParamsSnapshot(ctx context.Context) error {
	if b.store == nil {
		return fmt.Errorf("未配置 store，无法汇总最优参数")
	}
	best, err := b.store.BestParamsByStrategy(ctx)
	if err != nil {
		return err
	}
	if len(best) == 0 {
		return nil
	}
	snapshot := make(map[string]json.RawMessage, len(best))
	for name, raw := range best {
		snapshot[name] = json.RawMessage(raw)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.paramsPath), 0o755); err != nil {
		return err
	}
	tmp := b.paramsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.paramsPath); err != nil {
		return err
	}
	logger.Infof("[optimize] 最优参数快照已写入 %s", b.paramsPath)
	return nil
}
