package optimize

import (
	"maru/internal/backtest"
	"maru/internal/strategy"
)

// Trial 是一次候选参数评估：params 已完成离散取整，score 已应用惩罚。
// 历史按评估顺序只追加，从不删除或重排。
type Trial struct {
	Params strategy.Params `json:"params"`
	Score  float64         `json:"score"`
}

// OptimizationResult 是一次参数寻优的完整产出。
// Final 是用最优参数重新回测一遍的结果，避免搜索过程中的
// 浮点漂移影响最终报告。
type OptimizationResult struct {
	StrategyName string                  `json:"strategy_name"`
	Code         string                  `json:"code"`
	Objective    string                  `json:"objective"`
	BestParams   strategy.Params         `json:"best_params"`
	BestScore    float64                 `json:"best_score"`
	Final        backtest.BacktestResult `json:"backtest_result"`
	History      []Trial                 `json:"optimization_history"`
}
