package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Strategy       string             `json:"strategy" binding:"required"`
	Code           string             `json:"code" binding:"required"`
	Days           int                `json:"days"`
	InitialCapital int64              `json:"initial_capital"`
	Params         map[string]float64 `json:"params"`
}

// Run 表示一次回测任务及其汇总指标。
type Run struct {
	ID             string             `json:"id"`
	Strategy       string             `json:"strategy"`
	Code           string             `json:"code"`
	Status         string             `json:"status"`
	Days           int                `json:"days"`
	InitialCapital int64              `json:"initial_capital"`
	FinalEquity    int64              `json:"final_equity"`
	TotalReturnPct float64            `json:"total_return_pct"`
	WinRatePct     float64            `json:"win_rate_pct"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
	TotalTrades    int                `json:"total_trades"`
	Params         map[string]float64 `json:"params,omitempty"`
	Message        string             `json:"message,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    time.Time          `json:"completed_at,omitempty"`
}

// MarshalParams 返回参数 JSON，供落库。
func (r Run) MarshalParams() ([]byte, error) {
	if r.Params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Params)
}
