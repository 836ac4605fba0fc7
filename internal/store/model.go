package store

import (
	"gorm.io/datatypes"
)

// TradeModel 记录模拟盘/实盘的每笔委托流水。
type TradeModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	OrderID   string `gorm:"column:order_id;uniqueIndex"`
	Strategy  string `gorm:"column:strategy;index"`
	Code      string `gorm:"column:code;index"`
	Side      string `gorm:"column:side"`
	Price     int64  `gorm:"column:price"`
	Quantity  int64  `gorm:"column:quantity"`
	Status    string `gorm:"column:status"`
	Reason    string `gorm:"column:reason"`
	PnL       int64  `gorm:"column:pnl"`
	CreatedAt int64  `gorm:"column:created_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

// AccountSnapshotModel 是模拟盘账户的定期快照。
type AccountSnapshotModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	Strategy       string  `gorm:"column:strategy;index"`
	TotalAsset     int64   `gorm:"column:total_asset"`
	Cash           int64   `gorm:"column:cash"`
	StockValue     int64   `gorm:"column:stock_value"`
	ProfitLoss     int64   `gorm:"column:profit_loss"`
	ProfitLossRate float64 `gorm:"column:profit_loss_rate"`
	CreatedAt      int64   `gorm:"column:created_at;index"`
}

func (AccountSnapshotModel) TableName() string { return "account_snapshots" }

// OptimizationModel 保存一次 (策略, 标的) 参数寻优的完整产出。
type OptimizationModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	BatchID     string         `gorm:"column:batch_id;index"`
	Strategy    string         `gorm:"column:strategy;uniqueIndex:idx_opt_pair,priority:1"`
	Code        string         `gorm:"column:code;uniqueIndex:idx_opt_pair,priority:2"`
	Status      string         `gorm:"column:status"`
	Objective   string         `gorm:"column:objective"`
	BestScore   float64        `gorm:"column:best_score"`
	BestParams  datatypes.JSON `gorm:"column:best_params"`
	ResultJSON  datatypes.JSON `gorm:"column:result_json"`
	HistoryJSON datatypes.JSON `gorm:"column:history_json"`
	Message     string         `gorm:"column:message"`
	CreatedAt   int64          `gorm:"column:created_at;index"`
	UpdatedAt   int64          `gorm:"column:updated_at"`
}

func (OptimizationModel) TableName() string { return "optimizations" }

const (
	OptimizationStatusDone   = "done"
	OptimizationStatusFailed = "failed"
)
