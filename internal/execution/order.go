package execution

// Side 表示买卖方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order 是一笔委托。Price 为 0 表示市价单；金额一律使用整数韩元。
// 构造后不再修改。
type Order struct {
	Code     string `json:"code"`
	Side     Side   `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// FillStatus 表示委托结果。
type FillStatus string

const (
	FillStatusFilled   FillStatus = "filled"
	FillStatusRejected FillStatus = "rejected"
)

// Fill 是一次委托的审计记录：成交或拒绝，以及卖出时的已实现盈亏（未扣手续费）。
type Fill struct {
	Order       Order      `json:"order"`
	Status      FillStatus `json:"status"`
	ExecPrice   int64      `json:"exec_price"`
	RealizedPnL int64      `json:"realized_pnl,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Rejected 返回是否被拒绝。
func (f Fill) Rejected() bool { return f.Status == FillStatusRejected }

// Position 记录某标的的持仓。Quantity 为 0 时 AvgPrice 必为 0。
type Position struct {
	Code      string `json:"code"`
	Quantity  int64  `json:"quantity"`
	AvgPrice  int64  `json:"avg_price"`
	LastPrice int64  `json:"last_price"`
}

// MarketValue 返回按最新价的市值。
func (p Position) MarketValue() int64 {
	return p.Quantity * p.LastPrice
}

// AccountState 是账本的只读快照。
type AccountState struct {
	InitialCash int64               `json:"initial_cash"`
	Cash        int64               `json:"cash"`
	Positions   map[string]Position `json:"positions"`
}

// TotalEquity 返回现金加持仓市值。
func (a AccountState) TotalEquity() int64 {
	total := a.Cash
	for _, p := range a.Positions {
		total += p.MarketValue()
	}
	return total
}

// Balance 是对外展示的账户概要。
type Balance struct {
	TotalAsset     int64   `json:"total_asset"`
	Cash           int64   `json:"cash"`
	StockValue     int64   `json:"stock_value"`
	ProfitLoss     int64   `json:"profit_loss"`
	ProfitLossRate float64 `json:"profit_loss_rate"`
}
