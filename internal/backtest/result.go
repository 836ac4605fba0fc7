package backtest

// TradeRecord 记录回测中的一笔成交（含佣金），卖出回报带已实现盈亏。
type TradeRecord struct {
	Timestamp  int64   `json:"ts"`
	Type       string  `json:"type"` // BUY/SELL
	Price      int64   `json:"price"`
	Quantity   int64   `json:"quantity"`
	Commission int64   `json:"commission"`
	Profit     int64   `json:"profit,omitempty"`
	ProfitRate float64 `json:"profit_rate,omitempty"`
}

// EquityPoint 是资金曲线上的一个采样点。
type EquityPoint struct {
	Timestamp     int64 `json:"ts"`
	Equity        int64 `json:"equity"`
	Cash          int64 `json:"cash"`
	PositionValue int64 `json:"position_value"`
}

// BacktestResult 汇总一次回测的全部产出，构造后不再修改。
type BacktestResult struct {
	StrategyName   string        `json:"strategy_name"`
	Code           string        `json:"code"`
	InitialCapital int64         `json:"initial_capital"`
	FinalEquity    int64         `json:"final_equity"`
	TotalReturnPct float64       `json:"total_return_pct"`
	TotalTrades    int           `json:"total_trades"`
	WinTrades      int           `json:"win_trades"`
	LoseTrades     int           `json:"lose_trades"`
	WinRatePct     float64       `json:"win_rate_pct"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Trades         []TradeRecord `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// EmptyResult 是空行情序列对应的规范零值结果，
// 调用方把它当作得分约等于零的正常结果处理，而不是错误。
func EmptyResult(strategyName, code string) BacktestResult {
	return BacktestResult{
		StrategyName: strategyName,
		Code:         code,
		Trades:       []TradeRecord{},
		EquityCurve:  []EquityPoint{},
	}
}
