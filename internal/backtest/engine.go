package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"maru/internal/execution"
	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/strategy"
)

const (
	// DefaultCommissionRate 单边佣金率 0.015%。
	DefaultCommissionRate = 0.00015
	// positionCommitRatio 买入时只动用 95% 现金，规避满仓取整边缘情况。
	positionCommitRatio = 0.95
	// annualizationFactor 日线年化因子。
	annualizationFactor = 252
)

// Engine 把一段行情序列确定性地推演给一个策略实例和一本账本。
// Run 是纯函数：相同输入（含全新策略实例）必得相同结果，
// 并发回测只要各自独占策略与账本即可，无需加锁。
type Engine struct {
	commissionRate float64
}

// NewEngine 构造回测引擎；负佣金率回退到默认值，零表示免佣。
func NewEngine(commissionRate float64) *Engine {
	if commissionRate < 0 {
		commissionRate = DefaultCommissionRate
	}
	return &Engine{commissionRate: commissionRate}
}

// commissionFor 对成交额计提佣金，四舍五入到整数韩元。
func (e *Engine) commissionFor(amount int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(e.commissionRate)).
		Round(0).
		IntPart()
}

// Run 执行一次完整回测。状态机只有 FLAT/LONG 两态：
// 信号是边沿触发的单次扳机，LONG 中重复 BUY、FLAT 中重复 SELL 一律忽略，
// 否则 95% 再投资策略会在重复信号上不断缩仓。
func (e *Engine) Run(strat strategy.Strategy, code string, candles []market.Candle, initialCapital int64) BacktestResult {
	if len(candles) == 0 {
		logger.Warnf("[backtest] %s 无历史数据，返回空结果", code)
		return EmptyResult(strat.Name(), code)
	}
	if initialCapital <= 0 {
		initialCapital = execution.DefaultInitialCash
	}

	ledger := execution.NewLedger(initialCapital)
	long := false
	trades := make([]TradeRecord, 0, 16)
	curve := make([]EquityPoint, 0, len(candles))

	for _, c := range candles {
		price := int64(math.Round(c.Close))
		if price <= 0 {
			continue
		}
		signal := strat.Analyze(strategy.Observation{
			Price:  c.Close,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Volume: c.Volume,
		})

		switch {
		case signal == strategy.SignalBuy && !long && ledger.Cash() > 0:
			commit := int64(float64(ledger.Cash()) * positionCommitRatio)
			quantity := commit / price
			if quantity > 0 {
				cost := quantity * price
				commission := e.commissionFor(cost)
				if cost+commission <= ledger.Cash() {
					fill := ledger.Apply(execution.Order{
						Code: code, Side: execution.SideBuy, Price: price, Quantity: quantity,
					}, price)
					if !fill.Rejected() {
						_ = ledger.ApplyCommission(commission)
						long = true
						trades = append(trades, TradeRecord{
							Timestamp:  c.CloseTime,
							Type:       "BUY",
							Price:      price,
							Quantity:   quantity,
							Commission: commission,
						})
					}
				}
			}
		case signal == strategy.SignalSell && long:
			if rec, ok := e.liquidate(ledger, code, price, c.CloseTime); ok {
				trades = append(trades, rec)
				long = false
			}
		}

		ledger.UpdatePrice(code, price)
		snap := ledger.Snapshot()
		equity := snap.TotalEquity()
		curve = append(curve, EquityPoint{
			Timestamp:     c.CloseTime,
			Equity:        equity,
			Cash:          snap.Cash,
			PositionValue: equity - snap.Cash,
		})
	}

	// 收尾强制清仓：完成的回测不允许留有持仓。
	if long {
		lastCandle := candles[len(candles)-1]
		lastPrice := int64(math.Round(lastCandle.Close))
		if rec, ok := e.liquidate(ledger, code, lastPrice, lastCandle.CloseTime); ok {
			trades = append(trades, rec)
			long = false
		}
	}

	finalEquity := ledger.Cash()
	result := BacktestResult{
		StrategyName:   strat.Name(),
		Code:           code,
		InitialCapital: initialCapital,
		FinalEquity:    finalEquity,
		TotalReturnPct: float64(finalEquity-initialCapital) / float64(initialCapital) * 100,
		TotalTrades:    len(trades),
		MaxDrawdownPct: maxDrawdownPct(curve),
		SharpeRatio:    sharpeRatio(curve, annualizationFactor),
		Trades:         trades,
		EquityCurve:    curve,
	}

	var sells, wins int
	for _, tr := range trades {
		if tr.Type != "SELL" {
			continue
		}
		sells++
		if tr.Profit > 0 {
			wins++
		}
	}
	result.WinTrades = wins
	result.LoseTrades = sells - wins
	if sells > 0 {
		result.WinRatePct = float64(wins) / float64(sells) * 100
	}

	logger.Infof("[backtest] %s/%s 完成: 收益 %.2f%% 胜率 %.2f%% 回撤 %.2f%%",
		strat.Name(), code, result.TotalReturnPct, result.WinRatePct, result.MaxDrawdownPct)
	return result
}

// liquidate 以给定价格全量卖出并计提卖出佣金，盈亏按扣佣后口径记。
func (e *Engine) liquidate(ledger *execution.Ledger, code string, price, ts int64) (TradeRecord, bool) {
	pos, ok := ledger.Position(code)
	if !ok || pos.Quantity <= 0 || price <= 0 {
		return TradeRecord{}, false
	}
	quantity := pos.Quantity
	avgCost := pos.AvgPrice

	fill := ledger.Apply(execution.Order{
		Code: code, Side: execution.SideSell, Price: price, Quantity: quantity,
	}, price)
	if fill.Rejected() {
		return TradeRecord{}, false
	}
	commission := e.commissionFor(quantity * price)
	_ = ledger.ApplyCommission(commission)

	profit := fill.RealizedPnL - commission
	var profitRate float64
	if basis := quantity * avgCost; basis > 0 {
		profitRate = float64(profit) / float64(basis) * 100
	}
	return TradeRecord{
		Timestamp:  ts,
		Type:       "SELL",
		Price:      price,
		Quantity:   quantity,
		Commission: commission,
		Profit:     profit,
		ProfitRate: profitRate,
	}, true
}
