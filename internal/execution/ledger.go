package execution

import (
	"fmt"

	"maru/internal/logger"

	"github.com/shopspring/decimal"
)

const DefaultInitialCash int64 = 10_000_000

// Ledger 是模拟盘的记账引擎：持有现金与持仓，按校验过的委托逐笔更新。
// 加权平均成本记账，不做 FIFO/LIFO 批次跟踪。每个回测/模拟会话独占一个实例，
// 内部不加锁。
type Ledger struct {
	initialCash int64
	cash        int64
	positions   map[string]*Position
	prices      map[string]int64
	fills       []Fill
}

func NewLedger(initialCash int64) *Ledger {
	if initialCash <= 0 {
		initialCash = DefaultInitialCash
	}
	return &Ledger{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*Position),
		prices:      make(map[string]int64),
	}
}

// UpdatePrice 更新标的最新价，用于市值与市价单定价。
func (l *Ledger) UpdatePrice(code string, price int64) {
	if price <= 0 {
		return
	}
	l.prices[code] = price
	if pos, ok := l.positions[code]; ok {
		pos.LastPrice = price
	}
}

// Apply 将一笔委托作用到账户上。refPrice 用于市价单定价；
// 拒绝时不产生任何状态变化。
func (l *Ledger) Apply(order Order, refPrice int64) Fill {
	if reason, ok := validateOrder(order); !ok {
		return l.record(rejected(order, 0, reason))
	}
	if refPrice <= 0 {
		refPrice = l.prices[order.Code]
	}
	execPrice := order.Price
	if execPrice == 0 {
		execPrice = refPrice
	}
	if execPrice <= 0 {
		return l.record(rejected(order, 0, ReasonNoReferencePrice))
	}

	switch order.Side {
	case SideBuy:
		return l.record(l.applyBuy(order, execPrice, refPrice))
	default:
		return l.record(l.applySell(order, execPrice, refPrice))
	}
}

func (l *Ledger) applyBuy(order Order, execPrice, refPrice int64) Fill {
	cost := execPrice * order.Quantity
	if cost > l.cash {
		logger.Warnf("[ledger] 资金不足: 需要 %d，现有 %d", cost, l.cash)
		return rejected(order, execPrice, ReasonInsufficientFunds)
	}
	l.cash -= cost

	pos, ok := l.positions[order.Code]
	if !ok {
		pos = &Position{Code: order.Code}
		l.positions[order.Code] = pos
	}
	if pos.Quantity > 0 {
		pos.AvgPrice = weightedAvg(pos.Quantity, pos.AvgPrice, order.Quantity, execPrice)
		pos.Quantity += order.Quantity
	} else {
		pos.Quantity = order.Quantity
		pos.AvgPrice = execPrice
	}
	pos.LastPrice = markPrice(refPrice, execPrice)
	l.prices[order.Code] = pos.LastPrice

	logger.Debugf("[ledger] 买入成交: %s %d股 @ %d", order.Code, order.Quantity, execPrice)
	return Fill{Order: order, Status: FillStatusFilled, ExecPrice: execPrice}
}

func (l *Ledger) applySell(order Order, execPrice, refPrice int64) Fill {
	pos, ok := l.positions[order.Code]
	if !ok || pos.Quantity < order.Quantity {
		have := int64(0)
		if ok {
			have = pos.Quantity
		}
		logger.Warnf("[ledger] 持仓不足: 持有 %d，欲卖 %d", have, order.Quantity)
		return rejected(order, execPrice, ReasonInsufficientPosition)
	}

	proceeds := execPrice * order.Quantity
	realized := (execPrice - pos.AvgPrice) * order.Quantity
	l.cash += proceeds
	pos.Quantity -= order.Quantity
	pos.LastPrice = markPrice(refPrice, execPrice)
	l.prices[order.Code] = pos.LastPrice
	if pos.Quantity == 0 {
		pos.AvgPrice = 0
		delete(l.positions, order.Code)
	}

	logger.Debugf("[ledger] 卖出成交: %s %d股 @ %d (盈亏 %d)", order.Code, order.Quantity, execPrice, realized)
	return Fill{Order: order, Status: FillStatusFilled, ExecPrice: execPrice, RealizedPnL: realized}
}

// ApplyCommission 从现金中扣减手续费。手续费由调用方（回测驱动）显式计提，
// 不混进买卖本身的记账。
func (l *Ledger) ApplyCommission(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("手续费不能为负: %d", amount)
	}
	if amount > l.cash {
		return fmt.Errorf("手续费 %d 超过现金 %d", amount, l.cash)
	}
	l.cash -= amount
	return nil
}

func (l *Ledger) record(f Fill) Fill {
	l.fills = append(l.fills, f)
	return f
}

// Cash 返回当前现金。
func (l *Ledger) Cash() int64 { return l.cash }

// Position 返回某标的持仓（值拷贝）。
func (l *Ledger) Position(code string) (Position, bool) {
	pos, ok := l.positions[code]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot 返回账户只读快照，调用方修改它不影响账本。
func (l *Ledger) Snapshot() AccountState {
	positions := make(map[string]Position, len(l.positions))
	for code, pos := range l.positions {
		positions[code] = *pos
	}
	return AccountState{
		InitialCash: l.initialCash,
		Cash:        l.cash,
		Positions:   positions,
	}
}

// Balance 汇总账户概要。
func (l *Ledger) Balance() Balance {
	stockValue := int64(0)
	for _, pos := range l.positions {
		stockValue += pos.MarketValue()
	}
	total := l.cash + stockValue
	pl := total - l.initialCash
	rate := 0.0
	if l.initialCash > 0 {
		rate = float64(pl) / float64(l.initialCash) * 100
	}
	return Balance{
		TotalAsset:     total,
		Cash:           l.cash,
		StockValue:     stockValue,
		ProfitLoss:     pl,
		ProfitLossRate: rate,
	}
}

// Fills 返回全部委托记录。
func (l *Ledger) Fills() []Fill {
	return append([]Fill(nil), l.fills...)
}

// Reset 清空账户并重置初始资金（<=0 时沿用原值）。
func (l *Ledger) Reset(initialCash int64) {
	if initialCash > 0 {
		l.initialCash = initialCash
	}
	l.cash = l.initialCash
	l.positions = make(map[string]*Position)
	l.prices = make(map[string]int64)
	l.fills = nil
}

// weightedAvg 求加权平均成本，四舍五入到整数韩元。
func weightedAvg(oldQty, oldAvg, addQty, addPrice int64) int64 {
	total := decimal.NewFromInt(oldQty*oldAvg + addQty*addPrice)
	return total.Div(decimal.NewFromInt(oldQty + addQty)).Round(0).IntPart()
}

func markPrice(refPrice, execPrice int64) int64 {
	if refPrice > 0 {
		return refPrice
	}
	return execPrice
}
