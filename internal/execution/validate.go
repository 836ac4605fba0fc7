package execution

import "maru/internal/market"

// 拒绝原因。资金/持仓不足与格式错误分开：前者委托本身是合法的。
const (
	ReasonInvalidPrice         = "invalid price"
	ReasonInvalidQuantity      = "invalid quantity"
	ReasonInvalidCode          = "invalid instrument code"
	ReasonInvalidSide          = "invalid side"
	ReasonNoReferencePrice     = "no reference price"
	ReasonInsufficientFunds    = "insufficient funds"
	ReasonInsufficientPosition = "insufficient position"
)

// validateOrder 做纯格式校验，不触碰账户状态。无论模拟盘还是实盘都先过这里。
func validateOrder(o Order) (string, bool) {
	if o.Price < 0 {
		return ReasonInvalidPrice, false
	}
	if o.Quantity <= 0 {
		return ReasonInvalidQuantity, false
	}
	if !market.ValidCode(o.Code) {
		return ReasonInvalidCode, false
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ReasonInvalidSide, false
	}
	return "", true
}

// rejected 构造拒绝回报。
func rejected(o Order, execPrice int64, reason string) Fill {
	return Fill{
		Order:     o,
		Status:    FillStatusRejected,
		ExecPrice: execPrice,
		Reason:    reason,
	}
}
