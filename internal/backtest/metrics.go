package backtest

import "math"

// maxDrawdownPct 计算资金曲线相对滚动峰值的最大回撤（负百分比）。
// 空序列返回 0。
func maxDrawdownPct(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	var peak int64
	worst := 0.0
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := float64(pt.Equity-peak) / float64(peak) * 100
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio 用逐步收益率的样本标准差做年化夏普。
// 点数不足或标准差为零时返回 0，绝不产出 NaN/Inf。
func sharpeRatio(curve []EquityPoint, annualization float64) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := float64(curve[i-1].Equity)
		if prev == 0 {
			continue
		}
		returns = append(returns, (float64(curve[i].Equity)-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(sq / float64(len(returns)-1))
	if stdev == 0 || math.IsNaN(stdev) || math.IsInf(stdev, 0) {
		return 0
	}
	ratio := mean / stdev * math.Sqrt(annualization)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return ratio
}
