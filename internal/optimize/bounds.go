package optimize

import (
	"math"
	"math/rand"
	"strings"

	"maru/internal/strategy"
)

// discreteParam 判断超参是否表示离散计数（周期/窗口类），
// 这类参数在进入策略工厂和落入历史前都要取整。
func discreteParam(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "period") || strings.Contains(lower, "window")
}

// resolveParams 对离散超参做最近取整。取整是幂等的：
// 对已取整的值再取整是恒等操作。
func resolveParams(params strategy.Params) strategy.Params {
	out := make(strategy.Params, len(params))
	for name, v := range params {
		if discreteParam(name) {
			out[name] = math.Round(v)
		} else {
			out[name] = v
		}
	}
	return out
}

// samplePoint 在范围内均匀采一个点。遍历顺序固定为排序后的超参名，
// 保证同一随机种子得到同一序列。
func samplePoint(rng *rand.Rand, names []string, bounds strategy.ParamBounds) strategy.Params {
	p := make(strategy.Params, len(names))
	for _, name := range names {
		b := bounds[name]
		p[name] = b.Min + rng.Float64()*(b.Max-b.Min)
	}
	return p
}

// normalizedDistance 计算两组参数在各维归一化后的欧氏距离。
func normalizedDistance(a, b strategy.Params, names []string, bounds strategy.ParamBounds) float64 {
	var sum float64
	for _, name := range names {
		span := bounds[name].Max - bounds[name].Min
		if span <= 0 {
			continue
		}
		d := (a[name] - b[name]) / span
		sum += d * d
	}
	return math.Sqrt(sum)
}
