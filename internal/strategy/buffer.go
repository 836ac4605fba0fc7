package strategy

// bufferCap 限制滚动窗口长度，指标只看最近这么多根。
const bufferCap = 100

// seriesBuffer 维护最近 bufferCap 个观测的 OHLC 序列。
type seriesBuffer struct {
	closes []float64
	highs  []float64
	lows   []float64
}

func (b *seriesBuffer) push(obs Observation) {
	high, low := obs.High, obs.Low
	if high <= 0 {
		high = obs.Price
	}
	if low <= 0 {
		low = obs.Price
	}
	b.closes = append(b.closes, obs.Price)
	b.highs = append(b.highs, high)
	b.lows = append(b.lows, low)
	if len(b.closes) > bufferCap {
		b.closes = b.closes[:copy(b.closes, b.closes[1:])]
		b.highs = b.highs[:copy(b.highs, b.highs[1:])]
		b.lows = b.lows[:copy(b.lows, b.lows[1:])]
	}
}

func (b *seriesBuffer) size() int { return len(b.closes) }

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
