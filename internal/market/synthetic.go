package market

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SyntheticSource 基于随机游走生成日线序列。同一代码的价格序列完全可复现，
// 便于在没有真实行情的环境下做确定性回测。
type SyntheticSource struct {
	basePrice float64
	drift     float64
	vol       float64
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		basePrice: 50000,
		drift:     0.001,
		vol:       0.02,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

// History 生成 req.Days 根日线。价格只由代码推导的种子决定，时间戳对齐到当日零点。
func (s *SyntheticSource) History(_ context.Context, req HistoryRequest) ([]Candle, error) {
	if req.Days <= 0 {
		return nil, nil
	}
	rng := rand.New(rand.NewSource(codeSeed(req.Code)))
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(req.Days - 1))

	candles := make([]Candle, 0, req.Days)
	logPrice := math.Log(s.basePrice)
	for i := 0; i < req.Days; i++ {
		logPrice += rng.NormFloat64()*s.vol + s.drift
		closePx := math.Exp(logPrice)
		openPx := closePx * (1 + uniform(rng, -0.01, 0.01))
		highPx := closePx * (1 + uniform(rng, 0, 0.02))
		lowPx := closePx * (1 + uniform(rng, -0.02, 0))
		if openPx > highPx {
			highPx = openPx
		}
		if openPx < lowPx {
			lowPx = openPx
		}
		day := start.AddDate(0, 0, i)
		candles = append(candles, Candle{
			OpenTime:  day.UnixMilli(),
			CloseTime: day.Add(24*time.Hour - time.Millisecond).UnixMilli(),
			Open:      openPx,
			High:      highPx,
			Low:       lowPx,
			Close:     closePx,
			Volume:    float64(100000 + rng.Intn(900000)),
		})
	}
	return candles, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func codeSeed(code string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	return int64(h.Sum64() & math.MaxInt64)
}

// SyntheticQuotes 为模拟盘提供围绕基准价小幅波动的实时报价。
type SyntheticQuotes struct {
	mu    sync.Mutex
	last  map[string]int64
	rngs  map[string]*rand.Rand
	base  int64
	swing int64
}

func NewSyntheticQuotes(base int64) *SyntheticQuotes {
	if base <= 0 {
		base = 70000
	}
	return &SyntheticQuotes{
		last:  make(map[string]int64),
		rngs:  make(map[string]*rand.Rand),
		base:  base,
		swing: 500,
	}
}

func (q *SyntheticQuotes) ReferencePrice(_ context.Context, code string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rng, ok := q.rngs[code]
	if !ok {
		rng = rand.New(rand.NewSource(codeSeed(code)))
		q.rngs[code] = rng
		q.last[code] = q.base
	}
	px := q.last[code] + rng.Int63n(2*q.swing+1) - q.swing
	if px < 1 {
		px = 1
	}
	q.last[code] = px
	return px, nil
}
