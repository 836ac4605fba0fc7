package strategy

// Signal 表示策略对当前观测给出的交易信号。
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Observation 是单个时刻的行情观测，回测按收盘价逐根喂入，
// 实盘按最新报价喂入（此时 High/Low 退化为 Price）。
type Observation struct {
	Price  float64
	Open   float64
	High   float64
	Low    float64
	Volume float64
}

// Strategy 消费观测序列并产出信号。实现持有自己的滚动缓冲，
// 不能在并发回测间共享实例。
type Strategy interface {
	Name() string
	Analyze(obs Observation) Signal
}

// Params 是已解析的策略超参集合，缺失的键取各策略默认值。
type Params map[string]float64

func (p Params) value(key string, def float64) float64 {
	if p == nil {
		return def
	}
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) intValue(key string, def int) int {
	return int(p.value(key, float64(def)) + 0.5)
}

// Factory 按给定超参构造一个全新的策略实例。
type Factory func(params Params) (Strategy, error)
