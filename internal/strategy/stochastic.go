package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"maru/internal/logger"
)

// StochasticStrategy 随机振荡器策略：%K 和 %D 同时低于买入阈值视为超卖，
// 同时高于卖出阈值视为超买。
type StochasticStrategy struct {
	kPeriod       int
	dPeriod       int
	buyThreshold  float64
	sellThreshold float64
	minPeriods    int

	buf seriesBuffer
}

// NewStochastic 构造随机振荡器策略，默认 %K 14 期、%D 3 期、阈值 20/80。
func NewStochastic(params Params) (Strategy, error) {
	s := &StochasticStrategy{
		kPeriod:       params.intValue("k_period", 14),
		dPeriod:       params.intValue("d_period", 3),
		buyThreshold:  params.value("buy_threshold", 20),
		sellThreshold: params.value("sell_threshold", 80),
	}
	if s.kPeriod < 2 || s.dPeriod < 1 {
		return nil, fmt.Errorf("stochastic: 非法周期 k=%d d=%d", s.kPeriod, s.dPeriod)
	}
	if s.buyThreshold >= s.sellThreshold {
		return nil, fmt.Errorf("stochastic: buy_threshold(%.1f) 必须小于 sell_threshold(%.1f)", s.buyThreshold, s.sellThreshold)
	}
	s.minPeriods = s.kPeriod + s.dPeriod + 1
	return s, nil
}

func (s *StochasticStrategy) Name() string { return "stochastic" }

func (s *StochasticStrategy) Analyze(obs Observation) Signal {
	s.buf.push(obs)
	if s.buf.size() < s.minPeriods {
		return SignalHold
	}

	k, d := talib.Stoch(s.buf.highs, s.buf.lows, s.buf.closes, s.kPeriod, s.dPeriod, talib.SMA, s.dPeriod, talib.SMA)
	lastK, lastD := last(k), last(d)
	switch {
	case lastK < s.buyThreshold && lastD < s.buyThreshold:
		logger.Infof("[stochastic] 超卖 k=%.2f d=%.2f", lastK, lastD)
		return SignalBuy
	case lastK > s.sellThreshold && lastD > s.sellThreshold:
		logger.Infof("[stochastic] 超买 k=%.2f d=%.2f", lastK, lastD)
		return SignalSell
	}
	return SignalHold
}
