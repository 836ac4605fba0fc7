package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"maru/internal/logger"
)

// RSIStrategy 相对强弱指标策略：RSI 跌破买入阈值视为超卖买入，
// 突破卖出阈值视为超买卖出。
type RSIStrategy struct {
	period        int
	buyThreshold  float64
	sellThreshold float64
	minPeriods    int

	buf seriesBuffer
}

// NewRSI 构造 RSI 策略，默认 14 期、阈值 30/70。
func NewRSI(params Params) (Strategy, error) {
	r := &RSIStrategy{
		period:        params.intValue("rsi_period", 14),
		buyThreshold:  params.value("buy_threshold", 30),
		sellThreshold: params.value("sell_threshold", 70),
	}
	if r.period < 2 {
		return nil, fmt.Errorf("rsi: rsi_period 过小: %d", r.period)
	}
	if r.buyThreshold >= r.sellThreshold {
		return nil, fmt.Errorf("rsi: buy_threshold(%.1f) 必须小于 sell_threshold(%.1f)", r.buyThreshold, r.sellThreshold)
	}
	r.minPeriods = r.period + 1
	return r, nil
}

func (r *RSIStrategy) Name() string { return "rsi" }

func (r *RSIStrategy) Analyze(obs Observation) Signal {
	r.buf.push(obs)
	if r.buf.size() < r.minPeriods {
		return SignalHold
	}

	rsi := last(talib.Rsi(r.buf.closes, r.period))
	switch {
	case rsi <= r.buyThreshold:
		logger.Infof("[rsi] 超卖 rsi=%.2f <= %.1f", rsi, r.buyThreshold)
		return SignalBuy
	case rsi >= r.sellThreshold:
		logger.Infof("[rsi] 超买 rsi=%.2f >= %.1f", rsi, r.sellThreshold)
		return SignalSell
	}
	return SignalHold
}
