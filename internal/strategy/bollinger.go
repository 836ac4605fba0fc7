package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"maru/internal/logger"
)

// BollingerStrategy 布林带均值回归策略：价格触及下轨买入，触及上轨卖出。
type BollingerStrategy struct {
	window     int
	numStd     float64
	minPeriods int

	buf seriesBuffer
}

// NewBollinger 构造布林带策略，默认 20 期、2 倍标准差。
func NewBollinger(params Params) (Strategy, error) {
	b := &BollingerStrategy{
		window: params.intValue("window", 20),
		numStd: params.value("num_std", 2.0),
	}
	if b.window < 2 {
		return nil, fmt.Errorf("bollinger: window 过小: %d", b.window)
	}
	if b.numStd <= 0 {
		return nil, fmt.Errorf("bollinger: num_std 必须为正: %.2f", b.numStd)
	}
	b.minPeriods = b.window + 1
	return b, nil
}

func (b *BollingerStrategy) Name() string { return "bollinger" }

func (b *BollingerStrategy) Analyze(obs Observation) Signal {
	b.buf.push(obs)
	if b.buf.size() < b.minPeriods {
		return SignalHold
	}

	upper, _, lower := talib.BBands(b.buf.closes, b.window, b.numStd, b.numStd, talib.SMA)
	switch {
	case obs.Price <= last(lower):
		logger.Infof("[bollinger] 触及下轨 price=%.0f lower=%.2f", obs.Price, last(lower))
		return SignalBuy
	case obs.Price >= last(upper):
		logger.Infof("[bollinger] 触及上轨 price=%.0f upper=%.2f", obs.Price, last(upper))
		return SignalSell
	}
	return SignalHold
}
