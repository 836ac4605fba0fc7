package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"maru/internal/logger"
)

// MACDStrategy MACD 交叉策略：MACD 线上穿信号线买入，下穿卖出。
type MACDStrategy struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	minPeriods   int

	buf      seriesBuffer
	prevDiff float64
	hasPrev  bool
}

// NewMACD 构造 MACD 策略，默认 12/26/9。
func NewMACD(params Params) (Strategy, error) {
	m := &MACDStrategy{
		fastPeriod:   params.intValue("fast_period", 12),
		slowPeriod:   params.intValue("slow_period", 26),
		signalPeriod: params.intValue("signal_period", 9),
	}
	if m.fastPeriod < 2 || m.signalPeriod < 1 {
		return nil, fmt.Errorf("macd: 非法周期 fast=%d signal=%d", m.fastPeriod, m.signalPeriod)
	}
	if m.slowPeriod <= m.fastPeriod {
		return nil, fmt.Errorf("macd: slow_period(%d) 必须大于 fast_period(%d)", m.slowPeriod, m.fastPeriod)
	}
	m.minPeriods = m.slowPeriod + m.signalPeriod + 1
	return m, nil
}

func (m *MACDStrategy) Name() string { return "macd" }

func (m *MACDStrategy) Analyze(obs Observation) Signal {
	m.buf.push(obs)
	if m.buf.size() < m.minPeriods {
		return SignalHold
	}

	macdLine, signalLine, _ := talib.Macd(m.buf.closes, m.fastPeriod, m.slowPeriod, m.signalPeriod)
	diff := last(macdLine) - last(signalLine)

	signal := SignalHold
	if m.hasPrev {
		switch {
		case m.prevDiff < 0 && diff > 0:
			logger.Infof("[macd] 金叉 macd=%.2f signal=%.2f", last(macdLine), last(signalLine))
			signal = SignalBuy
		case m.prevDiff > 0 && diff < 0:
			logger.Infof("[macd] 死叉 macd=%.2f signal=%.2f", last(macdLine), last(signalLine))
			signal = SignalSell
		}
	}
	m.prevDiff = diff
	m.hasPrev = true
	return signal
}
