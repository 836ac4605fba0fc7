package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"maru/internal/logger"
)

// SMAStrategy 双均线交叉策略：短均线上穿长均线买入（金叉），
// 下穿卖出（死叉）。交叉由上一时刻的差值符号边沿触发。
type SMAStrategy struct {
	shortWindow int
	longWindow  int
	minPeriods  int

	buf      seriesBuffer
	prevDiff float64
	hasPrev  bool
}

// NewSMA 构造双均线策略，默认 5/20。
func NewSMA(params Params) (Strategy, error) {
	s := &SMAStrategy{
		shortWindow: params.intValue("short_window", 5),
		longWindow:  params.intValue("long_window", 20),
	}
	if s.shortWindow < 2 {
		return nil, fmt.Errorf("sma: short_window 过小: %d", s.shortWindow)
	}
	if s.longWindow <= s.shortWindow {
		return nil, fmt.Errorf("sma: long_window(%d) 必须大于 short_window(%d)", s.longWindow, s.shortWindow)
	}
	s.minPeriods = s.longWindow + 1
	return s, nil
}

func (s *SMAStrategy) Name() string { return "sma" }

func (s *SMAStrategy) Analyze(obs Observation) Signal {
	s.buf.push(obs)
	if s.buf.size() < s.minPeriods {
		return SignalHold
	}

	smaShort := last(talib.Sma(s.buf.closes, s.shortWindow))
	smaLong := last(talib.Sma(s.buf.closes, s.longWindow))
	diff := smaShort - smaLong

	signal := SignalHold
	if s.hasPrev {
		switch {
		case s.prevDiff < 0 && diff > 0:
			logger.Infof("[sma] 金叉 short=%.2f long=%.2f", smaShort, smaLong)
			signal = SignalBuy
		case s.prevDiff > 0 && diff < 0:
			logger.Infof("[sma] 死叉 short=%.2f long=%.2f", smaShort, smaLong)
			signal = SignalSell
		}
	}
	s.prevDiff = diff
	s.hasPrev = true
	return signal
}
