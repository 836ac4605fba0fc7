package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, s Strategy, prices []float64) []Signal {
	t.Helper()
	signals := make([]Signal, 0, len(prices))
	for _, p := range prices {
		signals = append(signals, s.Analyze(Observation{Price: p, High: p, Low: p}))
	}
	return signals
}

// 锯齿形价格序列：先跌后涨再跌，足以触发均线交叉。
func vShapePrices(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		phase := float64(i) * 0.25
		prices[i] = 50_000 + 5_000*math.Sin(phase)
	}
	return prices
}

func TestSMAWarmupHolds(t *testing.T) {
	s, err := NewSMA(nil)
	require.NoError(t, err)

	signals := feed(t, s, vShapePrices(20))
	for i, sig := range signals {
		assert.Equal(t, SignalHold, sig, "第 %d 个观测仍在热身期", i)
	}
}

func TestSMACrossoverEmitsBuyAndSell(t *testing.T) {
	s, err := NewSMA(Params{"short_window": 3, "long_window": 8})
	require.NoError(t, err)

	signals := feed(t, s, vShapePrices(80))
	var sawBuy, sawSell bool
	for _, sig := range signals {
		if sig == SignalBuy {
			sawBuy = true
		}
		if sig == SignalSell {
			sawSell = true
		}
	}
	assert.True(t, sawBuy, "正弦序列应触发金叉")
	assert.True(t, sawSell, "正弦序列应触发死叉")
}

func TestSMARejectsBadWindows(t *testing.T) {
	_, err := NewSMA(Params{"short_window": 10, "long_window": 5})
	assert.Error(t, err)
	_, err = NewSMA(Params{"short_window": 1, "long_window": 20})
	assert.Error(t, err)
}

func TestRSIExtremes(t *testing.T) {
	s, err := NewRSI(Params{"rsi_period": 5})
	require.NoError(t, err)

	// 连续下跌把 RSI 压到 0 附近
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 50_000 - float64(i)*500
	}
	signals := feed(t, s, prices)
	assert.Equal(t, SignalBuy, signals[len(signals)-1])

	// 连续上涨推到超买
	s, err = NewRSI(Params{"rsi_period": 5})
	require.NoError(t, err)
	for i := range prices {
		prices[i] = 50_000 + float64(i)*500
	}
	signals = feed(t, s, prices)
	assert.Equal(t, SignalSell, signals[len(signals)-1])
}

func TestRSIRejectsInvertedThresholds(t *testing.T) {
	_, err := NewRSI(Params{"buy_threshold": 70, "sell_threshold": 30})
	assert.Error(t, err)
}

func TestMACDCrossover(t *testing.T) {
	s, err := NewMACD(Params{"fast_period": 5, "slow_period": 12, "signal_period": 4})
	require.NoError(t, err)

	signals := feed(t, s, vShapePrices(100))
	var crossings int
	for _, sig := range signals {
		if sig != SignalHold {
			crossings++
		}
	}
	assert.Greater(t, crossings, 0, "正弦序列应多次穿越信号线")
}

func TestBollingerBandTouch(t *testing.T) {
	s, err := NewBollinger(Params{"window": 10, "num_std": 1.5})
	require.NoError(t, err)

	// 平稳后的急跌应击穿下轨
	prices := make([]float64, 0, 30)
	for i := 0; i < 15; i++ {
		prices = append(prices, 50_000+float64(i%3)*100)
	}
	prices = append(prices, 45_000)
	signals := feed(t, s, prices)
	assert.Equal(t, SignalBuy, signals[len(signals)-1])
}

func TestStochasticOversold(t *testing.T) {
	s, err := NewStochastic(Params{"k_period": 5, "d_period": 3})
	require.NoError(t, err)

	var lastSig Signal
	for i := 0; i < 30; i++ {
		p := 50_000 - float64(i)*400
		lastSig = s.Analyze(Observation{Price: p, High: p + 200, Low: p - 200})
	}
	assert.Equal(t, SignalBuy, lastSig, "持续阴跌应给出超卖买入")
}

func TestDefaultRegistryConstructsAll(t *testing.T) {
	r := DefaultRegistry()
	names := r.Names()
	assert.ElementsMatch(t, []string{"rsi", "sma", "bollinger", "macd", "stochastic"}, names)

	for _, name := range names {
		reg, ok := r.Lookup(name)
		require.True(t, ok)
		assert.NotEmpty(t, reg.DefaultBounds)

		s, err := r.New(name, nil)
		require.NoError(t, err, "默认参数必须可构造 %s", name)
		assert.Equal(t, name, s.Name())
	}

	_, err := r.New("unknown", nil)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{Name: "rsi", Factory: NewRSI}))
	assert.Error(t, r.Register(Registration{Name: "RSI", Factory: NewRSI}))
}

func TestParseBoundsOverrides(t *testing.T) {
	raw := []byte(`{"rsi": {"rsi_period": [8, 25], "buy_threshold": [15, 40]}}`)
	out, err := ParseBoundsOverrides(raw)
	require.NoError(t, err)
	require.Contains(t, out, "rsi")
	assert.Equal(t, Bounds{Min: 8, Max: 25}, out["rsi"]["rsi_period"])

	_, err = ParseBoundsOverrides([]byte(`{"rsi": {"rsi_period": [25]}}`))
	assert.Error(t, err, "少于两个元素应被 schema 拒绝")

	_, err = ParseBoundsOverrides([]byte(`{"rsi": {"rsi_period": [25, 8]}}`))
	assert.Error(t, err, "min > max 应报错")

	_, err = ParseBoundsOverrides([]byte(`{"rsi": "oops"}`))
	assert.Error(t, err)

	out, err = ParseBoundsOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParamsDefaults(t *testing.T) {
	var p Params
	assert.Equal(t, 5, p.intValue("short_window", 5))
	p = Params{"short_window": 7.2}
	assert.Equal(t, 7, p.intValue("short_window", 5))
}
