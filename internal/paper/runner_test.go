package paper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maru/internal/execution"
	"maru/internal/store"
	"maru/internal/strategy"
)

type scriptedQuotes struct {
	prices map[string][]int64
	calls  map[string]int
}

func (q *scriptedQuotes) ReferencePrice(_ context.Context, code string) (int64, error) {
	seq := q.prices[code]
	if len(seq) == 0 {
		return 70000, nil
	}
	if q.calls == nil {
		q.calls = make(map[string]int)
	}
	idx := q.calls[code]
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	q.calls[code]++
	return seq[idx], nil
}

type flipStrategy struct {
	signals []strategy.Signal
	idx     int
}

func (s *flipStrategy) Name() string { return "flip" }

func (s *flipStrategy) Analyze(strategy.Observation) strategy.Signal {
	if s.idx >= len(s.signals) {
		return strategy.SignalHold
	}
	sig := s.signals[s.idx]
	s.idx++
	return sig
}

func flipRegistry(t *testing.T, signals []strategy.Signal) *strategy.Registry {
	t.Helper()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(strategy.Registration{
		Name: "flip",
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &flipStrategy{signals: signals}, nil
		},
		DefaultBounds: strategy.ParamBounds{},
	}))
	return reg
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "paper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRunnerBuySellPersisted(t *testing.T) {
	quotes := &scriptedQuotes{prices: map[string][]int64{
		"005930": {70000, 71000, 72000},
	}}
	reg := flipRegistry(t, []strategy.Signal{strategy.SignalBuy, strategy.SignalSell})
	st := newTestStore(t)

	r, err := NewRunner(Config{
		Codes:         []string{"005930"},
		InitialCash:   1_000_000,
		SnapshotEvery: 2,
	}, reg, quotes, st, nil)
	require.NoError(t, err)

	ctx := context.Background()
	r.Step(ctx) // BUY @70000
	r.Step(ctx) // SELL @71000

	trades, err := st.RecentTrades(ctx, "flip", 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// RecentTrades 按时间倒序
	assert.Equal(t, string(execution.SideSell), trades[0].Side)
	assert.Equal(t, int64(71000), trades[0].Price)
	assert.Equal(t, int64(1000), trades[0].PnL)
	assert.Equal(t, string(execution.SideBuy), trades[1].Side)
	assert.Equal(t, int64(70000), trades[1].Price)

	bal := r.Balances()["flip"]
	assert.Equal(t, int64(1_001_000), bal.TotalAsset)
	assert.Equal(t, int64(1000), bal.ProfitLoss)

	snaps, err := st.RecentSnapshots(ctx, "flip", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1_001_000), snaps[0].TotalAsset)
}

func TestRunnerSellWithoutPositionSkipped(t *testing.T) {
	quotes := &scriptedQuotes{prices: map[string][]int64{"005930": {70000}}}
	reg := flipRegistry(t, []strategy.Signal{strategy.SignalSell, strategy.SignalSell})
	st := newTestStore(t)

	r, err := NewRunner(Config{Codes: []string{"005930"}}, reg, quotes, st, nil)
	require.NoError(t, err)

	ctx := context.Background()
	r.Step(ctx)
	r.Step(ctx)

	trades, err := st.RecentTrades(ctx, "flip", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunnerIndependentLedgers(t *testing.T) {
	quotes := &scriptedQuotes{prices: map[string][]int64{"005930": {70000}}}
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(strategy.Registration{
		Name: "buyer",
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &flipStrategy{signals: []strategy.Signal{strategy.SignalBuy}}, nil
		},
		DefaultBounds: strategy.ParamBounds{},
	}))
	require.NoError(t, reg.Register(strategy.Registration{
		Name: "holder",
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &flipStrategy{}, nil
		},
		DefaultBounds: strategy.ParamBounds{},
	}))

	r, err := NewRunner(Config{Codes: []string{"005930"}, InitialCash: 500_000}, reg, quotes, nil, nil)
	require.NoError(t, err)
	r.Step(context.Background())

	balances := r.Balances()
	assert.Equal(t, int64(430_000), balances["buyer"].Cash)
	assert.Equal(t, int64(500_000), balances["holder"].Cash)
}

func TestRunnerRejectsBadCode(t *testing.T) {
	reg := flipRegistry(t, nil)
	_, err := NewRunner(Config{Codes: []string{"abc"}}, reg, &scriptedQuotes{}, nil, nil)
	assert.Error(t, err)

	_, err = NewRunner(Config{}, reg, &scriptedQuotes{}, nil, nil)
	assert.Error(t, err)
}

func TestRunnerParamsHotReload(t *testing.T) {
	quotes := &scriptedQuotes{prices: map[string][]int64{"005930": {70000}}}
	built := make([]strategy.Params, 0, 2)
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(strategy.Registration{
		Name: "flip",
		Factory: func(p strategy.Params) (strategy.Strategy, error) {
			built = append(built, p)
			return &flipStrategy{}, nil
		},
		DefaultBounds: strategy.ParamBounds{},
	}))

	provider := &stubProvider{params: map[string]strategy.Params{"flip": {"rsi_period": 14}}}
	r, err := NewRunner(Config{Codes: []string{"005930"}}, reg, quotes, nil, provider)
	require.NoError(t, err)

	ctx := context.Background()
	r.Step(ctx)
	require.Len(t, built, 1)
	assert.Equal(t, float64(14), built[0]["rsi_period"])

	provider.push(map[string]strategy.Params{"flip": {"rsi_period": 10}})
	r.Step(ctx)
	require.Len(t, built, 2)
	assert.Equal(t, float64(10), built[1]["rsi_period"])
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	quotes := &scriptedQuotes{prices: map[string][]int64{"005930": {70000}}}
	reg := flipRegistry(t, nil)
	r, err := NewRunner(Config{Codes: []string{"005930"}, Interval: 10 * time.Millisecond}, reg, quotes, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

type stubProvider struct {
	params    map[string]strategy.Params
	listeners []func(map[string]strategy.Params)
}

func (p *stubProvider) Params(name string) strategy.Params { return p.params[name] }

func (p *stubProvider) Subscribe(fn func(map[string]strategy.Params)) {
	p.listeners = append(p.listeners, fn)
}

func (p *stubProvider) push(snapshot map[string]strategy.Params) {
	p.params = snapshot
	for _, fn := range p.listeners {
		fn(snapshot)
	}
}
