package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBuySellRoundTrip(t *testing.T) {
	l := NewLedger(10_000_000)

	fill := l.Apply(Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 10}, 70_000)
	require.Equal(t, FillStatusFilled, fill.Status)
	assert.EqualValues(t, 9_300_000, l.Cash())

	pos, ok := l.Position("005930")
	require.True(t, ok)
	assert.EqualValues(t, 10, pos.Quantity)
	assert.EqualValues(t, 70_000, pos.AvgPrice)

	fill = l.Apply(Order{Code: "005930", Side: SideSell, Price: 75_000, Quantity: 10}, 75_000)
	require.Equal(t, FillStatusFilled, fill.Status)
	assert.EqualValues(t, 10_050_000, l.Cash())
	assert.EqualValues(t, 50_000, fill.RealizedPnL)

	_, ok = l.Position("005930")
	assert.False(t, ok, "清仓后持仓应被移除")
}

func TestLedgerWeightedAverageCost(t *testing.T) {
	l := NewLedger(10_000_000)

	l.Apply(Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 10}, 70_000)
	l.Apply(Order{Code: "005930", Side: SideBuy, Price: 72_000, Quantity: 5}, 72_000)

	pos, ok := l.Position("005930")
	require.True(t, ok)
	assert.EqualValues(t, 15, pos.Quantity)
	// (700000 + 360000) / 15 = 70666.67 -> 四舍五入
	assert.EqualValues(t, 70_667, pos.AvgPrice)
}

func TestLedgerInsufficientFunds(t *testing.T) {
	l := NewLedger(1_000)

	fill := l.Apply(Order{Code: "005930", Side: SideBuy, Price: 2_000, Quantity: 1}, 2_000)
	require.Equal(t, FillStatusRejected, fill.Status)
	assert.Equal(t, ReasonInsufficientFunds, fill.Reason)
	assert.EqualValues(t, 1_000, l.Cash())
	assert.Empty(t, l.Snapshot().Positions)
}

func TestLedgerInsufficientPosition(t *testing.T) {
	l := NewLedger(10_000_000)
	l.Apply(Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 5}, 70_000)
	before := l.Snapshot()

	fill := l.Apply(Order{Code: "005930", Side: SideSell, Price: 70_000, Quantity: 10}, 70_000)
	require.Equal(t, FillStatusRejected, fill.Status)
	assert.Equal(t, ReasonInsufficientPosition, fill.Reason)

	after := l.Snapshot()
	assert.Equal(t, before.Cash, after.Cash)
	assert.Equal(t, before.Positions, after.Positions)

	// 无持仓标的同理
	fill = l.Apply(Order{Code: "000660", Side: SideSell, Price: 100_000, Quantity: 1}, 100_000)
	assert.Equal(t, ReasonInsufficientPosition, fill.Reason)
}

func TestLedgerValidation(t *testing.T) {
	l := NewLedger(10_000_000)
	cases := []struct {
		name   string
		order  Order
		reason string
	}{
		{"负价格", Order{Code: "005930", Side: SideBuy, Price: -1, Quantity: 1}, ReasonInvalidPrice},
		{"零数量", Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 0}, ReasonInvalidQuantity},
		{"代码过短", Order{Code: "5930", Side: SideBuy, Price: 70_000, Quantity: 1}, ReasonInvalidCode},
		{"代码含字母", Order{Code: "00593A", Side: SideBuy, Price: 70_000, Quantity: 1}, ReasonInvalidCode},
		{"非法方向", Order{Code: "005930", Side: "short", Price: 70_000, Quantity: 1}, ReasonInvalidSide},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fill := l.Apply(tc.order, 70_000)
			assert.Equal(t, FillStatusRejected, fill.Status)
			assert.Equal(t, tc.reason, fill.Reason)
			assert.EqualValues(t, 10_000_000, l.Cash())
		})
	}
}

func TestLedgerMarketOrderUsesReferencePrice(t *testing.T) {
	l := NewLedger(10_000_000)

	fill := l.Apply(Order{Code: "005930", Side: SideBuy, Price: 0, Quantity: 10}, 68_000)
	require.Equal(t, FillStatusFilled, fill.Status)
	assert.EqualValues(t, 68_000, fill.ExecPrice)

	// 既无限价也无参考价：拒绝
	fill = l.Apply(Order{Code: "035420", Side: SideBuy, Price: 0, Quantity: 1}, 0)
	assert.Equal(t, FillStatusRejected, fill.Status)
	assert.Equal(t, ReasonNoReferencePrice, fill.Reason)
}

func TestLedgerEquityConservation(t *testing.T) {
	l := NewLedger(10_000_000)

	steps := []struct {
		order Order
		ref   int64
	}{
		{Order{Code: "005930", Side: SideBuy, Price: 0, Quantity: 30}, 70_000},
		{Order{Code: "000660", Side: SideBuy, Price: 0, Quantity: 10}, 120_000},
		{Order{Code: "005930", Side: SideSell, Price: 0, Quantity: 10}, 70_000},
		{Order{Code: "005930", Side: SideSell, Price: 0, Quantity: 20}, 70_000},
	}
	for _, s := range steps {
		fill := l.Apply(s.order, s.ref)
		require.Equal(t, FillStatusFilled, fill.Status)
		// 成交价与参考价一致时，成交前后总权益不变
		snap := l.Snapshot()
		assert.EqualValues(t, 10_000_000+expectedPnL(l), snap.TotalEquity())
	}
}

// expectedPnL 累加全部卖出回报的已实现盈亏。
func expectedPnL(l *Ledger) int64 {
	var sum int64
	for _, f := range l.Fills() {
		if f.Status == FillStatusFilled {
			sum += f.RealizedPnL
		}
	}
	return sum
}

func TestLedgerCommission(t *testing.T) {
	l := NewLedger(1_000_000)
	require.NoError(t, l.ApplyCommission(150))
	assert.EqualValues(t, 999_850, l.Cash())
	assert.Error(t, l.ApplyCommission(-1))
	assert.Error(t, l.ApplyCommission(2_000_000))
}

func TestLedgerSnapshotIsCopy(t *testing.T) {
	l := NewLedger(10_000_000)
	l.Apply(Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 10}, 70_000)

	snap := l.Snapshot()
	snap.Positions["005930"] = Position{Code: "005930", Quantity: 999}
	snap.Cash = 0

	pos, _ := l.Position("005930")
	assert.EqualValues(t, 10, pos.Quantity)
	assert.EqualValues(t, 9_300_000, l.Cash())
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger(10_000_000)
	l.Apply(Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 10}, 70_000)
	l.Reset(5_000_000)

	assert.EqualValues(t, 5_000_000, l.Cash())
	assert.Empty(t, l.Snapshot().Positions)
	assert.Empty(t, l.Fills())
}

type stubBroker struct {
	fails int
	calls int
}

func (b *stubBroker) ReferencePrice(context.Context, string) (int64, error) { return 70_000, nil }

func (b *stubBroker) SubmitOrder(_ context.Context, order Order) (Fill, error) {
	b.calls++
	if b.calls <= b.fails {
		return Fill{}, errors.New("temporarily unavailable")
	}
	return Fill{Order: order, Status: FillStatusFilled, ExecPrice: 70_000}, nil
}

func TestRouterPaperMode(t *testing.T) {
	ledger := NewLedger(10_000_000)
	router, err := NewRouter(RouterConfig{Mode: ModePaper, Ledger: ledger})
	require.NoError(t, err)

	fill, err := router.Place(context.Background(), Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, FillStatusFilled, fill.Status)
	assert.EqualValues(t, 9_300_000, ledger.Cash())
}

func TestRouterValidationShortCircuits(t *testing.T) {
	brk := &stubBroker{}
	router, err := NewRouter(RouterConfig{Mode: ModeLive, Broker: brk, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	fill, err := router.Place(context.Background(), Order{Code: "bad", Side: SideBuy, Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, FillStatusRejected, fill.Status)
	assert.Zero(t, brk.calls, "校验失败不应触达券商")
}

func TestRouterLiveRetries(t *testing.T) {
	brk := &stubBroker{fails: 2}
	router, err := NewRouter(RouterConfig{Mode: ModeLive, Broker: brk, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	fill, err := router.Place(context.Background(), Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, FillStatusFilled, fill.Status)
	assert.Equal(t, 3, brk.calls)

	exhausted := &stubBroker{fails: 10}
	router, err = NewRouter(RouterConfig{Mode: ModeLive, Broker: exhausted, MaxRetries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	_, err = router.Place(context.Background(), Order{Code: "005930", Side: SideBuy, Price: 70_000, Quantity: 1})
	assert.Error(t, err)
	assert.Equal(t, 2, exhausted.calls)
}
