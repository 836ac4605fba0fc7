package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("005930"))
	assert.True(t, ValidCode("000660"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("5930"))
	assert.False(t, ValidCode("00593A"))
	assert.False(t, ValidCode("0059301"))
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	src := NewSyntheticSource()
	ctx := context.Background()

	a, err := src.History(ctx, HistoryRequest{Code: "005930", Days: 60})
	require.NoError(t, err)
	b, err := src.History(ctx, HistoryRequest{Code: "005930", Days: 60})
	require.NoError(t, err)
	require.Len(t, a, 60)
	assert.Equal(t, a, b)

	other, err := src.History(ctx, HistoryRequest{Code: "000660", Days: 60})
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Close, other[0].Close)

	for i, c := range a {
		assert.GreaterOrEqual(t, c.High, c.Close, "candle %d", i)
		assert.GreaterOrEqual(t, c.High, c.Open, "candle %d", i)
		assert.LessOrEqual(t, c.Low, c.Close, "candle %d", i)
		assert.LessOrEqual(t, c.Low, c.Open, "candle %d", i)
		if i > 0 {
			assert.Greater(t, c.OpenTime, a[i-1].OpenTime)
		}
	}
}

func TestSyntheticSourceEmptyRequest(t *testing.T) {
	src := NewSyntheticSource()
	candles, err := src.History(context.Background(), HistoryRequest{Code: "005930", Days: 0})
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestSyntheticQuotesWalk(t *testing.T) {
	q := NewSyntheticQuotes(70000)
	ctx := context.Background()

	prev, err := q.ReferencePrice(ctx, "005930")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		px, err := q.ReferencePrice(ctx, "005930")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, px, int64(1))
		diff := px - prev
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int64(500))
		prev = px
	}
}

func TestStoreRoundTrip(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	src := NewSyntheticSource()
	candles, err := src.History(ctx, HistoryRequest{Code: "005930", Days: 30})
	require.NoError(t, err)

	n, err := st.InsertCandles(ctx, "005930", candles)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	// 重复写入走 upsert，总量不变
	_, err = st.InsertCandles(ctx, "005930", candles[25:])
	require.NoError(t, err)
	count, err := st.Count(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, int64(30), count)

	got, err := st.RecentCandles(ctx, "005930", 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, candles[20:], got)

	_, err = st.InsertCandles(ctx, "bad code", candles)
	assert.Error(t, err)
}

func TestCachedSourceHitsCacheWhenFresh(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	inner := &countingSource{inner: NewSyntheticSource()}
	cached, err := NewCachedSource(st, inner)
	require.NoError(t, err)

	ctx := context.Background()
	req := HistoryRequest{Code: "005930", Days: 30}

	first, err := cached.History(ctx, req)
	require.NoError(t, err)
	require.Len(t, first, 30)
	assert.Equal(t, 1, inner.calls)

	// 合成日线覆盖到今天，缓存视为新鲜，第二次不再回源
	second, err := cached.History(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	// 要求更多天数时缓存不足，再次回源
	_, err = cached.History(ctx, HistoryRequest{Code: "005930", Days: 60})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

type countingSource struct {
	inner HistorySource
	calls int
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) History(ctx context.Context, req HistoryRequest) ([]Candle, error) {
	c.calls++
	return c.inner.History(ctx, req)
}
