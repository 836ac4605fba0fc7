package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maru/internal/strategy"
)

func writeSnapshot(t *testing.T, path, content string) {
	t.Helper()
	// 和优化器一样走 tmp + rename，确保 watcher 按 rename 事件也能收到
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func newLoader(t *testing.T, path string) *ParamsLoader {
	t.Helper()
	l, err := NewParamsLoader(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParamsLoaderInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	writeSnapshot(t, path, `{"rsi": {"rsi_period": 12, "buy_threshold": 25}}`)

	l := newLoader(t, path)
	p := l.Params("rsi")
	require.NotNil(t, p)
	assert.Equal(t, 12.0, p["rsi_period"])
	assert.Equal(t, 25.0, p["buy_threshold"])
	assert.Nil(t, l.Params("sma"))
}

func TestParamsLoaderMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	l := newLoader(t, path)
	assert.Empty(t, l.Snapshot())

	writeSnapshot(t, path, `{"sma": {"short_window": 5, "long_window": 20}}`)
	waitFor(t, func() bool { return l.Params("sma") != nil })
	assert.Equal(t, 20.0, l.Params("sma")["long_window"])
}

func TestParamsLoaderHotReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	writeSnapshot(t, path, `{"rsi": {"rsi_period": 14}}`)
	l := newLoader(t, path)

	got := make(chan map[string]strategy.Params, 4)
	l.Subscribe(func(snap map[string]strategy.Params) { got <- snap })

	// 订阅先收到当前快照
	select {
	case snap := <-got:
		assert.Equal(t, 14.0, snap["rsi"]["rsi_period"])
	case <-time.After(3 * time.Second):
		t.Fatal("no initial snapshot")
	}

	writeSnapshot(t, path, `{"rsi": {"rsi_period": 10}}`)
	waitFor(t, func() bool {
		p := l.Params("rsi")
		return p != nil && p["rsi_period"] == 10.0
	})
}

func TestParamsLoaderIgnoresBadContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	writeSnapshot(t, path, `{"rsi": {"rsi_period": 14}}`)
	l := newLoader(t, path)
	require.NotNil(t, l.Params("rsi"))

	// 非法 JSON 保留旧快照
	writeSnapshot(t, path, `{not json`)
	time.Sleep(200 * time.Millisecond)
	p := l.Params("rsi")
	require.NotNil(t, p)
	assert.Equal(t, 14.0, p["rsi_period"])

	// 非数值字段被跳过
	writeSnapshot(t, path, `{"rsi": {"rsi_period": 16, "note": "tuned"}}`)
	waitFor(t, func() bool {
		p := l.Params("rsi")
		return p != nil && p["rsi_period"] == 16.0
	})
	_, ok := l.Params("rsi")["note"]
	assert.False(t, ok)
}

func TestParamsLoaderReturnsCopies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	writeSnapshot(t, path, `{"rsi": {"rsi_period": 14}}`)
	l := newLoader(t, path)

	p := l.Params("rsi")
	p["rsi_period"] = 99
	assert.Equal(t, 14.0, l.Params("rsi")["rsi_period"])
}
