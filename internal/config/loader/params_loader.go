package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"maru/internal/logger"
	"maru/internal/strategy"
)

// ChangeListener 在参数快照变化后收到新快照。
type ChangeListener = func(map[string]strategy.Params)

// ParamsLoader 监听优化器写出的最优参数快照文件，
// 解析成 策略名 -> 超参 的映射并热加载给模拟盘。
// 文件不存在时以空快照起步，出现后自动接上。
type ParamsLoader struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	snapshot  map[string]strategy.Params
	listeners []ChangeListener

	done chan struct{}
}

func NewParamsLoader(path string) (*ParamsLoader, error) {
	if path == "" {
		return nil, fmt.Errorf("params loader: 路径不能为空")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// 监听目录而非文件：快照以临时文件写入后 rename，监听文件会丢事件
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	l := &ParamsLoader{
		path:     filepath.Clean(path),
		watcher:  watcher,
		snapshot: make(map[string]strategy.Params),
		done:     make(chan struct{}),
	}
	if err := l.reload(); err != nil {
		logger.Warnf("[params] 初始加载失败（等待优化器产出）: %v", err)
	}
	go l.watchLoop()
	return l, nil
}

func (l *ParamsLoader) watchLoop() {
	for {
		select {
		case evt, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != l.path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if err := l.reload(); err != nil {
				logger.Errorf("[params] 重载 %s 失败: %v", l.path, err)
				continue
			}
			l.notify()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logger.Errorf("[params] watcher 错误: %v", err)
		case <-l.done:
			return
		}
	}
}

// reload 解析快照文件。顶层是 策略名 -> {超参名: 数值}。
func (l *ParamsLoader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("快照不是合法 JSON")
	}
	next := make(map[string]strategy.Params)
	gjson.ParseBytes(data).ForEach(func(name, params gjson.Result) bool {
		if !params.IsObject() {
			return true
		}
		p := make(strategy.Params)
		params.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Number {
				p[key.String()] = value.Float()
			}
			return true
		})
		if len(p) > 0 {
			next[name.String()] = p
		}
		return true
	})

	l.mu.Lock()
	l.snapshot = next
	l.mu.Unlock()
	logger.Infof("[params] 已加载 %d 个策略的优化参数", len(next))
	return nil
}

// Params 返回某策略当前生效的优化参数；没有时返回 nil（走默认值）。
func (l *ParamsLoader) Params(strategyName string) strategy.Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.snapshot[strategyName]
	if !ok {
		return nil
	}
	out := make(strategy.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Snapshot 返回全部策略参数的深拷贝。
func (l *ParamsLoader) Snapshot() map[string]strategy.Params {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]strategy.Params, len(l.snapshot))
	for name, p := range l.snapshot {
		cp := make(strategy.Params, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// Subscribe 注册变更监听，立即推送一次当前快照。
func (l *ParamsLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go fn(cloneSnapshot(snap))
}

func (l *ParamsLoader) notify() {
	l.mu.RLock()
	listeners := append([]ChangeListener(nil), l.listeners...)
	snap := cloneSnapshot(l.snapshot)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go fn(snap)
	}
}

func cloneSnapshot(in map[string]strategy.Params) map[string]strategy.Params {
	out := make(map[string]strategy.Params, len(in))
	for name, p := range in {
		cp := make(strategy.Params, len(p))
		for k, v := range p {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// Close 停止监听。
func (l *ParamsLoader) Close() error {
	close(l.done)
	return l.watcher.Close()
}
