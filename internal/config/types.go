package config

import "strings"

// Config 是 maru 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Market     MarketConfig     `toml:"market"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Optimizer  OptimizerConfig  `toml:"optimizer"`
	Paper      PaperConfig      `toml:"paper"`
	Strategies StrategiesConfig `toml:"strategies"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	DataDir  string `toml:"data_dir"`
}

// MarketConfig 控制行情来源与本地缓存。
type MarketConfig struct {
	Source        string `toml:"source"`
	CacheDir      string `toml:"cache_dir"`
	CacheTTLHours int    `toml:"cache_ttl_hours"`
}

type BacktestConfig struct {
	InitialCapital int64   `toml:"initial_capital"`
	CommissionRate float64 `toml:"commission_rate"`
	LookbackDays   int     `toml:"lookback_days"`
	MaxConcurrent  int     `toml:"max_concurrent"`
	ResultDir      string  `toml:"result_dir"`
}

type OptimizerConfig struct {
	Iterations    int      `toml:"iterations"`
	WarmStart     int      `toml:"warm_start"`
	CandidatePool int      `toml:"candidate_pool"`
	Kappa         float64  `toml:"kappa"`
	Seed          int64    `toml:"seed"`
	Objective     string   `toml:"objective"`
	Strategies    []string `toml:"strategies"`
	Codes         []string `toml:"codes"`
	MaxConcurrent int      `toml:"max_concurrent"`
	ParamsPath    string   `toml:"params_path"`
}

// PaperConfig 控制模拟盘循环。
type PaperConfig struct {
	Enabled         bool     `toml:"enabled"`
	IntervalSeconds int      `toml:"interval_seconds"`
	Strategies      []string `toml:"strategies"`
	Codes           []string `toml:"codes"`
	StorePath       string   `toml:"store_path"`
	SnapshotEvery   int      `toml:"snapshot_every"`
}

// StrategiesConfig 承载策略超参覆盖与搜索范围覆盖。
type StrategiesConfig struct {
	// BoundsFile 指向 JSON 覆盖文件：策略名 -> 超参名 -> [min, max]。
	BoundsFile string `toml:"bounds_file"`
	// Params 静态超参覆盖，优化器产出的快照会在运行期盖过它。
	Params map[string]map[string]float64 `toml:"params"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
