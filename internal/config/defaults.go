package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9980"
	defaultAppLogPath        = "data/logs/maru.log"
	defaultAppDataDir        = "data"
	defaultMarketSource      = "synthetic"
	defaultMarketCacheDir    = "data/candles"
	defaultMarketCacheTTL    = 48
	defaultInitialCapital    = 10_000_000
	defaultCommissionRate    = 0.00015
	defaultLookbackDays      = 90
	defaultBacktestWorkers   = 2
	defaultResultDir         = "data/backtest"
	defaultOptIterations     = 50
	defaultOptWarmStart      = 10
	defaultOptCandidatePool  = 64
	defaultOptKappa          = 2.0
	defaultOptSeed           = 42
	defaultOptObjective      = "composite"
	defaultOptWorkers        = 4
	defaultOptParamsPath     = "data/optimized/params.json"
	defaultPaperInterval     = 60
	defaultPaperStorePath    = "data/paper/maru.db"
	defaultPaperSnapshotEach = 10
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Optimizer.applyDefaults(keys)
	c.Paper.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		stringFieldDefault("market.cache_dir", &m.CacheDir, defaultMarketCacheDir),
		fieldDefault{
			key:   "market.cache_ttl_hours",
			need:  func() bool { return m.CacheTTLHours <= 0 },
			apply: func() { m.CacheTTLHours = defaultMarketCacheTTL },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.initial_capital",
			need:  func() bool { return b.InitialCapital <= 0 },
			apply: func() { b.InitialCapital = defaultInitialCapital },
		},
		fieldDefault{
			key:   "backtest.commission_rate",
			need:  func() bool { return b.CommissionRate == 0 },
			apply: func() { b.CommissionRate = defaultCommissionRate },
		},
		fieldDefault{
			key:   "backtest.lookback_days",
			need:  func() bool { return b.LookbackDays <= 0 },
			apply: func() { b.LookbackDays = defaultLookbackDays },
		},
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultBacktestWorkers },
		},
		stringFieldDefault("backtest.result_dir", &b.ResultDir, defaultResultDir),
	)
}

func (o *OptimizerConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "optimizer.iterations",
			need:  func() bool { return o.Iterations <= 0 },
			apply: func() { o.Iterations = defaultOptIterations },
		},
		fieldDefault{
			key:   "optimizer.warm_start",
			need:  func() bool { return o.WarmStart <= 0 },
			apply: func() { o.WarmStart = defaultOptWarmStart },
		},
		fieldDefault{
			key:   "optimizer.candidate_pool",
			need:  func() bool { return o.CandidatePool <= 0 },
			apply: func() { o.CandidatePool = defaultOptCandidatePool },
		},
		fieldDefault{
			key:   "optimizer.kappa",
			need:  func() bool { return o.Kappa <= 0 },
			apply: func() { o.Kappa = defaultOptKappa },
		},
		fieldDefault{
			key:   "optimizer.seed",
			need:  func() bool { return o.Seed == 0 },
			apply: func() { o.Seed = defaultOptSeed },
		},
		stringFieldDefault("optimizer.objective", &o.Objective, defaultOptObjective),
		fieldDefault{
			key:   "optimizer.max_concurrent",
			need:  func() bool { return o.MaxConcurrent <= 0 },
			apply: func() { o.MaxConcurrent = defaultOptWorkers },
		},
		stringFieldDefault("optimizer.params_path", &o.ParamsPath, defaultOptParamsPath),
	)
	o.Strategies = normalizeNameList(o.Strategies)
	o.Codes = normalizeNameList(o.Codes)
}

func (p *PaperConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "paper.interval_seconds",
			need:  func() bool { return p.IntervalSeconds <= 0 },
			apply: func() { p.IntervalSeconds = defaultPaperInterval },
		},
		stringFieldDefault("paper.store_path", &p.StorePath, defaultPaperStorePath),
		fieldDefault{
			key:   "paper.snapshot_every",
			need:  func() bool { return p.SnapshotEvery <= 0 },
			apply: func() { p.SnapshotEvery = defaultPaperSnapshotEach },
		},
	)
	p.Strategies = normalizeNameList(p.Strategies)
	p.Codes = normalizeNameList(p.Codes)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// normalizeNameList 去空白、去重，保持原有顺序。
func normalizeNameList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
