package app

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	mcfg "maru/internal/config"
	"maru/internal/strategy"
)

// StartupSummary 是启动时打印的配置摘要，帮助快速核对生效配置。
type StartupSummary struct {
	Strategies []string
	Runtime    runtimeSummary
}

type runtimeSummary struct {
	Env            string   `yaml:"env"`
	HTTPAddr       string   `yaml:"http_addr"`
	MarketSource   string   `yaml:"market_source"`
	InitialCapital int64    `yaml:"initial_capital"`
	CommissionRate float64  `yaml:"commission_rate"`
	LookbackDays   int      `yaml:"lookback_days"`
	OptimizerIters int      `yaml:"optimizer_iterations"`
	OptimizerCodes []string `yaml:"optimizer_codes,omitempty"`
	PaperEnabled   bool     `yaml:"paper_enabled"`
	PaperCodes     []string `yaml:"paper_codes,omitempty"`
}

func buildSummary(cfg *mcfg.Config, registry *strategy.Registry) *StartupSummary {
	return &StartupSummary{
		Strategies: registry.Names(),
		Runtime: runtimeSummary{
			Env:            cfg.App.Env,
			HTTPAddr:       cfg.App.HTTPAddr,
			MarketSource:   cfg.Market.Source,
			InitialCapital: cfg.Backtest.InitialCapital,
			CommissionRate: cfg.Backtest.CommissionRate,
			LookbackDays:   cfg.Backtest.LookbackDays,
			OptimizerIters: cfg.Optimizer.Iterations,
			OptimizerCodes: cfg.Optimizer.Codes,
			PaperEnabled:   cfg.Paper.Enabled,
			PaperCodes:     cfg.Paper.Codes,
		},
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[策略 (STRATEGIES)]")
	fmt.Printf("  已注册: %s\n", formatList(s.Strategies))
	fmt.Println()

	fmt.Println("[运行配置 (RUNTIME)]")
	if out, err := yaml.Marshal(s.Runtime); err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
