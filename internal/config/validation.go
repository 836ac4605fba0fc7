package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Optimizer.validate(); err != nil {
		return err
	}
	if err := c.Paper.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(m.Source) {
	case "synthetic":
	default:
		return fmt.Errorf("market.source unsupported: %q", m.Source)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.CommissionRate < 0 {
		return fmt.Errorf("backtest.commission_rate must be >= 0")
	}
	if b.CommissionRate >= 0.1 {
		return fmt.Errorf("backtest.commission_rate suspiciously high: %v", b.CommissionRate)
	}
	if b.LookbackDays > 3650 {
		return fmt.Errorf("backtest.lookback_days too large: %d", b.LookbackDays)
	}
	return nil
}

func (o *OptimizerConfig) validate() error {
	switch o.Objective {
	case "total_return", "sharpe_ratio", "win_rate", "composite":
	default:
		return fmt.Errorf("optimizer.objective unsupported: %q", o.Objective)
	}
	if o.Iterations+o.WarmStart > 10_000 {
		return fmt.Errorf("optimizer budget too large: iterations=%d warm_start=%d", o.Iterations, o.WarmStart)
	}
	return nil
}

func (p *PaperConfig) validate() error {
	if !p.Enabled {
		return nil
	}
	if len(p.Codes) == 0 {
		return fmt.Errorf("paper.codes requires at least one instrument when paper.enabled")
	}
	return nil
}
