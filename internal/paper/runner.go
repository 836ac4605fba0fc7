package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"maru/internal/execution"
	"maru/internal/logger"
	"maru/internal/market"
	"maru/internal/store"
	"maru/internal/strategy"
)

// ParamsProvider 提供各策略当前生效的超参。实现方是热加载器，
// 也可以为 nil（全部走默认超参）。
type ParamsProvider interface {
	Params(strategyName string) strategy.Params
	Subscribe(fn func(map[string]strategy.Params))
}

// Config 是模拟盘循环的运行配置。
type Config struct {
	Interval      time.Duration
	Strategies    []string
	Codes         []string
	InitialCash   int64
	SnapshotEvery int
}

// book 是一个策略的独立台账：自己的账本、自己的路由、
// 按标的各一份指标状态。策略之间互不影响。
type book struct {
	name      string
	factory   strategy.Factory
	params    strategy.Params
	ledger    *execution.Ledger
	router    *execution.Router
	instances map[string]strategy.Strategy
}

func (b *book) instance(code string) (strategy.Strategy, error) {
	if inst, ok := b.instances[code]; ok {
		return inst, nil
	}
	inst, err := b.factory(b.params)
	if err != nil {
		return nil, err
	}
	b.instances[code] = inst
	return inst, nil
}

// Runner 按固定节拍把行情喂给每个策略，并把虚拟成交落库。
// 每个策略独立持有账本，便于横向比较净值曲线。
type Runner struct {
	cfg      Config
	registry *strategy.Registry
	quotes   market.QuoteSource
	trades   *store.Store
	params   ParamsProvider

	mu    sync.Mutex
	books map[string]*book
	ticks int
}

func NewRunner(cfg Config, registry *strategy.Registry, quotes market.QuoteSource, trades *store.Store, params ParamsProvider) (*Runner, error) {
	if registry == nil {
		return nil, fmt.Errorf("paper 需要策略注册表")
	}
	if quotes == nil {
		return nil, fmt.Errorf("paper 需要行情源")
	}
	if len(cfg.Codes) == 0 {
		return nil, fmt.Errorf("paper 需要至少一个标的代码")
	}
	for _, code := range cfg.Codes {
		if !market.ValidCode(code) {
			return nil, fmt.Errorf("非法标的代码: %s", code)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = execution.DefaultInitialCash
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 10
	}
	names := cfg.Strategies
	if len(names) == 0 {
		names = registry.Names()
	}

	r := &Runner{
		cfg:      cfg,
		registry: registry,
		quotes:   quotes,
		trades:   trades,
		params:   params,
		books:    make(map[string]*book, len(names)),
	}
	for _, name := range names {
		reg, ok := registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("未注册的策略: %s", name)
		}
		ledger := execution.NewLedger(cfg.InitialCash)
		// 委托总是带着当拍报价下限价单，路由层无需再取参考价。
		router, err := execution.NewRouter(execution.RouterConfig{
			Mode:   execution.ModePaper,
			Ledger: ledger,
		})
		if err != nil {
			return nil, err
		}
		r.books[reg.Name] = &book{
			name:      reg.Name,
			factory:   reg.Factory,
			params:    r.lookupParams(reg.Name),
			ledger:    ledger,
			router:    router,
			instances: make(map[string]strategy.Strategy),
		}
	}
	if params != nil {
		params.Subscribe(r.onParamsChange)
	}
	return r, nil
}

func (r *Runner) lookupParams(name string) strategy.Params {
	if r.params == nil {
		return nil
	}
	return r.params.Params(name)
}

// onParamsChange 在优化快照更新后重建指标状态。账本保持不动：
// 换参数不等于换账户。
func (r *Runner) onParamsChange(snapshot map[string]strategy.Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, b := range r.books {
		params, ok := snapshot[name]
		if !ok {
			continue
		}
		b.params = params
		b.instances = make(map[string]strategy.Strategy)
		logger.Infof("[paper] 策略 %s 超参已热更新: %v", name, params)
	}
}

// Run 驱动模拟循环直到 ctx 取消。启动时立即跑一拍，之后按间隔推进。
func (r *Runner) Run(ctx context.Context) error {
	logger.Infof("[paper] 模拟盘启动: strategies=%d codes=%v interval=%s",
		len(r.books), r.cfg.Codes, r.cfg.Interval)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[paper] 模拟盘停止")
			return ctx.Err()
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step 执行一个节拍：逐标的取价、逐策略分析并派单。
// 单个标的报价失败只跳过该标的，不中断整拍。
func (r *Runner) Step(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, code := range r.cfg.Codes {
		price, err := r.quotes.ReferencePrice(ctx, code)
		if err != nil {
			logger.Warnf("[paper] 获取 %s 报价失败: %v", code, err)
			continue
		}
		for _, b := range r.books {
			b.ledger.UpdatePrice(code, price)
			r.step(ctx, b, code, price)
		}
	}

	r.ticks++
	if r.ticks%r.cfg.SnapshotEvery == 0 {
		r.snapshotAll(ctx)
	}
}

func (r *Runner) step(ctx context.Context, b *book, code string, price int64) {
	inst, err := b.instance(code)
	if err != nil {
		logger.Errorf("[paper] 构造策略 %s 失败: %v", b.name, err)
		return
	}
	signal := inst.Analyze(strategy.Observation{Price: float64(price)})

	var side execution.Side
	switch signal {
	case strategy.SignalBuy:
		side = execution.SideBuy
	case strategy.SignalSell:
		side = execution.SideSell
	default:
		return
	}
	if side == execution.SideSell {
		if pos, ok := b.ledger.Position(code); !ok || pos.Quantity < 1 {
			return
		}
	}

	order := execution.Order{Code: code, Side: side, Price: price, Quantity: 1}
	fill, err := b.router.Place(ctx, order)
	if err != nil {
		logger.Errorf("[paper] [%s] 下单失败 %s %s: %v", b.name, side, code, err)
		return
	}
	if fill.Rejected() {
		logger.Warnf("[paper] [%s] 委托被拒 %s %s: %s", b.name, side, code, fill.Reason)
	} else {
		logger.Infof("[paper] [%s] %s %s @ %d (数量: %d)", b.name, side, code, fill.ExecPrice, order.Quantity)
	}
	r.persistFill(ctx, b.name, fill)
}

func (r *Runner) persistFill(ctx context.Context, strategyName string, fill execution.Fill) {
	if r.trades == nil {
		return
	}
	trade := &store.TradeModel{
		OrderID:  uuid.NewString(),
		Strategy: strategyName,
		Code:     fill.Order.Code,
		Side:     string(fill.Order.Side),
		Price:    fill.ExecPrice,
		Quantity: fill.Order.Quantity,
		Status:   string(fill.Status),
		Reason:   fill.Reason,
		PnL:      fill.RealizedPnL,
	}
	if err := r.trades.InsertTrade(ctx, trade); err != nil {
		logger.Errorf("[paper] 虚拟成交落库失败: %v", err)
	}
}

func (r *Runner) snapshotAll(ctx context.Context) {
	if r.trades == nil {
		return
	}
	for _, b := range r.books {
		bal := b.ledger.Balance()
		snap := &store.AccountSnapshotModel{
			Strategy:       b.name,
			TotalAsset:     bal.TotalAsset,
			Cash:           bal.Cash,
			StockValue:     bal.StockValue,
			ProfitLoss:     bal.ProfitLoss,
			ProfitLossRate: bal.ProfitLossRate,
		}
		if err := r.trades.InsertSnapshot(ctx, snap); err != nil {
			logger.Errorf("[paper] 账户快照落库失败: %v", err)
		}
	}
}

// Balances 返回各策略当前账户概要，按策略名索引。
func (r *Runner) Balances() map[string]execution.Balance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]execution.Balance, len(r.books))
	for name, b := range r.books {
		out[name] = b.ledger.Balance()
	}
	return out
}
