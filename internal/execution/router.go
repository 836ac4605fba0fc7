package execution

import (
	"context"
	"fmt"
	"time"

	"maru/internal/logger"
	"maru/internal/market"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// RouterConfig 决定委托走模拟账本还是实盘券商。
type RouterConfig struct {
	Mode       string
	Ledger     *Ledger
	Broker     Broker
	Quotes     market.QuoteSource
	MaxRetries int
	RetryDelay time.Duration
}

// Router 在校验之后把委托派发到对应通道。模拟盘是纯内存同步调用；
// 实盘是阻塞网络调用，失败时在本层做有限次重试，绝不把重试塞进账本。
type Router struct {
	mode       string
	ledger     *Ledger
	broker     Broker
	quotes     market.QuoteSource
	maxRetries int
	retryDelay time.Duration
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModePaper
	}
	switch mode {
	case ModePaper:
		if cfg.Ledger == nil {
			return nil, fmt.Errorf("paper 模式需要 ledger")
		}
	case ModeLive:
		if cfg.Broker == nil {
			return nil, fmt.Errorf("live 模式需要 broker")
		}
	default:
		return nil, fmt.Errorf("未知交易模式: %s", cfg.Mode)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Router{
		mode:       mode,
		ledger:     cfg.Ledger,
		broker:     cfg.Broker,
		quotes:     cfg.Quotes,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Mode 返回当前通道。
func (r *Router) Mode() string { return r.mode }

// Place 校验并派发委托。格式错误直接返回拒绝回报，不计入重试。
func (r *Router) Place(ctx context.Context, order Order) (Fill, error) {
	if reason, ok := validateOrder(order); !ok {
		logger.Warnf("[router] 委托校验失败: %s", reason)
		return rejected(order, 0, reason), nil
	}
	if r.mode == ModePaper {
		refPrice := int64(0)
		if r.quotes != nil {
			px, err := r.quotes.ReferencePrice(ctx, order.Code)
			if err == nil {
				refPrice = px
			}
		}
		return r.ledger.Apply(order, refPrice), nil
	}
	return r.placeLive(ctx, order)
}

func (r *Router) placeLive(ctx context.Context, order Order) (Fill, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		fill, err := r.broker.SubmitOrder(ctx, order)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		logger.Warnf("[router] 实盘下单失败（第 %d/%d 次）: %v", attempt, r.maxRetries, err)
		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
	return Fill{}, fmt.Errorf("实盘下单重试 %d 次后仍失败: %w", r.maxRetries, lastErr)
}
