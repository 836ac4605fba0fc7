package market

import "context"

// HistoryRequest 描述一次历史日线请求。
type HistoryRequest struct {
	Code string
	Days int
}

// HistorySource 统一不同数据来源（行情存储、文件、合成数据）的读取行为。
type HistorySource interface {
	History(ctx context.Context, req HistoryRequest) ([]Candle, error)
	Name() string
}

// QuoteSource 提供单个标的的最新参考价（实时/模拟通用）。
type QuoteSource interface {
	ReferencePrice(ctx context.Context, code string) (int64, error)
}
