package execution

import "context"

// Broker 是实盘券商通道的抽象。网络协议、令牌续期与重连都由实现方负责，
// 本包只依赖这两个同步调用。
type Broker interface {
	ReferencePrice(ctx context.Context, code string) (int64, error)
	SubmitOrder(ctx context.Context, order Order) (Fill, error)
}
