// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Create 条件插入，订单已存在时返回 ErrOrderExists，不会覆盖
	Create(ctx context.Context, order *Order) error

	// FindByID 不存在时返回 ErrOrderNotFound
	FindByID(ctx context.Context, id string) (*Order, error)

	// AdvanceStatus 是一次条件更新：仅当当前状态属于 from 时迁移到 to 并写入 fields。
	// 不满足时返回 ErrTransitionRejected，订单不存在时返回 ErrOrderNotFound。
	AdvanceStatus(ctx context.Context, id string, from []State, to State, fields Fields) error
}

// ClientTokenStore 保存 (userId, clientToken) -> orderId 的映射
type ClientTokenStore interface {
	// Claim 条件写入映射。首次写入返回 ("", nil)，已存在时返回之前的 orderId
	Claim(ctx context.Context, userID, clientToken, orderID string) (string, error)

	// Release 删除映射，仅在订单没有写成功时使用
	Release(ctx context.Context, userID, clientToken string) error
}
