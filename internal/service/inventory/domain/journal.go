package domain

import (
	"context"
	"time"
)

// ReservationJournal 以 orderId 为幂等键记录预占结果，
// 使编排器重试预占步骤时不会重复扣减库存。
type ReservationJournal interface {
	// Claim 为订单占位。新占位返回 (nil, nil)；已有终态记录时返回该记录；
	// 未完成的占位在 lease 之内返回 ErrReservationInFlight，超过 lease 返回 ErrClaimExpired。
	Claim(ctx context.Context, orderID string, lease time.Duration) (*ReservationResult, error)

	// Complete 写入终态结果
	Complete(ctx context.Context, result *ReservationResult) error

	// Abandon 删除未完成的占位，账本已恢复原状时使用，使重试可以重新执行
	Abandon(ctx context.Context, orderID string) error
}
