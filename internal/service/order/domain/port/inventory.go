package port

import (
	"context"

	invdomain "fulfillment/internal/service/inventory/domain"
)

// InventoryReserver 是库存预占的出站端口。
// 业务拒绝以 FAILED 结果返回；基础设施故障以 error 返回；
// 补偿失败时同时返回 RESERVATION_INCONSISTENT 结果和 error。
type InventoryReserver interface {
	Reserve(ctx context.Context, orderID string, items []invdomain.LineItem) (*invdomain.ReservationResult, error)
}
