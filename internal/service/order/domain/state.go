// internal/service/order/domain/state.go
package domain

import (
	"slices"
	"time"
)

// State 定义了订单的生命周期状态
type State string

const (
	StateCreated  State = "CREATED"  // 已记录，等待支付
	StatePaid     State = "PAID"     // 已扣款
	StateReserved State = "RESERVED" // 库存已全部预占
	StateFailed   State = "FAILED"   // 预占失败或无法继续
	StateShipped  State = "SHIPPED"  // 已创建运单
)

// 每个步骤允许的前置状态
var (
	PaymentFrom     = []State{StateCreated}
	ReservationFrom = []State{StatePaid}
	ShippingFrom    = []State{StateReserved}
)

// CanTransition 判断 from 是否在允许的前置状态中
func CanTransition(from State, allowed []State) bool {
	return slices.Contains(allowed, from)
}

// Fields 是一次状态迁移顺带写入的字段，零值字段不写
type Fields struct {
	PaymentID      string
	PaidAt         *time.Time
	TrackingNumber string
	ShippedAt      *time.Time
	FailureReason  string
}

// Apply 把迁移结果写回内存中的订单
func (f Fields) Apply(o *Order, to State, now time.Time) {
	o.State = to
	o.UpdatedAt = now
	if f.PaymentID != "" {
		o.PaymentID = f.PaymentID
	}
	if f.PaidAt != nil {
		o.PaidAt = f.PaidAt
	}
	if f.TrackingNumber != "" {
		o.TrackingNumber = f.TrackingNumber
	}
	if f.ShippedAt != nil {
		o.ShippedAt = f.ShippedAt
	}
	if f.FailureReason != "" {
		o.FailureReason = f.FailureReason
	}
}
