package domain

import (
	"errors"
	"slices"
)

// ReservationStatus 是一次预占调用的结果状态
type ReservationStatus string

const (
	StatusReserved ReservationStatus = "RESERVED"
	// StatusPartiallyReserved 只存在于预占过程中，补偿之后不会作为终态返回
	StatusPartiallyReserved ReservationStatus = "PARTIALLY_RESERVED"
	StatusFailed            ReservationStatus = "FAILED"
	StatusInconsistent      ReservationStatus = "RESERVATION_INCONSISTENT"
)

// IsTerminal 判断状态是否是终态
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case StatusReserved, StatusFailed, StatusInconsistent:
		return true
	}
	return false
}

// 失败原因
const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonUnknownSKU        = "UNKNOWN_SKU"
)

// FailedItem 是第一个无法预占的商品
type FailedItem struct {
	SKU    string `json:"sku"`
	Qty    int64  `json:"qty"`
	Reason string `json:"reason"`
}

// ReservationResult 是 Reserve 的返回值
type ReservationResult struct {
	OrderID string            `json:"orderId"`
	Status  ReservationStatus `json:"status"`
	// ReservedItems 按输入顺序记录已扣减的商品；补偿之后为空
	ReservedItems []LineItem  `json:"items,omitempty"`
	FailedItem    *FailedItem `json:"failedItem,omitempty"`
	// Unrestored 列出可能已经扣减但没有加回的商品：补偿失败的，
	// 以及扣减调用结果不明的。对账时需要以账本为准逐个核对。
	Unrestored []LineItem `json:"unrestored,omitempty"`
}

// Clone 返回一份不与 r 共享切片和指针的副本
func (r *ReservationResult) Clone() *ReservationResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ReservedItems = slices.Clone(r.ReservedItems)
	cp.Unrestored = slices.Clone(r.Unrestored)
	if r.FailedItem != nil {
		item := *r.FailedItem
		cp.FailedItem = &item
	}
	return &cp
}

// ReasonFor 把账本拒绝错误翻译为失败原因
func ReasonFor(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnknownSKU) {
		return ReasonUnknownSKU
	}
	return ReasonInsufficientStock
}
