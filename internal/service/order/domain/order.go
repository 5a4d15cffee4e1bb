// internal/service/order/domain/order.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func init() {
	// 金额在 JSON 中以数字输出，与下单请求保持一致
	decimal.MarshalJSONWithoutQuotes = true
}

// Item 是订单中的一行商品
type Item struct {
	SKU   string          `json:"sku"`
	Qty   int64           `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

// Order 是订单聚合的根实体
type Order struct {
	ID             string
	UserID         string
	State          State
	Amount         decimal.Decimal
	Items          []Item
	PaymentID      string
	PaidAt         *time.Time
	TrackingNumber string
	ShippedAt      *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder 创建一个处于 CREATED 状态的订单
func NewOrder(id, userID string, amount decimal.Decimal, items []Item, now time.Time) (*Order, error) {
	if id == "" || userID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "orderId and userId are required")
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, errors.Wrap(ErrInvalidRequest, "amount cannot be negative")
	}
	return &Order{
		ID:        id,
		UserID:    userID,
		State:     StateCreated,
		Amount:    amount,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateItems 检查商品行：至少一行，sku 非空，qty 为正
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return errors.Wrap(ErrInvalidRequest, "items[] is required")
	}
	for i, it := range items {
		if it.SKU == "" {
			return errors.Wrapf(ErrInvalidRequest, "items[%d].sku is required", i)
		}
		if it.Qty <= 0 {
			return errors.Wrapf(ErrInvalidRequest, "items[%d].qty must be positive", i)
		}
		if it.Price.IsNegative() {
			return errors.Wrapf(ErrInvalidRequest, "items[%d].price cannot be negative", i)
		}
	}
	return nil
}

// Payment 返回已记录的支付信息，未支付时返回 nil
func (o *Order) Payment() *Payment {
	if o.PaymentID == "" {
		return nil
	}
	p := &Payment{Status: PaymentSucceeded, PaymentID: o.PaymentID}
	if o.PaidAt != nil {
		p.PaidAt = *o.PaidAt
	}
	return p
}

// Shipment 返回已记录的发货信息，未发货时返回 nil
func (o *Order) Shipment() *Shipment {
	if o.TrackingNumber == "" {
		return nil
	}
	s := &Shipment{Status: ShipmentCreated, TrackingNumber: o.TrackingNumber}
	if o.ShippedAt != nil {
		s.ShippedAt = *o.ShippedAt
	}
	return s
}

// NewTrackingNumber 生成形如 TRK-1A2B3C4D5E6F 的运单号
func NewTrackingNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK-" + strings.ToUpper(hex[:12])
}
