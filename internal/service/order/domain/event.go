// internal/service/order/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	invdomain "fulfillment/internal/service/inventory/domain"
)

// 事件来源
const (
	SourceOrders    = "app.orders"
	SourcePayments  = "app.payments"
	SourceInventory = "app.inventory"
	SourceShipping  = "app.shipping"
)

// 事件类型
const (
	OrderCreated                     = "OrderCreated"
	PaymentCaptured                  = "PaymentCaptured"
	InventoryReserved                = "InventoryReserved"
	InventoryReservationFailed       = "InventoryReservationFailed"
	InventoryReservationInconsistent = "InventoryReservationInconsistent"
	OrderShipped                     = "OrderShipped"
)

// Event 是发布到事件总线上的信封
type Event struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	DetailType string    `json:"detailType"`
	OrderID    string    `json:"orderId"`
	Time       time.Time `json:"time"`
	Detail     any       `json:"detail"`
}

func NewEvent(source, detailType, orderID string, detail any, now time.Time) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Source:     source,
		DetailType: detailType,
		OrderID:    orderID,
		Time:       now,
		Detail:     detail,
	}
}

type OrderCreatedDetail struct {
	OrderID string          `json:"orderId"`
	UserID  string          `json:"userId"`
	Amount  decimal.Decimal `json:"amount"`
}

type PaymentCapturedDetail struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Payment Payment         `json:"payment"`
}

// ReservationDetail 用于三种预占事件
type ReservationDetail struct {
	OrderID     string                       `json:"orderId"`
	Reservation *invdomain.ReservationResult `json:"reservation"`
}

type OrderShippedDetail struct {
	OrderID  string   `json:"orderId"`
	Shipment Shipment `json:"shipment"`
}
