package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"fulfillment/internal/service/order/domain"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	OrderID        string          `gorm:"primaryKey;size:64"`
	UserID         string          `gorm:"size:128;index"`
	Status         domain.State    `gorm:"size:32;not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2)"`
	Items          string          `gorm:"type:text"`
	PaymentID      string          `gorm:"size:128"`
	PaidAt         *time.Time
	TrackingNumber string `gorm:"size:64"`
	ShippedAt      *time.Time
	FailureReason  string `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// ClientTokenModel 对应 client_tokens 表，(user_id, client_token) 是联合主键
type ClientTokenModel struct {
	UserID      string `gorm:"primaryKey;size:128"`
	ClientToken string `gorm:"primaryKey;size:128"`
	OrderID     string `gorm:"size:64;not null"`
	CreatedAt   time.Time
}

func (ClientTokenModel) TableName() string {
	return "client_tokens"
}
