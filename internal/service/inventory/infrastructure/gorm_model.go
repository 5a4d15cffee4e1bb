package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockItemModel 对应 stock_items 表
type StockItemModel struct {
	SKU       string          `gorm:"primaryKey;size:64"`
	Available int64           `gorm:"not null"`
	Name      string          `gorm:"size:255"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)"`
	UpdatedAt time.Time
}

func (StockItemModel) TableName() string {
	return "stock_items"
}

// ReservationModel 对应 reservations 表，order_id 唯一保证同一订单只有一条记录
type ReservationModel struct {
	OrderID   string `gorm:"primaryKey;size:64"`
	Status    string `gorm:"size:32;not null"`
	Result    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReservationModel) TableName() string {
	return "reservations"
}

// reservationPending 表示预占正在进行中
const reservationPending = "PENDING"
