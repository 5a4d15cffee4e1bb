// internal/service/inventory/domain/stock.go
package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StockRecord 是单个 SKU 的库存记录。
// available >= 0 由账本的条件扣减保证，而不是由调用方预先检查。
type StockRecord struct {
	SKU       string          `json:"sku" yaml:"sku"`
	Available int64           `json:"available" yaml:"available"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Price     decimal.Decimal `json:"price" yaml:"price"`
}

// LineItem 是订单中的一行商品，创建后不再修改
type LineItem struct {
	SKU string `json:"sku"`
	Qty int64  `json:"qty"`
}

func (i LineItem) String() string {
	return fmt.Sprintf("%s x%d", i.SKU, i.Qty)
}

// ValidateReservation 校验预占请求的前置条件，失败时不应触碰账本
func ValidateReservation(orderID string, items []LineItem) error {
	if orderID == "" {
		return errors.Wrap(ErrInvalidRequest, "orderId is required")
	}
	if len(items) == 0 {
		return errors.Wrap(ErrInvalidRequest, "items are required")
	}
	for i, it := range items {
		if it.SKU == "" {
			return errors.Wrapf(ErrInvalidRequest, "items[%d].sku is required", i)
		}
		if it.Qty <= 0 {
			return errors.Wrapf(ErrInvalidRequest, "items[%d].qty must be positive, got %d", i, it.Qty)
		}
	}
	return nil
}

// Validate 校验一条准备写入账本的库存记录
func (r *StockRecord) Validate() error {
	if r.SKU == "" {
		return errors.Wrap(ErrInvalidRequest, "sku is required")
	}
	if r.Available < 0 {
		return errors.Wrapf(ErrInvalidRequest, "available for %s cannot be negative", r.SKU)
	}
	return nil
}
