// internal/service/order/application/dto.go
package application

import (
	"github.com/shopspring/decimal"

	"fulfillment/internal/service/order/domain"
)

// CreateOrderRequest 是下单用例的输入
type CreateOrderRequest struct {
	UserID      string           `json:"-"`
	Items       []domain.Item    `json:"items"`
	Amount      *decimal.Decimal `json:"amount"`
	ClientToken string           `json:"clientToken,omitempty"`
}

// CreateOrderResponse 是下单用例的输出
type CreateOrderResponse struct {
	OrderID string       `json:"orderId"`
	Status  domain.State `json:"status"`
	// Replayed 表示本次请求命中了已有的 clientToken
	Replayed bool `json:"-"`
}
