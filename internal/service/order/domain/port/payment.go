package port

import (
	"context"

	"github.com/shopspring/decimal"

	"fulfillment/internal/service/order/domain"
)

// PaymentGateway 是支付的出站端口
type PaymentGateway interface {
	Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*domain.Payment, error)
}
