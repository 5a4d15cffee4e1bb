package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
)

// SimulatedPaymentAdapter 实现了 port.PaymentGateway，总是扣款成功。
// paymentId 由 orderId 推导，重复扣款得到同一个 paymentId。
type SimulatedPaymentAdapter struct {
	now func() time.Time
}

func NewSimulatedPaymentAdapter() *SimulatedPaymentAdapter {
	return &SimulatedPaymentAdapter{now: func() time.Time { return time.Now().UTC() }}
}

func (a *SimulatedPaymentAdapter) Capture(ctx context.Context, orderID string, amount decimal.Decimal) (*domain.Payment, error) {
	logger.Ctx(ctx).Debug().Str("order", orderID).Str("amount", amount.String()).Msg("Simulating payment capture")
	return &domain.Payment{
		Status:    domain.PaymentSucceeded,
		PaymentID: "pay_" + orderID,
		PaidAt:    a.now(),
	}, nil
}
