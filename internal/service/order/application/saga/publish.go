package saga

import (
	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
)

// PublishCreatedHandler 发布 OrderCreated 事件。发布失败只记录，不影响下单结果。
type PublishCreatedHandler struct {
	NextHandler
}

func (h *PublishCreatedHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PublishOrderCreated")
	defer span.End()

	order := orderCtx.Order
	event := domain.NewEvent(domain.SourceOrders, domain.OrderCreated, order.ID, domain.OrderCreatedDetail{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.Amount,
	}, orderCtx.Now())

	if err := orderCtx.Publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("Failed to publish OrderCreated event")
	} else {
		span.AddEvent("OrderCreated published.")
	}
	return h.executeNext(orderCtx)
}
