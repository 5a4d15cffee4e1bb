package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdmissionHandler 用准入规则检查订单，这一步没有副作用
type AdmissionHandler struct {
	NextHandler
}

func (h *AdmissionHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.Admission")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.amount", orderCtx.Order.Amount.String()),
		attribute.Int("items.count", len(orderCtx.Order.Items)),
	)
	if err := orderCtx.Policy.Admit(ctx, orderCtx.Order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order not admitted")
		return err
	}
	return h.executeNext(orderCtx)
}
