package saga

import (
	"go.opentelemetry.io/otel/codes"

	"fulfillment/internal/service/order/domain"
)

// StartWorkflowHandler 启动下游的支付、预占、发货流程，是责任链的最后一步
type StartWorkflowHandler struct {
	NextHandler
}

func (h *StartWorkflowHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.StartWorkflow")
	defer span.End()

	order := orderCtx.Order
	amount := order.Amount
	input := &domain.WorkflowPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  &amount,
		Items:   order.Items,
	}
	if err := orderCtx.Workflow.StartWorkflow(ctx, input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start workflow")
		return err
	}
	span.AddEvent("Workflow started.")
	return h.executeNext(orderCtx)
}
