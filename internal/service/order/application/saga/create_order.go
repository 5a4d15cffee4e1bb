package saga

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
)

const reasonWorkflowNotStarted = "WORKFLOW_NOT_STARTED"

// CreateOrderHandler 以条件插入持久化订单
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	order := orderCtx.Order
	if err := orderCtx.Repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to persist order")
		return err
	}
	span.AddEvent("Order saved with CREATED state.")

	// 订单已经落库，后续步骤失败时把它标记为 FAILED，而不是删除
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.FailOrder")
		defer compSpan.End()
		err := orderCtx.Repo.AdvanceStatus(compCtx, order.ID,
			[]domain.State{domain.StateCreated}, domain.StateFailed,
			domain.Fields{FailureReason: reasonWorkflowNotStarted})
		if err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order", order.ID).
				Msg("CRITICAL: failed to mark order as FAILED after workflow start failure")
		}
	})
	return h.executeNext(orderCtx)
}
