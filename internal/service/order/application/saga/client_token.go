package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fulfillment/internal/pkg/logger"
)

// ClientTokenHandler 在写订单之前登记 (userId, clientToken)，
// 命中已有登记时记录原订单号并结束责任链。
type ClientTokenHandler struct {
	NextHandler
}

func (h *ClientTokenHandler) Handle(orderCtx *OrderContext) error {
	if orderCtx.ClientToken == "" || orderCtx.Tokens == nil {
		return h.executeNext(orderCtx)
	}

	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ClaimClientToken")
	defer span.End()

	order := orderCtx.Order
	existing, err := orderCtx.Tokens.Claim(ctx, order.UserID, orderCtx.ClientToken, order.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to claim client token")
		return err
	}
	if existing != "" {
		span.AddEvent("Client token already used")
		span.SetAttributes(attribute.String("order.replay_of", existing))
		orderCtx.ReplayOf = existing
		return nil
	}

	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseClientToken")
		defer compSpan.End()
		if err := orderCtx.Tokens.Release(compCtx, order.UserID, orderCtx.ClientToken); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Str("order", order.ID).Msg("Failed to release client token")
		}
	})
	return h.executeNext(orderCtx)
}
