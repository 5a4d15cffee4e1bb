package adapter

import (
	"context"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
)

// LogAdapter 在没有配置 Kafka 时代替事件总线和工作流启动器，只输出日志
type LogAdapter struct{}

func (LogAdapter) Publish(ctx context.Context, event *domain.Event) error {
	logger.Ctx(ctx).Info().Str("event", event.DetailType).Str("source", event.Source).
		Str("order", event.OrderID).Msg("Event published")
	return nil
}

func (LogAdapter) StartWorkflow(ctx context.Context, input *domain.WorkflowPayload) error {
	logger.Ctx(ctx).Info().Str("order", input.OrderID).Msg("Workflow start requested")
	return nil
}
