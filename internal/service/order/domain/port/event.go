package port

import (
	"context"

	"fulfillment/internal/service/order/domain"
)

// EventPublisher 把领域事件发到事件总线。
// 调用方只记录发布失败，不会因此让业务步骤失败。
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// WorkflowStarter 为新订单启动外部编排流程
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, input *domain.WorkflowPayload) error
}
