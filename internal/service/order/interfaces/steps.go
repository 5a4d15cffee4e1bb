package interfaces

import (
	"context"

	"fulfillment/internal/service/order/application"
	"fulfillment/internal/service/order/domain"
)

// 工作流步骤名，同时用作 HTTP 路径和 Kafka 消息头 step 的取值
const (
	StepPayment     = "payment"
	StepReservation = "reservation"
	StepShipping    = "shipping"
)

// StepFunc 执行一个工作流步骤，返回累积后的 payload
type StepFunc func(ctx context.Context, p *domain.WorkflowPayload) (*domain.WorkflowPayload, error)

// NewStepRouter 返回步骤名到应用服务方法的映射
func NewStepRouter(svc *application.OrderApplicationService) map[string]StepFunc {
	return map[string]StepFunc{
		StepPayment:     svc.CapturePayment,
		StepReservation: svc.ReserveInventory,
		StepShipping:    svc.CreateShipment,
	}
}
