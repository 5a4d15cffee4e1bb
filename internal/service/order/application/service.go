// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/application/saga"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
)

const defaultProcessingTimeout = 30 * time.Second

// Deps 汇总了应用服务依赖的仓储和出站端口
type Deps struct {
	Orders    domain.OrderRepository
	Tokens    domain.ClientTokenStore
	Policy    *domain.AdmissionPolicy
	Publisher port.EventPublisher
	Workflow  port.WorkflowStarter
	Payments  port.PaymentGateway
	Inventory port.InventoryReserver
}

// OrderApplicationService 编排下单以及支付、预占、发货三个工作流步骤
type OrderApplicationService struct {
	Deps
	tracer            trace.Tracer
	processingTimeout time.Duration
	now               func() time.Time
}

func NewOrderApplicationService(deps Deps, tracer trace.Tracer, processingTimeout time.Duration) *OrderApplicationService {
	if processingTimeout <= 0 {
		processingTimeout = defaultProcessingTimeout
	}
	return &OrderApplicationService{
		Deps:              deps,
		tracer:            tracer,
		processingTimeout: processingTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder 校验并记录订单，发布 OrderCreated，然后启动工作流。
// 带 clientToken 的重复请求返回第一次创建的订单。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	if len(req.Items) == 0 || req.Amount == nil {
		err := pkgerrors.Wrap(domain.ErrInvalidRequest, "items[] and amount are required")
		span.RecordError(err)
		return nil, err
	}

	processingCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	orderEntity, err := domain.NewOrder(uuid.NewString(), req.UserID, *req.Amount, req.Items, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create order entity")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", orderEntity.ID))

	orderContext := &saga.OrderContext{
		Ctx:         processingCtx,
		Order:       orderEntity,
		ClientToken: req.ClientToken,
		Tracer:      s.tracer,
		Now:         s.now,
		Repo:        s.Orders,
		Tokens:      s.Tokens,
		Policy:      s.Policy,
		Publisher:   s.Publisher,
		Workflow:    s.Workflow,
	}

	if err := s.buildChain().Handle(orderContext); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderEntity.ID).Msg("Order creation chain failed, compensating")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order creation failed in chain")
		orderContext.TriggerCompensation(context.WithoutCancel(processingCtx))
		return nil, err
	}

	if orderContext.ReplayOf != "" {
		existing, err := s.Orders.FindByID(processingCtx, orderContext.ReplayOf)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.ErrRequestInFlight
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		logger.Ctx(ctx).Info().Str("order", existing.ID).Msg("Client token replayed, returning existing order")
		return &CreateOrderResponse{OrderID: existing.ID, Status: existing.State, Replayed: true}, nil
	}

	logger.Ctx(ctx).Info().Str("order", orderEntity.ID).Str("user", orderEntity.UserID).Msg("Order created")
	return &CreateOrderResponse{OrderID: orderEntity.ID, Status: domain.StateCreated}, nil
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	chain := new(saga.AdmissionHandler)
	chain.
		SetNext(new(saga.ClientTokenHandler)).
		SetNext(new(saga.CreateOrderHandler)).
		SetNext(new(saga.PublishCreatedHandler)).
		SetNext(new(saga.StartWorkflowHandler))
	return chain
}

// publish 发布事件，失败只记录日志
func (s *OrderApplicationService) publish(ctx context.Context, event *domain.Event) {
	if err := s.Publisher.Publish(ctx, event); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("order", event.OrderID).Str("event", event.DetailType).
			Msg("Failed to publish event")
	}
}
