package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
)

// OrderContext 在下单责任链中传递上下文数据。
type OrderContext struct {
	Ctx         context.Context
	Order       *domain.Order
	ClientToken string
	Tracer      trace.Tracer
	Now         func() time.Time

	// 出站端口
	Repo      domain.OrderRepository
	Tokens    domain.ClientTokenStore
	Policy    *domain.AdmissionPolicy
	Publisher port.EventPublisher
	Workflow  port.WorkflowStarter

	// ReplayOf 非空表示请求命中了已有的 clientToken，链在此处提前结束
	ReplayOf string

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册补偿操作，后注册的先执行
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Str("order", c.Order.ID).Int("count", len(c.compensations)).
		Msg("Executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
