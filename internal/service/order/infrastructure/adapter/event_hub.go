package adapter

import (
	"context"
	"sync"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
)

const subscriptionBuffer = 16

// EventHub 把事件交给下一个发布者，同时推送给本节点上按订单订阅的连接。
// 订阅者消费过慢时丢弃事件，不阻塞业务步骤。
type EventHub struct {
	next port.EventPublisher

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription 是一个订单的事件订阅，C 在 Close 之后被关闭
type Subscription struct {
	OrderID string
	C       <-chan *domain.Event

	ch   chan *domain.Event
	hub  *EventHub
	once sync.Once
}

func NewEventHub(next port.EventPublisher) *EventHub {
	return &EventHub{next: next, subs: make(map[string]map[*Subscription]struct{})}
}

func (h *EventHub) Publish(ctx context.Context, event *domain.Event) error {
	var err error
	if h.next != nil {
		err = h.next.Publish(ctx, event)
	}
	h.broadcast(ctx, event)
	return err
}

func (h *EventHub) broadcast(ctx context.Context, event *domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[event.OrderID] {
		select {
		case sub.ch <- event:
		default:
			logger.Ctx(ctx).Warn().Str("order", event.OrderID).Str("event", event.DetailType).
				Msg("Subscriber too slow, event dropped")
		}
	}
}

// Subscribe 订阅一个订单之后发布的事件
func (h *EventHub) Subscribe(orderID string) *Subscription {
	ch := make(chan *domain.Event, subscriptionBuffer)
	sub := &Subscription{OrderID: orderID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[*Subscription]struct{})
	}
	h.subs[orderID][sub] = struct{}{}
	return sub
}

// Subscribers 返回一个订单当前的订阅数
func (h *EventHub) Subscribers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[s.OrderID], s)
		if len(h.subs[s.OrderID]) == 0 {
			delete(h.subs, s.OrderID)
		}
		close(s.ch)
	})
}
