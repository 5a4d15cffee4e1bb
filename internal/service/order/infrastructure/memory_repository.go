package infrastructure

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"

	"fulfillment/internal/service/order/domain"
)

// MemoryOrderRepository 是进程内的订单仓储，用于本地运行和测试
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]domain.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return errors.Wrapf(domain.ErrOrderExists, "order %s", order.ID)
	}
	cp := *order
	cp.Items = slices.Clone(order.Items)
	r.orders[order.ID] = cp
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	order.Items = slices.Clone(order.Items)
	return &order, nil
}

func (r *MemoryOrderRepository) AdvanceStatus(_ context.Context, id string, from []domain.State, to domain.State, fields domain.Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	if !domain.CanTransition(order.State, from) {
		return errors.Wrapf(domain.ErrTransitionRejected, "order %s: %s -> %s", id, order.State, to)
	}
	fields.Apply(&order, to, time.Now().UTC())
	r.orders[id] = order
	return nil
}

type tokenKey struct {
	userID, token string
}

// MemoryClientTokenStore 是进程内的 ClientTokenStore
type MemoryClientTokenStore struct {
	mu     sync.Mutex
	tokens map[tokenKey]string
}

func NewMemoryClientTokenStore() *MemoryClientTokenStore {
	return &MemoryClientTokenStore{tokens: make(map[tokenKey]string)}
}

func (s *MemoryClientTokenStore) Claim(_ context.Context, userID, clientToken, orderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey{userID, clientToken}
	if existing, ok := s.tokens[key]; ok {
		return existing, nil
	}
	s.tokens[key] = orderID
	return "", nil
}

func (s *MemoryClientTokenStore) Release(_ context.Context, userID, clientToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey{userID, clientToken})
	return nil
}
