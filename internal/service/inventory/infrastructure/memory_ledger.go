package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"fulfillment/internal/service/inventory/domain"
)

// MemoryLedger 是进程内的库存账本，用于本地运行和测试。
// 单个互斥锁使每次条件写都是原子的。
type MemoryLedger struct {
	mu    sync.Mutex
	stock map[string]domain.StockRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stock: make(map[string]domain.StockRecord)}
}

func (l *MemoryLedger) TryDecrement(ctx context.Context, sku string, qty int64) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(domain.ErrLedgerUnavailable, err.Error())
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[sku]
	if !ok {
		return errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	}
	if rec.Available < qty {
		return errors.Wrapf(domain.ErrInsufficientStock, "sku %s: available %d, requested %d", sku, rec.Available, qty)
	}
	rec.Available -= qty
	l.stock[sku] = rec
	return nil
}

func (l *MemoryLedger) Increment(ctx context.Context, sku string, qty int64) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(domain.ErrLedgerUnavailable, err.Error())
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[sku]
	if !ok {
		return errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	}
	rec.Available += qty
	l.stock[sku] = rec
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, sku string) (*domain.StockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[sku]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	}
	return &rec, nil
}

func (l *MemoryLedger) Upsert(_ context.Context, record *domain.StockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[record.SKU] = *record
	return nil
}
