package domain

import "context"

// StockLedger 是库存账本的出站端口。
// 同一 SKU 上的并发操作必须线性化：读和条件写是同一个原子操作。
type StockLedger interface {
	// TryDecrement 仅当 available >= qty 时扣减。
	// 前置条件不满足返回 ErrInsufficientStock，SKU 不存在返回 ErrUnknownSKU，
	// 其他失败都包装为 ErrLedgerUnavailable。
	TryDecrement(ctx context.Context, sku string, qty int64) error

	// Increment 是 TryDecrement 的补偿操作
	Increment(ctx context.Context, sku string, qty int64) error

	// Get 读取一条库存记录，不存在时返回 ErrUnknownSKU
	Get(ctx context.Context, sku string) (*StockRecord, error)

	// Upsert 按 sku 覆盖写入（last-write-wins），只用于初始化库存
	Upsert(ctx context.Context, record *StockRecord) error
}
