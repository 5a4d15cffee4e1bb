package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"fulfillment/internal/pkg/redis"
	"fulfillment/internal/service/inventory/domain"
)

const (
	decrementScriptName = "stock_try_decrement"
	incrementScriptName = "stock_increment"
)

// 脚本返回码
const (
	codeUnknownSKU   = -1
	codeInsufficient = 0
	codeApplied      = 1
)

// RedisLedger 把每个 SKU 存为一个 hash: stock:{sku} -> available/name/price。
// 条件扣减在 Lua 脚本中完成，读和写对同一个 key 是原子的。
type RedisLedger struct {
	redisClient *redis.Client
}

// NewRedisLedger 创建账本并注册所需的 Lua 脚本
func NewRedisLedger(redisClient *redis.Client) (*RedisLedger, error) {
	if err := redisClient.LoadScriptFromContent(decrementScriptName, tryDecrementScript); err != nil {
		return nil, errors.Wrap(err, "load decrement script")
	}
	if err := redisClient.LoadScriptFromContent(incrementScriptName, incrementScript); err != nil {
		return nil, errors.Wrap(err, "load increment script")
	}
	return &RedisLedger{redisClient: redisClient}, nil
}

func stockKey(sku string) string {
	return fmt.Sprintf("stock:{%s}", sku)
}

func (l *RedisLedger) TryDecrement(ctx context.Context, sku string, qty int64) error {
	code, err := l.run(ctx, decrementScriptName, sku, qty)
	if err != nil {
		return err
	}
	switch code {
	case codeApplied:
		return nil
	case codeInsufficient:
		return errors.Wrapf(domain.ErrInsufficientStock, "sku %s, requested %d", sku, qty)
	case codeUnknownSKU:
		return errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	default:
		return errors.Wrapf(domain.ErrLedgerUnavailable, "unknown result code %d from decrement script", code)
	}
}

func (l *RedisLedger) Increment(ctx context.Context, sku string, qty int64) error {
	code, err := l.run(ctx, incrementScriptName, sku, qty)
	if err != nil {
		return err
	}
	switch code {
	case codeApplied:
		return nil
	case codeUnknownSKU:
		return errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	default:
		return errors.Wrapf(domain.ErrLedgerUnavailable, "unknown result code %d from increment script", code)
	}
}

func (l *RedisLedger) run(ctx context.Context, script, sku string, qty int64) (int64, error) {
	result, err := l.redisClient.RunScript(ctx, script, []string{stockKey(sku)}, qty)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrLedgerUnavailable, "run %s for %s: %v", script, sku, err)
	}
	code, ok := result.(int64)
	if !ok {
		return 0, errors.Wrapf(domain.ErrLedgerUnavailable, "unexpected result type from %s: %T", script, result)
	}
	return code, nil
}

func (l *RedisLedger) Get(ctx context.Context, sku string) (*domain.StockRecord, error) {
	fields, err := l.redisClient.GetClient().HGetAll(ctx, stockKey(sku)).Result()
	if err != nil {
		return nil, errors.Wrapf(domain.ErrLedgerUnavailable, "hgetall %s: %v", sku, err)
	}
	raw, ok := fields["available"]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	}
	available, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parse available for %s", sku)
	}
	rec := &domain.StockRecord{SKU: sku, Available: available, Name: fields["name"]}
	if p := fields["price"]; p != "" {
		if rec.Price, err = decimal.NewFromString(p); err != nil {
			return nil, errors.Wrapf(err, "parse price for %s", sku)
		}
	}
	return rec, nil
}

func (l *RedisLedger) Upsert(ctx context.Context, record *domain.StockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	err := l.redisClient.GetClient().HSet(ctx, stockKey(record.SKU),
		"available", record.Available,
		"name", record.Name,
		"price", record.Price.String(),
	).Err()
	if err != nil {
		return errors.Wrapf(domain.ErrLedgerUnavailable, "hset %s: %v", record.SKU, err)
	}
	return nil
}

// KEYS[1]: stock:{sku}
// ARGV[1]: 扣减数量
var tryDecrementScript = `
local cur = redis.call('hget', KEYS[1], 'available')
if not cur then
    return -1
end
local qty = tonumber(ARGV[1])
if tonumber(cur) < qty then
    return 0
end
redis.call('hincrby', KEYS[1], 'available', -qty)
return 1
`

// KEYS[1]: stock:{sku}
// ARGV[1]: 加回数量
var incrementScript = `
if redis.call('hexists', KEYS[1], 'available') == 0 then
    return -1
end
redis.call('hincrby', KEYS[1], 'available', tonumber(ARGV[1]))
return 1
`
