package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"fulfillment/internal/service/inventory/domain"
	"fulfillment/internal/service/inventory/infrastructure"
)

// scriptedLedger 包装内存账本，可以让指定 SKU 的操作失败。
// lostReply 中的 SKU 扣减会生效，但调用方收到的是错误。
type scriptedLedger struct {
	*infrastructure.MemoryLedger
	calls         atomic.Int32
	failDecrement map[string]error
	failIncrement map[string]error
	lostReply     map[string]error
	onDecrement   func(sku string)
}

func newScriptedLedger(t *testing.T, stock map[string]int64) *scriptedLedger {
	t.Helper()
	mem := infrastructure.NewMemoryLedger()
	for sku, n := range stock {
		require.NoError(t, mem.Upsert(context.Background(), &domain.StockRecord{SKU: sku, Available: n}))
	}
	return &scriptedLedger{
		MemoryLedger:  mem,
		failDecrement: map[string]error{},
		failIncrement: map[string]error{},
		lostReply:     map[string]error{},
	}
}

func (l *scriptedLedger) TryDecrement(ctx context.Context, sku string, qty int64) error {
	l.calls.Add(1)
	if l.onDecrement != nil {
		l.onDecrement(sku)
	}
	if err, ok := l.failDecrement[sku]; ok {
		return err
	}
	if err, ok := l.lostReply[sku]; ok {
		if derr := l.MemoryLedger.TryDecrement(ctx, sku, qty); derr != nil {
			return derr
		}
		return err
	}
	return l.MemoryLedger.TryDecrement(ctx, sku, qty)
}

func (l *scriptedLedger) Increment(ctx context.Context, sku string, qty int64) error {
	l.calls.Add(1)
	if err, ok := l.failIncrement[sku]; ok {
		return err
	}
	return l.MemoryLedger.Increment(ctx, sku, qty)
}

func (l *scriptedLedger) available(t *testing.T, sku string) int64 {
	t.Helper()
	rec, err := l.MemoryLedger.Get(context.Background(), sku)
	require.NoError(t, err)
	return rec.Available
}

func newEngine(ledger domain.StockLedger, metrics *Metrics) *ReservationEngine {
	return NewReservationEngine(ledger, noop.NewTracerProvider().Tracer(""), metrics, time.Second)
}

func TestReserve_AllItemsReserved(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10})
	engine := newEngine(ledger, nil)

	items := []domain.LineItem{{SKU: "A", Qty: 3}, {SKU: "B", Qty: 10}}
	result, err := engine.Reserve(context.Background(), "o-1", items)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusReserved, result.Status)
	assert.Equal(t, items, result.ReservedItems)
	assert.Nil(t, result.FailedItem)
	assert.EqualValues(t, 7, ledger.available(t, "A"))
	assert.EqualValues(t, 0, ledger.available(t, "B"))
}

func TestReserve_InsufficientStockRollsBackEarlierItems(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10})
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 5}, {SKU: "B", Qty: 999}})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	require.NotNil(t, result.FailedItem)
	assert.Equal(t, "B", result.FailedItem.SKU)
	assert.EqualValues(t, 999, result.FailedItem.Qty)
	assert.Equal(t, domain.ReasonInsufficientStock, result.FailedItem.Reason)
	assert.Empty(t, result.ReservedItems)
	assert.EqualValues(t, 10, ledger.available(t, "A"))
	assert.EqualValues(t, 10, ledger.available(t, "B"))
}

func TestReserve_UnknownSKUIsRejection(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10})
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 1}, {SKU: "GHOST", Qty: 1}})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.ReasonUnknownSKU, result.FailedItem.Reason)
	assert.EqualValues(t, 10, ledger.available(t, "A"))
}

func TestReserve_InvalidRequestTouchesNoLedger(t *testing.T) {
	cases := map[string]struct {
		orderID string
		items   []domain.LineItem
	}{
		"empty order id": {"", []domain.LineItem{{SKU: "A", Qty: 1}}},
		"no items":       {"o-1", nil},
		"zero qty":       {"o-1", []domain.LineItem{{SKU: "A", Qty: 1}, {SKU: "A", Qty: 0}}},
		"negative qty":   {"o-1", []domain.LineItem{{SKU: "A", Qty: -2}}},
		"empty sku":      {"o-1", []domain.LineItem{{SKU: "", Qty: 1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ledger := newScriptedLedger(t, map[string]int64{"A": 10})
			engine := newEngine(ledger, nil)

			result, err := engine.Reserve(context.Background(), tc.orderID, tc.items)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Zero(t, ledger.calls.Load())
			assert.EqualValues(t, 10, ledger.available(t, "A"))
		})
	}
}

func TestReserve_LedgerFaultCompensatesAndFlagsUnknownItem(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10, "C": 10})
	ledger.failDecrement["C"] = errors.New("connection reset")
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 1}, {SKU: "B", Qty: 2}, {SKU: "C", Qty: 3}})
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.True(t, IsInconsistent(err))

	require.NotNil(t, result)
	assert.Equal(t, domain.StatusInconsistent, result.Status)
	assert.Equal(t, []domain.LineItem{{SKU: "C", Qty: 3}}, result.Unrestored)
	assert.Empty(t, result.ReservedItems)
	assert.EqualValues(t, 10, ledger.available(t, "A"))
	assert.EqualValues(t, 10, ledger.available(t, "B"))
	assert.EqualValues(t, 10, ledger.available(t, "C"))
}

func TestReserve_DecrementAppliedButReplyLost(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10})
	ledger.lostReply["B"] = context.DeadlineExceeded
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 1}, {SKU: "B", Qty: 3}})
	assert.True(t, IsInconsistent(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// B 的扣减已经生效，必须作为待核对商品报告出来
	require.NotNil(t, result)
	assert.Equal(t, domain.StatusInconsistent, result.Status)
	assert.Equal(t, []domain.LineItem{{SKU: "B", Qty: 3}}, result.Unrestored)
	assert.EqualValues(t, 10, ledger.available(t, "A"))
	assert.EqualValues(t, 7, ledger.available(t, "B"))
}

func TestReserve_FailedCompensationIsInconsistent(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10, "C": 10})
	ledger.failIncrement["A"] = errors.New("timeout")
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 4}, {SKU: "B", Qty: 2}, {SKU: "C", Qty: 50}})
	require.Error(t, err)
	assert.True(t, IsInconsistent(err))

	require.NotNil(t, result)
	assert.Equal(t, domain.StatusInconsistent, result.Status)
	assert.Equal(t, []domain.LineItem{{SKU: "A", Qty: 4}}, result.Unrestored)
	assert.Equal(t, "C", result.FailedItem.SKU)
	// B 补偿成功，A 仍然少 4
	assert.EqualValues(t, 6, ledger.available(t, "A"))
	assert.EqualValues(t, 10, ledger.available(t, "B"))
}

func TestReserve_CancellationCompensates(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 10, "B": 10})
	ctx, cancel := context.WithCancel(context.Background())
	ledger.onDecrement = func(sku string) {
		if sku == "A" {
			cancel()
		}
	}
	engine := newEngine(ledger, nil)

	result, err := engine.Reserve(ctx, "o-1", []domain.LineItem{{SKU: "A", Qty: 4}, {SKU: "B", Qty: 2}})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 10, ledger.available(t, "A"))
	assert.EqualValues(t, 10, ledger.available(t, "B"))
}

func TestReserve_ConcurrentOrdersNeverOversell(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"A": 50, "B": 30})
	engine := newEngine(ledger, nil)

	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []domain.LineItem{{SKU: "A", Qty: 1}, {SKU: "B", Qty: 1}}
			if i%2 == 0 {
				items = []domain.LineItem{{SKU: "B", Qty: 1}, {SKU: "A", Qty: 1}}
			}
			result, err := engine.Reserve(context.Background(), "o", items)
			if err == nil && result.Status == domain.StatusReserved {
				reserved.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 30, reserved.Load())
	assert.EqualValues(t, 20, ledger.available(t, "A"))
	assert.EqualValues(t, 0, ledger.available(t, "B"))
}

func TestReserve_SecondOrderFailsWhenStockRunsOut(t *testing.T) {
	ledger := newScriptedLedger(t, map[string]int64{"X": 3})
	engine := newEngine(ledger, nil)

	first, err := engine.Reserve(context.Background(), "order-1", []domain.LineItem{{SKU: "X", Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, first.Status)
	assert.EqualValues(t, 1, ledger.available(t, "X"))

	second, err := engine.Reserve(context.Background(), "order-2", []domain.LineItem{{SKU: "X", Qty: 2}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, second.Status)
	assert.EqualValues(t, 1, ledger.available(t, "X"))
}

func TestReserve_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ledger := newScriptedLedger(t, map[string]int64{"A": 5})
	engine := newEngine(ledger, metrics)

	_, err := engine.Reserve(context.Background(), "o-1", []domain.LineItem{{SKU: "A", Qty: 2}})
	require.NoError(t, err)
	_, err = engine.Reserve(context.Background(), "o-2", []domain.LineItem{{SKU: "A", Qty: 2}, {SKU: "A", Qty: 9}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reservations.WithLabelValues("RESERVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reservations.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.compensations.WithLabelValues("restored")))
}
