// internal/service/inventory/application/reservation_engine.go
package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/inventory/domain"
)

const defaultCallTimeout = 5 * time.Second

// ReservationEngine 对一个订单的所有商品逐个执行条件扣减，
// 任一商品失败时把已扣减的商品加回去，保证全有或全无。
// 引擎本身不持有任何锁，并发安全完全依赖账本的单键原子条件写。
type ReservationEngine struct {
	ledger      domain.StockLedger
	tracer      trace.Tracer
	metrics     *Metrics
	callTimeout time.Duration
}

func NewReservationEngine(ledger domain.StockLedger, tracer trace.Tracer, metrics *Metrics, callTimeout time.Duration) *ReservationEngine {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &ReservationEngine{
		ledger:      ledger,
		tracer:      tracer,
		metrics:     metrics,
		callTimeout: callTimeout,
	}
}

// Reserve 按输入顺序预占 items。
//
// 返回值:
//   - RESERVED, nil: 全部扣减成功
//   - FAILED, nil: 某个商品库存不足或不存在，之前的扣减已全部补偿
//   - nil, ErrInvalidRequest: 前置条件不满足，没有调用账本
//   - nil, context 错误: 调用方在两次扣减之间取消，账本已恢复原状
//   - RESERVATION_INCONSISTENT, ErrReservationInconsistent: 补偿失败或扣减结果不明，Unrestored 需要对账。
//     扣减结果不明时错误链中同时带有 ErrLedgerUnavailable
func (e *ReservationEngine) Reserve(ctx context.Context, orderID string, items []domain.LineItem) (*domain.ReservationResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items.count", len(items)),
	))
	defer span.End()

	if err := domain.ValidateReservation(orderID, items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid reservation request")
		return nil, err
	}

	result := &domain.ReservationResult{OrderID: orderID}
	reserved := make([]domain.LineItem, 0, len(items))

	for i, item := range items {
		// 每个商品之前检查取消；已经扣减的部分由 abort 补偿
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, span, result, reserved, nil, fmt.Errorf("reservation cancelled before item %d: %w", i, err))
		}

		err := e.decrement(ctx, item)
		switch {
		case err == nil:
			reserved = append(reserved, item)
			result.Status = domain.StatusPartiallyReserved
		case domain.IsRejection(err):
			result.FailedItem = &domain.FailedItem{
				SKU:    item.SKU,
				Qty:    item.Qty,
				Reason: domain.ReasonFor(err),
			}
			span.AddEvent("item rejected", trace.WithAttributes(
				attribute.String("item.sku", item.SKU),
				attribute.Int64("item.qty", item.Qty),
				attribute.String("reason", result.FailedItem.Reason),
			))
			return e.abort(ctx, span, result, reserved, nil, nil)
		default:
			// 超时或连接中断时扣减可能已经在账本生效，既不能当作未扣减，也不能盲目加回
			span.AddEvent("item outcome unknown", trace.WithAttributes(
				attribute.String("item.sku", item.SKU),
				attribute.Int64("item.qty", item.Qty),
			))
			return e.abort(ctx, span, result, reserved, []domain.LineItem{item}, err)
		}
	}

	result.Status = domain.StatusReserved
	result.ReservedItems = reserved
	e.metrics.reservation(string(domain.StatusReserved))
	span.AddEvent("all items reserved")
	logger.Ctx(ctx).Info().Str("order", orderID).Int("items", len(reserved)).Msg("Inventory reserved")
	return result, nil
}

// abort 补偿已扣减的商品并决定最终状态。cause 为 nil 表示业务拒绝；
// unknown 是扣减结果不明的商品，直接计入 Unrestored。
func (e *ReservationEngine) abort(ctx context.Context, span trace.Span, result *domain.ReservationResult, reserved, unknown []domain.LineItem, cause error) (*domain.ReservationResult, error) {
	unrestored := append(e.compensate(ctx, result.OrderID, reserved), unknown...)
	result.ReservedItems = nil

	if len(unrestored) > 0 {
		result.Status = domain.StatusInconsistent
		result.Unrestored = unrestored
		e.metrics.reservation(string(domain.StatusInconsistent))

		err := fmt.Errorf("%w: order %s has %d unrestored item(s)", domain.ErrReservationInconsistent, result.OrderID, len(unrestored))
		if cause != nil {
			err = fmt.Errorf("%w (after: %w)", err, cause)
		}
		span.RecordError(err, trace.WithAttributes(attribute.Bool("critical.error", true)))
		span.SetStatus(codes.Error, "reservation inconsistent")
		logger.Ctx(ctx).Error().Err(err).
			Str("order", result.OrderID).
			Strs("unrestored", skus(unrestored)).
			Msg("CRITICAL: reservation left the ledger inconsistent, reconciliation required")
		return result, err
	}

	if cause != nil {
		e.metrics.reservation("error")
		span.RecordError(cause)
		span.SetStatus(codes.Error, "reservation aborted")
		logger.Ctx(ctx).Warn().Err(cause).Str("order", result.OrderID).
			Int("compensated", len(reserved)).
			Msg("Reservation aborted, ledger restored")
		return nil, cause
	}

	result.Status = domain.StatusFailed
	e.metrics.reservation(string(domain.StatusFailed))
	span.SetStatus(codes.Error, "reservation failed")
	logger.Ctx(ctx).Info().Str("order", result.OrderID).
		Str("failed_sku", result.FailedItem.SKU).
		Str("reason", result.FailedItem.Reason).
		Int("compensated", len(reserved)).
		Msg("Reservation failed, ledger restored")
	return result, nil
}

// compensate 按逆序把已扣减的商品加回账本，返回加回失败的商品（按输入顺序）。
// 调用方取消 context 时补偿仍然执行。
func (e *ReservationEngine) compensate(ctx context.Context, orderID string, reserved []domain.LineItem) []domain.LineItem {
	if len(reserved) == 0 {
		return nil
	}

	compCtx, span := e.tracer.Start(context.WithoutCancel(ctx), "inventory.compensation.Increment", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.StringSlice("items", skus(reserved)),
	))
	defer span.End()

	var unrestored []domain.LineItem
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]

		callCtx, cancel := context.WithTimeout(compCtx, e.callTimeout)
		start := time.Now()
		err := e.ledger.Increment(callCtx, item.SKU, item.Qty)
		e.metrics.ledgerCall("increment", err, time.Since(start))
		cancel()

		e.metrics.compensation(err)
		if err != nil {
			span.RecordError(err, trace.WithAttributes(attribute.String("item.sku", item.SKU)))
			logger.Ctx(compCtx).Error().Err(err).
				Str("order", orderID).
				Str("sku", item.SKU).
				Int64("qty", item.Qty).
				Msg("CRITICAL: compensation increment failed")
			unrestored = append(unrestored, item)
		}
	}

	if len(unrestored) > 0 {
		span.SetStatus(codes.Error, "compensation incomplete")
	}
	slices.Reverse(unrestored)
	return unrestored
}

// decrement 执行单次条件扣减。账本调用不随调用方取消而中断，只受 callTimeout 约束；
// 返回的非拒绝错误都意味着结果不明。
func (e *ReservationEngine) decrement(ctx context.Context, item domain.LineItem) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()

	start := time.Now()
	err := e.ledger.TryDecrement(callCtx, item.SKU, item.Qty)
	e.metrics.ledgerCall("decrement", err, time.Since(start))

	if err != nil && !domain.IsRejection(err) && !errors.Is(err, domain.ErrLedgerUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return err
}

func skus(items []domain.LineItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.SKU
	}
	return out
}
