package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/inventory/domain"
)

// ReservationService 在 ReservationEngine 之上加入以 orderId 为键的幂等。
// journal 为 nil 时直接透传给引擎。
type ReservationService struct {
	engine  *ReservationEngine
	journal domain.ReservationJournal
}

func NewReservationService(engine *ReservationEngine, journal domain.ReservationJournal) *ReservationService {
	return &ReservationService{engine: engine, journal: journal}
}

// Reserve 对同一 orderId 的重复调用返回第一次的终态结果，不会再次扣减。
// 重放时忽略本次传入的 items。
func (s *ReservationService) Reserve(ctx context.Context, orderID string, items []domain.LineItem) (*domain.ReservationResult, error) {
	if s.journal == nil {
		return s.engine.Reserve(ctx, orderID, items)
	}
	if err := domain.ValidateReservation(orderID, items); err != nil {
		return nil, err
	}

	prior, err := s.journal.Claim(ctx, orderID, s.lease(len(items)))
	switch {
	case errors.Is(err, domain.ErrClaimExpired):
		return s.expire(ctx, orderID, items)
	case errors.Is(err, domain.ErrReservationInFlight):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: %w", domain.ErrJournalUnavailable, err)
	}
	if prior != nil {
		logger.Ctx(ctx).Info().Str("order", orderID).Str("status", string(prior.Status)).
			Msg("Replaying recorded reservation result")
		if prior.Status == domain.StatusInconsistent {
			return prior, domain.ErrReservationInconsistent
		}
		return prior, nil
	}

	result, err := s.engine.Reserve(ctx, orderID, items)
	if result == nil {
		// 账本已恢复原状，释放占位让重试重新执行
		s.abandon(ctx, orderID)
		return nil, err
	}

	// 终态（包括不一致）都要落库，重试时不能再次扣减
	if cerr := s.complete(ctx, result); cerr != nil {
		return s.unrecorded(ctx, result, err, cerr)
	}
	return result, err
}

// lease 是一次执行最长可能持有占位的时间：每个商品最多一次扣减和一次补偿，
// 再加上写入结果。
func (s *ReservationService) lease(items int) time.Duration {
	return s.engine.callTimeout * time.Duration(2*items+2)
}

// expire 处理超过租约的占位。之前的执行没有留下结果，可能已经扣减了部分库存，
// 本次请求的全部商品都记为待核对。
func (s *ReservationService) expire(ctx context.Context, orderID string, items []domain.LineItem) (*domain.ReservationResult, error) {
	result := &domain.ReservationResult{
		OrderID:    orderID,
		Status:     domain.StatusInconsistent,
		Unrestored: slices.Clone(items),
	}
	err := fmt.Errorf("%w: claim for order %s expired without a recorded result", domain.ErrReservationInconsistent, orderID)
	s.engine.metrics.reservation(string(domain.StatusInconsistent))
	logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Strs("unrestored", skus(items)).
		Msg("CRITICAL: stale reservation claim, reconciliation required")

	if cerr := s.complete(ctx, result); cerr != nil {
		logger.Ctx(ctx).Error().Err(cerr).Str("order", orderID).Msg("Failed to record stale reservation claim")
	}
	return result, err
}

// unrecorded 处理结果无法落库的情况：撤销已扣减的库存并释放占位，
// 以可重试的错误返回。撤销不完整时按不一致返回，占位保持未完成直到租约过期。
func (s *ReservationService) unrecorded(ctx context.Context, result *domain.ReservationResult, reserveErr, cerr error) (*domain.ReservationResult, error) {
	fault := fmt.Errorf("%w: record reservation %s: %w", domain.ErrJournalUnavailable, result.OrderID, cerr)
	logger.Ctx(ctx).Error().Err(cerr).Str("order", result.OrderID).Str("status", string(result.Status)).
		Msg("Failed to record reservation result")

	if result.Status == domain.StatusInconsistent {
		return result, fmt.Errorf("%w (after: %w)", reserveErr, fault)
	}

	var unrestored []domain.LineItem
	if result.Status == domain.StatusReserved {
		unrestored = s.engine.compensate(ctx, result.OrderID, result.ReservedItems)
	}
	if len(unrestored) > 0 {
		inconsistent := &domain.ReservationResult{
			OrderID:    result.OrderID,
			Status:     domain.StatusInconsistent,
			Unrestored: unrestored,
		}
		s.engine.metrics.reservation(string(domain.StatusInconsistent))
		err := fmt.Errorf("%w: order %s has %d unrestored item(s) (after: %w)",
			domain.ErrReservationInconsistent, result.OrderID, len(unrestored), fault)
		logger.Ctx(ctx).Error().Err(err).Str("order", result.OrderID).Strs("unrestored", skus(unrestored)).
			Msg("CRITICAL: unrecorded reservation could not be rolled back, reconciliation required")
		return inconsistent, err
	}

	s.abandon(ctx, result.OrderID)
	return nil, fault
}

func (s *ReservationService) complete(ctx context.Context, result *domain.ReservationResult) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.engine.callTimeout)
	defer cancel()
	return s.journal.Complete(callCtx, result)
}

func (s *ReservationService) abandon(ctx context.Context, orderID string) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.engine.callTimeout)
	defer cancel()
	if err := s.journal.Abandon(callCtx, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", orderID).Msg("Failed to release reservation claim")
	}
}

// IsInconsistent 判断错误是否意味着账本需要对账
func IsInconsistent(err error) bool {
	return errors.Is(err, domain.ErrReservationInconsistent)
}
