package application

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	invdomain "fulfillment/internal/service/inventory/domain"
	"fulfillment/internal/service/order/domain"
)

// CapturePayment 是支付步骤：扣款并把订单从 CREATED 推进到 PAID。
// 已支付的订单直接返回记录中的支付信息。
func (s *OrderApplicationService) CapturePayment(ctx context.Context, p *domain.WorkflowPayload) (*domain.WorkflowPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "step.Payment", trace.WithAttributes(attribute.String("order.id", p.OrderID)))
	defer span.End()

	if p.OrderID == "" || p.Amount == nil {
		return nil, s.fail(span, pkgerrors.Wrap(domain.ErrInvalidRequest, "orderId and amount are required"))
	}
	order, err := s.Orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	out := p.Clone()
	if prior := order.Payment(); prior != nil {
		span.AddEvent("Payment already captured, replaying.")
		out.Payment = prior
		return out, nil
	}

	payment, err := s.Payments.Capture(ctx, order.ID, *p.Amount)
	if err != nil {
		return nil, s.fail(span, err)
	}

	err = s.Orders.AdvanceStatus(ctx, order.ID, domain.PaymentFrom, domain.StatePaid, domain.Fields{
		PaymentID: payment.PaymentID,
		PaidAt:    &payment.PaidAt,
	})
	if errors.Is(err, domain.ErrTransitionRejected) {
		// 并发的重试可能已经写入了支付信息
		if current, ferr := s.Orders.FindByID(ctx, order.ID); ferr == nil && current.Payment() != nil {
			out.Payment = current.Payment()
			return out, nil
		}
	}
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.publish(ctx, domain.NewEvent(domain.SourcePayments, domain.PaymentCaptured, order.ID, domain.PaymentCapturedDetail{
		OrderID: order.ID,
		Amount:  *p.Amount,
		Payment: *payment,
	}, s.now()))

	logger.Ctx(ctx).Info().Str("order", order.ID).Str("payment", payment.PaymentID).Msg("Payment captured")
	out.Payment = payment
	return out, nil
}

// ReserveInventory 是预占步骤。预占失败是业务结果，订单进入 FAILED 并正常返回；
// 补偿失败时订单同样进入 FAILED，返回值同时带上预占记录和错误。
func (s *OrderApplicationService) ReserveInventory(ctx context.Context, p *domain.WorkflowPayload) (*domain.WorkflowPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "step.Reservation", trace.WithAttributes(attribute.String("order.id", p.OrderID)))
	defer span.End()

	if p.OrderID == "" || len(p.Items) == 0 {
		return nil, s.fail(span, pkgerrors.Wrap(domain.ErrInvalidRequest, "orderId and items[] are required"))
	}
	if err := domain.ValidateItems(p.Items); err != nil {
		return nil, s.fail(span, err)
	}
	order, err := s.Orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	// RESERVED 和 FAILED 只用于重放预占记录；未支付的订单一律拒绝
	switch order.State {
	case domain.StatePaid, domain.StateReserved, domain.StateFailed:
	default:
		return nil, s.fail(span, pkgerrors.Wrapf(domain.ErrTransitionRejected, "cannot reserve inventory for order in %s", order.State))
	}
	if order.Payment() == nil {
		return nil, s.fail(span, pkgerrors.Wrapf(domain.ErrTransitionRejected, "order %s has not been paid", order.ID))
	}

	result, err := s.Inventory.Reserve(ctx, order.ID, p.LineItems())
	out := p.Clone()

	if err != nil {
		if result == nil || result.Status != invdomain.StatusInconsistent {
			return nil, s.fail(span, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation inconsistent")
		s.publish(ctx, domain.NewEvent(domain.SourceInventory, domain.InventoryReservationInconsistent, order.ID,
			domain.ReservationDetail{OrderID: order.ID, Reservation: result}, s.now()))
		if aerr := s.advance(ctx, order.ID, domain.ReservationFrom, domain.StateFailed,
			domain.Fields{FailureReason: string(invdomain.StatusInconsistent)}); aerr != nil {
			logger.Ctx(ctx).Error().Err(aerr).Str("order", order.ID).Msg("Failed to mark inconsistent order as FAILED")
		}
		out.Reservation = result
		return out, err
	}

	to, detailType, fields := domain.StateReserved, domain.InventoryReserved, domain.Fields{}
	if result.Status == invdomain.StatusFailed {
		to, detailType = domain.StateFailed, domain.InventoryReservationFailed
		if result.FailedItem != nil {
			fields.FailureReason = result.FailedItem.Reason
		}
	}
	if err := s.advance(ctx, order.ID, domain.ReservationFrom, to, fields); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Str("reservation", string(result.Status)).
			Msg("Reservation recorded but order status could not be advanced")
		return nil, s.fail(span, err)
	}

	s.publish(ctx, domain.NewEvent(domain.SourceInventory, detailType, order.ID,
		domain.ReservationDetail{OrderID: order.ID, Reservation: result}, s.now()))

	span.SetAttributes(attribute.String("reservation.status", string(result.Status)))
	out.Reservation = result
	return out, nil
}

// CreateShipment 是发货步骤，要求输入中带有支付信息和 RESERVED 的预占结果。
// 已发货的订单直接返回记录中的运单。
func (s *OrderApplicationService) CreateShipment(ctx context.Context, p *domain.WorkflowPayload) (*domain.WorkflowPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "step.Shipping", trace.WithAttributes(attribute.String("order.id", p.OrderID)))
	defer span.End()

	if p.OrderID == "" {
		return nil, s.fail(span, pkgerrors.Wrap(domain.ErrInvalidRequest, "orderId is required"))
	}
	if p.Reservation == nil || p.Reservation.Status != invdomain.StatusReserved {
		return nil, s.fail(span, pkgerrors.Wrap(domain.ErrInvalidRequest, "shipping requires a RESERVED reservation"))
	}
	if p.Payment == nil {
		return nil, s.fail(span, pkgerrors.Wrap(domain.ErrInvalidRequest, "shipping requires a captured payment"))
	}
	order, err := s.Orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	out := p.Clone()
	if prior := order.Shipment(); prior != nil {
		span.AddEvent("Shipment already created, replaying.")
		out.Shipment = prior
		return out, nil
	}

	shipment := &domain.Shipment{
		Status:         domain.ShipmentCreated,
		TrackingNumber: domain.NewTrackingNumber(),
		ShippedAt:      s.now(),
	}
	err = s.Orders.AdvanceStatus(ctx, order.ID, domain.ShippingFrom, domain.StateShipped, domain.Fields{
		TrackingNumber: shipment.TrackingNumber,
		ShippedAt:      &shipment.ShippedAt,
	})
	if errors.Is(err, domain.ErrTransitionRejected) {
		if current, ferr := s.Orders.FindByID(ctx, order.ID); ferr == nil && current.Shipment() != nil {
			out.Shipment = current.Shipment()
			return out, nil
		}
	}
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.publish(ctx, domain.NewEvent(domain.SourceShipping, domain.OrderShipped, order.ID, domain.OrderShippedDetail{
		OrderID:  order.ID,
		Shipment: *shipment,
	}, s.now()))

	logger.Ctx(ctx).Info().Str("order", order.ID).Str("tracking", shipment.TrackingNumber).Msg("Shipment created")
	out.Shipment = shipment
	return out, nil
}

// advance 执行状态迁移；订单已经处于目标状态时视为成功
func (s *OrderApplicationService) advance(ctx context.Context, id string, from []domain.State, to domain.State, fields domain.Fields) error {
	err := s.Orders.AdvanceStatus(ctx, id, from, to, fields)
	if !errors.Is(err, domain.ErrTransitionRejected) {
		return err
	}
	current, ferr := s.Orders.FindByID(ctx, id)
	if ferr == nil && current.State == to {
		return nil
	}
	return err
}

func (s *OrderApplicationService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
