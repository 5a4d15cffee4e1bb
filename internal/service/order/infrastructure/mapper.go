package infrastructure

import (
	"encoding/json"

	"github.com/pkg/errors"

	"fulfillment/internal/service/order/domain"
)

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *OrderModel) (*domain.Order, error) {
	if model == nil {
		return nil, nil
	}
	var items []domain.Item
	if model.Items != "" {
		if err := json.Unmarshal([]byte(model.Items), &items); err != nil {
			return nil, errors.Wrapf(err, "decode items of order %s", model.OrderID)
		}
	}
	return &domain.Order{
		ID:             model.OrderID,
		UserID:         model.UserID,
		State:          model.Status,
		Amount:         model.Amount,
		Items:          items,
		PaymentID:      model.PaymentID,
		PaidAt:         model.PaidAt,
		TrackingNumber: model.TrackingNumber,
		ShippedAt:      model.ShippedAt,
		FailureReason:  model.FailureReason,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}, nil
}

// FromDomainOrder 将领域模型转换为数据库模型 (用于插入)
func FromDomainOrder(order *domain.Order) (*OrderModel, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, errors.Wrapf(err, "encode items of order %s", order.ID)
	}
	return &OrderModel{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.State,
		Amount:         order.Amount,
		Items:          string(items),
		PaymentID:      order.PaymentID,
		PaidAt:         order.PaidAt,
		TrackingNumber: order.TrackingNumber,
		ShippedAt:      order.ShippedAt,
		FailureReason:  order.FailureReason,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}, nil
}

// fieldUpdates 把一次状态迁移转换为列更新，零值字段不写
func fieldUpdates(to domain.State, fields domain.Fields) map[string]interface{} {
	updates := map[string]interface{}{"status": to}
	if fields.PaymentID != "" {
		updates["payment_id"] = fields.PaymentID
	}
	if fields.PaidAt != nil {
		updates["paid_at"] = *fields.PaidAt
	}
	if fields.TrackingNumber != "" {
		updates["tracking_number"] = fields.TrackingNumber
	}
	if fields.ShippedAt != nil {
		updates["shipped_at"] = *fields.ShippedAt
	}
	if fields.FailureReason != "" {
		updates["failure_reason"] = fields.FailureReason
	}
	return updates
}
