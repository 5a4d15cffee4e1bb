package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/service/inventory/domain"
)

// GormReservationJournal 用 reservations 表的主键实现预占幂等
type GormReservationJournal struct {
	db *gorm.DB
}

func NewGormReservationJournal(db *gorm.DB) *GormReservationJournal {
	return &GormReservationJournal{db: db}
}

func (j *GormReservationJournal) Claim(ctx context.Context, orderID string, lease time.Duration) (*domain.ReservationResult, error) {
	res := j.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ReservationModel{OrderID: orderID, Status: reservationPending})
	if res.Error != nil {
		return nil, pkgerrors.Wrapf(res.Error, "claim reservation %s", orderID)
	}
	if res.RowsAffected == 1 {
		return nil, nil
	}

	var model ReservationModel
	if err := j.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 占位刚被放弃，交给调用方重试
			return nil, domain.ErrReservationInFlight
		}
		return nil, pkgerrors.Wrapf(err, "load reservation %s", orderID)
	}
	if model.Status == reservationPending {
		// CreatedAt 即占位时间
		if time.Since(model.CreatedAt) > lease {
			return nil, domain.ErrClaimExpired
		}
		return nil, domain.ErrReservationInFlight
	}

	var result domain.ReservationResult
	if err := json.Unmarshal([]byte(model.Result), &result); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode reservation %s", orderID)
	}
	return &result, nil
}

func (j *GormReservationJournal) Complete(ctx context.Context, result *domain.ReservationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return pkgerrors.Wrap(err, "encode reservation result")
	}
	err = j.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("order_id = ?", result.OrderID).
		Updates(map[string]interface{}{"status": string(result.Status), "result": string(body)}).Error
	return pkgerrors.Wrapf(err, "complete reservation %s", result.OrderID)
}

func (j *GormReservationJournal) Abandon(ctx context.Context, orderID string) error {
	err := j.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, reservationPending).
		Delete(&ReservationModel{}).Error
	return pkgerrors.Wrapf(err, "abandon reservation %s", orderID)
}
