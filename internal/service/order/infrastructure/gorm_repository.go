package infrastructure

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/service/order/domain"
)

// AutoMigrate 创建订单和幂等令牌表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &ClientTokenModel{})
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model, err := FromDomainOrder(order)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "insert order %s", order.ID)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrapf(domain.ErrOrderExists, "order %s", order.ID)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Where("order_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, pkgerrors.Wrapf(err, "load order %s", id)
	}
	return ToDomainOrder(&model)
}

// AdvanceStatus 用一条带状态条件的 UPDATE 完成迁移
func (r *GormOrderRepository) AdvanceStatus(ctx context.Context, id string, from []domain.State, to domain.State, fields domain.Fields) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("order_id = ? AND status IN ?", id, from).
		Updates(fieldUpdates(to, fields))
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "advance order %s to %s", id, to)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return pkgerrors.Wrapf(domain.ErrTransitionRejected, "order %s: %s -> %s", id, current.State, to)
}

// GormClientTokenStore 是 ClientTokenStore 的 GORM 实现
type GormClientTokenStore struct {
	db *gorm.DB
}

func NewGormClientTokenStore(db *gorm.DB) *GormClientTokenStore {
	return &GormClientTokenStore{db: db}
}

func (s *GormClientTokenStore) Claim(ctx context.Context, userID, clientToken, orderID string) (string, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ClientTokenModel{UserID: userID, ClientToken: clientToken, OrderID: orderID})
	if res.Error != nil {
		return "", pkgerrors.Wrap(res.Error, "claim client token")
	}
	if res.RowsAffected == 1 {
		return "", nil
	}

	var model ClientTokenModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND client_token = ?", userID, clientToken).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrRequestInFlight
		}
		return "", pkgerrors.Wrap(err, "load client token")
	}
	return model.OrderID, nil
}

func (s *GormClientTokenStore) Release(ctx context.Context, userID, clientToken string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND client_token = ?", userID, clientToken).
		Delete(&ClientTokenModel{}).Error
	return pkgerrors.Wrap(err, "release client token")
}
