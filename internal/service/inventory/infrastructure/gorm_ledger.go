package infrastructure

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/service/inventory/domain"
)

// GormLedger 是库存账本的关系型实现。
// 条件扣减是一条 UPDATE ... WHERE available >= ?，由数据库保证原子性。
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// AutoMigrate 创建账本和预占日志用到的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&StockItemModel{}, &ReservationModel{})
}

func (l *GormLedger) TryDecrement(ctx context.Context, sku string, qty int64) error {
	res := l.db.WithContext(ctx).Model(&StockItemModel{}).
		Where("sku = ? AND available >= ?", sku, qty).
		Update("available", gorm.Expr("available - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrapf(domain.ErrLedgerUnavailable, "decrement %s: %v", sku, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// 条件不满足，区分 SKU 不存在和库存不足
	if _, err := l.Get(ctx, sku); err != nil {
		return err
	}
	return pkgerrors.Wrapf(domain.ErrInsufficientStock, "sku %s, requested %d", sku, qty)
}

func (l *GormLedger) Increment(ctx context.Context, sku string, qty int64) error {
	res := l.db.WithContext(ctx).Model(&StockItemModel{}).
		Where("sku = ?", sku).
		Update("available", gorm.Expr("available + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrapf(domain.ErrLedgerUnavailable, "increment %s: %v", sku, res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
	}
	return nil
}

func (l *GormLedger) Get(ctx context.Context, sku string) (*domain.StockRecord, error) {
	var model StockItemModel
	err := l.db.WithContext(ctx).Where("sku = ?", sku).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrUnknownSKU, "sku %s", sku)
		}
		return nil, pkgerrors.Wrapf(domain.ErrLedgerUnavailable, "get %s: %v", sku, err)
	}
	return &domain.StockRecord{
		SKU:       model.SKU,
		Available: model.Available,
		Name:      model.Name,
		Price:     model.Price,
	}, nil
}

func (l *GormLedger) Upsert(ctx context.Context, record *domain.StockRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	model := StockItemModel{
		SKU:       record.SKU,
		Available: record.Available,
		Name:      record.Name,
		Price:     record.Price,
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"available", "name", "price", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return pkgerrors.Wrapf(domain.ErrLedgerUnavailable, "upsert %s: %v", record.SKU, err)
	}
	return nil
}
