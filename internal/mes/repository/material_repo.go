package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type materialRepo struct {
	db *gorm.DB
}

var _ MaterialRepository = (*materialRepo)(nil)

func (r *materialRepo) FindByCode(ctx context.Context, code string) (*entity.Material, error) {
	var m entity.Material
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *materialRepo) LockByCode(ctx context.Context, code string) (*entity.Material, error) {
	var m entity.Material
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *materialRepo) Create(ctx context.Context, m *entity.Material) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r *materialRepo) AddStock(ctx context.Context, id int64, amount int) (*entity.Material, error) {
	if amount <= 0 || amount > entity.MaxStock {
		return nil, ErrStockOverflow
	}
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND current_stock <= ?", id, entity.MaxStock-amount).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock + ?", amount),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStockOverflow
	}
	return r.get(ctx, id)
}

func (r *materialRepo) DeductStock(ctx context.Context, id int64, qty int) (*entity.Material, error) {
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND current_stock >= ?", id, qty).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock - ?", qty),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientStock
	}
	return r.get(ctx, id)
}

func (r *materialRepo) List(ctx context.Context) ([]entity.Material, error) {
	var items []entity.Material
	err := r.db.WithContext(ctx).Order("code ASC").Find(&items).Error
	return items, translate(err)
}

func (r *materialRepo) get(ctx context.Context, id int64) (*entity.Material, error) {
	var m entity.Material
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

type movementRepo struct {
	db *gorm.DB
}

var _ MovementRepository = (*movementRepo)(nil)

func (r *movementRepo) Create(ctx context.Context, mv *entity.StockMovement) error {
	return translate(r.db.WithContext(ctx).Create(mv).Error)
}

func (r *movementRepo) ListByMaterial(ctx context.Context, materialID int64, limit int) ([]entity.StockMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []entity.StockMovement
	err := r.db.WithContext(ctx).Where("material_id = ?", materialID).
		Order("id DESC").Limit(limit).Find(&items).Error
	return items, translate(err)
}
